package postgres

import (
	"time"

	"github.com/messagely/message-api/api"
	"github.com/uptrace/bun"
)

// A user represents a user in the database.
type user struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	Username    string     `bun:",pk"`
	Password    string     `bun:",notnull"`
	FirstName   string     `bun:",notnull"`
	LastName    string     `bun:",notnull"`
	Phone       string     `bun:",notnull"`
	JoinAt      time.Time  `bun:",nullzero,notnull,default:now()"`
	LastLoginAt *time.Time `bun:",nullzero"`
}

func (u *user) APIUser() *api.User {
	if u == nil {
		return nil
	}
	return &api.User{
		Username:    u.Username,
		Password:    u.Password,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		Phone:       u.Phone,
		JoinAt:      u.JoinAt,
		LastLoginAt: u.LastLoginAt,
	}
}

// A message represents a message in the database.
type message struct {
	ID           string     `bun:",pk,type:uuid"`
	FromUsername string     `bun:",notnull"`
	ToUsername   string     `bun:",notnull"`
	Body         string     `bun:",notnull"`
	SentAt       time.Time  `bun:",nullzero,notnull,default:now()"`
	ReadAt       *time.Time `bun:",nullzero"`

	FromUser *user `bun:"rel:belongs-to,join:from_username=username"`
	ToUser   *user `bun:"rel:belongs-to,join:to_username=username"`
}

func (m message) APIMessage() api.Message {
	return api.Message{
		ID:           m.ID,
		FromUsername: m.FromUsername,
		ToUsername:   m.ToUsername,
		Body:         m.Body,
		SentAt:       m.SentAt,
		ReadAt:       m.ReadAt,
		FromUser:     m.FromUser.APIUser(),
		ToUser:       m.ToUser.APIUser(),
	}
}

func apiMessages(msgs []message) []api.Message {
	out := make([]api.Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.APIMessage()
	}
	return out
}
