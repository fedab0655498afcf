package redis

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/messagely/message-api/api"
)

// A message represents a cached message. Optional fields are stored as empty
// strings and the participants as JSON documents.
type message struct {
	ID           string    `redis:"id"`
	FromUsername string    `redis:"from_username"`
	ToUsername   string    `redis:"to_username"`
	Body         string    `redis:"body"`
	SentAt       time.Time `redis:"sent_at"`
	ReadAt       string    `redis:"read_at"`
	FromUser     string    `redis:"from_user"`
	ToUser       string    `redis:"to_user"`
}

// A user is the JSON form of a participant inside a cached message.
type user struct {
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
}

func (m message) APIMessage() (api.Message, error) {
	am := api.Message{
		ID:           m.ID,
		FromUsername: m.FromUsername,
		ToUsername:   m.ToUsername,
		Body:         m.Body,
		SentAt:       m.SentAt,
	}
	if m.ReadAt != "" {
		t, err := time.Parse(time.RFC3339Nano, m.ReadAt)
		if err != nil {
			return api.Message{}, fmt.Errorf("parse read_at: %w", err)
		}
		am.ReadAt = &t
	}

	var err error
	if am.FromUser, err = decodeUser(m.FromUser); err != nil {
		return api.Message{}, fmt.Errorf("decode from_user: %w", err)
	}
	if am.ToUser, err = decodeUser(m.ToUser); err != nil {
		return api.Message{}, fmt.Errorf("decode to_user: %w", err)
	}
	return am, nil
}

func toRedisMessage(msg api.Message) (message, error) {
	m := message{
		ID:           msg.ID,
		FromUsername: msg.FromUsername,
		ToUsername:   msg.ToUsername,
		Body:         msg.Body,
		SentAt:       msg.SentAt,
	}
	if msg.ReadAt != nil {
		m.ReadAt = msg.ReadAt.Format(time.RFC3339Nano)
	}

	var err error
	if m.FromUser, err = encodeUser(msg.FromUser); err != nil {
		return message{}, fmt.Errorf("encode from_user: %w", err)
	}
	if m.ToUser, err = encodeUser(msg.ToUser); err != nil {
		return message{}, fmt.Errorf("encode to_user: %w", err)
	}
	return m, nil
}

func encodeUser(u *api.User) (string, error) {
	if u == nil {
		return "", nil
	}
	b, err := json.Marshal(user{
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Phone:     u.Phone,
	})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeUser(s string) (*api.User, error) {
	if s == "" {
		return nil, nil
	}
	var u user
	if err := json.Unmarshal([]byte(s), &u); err != nil {
		return nil, err
	}
	return &api.User{
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Phone:     u.Phone,
	}, nil
}
