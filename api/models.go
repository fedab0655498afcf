package api

import "time"

// A User represents a registered user.
type User struct {
	Username    string
	Password    string // bcrypt hash
	FirstName   string
	LastName    string
	Phone       string
	JoinAt      time.Time
	LastLoginAt *time.Time
}

// A Message represents a persisted message between two users.
//
// FromUser and ToUser are only populated when the message is loaded by id.
type Message struct {
	ID           string
	FromUsername string
	ToUsername   string
	Body         string
	SentAt       time.Time
	ReadAt       *time.Time
	FromUser     *User
	ToUser       *User
}

// IsParticipant reports whether username sent or received the message.
func (m Message) IsParticipant(username string) bool {
	return username == m.FromUsername || username == m.ToUsername
}
