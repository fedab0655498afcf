package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/messagely/message-api/api"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

// SQLSTATE codes of the integrity violations this package translates.
const (
	foreignKeyViolation = "23503"
	uniqueViolation     = "23505"
)

// Postgres provides storage in PostgreSQL.
type Postgres struct {
	bun *bun.DB
}

// Connect connects to the database and ping the DB to ensure the connection is
// working.
func Connect(ctx context.Context, connStr string) (*Postgres, error) {
	sqlDB := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(connStr)))
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	db := bun.NewDB(sqlDB, pgdialect.New())
	return &Postgres{
		bun: db,
	}, nil
}

// Close closes the underlying connection pool.
func (pg *Postgres) Close() error {
	return pg.bun.Close()
}

// GetMessage returns the message with the given id, including sender and
// recipient details.
func (pg *Postgres) GetMessage(ctx context.Context, id string) (api.Message, error) {
	var m message
	err := pg.bun.NewSelect().
		Model(&m).
		Relation("FromUser").
		Relation("ToUser").
		Where("message.id = ?", id).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return api.Message{}, api.ErrMessageNotFound
	}
	if err != nil {
		return api.Message{}, fmt.Errorf("select: %w", err)
	}
	return m.APIMessage(), nil
}

// InsertMessage inserts a message into the database. The returned message
// holds auto generated fields, such as the message id.
func (pg *Postgres) InsertMessage(ctx context.Context, msg api.Message) (api.Message, error) {
	m := &message{
		ID:           uuid.NewString(),
		FromUsername: msg.FromUsername,
		ToUsername:   msg.ToUsername,
		Body:         msg.Body,
		SentAt:       msg.SentAt,
	}
	if _, err := pg.bun.NewInsert().Model(m).Exec(ctx); err != nil {
		if sqlState(err) == foreignKeyViolation {
			return api.Message{}, fmt.Errorf("insert: %w", api.ErrUserNotFound)
		}
		return api.Message{}, fmt.Errorf("insert: %w", err)
	}
	return m.APIMessage(), nil
}

// MarkMessageRead sets the read timestamp of a message. A message that was
// already read keeps its original timestamp.
func (pg *Postgres) MarkMessageRead(ctx context.Context, id string, at time.Time) (api.Message, error) {
	m := &message{ID: id}
	res, err := pg.bun.NewUpdate().
		Model(m).
		Set("read_at = COALESCE(message.read_at, ?)", at).
		WherePK().
		Returning("id, from_username, to_username, body, sent_at, read_at").
		Exec(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return api.Message{}, api.ErrMessageNotFound
	}
	if err != nil {
		return api.Message{}, fmt.Errorf("update: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return api.Message{}, api.ErrMessageNotFound
	}
	return m.APIMessage(), nil
}

// ListMessagesTo returns the messages received by username, oldest first,
// with sender details.
func (pg *Postgres) ListMessagesTo(ctx context.Context, username string) ([]api.Message, error) {
	var msgs []message
	err := pg.bun.NewSelect().
		Model(&msgs).
		Relation("FromUser").
		Where("message.to_username = ?", username).
		Order("message.sent_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select: %w", err)
	}
	return apiMessages(msgs), nil
}

// ListMessagesFrom returns the messages sent by username, oldest first, with
// recipient details.
func (pg *Postgres) ListMessagesFrom(ctx context.Context, username string) ([]api.Message, error) {
	var msgs []message
	err := pg.bun.NewSelect().
		Model(&msgs).
		Relation("ToUser").
		Where("message.from_username = ?", username).
		Order("message.sent_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select: %w", err)
	}
	return apiMessages(msgs), nil
}

// RegisterUser inserts a new user. The password must already be hashed.
func (pg *Postgres) RegisterUser(ctx context.Context, u api.User) (api.User, error) {
	row := &user{
		Username:  u.Username,
		Password:  u.Password,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Phone:     u.Phone,
	}
	if _, err := pg.bun.NewInsert().Model(row).Exec(ctx); err != nil {
		if sqlState(err) == uniqueViolation {
			return api.User{}, fmt.Errorf("insert: %w", api.ErrUsernameTaken)
		}
		return api.User{}, fmt.Errorf("insert: %w", err)
	}
	return *row.APIUser(), nil
}

// GetUser returns the user with the given username.
func (pg *Postgres) GetUser(ctx context.Context, username string) (api.User, error) {
	var u user
	err := pg.bun.NewSelect().Model(&u).Where("u.username = ?", username).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return api.User{}, api.ErrUserNotFound
	}
	if err != nil {
		return api.User{}, fmt.Errorf("select: %w", err)
	}
	return *u.APIUser(), nil
}

// ListUsers returns all users ordered by username.
func (pg *Postgres) ListUsers(ctx context.Context) ([]api.User, error) {
	var users []user
	if err := pg.bun.NewSelect().Model(&users).Order("u.username ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("select: %w", err)
	}
	out := make([]api.User, len(users))
	for i := range users {
		out[i] = *users[i].APIUser()
	}
	return out, nil
}

// UpdateLoginTimestamp records a successful login.
func (pg *Postgres) UpdateLoginTimestamp(ctx context.Context, username string, at time.Time) error {
	res, err := pg.bun.NewUpdate().
		Model((*user)(nil)).
		Set("last_login_at = ?", at).
		Where("username = ?", username).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return api.ErrUserNotFound
	}
	return nil
}

func sqlState(err error) string {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) && pgErr.IntegrityViolation() {
		return pgErr.Field('C')
	}
	return ""
}
