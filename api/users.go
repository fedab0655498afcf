package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/messagely/message-api/auth"
)

func (a *API) register(w http.ResponseWriter, r *http.Request) error {
	type (
		request struct {
			Username  string `json:"username" validate:"required,max=32"`
			Password  string `json:"password" validate:"required"`
			FirstName string `json:"first_name" validate:"required"`
			LastName  string `json:"last_name" validate:"required"`
			Phone     string `json:"phone" validate:"required"`
		}
		response struct {
			Token string `json:"token"`
		}
	)

	var body request
	if err := a.decode(w, r, &body); err != nil {
		return err
	}

	hash, err := auth.HashPassword(body.Password, a.BcryptCost)
	if errors.Is(err, auth.ErrPasswordTooShort) {
		return newError(http.StatusBadRequest, "Password too short", err)
	}
	if err != nil {
		return newError(http.StatusInternalServerError, "Could not register user", err)
	}

	user, err := a.DB.RegisterUser(r.Context(), User{
		Username:  body.Username,
		Password:  hash,
		FirstName: body.FirstName,
		LastName:  body.LastName,
		Phone:     body.Phone,
	})
	if errors.Is(err, ErrUsernameTaken) {
		return newError(http.StatusConflict, "Username already taken", err)
	}
	if err != nil {
		return newError(http.StatusInternalServerError, "Could not register user", err)
	}

	token, err := a.Tokens.Sign(user.Username, time.Now())
	if err != nil {
		return newError(http.StatusInternalServerError, "Could not issue token", err)
	}
	a.respond(w, http.StatusCreated, response{Token: token})
	return nil
}

func (a *API) login(w http.ResponseWriter, r *http.Request) error {
	type (
		request struct {
			Username string `json:"username" validate:"required"`
			Password string `json:"password" validate:"required"`
		}
		response struct {
			Token string `json:"token"`
		}
	)

	var body request
	if err := a.decode(w, r, &body); err != nil {
		return err
	}

	user, err := a.DB.GetUser(r.Context(), body.Username)
	if errors.Is(err, ErrUserNotFound) {
		return newError(http.StatusBadRequest, "Invalid username/password", err)
	}
	if err != nil {
		return newError(http.StatusInternalServerError, "Could not log in", err)
	}
	if err := auth.ComparePassword(user.Password, body.Password); err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			return newError(http.StatusBadRequest, "Invalid username/password", err)
		}
		return newError(http.StatusInternalServerError, "Could not log in", err)
	}

	now := time.Now()
	if err := a.DB.UpdateLoginTimestamp(r.Context(), user.Username, now); err != nil {
		return newError(http.StatusInternalServerError, "Could not log in", err)
	}

	token, err := a.Tokens.Sign(user.Username, now)
	if err != nil {
		return newError(http.StatusInternalServerError, "Could not issue token", err)
	}
	a.respond(w, http.StatusOK, response{Token: token})
	return nil
}

func (a *API) listUsers(w http.ResponseWriter, r *http.Request) error {
	type (
		user struct {
			Username  string `json:"username"`
			FirstName string `json:"first_name"`
			LastName  string `json:"last_name"`
		}
		response struct {
			Users []user `json:"users"`
		}
	)

	users, err := a.DB.ListUsers(r.Context())
	if err != nil {
		return newError(http.StatusInternalServerError, "Could not list users", err)
	}

	out := make([]user, len(users))
	for i, u := range users {
		out[i] = user{
			Username:  u.Username,
			FirstName: u.FirstName,
			LastName:  u.LastName,
		}
	}
	a.respond(w, http.StatusOK, response{Users: out})
	return nil
}

func (a *API) getUser(w http.ResponseWriter, r *http.Request) error {
	type (
		user struct {
			Username    string  `json:"username"`
			FirstName   string  `json:"first_name"`
			LastName    string  `json:"last_name"`
			Phone       string  `json:"phone"`
			JoinAt      string  `json:"join_at"`
			LastLoginAt *string `json:"last_login_at"`
		}
		response struct {
			User user `json:"user"`
		}
	)

	u, err := a.DB.GetUser(r.Context(), username(r.Context()))
	if errors.Is(err, ErrUserNotFound) {
		return newError(http.StatusNotFound, "User not found", err)
	}
	if err != nil {
		return newError(http.StatusInternalServerError, "Could not get user", err)
	}

	a.respond(w, http.StatusOK, response{
		User: user{
			Username:    u.Username,
			FirstName:   u.FirstName,
			LastName:    u.LastName,
			Phone:       u.Phone,
			JoinAt:      formatTime(u.JoinAt),
			LastLoginAt: formatTimePtr(u.LastLoginAt),
		},
	})
	return nil
}

func (a *API) listMessagesTo(w http.ResponseWriter, r *http.Request) error {
	type (
		message struct {
			ID       string       `json:"id"`
			Body     string       `json:"body"`
			SentAt   string       `json:"sent_at"`
			ReadAt   *string      `json:"read_at"`
			FromUser *userSummary `json:"from_user"`
		}
		response struct {
			Messages []message `json:"messages"`
		}
	)

	msgs, err := a.DB.ListMessagesTo(r.Context(), username(r.Context()))
	if err != nil {
		return newError(http.StatusInternalServerError, "Could not list messages", err)
	}

	out := make([]message, len(msgs))
	for i, m := range msgs {
		out[i] = message{
			ID:       m.ID,
			Body:     m.Body,
			SentAt:   formatTime(m.SentAt),
			ReadAt:   formatTimePtr(m.ReadAt),
			FromUser: newUserSummary(m.FromUser),
		}
	}
	a.respond(w, http.StatusOK, response{Messages: out})
	return nil
}

func (a *API) listMessagesFrom(w http.ResponseWriter, r *http.Request) error {
	type (
		message struct {
			ID     string       `json:"id"`
			Body   string       `json:"body"`
			SentAt string       `json:"sent_at"`
			ReadAt *string      `json:"read_at"`
			ToUser *userSummary `json:"to_user"`
		}
		response struct {
			Messages []message `json:"messages"`
		}
	)

	msgs, err := a.DB.ListMessagesFrom(r.Context(), username(r.Context()))
	if err != nil {
		return newError(http.StatusInternalServerError, "Could not list messages", err)
	}

	out := make([]message, len(msgs))
	for i, m := range msgs {
		out[i] = message{
			ID:     m.ID,
			Body:   m.Body,
			SentAt: formatTime(m.SentAt),
			ReadAt: formatTimePtr(m.ReadAt),
			ToUser: newUserSummary(m.ToUser),
		}
	}
	a.respond(w, http.StatusOK, response{Messages: out})
	return nil
}
