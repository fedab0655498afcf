package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type userSummary struct {
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
}

func newUserSummary(u *User) *userSummary {
	if u == nil {
		return nil
	}
	return &userSummary{
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Phone:     u.Phone,
	}
}

func (a *API) getMessage(w http.ResponseWriter, r *http.Request) error {
	type (
		message struct {
			ID       string       `json:"id"`
			Body     string       `json:"body"`
			SentAt   string       `json:"sent_at"`
			ReadAt   *string      `json:"read_at"`
			FromUser *userSummary `json:"from_user"`
			ToUser   *userSummary `json:"to_user"`
		}
		response struct {
			Message message `json:"message"`
		}
	)

	msg, err := a.lookupMessage(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return err
	}
	if !msg.IsParticipant(username(r.Context())) {
		return newError(http.StatusUnauthorized, "Not authorized to view message", errUnauthorized)
	}

	a.respond(w, http.StatusOK, response{
		Message: message{
			ID:       msg.ID,
			Body:     msg.Body,
			SentAt:   formatTime(msg.SentAt),
			ReadAt:   formatTimePtr(msg.ReadAt),
			FromUser: newUserSummary(msg.FromUser),
			ToUser:   newUserSummary(msg.ToUser),
		},
	})
	return nil
}

func (a *API) createMessage(w http.ResponseWriter, r *http.Request) error {
	type (
		request struct {
			ToUsername string `json:"to_username" validate:"required"`
			Body       string `json:"body" validate:"required"`
		}
		message struct {
			ID           string `json:"id"`
			FromUsername string `json:"from_username"`
			ToUsername   string `json:"to_username"`
			Body         string `json:"body"`
			SentAt       string `json:"sent_at"`
		}
		response struct {
			Message message `json:"message"`
		}
	)

	var body request
	if err := a.decode(w, r, &body); err != nil {
		return err
	}

	msg, err := a.DB.InsertMessage(r.Context(), Message{
		FromUsername: username(r.Context()),
		ToUsername:   body.ToUsername,
		Body:         body.Body,
		SentAt:       time.Now(),
	})
	if errors.Is(err, ErrUserNotFound) {
		return newError(http.StatusBadRequest, "Unknown recipient", err)
	}
	if err != nil {
		return newError(http.StatusInternalServerError, "Could not insert message", err)
	}

	a.respond(w, http.StatusCreated, response{
		Message: message{
			ID:           msg.ID,
			FromUsername: msg.FromUsername,
			ToUsername:   msg.ToUsername,
			Body:         msg.Body,
			SentAt:       formatTime(msg.SentAt),
		},
	})
	return nil
}

func (a *API) markMessageRead(w http.ResponseWriter, r *http.Request) error {
	type (
		message struct {
			ID     string  `json:"id"`
			ReadAt *string `json:"read_at"`
		}
		response struct {
			Message message `json:"message"`
		}
	)

	id := chi.URLParam(r, "id")
	msg, err := a.lookupMessage(r.Context(), id)
	if err != nil {
		return err
	}
	if username(r.Context()) != msg.ToUsername {
		return newError(http.StatusUnauthorized, "Only the recipient can mark a message as read", errUnauthorized)
	}

	read, err := a.DB.MarkMessageRead(r.Context(), id, time.Now())
	if errors.Is(err, ErrMessageNotFound) {
		return newError(http.StatusNotFound, "Message not found", err)
	}
	if err != nil {
		return newError(http.StatusInternalServerError, "Could not mark message as read", err)
	}

	msg.ReadAt = read.ReadAt
	a.refreshCachedMessage(r.Context(), msg)

	a.respond(w, http.StatusOK, response{
		Message: message{
			ID:     read.ID,
			ReadAt: formatTimePtr(read.ReadAt),
		},
	})
	return nil
}

// lookupMessage reads a message through the cache, filling the cache on a
// miss.
func (a *API) lookupMessage(ctx context.Context, id string) (Message, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Message{}, newError(http.StatusNotFound, "Message not found", err)
	}

	cached, err := a.Cache.GetMessage(ctx, id)
	if err == nil && cached != nil {
		return *cached, nil
	}
	if err != nil && !errors.Is(err, ErrMessageNotFoundInCache) {
		a.Logger.Error("Error getting message from cache, trying database", "id", id, "error", err.Error())
	}

	msg, err := a.DB.GetMessage(ctx, id)
	if errors.Is(err, ErrMessageNotFound) {
		return Message{}, newError(http.StatusNotFound, "Message not found", err)
	}
	if err != nil {
		return Message{}, newError(http.StatusInternalServerError, "Could not get message", err)
	}

	if err := a.Cache.InsertMessage(ctx, msg); err != nil {
		a.Logger.Error("Could not cache message", "id", id, "error", err.Error())
	}
	return msg, nil
}

// refreshCachedMessage replaces the cached copy of msg. When that fails the
// entry is dropped so the next lookup reloads it from the database.
func (a *API) refreshCachedMessage(ctx context.Context, msg Message) {
	err := a.Cache.InsertMessage(ctx, msg)
	if err == nil {
		return
	}
	a.Logger.Error("Could not update cached message", "id", msg.ID, "error", err.Error())
	if err := a.Cache.DeleteMessage(ctx, msg.ID); err != nil {
		a.Logger.Error("Could not invalidate cached message", "id", msg.ID, "error", err.Error())
	}
}
