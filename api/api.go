package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/messagely/message-api/auth"
)

// A DB provides a storage layer that persists users and messages.
type DB interface {
	GetMessage(ctx context.Context, id string) (Message, error)
	InsertMessage(ctx context.Context, msg Message) (Message, error)
	MarkMessageRead(ctx context.Context, id string, at time.Time) (Message, error)
	ListMessagesTo(ctx context.Context, username string) ([]Message, error)
	ListMessagesFrom(ctx context.Context, username string) ([]Message, error)

	RegisterUser(ctx context.Context, user User) (User, error)
	GetUser(ctx context.Context, username string) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
	UpdateLoginTimestamp(ctx context.Context, username string, at time.Time) error
}

// A Cache provides a storage layer that caches messages by id.
type Cache interface {
	GetMessage(ctx context.Context, id string) (*Message, error)
	InsertMessage(ctx context.Context, msg Message) error
	DeleteMessage(ctx context.Context, id string) error
}

// A Validator checks request bodies against their struct tags.
type Validator interface {
	Struct(s interface{}) error
}

// API provides the REST endpoints for the application.
type API struct {
	Logger   *slog.Logger
	DB       DB
	Cache    Cache
	Validate Validator
	Tokens   *auth.Tokens

	// BcryptCost is used when hashing passwords of new users. Zero means
	// bcrypt's default cost.
	BcryptCost int
	// AllowedOrigins enables CORS for the listed origins when not empty.
	AllowedOrigins []string

	once sync.Once
	mux  http.Handler
}

func (a *API) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(a.requestID)
	r.Use(a.logRequests)
	r.Use(middleware.Recoverer)
	if len(a.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: a.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", headerRequestID},
			ExposedHeaders: []string{headerRequestID},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		a.respond(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", a.handle(a.register))
		r.Post("/login", a.handle(a.login))
	})

	r.Group(func(r chi.Router) {
		r.Use(a.ensureLoggedIn)

		r.Get("/users", a.handle(a.listUsers))
		r.Route("/users/{username}", func(r chi.Router) {
			r.Use(a.ensureCorrectUser)
			r.Get("/", a.handle(a.getUser))
			r.Get("/to", a.handle(a.listMessagesTo))
			r.Get("/from", a.handle(a.listMessagesFrom))
		})

		r.Post("/messages", a.handle(a.createMessage))
		r.Get("/messages/{id}", a.handle(a.getMessage))
		r.Post("/messages/{id}/read", a.handle(a.markMessageRead))
	})

	a.mux = r
}

func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.once.Do(a.setupRoutes)
	a.mux.ServeHTTP(w, r)
}

func (a *API) respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		a.Logger.Error("Could not encode JSON body", "error", err.Error())
	}
}

func (a *API) respondError(w http.ResponseWriter, status int, err error, msg string) {
	type response struct {
		Error string `json:"error"`
	}
	if status >= http.StatusInternalServerError {
		a.Logger.Error("Error", "status", status, "error", err.Error())
	} else {
		a.Logger.Info("Request rejected", "status", status, "error", err.Error())
	}
	a.respond(w, status, response{Error: msg})
}

// maxBodyBytes caps the size of JSON request bodies.
const maxBodyBytes = 1 << 20

// decode reads a JSON request body into v and validates it.
func (a *API) decode(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer body.Close()
	if err := json.NewDecoder(body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return newError(http.StatusRequestEntityTooLarge, "Request body too large", err)
		}
		return newError(http.StatusBadRequest, "Could not decode request body", err)
	}
	if err := a.Validate.Struct(v); err != nil {
		return newError(http.StatusBadRequest, "Invalid request body", err)
	}
	return nil
}

// timeLayout is RFC 3339 in UTC with millisecond precision.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}
