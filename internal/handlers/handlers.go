package handlers

import (
	"context"
	"errors"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/emilythestrangee/reddit-clone/backend/internal/auth"
	"github.com/emilythestrangee/reddit-clone/backend/internal/voting"
)

// SessionManager opens and closes sessions for a request.
type SessionManager interface {
	Login(c *gin.Context, userID int) error
	Logout(c *gin.Context) error
}

// Voter applies votes. *voting.Engine satisfies it.
type Voter interface {
	Apply(ctx context.Context, actorID, postID int, desired voting.Value) (voting.Result, error)
}

type Deps struct {
	DB          *gorm.DB
	Sessions    SessionManager
	ResetTokens auth.ResetTokens
	Mailer      auth.Mailer
	Voter       Voter
	Log         zerolog.Logger
	PageSizeMax int
	FrontendURL string
}

// Handler combines all handler types
type Handler struct {
	Auth *AuthHandler
	Post *PostHandler
	User *UserHandler

	db *gorm.DB
}

// NewHandler creates a unified handler with all sub-handlers
func NewHandler(d Deps) *Handler {
	if d.PageSizeMax < 1 {
		d.PageSizeMax = 10
	}
	return &Handler{
		Auth: &AuthHandler{db: d.DB, sessions: d.Sessions, resets: d.ResetTokens, mailer: d.Mailer, log: d.Log, frontendURL: d.FrontendURL},
		Post: &PostHandler{db: d.DB, voter: d.Voter, log: d.Log, pageSizeMax: d.PageSizeMax},
		User: &UserHandler{db: d.DB, log: d.Log},
		db:   d.DB,
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// uniqueViolation reports whether err is a unique-constraint failure and
// which constraint fired.
func uniqueViolation(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return pgErr.ConstraintName, true
	}
	return "", false
}
