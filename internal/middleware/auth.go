package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/emilythestrangee/reddit-clone/backend/internal/auth"
	"github.com/emilythestrangee/reddit-clone/backend/internal/models"
)

const userIDKey = "user_id"

// Identifier resolves the user behind a request.
type Identifier interface {
	Identify(c *gin.Context) (int, error)
}

// Authenticate stores the session user's id on the context. Requests
// without a valid session continue anonymously.
func Authenticate(sessions Identifier, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := sessions.Identify(c)
		switch {
		case err == nil:
			c.Set(userIDKey, id)
		case !errors.Is(err, auth.ErrNoSession):
			log.Warn().Err(err).Msg("session lookup failed")
		}
		c.Next()
	}
}

// RequireAuth rejects anonymous requests.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := UserID(c); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				models.Fail(http.StatusUnauthorized, "not authenticated"))
			return
		}
		c.Next()
	}
}

// UserID returns the authenticated user's id.
func UserID(c *gin.Context) (int, bool) {
	raw, ok := c.Get(userIDKey)
	if !ok {
		return 0, false
	}
	id, ok := raw.(int)
	return id, ok && id != 0
}

// SetUserID marks the request as made by id.
func SetUserID(c *gin.Context, id int) {
	c.Set(userIDKey, id)
}
