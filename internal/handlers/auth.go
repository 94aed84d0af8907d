package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/emilythestrangee/reddit-clone/backend/internal/auth"
	"github.com/emilythestrangee/reddit-clone/backend/internal/middleware"
	"github.com/emilythestrangee/reddit-clone/backend/internal/models"
)

type AuthHandler struct {
	db          *gorm.DB
	sessions    SessionManager
	resets      auth.ResetTokens
	mailer      auth.Mailer
	log         zerolog.Logger
	frontendURL string
}

func userResponse(resp models.MutationResponse, user *models.UserView) models.UserMutationResponse {
	return models.UserMutationResponse{MutationResponse: resp, User: user}
}

func (h *AuthHandler) fail(c *gin.Context, code int, message string, errs ...models.FieldError) {
	c.JSON(code, userResponse(models.Fail(code, message, errs...), nil))
}

func (h *AuthHandler) internalError(c *gin.Context, err error, msg string) {
	h.log.Error().Err(err).Msg(msg)
	h.fail(c, http.StatusInternalServerError, "internal server error")
}

var registerMessages = map[string][2]string{
	"email":    {"invalid email", "Email must include @ symbol"},
	"username": {"invalid username", "Length must be greater than 2"},
	"password": {"invalid password", "Length must be greater than 2"},
}

// registerError turns the first validation failure into an envelope
// message and field error.
func registerError(err error) (string, models.FieldError) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid input", models.FieldError{}
	}
	fe := verrs[0]
	msgs := registerMessages[fe.Field()]
	detail := msgs[1]
	if fe.Tag() == "excludes" {
		detail = "Cannot include an @"
	}
	return msgs[0], models.FieldError{Field: fe.Field(), Message: detail}
}

// Register creates a user and logs them in.
func (h *AuthHandler) Register(c *gin.Context) {
	var input models.RegisterRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		h.fail(c, http.StatusBadRequest, "invalid input")
		return
	}
	if err := validate.Struct(input); err != nil {
		msg, fe := registerError(err)
		h.fail(c, http.StatusBadRequest, msg, fe)
		return
	}

	ctx := c.Request.Context()
	var existing models.User
	err := h.db.WithContext(ctx).
		Where("username = ? OR email = ?", input.Username, input.Email).
		Take(&existing).Error
	if err == nil {
		h.duplicate(c, existing.Username == input.Username)
		return
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		h.internalError(c, err, "checking existing user")
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		h.internalError(c, err, "hashing password")
		return
	}

	user := models.User{
		Username: input.Username,
		Email:    input.Email,
		Password: string(hashed),
	}
	if err := h.db.WithContext(ctx).Create(&user).Error; err != nil {
		if constraint, ok := uniqueViolation(err); ok {
			// lost a race with another registration
			h.duplicate(c, strings.Contains(constraint, "username"))
			return
		}
		h.internalError(c, err, "creating user")
		return
	}

	if err := h.sessions.Login(c, user.ID); err != nil {
		h.internalError(c, err, "opening session")
		return
	}
	middleware.SetUserID(c, user.ID)

	c.JSON(http.StatusOK, userResponse(models.OK("user registration successful"), user.View(user.ID)))
}

func (h *AuthHandler) duplicate(c *gin.Context, username bool) {
	field := "email"
	if username {
		field = "username"
	}
	h.fail(c, http.StatusBadRequest, "Duplicated username or email",
		models.FieldError{Field: field, Message: field + " have been taken"})
}

// Login accepts either a username or an email address.
func (h *AuthHandler) Login(c *gin.Context) {
	var input models.LoginRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		h.fail(c, http.StatusBadRequest, "invalid input")
		return
	}

	column := "username"
	if strings.Contains(input.UsernameOrEmail, "@") {
		column = "email"
	}

	var user models.User
	err := h.db.WithContext(c.Request.Context()).
		Where(column+" = ?", input.UsernameOrEmail).
		Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		h.fail(c, http.StatusBadRequest, "login failed",
			models.FieldError{Field: "usernameOrEmail", Message: "username or email incorrect"})
		return
	}
	if err != nil {
		h.internalError(c, err, "looking up user")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(input.Password)); err != nil {
		h.fail(c, http.StatusBadRequest, "login failed",
			models.FieldError{Field: "password", Message: "password incorrect"})
		return
	}

	if err := h.sessions.Login(c, user.ID); err != nil {
		h.internalError(c, err, "opening session")
		return
	}
	middleware.SetUserID(c, user.ID)

	c.JSON(http.StatusOK, userResponse(models.OK("login successfully"), user.View(user.ID)))
}

// Logout always succeeds; a failure to delete the server-side session is
// only logged.
func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.sessions.Logout(c); err != nil {
		h.log.Warn().Err(err).Msg("destroying session")
	}
	c.JSON(http.StatusOK, gin.H{"logout": true})
}

// GetMe returns the current user, or null when anonymous.
func (h *AuthHandler) GetMe(c *gin.Context) {
	id, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"user": nil})
		return
	}

	var user models.User
	if err := h.db.WithContext(c.Request.Context()).First(&user, id).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			h.log.Error().Err(err).Int("user_id", id).Msg("loading current user")
		}
		c.JSON(http.StatusOK, gin.H{"user": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user.View(id)})
}

func (h *AuthHandler) resetLink(token string, userID int) string {
	q := url.Values{}
	q.Set("token", token)
	q.Set("userId", strconv.Itoa(userID))
	return strings.TrimRight(h.frontendURL, "/") + "/change-password?" + q.Encode()
}

// ForgotPassword mails a reset link when the address belongs to a user. The
// response never reveals whether it does.
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var input models.ForgotPasswordRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusOK, gin.H{"forgotPassword": true})
		return
	}

	ctx := c.Request.Context()
	var user models.User
	err := h.db.WithContext(ctx).Where("email = ?", input.Email).Take(&user).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
	case err != nil:
		h.log.Error().Err(err).Msg("looking up user for password reset")
	default:
		token, err := h.resets.Issue(ctx, user.ID)
		if err != nil {
			h.log.Error().Err(err).Int("user_id", user.ID).Msg("issuing reset token")
			break
		}
		body := fmt.Sprintf(`<a href="%s">reset password</a>`, h.resetLink(token, user.ID))
		if err := h.mailer.Send(ctx, user.Email, "Change password", body); err != nil {
			h.log.Error().Err(err).Int("user_id", user.ID).Msg("sending reset mail")
		}
	}

	c.JSON(http.StatusOK, gin.H{"forgotPassword": true})
}

// ChangePassword consumes a reset token and logs the user in.
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var input models.ChangePasswordRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		h.fail(c, http.StatusBadRequest, "invalid input")
		return
	}
	if err := validate.Struct(input); err != nil {
		h.fail(c, http.StatusBadRequest, "invalid password",
			models.FieldError{Field: "newPassword", Message: "length must be greater than 2"})
		return
	}

	invalidToken := models.FieldError{Field: "token", Message: "invalid or expire token"}
	userID, err := strconv.Atoi(input.UserID)
	if err != nil {
		h.fail(c, http.StatusBadRequest, "invalid token", invalidToken)
		return
	}

	ctx := c.Request.Context()
	if err := h.resets.Verify(ctx, userID, input.Token); err != nil {
		if !errors.Is(err, auth.ErrInvalidResetToken) {
			h.log.Error().Err(err).Int("user_id", userID).Msg("verifying reset token")
		}
		h.fail(c, http.StatusBadRequest, "invalid token", invalidToken)
		return
	}

	var user models.User
	err = h.db.WithContext(ctx).First(&user, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		h.fail(c, http.StatusBadRequest, "user no longer exists",
			models.FieldError{Field: "token", Message: "user no longer exists"})
		return
	}
	if err != nil {
		h.internalError(c, err, "loading user for password change")
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(input.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		h.internalError(c, err, "hashing password")
		return
	}
	if err := h.db.WithContext(ctx).Model(&user).Update("password", string(hashed)).Error; err != nil {
		h.internalError(c, err, "updating password")
		return
	}
	if err := h.resets.Revoke(ctx, userID); err != nil {
		h.log.Warn().Err(err).Int("user_id", userID).Msg("revoking reset token")
	}

	if err := h.sessions.Login(c, user.ID); err != nil {
		h.internalError(c, err, "opening session")
		return
	}
	middleware.SetUserID(c, user.ID)

	c.JSON(http.StatusOK, userResponse(models.OK("change password successfully"), user.View(user.ID)))
}
