package models

import "time"

type User struct {
	ID        int       `gorm:"primaryKey" json:"id"`
	Username  string    `gorm:"unique;not null" json:"username"`
	Email     string    `gorm:"unique;not null" json:"email"`
	Password  string    `gorm:"not null" json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UserView is the public shape of a user. Email is only filled in for the
// user themself.
type UserView struct {
	ID        int       `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// View renders u for the viewer with id viewerID (0 when anonymous).
func (u *User) View(viewerID int) *UserView {
	if u == nil {
		return nil
	}
	v := &UserView{
		ID:        u.ID,
		Username:  u.Username,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
	if viewerID != 0 && viewerID == u.ID {
		v.Email = u.Email
	}
	return v
}

// RegisterRequest fields are validated in declaration order and only the
// first failure is reported.
type RegisterRequest struct {
	Email    string `json:"email" validate:"contains=@"`
	Username string `json:"username" validate:"min=3,excludes=@"`
	Password string `json:"password" validate:"min=3"`
}

type LoginRequest struct {
	UsernameOrEmail string `json:"usernameOrEmail"`
	Password        string `json:"password"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

type ChangePasswordRequest struct {
	Token       string `json:"token"`
	UserID      string `json:"userId"`
	NewPassword string `json:"newPassword" validate:"min=3"`
}
