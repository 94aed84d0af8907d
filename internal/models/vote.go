package models

import "time"

// Vote is one user's current stance on one post. Rows only ever hold +1 or -1;
// "no vote" is the absence of a row.
type Vote struct {
	UserID    int       `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	PostID    int       `gorm:"primaryKey;autoIncrement:false;index" json:"post_id"`
	Value     int       `gorm:"not null" json:"value"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
