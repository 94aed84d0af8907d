package models

import (
	"time"
	"unicode/utf8"
)

// SnippetLength is the number of characters kept in Post.TextSnippet.
const SnippetLength = 50

type Post struct {
	ID        int       `gorm:"primaryKey" json:"id"`
	Title     string    `gorm:"not null" json:"title"`
	Text      string    `gorm:"not null" json:"text"`
	UserID    int       `gorm:"not null;index" json:"user_id"`
	User      User      `gorm:"foreignKey:UserID" json:"-"`
	Score     int       `gorm:"not null;default:0" json:"score"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TextSnippet returns the first SnippetLength characters of the post text.
func (p *Post) TextSnippet() string {
	if utf8.RuneCountInString(p.Text) <= SnippetLength {
		return p.Text
	}
	return string([]rune(p.Text)[:SnippetLength])
}

type PostView struct {
	ID          int       `json:"id"`
	Title       string    `json:"title"`
	Text        string    `json:"text"`
	TextSnippet string    `json:"textSnippet"`
	UserID      int       `json:"user_id"`
	User        *UserView `json:"user,omitempty"`
	Score       int       `json:"score"`
	VoteType    int       `json:"voteType"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// View renders p without author or viewer-specific fields.
func (p *Post) View() *PostView {
	return &PostView{
		ID:          p.ID,
		Title:       p.Title,
		Text:        p.Text,
		TextSnippet: p.TextSnippet(),
		UserID:      p.UserID,
		Score:       p.Score,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

type CreatePostRequest struct {
	Title string `json:"title" binding:"required"`
	Text  string `json:"text" binding:"required"`
}

type UpdatePostRequest struct {
	Title string `json:"title" binding:"required"`
	Text  string `json:"text" binding:"required"`
}

// VoteRequest is the body of POST /posts/:id/vote.
type VoteRequest struct {
	InputVoteValue int `json:"inputVoteValue" binding:"required,oneof=-1 1"`
}

// PaginatedPosts is one page of the recency-ordered post listing.
type PaginatedPosts struct {
	TotalCount     int64       `json:"totalCount"`
	Cursor         *time.Time  `json:"cursor"`
	HasMore        bool        `json:"hasMore"`
	PaginatedPosts []*PostView `json:"paginatedPosts"`
}
