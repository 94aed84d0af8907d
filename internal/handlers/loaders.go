package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/emilythestrangee/reddit-clone/backend/internal/loader"
	"github.com/emilythestrangee/reddit-clone/backend/internal/models"
)

const loadersKey = "loaders"

type voteKey struct {
	PostID int
	UserID int
}

// Loaders batch the per-post lookups made while rendering one response.
type Loaders struct {
	VoteType *loader.Loader[voteKey, int]
	Users    *loader.Loader[int, *models.User]
}

func NewLoaders(ctx context.Context, db *gorm.DB) *Loaders {
	return &Loaders{
		VoteType: loader.New(ctx, func(ctx context.Context, keys []voteKey) (map[voteKey]int, error) {
			pairs := make([][]interface{}, len(keys))
			for i, k := range keys {
				pairs[i] = []interface{}{k.UserID, k.PostID}
			}
			var votes []models.Vote
			if err := db.WithContext(ctx).Where("(user_id, post_id) IN ?", pairs).Find(&votes).Error; err != nil {
				return nil, err
			}
			out := make(map[voteKey]int, len(votes))
			for _, v := range votes {
				out[voteKey{PostID: v.PostID, UserID: v.UserID}] = v.Value
			}
			return out, nil
		}),
		Users: loader.New(ctx, func(ctx context.Context, ids []int) (map[int]*models.User, error) {
			var users []*models.User
			if err := db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
				return nil, err
			}
			out := make(map[int]*models.User, len(users))
			for _, u := range users {
				out[u.ID] = u
			}
			return out, nil
		}),
	}
}

// Loaders installs a fresh set of loaders on every request.
func (h *Handler) Loaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(loadersKey, NewLoaders(c.Request.Context(), h.db))
		c.Next()
	}
}

func loadersFrom(c *gin.Context, db *gorm.DB) *Loaders {
	if l, ok := c.Get(loadersKey); ok {
		return l.(*Loaders)
	}
	l := NewLoaders(c.Request.Context(), db)
	c.Set(loadersKey, l)
	return l
}
