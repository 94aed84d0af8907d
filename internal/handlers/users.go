package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/emilythestrangee/reddit-clone/backend/internal/middleware"
	"github.com/emilythestrangee/reddit-clone/backend/internal/models"
)

type UserHandler struct {
	db  *gorm.DB
	log zerolog.Logger
}

// GetUserProfile returns a user and their posts, newest first.
func (h *UserHandler) GetUserProfile(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	ctx := c.Request.Context()
	var user models.User
	err = h.db.WithContext(ctx).First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	if err != nil {
		h.log.Error().Err(err).Int("user_id", id).Msg("loading user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch user"})
		return
	}

	var posts []models.Post
	if err := h.db.WithContext(ctx).Where("user_id = ?", id).Order("created_at desc").Find(&posts).Error; err != nil {
		h.log.Error().Err(err).Int("user_id", id).Msg("loading user posts")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch user"})
		return
	}

	loadersFrom(c, h.db).Users.Prime(user.ID, &user)
	views, err := renderPosts(c, h.db, posts)
	if err != nil {
		h.log.Error().Err(err).Int("user_id", id).Msg("rendering user posts")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch user"})
		return
	}

	viewerID, _ := middleware.UserID(c)
	c.JSON(http.StatusOK, gin.H{
		"user":  user.View(viewerID),
		"posts": views,
	})
}
