package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/emilythestrangee/reddit-clone/backend/internal/middleware"
	"github.com/emilythestrangee/reddit-clone/backend/internal/models"
	"github.com/emilythestrangee/reddit-clone/backend/internal/voting"
)

type PostHandler struct {
	db          *gorm.DB
	voter       Voter
	log         zerolog.Logger
	pageSizeMax int
}

func (h *PostHandler) render(c *gin.Context, posts []models.Post) ([]*models.PostView, error) {
	return renderPosts(c, h.db, posts)
}

// renderPosts fills in author and viewer vote for each post. Lookups run
// concurrently and are batched by the request's loaders.
func renderPosts(c *gin.Context, db *gorm.DB, posts []models.Post) ([]*models.PostView, error) {
	viewerID, _ := middleware.UserID(c)
	l := loadersFrom(c, db)
	views := make([]*models.PostView, len(posts))

	g, ctx := errgroup.WithContext(c.Request.Context())
	for i := range posts {
		views[i] = posts[i].View()
		v := views[i]
		g.Go(func() error {
			author, err := l.Users.Load(ctx, v.UserID)
			if err != nil {
				return err
			}
			v.User = author.View(viewerID)
			return nil
		})
		if viewerID != 0 {
			g.Go(func() error {
				vt, err := l.VoteType.Load(ctx, voteKey{PostID: v.ID, UserID: viewerID})
				v.VoteType = vt
				return err
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return views, nil
}

func (h *PostHandler) renderOne(c *gin.Context, post *models.Post) (*models.PostView, error) {
	views, err := h.render(c, []models.Post{*post})
	if err != nil {
		return nil, err
	}
	return views[0], nil
}

// GetPosts returns one page of posts, newest first.
func (h *PostHandler) GetPosts(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(h.pageSizeMax)))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer"})
		return
	}
	var cursor *time.Time
	if raw := c.Query("cursor"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid cursor"})
			return
		}
		cursor = &t
	}

	page, posts, err := h.listPosts(c.Request.Context(), clampLimit(limit, h.pageSizeMax), cursor)
	if err != nil {
		h.log.Error().Err(err).Msg("listing posts")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch posts"})
		return
	}
	page.PaginatedPosts, err = h.render(c, posts)
	if err != nil {
		h.log.Error().Err(err).Msg("rendering posts")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch posts"})
		return
	}
	c.JSON(http.StatusOK, page)
}

func clampLimit(limit, max int) int {
	if limit < 1 {
		return 1
	}
	if limit > max {
		return max
	}
	return limit
}

func (h *PostHandler) listPosts(ctx context.Context, limit int, cursor *time.Time) (*models.PaginatedPosts, []models.Post, error) {
	db := h.db.WithContext(ctx)
	page := &models.PaginatedPosts{}

	if err := db.Model(&models.Post{}).Count(&page.TotalCount).Error; err != nil {
		return nil, nil, err
	}

	q := db.Order("created_at desc").Limit(limit)
	var oldest *time.Time
	if cursor != nil {
		q = q.Where("created_at < ?", *cursor)
		var first models.Post
		err := db.Select("created_at").Order("created_at asc").Take(&first).Error
		switch {
		case err == nil:
			oldest = &first.CreatedAt
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return nil, nil, err
		}
	}

	var posts []models.Post
	if err := q.Find(&posts).Error; err != nil {
		return nil, nil, err
	}

	page.HasMore = hasMore(posts, page.TotalCount, cursor != nil, oldest)
	if len(posts) > 0 {
		last := posts[len(posts)-1].CreatedAt
		page.Cursor = &last
	}
	return page, posts, nil
}

// hasMore approximates whether another page exists. Without a cursor it
// compares the page size to the total count; with one it checks whether the
// page reached the globally oldest post. Posts sharing a timestamp with the
// page boundary can be skipped.
func hasMore(page []models.Post, total int64, cursored bool, oldest *time.Time) bool {
	if len(page) == 0 {
		return false
	}
	if cursored {
		return oldest != nil && !page[len(page)-1].CreatedAt.Equal(*oldest)
	}
	return int64(len(page)) != total
}

// GetPost returns a single post by ID
func (h *PostHandler) GetPost(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"post": nil})
		return
	}

	var post models.Post
	if err := h.db.WithContext(c.Request.Context()).First(&post, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"post": nil})
		return
	}

	view, err := h.renderOne(c, &post)
	if err != nil {
		h.log.Error().Err(err).Int("post_id", id).Msg("rendering post")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch post"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"post": view})
}

func postResponse(resp models.MutationResponse, post *models.PostView) models.PostMutationResponse {
	return models.PostMutationResponse{MutationResponse: resp, Post: post}
}

func (h *PostHandler) fail(c *gin.Context, code int, message string) {
	c.JSON(code, postResponse(models.Fail(code, message), nil))
}

// CreatePost creates a new post (PROTECTED - requires authentication)
func (h *PostHandler) CreatePost(c *gin.Context) {
	var input models.CreatePostRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		h.fail(c, http.StatusBadRequest, "title and text are required")
		return
	}

	authorID, _ := middleware.UserID(c)
	post := models.Post{
		Title:  input.Title,
		Text:   input.Text,
		UserID: authorID,
	}

	if err := h.db.WithContext(c.Request.Context()).Create(&post).Error; err != nil {
		h.log.Error().Err(err).Msg("creating post")
		h.fail(c, http.StatusInternalServerError, "internal server error")
		return
	}

	view, err := h.renderOne(c, &post)
	if err != nil {
		h.log.Error().Err(err).Msg("rendering post")
		view = post.View()
	}
	c.JSON(http.StatusOK, postResponse(models.OK("create post successfully"), view))
}

// ownedPost loads the post named by the :id param and checks the caller
// owns it. It writes the failure response itself.
func (h *PostHandler) ownedPost(c *gin.Context) (*models.Post, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		h.fail(c, http.StatusBadRequest, "Post not found")
		return nil, false
	}

	var post models.Post
	err = h.db.WithContext(c.Request.Context()).First(&post, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		h.fail(c, http.StatusBadRequest, "Post not found")
		return nil, false
	}
	if err != nil {
		h.log.Error().Err(err).Int("post_id", id).Msg("loading post")
		h.fail(c, http.StatusInternalServerError, "internal server error")
		return nil, false
	}

	userID, _ := middleware.UserID(c)
	if post.UserID != userID {
		h.fail(c, http.StatusUnauthorized, "unauthorized")
		return nil, false
	}
	return &post, true
}

// UpdatePost updates an existing post (PROTECTED - requires ownership)
func (h *PostHandler) UpdatePost(c *gin.Context) {
	var input models.UpdatePostRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		h.fail(c, http.StatusBadRequest, "title and text are required")
		return
	}

	post, ok := h.ownedPost(c)
	if !ok {
		return
	}

	// score is owned by the voting engine and never written here
	err := h.db.WithContext(c.Request.Context()).
		Model(post).
		Updates(map[string]interface{}{"title": input.Title, "text": input.Text}).Error
	if err != nil {
		h.log.Error().Err(err).Int("post_id", post.ID).Msg("updating post")
		h.fail(c, http.StatusInternalServerError, "internal server error")
		return
	}
	post.Title, post.Text = input.Title, input.Text

	view, err := h.renderOne(c, post)
	if err != nil {
		view = post.View()
	}
	c.JSON(http.StatusOK, postResponse(models.OK("successfully"), view))
}

// DeletePost deletes a post (PROTECTED - requires ownership)
func (h *PostHandler) DeletePost(c *gin.Context) {
	post, ok := h.ownedPost(c)
	if !ok {
		return
	}

	if err := h.db.WithContext(c.Request.Context()).Delete(&models.Post{}, post.ID).Error; err != nil {
		h.log.Error().Err(err).Int("post_id", post.ID).Msg("deleting post")
		h.fail(c, http.StatusInternalServerError, "internal server error")
		return
	}

	c.JSON(http.StatusOK, postResponse(models.OK("successfully"), post.View()))
}

// Vote records an up or down vote (PROTECTED - requires authentication)
func (h *PostHandler) Vote(c *gin.Context) {
	voteFail := func(code int, message string) {
		c.JSON(code, models.VoteMutationResponse{MutationResponse: models.Fail(code, message)})
	}

	postID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		voteFail(http.StatusNotFound, "Post not found")
		return
	}
	var input models.VoteRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		voteFail(http.StatusBadRequest, "vote value must be 1 or -1")
		return
	}
	userID, _ := middleware.UserID(c)

	res, err := h.voter.Apply(c.Request.Context(), userID, postID, voting.Value(input.InputVoteValue))
	switch {
	case err == nil:
	case errors.Is(err, voting.ErrPostNotFound):
		voteFail(http.StatusNotFound, "Post not found")
		return
	case errors.Is(err, voting.ErrUnauthenticated):
		voteFail(http.StatusUnauthorized, "not authenticated")
		return
	case errors.Is(err, voting.ErrInvalidVote):
		voteFail(http.StatusBadRequest, "vote value must be 1 or -1")
		return
	case errors.Is(err, voting.ErrTransientConflict):
		voteFail(http.StatusServiceUnavailable, "vote could not be applied, try again")
		return
	default:
		h.log.Error().Err(err).Int("post_id", postID).Int("user_id", userID).Msg("applying vote")
		voteFail(http.StatusInternalServerError, "internal server error")
		return
	}

	score := res.Score
	c.JSON(http.StatusOK, models.VoteMutationResponse{
		MutationResponse: models.OK("voted successfully"),
		Score:            &score,
	})
}
