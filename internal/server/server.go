package server

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/emilythestrangee/reddit-clone/backend/internal/config"
	"github.com/emilythestrangee/reddit-clone/backend/internal/database"
	"github.com/emilythestrangee/reddit-clone/backend/internal/handlers"
	"github.com/emilythestrangee/reddit-clone/backend/internal/middleware"
)

const voteBurst = 10

type Server struct {
	cfg      config.Config
	db       database.Service
	handler  *handlers.Handler
	sessions middleware.Identifier
	limiter  *middleware.RateLimiter
	log      zerolog.Logger
}

func New(cfg config.Config, db database.Service, handler *handlers.Handler, sessions middleware.Identifier, log zerolog.Logger) *Server {
	return &Server{
		cfg:      cfg,
		db:       db,
		handler:  handler,
		sessions: sessions,
		limiter:  middleware.NewRateLimiter(cfg.VotesPerSecond, voteBurst),
		log:      log,
	}
}

// HTTPServer wraps the router in an *http.Server listening on cfg.Port.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:         "0.0.0.0:" + s.cfg.Port,
		Handler:      s.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// RegisterRoutes sets up all application routes
func (s *Server) RegisterRoutes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(s.log))
	r.Use(otelgin.Middleware("reddit-api"))

	// the session cookie needs credentials, which rules out a wildcard origin
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{s.cfg.CORSOrigin},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Accept", "Content-Type", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/health", func(c *gin.Context) {
		stats := s.db.Health()
		code := http.StatusOK
		if stats["status"] != "up" {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, stats)
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.Use(middleware.Authenticate(s.sessions, s.log))
	api.Use(s.handler.Loaders())
	{
		// Auth routes (public)
		api.POST("/register", s.handler.Auth.Register)
		api.POST("/login", s.handler.Auth.Login)
		api.POST("/logout", s.handler.Auth.Logout)
		api.GET("/me", s.handler.Auth.GetMe)
		api.POST("/forgot-password", s.handler.Auth.ForgotPassword)
		api.POST("/change-password", s.handler.Auth.ChangePassword)

		// Post routes (public reads)
		api.GET("/posts", s.handler.Post.GetPosts)
		api.GET("/posts/:id", s.handler.Post.GetPost)

		// User routes (public reads)
		api.GET("/users/:id", s.handler.User.GetUserProfile)

		// Protected routes (authentication required)
		protected := api.Group("")
		protected.Use(middleware.RequireAuth())
		{
			protected.POST("/posts", s.handler.Post.CreatePost)
			protected.PUT("/posts/:id", s.handler.Post.UpdatePost)
			protected.DELETE("/posts/:id", s.handler.Post.DeletePost)
			protected.POST("/posts/:id/vote", s.limiter.Middleware(), s.handler.Post.Vote)
		}
	}

	return r
}
