// Package testutil starts throwaway Postgres and Redis containers for
// integration tests.
package testutil

import (
	"context"
	"testing"

	"github.com/go-redis/redis"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"gorm.io/gorm"

	"github.com/emilythestrangee/reddit-clone/backend/internal/database"
	"github.com/emilythestrangee/reddit-clone/backend/internal/models"
)

func skipUnlessIntegration(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)
}

// Postgres starts a migrated Postgres and returns a gorm handle to it.
func Postgres(t *testing.T) *gorm.DB {
	t.Helper()
	skipUnlessIntegration(t)
	ctx := context.Background()

	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("reddit"),
		tcpostgres.WithUsername("reddit"),
		tcpostgres.WithPassword("reddit"),
		tcpostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	if err != nil {
		t.Fatalf("Failed to start postgres: %v", err)
	}

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}
	if err := database.MigrateUp(dsn); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}

	svc, err := database.New(dsn, zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { svc.Close() })
	return svc.GetDB()
}

// Redis starts a Redis server and returns a client for it.
func Redis(t *testing.T) *redis.Client {
	t.Helper()
	skipUnlessIntegration(t)
	ctx := context.Background()

	ctr, err := tcredis.Run(ctx, "redis:7-alpine")
	testcontainers.CleanupContainer(t, ctr)
	if err != nil {
		t.Fatalf("Failed to start redis: %v", err)
	}
	addr, err := ctr.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get redis endpoint: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { client.Close() })
	if err := client.Ping().Err(); err != nil {
		t.Fatalf("Failed to ping redis: %v", err)
	}
	return client
}

// CreateUser inserts a user with a placeholder password hash.
func CreateUser(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()
	user := &models.User{Username: username, Email: username + "@example.com", Password: "x"}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}
	return user
}

// CreatePost inserts a post authored by userID with a zero score.
func CreatePost(t *testing.T, db *gorm.DB, userID int, title string) *models.Post {
	t.Helper()
	post := &models.Post{Title: title, Text: "text of " + title, UserID: userID}
	if err := db.Create(post).Error; err != nil {
		t.Fatalf("Failed to create post: %v", err)
	}
	return post
}
