package voting

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/emilythestrangee/reddit-clone/backend/internal/models"
)

// Postgres error codes the engine reacts to.
const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// GormStore keeps the ledger and scores in Postgres. Concurrent votes on a
// post are serialized by a row lock on the post (SELECT ... FOR UPDATE).
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(gormTx{db: tx})
	})
	return translate(err)
}

type gormTx struct {
	db *gorm.DB
}

func (t gormTx) LockPost(ctx context.Context, postID int) (int, error) {
	var post models.Post
	err := t.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id", "score").
		Where("id = ?", postID).
		Take(&post).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, ErrPostNotFound
	}
	if err != nil {
		return 0, translate(err)
	}
	return post.Score, nil
}

func (t gormTx) FindVote(ctx context.Context, userID, postID int) (*models.Vote, error) {
	var vote models.Vote
	err := t.db.WithContext(ctx).
		Where("user_id = ? AND post_id = ?", userID, postID).
		Take(&vote).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, translate(err)
	}
	return &vote, nil
}

func (t gormTx) InsertVote(ctx context.Context, userID, postID int, value Value) error {
	vote := models.Vote{UserID: userID, PostID: postID, Value: int(value)}
	return translate(t.db.WithContext(ctx).Create(&vote).Error)
}

func (t gormTx) UpdateVote(ctx context.Context, userID, postID int, value Value) error {
	res := t.db.WithContext(ctx).
		Model(&models.Vote{}).
		Where("user_id = ? AND post_id = ?", userID, postID).
		Update("value", int(value))
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		// the entry we read is gone; let the retry start over
		return ErrTransientConflict
	}
	return nil
}

func (t gormTx) AddScore(ctx context.Context, postID, delta int) (int, error) {
	var post models.Post
	res := t.db.WithContext(ctx).
		Model(&post).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "score"}}}).
		Where("id = ?", postID).
		UpdateColumn("score", gorm.Expr("score + ?", delta))
	if res.Error != nil {
		return 0, translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return 0, ErrPostNotFound
	}
	return post.Score, nil
}

func (t gormTx) SumVotes(ctx context.Context, postID int) (int, error) {
	var sum int
	err := t.db.WithContext(ctx).
		Model(&models.Vote{}).
		Select("COALESCE(SUM(value), 0)").
		Where("post_id = ?", postID).
		Scan(&sum).Error
	return sum, translate(err)
}

// translate maps Postgres errors onto the package's sentinel errors.
func translate(err error) error {
	if err == nil || errors.Is(err, ErrDuplicateVote) || errors.Is(err, ErrTransientConflict) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return errors.Join(ErrDuplicateVote, err)
		case pgSerializationFailure, pgDeadlockDetected:
			return errors.Join(ErrTransientConflict, err)
		}
	}
	return err
}
