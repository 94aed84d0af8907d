package voting

import (
	"context"

	"github.com/emilythestrangee/reddit-clone/backend/internal/models"
)

// Store runs reconciliation steps atomically. fn either commits as a whole or
// leaves no trace.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the view of the vote ledger and post scores inside one transaction.
type Tx interface {
	// LockPost locks the post row until the transaction ends and returns its
	// current score, or ErrPostNotFound.
	LockPost(ctx context.Context, postID int) (int, error)

	// FindVote returns the ledger entry for (userID, postID), or nil when the
	// user has not voted.
	FindVote(ctx context.Context, userID, postID int) (*models.Vote, error)

	// InsertVote creates a ledger entry. A second entry for the same pair
	// fails with ErrDuplicateVote.
	InsertVote(ctx context.Context, userID, postID int, value Value) error

	UpdateVote(ctx context.Context, userID, postID int, value Value) error

	// AddScore applies score = score + delta in the store and returns the
	// resulting score.
	AddScore(ctx context.Context, postID, delta int) (int, error)

	// SumVotes returns the sum of all ledger values for postID.
	SumVotes(ctx context.Context, postID int) (int, error)
}
