// Package voting keeps the per-user vote ledger and the denormalized post
// score in step.
//
// Every vote runs as one transaction: the post row is locked, the caller's
// ledger entry is read, and the ledger write plus the score delta are applied
// together. Post.score therefore always equals the sum of the post's ledger
// values outside an in-flight transaction.
//
// Resubmitting the vote a user already holds is a no-op; it does not retract
// the vote.
package voting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("reddit.voting")

var (
	ErrUnauthenticated    = errors.New("voting: no authenticated user")
	ErrInvalidVote        = errors.New("voting: vote value must be -1 or 1")
	ErrPostNotFound       = errors.New("voting: post not found")
	ErrDuplicateVote      = errors.New("voting: duplicate vote")
	ErrTransientConflict  = errors.New("voting: transient conflict")
	ErrInvariantViolation = errors.New("voting: score does not match ledger")
)

// Value is a vote direction.
type Value int

const (
	Down Value = -1
	Up   Value = 1
)

func (v Value) Valid() bool {
	return v == Up || v == Down
}

func (v Value) String() string {
	switch v {
	case Up:
		return "up"
	case Down:
		return "down"
	}
	return fmt.Sprintf("Value(%d)", int(v))
}

// Outcome says which ledger transition a vote caused.
type Outcome int

const (
	// Created means the user had no vote and one was recorded.
	Created Outcome = iota + 1
	// Unchanged means the user already held this vote.
	Unchanged
	// Changed means the user's vote flipped direction.
	Changed
)

func (o Outcome) String() string {
	switch o {
	case Created:
		return "created"
	case Unchanged:
		return "unchanged"
	case Changed:
		return "changed"
	}
	return "unknown"
}

type Result struct {
	Score   int
	Outcome Outcome
}

type Options struct {
	// MaxRetries bounds how often a transiently failing vote is retried.
	MaxRetries int
	// VerifyScore re-sums the ledger inside every vote transaction and
	// aborts with ErrInvariantViolation on a mismatch.
	VerifyScore bool
	// InitialBackoff is the first retry delay. Zero means 10ms.
	InitialBackoff time.Duration
}

type Engine struct {
	store Store
	opts  Options
	log   zerolog.Logger
}

func NewEngine(store Store, opts Options, log zerolog.Logger) *Engine {
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 10 * time.Millisecond
	}
	return &Engine{
		store: store,
		opts:  opts,
		log:   log.With().Str("component", "voting").Logger(),
	}
}

// Apply records actorID's vote on postID and returns the post's score after
// commit.
func (e *Engine) Apply(ctx context.Context, actorID, postID int, desired Value) (Result, error) {
	ctx, span := tracer.Start(ctx, "voting.Apply", trace.WithAttributes(
		attribute.Int("vote.user_id", actorID),
		attribute.Int("vote.post_id", postID),
		attribute.Int("vote.value", int(desired)),
	))
	defer span.End()
	start := time.Now()

	res, err := e.apply(ctx, actorID, postID, desired)

	voteDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		voteTotal.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}
	voteTotal.WithLabelValues(res.Outcome.String()).Inc()
	span.SetAttributes(
		attribute.String("vote.outcome", res.Outcome.String()),
		attribute.Int("vote.score", res.Score),
	)
	return res, nil
}

func (e *Engine) apply(ctx context.Context, actorID, postID int, desired Value) (Result, error) {
	if actorID == 0 {
		return Result{}, ErrUnauthenticated
	}
	if !desired.Valid() {
		return Result{}, ErrInvalidVote
	}

	var res Result
	attempt := 0
	op := func() error {
		attempt++
		if attempt > 1 {
			voteRetries.Inc()
			e.log.Debug().Int("attempt", attempt).Int("post_id", postID).Msg("retrying vote")
		}
		err := e.store.InTx(ctx, func(tx Tx) error {
			var err error
			res, err = e.reconcile(ctx, tx, actorID, postID, desired)
			return err
		})
		if err == nil || retryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.opts.InitialBackoff
	b.MaxInterval = 20 * e.opts.InitialBackoff
	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, uint64(e.opts.MaxRetries)), ctx))
	switch {
	case err == nil:
		return res, nil
	case retryable(err):
		e.log.Warn().Err(err).Int("post_id", postID).Int("attempts", attempt).Msg("vote retries exhausted")
		if errors.Is(err, ErrTransientConflict) {
			return Result{}, err
		}
		return Result{}, fmt.Errorf("%w: %w", ErrTransientConflict, err)
	case errors.Is(err, ErrInvariantViolation):
		e.log.Error().Err(err).Int("post_id", postID).Int("user_id", actorID).Msg("score invariant violated")
	}
	return Result{}, err
}

// A duplicate insert means another transaction recorded this user's vote
// first; the retry reads that entry and takes the flip or no-op branch.
func retryable(err error) bool {
	return errors.Is(err, ErrTransientConflict) || errors.Is(err, ErrDuplicateVote)
}

func (e *Engine) reconcile(ctx context.Context, tx Tx, actorID, postID int, desired Value) (Result, error) {
	score, err := tx.LockPost(ctx, postID)
	if err != nil {
		return Result{}, err
	}
	existing, err := tx.FindVote(ctx, actorID, postID)
	if err != nil {
		return Result{}, err
	}

	var (
		outcome Outcome
		delta   int
	)
	switch {
	case existing == nil:
		if err := tx.InsertVote(ctx, actorID, postID, desired); err != nil {
			return Result{}, err
		}
		outcome, delta = Created, int(desired)
	case Value(existing.Value) == desired:
		return Result{Score: score, Outcome: Unchanged}, nil
	default:
		if err := tx.UpdateVote(ctx, actorID, postID, desired); err != nil {
			return Result{}, err
		}
		// old and new are opposite, so this is 2*desired
		outcome, delta = Changed, int(desired)-existing.Value
	}

	score, err = tx.AddScore(ctx, postID, delta)
	if err != nil {
		return Result{}, err
	}
	if e.opts.VerifyScore {
		sum, err := tx.SumVotes(ctx, postID)
		if err != nil {
			return Result{}, err
		}
		if sum != score {
			return Result{}, fmt.Errorf("%w: post %d has score %d, ledger sums to %d",
				ErrInvariantViolation, postID, score, sum)
		}
	}
	return Result{Score: score, Outcome: outcome}, nil
}
