package voting

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const postID = 1

func newTestEngine(store Store, opts Options) *Engine {
	if opts.InitialBackoff == 0 {
		opts.InitialBackoff = time.Microsecond
	}
	return NewEngine(store, opts, zerolog.Nop())
}

// seed gives post postID the score s through votes by users 1000+.
func seed(t *testing.T, e *Engine, s int) {
	t.Helper()
	v := Up
	if s < 0 {
		v, s = Down, -s
	}
	for i := 0; i < s; i++ {
		_, err := e.Apply(context.Background(), 1000+i, postID, v)
		require.NoError(t, err)
	}
}

func TestApply_Scenario(t *testing.T) {
	store := newMemStore(postID)
	e := newTestEngine(store, Options{VerifyScore: true})
	ctx := context.Background()
	const userA, userB = 1, 2

	steps := []struct {
		user    int
		value   Value
		score   int
		outcome Outcome
	}{
		{userA, Up, 1, Created},
		{userB, Up, 2, Created},
		{userA, Down, 0, Changed},
		{userA, Down, 0, Unchanged},
	}
	for _, s := range steps {
		res, err := e.Apply(ctx, s.user, postID, s.value)
		require.NoError(t, err)
		assert.Equal(t, s.score, res.Score)
		assert.Equal(t, s.outcome, res.Outcome)
		assert.Equal(t, s.score, store.score(postID))
	}

	v, ok := store.vote(userA, postID)
	require.True(t, ok)
	assert.Equal(t, -1, v)
}

func TestApply_FreshVote(t *testing.T) {
	tests := []struct {
		name  string
		start int
		value Value
	}{
		{"up from zero", 0, Up},
		{"down from zero", 0, Down},
		{"up from positive", 3, Up},
		{"down from negative", -2, Down},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore(postID)
			e := newTestEngine(store, Options{})
			seed(t, e, tt.start)

			res, err := e.Apply(context.Background(), 1, postID, tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.start+int(tt.value), res.Score)
			assert.Equal(t, Created, res.Outcome)
		})
	}
}

func TestApply_Flip(t *testing.T) {
	store := newMemStore(postID)
	e := newTestEngine(store, Options{})
	seed(t, e, 4)
	ctx := context.Background()

	_, err := e.Apply(ctx, 1, postID, Down)
	require.NoError(t, err)
	before := store.score(postID)

	res, err := e.Apply(ctx, 1, postID, Up)
	require.NoError(t, err)
	assert.Equal(t, before+2, res.Score)
	assert.Equal(t, Changed, res.Outcome)

	res, err = e.Apply(ctx, 1, postID, Down)
	require.NoError(t, err)
	assert.Equal(t, before, res.Score)
}

func TestApply_ResubmitIsNoop(t *testing.T) {
	store := newMemStore(postID)
	e := newTestEngine(store, Options{})
	ctx := context.Background()

	first, err := e.Apply(ctx, 1, postID, Up)
	require.NoError(t, err)
	second, err := e.Apply(ctx, 1, postID, Up)
	require.NoError(t, err)

	assert.Equal(t, first.Score, second.Score)
	assert.Equal(t, Unchanged, second.Outcome)
	v, ok := store.vote(1, postID)
	assert.True(t, ok, "resubmission must not retract the vote")
	assert.Equal(t, 1, v)
}

func TestApply_PostNotFound(t *testing.T) {
	store := newMemStore(postID)
	e := newTestEngine(store, Options{MaxRetries: 3})

	_, err := e.Apply(context.Background(), 1, 404, Up)
	assert.ErrorIs(t, err, ErrPostNotFound)

	assert.Equal(t, 1, store.txCount, "not found must not be retried")
	_, ok := store.vote(1, 404)
	assert.False(t, ok)
	assert.Equal(t, 0, store.score(postID))
	assert.Len(t, store.votes, 0)
}

func TestApply_RejectsBadInput(t *testing.T) {
	store := newMemStore(postID)
	e := newTestEngine(store, Options{})
	ctx := context.Background()

	_, err := e.Apply(ctx, 0, postID, Up)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	for _, v := range []Value{0, 2, -3} {
		_, err = e.Apply(ctx, 1, postID, v)
		assert.ErrorIs(t, err, ErrInvalidVote, "value %d", v)
	}
	assert.Equal(t, 0, store.txCount)
}

func TestApply_RetriesTransientConflict(t *testing.T) {
	store := newMemStore(postID)
	store.commitFailures = 2
	e := newTestEngine(store, Options{MaxRetries: 3})

	res, err := e.Apply(context.Background(), 1, postID, Up)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Score)
	assert.Equal(t, 3, store.txCount)
	assert.Equal(t, 1, store.score(postID))
}

func TestApply_RetryBudgetExhausted(t *testing.T) {
	store := newMemStore(postID)
	store.commitFailures = 10
	e := newTestEngine(store, Options{MaxRetries: 2})

	_, err := e.Apply(context.Background(), 1, postID, Up)
	assert.ErrorIs(t, err, ErrTransientConflict)

	assert.Equal(t, 3, store.txCount)
	assert.Equal(t, 0, store.score(postID))
	_, ok := store.vote(1, postID)
	assert.False(t, ok, "ledger write must not survive a failed commit")
}

func TestApply_DuplicateInsertBecomesExistingVote(t *testing.T) {
	tests := []struct {
		name    string
		value   Value
		score   int
		outcome Outcome
	}{
		// the racing transaction recorded an up vote first
		{"same value", Up, 1, Unchanged},
		{"opposite value", Down, -1, Changed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore(postID)
			store.raceInsert = Up
			e := newTestEngine(store, Options{MaxRetries: 1, VerifyScore: true})

			res, err := e.Apply(context.Background(), 1, postID, tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.outcome, res.Outcome)
			assert.Equal(t, store.ledgerSum(postID), store.score(postID))
		})
	}
}

func TestApply_VerifyScoreDetectsDrift(t *testing.T) {
	store := newMemStore(postID)
	store.scores[postID] = 7 // no ledger entries back this
	e := newTestEngine(store, Options{VerifyScore: true, MaxRetries: 3})

	_, err := e.Apply(context.Background(), 1, postID, Up)
	assert.ErrorIs(t, err, ErrInvariantViolation)
	assert.Equal(t, 1, store.txCount)
	assert.Equal(t, 7, store.score(postID), "drift must not be corrected silently")
	_, ok := store.vote(1, postID)
	assert.False(t, ok)
}

func TestApply_CancelledContext(t *testing.T) {
	store := newMemStore(postID)
	store.commitFailures = 100
	e := newTestEngine(store, Options{MaxRetries: 50, InitialBackoff: 50 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := e.Apply(ctx, 1, postID, Up)
	assert.Error(t, err)
	assert.Equal(t, 0, store.score(postID))
}

func TestApply_SumInvariantRandomSequence(t *testing.T) {
	store := newMemStore(postID)
	e := newTestEngine(store, Options{VerifyScore: true})
	rng := rand.New(rand.NewSource(42))
	ctx := context.Background()

	for i := 0; i < 500; i++ {
		user := 1 + rng.Intn(20)
		v := Up
		if rng.Intn(2) == 0 {
			v = Down
		}
		res, err := e.Apply(ctx, user, postID, v)
		require.NoError(t, err)
		assert.Equal(t, store.ledgerSum(postID), res.Score)
	}
	assert.Equal(t, store.ledgerSum(postID), store.score(postID))
}

func TestApply_ConcurrentFreshVotes(t *testing.T) {
	store := newMemStore(postID)
	e := newTestEngine(store, Options{MaxRetries: 3})
	const n = 50

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 1; i <= n; i++ {
		wg.Add(1)
		go func(user int) {
			defer wg.Done()
			_, err := e.Apply(context.Background(), user, postID, Up)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, n, store.score(postID))
	assert.Equal(t, n, store.ledgerSum(postID))
}

func TestValueAndOutcomeStrings(t *testing.T) {
	assert.Equal(t, "up", Up.String())
	assert.Equal(t, "down", Down.String())
	assert.Equal(t, "Value(0)", Value(0).String())
	assert.Equal(t, "created", Created.String())
	assert.Equal(t, "unchanged", Unchanged.String())
	assert.Equal(t, "changed", Changed.String())
}
