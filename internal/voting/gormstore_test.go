package voting

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/emilythestrangee/reddit-clone/backend/internal/models"
	"github.com/emilythestrangee/reddit-clone/backend/internal/testutil"
)

func dbScore(t *testing.T, db *gorm.DB, postID int) int {
	t.Helper()
	var post models.Post
	require.NoError(t, db.First(&post, postID).Error)
	return post.Score
}

func dbLedgerSum(t *testing.T, db *gorm.DB, postID int) int {
	t.Helper()
	var sum int
	require.NoError(t, db.Model(&models.Vote{}).Select("COALESCE(SUM(value), 0)").Where("post_id = ?", postID).Scan(&sum).Error)
	return sum
}

func TestGormStore_Scenario(t *testing.T) {
	db := testutil.Postgres(t)
	a := testutil.CreateUser(t, db, "alice")
	b := testutil.CreateUser(t, db, "bob")
	post := testutil.CreatePost(t, db, a.ID, "hello")
	e := newTestEngine(NewGormStore(db), Options{MaxRetries: 3, VerifyScore: true})
	ctx := context.Background()

	steps := []struct {
		user  int
		value Value
		score int
	}{
		{a.ID, Up, 1},
		{b.ID, Up, 2},
		{a.ID, Down, 0},
		{a.ID, Down, 0},
	}
	for _, s := range steps {
		res, err := e.Apply(ctx, s.user, post.ID, s.value)
		require.NoError(t, err)
		assert.Equal(t, s.score, res.Score)
		assert.Equal(t, s.score, dbScore(t, db, post.ID))
	}

	var count int64
	require.NoError(t, db.Model(&models.Vote{}).Where("post_id = ?", post.ID).Count(&count).Error)
	assert.EqualValues(t, 2, count)
}

func TestGormStore_PostNotFound(t *testing.T) {
	db := testutil.Postgres(t)
	u := testutil.CreateUser(t, db, "carol")
	e := newTestEngine(NewGormStore(db), Options{MaxRetries: 3})

	_, err := e.Apply(context.Background(), u.ID, 999999, Up)
	assert.ErrorIs(t, err, ErrPostNotFound)

	var count int64
	require.NoError(t, db.Model(&models.Vote{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestGormStore_DuplicateInsertIsTranslated(t *testing.T) {
	db := testutil.Postgres(t)
	u := testutil.CreateUser(t, db, "dave")
	post := testutil.CreatePost(t, db, u.ID, "dup")
	store := NewGormStore(db)
	ctx := context.Background()

	require.NoError(t, store.InTx(ctx, func(tx Tx) error {
		return tx.InsertVote(ctx, u.ID, post.ID, Up)
	}))
	err := store.InTx(ctx, func(tx Tx) error {
		return tx.InsertVote(ctx, u.ID, post.ID, Down)
	})
	assert.ErrorIs(t, err, ErrDuplicateVote)
}

func TestGormStore_RollbackLeavesNoTrace(t *testing.T) {
	db := testutil.Postgres(t)
	u := testutil.CreateUser(t, db, "erin")
	post := testutil.CreatePost(t, db, u.ID, "rollback")
	store := NewGormStore(db)
	ctx := context.Background()

	err := store.InTx(ctx, func(tx Tx) error {
		if _, err := tx.LockPost(ctx, post.ID); err != nil {
			return err
		}
		if err := tx.InsertVote(ctx, u.ID, post.ID, Up); err != nil {
			return err
		}
		return ErrInvariantViolation
	})
	assert.ErrorIs(t, err, ErrInvariantViolation)
	assert.Equal(t, 0, dbScore(t, db, post.ID))
	assert.Equal(t, 0, dbLedgerSum(t, db, post.ID))
}

func TestGormStore_ConcurrentFreshVotes(t *testing.T) {
	db := testutil.Postgres(t)
	author := testutil.CreateUser(t, db, "author")
	post := testutil.CreatePost(t, db, author.ID, "popular")
	e := newTestEngine(NewGormStore(db), Options{MaxRetries: 5})

	const n = 25
	users := make([]int, n)
	for i := range users {
		users[i] = testutil.CreateUser(t, db, "voter"+string(rune('a'+i))).ID
	}

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for _, id := range users {
		wg.Add(1)
		go func(user int) {
			defer wg.Done()
			_, err := e.Apply(context.Background(), user, post.ID, Up)
			errs <- err
		}(id)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, n, dbScore(t, db, post.ID))
	assert.Equal(t, n, dbLedgerSum(t, db, post.ID))
}

func TestGormStore_ConcurrentSameUser(t *testing.T) {
	db := testutil.Postgres(t)
	u := testutil.CreateUser(t, db, "flipper")
	post := testutil.CreatePost(t, db, u.ID, "contested")
	e := newTestEngine(NewGormStore(db), Options{MaxRetries: 5})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v := Up
			if i%2 == 1 {
				v = Down
			}
			_, err := e.Apply(context.Background(), u.ID, post.ID, v)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	score := dbScore(t, db, post.ID)
	assert.Equal(t, dbLedgerSum(t, db, post.ID), score)
	assert.Contains(t, []int{-1, 1}, score)
}
