package voting

import (
	"context"
	"maps"
	"sync"

	"github.com/emilythestrangee/reddit-clone/backend/internal/models"
)

type voteKey struct{ user, post int }

// memStore is a transactional in-memory Store. Transactions run one at a
// time on a copy of the state, which is published only on commit.
type memStore struct {
	mu     sync.Mutex
	scores map[int]int
	votes  map[voteKey]int

	// commitFailures makes the next n commits fail with ErrTransientConflict.
	commitFailures int
	// raceInsert, when non-zero, simulates a concurrent transaction by the
	// same user that commits this value just before ours inserts.
	raceInsert Value
	txCount    int
}

func newMemStore(postIDs ...int) *memStore {
	s := &memStore{scores: map[int]int{}, votes: map[voteKey]int{}}
	for _, id := range postIDs {
		s.scores[id] = 0
	}
	return s
}

func (s *memStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txCount++

	tx := &memTx{store: s, scores: maps.Clone(s.scores), votes: maps.Clone(s.votes)}
	if err := fn(tx); err != nil {
		return err
	}
	if s.commitFailures > 0 {
		s.commitFailures--
		return ErrTransientConflict
	}
	s.scores, s.votes = tx.scores, tx.votes
	return nil
}

func (s *memStore) score(postID int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scores[postID]
}

func (s *memStore) vote(userID, postID int) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.votes[voteKey{userID, postID}]
	return v, ok
}

func (s *memStore) ledgerSum(postID int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum := 0
	for k, v := range s.votes {
		if k.post == postID {
			sum += v
		}
	}
	return sum
}

type memTx struct {
	store  *memStore
	scores map[int]int
	votes  map[voteKey]int
}

func (t *memTx) LockPost(_ context.Context, postID int) (int, error) {
	score, ok := t.scores[postID]
	if !ok {
		return 0, ErrPostNotFound
	}
	return score, nil
}

func (t *memTx) FindVote(_ context.Context, userID, postID int) (*models.Vote, error) {
	v, ok := t.votes[voteKey{userID, postID}]
	if !ok {
		return nil, nil
	}
	return &models.Vote{UserID: userID, PostID: postID, Value: v}, nil
}

func (t *memTx) InsertVote(_ context.Context, userID, postID int, value Value) error {
	k := voteKey{userID, postID}
	if race := t.store.raceInsert; race != 0 {
		t.store.raceInsert = 0
		t.store.votes[k] = int(race)
		t.store.scores[postID] += int(race)
		return ErrDuplicateVote
	}
	if _, ok := t.votes[k]; ok {
		return ErrDuplicateVote
	}
	t.votes[k] = int(value)
	return nil
}

func (t *memTx) UpdateVote(_ context.Context, userID, postID int, value Value) error {
	k := voteKey{userID, postID}
	if _, ok := t.votes[k]; !ok {
		return ErrTransientConflict
	}
	t.votes[k] = int(value)
	return nil
}

func (t *memTx) AddScore(_ context.Context, postID, delta int) (int, error) {
	score, ok := t.scores[postID]
	if !ok {
		return 0, ErrPostNotFound
	}
	t.scores[postID] = score + delta
	return score + delta, nil
}

func (t *memTx) SumVotes(_ context.Context, postID int) (int, error) {
	sum := 0
	for k, v := range t.votes {
		if k.post == postID {
			sum += v
		}
	}
	return sum, nil
}
