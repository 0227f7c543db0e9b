package repository

import (
	"context"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/okian/squadwatch/internal/domain/model"
	"github.com/okian/squadwatch/pkg/metrics"
)

// Treap-based, in-memory Store implementation.
//
// Ordering: score DESC, then name ASC (deterministic).
// "less" means ranks earlier, so in-order traversal yields the roster from
// best to worst. Each node tracks its subtree size, which makes Rank
// O(log n) without a full walk.

type record struct {
	score int64
	role  string
}

type node struct {
	name  string
	score int64
	prio  uint64
	left  *node
	right *node
	size  int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

// less returns true if (aScore, aName) appears before (bScore, bName).
func less(aScore int64, aName string, bScore int64, bName string) bool {
	if aScore != bScore {
		return aScore > bScore
	}
	return aName < bName
}

func rotateRight(y *node) *node {
	x := y.left
	t2 := x.right
	x.right = y
	y.left = t2
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	t2 := y.left
	y.left = x
	x.right = t2
	fix(x)
	fix(y)
	return y
}

func insert(n *node, name string, score int64, prio uint64) *node {
	if n == nil {
		return &node{name: name, score: score, prio: prio, size: 1}
	}
	if less(score, name, n.score, n.name) {
		n.left = insert(n.left, name, score, prio)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, name, score, prio)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, name string, score int64) *node {
	if n == nil {
		return nil
	}
	if score == n.score && name == n.name {
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, name, score)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, name, score)
		}
	} else if less(score, name, n.score, n.name) {
		n.left = deleteNode(n.left, name, score)
	} else {
		n.right = deleteNode(n.right, name, score)
	}
	fix(n)
	return n
}

// position returns the zero-based in-order index of (score, name).
func position(n *node, name string, score int64) int {
	idx := 0
	for n != nil {
		switch {
		case score == n.score && name == n.name:
			return idx + nsize(n.left)
		case less(score, name, n.score, n.name):
			n = n.left
		default:
			idx += nsize(n.left) + 1
			n = n.right
		}
	}
	return -1
}

// collectTopN appends up to limit entries in rank order.
func collectTopN(n *node, limit int, records map[string]record, out *[]Entry) {
	if n == nil || len(*out) >= limit {
		return
	}
	collectTopN(n.left, limit, records, out)
	if len(*out) < limit {
		rec := records[n.name]
		*out = append(*out, Entry{Rank: len(*out) + 1, Name: n.name, Score: rec.score, Role: rec.role})
	}
	if len(*out) < limit {
		collectTopN(n.right, limit, records, out)
	}
}

// TreapStore implements Store.
type TreapStore struct {
	mu     sync.RWMutex
	root   *node
	byName map[string]record
	rng    *rand.Rand
}

// NewTreapStore constructs an empty store.
func NewTreapStore(opts ...Option) *TreapStore {
	s := &TreapStore{
		byName: make(map[string]record),
		rng:    rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())), //nolint:gosec // tree balance only
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) //nolint:gosec // tree balance only
}

// Replace implements Store.Replace. Members with an empty name are skipped;
// a repeated name keeps the last row.
func (s *TreapStore) Replace(_ context.Context, members []model.Member) error {
	next := make(map[string]record, len(members))
	for _, m := range members {
		name := strings.TrimSpace(m.Name)
		if name == "" {
			continue
		}
		next[name] = record{score: m.Score, role: m.Role}
	}

	s.mu.Lock()
	for name, old := range s.byName {
		if rec, ok := next[name]; !ok || rec.score != old.score {
			s.root = deleteNode(s.root, name, old.score)
		}
	}
	for name, rec := range next {
		if old, ok := s.byName[name]; ok && old.score == rec.score {
			continue
		}
		s.root = insert(s.root, name, rec.score, s.rng.Uint64())
	}
	s.byName = next
	count := len(next)
	s.mu.Unlock()

	metrics.UpdateRosterMembers(count)
	return nil
}

// Rank returns the current rank and score for a member in O(log n).
// Ranks are 1-based positions, so equal scores get distinct ranks ordered by name.
func (s *TreapStore) Rank(_ context.Context, name string) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byName[name]
	if !ok {
		return Entry{}, ErrNotFound
	}
	pos := position(s.root, name, rec.score)
	if pos < 0 {
		return Entry{}, ErrNotFound
	}
	return Entry{Rank: pos + 1, Name: name, Score: rec.score, Role: rec.role}, nil
}

// TopN returns the top N entries ordered by score desc.
func (s *TreapStore) TopN(_ context.Context, n int) ([]Entry, error) {
	if n < 1 {
		return nil, ErrInvalidLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, 0, min(n, len(s.byName)))
	collectTopN(s.root, n, s.byName, &out)
	return out, nil
}

// Count returns the number of members.
func (s *TreapStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byName)
}
