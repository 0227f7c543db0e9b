package repository

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"testing"

	"github.com/okian/squadwatch/internal/domain/model"
)

func members(pairs ...any) []model.Member {
	out := make([]model.Member, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, model.Member{Name: pairs[i].(string), Score: int64(pairs[i+1].(int))})
	}
	return out
}

func TestTreapStore_BasicOperations(t *testing.T) {
	ctx := context.Background()
	store := NewTreapStore(WithSeed(1))

	if count := store.Count(ctx); count != 0 {
		t.Errorf("expected count 0, got %d", count)
	}

	if err := store.Replace(ctx, []model.Member{{Name: "Alice", Score: 850, Role: "Commander"}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count := store.Count(ctx); count != 1 {
		t.Errorf("expected count 1, got %d", count)
	}

	entry, err := store.Rank(ctx, "Alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.Rank != 1 || entry.Score != 850 || entry.Role != "Commander" {
		t.Errorf("unexpected entry %+v", entry)
	}

	entries, err := store.TopN(ctx, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "Alice" {
		t.Errorf("unexpected top entries %+v", entries)
	}
}

func TestTreapStore_Ordering(t *testing.T) {
	ctx := context.Background()
	store := NewTreapStore(WithSeed(2))

	if err := store.Replace(ctx, members("m1", 85, "m2", 95, "m3", 75, "m4", 100, "m5", 80)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entries, err := store.TopN(ctx, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(entries))
	}

	expectedOrder := []string{"m4", "m2", "m1", "m5", "m3"}
	for i, name := range expectedOrder {
		if entries[i].Name != name {
			t.Errorf("position %d: expected %s, got %s", i, name, entries[i].Name)
		}
		if entries[i].Rank != i+1 {
			t.Errorf("position %d: expected rank %d, got %d", i, i+1, entries[i].Rank)
		}
	}

	entry, err := store.Rank(ctx, "m5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.Rank != 4 {
		t.Errorf("expected m5 at rank 4, got %d", entry.Rank)
	}
}

func TestTreapStore_TieBreaking(t *testing.T) {
	ctx := context.Background()
	store := NewTreapStore(WithSeed(3))

	if err := store.Replace(ctx, members("Bravo", 100, "Alpha", 100)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entries, err := store.TopN(ctx, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entries[0].Name != "Alpha" || entries[1].Name != "Bravo" {
		t.Errorf("expected Alpha before Bravo, got %+v", entries)
	}
}

func TestTreapStore_ReplaceTracksRosterChanges(t *testing.T) {
	ctx := context.Background()
	store := NewTreapStore(WithSeed(4))

	if err := store.Replace(ctx, members("A", 10, "B", 20, "C", 30)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// B leaves, D joins, C drops below A.
	if err := store.Replace(ctx, members("A", 10, "C", 5, "D", 40)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if count := store.Count(ctx); count != 3 {
		t.Errorf("expected count 3, got %d", count)
	}
	if _, err := store.Rank(ctx, "B"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for departed member, got %v", err)
	}

	entries, _ := store.TopN(ctx, 10)
	got := make([]string, 0, len(entries))
	for _, e := range entries {
		got = append(got, e.Name)
	}
	if fmt.Sprint(got) != "[D A C]" {
		t.Errorf("expected [D A C], got %v", got)
	}
	if nsize(store.root) != 3 {
		t.Errorf("tree size %d does not match count", nsize(store.root))
	}
}

func TestTreapStore_EdgeCases(t *testing.T) {
	ctx := context.Background()
	store := NewTreapStore()

	if _, err := store.TopN(ctx, 0); !errors.Is(err, ErrInvalidLimit) {
		t.Errorf("expected ErrInvalidLimit, got %v", err)
	}
	if _, err := store.TopN(ctx, -1); !errors.Is(err, ErrInvalidLimit) {
		t.Errorf("expected ErrInvalidLimit, got %v", err)
	}
	if _, err := store.Rank(ctx, "nobody"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	// Blank names are not ranked, duplicates keep the last row.
	if err := store.Replace(ctx, members("  ", 5, "X", 1, "X", 7)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count := store.Count(ctx); count != 1 {
		t.Errorf("expected count 1, got %d", count)
	}
	entry, _ := store.Rank(ctx, "X")
	if entry.Score != 7 {
		t.Errorf("expected score 7, got %d", entry.Score)
	}

	if err := store.Replace(ctx, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.Count(ctx) != 0 || store.root != nil {
		t.Error("expected an empty store after replacing with nothing")
	}
}

func TestTreapStore_RankMatchesSortedOrder(t *testing.T) {
	ctx := context.Background()
	store := NewTreapStore(WithSeed(42))
	rng := rand.New(rand.NewPCG(7, 7)) //nolint:gosec // test data

	for round := 0; round < 20; round++ {
		roster := make([]model.Member, 0, 60)
		for i := 0; i < 60; i++ {
			if rng.IntN(4) == 0 {
				continue
			}
			roster = append(roster, model.Member{Name: fmt.Sprintf("p%02d", i), Score: int64(rng.IntN(50))})
		}
		if err := store.Replace(ctx, roster); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		sort.Slice(roster, func(i, j int) bool {
			return less(roster[i].Score, roster[i].Name, roster[j].Score, roster[j].Name)
		})
		for i, m := range roster {
			entry, err := store.Rank(ctx, m.Name)
			if err != nil {
				t.Fatalf("round %d: unexpected error for %s: %v", round, m.Name, err)
			}
			if entry.Rank != i+1 {
				t.Fatalf("round %d: %s expected rank %d, got %d", round, m.Name, i+1, entry.Rank)
			}
		}
		if nsize(store.root) != len(roster) {
			t.Fatalf("round %d: tree size %d, roster %d", round, nsize(store.root), len(roster))
		}
	}
}

func TestTreapStore_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	store := NewTreapStore()
	if err := store.Replace(ctx, members("A", 3, "B", 2, "C", 1)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_ = store.Replace(ctx, members("A", 3+i, "B", 2, "C", 1))
		}(i)
		go func() {
			defer wg.Done()
			if entries, err := store.TopN(ctx, 2); err != nil || len(entries) != 2 {
				t.Errorf("unexpected TopN result %v %v", entries, err)
			}
		}()
	}
	wg.Wait()

	if count := store.Count(ctx); count != 3 {
		t.Errorf("expected count 3, got %d", count)
	}
}
