// Package repository holds the in-memory roster ranking read model.
package repository

import (
	"context"

	"github.com/okian/squadwatch/internal/domain/model"
	"github.com/okian/squadwatch/internal/domain/types"
)

// Entry is a ranked roster row.
type Entry = types.Entry

// Store provides read/write access to the roster ranking.
type Store interface {
	// Replace swaps the whole roster for members, as seen in one snapshot.
	Replace(ctx context.Context, members []model.Member) error

	// Rank returns the current rank and score of a member.
	// Returns ErrNotFound if the member is unknown.
	Rank(ctx context.Context, name string) (Entry, error)

	// TopN returns the top-N entries ordered by score desc.
	TopN(ctx context.Context, n int) ([]Entry, error)

	// Count returns the number of members tracked.
	Count(ctx context.Context) int
}
