// Package publisher delivers plain-text session summaries to a reporting
// channel. Formatting and transport beyond that are the channel's concern.
package publisher

import (
	"context"
	"errors"
)

// ErrDelivery wraps any failure to hand a summary to the channel.
var ErrDelivery = errors.New("summary delivery failed")

// Publisher is the reporting channel collaborator.
type Publisher interface {
	// PublishSummary posts a final summary.
	PublishSummary(ctx context.Context, text string) error
	// UpdateSummary refreshes the live summary for a window key.
	UpdateSummary(ctx context.Context, key, text string) error
}
