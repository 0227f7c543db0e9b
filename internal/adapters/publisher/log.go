package publisher

import (
	"context"

	"github.com/okian/squadwatch/pkg/logger"
)

// Log writes summaries to the structured log.
type Log struct {
	log logger.Logger
}

// NewLog creates a log publisher. A nil logger uses the global one.
func NewLog(l logger.Logger) *Log {
	if l == nil {
		l = logger.Get().Named("publisher")
	}
	return &Log{log: l}
}

// PublishSummary implements Publisher.
func (p *Log) PublishSummary(ctx context.Context, text string) error {
	p.log.Info(ctx, "session summary", logger.String("text", text))
	return nil
}

// UpdateSummary implements Publisher.
func (p *Log) UpdateSummary(ctx context.Context, key, text string) error {
	p.log.Info(ctx, "live summary", logger.String("key", key), logger.String("text", text))
	return nil
}
