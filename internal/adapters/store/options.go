package store

import "github.com/okian/squadwatch/pkg/logger"

// SnapshotOption configures a SnapshotStore.
type SnapshotOption func(*SnapshotStore)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) SnapshotOption {
	return func(s *SnapshotStore) {
		if l != nil {
			s.log = l
		}
	}
}
