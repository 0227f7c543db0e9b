package repository

// Option applies a configuration option to the TreapStore.
type Option func(*TreapStore)

// WithSeed fixes the priority sequence, for reproducible tree shapes.
func WithSeed(seed uint64) Option {
	return func(s *TreapStore) {
		s.rng = newRand(seed)
	}
}
