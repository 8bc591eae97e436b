package filecache

type options struct {
	segments int
	logger   *Logger
}

// Option configures FileCache construction.
type Option func(*options)

// WithSegments configures the number of independent lock domains. The
// value is rounded up to a power of two. Higher values reduce contention
// for concurrent readers at the cost of slightly coarser LRU ordering.
//
// If n <= 0 the default of 8 is used.
func WithSegments(n int) Option {
	return func(o *options) {
		o.segments = n
	}
}

// WithLogger configures the logger used for eviction and cleanup
// diagnostics. Defaults to NoopLogger.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l == nil {
			l = NoopLogger()
		}
		o.logger = l
	}
}
