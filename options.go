package enumstore

const (
	// DefaultInitialBufferSize is the capacity of the first entry buffer.
	DefaultInitialBufferSize = 64 * 1024
	// DefaultCompactionThreshold is the minimum amount of dead buffer space
	// before NeedsCompaction reports true.
	DefaultCompactionThreshold = 32 * 1024
	// DefaultDictionaryDegree is the branching factor of the dictionary tree.
	DefaultDictionaryDegree = 32
)

type options struct {
	initialBufferSize   uint32
	compactionThreshold uint64
	dictionaryDegree    int
	reclaimHook         func(Index)
	logger              *Logger
}

// Option configures store construction.
//
// Options exist to avoid exploding the API surface with constructor variants;
// the zero-option store is fully functional.
type Option func(*options)

// WithInitialBufferSize sets the capacity of the first entry buffer.
// Subsequent buffers grow geometrically from it.
func WithInitialBufferSize(size uint32) Option {
	return func(o *options) {
		if size > 0 {
			o.initialBufferSize = size
		}
	}
}

// WithCompactionThreshold sets the minimum amount of dead buffer space before
// NeedsCompaction reports true.
func WithCompactionThreshold(bytes uint64) Option {
	return func(o *options) {
		o.compactionThreshold = bytes
	}
}

// WithDictionaryDegree sets the branching factor of the dictionary tree.
func WithDictionaryDegree(degree int) Option {
	return func(o *options) {
		if degree > 1 {
			o.dictionaryDegree = degree
		}
	}
}

// WithReclaimHook installs a callback invoked once per reclaimed entry,
// before the entry leaves the dictionary. Posting-list structures use this to
// drop their per-value bookkeeping in step with the store (see the postings
// package).
//
// The hook runs on the writer path before the entry leaves the store, so it
// may still read the entry; it must not mutate the store.
func WithReclaimHook(hook func(Index)) Option {
	return func(o *options) {
		o.reclaimHook = hook
	}
}

// WithLogger sets the logger. If nil, logging is disabled.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func defaultOptions() options {
	return options{
		initialBufferSize:   DefaultInitialBufferSize,
		compactionThreshold: DefaultCompactionThreshold,
		dictionaryDegree:    DefaultDictionaryDegree,
		logger:              NoopLogger(),
	}
}
