package kronroe

import (
	"time"

	"github.com/kronroe-db/kronroe/codec"
)

type options struct {
	codec      codec.Codec
	logger     *Logger
	now        func() time.Time
	syncWrites bool
	fulltext   bool
	vector     bool
	hybrid     bool
}

func defaultOptions() options {
	return options{
		codec:    codec.Default,
		logger:   NoopLogger(),
		now:      time.Now,
		fulltext: true,
		vector:   true,
	}
}

// Option configures constructor behavior.
//
// Options also carry the capability gates: a capability disabled here does
// not exist on the returned instance, and invoking it returns
// ErrFeatureUnavailable.
type Option func(*options)

// WithCodec configures the codec used for fact rows.
//
// If nil is passed, codec.Default is used. Changing codecs on an existing
// database file makes its rows unreadable.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithLogger configures structured logging. The default discards all
// output.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l == nil {
			l = NoopLogger()
		}
		o.logger = l
	}
}

// WithClock overrides the wall clock used for recorded_at and expired_at
// timestamps. Intended for tests; the default is time.Now, whose monotonic
// reading keeps recorded_at non-decreasing within a process.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithSyncWrites forces an fsync on every commit. Commits are durable
// either way; this removes the OS buffer from the crash window at a
// latency cost.
func WithSyncWrites(sync bool) Option {
	return func(o *options) {
		o.syncWrites = sync
	}
}

// WithoutFullText omits the full-text index. Search returns
// ErrFeatureUnavailable. Useful on constrained targets where the text
// index cache is unwanted weight.
func WithoutFullText() Option {
	return func(o *options) {
		o.fulltext = false
	}
}

// WithoutVector omits the vector index and the embedding ingest path.
// AssertFactWithEmbedding and SearchByVector return ErrFeatureUnavailable.
func WithoutVector() Option {
	return func(o *options) {
		o.vector = false
	}
}

// WithHybridSearch enables the experimental hybrid retrieval API. It
// requires both the full-text and vector capabilities; Open fails if
// either was disabled.
func WithHybridSearch() Option {
	return func(o *options) {
		o.hybrid = true
	}
}
