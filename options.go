package xlpivot

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const defaultLabelCacheSize = 4096

// options holds the configuration shared by PivotStore, Evaluator and
// FilterStore. Each component reads the fields it needs.
type options struct {
	logger         *zap.Logger
	registerer     prometheus.Registerer
	labelCacheSize int
	clock          func() time.Time
	policy         OperatorPolicy
	document       *Document
}

func defaultOptions() *options {
	return &options{
		logger:         zap.NewNop(),
		labelCacheSize: defaultLabelCacheSize,
		clock:          time.Now,
		policy:         PolicyDegrade,
	}
}

func buildOptions(opts []Option) *options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Option configures a PivotStore, Evaluator or FilterStore.
type Option func(*options)

// WithLogger sets the logger (default: no-op).
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithRegisterer registers the store's metrics with reg. Without it the
// metrics live in a private registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithLabelCacheSize bounds the number of resolved relational names the
// store remembers across cache rebuilds (default: 4096).
func WithLabelCacheSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.labelCacheSize = n
		}
	}
}

// WithClock sets the time source used for cache timestamps and relative date
// filters (default: time.Now).
func WithClock(clock func() time.Time) Option {
	return func(o *options) { o.clock = clock }
}

// WithOperatorPolicy sets how the evaluator treats unknown aggregation
// operators (default: PolicyDegrade).
func WithOperatorPolicy(p OperatorPolicy) Option {
	return func(o *options) { o.policy = p }
}

// WithDocument attaches the document whose FILTER.VALUE references are
// rewritten when a filter label changes.
func WithDocument(doc *Document) Option {
	return func(o *options) { o.document = doc }
}
