package threadpool

import (
	"go.uber.org/zap"

	"github.com/minhd-vu/webserver/internal/clock/system"
	"github.com/minhd-vu/webserver/internal/id/uuid"
	"github.com/minhd-vu/webserver/internal/progress"
)

// DefaultQueueDepth is the job queue capacity used when none is configured.
const DefaultQueueDepth = 64

type settings struct {
	queueDepth int
	logger     *zap.Logger
	emitter    progress.Emitter
	ids        IDGenerator
	clock      Clock
}

func defaultSettings() settings {
	return settings{
		queueDepth: DefaultQueueDepth,
		logger:     zap.NewNop(),
		ids:        uuid.New(),
		clock:      system.New(),
	}
}

// Option customizes a Pool at construction time.
type Option func(*settings)

// WithQueueDepth sets the job queue capacity. Once the queue is full Execute
// blocks until a worker frees a slot. Zero makes every submission a direct
// hand-off to an idle worker; negative values keep the default.
func WithQueueDepth(depth int) Option {
	return func(s *settings) {
		if depth < 0 {
			depth = DefaultQueueDepth
		}
		s.queueDepth = depth
	}
}

// WithLogger sets the logger; nil keeps the no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithEmitter reports job lifecycle events to emitter.
func WithEmitter(emitter progress.Emitter) Option {
	return func(s *settings) {
		s.emitter = emitter
	}
}

// WithIDGenerator overrides how job IDs are minted.
func WithIDGenerator(ids IDGenerator) Option {
	return func(s *settings) {
		if ids != nil {
			s.ids = ids
		}
	}
}

// WithClock overrides the time source used for event timestamps.
func WithClock(clock Clock) Option {
	return func(s *settings) {
		if clock != nil {
			s.clock = clock
		}
	}
}
