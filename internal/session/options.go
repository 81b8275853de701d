package session

import (
	"os"
	"time"

	"github.com/phuslu/log"
	"github.com/shirou/gopsutil/v3/mem"

	"gameboost/internal/logger"
	"gameboost/internal/maps"
)

// DefaultConcurrency bounds parallel primitive calls within one pass.
const DefaultConcurrency = 8

// MemoryStats returns the bytes of physical memory currently available.
type MemoryStats func() (uint64, error)

// Option configures a Manager, SuspensionRegistry or TweakLedger.
type Option func(*options)

type options struct {
	log         *log.Logger
	metrics     *Metrics
	concurrency int
	memStats    MemoryStats
	now         func() time.Time
	selfPID     uint32
	mapBackend  maps.Backend
}

func buildOptions(opts []Option) options {
	o := options{
		log:         logger.NewLoggerWithContext("session"),
		concurrency: DefaultConcurrency,
		memStats:    availableMemory,
		now:         time.Now,
		selfPID:     uint32(os.Getpid()),
		mapBackend:  maps.DefaultBackend,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger replaces the component logger.
func WithLogger(l *log.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithConcurrency bounds parallel primitive calls. Values below 1 are ignored.
func WithConcurrency(n int) Option {
	return func(o *options) {
		if n >= 1 {
			o.concurrency = n
		}
	}
}

// WithMemoryStats overrides the available-memory reader used by memory trim.
func WithMemoryStats(fn MemoryStats) Option {
	return func(o *options) {
		if fn != nil {
			o.memStats = fn
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithSelfPID sets the pid treated as the daemon itself, which is never
// suspended or trimmed.
func WithSelfPID(pid uint32) Option {
	return func(o *options) { o.selfPID = pid }
}

// WithRegistryMap selects the concurrent map backing the suspension registry.
func WithRegistryMap(b maps.Backend) Option {
	return func(o *options) {
		if b != "" {
			o.mapBackend = b
		}
	}
}

func availableMemory() (uint64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return vm.Available, nil
}
