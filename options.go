package fleetdb

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/hupe1980/fleetdb/internal/fs"
	"github.com/hupe1980/fleetdb/store"
)

type options struct {
	logger        *Logger
	fsys          fs.FileSystem
	storeConfig   store.Config
	cacheCapacity int
	gpsBufferSize int
	gpsRate       rate.Limit
	gpsBurst      int
	budgetPath    string
	clock         func() time.Time
}

func defaultOptions() options {
	return options{
		logger:        NewLogger(nil),
		fsys:          fs.Default,
		storeConfig:   store.DefaultConfig(),
		cacheCapacity: 0, // cache package default
		gpsBufferSize: 50000,
		gpsRate:       rate.Inf,
		gpsBurst:      1,
		clock:         time.Now,
	}
}

// Option configures Create/Open behavior.
type Option func(*options)

// WithLogger sets the logger. Passing nil keeps the default.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithFileSystem overrides the file system implementation (used by tests).
func WithFileSystem(fsys fs.FileSystem) Option {
	return func(o *options) {
		if fsys != nil {
			o.fsys = fsys
		}
	}
}

// WithCapacities sets the table capacities for Create. Zero fields keep
// their defaults. Open ignores this option; capacities come from the file.
func WithCapacities(cfg store.Config) Option {
	return func(o *options) {
		o.storeConfig = cfg
	}
}

// WithCreatorInfo stamps the creator field into the header on Create.
func WithCreatorInfo(info string) Option {
	return func(o *options) {
		o.storeConfig.CreatorInfo = info
	}
}

// WithCacheCapacity bounds the entity cache to n entries.
func WithCacheCapacity(n int) Option {
	return func(o *options) {
		o.cacheCapacity = n
	}
}

// WithGPSBufferSize sets the capacity of the streaming GPS ring buffer.
func WithGPSBufferSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.gpsBufferSize = n
		}
	}
}

// WithGPSRateLimit caps GPS ingestion to r points per second with the given
// burst. The default is unlimited.
func WithGPSRateLimit(r float64, burst int) Option {
	return func(o *options) {
		if r > 0 && burst > 0 {
			o.gpsRate = rate.Limit(r)
			o.gpsBurst = burst
		}
	}
}

// WithBudgetPath sets where the budget book is persisted. The default is
// the database path with a ".budgets.json" suffix.
func WithBudgetPath(path string) Option {
	return func(o *options) {
		o.budgetPath = path
	}
}

// WithClock overrides the time source (used by tests).
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}
