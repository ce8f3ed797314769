// Package fleetdb is an embedded record store for fleet-management data.
// It persists drivers, vehicles, trips, expenses, maintenance, documents and
// incidents in a single flat binary file of fixed-size, fixed-offset record
// slots, and layers domain managers (trips, expenses, incidents, drivers,
// vehicles) with business rules on top.
package fleetdb

import (
	"sync"
	"sync/atomic"

	"github.com/hupe1980/fleetdb/cache"
	"github.com/hupe1980/fleetdb/record"
	"github.com/hupe1980/fleetdb/store"
)

// FleetDB owns the record store, the cache and the domain managers. All
// methods are safe for concurrent use within one process; the store
// serializes file access, while multi-step manager operations are not
// atomic across their constituent record accesses.
type FleetDB struct {
	store *store.Store
	cache *cache.Cache
	log   *Logger
	opts  options

	Trips     *TripManager
	Expenses  *ExpenseManager
	Incidents *IncidentManager
	Drivers   *DriverManager
	Vehicles  *VehicleManager

	nextDocID atomic.Uint64

	closeOnce sync.Once
	closeErr  error
}

// Create creates a new database file at path and returns an open database.
func Create(path string, opts ...Option) (*FleetDB, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	st, err := store.Create(path, o.storeConfig,
		store.WithFileSystem(o.fsys),
		store.WithLogger(o.logger.Logger),
	)
	if err != nil {
		return nil, err
	}
	return assemble(st, o), nil
}

// Open opens an existing database file, validating the magic tag and
// rehydrating in-memory manager state (active trips, budget book, id
// counters) from the store.
func Open(path string, opts ...Option) (*FleetDB, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	st, err := store.Open(path,
		store.WithFileSystem(o.fsys),
		store.WithLogger(o.logger.Logger),
	)
	if err != nil {
		return nil, err
	}
	return assemble(st, o), nil
}

func assemble(st *store.Store, o options) *FleetDB {
	if o.budgetPath == "" {
		o.budgetPath = st.Path() + ".budgets.json"
	}
	db := &FleetDB{
		store: st,
		cache: cache.New(o.cacheCapacity),
		log:   o.logger,
		opts:  o,
	}
	db.Trips = newTripManager(db)
	db.Expenses = newExpenseManager(db)
	db.Incidents = newIncidentManager(db)
	db.Drivers = newDriverManager(db)
	db.Vehicles = newVehicleManager(db)
	db.nextDocID.Store(st.MaxDocumentID())
	return db
}

// Close flushes the budget book, rewrites the header with an updated
// modification time and closes the backing file. Close is idempotent.
func (db *FleetDB) Close() error {
	db.closeOnce.Do(func() {
		if err := db.Expenses.saveBudgets(); err != nil {
			db.log.Warn("budget book flush failed", "error", err)
		}
		db.closeErr = db.store.Close()
	})
	return db.closeErr
}

// Stats runs the aggregate scan over every table.
func (db *FleetDB) Stats() record.DatabaseStats {
	return db.store.Stats()
}

// CacheStats returns cumulative cache hit and miss counts.
func (db *FleetDB) CacheStats() (hits, misses int64) {
	return db.cache.Stats()
}

// Store exposes the underlying record store for tooling (inspection,
// snapshots). Most callers should go through the managers.
func (db *FleetDB) Store() *store.Store {
	return db.store
}

func (db *FleetDB) now() uint64 {
	return uint64(db.opts.clock().Unix())
}
