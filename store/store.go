// Package store implements the slot-table record store backing the fleet
// database: one flat binary file holding a fixed header followed by seven
// contiguous tables of fixed-size record slots. The store is the single
// authority for table layout; it translates entity-level CRUD into
// byte-offset file operations and serializes all file access behind one
// mutex.
package store

import (
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/fleetdb/internal/fs"
	"github.com/hupe1980/fleetdb/record"
)

// Config holds the table capacities used when creating a new database file.
// Driver, vehicle and trip capacities are persisted in the header; the
// remaining capacities are recovered from table offset deltas on open.
type Config struct {
	MaxDrivers     uint32
	MaxVehicles    uint32
	MaxTrips       uint32
	MaxMaintenance uint32
	MaxExpenses    uint32
	MaxDocuments   uint32
	MaxIncidents   uint32

	CreatorInfo string
}

// DefaultConfig returns the stock capacities.
func DefaultConfig() Config {
	return Config{
		MaxDrivers:     10000,
		MaxVehicles:    50000,
		MaxTrips:       10000000,
		MaxMaintenance: 100000,
		MaxExpenses:    500000,
		MaxDocuments:   100000,
		MaxIncidents:   50000,
	}
}

func (c *Config) setDefaults() {
	d := DefaultConfig()
	if c.MaxDrivers == 0 {
		c.MaxDrivers = d.MaxDrivers
	}
	if c.MaxVehicles == 0 {
		c.MaxVehicles = d.MaxVehicles
	}
	if c.MaxTrips == 0 {
		c.MaxTrips = d.MaxTrips
	}
	if c.MaxMaintenance == 0 {
		c.MaxMaintenance = d.MaxMaintenance
	}
	if c.MaxExpenses == 0 {
		c.MaxExpenses = d.MaxExpenses
	}
	if c.MaxDocuments == 0 {
		c.MaxDocuments = d.MaxDocuments
	}
	if c.MaxIncidents == 0 {
		c.MaxIncidents = d.MaxIncidents
	}
}

// tableInfo tracks the layout of one slot table plus the in-memory
// occupancy index rebuilt on open. The index only accelerates slot lookup;
// results are always identical to a pure linear scan.
type tableInfo struct {
	offset   uint64
	slotSize uint32
	capacity uint32

	// activeOff is the byte offset of the liveness marker for tables that
	// use one (driver, vehicle); -1 for tables where id == 0 means empty.
	activeOff int

	occupied *roaring.Bitmap
	idToSlot map[uint64]uint32
	maxID    uint64
}

func (t *tableInfo) slotOffset(i uint32) int64 {
	return int64(t.offset + uint64(i)*uint64(t.slotSize))
}

// emptySlot reports whether raw slot bytes encode an empty slot under this
// table's emptiness rule.
func (t *tableInfo) emptySlot(b []byte) bool {
	if t.activeOff >= 0 {
		return b[t.activeOff] == 0
	}
	return binary.LittleEndian.Uint64(b[:8]) == 0
}

func (t *tableInfo) firstFree() (uint32, bool) {
	for i := uint32(0); i < t.capacity; i++ {
		if !t.occupied.Contains(i) {
			return i, true
		}
	}
	return 0, false
}

// Liveness marker offsets inside the driver and vehicle slot layouts.
const (
	driverActiveOffset  = 514
	vehicleActiveOffset = 457
)

// Store owns the backing file and exposes slot-table CRUD per entity type.
// All operations are safe for concurrent use; a single mutex serializes
// every file access within the process.
type Store struct {
	mu     sync.Mutex
	fsys   fs.FileSystem
	path   string
	file   fs.File
	header record.Header
	open   bool
	log    *slog.Logger

	tables [7]tableInfo
}

// Option configures a Store.
type Option func(*Store)

// WithFileSystem overrides the file system implementation (used by tests).
func WithFileSystem(fsys fs.FileSystem) Option {
	return func(s *Store) {
		if fsys != nil {
			s.fsys = fsys
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

func newStore(path string, opts ...Option) *Store {
	s := &Store{
		fsys: fs.Default,
		path: path,
		log:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create creates a new database file with the given capacities, writing the
// header and pre-sizing the file so every slot exists at its final offset.
// A zeroed slot is the empty-slot encoding for every table, so extending the
// file to its computed total size is byte-identical to writing
// capacity-many zeroed records per table.
func Create(path string, cfg Config, opts ...Option) (*Store, error) {
	cfg.setDefaults()
	s := newStore(path, opts...)

	if dir := filepath.Dir(path); dir != "." {
		if err := s.fsys.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	f, err := s.fsys.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create database file: %w", err)
	}

	now := uint64(time.Now().Unix())
	h := record.NewHeader()
	h.CreatedTime = now
	h.Modified = now
	h.MaxDrivers = cfg.MaxDrivers
	h.MaxVehicles = cfg.MaxVehicles
	h.MaxTrips = cfg.MaxTrips
	record.SetText(h.CreatorInfo[:], cfg.CreatorInfo)

	layoutHeader(&h, cfg)

	hb, err := record.Encode(&h)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("encode header: %w", err)
	}
	if _, err := f.WriteAt(hb, 0); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write header: %w", err)
	}
	if err := f.Truncate(int64(h.TotalSize)); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("preallocate tables: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("sync database file: %w", err)
	}

	s.file = f
	s.header = h
	s.initTables(cfg)
	s.open = true

	s.log.Info("database created",
		"path", path,
		"size_mb", h.TotalSize/1024/1024,
		"max_drivers", cfg.MaxDrivers,
		"max_vehicles", cfg.MaxVehicles,
		"max_trips", cfg.MaxTrips,
	)
	return s, nil
}

// layoutHeader computes every table offset from the capacities. The header
// is a fixed size; each table starts where the previous one ends.
func layoutHeader(h *record.Header, cfg Config) {
	off := uint64(record.HeaderSize)

	h.DriverTableOffset = off
	off += uint64(cfg.MaxDrivers) * record.DriverSize

	h.VehicleTableOffset = off
	off += uint64(cfg.MaxVehicles) * record.VehicleSize

	h.TripTableOffset = off
	off += uint64(cfg.MaxTrips) * record.TripSize

	h.MaintenanceTableOffset = off
	off += uint64(cfg.MaxMaintenance) * record.MaintenanceSize

	h.ExpenseTableOffset = off
	off += uint64(cfg.MaxExpenses) * record.ExpenseSize

	h.DocumentTableOffset = off
	off += uint64(cfg.MaxDocuments) * record.DocumentSize

	h.IncidentTableOffset = off
	off += uint64(cfg.MaxIncidents) * record.IncidentSize

	h.TotalSize = off
}

// Open opens an existing database file, validates the magic tag and rebuilds
// the in-memory occupancy index with one sequential scan per table. A magic
// or version mismatch is a hard open failure and the store stays closed.
func Open(path string, opts ...Option) (*Store, error) {
	s := newStore(path, opts...)

	f, err := s.fsys.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open database file: %w", err)
	}

	hb := make([]byte, record.HeaderSize)
	if _, err := f.ReadAt(hb, 0); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("read header: %w", err)
	}
	var h record.Header
	if err := record.Decode(hb, &h); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("decode header: %w", err)
	}
	if h.Magic != record.Magic {
		_ = f.Close()
		return nil, fmt.Errorf("%w: got %q", ErrInvalidMagic, string(h.Magic[:]))
	}
	if h.Version != record.Version {
		_ = f.Close()
		return nil, fmt.Errorf("%w: got 0x%08x", ErrInvalidVersion, h.Version)
	}

	s.file = f
	s.header = h
	s.initTables(capacitiesFromHeader(&h))
	s.open = true

	if err := s.buildIndex(); err != nil {
		s.open = false
		_ = f.Close()
		return nil, fmt.Errorf("scan tables: %w", err)
	}

	s.log.Info("database opened", "path", path, "size_mb", h.TotalSize/1024/1024)
	return s, nil
}

// capacitiesFromHeader recovers every capacity from the header. Tables whose
// capacity is not stored directly are derived from offset deltas.
func capacitiesFromHeader(h *record.Header) Config {
	return Config{
		MaxDrivers:     h.MaxDrivers,
		MaxVehicles:    h.MaxVehicles,
		MaxTrips:       h.MaxTrips,
		MaxMaintenance: uint32((h.ExpenseTableOffset - h.MaintenanceTableOffset) / record.MaintenanceSize),
		MaxExpenses:    uint32((h.DocumentTableOffset - h.ExpenseTableOffset) / record.ExpenseSize),
		MaxDocuments:   uint32((h.IncidentTableOffset - h.DocumentTableOffset) / record.DocumentSize),
		MaxIncidents:   uint32((h.TotalSize - h.IncidentTableOffset) / record.IncidentSize),
	}
}

func (s *Store) initTables(cfg Config) {
	h := &s.header
	s.tables = [7]tableInfo{
		record.TableDriver:      {offset: h.DriverTableOffset, slotSize: record.DriverSize, capacity: cfg.MaxDrivers, activeOff: driverActiveOffset},
		record.TableVehicle:     {offset: h.VehicleTableOffset, slotSize: record.VehicleSize, capacity: cfg.MaxVehicles, activeOff: vehicleActiveOffset},
		record.TableTrip:        {offset: h.TripTableOffset, slotSize: record.TripSize, capacity: cfg.MaxTrips, activeOff: -1},
		record.TableMaintenance: {offset: h.MaintenanceTableOffset, slotSize: record.MaintenanceSize, capacity: cfg.MaxMaintenance, activeOff: -1},
		record.TableExpense:     {offset: h.ExpenseTableOffset, slotSize: record.ExpenseSize, capacity: cfg.MaxExpenses, activeOff: -1},
		record.TableDocument:    {offset: h.DocumentTableOffset, slotSize: record.DocumentSize, capacity: cfg.MaxDocuments, activeOff: -1},
		record.TableIncident:    {offset: h.IncidentTableOffset, slotSize: record.IncidentSize, capacity: cfg.MaxIncidents, activeOff: -1},
	}
	for i := range s.tables {
		s.tables[i].occupied = roaring.New()
		s.tables[i].idToSlot = make(map[uint64]uint32)
	}
}

// buildIndex streams every table once, recording which slots are occupied,
// the id living in each and the maximum id seen. This is the startup scan
// that seeds per-entity id generation.
func (s *Store) buildIndex() error {
	const chunkSlots = 256

	for ti := range s.tables {
		t := &s.tables[ti]
		if t.capacity == 0 {
			continue
		}
		buf := make([]byte, int(t.slotSize)*chunkSlots)
		for base := uint32(0); base < t.capacity; base += chunkSlots {
			n := min(uint32(chunkSlots), t.capacity-base)
			b := buf[:int(t.slotSize)*int(n)]
			if _, err := s.file.ReadAt(b, t.slotOffset(base)); err != nil && err != io.EOF {
				return err
			}
			for i := uint32(0); i < n; i++ {
				slot := b[int(i)*int(t.slotSize) : int(i+1)*int(t.slotSize)]
				if t.emptySlot(slot) {
					continue
				}
				id := binary.LittleEndian.Uint64(slot[:8])
				t.occupied.Add(base + i)
				t.idToSlot[id] = base + i
				if id > t.maxID {
					t.maxID = id
				}
			}
		}
	}
	return nil
}

// Close rewrites the header with an updated modification time, flushes and
// closes the file. Further operations short-circuit.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return nil
	}
	s.open = false

	s.header.Modified = uint64(time.Now().Unix())
	hb, err := record.Encode(&s.header)
	if err == nil {
		_, err = s.file.WriteAt(hb, 0)
	}
	if err == nil {
		err = s.file.Sync()
	}
	if cerr := s.file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// IsOpen reports whether the store has a usable backing file.
func (s *Store) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

// Header returns a copy of the current header.
func (s *Store) Header() record.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.header
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Capacity returns the slot capacity of a table.
func (s *Store) Capacity(tbl record.Table) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tables[tbl].capacity
}

// readSlot reads raw slot bytes. Callers hold s.mu.
func (s *Store) readSlot(t *tableInfo, i uint32, buf []byte) bool {
	if _, err := s.file.ReadAt(buf, t.slotOffset(i)); err != nil {
		s.log.Warn("slot read failed", "offset", t.slotOffset(i), "error", err)
		return false
	}
	return true
}

// writeSlot encodes and durably writes one record to its slot. Callers hold
// s.mu.
func (s *Store) writeSlot(t *tableInfo, i uint32, rec any) bool {
	b, err := record.Encode(rec)
	if err != nil {
		s.log.Warn("slot encode failed", "error", err)
		return false
	}
	if _, err := s.file.WriteAt(b, t.slotOffset(i)); err != nil {
		s.log.Warn("slot write failed", "offset", t.slotOffset(i), "error", err)
		return false
	}
	if err := s.file.Sync(); err != nil {
		s.log.Warn("slot sync failed", "error", err)
		return false
	}
	return true
}
