package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hupe1980/fleetdb/internal/fs"
	"github.com/hupe1980/fleetdb/record"
)

// testConfig keeps table preallocation small enough for fast test files.
func testConfig() Config {
	return Config{
		MaxDrivers:     16,
		MaxVehicles:    16,
		MaxTrips:       32,
		MaxMaintenance: 16,
		MaxExpenses:    32,
		MaxDocuments:   16,
		MaxIncidents:   16,
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fleet.fdb")
	s, err := Create(path, testConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreateLayout(t *testing.T) {
	s := newTestStore(t)

	h := s.Header()
	require.Equal(t, record.Magic, h.Magic)
	require.Equal(t, uint32(record.Version), h.Version)
	require.Equal(t, uint64(record.HeaderSize), h.DriverTableOffset)
	require.Equal(t, h.DriverTableOffset+16*record.DriverSize, h.VehicleTableOffset)
	require.Equal(t, h.VehicleTableOffset+16*record.VehicleSize, h.TripTableOffset)

	// Preallocated to the full layout size.
	info, err := os.Stat(s.Path())
	require.NoError(t, err)
	require.Equal(t, int64(h.TotalSize), info.Size())
}

func TestCreateReadDriver(t *testing.T) {
	s := newTestStore(t)

	d := record.NewDriver(1)
	record.SetText(d.Username[:], "jdoe")
	require.True(t, s.CreateDriver(&d))

	got, ok := s.ReadDriver(1)
	require.True(t, ok)
	require.Equal(t, "jdoe", record.Text(got.Username[:]))
	require.Equal(t, uint32(1000), got.SafetyScore)

	_, ok = s.ReadDriver(99)
	require.False(t, ok)
}

func TestFirstFitSlotReuse(t *testing.T) {
	s := newTestStore(t)

	for id := uint64(1); id <= 3; id++ {
		d := record.NewDriver(id)
		require.True(t, s.CreateDriver(&d))
	}

	// Free the middle slot, then create: the new record must land there.
	require.True(t, s.DeleteDriver(2))
	d := record.NewDriver(4)
	require.True(t, s.CreateDriver(&d))

	all := s.AllDrivers()
	require.Len(t, all, 3)
	// Slot order: slot 0 = id 1, slot 1 = id 4 (reused), slot 2 = id 3.
	require.Equal(t, uint64(1), all[0].DriverID)
	require.Equal(t, uint64(4), all[1].DriverID)
	require.Equal(t, uint64(3), all[2].DriverID)
}

func TestSoftDeleteIdempotence(t *testing.T) {
	s := newTestStore(t)

	d := record.NewDriver(1)
	require.True(t, s.CreateDriver(&d))

	require.True(t, s.DeleteDriver(1))
	require.False(t, s.DeleteDriver(1), "second delete must fail")

	_, ok := s.ReadDriver(1)
	require.False(t, ok)
}

func TestTableFull(t *testing.T) {
	s := newTestStore(t)

	for id := uint64(1); id <= 16; id++ {
		d := record.NewDriver(id)
		require.True(t, s.CreateDriver(&d))
	}

	d := record.NewDriver(17)
	require.False(t, s.CreateDriver(&d), "create into full table must fail")
}

func TestUpdateMissing(t *testing.T) {
	s := newTestStore(t)

	d := record.NewDriver(5)
	require.False(t, s.UpdateDriver(&d), "update of absent id must fail")
}

func TestReopenRebuildsIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fleet.fdb")

	s, err := Create(path, testConfig())
	require.NoError(t, err)

	for id := uint64(1); id <= 5; id++ {
		d := record.NewDriver(id)
		require.True(t, s.CreateDriver(&d))
	}
	require.True(t, s.DeleteDriver(3))

	trip := record.Trip{TripID: 7, DriverID: 1, StartTime: 1000}
	require.True(t, s.CreateTrip(&trip))
	require.NoError(t, s.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	require.Len(t, s2.AllDrivers(), 4)
	require.Equal(t, uint64(5), s2.MaxDriverID())
	require.Equal(t, uint64(7), s2.MaxTripID())

	got, ok := s2.ReadTrip(7)
	require.True(t, ok)
	require.Equal(t, uint64(1), got.DriverID)

	// Deleted slot is reusable after reopen.
	d := record.NewDriver(6)
	require.True(t, s2.CreateDriver(&d))
	all := s2.AllDrivers()
	require.Equal(t, uint64(6), all[2].DriverID)
}

func TestOpenBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fleet.fdb")

	s, err := Create(path, testConfig())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte("NOTADB00"), 0)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = Open(path)
	require.ErrorIs(t, err, ErrInvalidMagic)
}

func TestOpenBadVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fleet.fdb")

	s, err := Create(path, testConfig())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte{0xFF, 0xFF, 0xFF, 0xFF}, 8)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = Open(path)
	require.ErrorIs(t, err, ErrInvalidVersion)
}

func TestCloseUpdatesModified(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fleet.fdb")

	s, err := Create(path, testConfig())
	require.NoError(t, err)
	created := s.Header().CreatedTime
	require.NoError(t, s.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	h := s2.Header()
	require.Equal(t, created, h.CreatedTime)
	require.GreaterOrEqual(t, h.Modified, created)
}

func TestScanFilters(t *testing.T) {
	s := newTestStore(t)

	for id := uint64(1); id <= 6; id++ {
		trip := record.Trip{TripID: id, DriverID: id % 2, StartTime: 100 * id}
		if id <= 3 {
			trip.EndTime = trip.StartTime + 60
		}
		require.True(t, s.CreateTrip(&trip))
	}

	require.Len(t, s.TripsByDriver(1, 0), 3)
	require.Len(t, s.TripsByDriver(1, 2), 2, "limit early-stops the scan")
	require.Len(t, s.ActiveTrips(), 3)
}

func TestStatsAggregation(t *testing.T) {
	s := newTestStore(t)

	for id := uint64(1); id <= 3; id++ {
		d := record.NewDriver(id)
		d.TotalDistance = 100
		require.True(t, s.CreateDriver(&d))
	}
	require.True(t, s.DeleteDriver(3))

	v := record.NewVehicle(1, 1)
	require.True(t, s.CreateVehicle(&v))

	stats := s.Stats()
	require.Equal(t, uint64(2), stats.ActiveDrivers)
	require.Equal(t, float64(200), stats.TotalDistance)
	require.Equal(t, uint64(1), stats.TotalVehicles)
	require.Equal(t, s.Header().TotalSize, stats.DatabaseSize)
}

func TestFaultyFSReadFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fleet.fdb")
	faulty := fs.NewFaultyFS(nil)

	s, err := Create(path, testConfig(), WithFileSystem(faulty))
	require.NoError(t, err)
	defer s.Close()

	d := record.NewDriver(1)
	require.True(t, s.CreateDriver(&d))

	faulty.FailReads(true)
	_, ok := s.ReadDriver(1)
	require.False(t, ok, "read through failing fs must report not found")
	faulty.FailReads(false)

	_, ok = s.ReadDriver(1)
	require.True(t, ok)
}
