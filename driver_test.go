package fleetdb_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hupe1980/fleetdb"
	"github.com/hupe1980/fleetdb/record"
)

func TestUpdateProfileAndDelete(t *testing.T) {
	db := newTestDB(t, newFakeClock())

	id := registerDriver(t, db, "mutable")
	require.True(t, db.Drivers.UpdateProfile(id, "New Name", "new@fleet.test", "+49 30 1234", "L-77", 1790000000))

	d, ok := db.Drivers.GetDriver(id)
	require.True(t, ok)
	require.Equal(t, "New Name", record.Text(d.FullName[:]))
	require.Equal(t, "L-77", record.Text(d.LicenseNumber[:]))

	require.True(t, db.Drivers.Delete(id))
	require.False(t, db.Drivers.Delete(id), "second delete must fail")
	_, ok = db.Drivers.GetDriver(id)
	require.False(t, ok)

	// A deleted driver cannot authenticate.
	_, ok = db.Drivers.Authenticate("mutable", "secret")
	require.False(t, ok)
}

func TestChangePassword(t *testing.T) {
	db := newTestDB(t, newFakeClock())

	id := registerDriver(t, db, "rotating")
	require.False(t, db.Drivers.ChangePassword(id, "wrong", "next"))
	require.True(t, db.Drivers.ChangePassword(id, "secret", "next"))

	_, ok := db.Drivers.Authenticate("rotating", "secret")
	require.False(t, ok)
	_, ok = db.Drivers.Authenticate("rotating", "next")
	require.True(t, ok)
}

func TestReportEventManualDeduction(t *testing.T) {
	db := newTestDB(t, newFakeClock())

	id := registerDriver(t, db, "observed")
	require.True(t, db.Drivers.ReportEvent(id, record.EventIdleExcessive, 30))

	d, _ := db.Drivers.GetDriver(id)
	require.Equal(t, uint32(970), d.SafetyScore)
	require.Equal(t, uint32(1), d.HarshEventsCount)

	// Deductions clamp at zero.
	require.True(t, db.Drivers.ReportEvent(id, record.EventIdleExcessive, 5000))
	d, _ = db.Drivers.GetDriver(id)
	require.Zero(t, d.SafetyScore)
}

func TestBehaviorReport(t *testing.T) {
	clock := newFakeClock()
	db := newTestDB(t, clock)

	id := registerDriver(t, db, "profiled")
	other := registerDriver(t, db, "peer")

	db.Incidents.Report(record.Incident{
		DriverID: other, Type: record.IncidentTrafficViolation,
	})

	tripID := db.Trips.StartTrip(id, 1, 52.0, 13.0, "")
	db.Trips.LogGPSPoint(tripID, 52.0, 13.0, 50, 0, 5)
	clock.Advance(10 * time.Minute)
	db.Trips.LogGPSPoint(tripID, 52.2, 13.0, 60, 0, 5)
	require.True(t, db.Trips.EndTrip(tripID, 52.2, 13.0, ""))

	rep, ok := db.Drivers.Behavior(id)
	require.True(t, ok)
	require.Equal(t, uint64(1), rep.TotalTrips)
	require.Greater(t, rep.TotalDistance, 20.0)
	require.Equal(t, 1, rep.Rank, "clean driver outranks the violator")
	require.Greater(t, rep.Percentile, 0.0)
	require.Zero(t, rep.IncidentsOnFile)
}

func TestRecommendations(t *testing.T) {
	clock := newFakeClock()
	db := newTestDB(t, clock)

	id := registerDriver(t, db, "coached")
	tripID := db.Trips.StartTrip(id, 1, 52.0, 13.0, "")
	db.Trips.LogGPSPoint(tripID, 52.0, 13.0, 130, 0, 5) // speeding
	clock.Advance(time.Second)
	db.Trips.LogGPSPoint(tripID, 52.001, 13.0, 60, 0, 5) // harsh braking
	require.True(t, db.Trips.EndTrip(tripID, 52.001, 13.0, ""))

	recs := db.Drivers.Recommendations(id)
	require.NotEmpty(t, recs)

	areas := make(map[string]bool)
	for _, r := range recs {
		areas[r.Area] = true
	}
	require.True(t, areas["speed"])
	require.True(t, areas["braking"])

	clean := registerDriver(t, db, "spotless")
	recs = db.Drivers.Recommendations(clean)
	require.Len(t, recs, 1)
	require.Equal(t, "general", recs[0].Area)
}

func TestDriverTripQueries(t *testing.T) {
	clock := newFakeClock()
	db := newTestDB(t, clock)

	id := registerDriver(t, db, "traveler")

	var tripIDs []uint64
	for i := 0; i < 3; i++ {
		tripID := db.Trips.StartTrip(id, 1, 52.0, 13.0, "")
		require.NotZero(t, tripID)
		db.Trips.LogGPSPoint(tripID, 52.0, 13.0, 40, 0, 5)
		clock.Advance(time.Minute)
		db.Trips.LogGPSPoint(tripID, 52.01, 13.0, 40, 0, 5)
		require.True(t, db.Trips.EndTrip(tripID, 52.01, 13.0, ""))
		tripIDs = append(tripIDs, tripID)
		clock.Advance(time.Hour)
	}

	trips := db.Trips.DriverTrips(id, 0)
	require.Len(t, trips, 3)
	require.Len(t, db.Trips.DriverTrips(id, 2), 2)

	// Only the last trip started inside the window.
	last, _ := db.Trips.GetTrip(tripIDs[2])
	window := db.Trips.TripsByDateRange(id, last.StartTime, last.StartTime+60)
	require.Len(t, window, 1)

	stats := db.Trips.DriverStatistics(id)
	require.Equal(t, uint64(3), stats.TotalTrips)
	require.Greater(t, stats.TotalDistance, 3.0)
	require.Equal(t, uint32(0), stats.TotalHarshEvents)
}

func TestGetAllDrivers(t *testing.T) {
	db := newTestDB(t, newFakeClock())

	registerDriver(t, db, "one")
	two := registerDriver(t, db, "two")
	registerDriver(t, db, "three")
	require.True(t, db.Drivers.Delete(two))

	all := db.Drivers.GetAllDrivers()
	require.Len(t, all, 2)
}

func TestLeaderboardByDistance(t *testing.T) {
	clock := newFakeClock()
	db := newTestDB(t, clock)

	near := registerDriver(t, db, "near")
	far := registerDriver(t, db, "far")

	tripID := db.Trips.StartTrip(far, 1, 52.0, 13.0, "")
	db.Trips.LogGPSPoint(tripID, 52.0, 13.0, 50, 0, 5)
	clock.Advance(time.Hour)
	db.Trips.LogGPSPoint(tripID, 53.0, 13.0, 50, 0, 5)
	require.True(t, db.Trips.EndTrip(tripID, 53.0, 13.0, ""))

	entries := db.Drivers.Leaderboard(fleetdb.RankByDistance, 0)
	require.Equal(t, far, entries[0].DriverID)
	require.Equal(t, near, entries[1].DriverID)
	require.Greater(t, entries[0].Value, 100.0)
}
