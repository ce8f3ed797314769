package fleetdb

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/hupe1980/fleetdb/cache"
	"github.com/hupe1980/fleetdb/internal/geo"
	"github.com/hupe1980/fleetdb/internal/ringbuf"
	"github.com/hupe1980/fleetdb/record"
)

// Driving-event thresholds. Speeds are km/h; accelerations are m/s².
const (
	harshBrakingThreshold      = -3.0
	rapidAccelerationThreshold = 3.0
	speedingThreshold          = 120.0
	sharpTurnBearingThreshold  = 30.0
	sharpTurnSpeedThreshold    = 20.0
)

// Safety-score deltas applied immediately per detected event.
const (
	harshBrakingPenalty      = -5
	rapidAccelerationPenalty = -3
	speedingPenalty          = -10
	sharpTurnPenalty         = -2
)

// TripManager runs the per-driver trip state machine: a driver has at most
// one active trip; GPS points stream into the active trip's in-memory
// waypoint list and fold into the persisted trip aggregates on EndTrip.
type TripManager struct {
	db     *FleetDB
	nextID atomic.Uint64

	mu     sync.Mutex
	active map[uint64]*activeTrip // by trip id

	gpsBuf  *ringbuf.Ring[record.GPSWaypoint]
	limiter *rate.Limiter
}

type activeTrip struct {
	rec       record.Trip
	waypoints []record.GPSWaypoint
}

func newTripManager(db *FleetDB) *TripManager {
	tm := &TripManager{
		db:     db,
		active: make(map[uint64]*activeTrip),
		gpsBuf: ringbuf.New[record.GPSWaypoint](db.opts.gpsBufferSize),
	}
	if db.opts.gpsRate != rate.Inf {
		tm.limiter = rate.NewLimiter(db.opts.gpsRate, db.opts.gpsBurst)
	}
	tm.nextID.Store(db.store.MaxTripID())
	tm.rehydrate()
	return tm
}

// rehydrate reloads trips persisted with no end time into memory. Waypoint
// history is not resumable; only the persisted aggregates carry over.
func (tm *TripManager) rehydrate() {
	recovered := tm.db.store.ActiveTrips()
	for i := range recovered {
		tm.active[recovered[i].TripID] = &activeTrip{rec: recovered[i]}
	}
	if len(recovered) > 0 {
		tm.db.log.Info("restored active trips", "count", len(recovered))
	}
}

// StartTrip begins a trip for a driver. It returns the new trip id, or 0 if
// the driver already has an active trip or the trip table is full.
func (tm *TripManager) StartTrip(driverID, vehicleID uint64, startLat, startLon float64, startAddress string) uint64 {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	for _, at := range tm.active {
		if at.rec.DriverID == driverID {
			tm.db.log.Warn("driver already has an active trip",
				"driver_id", driverID, "trip_id", at.rec.TripID)
			return 0
		}
	}

	tripID := tm.nextID.Add(1)

	trip := record.Trip{
		TripID:         tripID,
		DriverID:       driverID,
		VehicleID:      vehicleID,
		StartTime:      tm.db.now(),
		StartLatitude:  startLat,
		StartLongitude: startLon,
	}
	record.SetText(trip.StartAddress[:], startAddress)

	if !tm.db.store.CreateTrip(&trip) {
		return 0
	}

	tm.active[tripID] = &activeTrip{rec: trip}
	tm.db.cache.ClearQueries()

	tm.db.log.Info("trip started", "trip_id", tripID, "driver_id", driverID, "vehicle_id", vehicleID)
	return tripID
}

// LogGPSPoint appends a telemetry point to an active trip and evaluates it
// for driving events. Points for unknown trips and points rejected by the
// rate limiter are dropped.
func (tm *TripManager) LogGPSPoint(tripID uint64, latitude, longitude float64, speed, altitude, accuracy float32) bool {
	if tm.limiter != nil && !tm.limiter.Allow() {
		return false
	}

	wp := record.GPSWaypoint{
		Timestamp: tm.db.now(),
		Latitude:  latitude,
		Longitude: longitude,
		Speed:     speed,
		Altitude:  altitude,
		Accuracy:  accuracy,
	}
	// The spool holds recent telemetry for consumers (Drain); overflow
	// only loses spool history, never the trip's own waypoints.
	if !tm.gpsBuf.TryEnqueue(wp) {
		tm.gpsBuf.TryDequeue()
		tm.gpsBuf.TryEnqueue(wp)
	}

	tm.mu.Lock()
	defer tm.mu.Unlock()

	at, ok := tm.active[tripID]
	if !ok {
		return false
	}
	at.waypoints = append(at.waypoints, wp)
	tm.detectDrivingEvents(at, wp)
	return true
}

// detectDrivingEvents evaluates the newest waypoint. Speeding needs only
// the current point; acceleration and turn events need the previous point
// and a positive time delta. Each event adjusts the driver's safety score
// immediately. Callers hold tm.mu.
func (tm *TripManager) detectDrivingEvents(at *activeTrip, cur record.GPSWaypoint) {
	if float64(cur.Speed) > speedingThreshold {
		at.rec.SpeedingCount++
		tm.adjustSafetyScore(at.rec.DriverID, speedingPenalty, record.EventSpeeding)
	}

	if len(at.waypoints) < 2 {
		return
	}
	prev := at.waypoints[len(at.waypoints)-2]
	if cur.Timestamp <= prev.Timestamp {
		return
	}
	dt := float64(cur.Timestamp - prev.Timestamp)

	// Speeds are km/h; /3.6 converts the delta to m/s.
	accel := (float64(cur.Speed-prev.Speed) / 3.6) / dt

	if accel < harshBrakingThreshold {
		at.rec.HarshBrakingCount++
		tm.adjustSafetyScore(at.rec.DriverID, harshBrakingPenalty, record.EventHarshBraking)
	}
	if accel > rapidAccelerationThreshold {
		at.rec.RapidAccelerationCount++
		tm.adjustSafetyScore(at.rec.DriverID, rapidAccelerationPenalty, record.EventRapidAcceleration)
	}

	bearing := geo.Bearing(prev.Latitude, prev.Longitude, cur.Latitude, cur.Longitude)
	if math.Abs(bearing) > sharpTurnBearingThreshold && float64(cur.Speed) > sharpTurnSpeedThreshold {
		at.rec.SharpTurnCount++
		tm.adjustSafetyScore(at.rec.DriverID, sharpTurnPenalty, record.EventSharpTurn)
	}
}

// adjustSafetyScore applies a signed delta to a driver's safety score,
// clamped to [0, 1000].
func (tm *TripManager) adjustSafetyScore(driverID uint64, delta int, event record.DrivingEventType) {
	driver, ok := tm.db.store.ReadDriver(driverID)
	if !ok {
		return
	}
	driver.SafetyScore = clampScore(int(driver.SafetyScore) + delta)
	if !tm.db.store.UpdateDriver(&driver) {
		return
	}
	tm.db.cache.InvalidateEntity(cache.EntityKey{Table: record.TableDriver, ID: driverID})

	tm.db.log.Debug("safety score adjusted",
		"driver_id", driverID, "event", event, "delta", delta, "score", driver.SafetyScore)
}

func clampScore(score int) uint32 {
	if score < 0 {
		return 0
	}
	if score > 1000 {
		return 1000
	}
	return uint32(score)
}

// EndTrip closes an active trip: distance is the haversine sum over the
// waypoint chain, average speed derives from distance and duration, fuel is
// estimated with a harsh-event penalty, and the trip plus the driver's
// aggregate totals are persisted.
func (tm *TripManager) EndTrip(tripID uint64, endLat, endLon float64, endAddress string) bool {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	at, ok := tm.active[tripID]
	if !ok {
		return false
	}

	at.rec.EndTime = tm.db.now()
	at.rec.EndLatitude = endLat
	at.rec.EndLongitude = endLon
	record.SetText(at.rec.EndAddress[:], endAddress)
	if at.rec.EndTime > at.rec.StartTime {
		at.rec.Duration = uint32(at.rec.EndTime - at.rec.StartTime)
	}
	at.rec.GPSDataCount = uint32(len(at.waypoints))

	tm.computeTripMetrics(at)

	if !tm.db.store.UpdateTrip(&at.rec) {
		return false
	}

	tm.updateDriverStats(&at.rec)

	delete(tm.active, tripID)
	tm.db.cache.InvalidateEntity(cache.EntityKey{Table: record.TableTrip, ID: tripID})
	tm.db.cache.ClearQueries()

	tm.db.log.Info("trip ended",
		"trip_id", tripID,
		"distance_km", at.rec.Distance,
		"duration_s", at.rec.Duration,
		"waypoints", at.rec.GPSDataCount,
	)
	return true
}

func (tm *TripManager) computeTripMetrics(at *activeTrip) {
	if len(at.waypoints) == 0 {
		return
	}

	var distance float64
	for i := 1; i < len(at.waypoints); i++ {
		distance += geo.Distance(
			at.waypoints[i-1].Latitude, at.waypoints[i-1].Longitude,
			at.waypoints[i].Latitude, at.waypoints[i].Longitude)
	}
	at.rec.Distance = distance

	if at.rec.Duration > 0 {
		at.rec.AvgSpeed = (distance / float64(at.rec.Duration)) * 3600
	}

	at.rec.MaxSpeed = 0
	for _, wp := range at.waypoints {
		if float64(wp.Speed) > at.rec.MaxSpeed {
			at.rec.MaxSpeed = float64(wp.Speed)
		}
	}

	at.rec.FuelConsumed = estimateFuelConsumption(&at.rec)
	if at.rec.FuelConsumed > 0 {
		at.rec.FuelEfficiency = distance / at.rec.FuelConsumed
	}
}

// estimateFuelConsumption derives fuel burn from distance with a penalty
// multiplier for accumulated harsh events.
func estimateFuelConsumption(trip *record.Trip) float64 {
	base := trip.Distance * 0.08

	harshPenalty := (float64(trip.HarshBrakingCount)*0.05 +
		float64(trip.RapidAccelerationCount)*0.05 +
		float64(trip.SpeedingCount)*0.02) * 0.1

	return base * (1.0 + harshPenalty)
}

// updateDriverStats folds a completed trip into the driver's lifetime
// aggregates and recomputes the safety score from the updated totals.
func (tm *TripManager) updateDriverStats(trip *record.Trip) {
	driver, ok := tm.db.store.ReadDriver(trip.DriverID)
	if !ok {
		return
	}
	driver.TotalTrips++
	driver.TotalDistance += trip.Distance
	driver.TotalFuelConsumed += trip.FuelConsumed
	driver.HarshEventsCount += uint32(trip.HarshBrakingCount) +
		uint32(trip.RapidAccelerationCount) +
		uint32(trip.SpeedingCount)

	driver.SafetyScore = recomputeSafetyScore(driver.TotalTrips, driver.TotalDistance)

	if tm.db.store.UpdateDriver(&driver) {
		tm.db.cache.InvalidateEntity(cache.EntityKey{Table: record.TableDriver, ID: trip.DriverID})
	}
}

// recomputeSafetyScore rebuilds the score from lifetime totals on trip
// completion; this is the implicit path by which a score recovers.
func recomputeSafetyScore(totalTrips uint64, totalDistance float64) uint32 {
	score := 1000
	if totalDistance > 0 {
		eventsPer100km := (float64(totalTrips) / totalDistance) * 100
		score -= int(eventsPer100km * 10)
	}
	return clampScore(score)
}

// GetTrip returns a trip by id, cache first.
func (tm *TripManager) GetTrip(tripID uint64) (record.Trip, bool) {
	key := cache.EntityKey{Table: record.TableTrip, ID: tripID}
	if v, ok := tm.db.cache.GetEntity(key); ok {
		return v.(record.Trip), true
	}
	trip, ok := tm.db.store.ReadTrip(tripID)
	if ok {
		tm.db.cache.PutEntity(key, trip)
	}
	return trip, ok
}

// ActiveTrip returns the in-memory active trip for a driver.
func (tm *TripManager) ActiveTrip(driverID uint64) (record.Trip, bool) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	for _, at := range tm.active {
		if at.rec.DriverID == driverID {
			return at.rec, true
		}
	}
	return record.Trip{}, false
}

// DriverTrips returns up to limit trips for a driver, memoizing the id list
// under a named query key.
func (tm *TripManager) DriverTrips(driverID uint64, limit int) []record.Trip {
	key := fmt.Sprintf("driver_trips_%d", driverID)
	ids := tm.db.cache.FetchQuery(key, func() []uint64 {
		trips := tm.db.store.TripsByDriver(driverID, 0)
		ids := make([]uint64, 0, len(trips))
		for i := range trips {
			ids = append(ids, trips[i].TripID)
		}
		return ids
	})

	trips := make([]record.Trip, 0, min(len(ids), limit))
	for _, id := range ids {
		if trip, ok := tm.GetTrip(id); ok {
			trips = append(trips, trip)
		}
		if limit > 0 && len(trips) >= limit {
			break
		}
	}
	return trips
}

// TripsByDateRange returns a driver's trips whose start time falls within
// [start, end] (Unix seconds, inclusive).
func (tm *TripManager) TripsByDateRange(driverID, start, end uint64) []record.Trip {
	all := tm.db.store.TripsByDriver(driverID, 0)
	var out []record.Trip
	for i := range all {
		if all[i].StartTime >= start && all[i].StartTime <= end {
			out = append(out, all[i])
		}
	}
	return out
}

// TripStatistics is the per-driver rollup over completed trips.
type TripStatistics struct {
	TotalTrips        uint64
	TotalDistance     float64
	TotalDuration     float64
	AvgSpeed          float64
	MaxSpeed          float64
	TotalFuel         float64
	AvgFuelEfficiency float64
	TotalHarshEvents  uint32
	SafetyScore       uint32
}

// DriverStatistics aggregates every recorded trip for a driver.
func (tm *TripManager) DriverStatistics(driverID uint64) TripStatistics {
	var stats TripStatistics

	trips := tm.db.store.TripsByDriver(driverID, 0)
	for i := range trips {
		t := &trips[i]
		stats.TotalTrips++
		stats.TotalDistance += t.Distance
		stats.TotalDuration += float64(t.Duration)
		stats.TotalFuel += t.FuelConsumed
		if t.MaxSpeed > stats.MaxSpeed {
			stats.MaxSpeed = t.MaxSpeed
		}
		stats.TotalHarshEvents += uint32(t.HarshBrakingCount) +
			uint32(t.RapidAccelerationCount) +
			uint32(t.SpeedingCount) +
			uint32(t.SharpTurnCount)
	}

	if stats.TotalTrips > 0 && stats.TotalDuration > 0 {
		stats.AvgSpeed = (stats.TotalDistance / stats.TotalDuration) * 3600
	}
	if stats.TotalFuel > 0 && stats.TotalDistance > 0 {
		stats.AvgFuelEfficiency = stats.TotalDistance / stats.TotalFuel
	}

	if driver, ok := tm.db.store.ReadDriver(driverID); ok {
		stats.SafetyScore = driver.SafetyScore
	}
	return stats
}

// GPSBufferLen reports how many telemetry points are currently buffered.
func (tm *TripManager) GPSBufferLen() int {
	return tm.gpsBuf.Len()
}

// DrainTelemetry empties the telemetry spool in arrival order, for export
// or downstream processing.
func (tm *TripManager) DrainTelemetry() []record.GPSWaypoint {
	return tm.gpsBuf.Drain()
}
