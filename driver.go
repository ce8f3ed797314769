package fleetdb

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/hupe1980/fleetdb/cache"
	"github.com/hupe1980/fleetdb/record"
)

// RankMetric selects the value a leaderboard is sorted by.
type RankMetric int

const (
	RankBySafetyScore RankMetric = iota
	RankByDistance
	RankByTripCount
)

// DriverManager handles driver accounts, authentication and the safety
// ranking surface.
type DriverManager struct {
	db     *FleetDB
	nextID atomic.Uint64
}

func newDriverManager(db *FleetDB) *DriverManager {
	dm := &DriverManager{db: db}
	dm.nextID.Store(db.store.MaxDriverID())
	return dm
}

func hashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// Register creates a driver account and returns its id, or 0 when the
// username is taken or the table is full. Oversized text fields are
// truncated to their slot widths.
func (dm *DriverManager) Register(username, password, fullName, email string, role record.UserRole) uint64 {
	if username == "" || password == "" {
		return 0
	}
	if _, ok := dm.findByUsername(username); ok {
		dm.db.log.Warn("username already taken", "username", username)
		return 0
	}

	driver := record.NewDriver(dm.nextID.Add(1))
	driver.Role = role
	driver.CreatedTime = dm.db.now()
	record.SetText(driver.Username[:], username)
	record.SetText(driver.PasswordHash[:], hashPassword(password))
	record.SetText(driver.FullName[:], fullName)
	record.SetText(driver.Email[:], email)

	if !dm.db.store.CreateDriver(&driver) {
		return 0
	}
	dm.db.cache.ClearQueries()

	dm.db.log.Info("driver registered", "driver_id", driver.DriverID, "username", record.Text(driver.Username[:]))
	return driver.DriverID
}

// Authenticate checks a username/password pair, updates the driver's last
// login time and returns the profile.
func (dm *DriverManager) Authenticate(username, password string) (record.Driver, bool) {
	driver, ok := dm.findByUsername(username)
	if !ok {
		return record.Driver{}, false
	}

	want := record.Text(driver.PasswordHash[:])
	got := hashPassword(password)
	if subtle.ConstantTimeCompare([]byte(want), []byte(got)) != 1 {
		dm.db.log.Warn("authentication failed", "username", username)
		return record.Driver{}, false
	}

	driver.LastLogin = dm.db.now()
	if dm.db.store.UpdateDriver(&driver) {
		dm.db.cache.InvalidateEntity(cache.EntityKey{Table: record.TableDriver, ID: driver.DriverID})
	}
	return driver, true
}

// findByUsername matches against the stored (possibly truncated) username,
// so a lookup with the original oversized name still resolves.
func (dm *DriverManager) findByUsername(username string) (record.Driver, bool) {
	var probe record.Driver
	record.SetText(probe.Username[:], username)
	stored := record.Text(probe.Username[:])

	for _, d := range dm.db.store.AllDrivers() {
		if record.Text(d.Username[:]) == stored {
			return d, true
		}
	}
	return record.Driver{}, false
}

// GetDriver returns a driver by id, cache first.
func (dm *DriverManager) GetDriver(driverID uint64) (record.Driver, bool) {
	key := cache.EntityKey{Table: record.TableDriver, ID: driverID}
	if v, ok := dm.db.cache.GetEntity(key); ok {
		return v.(record.Driver), true
	}
	d, ok := dm.db.store.ReadDriver(driverID)
	if ok {
		dm.db.cache.PutEntity(key, d)
	}
	return d, ok
}

// GetAllDrivers returns every active driver, memoizing the id list.
func (dm *DriverManager) GetAllDrivers() []record.Driver {
	ids := dm.db.cache.FetchQuery("all_drivers", func() []uint64 {
		all := dm.db.store.AllDrivers()
		ids := make([]uint64, 0, len(all))
		for i := range all {
			ids = append(ids, all[i].DriverID)
		}
		return ids
	})

	out := make([]record.Driver, 0, len(ids))
	for _, id := range ids {
		if d, ok := dm.GetDriver(id); ok {
			out = append(out, d)
		}
	}
	return out
}

// UpdateProfile rewrites a driver's contact and license fields.
func (dm *DriverManager) UpdateProfile(driverID uint64, fullName, email, phone, licenseNumber string, licenseExpiry uint64) bool {
	driver, ok := dm.db.store.ReadDriver(driverID)
	if !ok {
		return false
	}
	record.SetText(driver.FullName[:], fullName)
	record.SetText(driver.Email[:], email)
	record.SetText(driver.Phone[:], phone)
	record.SetText(driver.LicenseNumber[:], licenseNumber)
	driver.LicenseExpiry = licenseExpiry

	if !dm.db.store.UpdateDriver(&driver) {
		return false
	}
	dm.db.cache.InvalidateEntity(cache.EntityKey{Table: record.TableDriver, ID: driverID})
	return true
}

// ChangePassword replaces a driver's password after verifying the old one.
func (dm *DriverManager) ChangePassword(driverID uint64, oldPassword, newPassword string) bool {
	driver, ok := dm.db.store.ReadDriver(driverID)
	if !ok || newPassword == "" {
		return false
	}
	if record.Text(driver.PasswordHash[:]) != hashPassword(oldPassword) {
		return false
	}
	record.SetText(driver.PasswordHash[:], hashPassword(newPassword))
	if !dm.db.store.UpdateDriver(&driver) {
		return false
	}
	dm.db.cache.InvalidateEntity(cache.EntityKey{Table: record.TableDriver, ID: driverID})
	return true
}

// Delete soft-deletes a driver account. Already-deleted accounts fail.
func (dm *DriverManager) Delete(driverID uint64) bool {
	if !dm.db.store.DeleteDriver(driverID) {
		return false
	}
	dm.db.cache.InvalidateEntity(cache.EntityKey{Table: record.TableDriver, ID: driverID})
	dm.db.cache.ClearQueries()
	return true
}

// ReportEvent applies a manual safety-score deduction, for events observed
// outside GPS telemetry.
func (dm *DriverManager) ReportEvent(driverID uint64, event record.DrivingEventType, deduction int) bool {
	driver, ok := dm.db.store.ReadDriver(driverID)
	if !ok {
		return false
	}
	driver.SafetyScore = clampScore(int(driver.SafetyScore) - deduction)
	driver.HarshEventsCount++
	if !dm.db.store.UpdateDriver(&driver) {
		return false
	}
	dm.db.cache.InvalidateEntity(cache.EntityKey{Table: record.TableDriver, ID: driverID})

	dm.db.log.Info("driving event reported",
		"driver_id", driverID, "event", event, "deduction", deduction, "score", driver.SafetyScore)
	return true
}

// BehaviorReport summarizes a driver's event rate and fleet standing.
type BehaviorReport struct {
	DriverID        uint64
	SafetyScore     uint32
	TotalTrips      uint64
	TotalDistance   float64
	HarshEvents     uint32
	EventsPer100KM  float64
	Rank            int
	Percentile      float64
	FuelEfficiency  float64
	AvgTripDistance float64
	IncidentsOnFile int
}

// Behavior builds a behavior report for one driver, ranked against the
// whole fleet by safety score.
func (dm *DriverManager) Behavior(driverID uint64) (BehaviorReport, bool) {
	driver, ok := dm.db.store.ReadDriver(driverID)
	if !ok {
		return BehaviorReport{}, false
	}

	rep := BehaviorReport{
		DriverID:        driverID,
		SafetyScore:     driver.SafetyScore,
		TotalTrips:      driver.TotalTrips,
		TotalDistance:   driver.TotalDistance,
		HarshEvents:     driver.HarshEventsCount,
		IncidentsOnFile: len(dm.db.store.IncidentsByDriver(driverID, 0)),
	}
	if driver.TotalDistance > 0 {
		rep.EventsPer100KM = float64(driver.HarshEventsCount) / driver.TotalDistance * 100
		if driver.TotalFuelConsumed > 0 {
			rep.FuelEfficiency = driver.TotalDistance / driver.TotalFuelConsumed
		}
	}
	if driver.TotalTrips > 0 {
		rep.AvgTripDistance = driver.TotalDistance / float64(driver.TotalTrips)
	}

	for _, entry := range dm.Leaderboard(RankBySafetyScore, 0) {
		if entry.DriverID == driverID {
			rep.Rank = entry.Rank
			rep.Percentile = entry.Percentile
			break
		}
	}
	return rep, true
}

// RankingEntry is one leaderboard row.
type RankingEntry struct {
	Rank       int
	DriverID   uint64
	DriverName string
	Value      float64
	Percentile float64
}

// Leaderboard ranks active drivers descending by the chosen metric, ties
// broken by driver id ascending. Percentile is the share of drivers ranked
// strictly below. A limit of 0 returns everyone.
func (dm *DriverManager) Leaderboard(metric RankMetric, limit int) []RankingEntry {
	drivers := dm.db.store.AllDrivers()
	if len(drivers) == 0 {
		return nil
	}

	value := func(d *record.Driver) float64 {
		switch metric {
		case RankByDistance:
			return d.TotalDistance
		case RankByTripCount:
			return float64(d.TotalTrips)
		default:
			return float64(d.SafetyScore)
		}
	}

	sort.Slice(drivers, func(i, j int) bool {
		vi, vj := value(&drivers[i]), value(&drivers[j])
		if vi != vj {
			return vi > vj
		}
		return drivers[i].DriverID < drivers[j].DriverID
	})

	total := len(drivers)
	entries := make([]RankingEntry, 0, total)
	for i := range drivers {
		below := total - i - 1
		entries = append(entries, RankingEntry{
			Rank:       i + 1,
			DriverID:   drivers[i].DriverID,
			DriverName: record.Text(drivers[i].FullName[:]),
			Value:      value(&drivers[i]),
			Percentile: float64(below) / float64(total) * 100,
		})
	}

	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}

// Recommendation is one rule-derived coaching suggestion.
type Recommendation struct {
	Area    string
	Message string
}

// Recommendations derives coaching suggestions from a driver's event mix
// and recent trip telemetry.
func (dm *DriverManager) Recommendations(driverID uint64) []Recommendation {
	driver, ok := dm.db.store.ReadDriver(driverID)
	if !ok {
		return nil
	}

	var recs []Recommendation

	var harsh, rapid, speeding, turns int
	for _, t := range dm.db.store.TripsByDriver(driverID, 0) {
		harsh += int(t.HarshBrakingCount)
		rapid += int(t.RapidAccelerationCount)
		speeding += int(t.SpeedingCount)
		turns += int(t.SharpTurnCount)
	}

	if speeding > 0 {
		recs = append(recs, Recommendation{
			Area:    "speed",
			Message: fmt.Sprintf("Speeding detected on %d occasions. Keep below posted limits to protect your safety score.", speeding),
		})
	}
	if harsh > rapid && harsh > 0 {
		recs = append(recs, Recommendation{
			Area:    "braking",
			Message: fmt.Sprintf("%d harsh braking events on record. Increase following distance and anticipate stops earlier.", harsh),
		})
	}
	if rapid >= harsh && rapid > 0 {
		recs = append(recs, Recommendation{
			Area:    "acceleration",
			Message: fmt.Sprintf("%d rapid acceleration events on record. Smoother starts reduce fuel burn and wear.", rapid),
		})
	}
	if turns > 0 {
		recs = append(recs, Recommendation{
			Area:    "cornering",
			Message: fmt.Sprintf("%d sharp turns at speed. Slow down before corners, not in them.", turns),
		})
	}
	if driver.SafetyScore < 500 {
		recs = append(recs, Recommendation{
			Area:    "training",
			Message: "Safety score below 500. A defensive driving refresher is recommended.",
		})
	}
	if len(recs) == 0 {
		recs = append(recs, Recommendation{
			Area:    "general",
			Message: "No problem areas detected. Keep up the safe driving.",
		})
	}
	return recs
}
