package fleetdb

import (
	"sync/atomic"

	"github.com/hupe1980/fleetdb/cache"
	"github.com/hupe1980/fleetdb/record"
)

// Safety-score deductions applied when an incident is reported. Mechanical
// and victim incident types carry no deduction.
const (
	accidentDeduction         = 150
	trafficViolationDeduction = 100
	defaultIncidentDeduction  = 50
)

// IncidentManager records incidents and applies their safety-score impact.
type IncidentManager struct {
	db     *FleetDB
	nextID atomic.Uint64
}

func newIncidentManager(db *FleetDB) *IncidentManager {
	im := &IncidentManager{db: db}
	im.nextID.Store(db.store.MaxIncidentID())
	return im
}

// Report records an incident and deducts from the driver's safety score
// according to the incident type. It returns the incident id, or 0 on
// failure.
func (im *IncidentManager) Report(inc record.Incident) uint64 {
	inc.IncidentID = im.nextID.Add(1)
	if inc.IncidentTime == 0 {
		inc.IncidentTime = im.db.now()
	}
	if record.Text(inc.Currency[:]) == "" {
		record.SetText(inc.Currency[:], "EUR")
	}

	if !im.db.store.CreateIncident(&inc) {
		return 0
	}

	im.applyScoreDeduction(inc.DriverID, inc.Type)
	im.db.cache.ClearQueries()

	im.db.log.Info("incident reported",
		"incident_id", inc.IncidentID, "driver_id", inc.DriverID,
		"vehicle_id", inc.VehicleID, "type", inc.Type)
	return inc.IncidentID
}

// ReportAccident records an accident with other-party and damage details.
func (im *IncidentManager) ReportAccident(driverID, vehicleID uint64, lat, lon float64, description, otherParty string, estimatedDamage float64) uint64 {
	inc := record.Incident{
		DriverID:        driverID,
		VehicleID:       vehicleID,
		Type:            record.IncidentAccident,
		Latitude:        lat,
		Longitude:       lon,
		EstimatedDamage: estimatedDamage,
	}
	record.SetText(inc.Description[:], description)
	record.SetText(inc.OtherPartyInfo[:], otherParty)
	return im.Report(inc)
}

// ReportBreakdown records a mechanical breakdown; no score deduction.
func (im *IncidentManager) ReportBreakdown(driverID, vehicleID uint64, lat, lon float64, description string) uint64 {
	inc := record.Incident{
		DriverID:  driverID,
		VehicleID: vehicleID,
		Type:      record.IncidentBreakdown,
		Latitude:  lat,
		Longitude: lon,
	}
	record.SetText(inc.Description[:], description)
	return im.Report(inc)
}

// ReportTheft records a theft with an optional police report number.
func (im *IncidentManager) ReportTheft(driverID, vehicleID uint64, lat, lon float64, description, policeReport string) uint64 {
	inc := record.Incident{
		DriverID:  driverID,
		VehicleID: vehicleID,
		Type:      record.IncidentTheft,
		Latitude:  lat,
		Longitude: lon,
	}
	record.SetText(inc.Description[:], description)
	record.SetText(inc.PoliceReportNumber[:], policeReport)
	return im.Report(inc)
}

func (im *IncidentManager) applyScoreDeduction(driverID uint64, typ record.IncidentType) {
	var deduction int
	switch typ {
	case record.IncidentAccident:
		deduction = accidentDeduction
	case record.IncidentTrafficViolation:
		deduction = trafficViolationDeduction
	case record.IncidentBreakdown, record.IncidentTheft, record.IncidentVandalism:
		return
	default:
		deduction = defaultIncidentDeduction
	}

	driver, ok := im.db.store.ReadDriver(driverID)
	if !ok {
		return
	}
	driver.SafetyScore = clampScore(int(driver.SafetyScore) - deduction)
	if !im.db.store.UpdateDriver(&driver) {
		return
	}
	im.db.cache.InvalidateEntity(cache.EntityKey{Table: record.TableDriver, ID: driverID})

	im.db.log.Info("safety score deducted",
		"driver_id", driverID, "incident_type", typ,
		"deduction", deduction, "score", driver.SafetyScore)
}

// GetIncident returns an incident by id, cache first.
func (im *IncidentManager) GetIncident(incidentID uint64) (record.Incident, bool) {
	key := cache.EntityKey{Table: record.TableIncident, ID: incidentID}
	if v, ok := im.db.cache.GetEntity(key); ok {
		return v.(record.Incident), true
	}
	inc, ok := im.db.store.ReadIncident(incidentID)
	if ok {
		im.db.cache.PutEntity(key, inc)
	}
	return inc, ok
}

func (im *IncidentManager) mutate(incidentID uint64, fn func(*record.Incident)) bool {
	inc, ok := im.db.store.ReadIncident(incidentID)
	if !ok {
		return false
	}
	fn(&inc)
	if !im.db.store.UpdateIncident(&inc) {
		return false
	}
	im.db.cache.InvalidateEntity(cache.EntityKey{Table: record.TableIncident, ID: incidentID})
	return true
}

// AddPoliceReport attaches a police report number to an incident.
func (im *IncidentManager) AddPoliceReport(incidentID uint64, reportNumber string) bool {
	return im.mutate(incidentID, func(inc *record.Incident) {
		record.SetText(inc.PoliceReportNumber[:], reportNumber)
	})
}

// AddInsuranceClaim attaches an insurance claim number and expected payout.
func (im *IncidentManager) AddInsuranceClaim(incidentID uint64, claimNumber string, payout float64) bool {
	return im.mutate(incidentID, func(inc *record.Incident) {
		record.SetText(inc.InsuranceClaimNumber[:], claimNumber)
		inc.InsurancePayout = payout
	})
}

// Resolve marks an incident resolved with closing notes.
func (im *IncidentManager) Resolve(incidentID uint64, notes string) bool {
	return im.mutate(incidentID, func(inc *record.Incident) {
		inc.Resolved = 1
		inc.ResolvedDate = im.db.now()
		record.SetText(inc.Notes[:], notes)
	})
}

// Reopen clears an incident's resolved state.
func (im *IncidentManager) Reopen(incidentID uint64) bool {
	return im.mutate(incidentID, func(inc *record.Incident) {
		inc.Resolved = 0
		inc.ResolvedDate = 0
	})
}

// DriverIncidents returns every incident reported for a driver.
func (im *IncidentManager) DriverIncidents(driverID uint64) []record.Incident {
	return im.db.store.IncidentsByDriver(driverID, 0)
}

// VehicleIncidents returns every incident reported for a vehicle.
func (im *IncidentManager) VehicleIncidents(vehicleID uint64) []record.Incident {
	return im.db.store.IncidentsByVehicle(vehicleID)
}

// IncidentsByType filters a driver's incidents to one type.
func (im *IncidentManager) IncidentsByType(driverID uint64, typ record.IncidentType) []record.Incident {
	all := im.db.store.IncidentsByDriver(driverID, 0)
	var out []record.Incident
	for i := range all {
		if all[i].Type == typ {
			out = append(out, all[i])
		}
	}
	return out
}

// UnresolvedIncidents returns a driver's open incidents.
func (im *IncidentManager) UnresolvedIncidents(driverID uint64) []record.Incident {
	all := im.db.store.IncidentsByDriver(driverID, 0)
	var out []record.Incident
	for i := range all {
		if all[i].Resolved == 0 {
			out = append(out, all[i])
		}
	}
	return out
}

// IncidentStats is the per-driver incident rollup.
type IncidentStats struct {
	Total            int
	ByType           map[record.IncidentType]int
	Unresolved       int
	TotalDamage      float64
	TotalPayout      float64
	IncidentFreeDays int
}

// Stats aggregates a driver's incident history. IncidentFreeDays counts
// whole days since the most recent report, or -1 when there are none.
func (im *IncidentManager) Stats(driverID uint64) IncidentStats {
	stats := IncidentStats{
		ByType:           make(map[record.IncidentType]int),
		IncidentFreeDays: -1,
	}

	var latest uint64
	for _, inc := range im.db.store.IncidentsByDriver(driverID, 0) {
		stats.Total++
		stats.ByType[inc.Type]++
		if inc.Resolved == 0 {
			stats.Unresolved++
		}
		stats.TotalDamage += inc.EstimatedDamage
		stats.TotalPayout += inc.InsurancePayout
		if inc.IncidentTime > latest {
			latest = inc.IncidentTime
		}
	}

	if latest > 0 {
		now := im.db.now()
		if now > latest {
			stats.IncidentFreeDays = int((now - latest) / 86400)
		} else {
			stats.IncidentFreeDays = 0
		}
	}
	return stats
}
