package fleetdb

import (
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/hupe1980/fleetdb/cache"
	"github.com/hupe1980/fleetdb/record"
)

// Default service interval applied when a maintenance record carries no
// explicit next-service target.
const (
	serviceIntervalSeconds = 180 * 86400 // ~6 months
	serviceIntervalKM      = 10000.0
)

// MaintenanceAlert is one due or overdue item surfaced for a vehicle.
// Severity grows with how far past due the item is; Priority orders alerts
// of equal severity.
type MaintenanceAlert struct {
	AlertID      uint64
	VehicleID    uint64
	DriverID     uint64
	Description  string
	DueTimestamp uint64
	Priority     int
	Severity     int
}

// VehicleManager handles the vehicle fleet, service records and the
// maintenance alert surface.
type VehicleManager struct {
	db           *FleetDB
	nextID       atomic.Uint64
	nextMaintID  atomic.Uint64
	alertCounter atomic.Uint64
}

func newVehicleManager(db *FleetDB) *VehicleManager {
	vm := &VehicleManager{db: db}
	vm.nextID.Store(db.store.MaxVehicleID())
	vm.nextMaintID.Store(db.store.MaxMaintenanceID())
	return vm
}

// AddVehicle registers a vehicle and returns its id, or 0 when the table is
// full.
func (vm *VehicleManager) AddVehicle(plate, make, model string, year uint32, typ record.VehicleType, ownerID uint64, vin string) uint64 {
	v := record.NewVehicle(vm.nextID.Add(1), ownerID)
	v.Year = year
	v.Type = typ
	v.CreatedTime = vm.db.now()
	record.SetText(v.LicensePlate[:], plate)
	record.SetText(v.Make[:], make)
	record.SetText(v.Model[:], model)
	record.SetText(v.VIN[:], vin)

	if !vm.db.store.CreateVehicle(&v) {
		return 0
	}
	vm.db.cache.ClearQueries()

	vm.db.log.Info("vehicle added",
		"vehicle_id", v.VehicleID, "plate", plate, "owner_id", ownerID)
	return v.VehicleID
}

// GetVehicle returns a vehicle by id, cache first.
func (vm *VehicleManager) GetVehicle(vehicleID uint64) (record.Vehicle, bool) {
	key := cache.EntityKey{Table: record.TableVehicle, ID: vehicleID}
	if v, ok := vm.db.cache.GetEntity(key); ok {
		return v.(record.Vehicle), true
	}
	veh, ok := vm.db.store.ReadVehicle(vehicleID)
	if ok {
		vm.db.cache.PutEntity(key, veh)
	}
	return veh, ok
}

// UpdateVehicle rewrites a vehicle record in place.
func (vm *VehicleManager) UpdateVehicle(v record.Vehicle) bool {
	if !vm.db.store.UpdateVehicle(&v) {
		return false
	}
	vm.db.cache.InvalidateEntity(cache.EntityKey{Table: record.TableVehicle, ID: v.VehicleID})
	vm.db.cache.ClearQueries()
	return true
}

// DeleteVehicle soft-deletes a vehicle.
func (vm *VehicleManager) DeleteVehicle(vehicleID uint64) bool {
	if !vm.db.store.DeleteVehicle(vehicleID) {
		return false
	}
	vm.db.cache.InvalidateEntity(cache.EntityKey{Table: record.TableVehicle, ID: vehicleID})
	vm.db.cache.ClearQueries()
	return true
}

// OwnerVehicles returns a driver's vehicles, memoizing the id list.
func (vm *VehicleManager) OwnerVehicles(ownerID uint64) []record.Vehicle {
	key := fmt.Sprintf("owner_vehicles_%d", ownerID)
	ids := vm.db.cache.FetchQuery(key, func() []uint64 {
		all := vm.db.store.VehiclesByOwner(ownerID)
		ids := make([]uint64, 0, len(all))
		for i := range all {
			ids = append(ids, all[i].VehicleID)
		}
		return ids
	})

	out := make([]record.Vehicle, 0, len(ids))
	for _, id := range ids {
		if v, ok := vm.GetVehicle(id); ok {
			out = append(out, v)
		}
	}
	return out
}

// UpdateOdometer advances a vehicle's odometer. Readings lower than the
// current value are rejected.
func (vm *VehicleManager) UpdateOdometer(vehicleID uint64, reading float64) bool {
	v, ok := vm.db.store.ReadVehicle(vehicleID)
	if !ok {
		return false
	}
	if reading < v.CurrentOdometer {
		vm.db.log.Warn("odometer rollback rejected",
			"vehicle_id", vehicleID, "current", v.CurrentOdometer, "reading", reading)
		return false
	}
	v.CurrentOdometer = reading
	return vm.UpdateVehicle(v)
}

// SetInsurance records a vehicle's insurance policy and expiry.
func (vm *VehicleManager) SetInsurance(vehicleID uint64, provider, policy string, expiry uint64) bool {
	v, ok := vm.db.store.ReadVehicle(vehicleID)
	if !ok {
		return false
	}
	record.SetText(v.InsuranceProvider[:], provider)
	record.SetText(v.InsurancePolicy[:], policy)
	v.InsuranceExpiry = expiry
	return vm.UpdateVehicle(v)
}

// SetRegistrationExpiry records when a vehicle's registration lapses.
func (vm *VehicleManager) SetRegistrationExpiry(vehicleID uint64, expiry uint64) bool {
	v, ok := vm.db.store.ReadVehicle(vehicleID)
	if !ok {
		return false
	}
	v.RegistrationExpiry = expiry
	return vm.UpdateVehicle(v)
}

// AddMaintenanceRecord logs a service visit, advances the vehicle's service
// bookkeeping and schedules the next due date. It returns the record id, or
// 0 on failure.
func (vm *VehicleManager) AddMaintenanceRecord(vehicleID, driverID uint64, typ record.MaintenanceType, odometer float64, serviceCenter, description string, cost float64) uint64 {
	v, ok := vm.db.store.ReadVehicle(vehicleID)
	if !ok {
		return 0
	}

	m := record.Maintenance{
		MaintenanceID:       vm.nextMaintID.Add(1),
		VehicleID:           vehicleID,
		DriverID:            driverID,
		Type:                typ,
		ServiceDate:         vm.db.now(),
		OdometerReading:     odometer,
		TotalCost:           cost,
		NextServiceDate:     vm.db.now() + serviceIntervalSeconds,
		NextServiceOdometer: odometer + serviceIntervalKM,
	}
	record.SetText(m.ServiceCenter[:], serviceCenter)
	record.SetText(m.Description[:], description)
	record.SetText(m.Currency[:], "EUR")

	if !vm.db.store.CreateMaintenance(&m) {
		return 0
	}

	v.LastMaintenanceDate = m.ServiceDate
	v.LastServiceOdometer = odometer
	if odometer > v.CurrentOdometer {
		v.CurrentOdometer = odometer
	}
	v.NextMaintenanceDue = m.NextServiceDate
	vm.UpdateVehicle(v)

	vm.db.log.Info("maintenance recorded",
		"maintenance_id", m.MaintenanceID, "vehicle_id", vehicleID,
		"type", typ, "cost", cost)
	return m.MaintenanceID
}

// MaintenanceHistory returns a vehicle's service records, newest first.
func (vm *VehicleManager) MaintenanceHistory(vehicleID uint64) []record.Maintenance {
	history := vm.db.store.MaintenanceByVehicle(vehicleID)
	sort.Slice(history, func(i, j int) bool {
		return history[i].ServiceDate > history[j].ServiceDate
	})
	return history
}

// MaintenanceCost sums a vehicle's service spend.
func (vm *VehicleManager) MaintenanceCost(vehicleID uint64) float64 {
	var total float64
	for _, m := range vm.db.store.MaintenanceByVehicle(vehicleID) {
		total += m.TotalCost
	}
	return total
}

// VehicleAlerts collects a single vehicle's due items: scheduled service by
// date, service by odometer, insurance and registration expiry.
func (vm *VehicleManager) VehicleAlerts(vehicleID uint64) []MaintenanceAlert {
	v, ok := vm.db.store.ReadVehicle(vehicleID)
	if !ok {
		return nil
	}
	return vm.alertsFor(&v)
}

// TopAlerts scans the whole fleet and returns the n most urgent alerts,
// ordered by severity then due date.
func (vm *VehicleManager) TopAlerts(n int) []MaintenanceAlert {
	var alerts []MaintenanceAlert
	for _, v := range vm.db.store.AllVehicles() {
		alerts = append(alerts, vm.alertsFor(&v)...)
	}

	sort.Slice(alerts, func(i, j int) bool {
		if alerts[i].Severity != alerts[j].Severity {
			return alerts[i].Severity > alerts[j].Severity
		}
		return alerts[i].DueTimestamp < alerts[j].DueTimestamp
	})
	for i := range alerts {
		alerts[i].Priority = i + 1
	}

	if n > 0 && len(alerts) > n {
		alerts = alerts[:n]
	}
	return alerts
}

const alertHorizonSeconds = 30 * 86400

func (vm *VehicleManager) alertsFor(v *record.Vehicle) []MaintenanceAlert {
	now := vm.db.now()
	horizon := now + alertHorizonSeconds
	plate := record.Text(v.LicensePlate[:])

	var alerts []MaintenanceAlert

	add := func(description string, due uint64) {
		alerts = append(alerts, MaintenanceAlert{
			AlertID:      vm.alertCounter.Add(1),
			VehicleID:    v.VehicleID,
			DriverID:     v.OwnerDriverID,
			Description:  description,
			DueTimestamp: due,
			Severity:     alertSeverity(now, due),
		})
	}

	if v.NextMaintenanceDue > 0 && v.NextMaintenanceDue <= horizon {
		add(fmt.Sprintf("Service due for %s", plate), v.NextMaintenanceDue)
	}
	if v.CurrentOdometer-v.LastServiceOdometer >= serviceIntervalKM {
		add(fmt.Sprintf("Service by odometer for %s: %.0f km since last service",
			plate, v.CurrentOdometer-v.LastServiceOdometer), now)
	}
	if v.InsuranceExpiry > 0 && v.InsuranceExpiry <= horizon {
		add(fmt.Sprintf("Insurance expires for %s", plate), v.InsuranceExpiry)
	}
	if v.RegistrationExpiry > 0 && v.RegistrationExpiry <= horizon {
		add(fmt.Sprintf("Registration expires for %s", plate), v.RegistrationExpiry)
	}
	return alerts
}

// alertSeverity grades an alert from 1 (upcoming) to 3 (overdue by more
// than a week).
func alertSeverity(now, due uint64) int {
	if due >= now {
		return 1
	}
	if now-due > 7*86400 {
		return 3
	}
	return 2
}
