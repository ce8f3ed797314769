package store

import "github.com/hupe1980/fleetdb/record"

// Drivers

// CreateDriver writes a driver profile into the first free slot. The caller
// pre-assigns a unique id.
func (s *Store) CreateDriver(d *record.Driver) bool { return driverOps.create(s, d) }

// ReadDriver returns the live driver with the given id.
func (s *Store) ReadDriver(id uint64) (record.Driver, bool) { return driverOps.read(s, id) }

// UpdateDriver overwrites the live slot matching the driver's id.
func (s *Store) UpdateDriver(d *record.Driver) bool { return driverOps.update(s, d) }

// DeleteDriver soft-deletes a live driver. Deleting an already-inactive
// driver returns false.
func (s *Store) DeleteDriver(id uint64) bool { return driverOps.softDelete(s, id) }

// AllDrivers returns every live driver in slot order.
func (s *Store) AllDrivers() []record.Driver {
	return driverOps.scan(s, func(*record.Driver) bool { return true }, 0)
}

// MaxDriverID returns the maximum driver id observed since open.
func (s *Store) MaxDriverID() uint64 { return driverOps.maxID(s) }

// Vehicles

func (s *Store) CreateVehicle(v *record.Vehicle) bool { return vehicleOps.create(s, v) }

func (s *Store) ReadVehicle(id uint64) (record.Vehicle, bool) { return vehicleOps.read(s, id) }

func (s *Store) UpdateVehicle(v *record.Vehicle) bool { return vehicleOps.update(s, v) }

func (s *Store) DeleteVehicle(id uint64) bool { return vehicleOps.softDelete(s, id) }

// VehiclesByOwner returns the live vehicles owned by a driver.
func (s *Store) VehiclesByOwner(ownerID uint64) []record.Vehicle {
	return vehicleOps.scan(s, func(v *record.Vehicle) bool { return v.OwnerDriverID == ownerID }, 0)
}

// AllVehicles returns every live vehicle in slot order.
func (s *Store) AllVehicles() []record.Vehicle {
	return vehicleOps.scan(s, func(*record.Vehicle) bool { return true }, 0)
}

func (s *Store) MaxVehicleID() uint64 { return vehicleOps.maxID(s) }

// Trips

func (s *Store) CreateTrip(t *record.Trip) bool { return tripOps.create(s, t) }

func (s *Store) ReadTrip(id uint64) (record.Trip, bool) { return tripOps.read(s, id) }

func (s *Store) UpdateTrip(t *record.Trip) bool { return tripOps.update(s, t) }

// TripsByDriver returns up to limit trips for a driver, in slot order.
func (s *Store) TripsByDriver(driverID uint64, limit int) []record.Trip {
	return tripOps.scan(s, func(t *record.Trip) bool { return t.DriverID == driverID }, limit)
}

// ActiveTrips returns every trip persisted with a start time and no end
// time, used to rehydrate in-memory trip state after a restart.
func (s *Store) ActiveTrips() []record.Trip {
	return tripOps.scan(s, func(t *record.Trip) bool { return t.EndTime == 0 }, 0)
}

func (s *Store) MaxTripID() uint64 { return tripOps.maxID(s) }

// Maintenance

func (s *Store) CreateMaintenance(m *record.Maintenance) bool { return maintenanceOps.create(s, m) }

func (s *Store) ReadMaintenance(id uint64) (record.Maintenance, bool) {
	return maintenanceOps.read(s, id)
}

// MaintenanceByVehicle returns every service record for a vehicle.
func (s *Store) MaintenanceByVehicle(vehicleID uint64) []record.Maintenance {
	return maintenanceOps.scan(s, func(m *record.Maintenance) bool { return m.VehicleID == vehicleID }, 0)
}

func (s *Store) MaxMaintenanceID() uint64 { return maintenanceOps.maxID(s) }

// Expenses
//
// There is no delete primitive for expenses at the store layer; callers
// zero the amount via UpdateExpense.

func (s *Store) CreateExpense(e *record.Expense) bool { return expenseOps.create(s, e) }

func (s *Store) ReadExpense(id uint64) (record.Expense, bool) { return expenseOps.read(s, id) }

func (s *Store) UpdateExpense(e *record.Expense) bool { return expenseOps.update(s, e) }

// ExpensesByDriver returns up to limit expenses for a driver, in slot order.
func (s *Store) ExpensesByDriver(driverID uint64, limit int) []record.Expense {
	return expenseOps.scan(s, func(e *record.Expense) bool { return e.DriverID == driverID }, limit)
}

// ExpensesByCategory returns a driver's expenses in one category.
func (s *Store) ExpensesByCategory(driverID uint64, category record.ExpenseCategory) []record.Expense {
	return expenseOps.scan(s, func(e *record.Expense) bool {
		return e.DriverID == driverID && e.Category == category
	}, 0)
}

func (s *Store) MaxExpenseID() uint64 { return expenseOps.maxID(s) }

// Documents

func (s *Store) CreateDocument(d *record.Document) bool { return documentOps.create(s, d) }

func (s *Store) ReadDocument(id uint64) (record.Document, bool) { return documentOps.read(s, id) }

// DocumentsByOwner returns document metadata for one owner.
func (s *Store) DocumentsByOwner(ownerID uint64) []record.Document {
	return documentOps.scan(s, func(d *record.Document) bool { return d.OwnerID == ownerID }, 0)
}

func (s *Store) MaxDocumentID() uint64 { return documentOps.maxID(s) }

// Incidents

func (s *Store) CreateIncident(i *record.Incident) bool { return incidentOps.create(s, i) }

func (s *Store) ReadIncident(id uint64) (record.Incident, bool) { return incidentOps.read(s, id) }

func (s *Store) UpdateIncident(i *record.Incident) bool { return incidentOps.update(s, i) }

// IncidentsByDriver returns up to limit incident reports for a driver.
func (s *Store) IncidentsByDriver(driverID uint64, limit int) []record.Incident {
	return incidentOps.scan(s, func(i *record.Incident) bool { return i.DriverID == driverID }, limit)
}

// IncidentsByVehicle returns every incident report for a vehicle.
func (s *Store) IncidentsByVehicle(vehicleID uint64) []record.Incident {
	return incidentOps.scan(s, func(i *record.Incident) bool { return i.VehicleID == vehicleID }, 0)
}

func (s *Store) MaxIncidentID() uint64 { return incidentOps.maxID(s) }
