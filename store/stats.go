package store

import "github.com/hupe1980/fleetdb/record"

// Stats accumulates database-wide counts and sums. Occupancy counts come
// from the in-memory index; the driver table is additionally scanned to sum
// distances.
func (s *Store) Stats() record.DatabaseStats {
	var stats record.DatabaseStats

	drivers := s.AllDrivers()

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return stats
	}

	for i := range drivers {
		stats.TotalDrivers++
		stats.ActiveDrivers++
		stats.TotalDistance += drivers[i].TotalDistance
	}

	stats.TotalVehicles = s.tables[record.TableVehicle].occupied.GetCardinality()
	stats.TotalTrips = s.tables[record.TableTrip].occupied.GetCardinality()
	stats.TotalExpenses = s.tables[record.TableExpense].occupied.GetCardinality()
	stats.TotalMaintenanceRecords = s.tables[record.TableMaintenance].occupied.GetCardinality()
	stats.TotalDocuments = s.tables[record.TableDocument].occupied.GetCardinality()
	stats.TotalIncidents = s.tables[record.TableIncident].occupied.GetCardinality()

	stats.DatabaseSize = s.header.TotalSize
	stats.UsedSpace = record.HeaderSize
	for i := range s.tables {
		t := &s.tables[i]
		stats.UsedSpace += t.occupied.GetCardinality() * uint64(t.slotSize)
	}
	return stats
}
