package store

import "github.com/hupe1980/fleetdb/record"

// ops binds the generic slot-table algorithms to one entity type. Expected
// conditions (not open, not found, table full) surface as boolean results,
// never as errors; I/O failures are logged and folded into the same
// contract.
type ops[T any] struct {
	tbl   record.Table
	id    func(*T) uint64
	empty func(*T) bool
	clear func(*T) // soft delete; nil for tables without a liveness marker
}

var (
	driverOps = ops[record.Driver]{
		tbl:   record.TableDriver,
		id:    func(d *record.Driver) uint64 { return d.DriverID },
		empty: func(d *record.Driver) bool { return d.Active == 0 },
		clear: func(d *record.Driver) { d.Active = 0 },
	}
	vehicleOps = ops[record.Vehicle]{
		tbl:   record.TableVehicle,
		id:    func(v *record.Vehicle) uint64 { return v.VehicleID },
		empty: func(v *record.Vehicle) bool { return v.Active == 0 },
		clear: func(v *record.Vehicle) { v.Active = 0 },
	}
	tripOps = ops[record.Trip]{
		tbl:   record.TableTrip,
		id:    func(t *record.Trip) uint64 { return t.TripID },
		empty: func(t *record.Trip) bool { return t.TripID == 0 },
	}
	maintenanceOps = ops[record.Maintenance]{
		tbl:   record.TableMaintenance,
		id:    func(m *record.Maintenance) uint64 { return m.MaintenanceID },
		empty: func(m *record.Maintenance) bool { return m.MaintenanceID == 0 },
	}
	expenseOps = ops[record.Expense]{
		tbl:   record.TableExpense,
		id:    func(e *record.Expense) uint64 { return e.ExpenseID },
		empty: func(e *record.Expense) bool { return e.ExpenseID == 0 },
	}
	documentOps = ops[record.Document]{
		tbl:   record.TableDocument,
		id:    func(d *record.Document) uint64 { return d.DocumentID },
		empty: func(d *record.Document) bool { return d.DocumentID == 0 },
	}
	incidentOps = ops[record.Incident]{
		tbl:   record.TableIncident,
		id:    func(i *record.Incident) uint64 { return i.IncidentID },
		empty: func(i *record.Incident) bool { return i.IncidentID == 0 },
	}
)

// create writes rec into the first free slot. The caller must have assigned
// a unique id; the store does not check for collisions.
func (o ops[T]) create(s *Store, rec *T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return false
	}
	t := &s.tables[o.tbl]
	idx, ok := t.firstFree()
	if !ok {
		s.log.Warn("table full", "table", o.tbl.String(), "capacity", t.capacity)
		return false
	}
	if !s.writeSlot(t, idx, rec) {
		return false
	}
	id := o.id(rec)
	t.occupied.Add(idx)
	t.idToSlot[id] = idx
	if id > t.maxID {
		t.maxID = id
	}
	return true
}

// read returns the record with the given id, or a zero record and false.
func (o ops[T]) read(s *Store, id uint64) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	if !s.open || id == 0 {
		return zero, false
	}
	t := &s.tables[o.tbl]

	if idx, ok := t.idToSlot[id]; ok {
		if rec, ok := o.decodeAt(s, t, idx); ok && o.id(&rec) == id && !o.empty(&rec) {
			return rec, true
		}
	}

	// The index disagreed with the file; fall back to the linear scan that
	// defines the lookup semantics.
	for i := uint32(0); i < t.capacity; i++ {
		rec, ok := o.decodeAt(s, t, i)
		if !ok {
			return zero, false
		}
		if o.id(&rec) == id && !o.empty(&rec) {
			t.idToSlot[id] = i
			return rec, true
		}
	}
	return zero, false
}

// update overwrites the slot holding rec's id. For tables with a liveness
// marker only a live slot matches. If the new image is empty under the
// table's rule, the slot becomes reusable.
func (o ops[T]) update(s *Store, rec *T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return false
	}
	id := o.id(rec)
	t := &s.tables[o.tbl]
	idx, ok := t.idToSlot[id]
	if !ok {
		return false
	}
	if !s.writeSlot(t, idx, rec) {
		return false
	}
	if o.empty(rec) {
		t.occupied.Remove(idx)
		delete(t.idToSlot, id)
	}
	return true
}

// softDelete flips the liveness marker of a live record. Deleting an
// already-inactive or unknown id is a no-op failure.
func (o ops[T]) softDelete(s *Store, id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open || o.clear == nil {
		return false
	}
	t := &s.tables[o.tbl]
	idx, ok := t.idToSlot[id]
	if !ok {
		return false
	}
	rec, ok := o.decodeAt(s, t, idx)
	if !ok || o.id(&rec) != id || o.empty(&rec) {
		return false
	}
	o.clear(&rec)
	if !s.writeSlot(t, idx, &rec) {
		return false
	}
	t.occupied.Remove(idx)
	delete(t.idToSlot, id)
	return true
}

// scan collects records matching keep, in slot order. limit <= 0 means
// unlimited; otherwise the scan stops early once the limit is satisfied.
func (o ops[T]) scan(s *Store, keep func(*T) bool, limit int) []T {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return nil
	}
	t := &s.tables[o.tbl]
	var out []T
	it := t.occupied.Iterator()
	for it.HasNext() {
		idx := it.Next()
		rec, ok := o.decodeAt(s, t, idx)
		if !ok {
			break
		}
		if o.empty(&rec) || !keep(&rec) {
			continue
		}
		out = append(out, rec)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// maxID returns the maximum id observed in the table since open. Ids are
// never reused within a run even after soft deletes, so this is the correct
// seed for id generation.
func (o ops[T]) maxID(s *Store) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return 0
	}
	return s.tables[o.tbl].maxID
}

func (o ops[T]) decodeAt(s *Store, t *tableInfo, i uint32) (T, bool) {
	var rec T
	buf := make([]byte, t.slotSize)
	if !s.readSlot(t, i, buf) {
		return rec, false
	}
	if err := record.Decode(buf, &rec); err != nil {
		s.log.Warn("slot decode failed", "table", o.tbl.String(), "slot", i, "error", err)
		return rec, false
	}
	return rec, true
}
