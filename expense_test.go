package fleetdb_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hupe1980/fleetdb"
	"github.com/hupe1980/fleetdb/record"
)

func TestBudgetBookPersistence(t *testing.T) {
	clock := newFakeClock()
	path := filepath.Join(t.TempDir(), "fleet.fdb")

	db, err := fleetdb.Create(path,
		fleetdb.WithCapacities(testCapacities()),
		fleetdb.WithLogger(fleetdb.NoopLogger()),
		fleetdb.WithClock(clock.Now),
	)
	require.NoError(t, err)

	driverID := registerDriver(t, db, "saver")
	db.Expenses.SetBudget(driverID, record.ExpenseFuel, 300, 75)
	db.Expenses.AddExpense(record.Expense{
		DriverID: driverID, Category: record.ExpenseFuel, Amount: 120,
	})
	require.NoError(t, db.Close())

	db2, err := fleetdb.Open(path,
		fleetdb.WithLogger(fleetdb.NoopLogger()),
		fleetdb.WithClock(clock.Now),
	)
	require.NoError(t, err)
	defer db2.Close()

	b, ok := db2.Expenses.GetBudgetStatus(driverID, record.ExpenseFuel)
	require.True(t, ok, "budget book must survive a restart")
	require.InDelta(t, 300, b.MonthlyLimit, 0.001)
	require.InDelta(t, 75, b.AlertPercent, 0.001)
	require.InDelta(t, 120, b.Spent, 0.001, "spend recomputed from the store")
}

func TestBudgetMonthRollover(t *testing.T) {
	clock := newFakeClock()
	db := newTestDB(t, clock)

	driverID := registerDriver(t, db, "roller")
	db.Expenses.SetBudget(driverID, record.ExpenseFuel, 100, 80)

	var alerts int
	db.Expenses.SetBudgetAlertFunc(func(fleetdb.BudgetAlert) { alerts++ })

	db.Expenses.AddExpense(record.Expense{
		DriverID: driverID, Category: record.ExpenseFuel, Amount: 90,
	})
	require.Equal(t, 1, alerts)

	// Next month: the running spend resets, so a small expense is quiet.
	clock.Advance(31 * 24 * time.Hour)
	db.Expenses.AddExpense(record.Expense{
		DriverID: driverID, Category: record.ExpenseFuel, Amount: 10,
	})
	require.Equal(t, 1, alerts)

	b, ok := db.Expenses.GetBudgetStatus(driverID, record.ExpenseFuel)
	require.True(t, ok)
	require.InDelta(t, 10, b.Spent, 0.001)
}

func TestExpenseSummary(t *testing.T) {
	clock := newFakeClock()
	db := newTestDB(t, clock)

	driverID := registerDriver(t, db, "summed")
	start := uint64(clock.Now().Unix())

	db.Expenses.AddFuelExpense(driverID, 1, 40, 1.5, "S1") // 60
	db.Expenses.AddExpense(record.Expense{
		DriverID: driverID, VehicleID: 2, Category: record.ExpenseToll, Amount: 15,
	})
	id := db.Expenses.AddExpense(record.Expense{
		DriverID: driverID, Category: record.ExpenseOther, Amount: 25,
	})
	require.True(t, db.Expenses.MarkTaxDeductible(id, 25))

	end := uint64(clock.Now().Unix())
	s := db.Expenses.Summary(driverID, start, end)
	require.Equal(t, 3, s.Count)
	require.InDelta(t, 100, s.Total, 0.001)
	require.InDelta(t, 60, s.ByCategory[record.ExpenseFuel], 0.001)
	require.InDelta(t, 15, s.ByVehicle[2], 0.001)
	require.InDelta(t, 25, s.TaxSubtotal, 0.001)

	report := db.Expenses.MonthlyReport(driverID, 2026, time.August)
	require.InDelta(t, 100, report.Total, 0.001)

	deductible, total := db.Expenses.TaxReport(driverID, start, end)
	require.Len(t, deductible, 1)
	require.InDelta(t, 25, total, 0.001)
}

func TestDeleteExpenseZeroesAmount(t *testing.T) {
	db := newTestDB(t, newFakeClock())

	driverID := registerDriver(t, db, "undo")
	id := db.Expenses.AddExpense(record.Expense{
		DriverID: driverID, Category: record.ExpenseParking, Amount: 12,
	})
	require.NotZero(t, id)

	require.True(t, db.Expenses.DeleteExpense(id))

	// The record survives for audit; its amount drops out of totals.
	e, ok := db.Expenses.GetExpense(id)
	require.True(t, ok)
	require.Zero(t, e.Amount)
	require.Zero(t, db.Expenses.CostPerKilometer(driverID))

	require.False(t, db.Expenses.DeleteExpense(999))
}

func TestExpensesByCategoryAndDateRange(t *testing.T) {
	clock := newFakeClock()
	db := newTestDB(t, clock)

	driverID := registerDriver(t, db, "filtered")

	db.Expenses.AddExpense(record.Expense{
		DriverID: driverID, Category: record.ExpenseFuel, Amount: 10,
	})
	mid := uint64(clock.Now().Unix())
	clock.Advance(time.Hour)
	db.Expenses.AddExpense(record.Expense{
		DriverID: driverID, Category: record.ExpenseToll, Amount: 20,
	})

	require.Len(t, db.Expenses.ExpensesByCategory(driverID, record.ExpenseFuel), 1)
	require.Len(t, db.Expenses.DriverExpenses(driverID), 2)

	late := db.Expenses.ExpensesByDateRange(driverID, mid+1, uint64(clock.Now().Unix()))
	require.Len(t, late, 1)
	require.Equal(t, record.ExpenseToll, late[0].Category)
}
