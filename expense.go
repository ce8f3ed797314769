package fleetdb

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/fleetdb/cache"
	"github.com/hupe1980/fleetdb/record"
)

// nominalDistanceKM substitutes for a driver's recorded distance in
// cost-per-kilometer calculations when no distance has been logged yet.
const nominalDistanceKM = 1000.0

// Budget is one per-driver-per-category monthly spending limit with a
// running total. Spent resets when the month rolls over.
type Budget struct {
	DriverID     uint64                 `json:"driver_id"`
	Category     record.ExpenseCategory `json:"category"`
	MonthlyLimit float64                `json:"monthly_limit"`
	AlertPercent float64                `json:"alert_percent"`
	Spent        float64                `json:"spent"`
	Month        string                 `json:"month"` // "2006-01"
}

// BudgetAlert describes a threshold crossing reported to the alert handler.
type BudgetAlert struct {
	DriverID  uint64
	Category  record.ExpenseCategory
	Limit     float64
	Spent     float64
	OverLimit bool
}

// BudgetAlertFunc receives budget alerts. It is called with the expense
// manager's lock held; handlers must not call back into the manager.
type BudgetAlertFunc func(BudgetAlert)

type budgetKey struct {
	driverID uint64
	category record.ExpenseCategory
}

// ExpenseManager records expenses and tracks per-driver monthly budgets.
// The budget book lives in memory and is persisted as a JSON sidecar next
// to the database file on Close.
type ExpenseManager struct {
	db     *FleetDB
	nextID atomic.Uint64

	mu      sync.Mutex
	budgets map[budgetKey]*Budget
	onAlert BudgetAlertFunc
}

func newExpenseManager(db *FleetDB) *ExpenseManager {
	em := &ExpenseManager{
		db:      db,
		budgets: make(map[budgetKey]*Budget),
	}
	em.nextID.Store(db.store.MaxExpenseID())
	em.loadBudgets()
	return em
}

// SetBudgetAlertFunc installs a handler for budget threshold crossings.
// Alerts are always logged regardless of handler presence.
func (em *ExpenseManager) SetBudgetAlertFunc(fn BudgetAlertFunc) {
	em.mu.Lock()
	defer em.mu.Unlock()
	em.onAlert = fn
}

// AddExpense records an expense and returns its id, or 0 on failure.
func (em *ExpenseManager) AddExpense(e record.Expense) uint64 {
	e.ExpenseID = em.nextID.Add(1)
	if e.ExpenseDate == 0 {
		e.ExpenseDate = em.db.now()
	}
	if record.Text(e.Currency[:]) == "" {
		record.SetText(e.Currency[:], "EUR")
	}

	if !em.db.store.CreateExpense(&e) {
		return 0
	}

	em.accumulateBudget(e.DriverID, e.Category, e.Amount)
	em.db.cache.ClearQueries()

	em.db.log.Info("expense recorded",
		"expense_id", e.ExpenseID, "driver_id", e.DriverID,
		"category", e.Category, "amount", e.Amount)
	return e.ExpenseID
}

// AddFuelExpense records a fuel purchase; the amount derives from quantity
// and unit price.
func (em *ExpenseManager) AddFuelExpense(driverID, vehicleID uint64, quantity, pricePerUnit float64, station string) uint64 {
	e := record.Expense{
		DriverID:         driverID,
		VehicleID:        vehicleID,
		Category:         record.ExpenseFuel,
		Amount:           quantity * pricePerUnit,
		FuelQuantity:     quantity,
		FuelPricePerUnit: pricePerUnit,
	}
	record.SetText(e.FuelStation[:], station)
	record.SetText(e.Description[:], fmt.Sprintf("Fuel: %.2fL @ %.3f", quantity, pricePerUnit))
	return em.AddExpense(e)
}

// GetExpense returns an expense by id, cache first.
func (em *ExpenseManager) GetExpense(expenseID uint64) (record.Expense, bool) {
	key := cache.EntityKey{Table: record.TableExpense, ID: expenseID}
	if v, ok := em.db.cache.GetEntity(key); ok {
		return v.(record.Expense), true
	}
	e, ok := em.db.store.ReadExpense(expenseID)
	if ok {
		em.db.cache.PutEntity(key, e)
	}
	return e, ok
}

// UpdateExpense rewrites an existing expense in place. The budget book is
// not retro-adjusted; GetBudgetStatus recomputes from the store.
func (em *ExpenseManager) UpdateExpense(e record.Expense) bool {
	if _, ok := em.db.store.ReadExpense(e.ExpenseID); !ok {
		return false
	}
	if !em.db.store.UpdateExpense(&e) {
		return false
	}
	em.db.cache.InvalidateEntity(cache.EntityKey{Table: record.TableExpense, ID: e.ExpenseID})
	em.db.cache.ClearQueries()
	return true
}

// DeleteExpense zeroes an expense's amount so it drops out of every total
// while the record itself stays auditable.
func (em *ExpenseManager) DeleteExpense(expenseID uint64) bool {
	e, ok := em.db.store.ReadExpense(expenseID)
	if !ok {
		return false
	}
	e.Amount = 0
	e.TaxAmount = 0
	return em.UpdateExpense(e)
}

// MarkTaxDeductible flags an expense for the tax report with its deductible
// amount.
func (em *ExpenseManager) MarkTaxDeductible(expenseID uint64, taxAmount float64) bool {
	e, ok := em.db.store.ReadExpense(expenseID)
	if !ok {
		return false
	}
	e.TaxDeductible = 1
	e.TaxAmount = taxAmount
	return em.UpdateExpense(e)
}

// DriverExpenses returns a driver's expenses, memoized under a query key.
func (em *ExpenseManager) DriverExpenses(driverID uint64) []record.Expense {
	key := fmt.Sprintf("driver_expenses_%d", driverID)
	ids := em.db.cache.FetchQuery(key, func() []uint64 {
		all := em.db.store.ExpensesByDriver(driverID, 0)
		ids := make([]uint64, 0, len(all))
		for i := range all {
			ids = append(ids, all[i].ExpenseID)
		}
		return ids
	})

	out := make([]record.Expense, 0, len(ids))
	for _, id := range ids {
		if e, ok := em.GetExpense(id); ok {
			out = append(out, e)
		}
	}
	return out
}

// ExpensesByCategory returns a driver's expenses in one category.
func (em *ExpenseManager) ExpensesByCategory(driverID uint64, category record.ExpenseCategory) []record.Expense {
	return em.db.store.ExpensesByCategory(driverID, category)
}

// ExpensesByDateRange returns a driver's expenses dated within [start, end]
// (Unix seconds, inclusive).
func (em *ExpenseManager) ExpensesByDateRange(driverID, start, end uint64) []record.Expense {
	all := em.db.store.ExpensesByDriver(driverID, 0)
	var out []record.Expense
	for i := range all {
		if all[i].ExpenseDate >= start && all[i].ExpenseDate <= end {
			out = append(out, all[i])
		}
	}
	return out
}

// Budgets

// SetBudget installs or replaces a monthly budget for a driver and
// category. Spent restarts from the expenses already recorded this month.
func (em *ExpenseManager) SetBudget(driverID uint64, category record.ExpenseCategory, monthlyLimit, alertPercent float64) {
	em.mu.Lock()
	defer em.mu.Unlock()

	em.budgets[budgetKey{driverID, category}] = &Budget{
		DriverID:     driverID,
		Category:     category,
		MonthlyLimit: monthlyLimit,
		AlertPercent: alertPercent,
		Spent:        em.monthSpend(driverID, category),
		Month:        em.currentMonth(),
	}
}

// GetBudgetStatus returns the budget with spend recomputed from the store
// over the current month, so drift from non-atomic updates self-corrects.
func (em *ExpenseManager) GetBudgetStatus(driverID uint64, category record.ExpenseCategory) (Budget, bool) {
	em.mu.Lock()
	defer em.mu.Unlock()

	b, ok := em.budgets[budgetKey{driverID, category}]
	if !ok {
		return Budget{}, false
	}
	em.rollMonth(b)
	b.Spent = em.monthSpend(driverID, category)
	return *b, true
}

// accumulateBudget adds an amount to the matching budget and fires the
// alert when spend crosses the threshold or the limit.
func (em *ExpenseManager) accumulateBudget(driverID uint64, category record.ExpenseCategory, amount float64) {
	em.mu.Lock()
	defer em.mu.Unlock()

	b, ok := em.budgets[budgetKey{driverID, category}]
	if !ok {
		return
	}
	em.rollMonth(b)
	b.Spent += amount

	threshold := b.MonthlyLimit * b.AlertPercent / 100
	if b.Spent < threshold && b.Spent <= b.MonthlyLimit {
		return
	}

	alert := BudgetAlert{
		DriverID:  driverID,
		Category:  category,
		Limit:     b.MonthlyLimit,
		Spent:     b.Spent,
		OverLimit: b.Spent > b.MonthlyLimit,
	}
	em.db.log.Warn("budget alert",
		"driver_id", driverID, "category", category,
		"spent", b.Spent, "limit", b.MonthlyLimit, "over_limit", alert.OverLimit)
	if em.onAlert != nil {
		em.onAlert(alert)
	}
}

// rollMonth resets the running spend when the calendar month has changed
// since the last touch. Callers hold em.mu.
func (em *ExpenseManager) rollMonth(b *Budget) {
	if month := em.currentMonth(); b.Month != month {
		b.Month = month
		b.Spent = 0
	}
}

func (em *ExpenseManager) currentMonth() string {
	return em.db.opts.clock().UTC().Format("2006-01")
}

// monthSpend sums a driver's category expenses dated in the current month.
// Callers hold em.mu.
func (em *ExpenseManager) monthSpend(driverID uint64, category record.ExpenseCategory) float64 {
	now := em.db.opts.clock().UTC()
	start := uint64(time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).Unix())
	end := uint64(now.Unix())

	var spent float64
	for _, e := range em.db.store.ExpensesByCategory(driverID, category) {
		if e.ExpenseDate >= start && e.ExpenseDate <= end {
			spent += e.Amount
		}
	}
	return spent
}

// Budget persistence. The book is a JSON sidecar next to the database file,
// written on Close and reloaded on Open.

type budgetBook struct {
	Budgets []Budget `json:"budgets"`
}

func (em *ExpenseManager) loadBudgets() {
	f, err := em.db.opts.fsys.OpenFile(em.db.opts.budgetPath, os.O_RDONLY, 0)
	if err != nil {
		return // no sidecar yet
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return
	}
	data := make([]byte, info.Size())
	if _, err := f.ReadAt(data, 0); err != nil {
		em.db.log.Warn("budget book unreadable", "path", em.db.opts.budgetPath, "error", err)
		return
	}

	var book budgetBook
	if err := json.Unmarshal(data, &book); err != nil {
		em.db.log.Warn("budget book corrupt", "path", em.db.opts.budgetPath, "error", err)
		return
	}
	for i := range book.Budgets {
		b := book.Budgets[i]
		em.budgets[budgetKey{b.DriverID, b.Category}] = &b
	}
	em.db.log.Info("budget book loaded", "budgets", len(book.Budgets))
}

func (em *ExpenseManager) saveBudgets() error {
	em.mu.Lock()
	defer em.mu.Unlock()

	if len(em.budgets) == 0 {
		return nil
	}

	book := budgetBook{Budgets: make([]Budget, 0, len(em.budgets))}
	for _, b := range em.budgets {
		book.Budgets = append(book.Budgets, *b)
	}

	data, err := json.MarshalIndent(book, "", "  ")
	if err != nil {
		return fmt.Errorf("encode budget book: %w", err)
	}

	tmp := em.db.opts.budgetPath + ".tmp"
	f, err := em.db.opts.fsys.OpenFile(tmp, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("write budget book: %w", err)
	}
	if _, err := f.WriteAt(data, 0); err != nil {
		f.Close()
		return fmt.Errorf("write budget book: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync budget book: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close budget book: %w", err)
	}
	return em.db.opts.fsys.Rename(tmp, em.db.opts.budgetPath)
}

// Summaries

// ExpenseSummary aggregates a driver's spending over a date range.
type ExpenseSummary struct {
	DriverID     uint64
	Start, End   uint64
	Total        float64
	Count        int
	ByCategory   map[record.ExpenseCategory]float64
	ByVehicle    map[uint64]float64
	DailyAvg     float64
	MonthlyAvg   float64
	TaxSubtotal  float64
	FuelQuantity float64
}

// Summary rolls up a driver's expenses dated within [start, end].
func (em *ExpenseManager) Summary(driverID, start, end uint64) ExpenseSummary {
	s := ExpenseSummary{
		DriverID:   driverID,
		Start:      start,
		End:        end,
		ByCategory: make(map[record.ExpenseCategory]float64),
		ByVehicle:  make(map[uint64]float64),
	}

	for _, e := range em.ExpensesByDateRange(driverID, start, end) {
		s.Total += e.Amount
		s.Count++
		s.ByCategory[e.Category] += e.Amount
		if e.VehicleID != 0 {
			s.ByVehicle[e.VehicleID] += e.Amount
		}
		if e.TaxDeductible == 1 {
			s.TaxSubtotal += e.TaxAmount
		}
		s.FuelQuantity += e.FuelQuantity
	}

	if end > start {
		days := float64(end-start) / 86400
		if days >= 1 {
			s.DailyAvg = s.Total / days
			s.MonthlyAvg = s.Total / (days / 30)
		} else {
			s.DailyAvg = s.Total
			s.MonthlyAvg = s.Total
		}
	}
	return s
}

// MonthlyReport summarizes one calendar month (UTC).
func (em *ExpenseManager) MonthlyReport(driverID uint64, year int, month time.Month) ExpenseSummary {
	start := uint64(time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).Unix())
	end := uint64(time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC).Unix()) - 1
	return em.Summary(driverID, start, end)
}

// TaxReport returns the tax-deductible expenses in a range plus the
// deductible total.
func (em *ExpenseManager) TaxReport(driverID, start, end uint64) ([]record.Expense, float64) {
	var out []record.Expense
	var total float64
	for _, e := range em.ExpensesByDateRange(driverID, start, end) {
		if e.TaxDeductible == 1 {
			out = append(out, e)
			total += e.TaxAmount
		}
	}
	return out, total
}

// CostPerKilometer divides a driver's total spend by their recorded
// distance, substituting a nominal distance when none is recorded yet.
func (em *ExpenseManager) CostPerKilometer(driverID uint64) float64 {
	var total float64
	for _, e := range em.db.store.ExpensesByDriver(driverID, 0) {
		total += e.Amount
	}

	distance := nominalDistanceKM
	if driver, ok := em.db.store.ReadDriver(driverID); ok && driver.TotalDistance > 0 {
		distance = driver.TotalDistance
	}
	return total / distance
}
