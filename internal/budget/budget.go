// Package budget implements the per-user Budget domain object and the
// command semantics that mutate it. Grounded on
// _examples/original_source/server/src/budget.rs, generalized from
// dollars-as-f64 to the spec's integer-cents representation throughout.
package budget

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const automaticPaymentPrefix = '*'

// Sentinel errors surfaced as {"error": "<code>"} by the per-user actor.
var (
	ErrExpenseNotFound    = errors.New("expense_not_found")
	ErrInsufficientSaving = errors.New("not_enough_to_save")
	ErrAutoPaymentsFailed = errors.New("couldnt_afford_automatic_payments")
)

// Budget is the mutable per-user state described in spec.md §3.
type Budget struct {
	Username         string           `json:"username"`
	ExpectedIncome   int64            `json:"expected_income"`
	CurrentBalance   int64            `json:"current_balance"`
	ExpectedExpenses map[string]int64 `json:"expected_expenses"`
	CurrentExpenses  map[string]int64 `json:"current_expenses"`
	Savings          int64            `json:"savings"`
}

// New returns an empty Budget for a freshly registered user.
func New(username string) *Budget {
	return &Budget{
		Username:         username,
		ExpectedExpenses: make(map[string]int64),
		CurrentExpenses:  make(map[string]int64),
	}
}

// MarshalNew returns the JSON this actor's initial row should hold.
func MarshalNew(username string) (string, error) {
	b, err := json.Marshal(New(username))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// FromJSON deserializes a Budget, initializing nil maps so downstream
// mutation never panics on a freshly-loaded row.
func FromJSON(data []byte) (*Budget, error) {
	var b Budget
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, err
	}
	if b.ExpectedExpenses == nil {
		b.ExpectedExpenses = make(map[string]int64)
	}
	if b.CurrentExpenses == nil {
		b.CurrentExpenses = make(map[string]int64)
	}
	return &b, nil
}

// JSON serializes the Budget back to its wire/storage representation.
func (b *Budget) JSON() (string, error) {
	out, err := json.Marshal(b)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// AddExpense creates or overwrites an expected_expenses entry (label
// lower-cased) and resets current_expenses[label] to zero.
func (b *Budget) AddExpense(label string, cents int64) {
	key := strings.ToLower(label)
	b.ExpectedExpenses[key] = cents
	b.CurrentExpenses[key] = 0
}

// SetIncome overwrites expected_income.
func (b *Budget) SetIncome(cents int64) {
	b.ExpectedIncome = cents
}

// AddIncome adds to expected_income.
func (b *Budget) AddIncome(cents int64) {
	b.ExpectedIncome += cents
}

// GetPaidValue adds an explicit amount straight to current_balance,
// bypassing the refresh/automatic-payment flow.
func (b *Budget) GetPaidValue(cents int64) {
	b.CurrentBalance += cents
}

// Refresh zeroes every current_expenses entry, the "new pay period" reset.
func (b *Budget) Refresh() {
	for k := range b.CurrentExpenses {
		b.CurrentExpenses[k] = 0
	}
}

// GetPaid resets current expenses, credits expected_income to the
// balance, and then attempts every automatic ('*'-prefixed) payment as a
// single atomic batch: either all succeed or none are applied.
func (b *Budget) GetPaid() error {
	b.Refresh()
	b.CurrentBalance += b.ExpectedIncome
	return b.makeAutomaticPayments()
}

// makeAutomaticPayments sums every '*'-prefixed expected expense and, only
// if the balance can cover the full sum, applies each as a static payment.
// No automatic expenses is a silent no-op, matching the original's -1
// sentinel for "nothing to do".
func (b *Budget) makeAutomaticPayments() error {
	var autos []string
	var total int64
	for label, amount := range b.ExpectedExpenses {
		if len(label) > 0 && rune(label[0]) == automaticPaymentPrefix {
			autos = append(autos, label)
			total += amount
		}
	}

	if total == 0 {
		return nil
	}

	if b.CurrentBalance-total < 0 {
		return ErrAutoPaymentsFailed
	}

	for _, label := range autos {
		if _, err := b.MakeStaticPayment(label); err != nil {
			return err
		}
	}
	return nil
}

// MakeStaticPayment pays an expense using its expected_expenses amount.
func (b *Budget) MakeStaticPayment(label string) (string, error) {
	key := strings.ToLower(label)
	amount, ok := b.ExpectedExpenses[key]
	if !ok {
		return "", ErrExpenseNotFound
	}
	return b.MakeDynamicPayment(key, amount)
}

// MakeDynamicPayment pays an arbitrary amount against an existing expense
// category, deducting from current_balance and crediting current_expenses.
func (b *Budget) MakeDynamicPayment(label string, cents int64) (string, error) {
	key := strings.ToLower(label)
	if _, ok := b.CurrentExpenses[key]; !ok {
		return "", ErrExpenseNotFound
	}
	b.CurrentBalance -= cents
	b.CurrentExpenses[key] += cents
	return fmt.Sprintf("Payment made: %s to %s", FormatDollars(cents), ToTitleCase(key)), nil
}

// Save moves cents from current_balance into savings.
func (b *Budget) Save(cents int64) (string, error) {
	if b.CurrentBalance < cents {
		return "", ErrInsufficientSaving
	}
	b.CurrentBalance -= cents
	b.Savings += cents
	return fmt.Sprintf("%s saved!", FormatDollars(cents)), nil
}

// SaveAll moves the entire current_balance into savings.
func (b *Budget) SaveAll() (string, error) {
	return b.Save(b.CurrentBalance)
}

// FormatDollars renders an integer-cents amount as "$X.YY".
func FormatDollars(cents int64) string {
	neg := cents < 0
	if neg {
		cents = -cents
	}
	dollars := cents / 100
	rem := cents % 100
	sign := ""
	if neg {
		sign = "-"
	}
	return fmt.Sprintf("%s$%d.%02d", sign, dollars, rem)
}

// DollarsToCents converts a float dollar amount to integer cents. Rounds
// rather than truncates: float64 can't represent e.g. 12.34 exactly, and
// truncation after multiplying by 100 would round 12.34 down to 1233.
func DollarsToCents(dollars float64) int64 {
	return int64(math.Round(dollars * 100))
}

// ParseDollarString accepts "12", "$12", "12.34", "$12.34" and returns the
// integer-cents value, or an error for empty/unparsable input.
func ParseDollarString(s string) (int64, error) {
	if s == "" {
		return 0, errors.New("empty_dollar_string")
	}
	s = strings.TrimPrefix(s, "$")

	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n * 100, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errors.New("not_a_number")
	}
	return DollarsToCents(f), nil
}

// ToTitleCase upper-cases the first letter (or the letter after a leading
// automatic-payment '*' marker) of s.
func ToTitleCase(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	start := 0
	if runes[0] == automaticPaymentPrefix && len(runes) > 1 {
		start = 1
	}
	runes[start] = []rune(strings.ToUpper(string(runes[start])))[0]
	return string(runes)
}
