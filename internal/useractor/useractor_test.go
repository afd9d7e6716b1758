package useractor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apetbrz/budgetserver/internal/budget"
)

func str(s string) *string { return &s }

func TestApplyCommandNewMissingLabel(t *testing.T) {
	b := budget.New("alice")
	err := applyCommand(b, commandPayload{Command: "new", Amount: str("12.00")})
	assert.Equal(t, commandError("missing_new_label_field"), err)
}

func TestApplyCommandNewInvalidAmount(t *testing.T) {
	b := budget.New("alice")
	err := applyCommand(b, commandPayload{Command: "new", Label: str("rent"), Amount: str("not-a-number")})
	assert.Equal(t, commandError("invalid_new_amount_value"), err)
}

func TestApplyCommandNewSuccess(t *testing.T) {
	b := budget.New("alice")
	err := applyCommand(b, commandPayload{Command: "new", Label: str("Rent"), Amount: str("1200.00")})
	require.NoError(t, err)
	assert.Equal(t, int64(120000), b.ExpectedExpenses["rent"])
	assert.Equal(t, int64(0), b.CurrentExpenses["rent"])
}

func TestApplyCommandGetPaidWithAmount(t *testing.T) {
	b := budget.New("alice")
	err := applyCommand(b, commandPayload{Command: "getpaid", Amount: str("100")})
	require.NoError(t, err)
	assert.Equal(t, int64(10000), b.CurrentBalance)
}

func TestApplyCommandGetPaidWithoutAmountRunsAutomaticPayments(t *testing.T) {
	b := budget.New("alice")
	b.AddExpense("*netflix", 1500)
	b.SetIncome(10000)
	err := applyCommand(b, commandPayload{Command: "getpaid"})
	require.NoError(t, err)
	assert.Equal(t, int64(10000-1500), b.CurrentBalance)
}

func TestApplyCommandGetPaidWithoutAmountIgnoresUnaffordableAutoPayments(t *testing.T) {
	b := budget.New("alice")
	b.AddExpense("*netflix", 1500)
	b.AddExpense("*spotify", 1000)
	b.SetIncome(2000)
	err := applyCommand(b, commandPayload{Command: "getpaid"})
	require.NoError(t, err)
	assert.Equal(t, int64(2000), b.CurrentBalance)
}

func TestApplyCommandPayUnknownLabel(t *testing.T) {
	b := budget.New("alice")
	err := applyCommand(b, commandPayload{Command: "pay", Label: str("rent")})
	assert.ErrorIs(t, err, budget.ErrExpenseNotFound)
}

func TestApplyCommandPayDynamic(t *testing.T) {
	b := budget.New("alice")
	b.AddExpense("rent", 120000)
	b.GetPaidValue(120000)
	err := applyCommand(b, commandPayload{Command: "pay", Label: str("rent"), Amount: str("50.00")})
	require.NoError(t, err)
	assert.Equal(t, int64(115000), b.CurrentBalance)
	assert.Equal(t, int64(5000), b.CurrentExpenses["rent"])
}

func TestApplyCommandSaveAll(t *testing.T) {
	b := budget.New("alice")
	b.GetPaidValue(5000)
	err := applyCommand(b, commandPayload{Command: "save", Amount: str("all")})
	require.NoError(t, err)
	assert.Equal(t, int64(0), b.CurrentBalance)
	assert.Equal(t, int64(5000), b.Savings)
}

func TestApplyCommandUnknown(t *testing.T) {
	b := budget.New("alice")
	err := applyCommand(b, commandPayload{Command: "bogus"})
	assert.Equal(t, commandError("unknown_command"), err)
}

func TestErrorCodeMapsBudgetSentinels(t *testing.T) {
	assert.Equal(t, "expense_not_found", errorCode(budget.ErrExpenseNotFound))
	assert.Equal(t, "not_enough_to_save", errorCode(budget.ErrInsufficientSaving))
	assert.Equal(t, "couldnt_afford_automatic_payments", errorCode(budget.ErrAutoPaymentsFailed))
}
