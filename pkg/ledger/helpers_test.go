package ledger

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/loanboard/pkg/calendar"
	"github.com/mcclellann/loanboard/pkg/models"
	"github.com/shopspring/decimal"
)

// fixedNow is 12:00 in Brasília on 2024-03-10.
var fixedNow = time.Date(2024, time.March, 10, 15, 0, 0, 0, time.UTC)

func date(s string) calendar.Date { return calendar.MustParseDate(s) }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertMoney(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	if !dec(want).Equal(got) {
		t.Errorf("expected %s, got %s %v", want, got.String(), msgAndArgs)
	}
}

func singleLoan(borrowed, rate, fee string, due string) *models.Loan {
	b, r := dec(borrowed), dec(rate)
	return &models.Loan{
		ID:                 uuid.New(),
		ClientID:           uuid.New(),
		AccountID:          uuid.New(),
		AmountBorrowed:     b,
		InterestRate:       r,
		DailyLateFeeAmount: dec(fee),
		Modality:           models.ModalitySinglePayment,
		Date:               date("2024-01-01"),
		DueDate:            date(due),
		AmountToReceive:    AmountToReceive(models.ModalitySinglePayment, b, r),
		Status:             models.StatusPending,
	}
}

func monthlyLoan(borrowed, interest, fee string, due string) *models.Loan {
	return &models.Loan{
		ID:                 uuid.New(),
		ClientID:           uuid.New(),
		AccountID:          uuid.New(),
		AmountBorrowed:     dec(borrowed),
		InterestRate:       dec("10"),
		DailyLateFeeAmount: dec(fee),
		Modality:           models.ModalityMonthlyInterest,
		Date:               date("2024-01-01"),
		DueDate:            date(due),
		AmountToReceive:    dec(interest),
		Status:             models.StatusPending,
	}
}

func installmentLoan(t *testing.T, atr string, count int, firstDue, fee string) *models.Loan {
	t.Helper()
	schedule, err := GenerateSchedule(dec(atr), count, date(firstDue))
	if err != nil {
		t.Fatalf("failed to generate schedule: %v", err)
	}
	return &models.Loan{
		ID:                  uuid.New(),
		ClientID:            uuid.New(),
		AccountID:           uuid.New(),
		AmountBorrowed:      dec(atr),
		InterestRate:        decimal.Zero,
		DailyLateFeeAmount:  dec(fee),
		Modality:            models.ModalityInstallments,
		Date:                date("2024-01-01"),
		DueDate:             LastDueDate(schedule),
		Installments:        count,
		AmountToReceive:     dec(atr),
		Status:              models.StatusPending,
		InstallmentsDetails: schedule,
	}
}

func markPaid(loan *models.Loan, number int, on string) {
	inst, _ := loan.Installment(number)
	amount := inst.Amount
	inst.Status = models.InstallmentPaid
	inst.PaymentDate = date(on)
	inst.AmountPaid = &amount
}
