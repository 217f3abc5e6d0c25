package ledger

import (
	"github.com/mcclellann/loanboard/pkg/calendar"
	"github.com/mcclellann/loanboard/pkg/models"
)

// DefaultUrgentWindow is how many days ahead a due date counts as urgent.
const DefaultUrgentWindow = 3

// EffectiveStatus derives pending/overdue/paid from the loan and ref. The
// stored status is only trusted for the terminal paid case.
func EffectiveStatus(loan *models.Loan, ref calendar.Date) models.Status {
	if loan.Status == models.StatusPaid {
		return models.StatusPaid
	}

	if loan.Modality == models.ModalityInstallments {
		if allInstallmentsPaid(loan) {
			return models.StatusPaid
		}
		for _, inst := range loan.InstallmentsDetails {
			if !inst.IsPaid() && inst.DueDate.Before(ref) {
				return models.StatusOverdue
			}
		}
		return models.StatusPending
	}

	if loan.DueDate.Before(ref) {
		return models.StatusOverdue
	}
	return models.StatusPending
}

func allInstallmentsPaid(loan *models.Loan) bool {
	if len(loan.InstallmentsDetails) == 0 {
		return false
	}
	for _, inst := range loan.InstallmentsDetails {
		if !inst.IsPaid() {
			return false
		}
	}
	return true
}

// NextDueDate is the earliest unpaid installment due date, or the loan due date.
func NextDueDate(loan *models.Loan) calendar.Date {
	if loan.Modality != models.ModalityInstallments {
		return loan.DueDate
	}
	var next calendar.Date
	for _, inst := range loan.InstallmentsDetails {
		if inst.IsPaid() {
			continue
		}
		if next.IsZero() || inst.DueDate.Before(next) {
			next = inst.DueDate
		}
	}
	if next.IsZero() {
		return loan.DueDate
	}
	return next
}

// IsUrgent flags pending loans due within window days. Display only.
func IsUrgent(loan *models.Loan, ref calendar.Date, window int) bool {
	if loan.IsArchived || EffectiveStatus(loan, ref) != models.StatusPending {
		return false
	}
	days := calendar.DaysUntil(NextDueDate(loan), ref)
	return days >= 0 && days <= window
}
