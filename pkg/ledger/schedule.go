package ledger

import (
	"github.com/mcclellann/loanboard/pkg/calendar"
	"github.com/mcclellann/loanboard/pkg/models"
	"github.com/shopspring/decimal"
)

const maxInstallments = 360

// GenerateSchedule splits amountToReceive into count monthly installments
// starting at firstDue. Every installment is truncated to cents and the last
// one absorbs the remainder, so the schedule always sums to amountToReceive.
func GenerateSchedule(amountToReceive decimal.Decimal, count int, firstDue calendar.Date) ([]models.Installment, error) {
	if count < 1 || count > maxInstallments {
		return nil, invalid("installments", "must be between 1 and %d", maxInstallments)
	}
	if !amountToReceive.IsPositive() {
		return nil, invalid("amount_to_receive", "must be greater than zero")
	}
	if firstDue.IsZero() {
		return nil, invalid("due_date", "first due date is required")
	}

	total := RoundCents(amountToReceive)
	share := total.Div(decimal.NewFromInt(int64(count))).Truncate(2)

	schedule := make([]models.Installment, count)
	allocated := decimal.Zero
	for i := 0; i < count; i++ {
		amount := share
		if i == count-1 {
			amount = total.Sub(allocated)
		}
		allocated = allocated.Add(amount)
		schedule[i] = models.Installment{
			Number:  i + 1,
			Amount:  amount,
			DueDate: firstDue.AddMonths(i),
			Status:  models.InstallmentPending,
		}
	}
	return schedule, nil
}

// ScheduleTotal sums the installment amounts.
func ScheduleTotal(schedule []models.Installment) decimal.Decimal {
	total := decimal.Zero
	for _, inst := range schedule {
		total = total.Add(inst.Amount)
	}
	return total
}

// LastDueDate is the latest due date across the schedule.
func LastDueDate(schedule []models.Installment) calendar.Date {
	var last calendar.Date
	for _, inst := range schedule {
		last = calendar.Latest(last, inst.DueDate)
	}
	return last
}

// HasPaidInstallments tells whether regenerating would destroy payment history.
func HasPaidInstallments(loan *models.Loan) bool {
	for _, inst := range loan.InstallmentsDetails {
		if inst.IsPaid() {
			return true
		}
	}
	return false
}

// RegenerateSchedule rebuilds the schedule of an installment loan from its
// current amount_to_receive, installment count and first due date. It
// overwrites unconditionally; callers decide whether paid installments may go.
func RegenerateSchedule(loan *models.Loan, firstDue calendar.Date) (*models.Loan, error) {
	if loan.Modality != models.ModalityInstallments {
		return nil, invalid("modality", "schedules only apply to installment loans")
	}
	if firstDue.IsZero() {
		firstDue = firstInstallmentDue(loan)
	}
	schedule, err := GenerateSchedule(loan.AmountToReceive, loan.Installments, firstDue)
	if err != nil {
		return nil, err
	}

	out := loan.Clone()
	out.InstallmentsDetails = schedule
	out.DueDate = LastDueDate(schedule)
	out.Status = models.StatusPending
	out.PaymentDate = calendar.Date{}
	return out, nil
}

func firstInstallmentDue(loan *models.Loan) calendar.Date {
	if inst, ok := loan.Installment(1); ok {
		return inst.DueDate
	}
	return loan.DueDate
}

// EditInstallment applies a manual edit to one installment. The edited
// installments are the source of truth: amount_to_receive and due_date follow.
func EditInstallment(loan *models.Loan, number int, amount decimal.Decimal, dueDate calendar.Date) (*models.Loan, error) {
	if loan.Modality != models.ModalityInstallments {
		return nil, invalid("modality", "only installment loans have installments")
	}
	if amount.IsNegative() || amount.IsZero() {
		return nil, invalid("amount", "must be greater than zero")
	}

	out := loan.Clone()
	inst, ok := out.Installment(number)
	if !ok {
		return nil, invalid("installment_number", "installment %d does not exist", number)
	}
	inst.Amount = RoundCents(amount)
	if !dueDate.IsZero() {
		inst.DueDate = dueDate
	}
	syncScheduleAggregates(out)
	return out, nil
}

func syncScheduleAggregates(loan *models.Loan) {
	loan.AmountToReceive = ScheduleTotal(loan.InstallmentsDetails)
	loan.DueDate = LastDueDate(loan.InstallmentsDetails)
	loan.Installments = len(loan.InstallmentsDetails)
}
