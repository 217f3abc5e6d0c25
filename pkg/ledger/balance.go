package ledger

import (
	"github.com/mcclellann/loanboard/pkg/calendar"
	"github.com/mcclellann/loanboard/pkg/models"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Balance is what a loan owes as of a reference date.
type Balance struct {
	Principal decimal.Decimal `json:"principal"` // principal still to be returned on top of AmountDue
	AmountDue decimal.Decimal `json:"amount_due"`
	LateFee   decimal.Decimal `json:"late_fee"`
	Total     decimal.Decimal `json:"total"`
}

// RoundCents rounds half-up to two decimal places.
func RoundCents(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// AmountToReceive derives the stored amount_to_receive from the loan terms.
// Monthly-interest loans keep only one period of interest there.
func AmountToReceive(modality models.Modality, borrowed, rate decimal.Decimal) decimal.Decimal {
	interest := borrowed.Mul(rate).Div(hundred)
	if modality == models.ModalityMonthlyInterest {
		return RoundCents(interest)
	}
	return RoundCents(borrowed.Add(interest))
}

func isSettled(loan *models.Loan) bool {
	return loan.Status == models.StatusPaid || loan.IsArchived
}

// LateFee is daily_late_fee_amount times the days overdue. Installment loans
// accrue it per unpaid installment, always at the loan's daily rate.
func LateFee(loan *models.Loan, ref calendar.Date) decimal.Decimal {
	if isSettled(loan) {
		return decimal.Zero
	}
	if loan.Modality == models.ModalityInstallments {
		fee := decimal.Zero
		for _, inst := range loan.InstallmentsDetails {
			if inst.IsPaid() {
				continue
			}
			fee = fee.Add(feeFor(loan, inst.DueDate, ref))
		}
		return fee
	}
	return feeFor(loan, loan.DueDate, ref)
}

func feeFor(loan *models.Loan, due, ref calendar.Date) decimal.Decimal {
	days := calendar.DaysOverdue(due, ref)
	return loan.DailyLateFeeAmount.Mul(decimal.NewFromInt(int64(days)))
}

// Outstanding computes the total currently owed, late fees included.
// Paid and archived loans owe nothing.
func Outstanding(loan *models.Loan, ref calendar.Date) Balance {
	b := Balance{
		Principal: decimal.Zero,
		AmountDue: decimal.Zero,
		LateFee:   decimal.Zero,
		Total:     decimal.Zero,
	}
	if isSettled(loan) {
		return b
	}

	switch loan.Modality {
	case models.ModalityInstallments:
		for _, inst := range loan.InstallmentsDetails {
			if inst.IsPaid() {
				continue
			}
			b.AmountDue = b.AmountDue.Add(inst.Amount)
			b.LateFee = b.LateFee.Add(feeFor(loan, inst.DueDate, ref))
		}
	case models.ModalityMonthlyInterest:
		b.Principal = loan.AmountBorrowed
		b.AmountDue = loan.AmountToReceive
		b.LateFee = feeFor(loan, loan.DueDate, ref)
	default:
		b.AmountDue = loan.AmountToReceive
		b.LateFee = feeFor(loan, loan.DueDate, ref)
	}

	b.Total = b.Principal.Add(b.AmountDue).Add(b.LateFee)
	return b
}

// DaysOverdue is the delay of the loan's oldest unpaid obligation.
func DaysOverdue(loan *models.Loan, ref calendar.Date) int {
	if isSettled(loan) {
		return 0
	}
	return calendar.DaysOverdue(NextDueDate(loan), ref)
}

// PaymentDue suggests the amount to collect for a payment of the given kind.
func PaymentDue(loan *models.Loan, paymentType models.PaymentType, installmentNumber int, ref calendar.Date) (decimal.Decimal, error) {
	if isSettled(loan) {
		return decimal.Zero, nil
	}

	switch loan.Modality {
	case models.ModalityInstallments:
		inst, ok := loan.Installment(installmentNumber)
		if !ok {
			return decimal.Zero, invalid("installment_number", "installment %d does not exist", installmentNumber)
		}
		if inst.IsPaid() {
			return decimal.Zero, nil
		}
		return inst.Amount.Add(feeFor(loan, inst.DueDate, ref)), nil
	case models.ModalityMonthlyInterest:
		fee := feeFor(loan, loan.DueDate, ref)
		if paymentType == models.PaymentInterestOnly {
			return loan.AmountToReceive.Add(fee), nil
		}
		return loan.AmountBorrowed.Add(loan.AmountToReceive).Add(fee), nil
	default:
		return Outstanding(loan, ref).Total, nil
	}
}
