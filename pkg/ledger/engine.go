package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/loanboard/pkg/calendar"
	"github.com/mcclellann/loanboard/pkg/models"
	"github.com/shopspring/decimal"
)

// Terms are the caller-supplied fields of a loan, used on create and edit.
// Schedule carries a previously generated (and possibly hand-edited)
// installment schedule for installment loans.
type Terms struct {
	ClientID           uuid.UUID            `json:"client_id" validate:"required"`
	AccountID          uuid.UUID            `json:"account_id" validate:"required"`
	AmountBorrowed     decimal.Decimal      `json:"amount_borrowed" validate:"gt=0"`
	InterestRate       decimal.Decimal      `json:"interest_rate" validate:"gte=0"`
	DailyLateFeeAmount decimal.Decimal      `json:"daily_late_fee_amount" validate:"gte=0"`
	Modality           models.Modality      `json:"modality" validate:"required,modality"`
	Date               calendar.Date        `json:"date"`
	DueDate            calendar.Date        `json:"due_date" validate:"required"`
	Installments       int                  `json:"installments" validate:"gte=0,lte=360,required_if=Modality installments"`
	Schedule           []models.Installment `json:"installments_details"`
	IsInNegotiation    bool                 `json:"is_in_negotiation"`
	Observation        string               `json:"observation" validate:"max=2000"`
}

// Payment describes money received for a loan.
type Payment struct {
	Date              calendar.Date      `json:"payment_date"`
	Amount            decimal.Decimal    `json:"amount_paid" validate:"gt=0"`
	AccountID         uuid.UUID          `json:"account_id" validate:"required"`
	InstallmentNumber int                `json:"installment_number" validate:"gte=0"`
	Type              models.PaymentType `json:"payment_type" validate:"omitempty,oneof=full interest_only"`
}

// NewLoan builds a loan from terms and the debit transaction for the money
// lent, dated at origination. today fills a missing origination date.
func NewLoan(terms Terms, clientName string, today calendar.Date, now time.Time) (*models.Loan, *models.Transaction, error) {
	if err := validateStruct(terms); err != nil {
		return nil, nil, err
	}

	loan := &models.Loan{
		ID:                 uuid.New(),
		ClientID:           terms.ClientID,
		AccountID:          terms.AccountID,
		AmountBorrowed:     RoundCents(terms.AmountBorrowed),
		InterestRate:       terms.InterestRate,
		DailyLateFeeAmount: RoundCents(terms.DailyLateFeeAmount),
		Modality:           terms.Modality,
		Date:               terms.Date,
		DueDate:            terms.DueDate,
		IsInNegotiation:    terms.IsInNegotiation,
		Observation:        terms.Observation,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if loan.Date.IsZero() {
		loan.Date = today
	}

	if loan.Modality == models.ModalityInstallments {
		if err := adoptSchedule(loan, terms.Schedule); err != nil {
			return nil, nil, err
		}
	} else {
		loan.AmountToReceive = AmountToReceive(loan.Modality, loan.AmountBorrowed, loan.InterestRate)
	}
	loan.Status = EffectiveStatus(loan, today)

	tx := &models.Transaction{
		ID:          uuid.New(),
		AccountID:   loan.AccountID,
		LoanID:      loan.ID,
		Description: fmt.Sprintf("Loan to %s", clientName),
		Amount:      loan.AmountBorrowed,
		Type:        models.TransactionTypeDebit,
		Date:        loan.Date,
		CreatedAt:   now,
	}
	return loan, tx, nil
}

// adoptSchedule installs a confirmed schedule on an installment loan and
// derives amount_to_receive and due_date from it.
func adoptSchedule(loan *models.Loan, schedule []models.Installment) error {
	if len(schedule) == 0 {
		return invalid("installments_details", "generate and confirm the installment schedule first")
	}
	seen := make(map[int]bool, len(schedule))
	details := make([]models.Installment, len(schedule))
	for i, inst := range schedule {
		if inst.Number < 1 || inst.Number > len(schedule) || seen[inst.Number] {
			return invalid("installments_details", "installment numbers must run from 1 to %d", len(schedule))
		}
		seen[inst.Number] = true
		if !inst.Amount.IsPositive() {
			return invalid("installments_details", "installment %d amount must be greater than zero", inst.Number)
		}
		if inst.DueDate.IsZero() {
			return invalid("installments_details", "installment %d has no due date", inst.Number)
		}
		inst.Amount = RoundCents(inst.Amount)
		if inst.Status == "" {
			inst.Status = models.InstallmentPending
		}
		details[i] = inst
	}
	loan.InstallmentsDetails = details
	syncScheduleAggregates(loan)
	return nil
}

// EditLoan applies new terms to an existing loan.
func EditLoan(loan *models.Loan, terms Terms, today calendar.Date, now time.Time) (*models.Loan, error) {
	if err := validateStruct(terms); err != nil {
		return nil, err
	}

	out := loan.Clone()
	termsChanged := !loan.AmountBorrowed.Equal(terms.AmountBorrowed) ||
		!loan.InterestRate.Equal(terms.InterestRate) ||
		loan.Modality != terms.Modality

	out.ClientID = terms.ClientID
	out.AccountID = terms.AccountID
	out.AmountBorrowed = RoundCents(terms.AmountBorrowed)
	out.InterestRate = terms.InterestRate
	out.DailyLateFeeAmount = RoundCents(terms.DailyLateFeeAmount)
	out.Modality = terms.Modality
	out.IsInNegotiation = terms.IsInNegotiation
	out.Observation = terms.Observation
	if !terms.Date.IsZero() {
		out.Date = terms.Date
	}

	if out.Modality == models.ModalityInstallments {
		switch {
		case len(terms.Schedule) > 0:
			if err := adoptSchedule(out, terms.Schedule); err != nil {
				return nil, err
			}
		case loan.Modality != models.ModalityInstallments:
			return nil, invalid("installments_details", "generate and confirm the installment schedule first")
		case terms.Installments != len(loan.InstallmentsDetails):
			return nil, invalid("installments", "regenerate the schedule to change the number of installments")
		case termsChanged:
			expected := AmountToReceive(out.Modality, out.AmountBorrowed, out.InterestRate)
			if !expected.Equal(ScheduleTotal(out.InstallmentsDetails)) {
				return nil, fmt.Errorf("expected %s, schedule sums %s: %w",
					expected.StringFixed(2), ScheduleTotal(out.InstallmentsDetails).StringFixed(2), ErrInconsistentSchedule)
			}
		}
	} else {
		if termsChanged {
			out.AmountToReceive = AmountToReceive(out.Modality, out.AmountBorrowed, out.InterestRate)
		}
		out.Installments = 0
		out.InstallmentsDetails = nil
		if !terms.DueDate.Equal(loan.DueDate) {
			out.DueDateHistory = append(out.DueDateHistory, models.DueDateChange{
				OldDueDate: loan.DueDate,
				NewDueDate: terms.DueDate,
				ChangeDate: now,
			})
			out.DueDate = terms.DueDate
		}
	}

	out.Status = EffectiveStatus(out, today)
	out.UpdatedAt = now
	return out, nil
}

// ApplyPayment records a payment on the loan and returns the credit
// transaction for the receiving account.
func ApplyPayment(loan *models.Loan, p Payment, clientName string, today calendar.Date, now time.Time) (*models.Loan, *models.Transaction, error) {
	if err := validateStruct(p); err != nil {
		return nil, nil, err
	}
	if loan.IsArchived {
		return nil, nil, invalid("loan", "archived loans cannot receive payments")
	}
	if EffectiveStatus(loan, today) == models.StatusPaid {
		return nil, nil, invalid("loan", "loan is already paid")
	}
	if p.Date.IsZero() {
		p.Date = today
	}
	amount := RoundCents(p.Amount)

	out := loan.Clone()
	description := fmt.Sprintf("Loan payment - %s", clientName)

	switch out.Modality {
	case models.ModalityMonthlyInterest:
		if p.Type == models.PaymentInterestOnly {
			out.InterestPaymentsHistory = append(out.InterestPaymentsHistory, models.InterestPayment{
				Date:       p.Date,
				AmountPaid: amount,
			})
			out.DueDate = out.DueDate.AddMonths(1)
			out.Status = EffectiveStatus(out, today)
			description = fmt.Sprintf("Interest payment - %s", clientName)
		} else {
			out.Status = models.StatusPaid
			out.PaymentDate = p.Date
		}

	case models.ModalityInstallments:
		if p.InstallmentNumber == 0 {
			return nil, nil, invalid("installment_number", "is required for installment loans")
		}
		inst, ok := out.Installment(p.InstallmentNumber)
		if !ok {
			return nil, nil, invalid("installment_number", "installment %d does not exist", p.InstallmentNumber)
		}
		if inst.IsPaid() {
			return nil, nil, invalid("installment_number", "installment %d is already paid", p.InstallmentNumber)
		}
		inst.Status = models.InstallmentPaid
		inst.PaymentDate = p.Date
		inst.AmountPaid = &amount

		if allInstallmentsPaid(out) {
			out.Status = models.StatusPaid
			out.PaymentDate = latestInstallmentPayment(out)
		} else {
			out.Status = EffectiveStatus(out, today)
		}
		description = fmt.Sprintf("Installment %d/%d payment - %s", p.InstallmentNumber, len(out.InstallmentsDetails), clientName)

	default:
		out.Status = models.StatusPaid
		out.PaymentDate = p.Date
	}
	out.UpdatedAt = now

	tx := &models.Transaction{
		ID:          uuid.New(),
		AccountID:   p.AccountID,
		LoanID:      out.ID,
		Description: description,
		Amount:      amount,
		Type:        models.TransactionTypeCredit,
		Date:        p.Date,
		CreatedAt:   now,
	}
	return out, tx, nil
}

func latestInstallmentPayment(loan *models.Loan) calendar.Date {
	var latest calendar.Date
	for _, inst := range loan.InstallmentsDetails {
		latest = calendar.Latest(latest, inst.PaymentDate)
	}
	return latest
}

// AddPromise logs a promise to pay and moves the due date to the promised
// date. The promise log is the record of that change, due_date_history is
// left alone. On installment loans the earliest unpaid installment moves.
func AddPromise(loan *models.Loan, promised calendar.Date, note string, today calendar.Date, now time.Time) (*models.Loan, error) {
	if promised.IsZero() {
		return nil, invalid("promised_due_date", "is required")
	}
	if loan.IsArchived {
		return nil, invalid("loan", "archived loans cannot receive promises")
	}
	if EffectiveStatus(loan, today) == models.StatusPaid {
		return nil, invalid("loan", "loan is already paid")
	}

	out := loan.Clone()
	out.PromiseHistory = append(out.PromiseHistory, models.Promise{
		Date:            now,
		Note:            note,
		PromisedDueDate: promised,
	})

	if out.Modality == models.ModalityInstallments {
		if inst := earliestPending(out); inst != nil {
			inst.DueDate = promised
		}
		out.DueDate = LastDueDate(out.InstallmentsDetails)
	} else {
		out.DueDate = promised
	}
	out.Status = EffectiveStatus(out, today)
	out.UpdatedAt = now
	return out, nil
}

func earliestPending(loan *models.Loan) *models.Installment {
	var found *models.Installment
	for i := range loan.InstallmentsDetails {
		inst := &loan.InstallmentsDetails[i]
		if inst.IsPaid() {
			continue
		}
		if found == nil || inst.DueDate.Before(found.DueDate) {
			found = inst
		}
	}
	return found
}

// Archive soft-deletes the loan. History is kept intact.
func Archive(loan *models.Loan, clientName string, now time.Time) (*models.Loan, *models.DeletionRecord, error) {
	if loan.IsArchived {
		return nil, nil, invalid("loan", "loan is already archived")
	}
	out := loan.Clone()
	out.IsArchived = true
	out.UpdatedAt = now
	return out, NewDeletionRecord(models.DeletionActionArchived, clientName, now), nil
}

// Restore brings an archived loan back.
func Restore(loan *models.Loan, now time.Time) (*models.Loan, error) {
	if !loan.IsArchived {
		return nil, invalid("loan", "loan is not archived")
	}
	out := loan.Clone()
	out.IsArchived = false
	out.UpdatedAt = now
	return out, nil
}

// NewDeletionRecord builds the audit entry for an archived or deleted loan.
func NewDeletionRecord(action models.DeletionAction, clientName string, now time.Time) *models.DeletionRecord {
	return &models.DeletionRecord{
		ID:     uuid.New(),
		Type:   "loan",
		Action: action,
		Name:   clientName,
		Date:   now,
	}
}
