package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/loanboard/pkg/calendar"
	"github.com/shopspring/decimal"
)

// Modality is the repayment structure of a loan.
type Modality string

const (
	ModalitySinglePayment   Modality = "single_payment"   // principal + interest at once
	ModalityMonthlyInterest Modality = "monthly_interest" // interest every month, principal at the end
	ModalityInstallments    Modality = "installments"     // principal + interest split in N parts
)

func (m Modality) Valid() bool {
	switch m {
	case ModalitySinglePayment, ModalityMonthlyInterest, ModalityInstallments:
		return true
	}
	return false
}

type Status string

const (
	StatusPending Status = "pending"
	StatusOverdue Status = "overdue"
	StatusPaid    Status = "paid"
)

type InstallmentStatus string

const (
	InstallmentPending InstallmentStatus = "pending"
	InstallmentPaid    InstallmentStatus = "paid"
)

// PaymentType only matters for monthly-interest loans.
type PaymentType string

const (
	PaymentFull         PaymentType = "full"
	PaymentInterestOnly PaymentType = "interest_only"
)

type Installment struct {
	Number      int               `json:"installment_number"`
	Amount      decimal.Decimal   `json:"amount"`
	DueDate     calendar.Date     `json:"due_date"`
	Status      InstallmentStatus `json:"status"`
	PaymentDate calendar.Date     `json:"payment_date"`
	AmountPaid  *decimal.Decimal  `json:"amount_paid,omitempty"`
}

func (i Installment) IsPaid() bool { return i.Status == InstallmentPaid }

type Promise struct {
	Date            time.Time     `json:"date"`
	Note            string        `json:"note"`
	PromisedDueDate calendar.Date `json:"promised_due_date"`
}

type DueDateChange struct {
	OldDueDate calendar.Date `json:"old_due_date"`
	NewDueDate calendar.Date `json:"new_due_date"`
	ChangeDate time.Time     `json:"change_date"`
}

type InterestPayment struct {
	Date       calendar.Date   `json:"date"`
	AmountPaid decimal.Decimal `json:"amount_paid"`
}

type Loan struct {
	ID                  uuid.UUID       `json:"id"`
	ClientID            uuid.UUID       `json:"client_id"`
	AccountID           uuid.UUID       `json:"account_id"`
	AmountBorrowed      decimal.Decimal `json:"amount_borrowed"`
	InterestRate        decimal.Decimal `json:"interest_rate"` // percent, 10 = 10%
	DailyLateFeeAmount  decimal.Decimal `json:"daily_late_fee_amount"`
	Modality            Modality        `json:"modality"`
	Date                calendar.Date   `json:"date"`
	DueDate             calendar.Date   `json:"due_date"`
	Installments        int             `json:"installments,omitempty"`
	AmountToReceive     decimal.Decimal `json:"amount_to_receive"` // interest of the current period for monthly-interest loans
	Status              Status          `json:"status"`
	PaymentDate         calendar.Date   `json:"payment_date"`
	InstallmentsDetails []Installment   `json:"installments_details,omitempty"`

	PromiseHistory          []Promise         `json:"promise_history,omitempty"`
	DueDateHistory          []DueDateChange   `json:"due_date_history,omitempty"`
	InterestPaymentsHistory []InterestPayment `json:"interest_payments_history,omitempty"`

	IsInNegotiation bool      `json:"is_in_negotiation"`
	IsArchived      bool      `json:"is_archived"`
	Observation     string    `json:"observation,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Clone returns a deep copy so callers can mutate the result without touching l.
func (l *Loan) Clone() *Loan {
	if l == nil {
		return nil
	}
	c := *l
	if l.InstallmentsDetails != nil {
		c.InstallmentsDetails = make([]Installment, len(l.InstallmentsDetails))
		for i, inst := range l.InstallmentsDetails {
			if inst.AmountPaid != nil {
				paid := *inst.AmountPaid
				inst.AmountPaid = &paid
			}
			c.InstallmentsDetails[i] = inst
		}
	}
	c.PromiseHistory = append([]Promise(nil), l.PromiseHistory...)
	c.DueDateHistory = append([]DueDateChange(nil), l.DueDateHistory...)
	c.InterestPaymentsHistory = append([]InterestPayment(nil), l.InterestPaymentsHistory...)
	return &c
}

// Installment looks an installment up by its 1-based number.
func (l *Loan) Installment(number int) (*Installment, bool) {
	for i := range l.InstallmentsDetails {
		if l.InstallmentsDetails[i].Number == number {
			return &l.InstallmentsDetails[i], true
		}
	}
	return nil, false
}

type Client struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	Document  string    `json:"document,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type Account struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Bank      string    `json:"bank,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type TransactionType string

const (
	TransactionTypeCredit TransactionType = "credit"
	TransactionTypeDebit  TransactionType = "debit"
)

type Transaction struct {
	ID          uuid.UUID       `json:"id"`
	AccountID   uuid.UUID       `json:"account_id"`
	LoanID      uuid.UUID       `json:"loan_id"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Type        TransactionType `json:"type"`
	Date        calendar.Date   `json:"date"`
	CreatedAt   time.Time       `json:"created_at"`
}

type DeletionAction string

const (
	DeletionActionArchived DeletionAction = "archived"
	DeletionActionDeleted  DeletionAction = "deleted"
)

// DeletionRecord is the audit entry written when a loan is archived or removed.
type DeletionRecord struct {
	ID     uuid.UUID      `json:"id"`
	Type   string         `json:"type"`
	Action DeletionAction `json:"action"`
	Name   string         `json:"name"`
	Date   time.Time      `json:"date"`
}
