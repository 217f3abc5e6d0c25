// Package report builds the read-only management views over a set of loans.
// Nothing here mutates a loan; every figure is derived for a reference date.
package report

import (
	"fmt"
	"sort"

	"github.com/mcclellann/loanboard/pkg/calendar"
	"github.com/mcclellann/loanboard/pkg/ledger"
	"github.com/mcclellann/loanboard/pkg/models"
	"github.com/shopspring/decimal"
)

type Filter string

const (
	FilterAll      Filter = "all"
	FilterPending  Filter = "pending"
	FilterOverdue  Filter = "overdue"
	FilterPaid     Filter = "paid"
	FilterUrgent   Filter = "urgent"
	FilterArchived Filter = "archived"
)

// ParseFilter maps a query value to a Filter; empty means all.
func ParseFilter(s string) (Filter, error) {
	switch f := Filter(s); f {
	case "":
		return FilterAll, nil
	case FilterAll, FilterPending, FilterOverdue, FilterPaid, FilterUrgent, FilterArchived:
		return f, nil
	}
	return "", fmt.Errorf("unknown filter %q", s)
}

// Apply keeps the loans matching f. Archived loans only show up under
// FilterArchived.
func Apply(loans []*models.Loan, f Filter, ref calendar.Date, urgentWindow int) []*models.Loan {
	out := []*models.Loan{}
	for _, loan := range loans {
		if f == FilterArchived {
			if loan.IsArchived {
				out = append(out, loan)
			}
			continue
		}
		if loan.IsArchived {
			continue
		}
		switch f {
		case FilterAll:
			out = append(out, loan)
		case FilterUrgent:
			if ledger.IsUrgent(loan, ref, urgentWindow) {
				out = append(out, loan)
			}
		default:
			if string(ledger.EffectiveStatus(loan, ref)) == string(f) {
				out = append(out, loan)
			}
		}
	}
	return out
}

// Summary aggregates the portfolio as of a date. Archived loans are left out.
type Summary struct {
	ReferenceDate    calendar.Date   `json:"reference_date"`
	TotalLoans       int             `json:"total_loans"`
	PendingCount     int             `json:"pending_count"`
	OverdueCount     int             `json:"overdue_count"`
	PaidCount        int             `json:"paid_count"`
	UrgentCount      int             `json:"urgent_count"`
	ArchivedCount    int             `json:"archived_count"`
	TotalLent        decimal.Decimal `json:"total_lent"`
	OpenPrincipal    decimal.Decimal `json:"open_principal"`
	TotalOutstanding decimal.Decimal `json:"total_outstanding"`
	TotalLateFees    decimal.Decimal `json:"total_late_fees"`
	OverdueAmount    decimal.Decimal `json:"overdue_amount"`
	ExpectedProfit   decimal.Decimal `json:"expected_profit"`
	InterestReceived decimal.Decimal `json:"interest_received"`
}

// Summarize derives the dashboard totals for loans as of ref.
func Summarize(loans []*models.Loan, ref calendar.Date, urgentWindow int) Summary {
	s := Summary{
		ReferenceDate:    ref,
		TotalLent:        decimal.Zero,
		OpenPrincipal:    decimal.Zero,
		TotalOutstanding: decimal.Zero,
		TotalLateFees:    decimal.Zero,
		OverdueAmount:    decimal.Zero,
		ExpectedProfit:   decimal.Zero,
		InterestReceived: decimal.Zero,
	}

	for _, loan := range loans {
		if loan.IsArchived {
			s.ArchivedCount++
			continue
		}
		s.TotalLoans++
		s.TotalLent = s.TotalLent.Add(loan.AmountBorrowed)
		for _, p := range loan.InterestPaymentsHistory {
			s.InterestReceived = s.InterestReceived.Add(p.AmountPaid)
		}

		status := ledger.EffectiveStatus(loan, ref)
		balance := ledger.Outstanding(loan, ref)
		s.TotalOutstanding = s.TotalOutstanding.Add(balance.Total)
		s.TotalLateFees = s.TotalLateFees.Add(balance.LateFee)

		switch status {
		case models.StatusPaid:
			s.PaidCount++
			continue
		case models.StatusOverdue:
			s.OverdueCount++
			s.OverdueAmount = s.OverdueAmount.Add(balance.Total)
		default:
			s.PendingCount++
			if ledger.IsUrgent(loan, ref, urgentWindow) {
				s.UrgentCount++
			}
		}

		s.OpenPrincipal = s.OpenPrincipal.Add(loan.AmountBorrowed)
		s.ExpectedProfit = s.ExpectedProfit.Add(expectedInterest(loan))
	}
	return s
}

// expectedInterest is the interest still to be earned on an open loan.
func expectedInterest(loan *models.Loan) decimal.Decimal {
	if loan.Modality == models.ModalityMonthlyInterest {
		return loan.AmountToReceive
	}
	return loan.AmountToReceive.Sub(loan.AmountBorrowed)
}

// OverdueEntry is one line of the collection list.
type OverdueEntry struct {
	Loan        *models.Loan    `json:"loan"`
	DaysOverdue int             `json:"days_overdue"`
	Outstanding decimal.Decimal `json:"outstanding"`
}

// OverdueRanking lists the overdue loans, longest delay first.
func OverdueRanking(loans []*models.Loan, ref calendar.Date) []OverdueEntry {
	entries := []OverdueEntry{}
	for _, loan := range loans {
		if loan.IsArchived || ledger.EffectiveStatus(loan, ref) != models.StatusOverdue {
			continue
		}
		entries = append(entries, OverdueEntry{
			Loan:        loan,
			DaysOverdue: ledger.DaysOverdue(loan, ref),
			Outstanding: ledger.Outstanding(loan, ref).Total,
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].DaysOverdue != entries[j].DaysOverdue {
			return entries[i].DaysOverdue > entries[j].DaysOverdue
		}
		return entries[i].Outstanding.GreaterThan(entries[j].Outstanding)
	})
	return entries
}

// AccountBalance reduces an account statement to its balance: credits minus debits.
func AccountBalance(transactions []*models.Transaction) decimal.Decimal {
	balance := decimal.Zero
	for _, tx := range transactions {
		switch tx.Type {
		case models.TransactionTypeCredit:
			balance = balance.Add(tx.Amount)
		case models.TransactionTypeDebit:
			balance = balance.Sub(tx.Amount)
		}
	}
	return balance
}
