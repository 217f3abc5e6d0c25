package ledger

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/loanboard/pkg/calendar"
	"github.com/mcclellann/loanboard/pkg/models"
	"github.com/mcclellann/loanboard/pkg/store"
	"github.com/shopspring/decimal"
)

type fixture struct {
	store   *store.MemoryStore
	ledger  *Ledger
	client  *models.Client
	account *models.Account
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := store.NewMemoryStore()
	l := NewLedger(s, WithClock(func() time.Time { return fixedNow }))

	client, err := l.CreateClient("Maria Souza", "(11) 98765-4321", "")
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	account, err := l.CreateAccount("Caixa", "Nubank")
	if err != nil {
		t.Fatalf("Failed to create account: %v", err)
	}
	return &fixture{store: s, ledger: l, client: client, account: account}
}

func (f *fixture) terms() Terms {
	return Terms{
		ClientID:           f.client.ID,
		AccountID:          f.account.ID,
		AmountBorrowed:     decimal.NewFromInt(1500),
		InterestRate:       decimal.NewFromInt(10),
		DailyLateFeeAmount: decimal.NewFromInt(15),
		Modality:           models.ModalitySinglePayment,
		Date:               date("2024-02-10"),
		DueDate:            date("2024-03-01"),
	}
}

func (f *fixture) installmentLoan(t *testing.T, count int, firstDue string) *models.Loan {
	t.Helper()
	preview, err := f.ledger.PreviewSchedule(decimal.NewFromInt(1000), decimal.NewFromInt(20), count, date(firstDue))
	if err != nil {
		t.Fatalf("Failed to preview schedule: %v", err)
	}
	terms := f.terms()
	terms.AmountBorrowed = decimal.NewFromInt(1000)
	terms.InterestRate = decimal.NewFromInt(20)
	terms.Modality = models.ModalityInstallments
	terms.Installments = count
	terms.Schedule = preview.Installments

	loan, err := f.ledger.CreateLoan(terms)
	if err != nil {
		t.Fatalf("Failed to create installment loan: %v", err)
	}
	return loan
}

func TestToday(t *testing.T) {
	// 01:30 UTC is still the previous day in Brasília.
	l := NewLedger(store.NewMemoryStore(), WithClock(func() time.Time {
		return time.Date(2024, time.March, 11, 1, 30, 0, 0, time.UTC)
	}))
	if got := l.Today().String(); got != "2024-03-10" {
		t.Errorf("Expected 2024-03-10, got %s", got)
	}
}

func TestCreateLoan(t *testing.T) {
	f := newFixture(t)

	loan, err := f.ledger.CreateLoan(f.terms())
	if err != nil {
		t.Fatalf("Failed to create loan: %v", err)
	}

	if !loan.AmountToReceive.Equal(decimal.NewFromInt(1650)) {
		t.Errorf("Expected amount to receive 1650, got %s", loan.AmountToReceive)
	}
	if loan.Status != models.StatusOverdue {
		t.Errorf("Expected status overdue, got %s", loan.Status)
	}

	stored, err := f.ledger.GetLoan(loan.ID)
	if err != nil {
		t.Fatalf("Failed to load loan: %v", err)
	}
	if !stored.AmountBorrowed.Equal(decimal.NewFromInt(1500)) {
		t.Errorf("Expected stored principal 1500, got %s", stored.AmountBorrowed)
	}

	txs, _ := f.store.GetTransactionsForLoan(loan.ID)
	if len(txs) != 1 {
		t.Fatalf("Expected 1 transaction (disbursement), got %d", len(txs))
	}
	if txs[0].Type != models.TransactionTypeDebit || txs[0].Description != "Loan to Maria Souza" {
		t.Errorf("Unexpected disbursement %+v", txs[0])
	}
}

func TestCreateLoanUnknownReferences(t *testing.T) {
	f := newFixture(t)

	terms := f.terms()
	terms.ClientID = uuid.New()
	if _, err := f.ledger.CreateLoan(terms); !errors.Is(err, ErrValidation) {
		t.Errorf("Expected validation error for unknown client, got %v", err)
	}

	terms = f.terms()
	terms.AccountID = uuid.New()
	if _, err := f.ledger.CreateLoan(terms); !errors.Is(err, ErrValidation) {
		t.Errorf("Expected validation error for unknown account, got %v", err)
	}

	loans, _ := f.ledger.GetAllLoans()
	if len(loans) != 0 {
		t.Errorf("Expected no loans stored, got %d", len(loans))
	}
}

func TestGetLoanView(t *testing.T) {
	f := newFixture(t)
	loan, _ := f.ledger.CreateLoan(f.terms())

	view, err := f.ledger.GetLoanView(loan.ID)
	if err != nil {
		t.Fatalf("Failed to load view: %v", err)
	}

	// Due 2024-03-01, today 2024-03-10: 9 days at 15.
	if view.DaysOverdue != 9 {
		t.Errorf("Expected 9 days overdue, got %d", view.DaysOverdue)
	}
	if !view.Balance.Total.Equal(decimal.NewFromInt(1785)) {
		t.Errorf("Expected outstanding 1785, got %s", view.Balance.Total)
	}
	if view.EffectiveStatus != models.StatusOverdue || view.Urgent {
		t.Errorf("Unexpected view status %s urgent=%v", view.EffectiveStatus, view.Urgent)
	}

	if _, err := f.ledger.GetLoanView(uuid.New()); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected not found, got %v", err)
	}
}

func TestRecordPayment(t *testing.T) {
	f := newFixture(t)
	loan, _ := f.ledger.CreateLoan(f.terms())

	tx, err := f.ledger.RecordPayment(loan.ID, Payment{
		Amount:    decimal.NewFromInt(1785),
		AccountID: f.account.ID,
	})
	if err != nil {
		t.Fatalf("Failed to record payment: %v", err)
	}
	if tx.Type != models.TransactionTypeCredit || tx.Date != f.ledger.Today() {
		t.Errorf("Unexpected payment transaction %+v", tx)
	}

	stored, _ := f.ledger.GetLoan(loan.ID)
	if stored.Status != models.StatusPaid {
		t.Errorf("Expected status paid, got %s", stored.Status)
	}

	statement, err := f.ledger.GetAccountTransactions(f.account.ID)
	if err != nil {
		t.Fatalf("Failed to load statement: %v", err)
	}
	if len(statement) != 2 {
		t.Errorf("Expected debit and credit on the account, got %d entries", len(statement))
	}

	// A second payment on a paid loan is rejected and writes nothing.
	if _, err := f.ledger.RecordPayment(loan.ID, Payment{Amount: decimal.NewFromInt(1), AccountID: f.account.ID}); !errors.Is(err, ErrValidation) {
		t.Errorf("Expected validation error, got %v", err)
	}
	txs, _ := f.store.GetTransactionsForLoan(loan.ID)
	if len(txs) != 2 {
		t.Errorf("Expected 2 transactions, got %d", len(txs))
	}
}

func TestRecordPaymentUnknownAccount(t *testing.T) {
	f := newFixture(t)
	loan, _ := f.ledger.CreateLoan(f.terms())

	_, err := f.ledger.RecordPayment(loan.ID, Payment{Amount: decimal.NewFromInt(10), AccountID: uuid.New()})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("Expected validation error, got %v", err)
	}
	stored, _ := f.ledger.GetLoan(loan.ID)
	if stored.Status == models.StatusPaid {
		t.Error("Loan must not change on a rejected payment")
	}
}

func TestRecordPaymentInterestOnly(t *testing.T) {
	f := newFixture(t)
	terms := f.terms()
	terms.Modality = models.ModalityMonthlyInterest
	terms.AmountBorrowed = decimal.NewFromInt(1000)
	terms.DueDate = date("2024-01-31")
	loan, err := f.ledger.CreateLoan(terms)
	if err != nil {
		t.Fatalf("Failed to create loan: %v", err)
	}

	_, err = f.ledger.RecordPayment(loan.ID, Payment{
		Date:      date("2024-01-30"),
		Amount:    decimal.NewFromInt(100),
		AccountID: f.account.ID,
		Type:      models.PaymentInterestOnly,
	})
	if err != nil {
		t.Fatalf("Failed to record interest payment: %v", err)
	}

	stored, _ := f.ledger.GetLoan(loan.ID)
	if stored.DueDate.String() != "2024-02-29" {
		t.Errorf("Expected due date 2024-02-29, got %s", stored.DueDate)
	}
	if len(stored.InterestPaymentsHistory) != 1 {
		t.Errorf("Expected 1 interest payment, got %d", len(stored.InterestPaymentsHistory))
	}
	if stored.Status == models.StatusPaid {
		t.Error("Interest-only payment must not settle the loan")
	}
}

func TestConcurrentInstallmentPayments(t *testing.T) {
	f := newFixture(t)
	loan := f.installmentLoan(t, 12, "2024-04-10")

	var wg sync.WaitGroup
	errs := make(chan error, 12)
	for n := 1; n <= 12; n++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			inst, _ := loan.Installment(n)
			_, err := f.ledger.RecordPayment(loan.ID, Payment{
				Amount:            inst.Amount,
				AccountID:         f.account.ID,
				InstallmentNumber: n,
			})
			errs <- err
		}(n)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("Payment failed: %v", err)
		}
	}

	stored, _ := f.ledger.GetLoan(loan.ID)
	if stored.Status != models.StatusPaid {
		t.Errorf("Expected status paid after all installments, got %s", stored.Status)
	}
	for _, inst := range stored.InstallmentsDetails {
		if !inst.IsPaid() {
			t.Errorf("Installment %d lost its payment", inst.Number)
		}
	}
	txs, _ := f.store.GetTransactionsForLoan(loan.ID)
	if len(txs) != 13 {
		t.Errorf("Expected 13 transactions, got %d", len(txs))
	}
}

func TestRegenerateScheduleRequiresConfirmation(t *testing.T) {
	f := newFixture(t)
	loan := f.installmentLoan(t, 3, "2024-03-01")

	if _, err := f.ledger.RecordPayment(loan.ID, Payment{
		Amount:            loan.InstallmentsDetails[0].Amount,
		AccountID:         f.account.ID,
		InstallmentNumber: 1,
	}); err != nil {
		t.Fatalf("Failed to pay installment: %v", err)
	}

	_, err := f.ledger.RegenerateSchedule(loan.ID, date("2024-05-01"), false)
	if !errors.Is(err, ErrConfirmationRequired) {
		t.Fatalf("Expected confirmation error, got %v", err)
	}
	stored, _ := f.ledger.GetLoan(loan.ID)
	if !HasPaidInstallments(stored) {
		t.Fatal("Unconfirmed regeneration must not touch the schedule")
	}

	regenerated, err := f.ledger.RegenerateSchedule(loan.ID, date("2024-05-01"), true)
	if err != nil {
		t.Fatalf("Failed to regenerate: %v", err)
	}
	if HasPaidInstallments(regenerated) {
		t.Error("Expected a fresh schedule")
	}
	if regenerated.DueDate.String() != "2024-07-01" {
		t.Errorf("Expected due date 2024-07-01, got %s", regenerated.DueDate)
	}
}

func TestEditInstallment(t *testing.T) {
	f := newFixture(t)
	loan := f.installmentLoan(t, 3, "2024-04-01")

	edited, err := f.ledger.EditInstallment(loan.ID, 2, decimal.NewFromInt(500), calendar.Date{})
	if err != nil {
		t.Fatalf("Failed to edit installment: %v", err)
	}
	want := ScheduleTotal(edited.InstallmentsDetails)
	if !edited.AmountToReceive.Equal(want) {
		t.Errorf("Expected amount to receive %s, got %s", want, edited.AmountToReceive)
	}
	if edited.UpdatedAt != fixedNow {
		t.Errorf("Expected updated_at %v, got %v", fixedNow, edited.UpdatedAt)
	}
}

func TestEditLoan(t *testing.T) {
	f := newFixture(t)
	loan, _ := f.ledger.CreateLoan(f.terms())

	terms := f.terms()
	terms.DueDate = date("2024-04-01")
	edited, err := f.ledger.EditLoan(loan.ID, terms)
	if err != nil {
		t.Fatalf("Failed to edit loan: %v", err)
	}
	if len(edited.DueDateHistory) != 1 {
		t.Fatalf("Expected 1 due date change, got %d", len(edited.DueDateHistory))
	}
	if edited.Status != models.StatusPending {
		t.Errorf("Expected status pending, got %s", edited.Status)
	}

	terms.ClientID = uuid.New()
	if _, err := f.ledger.EditLoan(loan.ID, terms); !errors.Is(err, ErrValidation) {
		t.Errorf("Expected validation error for unknown client, got %v", err)
	}

	if _, err := f.ledger.EditLoan(uuid.New(), f.terms()); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected not found, got %v", err)
	}
}

func TestAddPromise(t *testing.T) {
	f := newFixture(t)
	loan, _ := f.ledger.CreateLoan(f.terms())

	updated, err := f.ledger.AddPromise(loan.ID, date("2024-03-20"), "after payday")
	if err != nil {
		t.Fatalf("Failed to add promise: %v", err)
	}
	if updated.DueDate.String() != "2024-03-20" || len(updated.PromiseHistory) != 1 {
		t.Errorf("Unexpected promise result: due %s, %d promises", updated.DueDate, len(updated.PromiseHistory))
	}
}

func TestArchiveRestoreAndDelete(t *testing.T) {
	f := newFixture(t)
	loan, _ := f.ledger.CreateLoan(f.terms())

	archived, err := f.ledger.ArchiveLoan(loan.ID)
	if err != nil {
		t.Fatalf("Failed to archive: %v", err)
	}
	if !archived.IsArchived {
		t.Error("Expected loan to be archived")
	}
	if _, err := f.ledger.ArchiveLoan(loan.ID); !errors.Is(err, ErrValidation) {
		t.Errorf("Expected validation error on second archive, got %v", err)
	}

	if _, err := f.ledger.RestoreLoan(loan.ID); err != nil {
		t.Fatalf("Failed to restore: %v", err)
	}

	if err := f.ledger.DeleteLoan(loan.ID); err != nil {
		t.Fatalf("Failed to delete: %v", err)
	}
	if _, err := f.ledger.GetLoan(loan.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected not found after delete, got %v", err)
	}
	if err := f.ledger.DeleteLoan(loan.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected not found on second delete, got %v", err)
	}

	history, _ := f.ledger.GetDeletionHistory()
	if len(history) != 2 {
		t.Fatalf("Expected 2 deletion records, got %d", len(history))
	}
	actions := map[models.DeletionAction]bool{}
	for _, rec := range history {
		actions[rec.Action] = true
		if rec.Name != "Maria Souza" {
			t.Errorf("Expected client name on record, got %q", rec.Name)
		}
	}
	if !actions[models.DeletionActionArchived] || !actions[models.DeletionActionDeleted] {
		t.Errorf("Expected archived and deleted records, got %v", actions)
	}

	statement, _ := f.ledger.GetAccountTransactions(f.account.ID)
	if len(statement) != 1 {
		t.Errorf("Expected the disbursement to stay on the statement, got %d entries", len(statement))
	}
}

func TestPreviewSchedule(t *testing.T) {
	f := newFixture(t)

	preview, err := f.ledger.PreviewSchedule(decimal.NewFromInt(1000), decimal.NewFromInt(20), 7, date("2024-01-31"))
	if err != nil {
		t.Fatalf("Failed to preview: %v", err)
	}
	if !preview.AmountToReceive.Equal(decimal.NewFromInt(1200)) {
		t.Errorf("Expected 1200, got %s", preview.AmountToReceive)
	}
	if !ScheduleTotal(preview.Installments).Equal(preview.AmountToReceive) {
		t.Errorf("Schedule sums %s", ScheduleTotal(preview.Installments))
	}

	if _, err := f.ledger.PreviewSchedule(decimal.Zero, decimal.NewFromInt(20), 3, date("2024-01-31")); !errors.Is(err, ErrValidation) {
		t.Errorf("Expected validation error, got %v", err)
	}
}

func TestCreateClientNormalizesPhone(t *testing.T) {
	f := newFixture(t)
	if f.client.Phone != "+5511987654321" {
		t.Errorf("Expected E.164 phone, got %q", f.client.Phone)
	}

	if _, err := f.ledger.CreateClient("João", "123", ""); !errors.Is(err, ErrValidation) {
		t.Errorf("Expected validation error for a bad phone, got %v", err)
	}
	if _, err := f.ledger.CreateClient("", "", ""); !errors.Is(err, ErrValidation) {
		t.Errorf("Expected validation error for a missing name, got %v", err)
	}

	client, err := f.ledger.CreateClient("Ana", "", "123.456.789-00")
	if err != nil {
		t.Fatalf("Failed to create client without phone: %v", err)
	}
	if client.Phone != "" {
		t.Errorf("Expected empty phone, got %q", client.Phone)
	}
}

// failingStore is a MemoryStore whose secondary writes can be switched off.
type failingStore struct {
	*store.MemoryStore
	failTransactions bool
	failRecords      bool
}

var errDiskFull = errors.New("disk full")

func (s *failingStore) CreateTransaction(tx *models.Transaction) error {
	if s.failTransactions {
		return errDiskFull
	}
	return s.MemoryStore.CreateTransaction(tx)
}

func (s *failingStore) AddDeletionRecord(record *models.DeletionRecord) error {
	if s.failRecords {
		return errDiskFull
	}
	return s.MemoryStore.AddDeletionRecord(record)
}

func newFailingFixture(t *testing.T) (*fixture, *failingStore) {
	t.Helper()
	f := newFixture(t)
	fs := &failingStore{MemoryStore: f.store}
	f.ledger = NewLedger(fs, WithClock(func() time.Time { return fixedNow }))
	return f, fs
}

func TestRecordPaymentLeavesLoanWhenTransactionFails(t *testing.T) {
	f, fs := newFailingFixture(t)
	loan, err := f.ledger.CreateLoan(f.terms())
	if err != nil {
		t.Fatalf("Failed to create loan: %v", err)
	}

	fs.failTransactions = true
	payment := Payment{Amount: decimal.NewFromInt(1785), AccountID: f.account.ID, Date: date("2024-03-05")}
	if _, err := f.ledger.RecordPayment(loan.ID, payment); !errors.Is(err, errDiskFull) {
		t.Fatalf("Expected disk full error, got %v", err)
	}

	stored, _ := f.ledger.GetLoan(loan.ID)
	if stored.Status == models.StatusPaid || !stored.PaymentDate.IsZero() {
		t.Errorf("Expected loan untouched, got status %s payment date %s", stored.Status, stored.PaymentDate)
	}

	// The same payment goes through once the store recovers.
	fs.failTransactions = false
	if _, err := f.ledger.RecordPayment(loan.ID, payment); err != nil {
		t.Fatalf("Failed to retry payment: %v", err)
	}
	txs, _ := f.store.GetTransactionsForLoan(loan.ID)
	if len(txs) != 2 {
		t.Errorf("Expected disbursement and one credit, got %d transactions", len(txs))
	}
}

func TestInterestOnlyPaymentLeavesDueDateWhenTransactionFails(t *testing.T) {
	f, fs := newFailingFixture(t)
	terms := f.terms()
	terms.Modality = models.ModalityMonthlyInterest
	terms.DueDate = date("2024-03-15")
	loan, err := f.ledger.CreateLoan(terms)
	if err != nil {
		t.Fatalf("Failed to create loan: %v", err)
	}

	fs.failTransactions = true
	_, err = f.ledger.RecordPayment(loan.ID, Payment{
		Amount:    decimal.NewFromInt(150),
		AccountID: f.account.ID,
		Type:      models.PaymentInterestOnly,
	})
	if err == nil {
		t.Fatal("Expected payment to fail")
	}

	stored, _ := f.ledger.GetLoan(loan.ID)
	if stored.DueDate != date("2024-03-15") || len(stored.InterestPaymentsHistory) != 0 {
		t.Errorf("Expected due date and interest history untouched, got %s with %d entries",
			stored.DueDate, len(stored.InterestPaymentsHistory))
	}
}

func TestCreateLoanDiscardedWhenDisbursementFails(t *testing.T) {
	f, fs := newFailingFixture(t)
	fs.failTransactions = true

	if _, err := f.ledger.CreateLoan(f.terms()); !errors.Is(err, errDiskFull) {
		t.Fatalf("Expected disk full error, got %v", err)
	}
	loans, _ := f.ledger.GetAllLoans()
	if len(loans) != 0 {
		t.Errorf("Expected no stored loan, got %d", len(loans))
	}
}

func TestArchiveAndDeleteLeaveLoanWhenRecordFails(t *testing.T) {
	f, fs := newFailingFixture(t)
	loan, err := f.ledger.CreateLoan(f.terms())
	if err != nil {
		t.Fatalf("Failed to create loan: %v", err)
	}

	fs.failRecords = true
	if _, err := f.ledger.ArchiveLoan(loan.ID); !errors.Is(err, errDiskFull) {
		t.Fatalf("Expected disk full error on archive, got %v", err)
	}
	stored, _ := f.ledger.GetLoan(loan.ID)
	if stored.IsArchived {
		t.Error("Expected loan to stay unarchived")
	}

	if err := f.ledger.DeleteLoan(loan.ID); !errors.Is(err, errDiskFull) {
		t.Fatalf("Expected disk full error on delete, got %v", err)
	}
	if _, err := f.ledger.GetLoan(loan.ID); err != nil {
		t.Errorf("Expected loan to survive a failed delete, got %v", err)
	}

	history, _ := f.ledger.GetDeletionHistory()
	if len(history) != 0 {
		t.Errorf("Expected no deletion records, got %d", len(history))
	}
}
