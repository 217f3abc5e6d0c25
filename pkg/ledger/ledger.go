package ledger

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/loanboard/pkg/calendar"
	"github.com/mcclellann/loanboard/pkg/config"
	"github.com/mcclellann/loanboard/pkg/metrics"
	"github.com/mcclellann/loanboard/pkg/models"
	"github.com/mcclellann/loanboard/pkg/store"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const moduleName = "ledger"

// Ledger owns storage and runs the loan engine against it. Every mutation of
// a loan holds that loan's lock from read to write.
type Ledger struct {
	storage      store.Storage
	now          func() time.Time
	location     *time.Location
	urgentWindow int
	log          *logrus.Logger
	locks        loanLocks
}

type Option func(*Ledger)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithLocation sets the civil timezone "today" is evaluated in.
func WithLocation(loc *time.Location) Option {
	return func(l *Ledger) { l.location = loc }
}

func WithLogger(logger *logrus.Logger) Option {
	return func(l *Ledger) { l.log = logger }
}

func WithUrgentWindow(days int) Option {
	return func(l *Ledger) { l.urgentWindow = days }
}

// NewLedger creates a new Ledger with a given Storage implementation.
func NewLedger(s store.Storage, opts ...Option) *Ledger {
	l := &Ledger{
		storage:      s,
		now:          time.Now,
		location:     calendar.Brasilia,
		urgentWindow: DefaultUrgentWindow,
		log:          config.NewDiscardLogger(),
		locks:        loanLocks{m: make(map[uuid.UUID]*sync.Mutex)},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Today is the current civil date in the ledger's timezone.
func (l *Ledger) Today() calendar.Date {
	return calendar.TodayIn(l.now(), l.location)
}

// UrgentWindow is the number of days ahead a due date counts as urgent.
func (l *Ledger) UrgentWindow() int {
	return l.urgentWindow
}

// CreateClient registers a borrower.
func (l *Ledger) CreateClient(name, phone, document string) (*models.Client, error) {
	if name == "" {
		return nil, invalid("name", "is required")
	}
	phone, err := normalizePhone(phone)
	if err != nil {
		return nil, err
	}
	client := &models.Client{ID: uuid.New(), Name: name, Phone: phone, Document: document, CreatedAt: l.now()}
	if err := l.storage.CreateClient(client); err != nil {
		return nil, fmt.Errorf("failed to store client: %w", err)
	}
	return client, nil
}

// CreateAccount registers a bank account money is lent from and paid into.
func (l *Ledger) CreateAccount(name, bank string) (*models.Account, error) {
	if name == "" {
		return nil, invalid("name", "is required")
	}
	account := &models.Account{ID: uuid.New(), Name: name, Bank: bank, CreatedAt: l.now()}
	if err := l.storage.CreateAccount(account); err != nil {
		return nil, fmt.Errorf("failed to store account: %w", err)
	}
	return account, nil
}

// GetAllClients lists registered borrowers by name.
func (l *Ledger) GetAllClients() ([]*models.Client, error) {
	return l.storage.GetAllClients()
}

// GetAllAccounts lists registered accounts by name.
func (l *Ledger) GetAllAccounts() ([]*models.Account, error) {
	return l.storage.GetAllAccounts()
}

// GetAccountTransactions returns the statement of an account.
func (l *Ledger) GetAccountTransactions(accountID uuid.UUID) ([]*models.Transaction, error) {
	if _, err := l.storage.GetAccount(accountID); err != nil {
		return nil, err
	}
	return l.storage.GetTransactionsForAccount(accountID)
}

// displayName resolves the client name used in descriptions and audit entries.
func (l *Ledger) displayName(clientID uuid.UUID) (string, error) {
	client, err := l.storage.GetClient(clientID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", invalid("client_id", "client does not exist")
		}
		return "", err
	}
	return client.Name, nil
}

// nameOrID never fails; it is used where the client may have been removed.
func (l *Ledger) nameOrID(clientID uuid.UUID) string {
	name, err := l.displayName(clientID)
	if err != nil {
		return clientID.String()
	}
	return name
}

func (l *Ledger) accountExists(accountID uuid.UUID) error {
	if _, err := l.storage.GetAccount(accountID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return invalid("account_id", "account does not exist")
		}
		return err
	}
	return nil
}

// SchedulePreview is what a caller shows before confirming an installment loan.
type SchedulePreview struct {
	AmountToReceive decimal.Decimal      `json:"amount_to_receive"`
	Installments    []models.Installment `json:"installments_details"`
}

// PreviewSchedule generates the schedule for the given terms without storing
// anything. The result is passed back in Terms.Schedule to create the loan.
func (l *Ledger) PreviewSchedule(borrowed, rate decimal.Decimal, count int, firstDue calendar.Date) (*SchedulePreview, error) {
	if !borrowed.IsPositive() {
		return nil, invalid("amount_borrowed", "must be greater than 0")
	}
	atr := AmountToReceive(models.ModalityInstallments, borrowed, rate)
	schedule, err := GenerateSchedule(atr, count, firstDue)
	if err != nil {
		return nil, err
	}
	return &SchedulePreview{AmountToReceive: atr, Installments: schedule}, nil
}

// CreateLoan validates the terms, stores the loan and records the debit of the
// money lent on the origin account.
func (l *Ledger) CreateLoan(terms Terms) (*models.Loan, error) {
	loan, err := l.createLoan(terms)
	metrics.Observe("create", err)
	return loan, err
}

func (l *Ledger) createLoan(terms Terms) (*models.Loan, error) {
	clientName, err := l.displayName(terms.ClientID)
	if err != nil {
		return nil, err
	}
	if err := l.accountExists(terms.AccountID); err != nil {
		return nil, err
	}

	loan, tx, err := NewLoan(terms, clientName, l.Today(), l.now())
	if err != nil {
		return nil, err
	}

	if err := l.storage.CreateLoan(loan); err != nil {
		config.LogError(l.log, moduleName, "CreateLoan", "store loan", loan.ID, err)
		return nil, fmt.Errorf("failed to store loan: %w", err)
	}
	if err := l.storage.CreateTransaction(tx); err != nil {
		config.LogError(l.log, moduleName, "CreateLoan", "store disbursement", loan.ID, err)
		if derr := l.storage.DeleteLoan(loan.ID); derr != nil {
			config.LogError(l.log, moduleName, "CreateLoan", "discard loan without disbursement", loan.ID, derr)
		}
		return nil, fmt.Errorf("failed to store disbursement transaction: %w", err)
	}

	l.log.WithFields(logrus.Fields{
		"loan_id":  loan.ID,
		"modality": loan.Modality,
		"amount":   loan.AmountBorrowed.StringFixed(2),
	}).Info("loan created")
	return loan, nil
}

// GetLoan retrieves a loan by its ID.
func (l *Ledger) GetLoan(id uuid.UUID) (*models.Loan, error) {
	return l.storage.GetLoan(id)
}

// GetAllLoans retrieves all loans.
func (l *Ledger) GetAllLoans() ([]*models.Loan, error) {
	return l.storage.GetAllLoans()
}

// mutate loads the loan under its lock, applies fn and stores the result.
// Nothing is written when fn fails.
func (l *Ledger) mutate(operation string, id uuid.UUID, fn func(loan *models.Loan) (*models.Loan, error)) (*models.Loan, error) {
	return l.mutateThen(operation, id, fn, nil)
}

// mutateThen is mutate followed by a dependent write, such as the transaction
// of a payment. When that write fails the stored loan is put back as it was.
func (l *Ledger) mutateThen(operation string, id uuid.UUID, fn func(loan *models.Loan) (*models.Loan, error), then func() error) (*models.Loan, error) {
	unlock := l.locks.lock(id)
	defer unlock()

	updated, err := l.apply(operation, id, fn, then)
	metrics.Observe(operation, err)
	return updated, err
}

func (l *Ledger) apply(operation string, id uuid.UUID, fn func(loan *models.Loan) (*models.Loan, error), then func() error) (*models.Loan, error) {
	loan, err := l.storage.GetLoan(id)
	if err != nil {
		return nil, err
	}
	updated, err := fn(loan)
	if err != nil {
		return nil, err
	}
	if err := l.storage.UpdateLoan(updated); err != nil {
		config.LogError(l.log, moduleName, operation, "update loan", id, err)
		return nil, fmt.Errorf("failed to update loan: %w", err)
	}
	if then != nil {
		if err := then(); err != nil {
			config.LogError(l.log, moduleName, operation, "dependent write", id, err)
			if rerr := l.storage.UpdateLoan(loan); rerr != nil {
				config.LogError(l.log, moduleName, operation, "restore loan", id, rerr)
			}
			return nil, err
		}
	}
	l.log.WithFields(logrus.Fields{"loan_id": id, "operation": operation, "status": updated.Status}).Info("loan updated")
	return updated, nil
}

// EditLoan applies new terms to a stored loan.
func (l *Ledger) EditLoan(id uuid.UUID, terms Terms) (*models.Loan, error) {
	return l.mutate("edit", id, func(loan *models.Loan) (*models.Loan, error) {
		if terms.ClientID != loan.ClientID {
			if _, err := l.displayName(terms.ClientID); err != nil {
				return nil, err
			}
		}
		if terms.AccountID != loan.AccountID {
			if err := l.accountExists(terms.AccountID); err != nil {
				return nil, err
			}
		}
		return EditLoan(loan, terms, l.Today(), l.now())
	})
}

// RegenerateSchedule rebuilds an installment schedule. When paid installments
// would be discarded the caller must pass confirmed=true.
func (l *Ledger) RegenerateSchedule(id uuid.UUID, firstDue calendar.Date, confirmed bool) (*models.Loan, error) {
	return l.mutate("regenerate_schedule", id, func(loan *models.Loan) (*models.Loan, error) {
		if HasPaidInstallments(loan) && !confirmed {
			return nil, ErrConfirmationRequired
		}
		return RegenerateSchedule(loan, firstDue)
	})
}

// EditInstallment changes the amount or due date of one installment.
func (l *Ledger) EditInstallment(id uuid.UUID, number int, amount decimal.Decimal, dueDate calendar.Date) (*models.Loan, error) {
	return l.mutate("edit_installment", id, func(loan *models.Loan) (*models.Loan, error) {
		out, err := EditInstallment(loan, number, amount, dueDate)
		if err != nil {
			return nil, err
		}
		out.Status = EffectiveStatus(out, l.Today())
		out.UpdatedAt = l.now()
		return out, nil
	})
}

// RecordPayment applies a payment and records the credit on the receiving account.
func (l *Ledger) RecordPayment(id uuid.UUID, p Payment) (*models.Transaction, error) {
	var (
		tx       *models.Transaction
		modality models.Modality
	)
	_, err := l.mutateThen("payment", id, func(loan *models.Loan) (*models.Loan, error) {
		if p.AccountID == uuid.Nil {
			return nil, invalid("account_id", "is required")
		}
		if err := l.accountExists(p.AccountID); err != nil {
			return nil, err
		}
		out, credit, err := ApplyPayment(loan, p, l.nameOrID(loan.ClientID), l.Today(), l.now())
		if err != nil {
			return nil, err
		}
		tx = credit
		modality = loan.Modality
		return out, nil
	}, func() error {
		if err := l.storage.CreateTransaction(tx); err != nil {
			return fmt.Errorf("failed to store payment transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	kind := models.PaymentFull
	if modality == models.ModalityMonthlyInterest && p.Type == models.PaymentInterestOnly {
		kind = models.PaymentInterestOnly
	}
	metrics.ObservePayment(string(modality), string(kind), tx.Amount.InexactFloat64())
	return tx, nil
}

// AddPromise logs a promise to pay and moves the due date.
func (l *Ledger) AddPromise(id uuid.UUID, promised calendar.Date, note string) (*models.Loan, error) {
	return l.mutate("promise", id, func(loan *models.Loan) (*models.Loan, error) {
		return AddPromise(loan, promised, note, l.Today(), l.now())
	})
}

// ArchiveLoan hides a loan from the status views and logs the action.
func (l *Ledger) ArchiveLoan(id uuid.UUID) (*models.Loan, error) {
	var record *models.DeletionRecord
	return l.mutateThen("archive", id, func(loan *models.Loan) (*models.Loan, error) {
		out, rec, err := Archive(loan, l.nameOrID(loan.ClientID), l.now())
		record = rec
		return out, err
	}, func() error {
		if err := l.storage.AddDeletionRecord(record); err != nil {
			return fmt.Errorf("failed to store deletion record: %w", err)
		}
		return nil
	})
}

// RestoreLoan brings an archived loan back to the status views.
func (l *Ledger) RestoreLoan(id uuid.UUID) (*models.Loan, error) {
	return l.mutate("restore", id, func(loan *models.Loan) (*models.Loan, error) {
		return Restore(loan, l.now())
	})
}

// DeleteLoan removes a loan for good and logs the action.
func (l *Ledger) DeleteLoan(id uuid.UUID) error {
	unlock := l.locks.lock(id)
	defer unlock()

	err := l.deleteLoan(id)
	metrics.Observe("delete", err)
	if err == nil {
		l.locks.forget(id)
	}
	return err
}

func (l *Ledger) deleteLoan(id uuid.UUID) error {
	loan, err := l.storage.GetLoan(id)
	if err != nil {
		return err
	}
	if err := l.storage.DeleteLoan(id); err != nil {
		return err
	}
	record := NewDeletionRecord(models.DeletionActionDeleted, l.nameOrID(loan.ClientID), l.now())
	if err := l.storage.AddDeletionRecord(record); err != nil {
		config.LogError(l.log, moduleName, "DeleteLoan", "store deletion record", id, err)
		if rerr := l.storage.CreateLoan(loan); rerr != nil {
			config.LogError(l.log, moduleName, "DeleteLoan", "restore loan", id, rerr)
		}
		return fmt.Errorf("failed to store deletion record: %w", err)
	}
	l.log.WithField("loan_id", id).Info("loan deleted")
	return nil
}

// GetDeletionHistory lists archive and delete audit entries.
func (l *Ledger) GetDeletionHistory() ([]*models.DeletionRecord, error) {
	return l.storage.GetDeletionHistory()
}

// LoanView is a loan with the values derived as of today.
type LoanView struct {
	*models.Loan
	EffectiveStatus models.Status `json:"effective_status"`
	Urgent          bool          `json:"urgent"`
	DaysOverdue     int           `json:"days_overdue"`
	NextDueDate     calendar.Date `json:"next_due_date"`
	Balance         Balance       `json:"balance"`
}

// View derives the read-side values of a loan for the given reference date.
func View(loan *models.Loan, ref calendar.Date, urgentWindow int) LoanView {
	return LoanView{
		Loan:            loan,
		EffectiveStatus: EffectiveStatus(loan, ref),
		Urgent:          IsUrgent(loan, ref, urgentWindow),
		DaysOverdue:     DaysOverdue(loan, ref),
		NextDueDate:     NextDueDate(loan),
		Balance:         Outstanding(loan, ref),
	}
}

// GetLoanView loads a loan and derives its current position.
func (l *Ledger) GetLoanView(id uuid.UUID) (*LoanView, error) {
	loan, err := l.storage.GetLoan(id)
	if err != nil {
		return nil, err
	}
	v := View(loan, l.Today(), l.urgentWindow)
	return &v, nil
}

// loanLocks hands out one mutex per loan id.
type loanLocks struct {
	mu sync.Mutex
	m  map[uuid.UUID]*sync.Mutex
}

func (k *loanLocks) lock(id uuid.UUID) func() {
	k.mu.Lock()
	m, ok := k.m[id]
	if !ok {
		m = &sync.Mutex{}
		k.m[id] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}

func (k *loanLocks) forget(id uuid.UUID) {
	k.mu.Lock()
	delete(k.m, id)
	k.mu.Unlock()
}
