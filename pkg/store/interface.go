package store

import (
	"errors"

	"github.com/google/uuid"
	"github.com/mcclellann/loanboard/pkg/models"
)

// ErrNotFound is returned (wrapped) when a record does not exist.
var ErrNotFound = errors.New("record not found")

// Storage defines the persistence operations the ledger relies on.
type Storage interface {
	CreateLoan(loan *models.Loan) error
	GetLoan(id uuid.UUID) (*models.Loan, error)
	UpdateLoan(loan *models.Loan) error
	DeleteLoan(id uuid.UUID) error
	GetAllLoans() ([]*models.Loan, error)

	CreateTransaction(transaction *models.Transaction) error
	GetTransactionsForLoan(loanID uuid.UUID) ([]*models.Transaction, error)
	GetTransactionsForAccount(accountID uuid.UUID) ([]*models.Transaction, error)

	CreateClient(client *models.Client) error
	GetClient(id uuid.UUID) (*models.Client, error)
	GetAllClients() ([]*models.Client, error)

	CreateAccount(account *models.Account) error
	GetAccount(id uuid.UUID) (*models.Account, error)
	GetAllAccounts() ([]*models.Account, error)

	AddDeletionRecord(record *models.DeletionRecord) error
	GetDeletionHistory() ([]*models.DeletionRecord, error)

	Close() error
}
