package store

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/mcclellann/loanboard/pkg/models"
)

// MemoryStore keeps everything in process memory. Loans are cloned on the way
// in and out so callers never share state with the store.
type MemoryStore struct {
	mu           sync.RWMutex
	loans        map[uuid.UUID]*models.Loan
	transactions []*models.Transaction
	clients      map[uuid.UUID]*models.Client
	accounts     map[uuid.UUID]*models.Account
	deletions    []*models.DeletionRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		loans:    make(map[uuid.UUID]*models.Loan),
		clients:  make(map[uuid.UUID]*models.Client),
		accounts: make(map[uuid.UUID]*models.Account),
	}
}

func (m *MemoryStore) CreateLoan(loan *models.Loan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.loans[loan.ID]; exists {
		return fmt.Errorf("loan %s already exists", loan.ID)
	}
	m.loans[loan.ID] = loan.Clone()
	return nil
}

func (m *MemoryStore) GetLoan(id uuid.UUID) (*models.Loan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	loan, ok := m.loans[id]
	if !ok {
		return nil, fmt.Errorf("loan %s: %w", id, ErrNotFound)
	}
	return loan.Clone(), nil
}

func (m *MemoryStore) UpdateLoan(loan *models.Loan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.loans[loan.ID]; !ok {
		return fmt.Errorf("loan %s: %w", loan.ID, ErrNotFound)
	}
	m.loans[loan.ID] = loan.Clone()
	return nil
}

func (m *MemoryStore) DeleteLoan(id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.loans[id]; !ok {
		return fmt.Errorf("loan %s: %w", id, ErrNotFound)
	}
	delete(m.loans, id)
	return nil
}

func (m *MemoryStore) GetAllLoans() ([]*models.Loan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	loans := make([]*models.Loan, 0, len(m.loans))
	for _, l := range m.loans {
		loans = append(loans, l.Clone())
	}
	sort.Slice(loans, func(i, j int) bool { return loans[i].CreatedAt.Before(loans[j].CreatedAt) })
	return loans, nil
}

func (m *MemoryStore) CreateTransaction(tx *models.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *tx
	m.transactions = append(m.transactions, &copied)
	return nil
}

func (m *MemoryStore) GetTransactionsForLoan(loanID uuid.UUID) ([]*models.Transaction, error) {
	return m.filterTransactions(func(tx *models.Transaction) bool { return tx.LoanID == loanID }), nil
}

func (m *MemoryStore) GetTransactionsForAccount(accountID uuid.UUID) ([]*models.Transaction, error) {
	return m.filterTransactions(func(tx *models.Transaction) bool { return tx.AccountID == accountID }), nil
}

func (m *MemoryStore) filterTransactions(keep func(*models.Transaction) bool) []*models.Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	txs := []*models.Transaction{}
	for _, tx := range m.transactions {
		if keep(tx) {
			copied := *tx
			txs = append(txs, &copied)
		}
	}
	return txs
}

func (m *MemoryStore) CreateClient(client *models.Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *client
	m.clients[client.ID] = &copied
	return nil
}

func (m *MemoryStore) GetClient(id uuid.UUID) (*models.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.clients[id]
	if !ok {
		return nil, fmt.Errorf("client %s: %w", id, ErrNotFound)
	}
	copied := *c
	return &copied, nil
}

func (m *MemoryStore) GetAllClients() ([]*models.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	clients := make([]*models.Client, 0, len(m.clients))
	for _, c := range m.clients {
		copied := *c
		clients = append(clients, &copied)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].Name < clients[j].Name })
	return clients, nil
}

func (m *MemoryStore) CreateAccount(account *models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *account
	m.accounts[account.ID] = &copied
	return nil
}

func (m *MemoryStore) GetAccount(id uuid.UUID) (*models.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", id, ErrNotFound)
	}
	copied := *a
	return &copied, nil
}

func (m *MemoryStore) GetAllAccounts() ([]*models.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	accounts := make([]*models.Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		copied := *a
		accounts = append(accounts, &copied)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].Name < accounts[j].Name })
	return accounts, nil
}

func (m *MemoryStore) AddDeletionRecord(record *models.DeletionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *record
	m.deletions = append(m.deletions, &copied)
	return nil
}

func (m *MemoryStore) GetDeletionHistory() ([]*models.DeletionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.DeletionRecord, 0, len(m.deletions))
	for _, r := range m.deletions {
		copied := *r
		out = append(out, &copied)
	}
	return out, nil
}

func (m *MemoryStore) Close() error {
	return nil
}
