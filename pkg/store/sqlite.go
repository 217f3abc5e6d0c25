package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mcclellann/loanboard/pkg/models"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore manages the database connection and operations for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database and initializes the schema.
func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON;")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	_, err = db.Exec("PRAGMA journal_mode = WAL;")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}
	return s, nil
}

// initSchema creates the tables and adds columns introduced after the first
// release. Money and dates are TEXT so no precision or day is lost; the
// append-only histories are JSON documents.
func (s *SQLiteStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS clients (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		phone TEXT NOT NULL DEFAULT '',
		document TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		bank TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS loans (
		id TEXT PRIMARY KEY,
		client_id TEXT NOT NULL,
		account_id TEXT NOT NULL,
		amount_borrowed TEXT NOT NULL,
		interest_rate TEXT NOT NULL,
		daily_late_fee_amount TEXT NOT NULL DEFAULT '0',
		modality TEXT NOT NULL,
		date TEXT,
		due_date TEXT,
		installments INTEGER NOT NULL DEFAULT 0,
		amount_to_receive TEXT NOT NULL,
		status TEXT NOT NULL,
		payment_date TEXT,
		installments_details TEXT NOT NULL DEFAULT '[]',
		promise_history TEXT NOT NULL DEFAULT '[]',
		due_date_history TEXT NOT NULL DEFAULT '[]',
		interest_payments_history TEXT NOT NULL DEFAULT '[]',
		is_archived INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		loan_id TEXT NOT NULL,
		description TEXT NOT NULL,
		amount TEXT NOT NULL,
		type TEXT NOT NULL,
		date TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS deletion_history (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		action TEXT NOT NULL,
		name TEXT NOT NULL,
		date DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_transactions_account ON transactions(account_id);
	CREATE INDEX IF NOT EXISTS idx_transactions_loan ON transactions(loan_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	columns := []string{
		"is_in_negotiation INTEGER NOT NULL DEFAULT 0",
		"observation TEXT NOT NULL DEFAULT ''",
	}
	for _, col := range columns {
		_, err := s.db.Exec(fmt.Sprintf("ALTER TABLE loans ADD COLUMN %s", col))
		if err != nil && !isDuplicateColumnError(err) {
			return fmt.Errorf("failed to add column %s: %w", col, err)
		}
	}
	return nil
}

func isDuplicateColumnError(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "duplicate column name")
}

const loanColumns = `id, client_id, account_id, amount_borrowed, interest_rate, daily_late_fee_amount, modality,
	date, due_date, installments, amount_to_receive, status, payment_date, installments_details,
	promise_history, due_date_history, interest_payments_history, is_in_negotiation, is_archived,
	observation, created_at, updated_at`

// loanHistories holds the JSON-encoded sub-records of a loan.
type loanHistories struct {
	installments, promises, dueDates, interest string
}

func encodeHistories(loan *models.Loan) (loanHistories, error) {
	var h loanHistories
	var err error
	if h.installments, err = jsonText(loan.InstallmentsDetails); err != nil {
		return h, err
	}
	if h.promises, err = jsonText(loan.PromiseHistory); err != nil {
		return h, err
	}
	if h.dueDates, err = jsonText(loan.DueDateHistory); err != nil {
		return h, err
	}
	h.interest, err = jsonText(loan.InterestPaymentsHistory)
	return h, err
}

func (h loanHistories) decodeInto(loan *models.Loan) error {
	if err := json.Unmarshal([]byte(h.installments), &loan.InstallmentsDetails); err != nil {
		return fmt.Errorf("installments_details: %w", err)
	}
	if err := json.Unmarshal([]byte(h.promises), &loan.PromiseHistory); err != nil {
		return fmt.Errorf("promise_history: %w", err)
	}
	if err := json.Unmarshal([]byte(h.dueDates), &loan.DueDateHistory); err != nil {
		return fmt.Errorf("due_date_history: %w", err)
	}
	if err := json.Unmarshal([]byte(h.interest), &loan.InterestPaymentsHistory); err != nil {
		return fmt.Errorf("interest_payments_history: %w", err)
	}
	return nil
}

func jsonText(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(b) == "null" {
		return "[]", nil
	}
	return string(b), nil
}

// CreateLoan inserts a new loan into the database.
func (s *SQLiteStore) CreateLoan(loan *models.Loan) error {
	h, err := encodeHistories(loan)
	if err != nil {
		return fmt.Errorf("failed to encode loan histories: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO loans (`+loanColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		loan.ID, loan.ClientID, loan.AccountID, loan.AmountBorrowed, loan.InterestRate, loan.DailyLateFeeAmount, loan.Modality,
		loan.Date, loan.DueDate, loan.Installments, loan.AmountToReceive, loan.Status, loan.PaymentDate, h.installments,
		h.promises, h.dueDates, h.interest, loan.IsInNegotiation, loan.IsArchived,
		loan.Observation, loan.CreatedAt, loan.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create loan: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLoan(row rowScanner) (*models.Loan, error) {
	var loan models.Loan
	var h loanHistories
	err := row.Scan(
		&loan.ID, &loan.ClientID, &loan.AccountID, &loan.AmountBorrowed, &loan.InterestRate, &loan.DailyLateFeeAmount, &loan.Modality,
		&loan.Date, &loan.DueDate, &loan.Installments, &loan.AmountToReceive, &loan.Status, &loan.PaymentDate, &h.installments,
		&h.promises, &h.dueDates, &h.interest, &loan.IsInNegotiation, &loan.IsArchived,
		&loan.Observation, &loan.CreatedAt, &loan.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := h.decodeInto(&loan); err != nil {
		return nil, fmt.Errorf("failed to decode loan %s: %w", loan.ID, err)
	}
	return &loan, nil
}

// GetLoan retrieves a loan by its ID.
func (s *SQLiteStore) GetLoan(id uuid.UUID) (*models.Loan, error) {
	row := s.db.QueryRow(`SELECT `+loanColumns+` FROM loans WHERE id = ?`, id)
	loan, err := scanLoan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("loan %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get loan: %w", err)
	}
	return loan, nil
}

// UpdateLoan overwrites every column of an existing loan.
func (s *SQLiteStore) UpdateLoan(loan *models.Loan) error {
	h, err := encodeHistories(loan)
	if err != nil {
		return fmt.Errorf("failed to encode loan histories: %w", err)
	}
	result, err := s.db.Exec(
		`UPDATE loans SET client_id = ?, account_id = ?, amount_borrowed = ?, interest_rate = ?, daily_late_fee_amount = ?,
		modality = ?, date = ?, due_date = ?, installments = ?, amount_to_receive = ?, status = ?, payment_date = ?,
		installments_details = ?, promise_history = ?, due_date_history = ?, interest_payments_history = ?,
		is_in_negotiation = ?, is_archived = ?, observation = ?, updated_at = ? WHERE id = ?`,
		loan.ClientID, loan.AccountID, loan.AmountBorrowed, loan.InterestRate, loan.DailyLateFeeAmount,
		loan.Modality, loan.Date, loan.DueDate, loan.Installments, loan.AmountToReceive, loan.Status, loan.PaymentDate,
		h.installments, h.promises, h.dueDates, h.interest,
		loan.IsInNegotiation, loan.IsArchived, loan.Observation, loan.UpdatedAt, loan.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update loan: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("loan %s: %w", loan.ID, ErrNotFound)
	}
	return nil
}

// DeleteLoan permanently removes a loan. Its transactions stay, they are part
// of the account history.
func (s *SQLiteStore) DeleteLoan(id uuid.UUID) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(`DELETE FROM loans WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete loan: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("loan %s: %w", id, ErrNotFound)
	}

	return tx.Commit()
}

// GetAllLoans retrieves all loans, archived ones included.
func (s *SQLiteStore) GetAllLoans() ([]*models.Loan, error) {
	rows, err := s.db.Query(`SELECT ` + loanColumns + ` FROM loans ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to get all loans: %w", err)
	}
	defer rows.Close()

	var loans []*models.Loan
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan loan row: %w", err)
		}
		loans = append(loans, loan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return loans, nil
}

// CreateTransaction inserts a new transaction into the database.
func (s *SQLiteStore) CreateTransaction(transaction *models.Transaction) error {
	_, err := s.db.Exec(
		`INSERT INTO transactions (id, account_id, loan_id, description, amount, type, date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		transaction.ID, transaction.AccountID, transaction.LoanID, transaction.Description,
		transaction.Amount, transaction.Type, transaction.Date, transaction.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

// GetTransactionsForLoan retrieves all transactions for a given loan ID.
func (s *SQLiteStore) GetTransactionsForLoan(loanID uuid.UUID) ([]*models.Transaction, error) {
	return s.queryTransactions(`WHERE loan_id = ?`, loanID)
}

// GetTransactionsForAccount retrieves the statement of an account.
func (s *SQLiteStore) GetTransactionsForAccount(accountID uuid.UUID) ([]*models.Transaction, error) {
	return s.queryTransactions(`WHERE account_id = ?`, accountID)
}

func (s *SQLiteStore) queryTransactions(where string, arg any) ([]*models.Transaction, error) {
	rows, err := s.db.Query(`SELECT id, account_id, loan_id, description, amount, type, date, created_at
		FROM transactions `+where+` ORDER BY date ASC, created_at ASC`, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions: %w", err)
	}
	defer rows.Close()

	transactions := []*models.Transaction{}
	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(&t.ID, &t.AccountID, &t.LoanID, &t.Description, &t.Amount, &t.Type, &t.Date, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction row: %w", err)
		}
		transactions = append(transactions, &t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration for transactions: %w", err)
	}
	return transactions, nil
}

func (s *SQLiteStore) CreateClient(client *models.Client) error {
	_, err := s.db.Exec(`INSERT INTO clients (id, name, phone, document, created_at) VALUES (?, ?, ?, ?, ?)`,
		client.ID, client.Name, client.Phone, client.Document, client.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetClient(id uuid.UUID) (*models.Client, error) {
	var c models.Client
	err := s.db.QueryRow(`SELECT id, name, phone, document, created_at FROM clients WHERE id = ?`, id).
		Scan(&c.ID, &c.Name, &c.Phone, &c.Document, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("client %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	return &c, nil
}

func (s *SQLiteStore) GetAllClients() ([]*models.Client, error) {
	rows, err := s.db.Query(`SELECT id, name, phone, document, created_at FROM clients ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to get clients: %w", err)
	}
	defer rows.Close()

	clients := []*models.Client{}
	for rows.Next() {
		var c models.Client
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.Document, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan client row: %w", err)
		}
		clients = append(clients, &c)
	}
	return clients, rows.Err()
}

func (s *SQLiteStore) CreateAccount(account *models.Account) error {
	_, err := s.db.Exec(`INSERT INTO accounts (id, name, bank, created_at) VALUES (?, ?, ?, ?)`,
		account.ID, account.Name, account.Bank, account.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetAccount(id uuid.UUID) (*models.Account, error) {
	var a models.Account
	err := s.db.QueryRow(`SELECT id, name, bank, created_at FROM accounts WHERE id = ?`, id).
		Scan(&a.ID, &a.Name, &a.Bank, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("account %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &a, nil
}

func (s *SQLiteStore) GetAllAccounts() ([]*models.Account, error) {
	rows, err := s.db.Query(`SELECT id, name, bank, created_at FROM accounts ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to get accounts: %w", err)
	}
	defer rows.Close()

	accounts := []*models.Account{}
	for rows.Next() {
		var a models.Account
		if err := rows.Scan(&a.ID, &a.Name, &a.Bank, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan account row: %w", err)
		}
		accounts = append(accounts, &a)
	}
	return accounts, rows.Err()
}

func (s *SQLiteStore) AddDeletionRecord(record *models.DeletionRecord) error {
	_, err := s.db.Exec(`INSERT INTO deletion_history (id, type, action, name, date) VALUES (?, ?, ?, ?, ?)`,
		record.ID, record.Type, record.Action, record.Name, record.Date)
	if err != nil {
		return fmt.Errorf("failed to add deletion record: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetDeletionHistory() ([]*models.DeletionRecord, error) {
	rows, err := s.db.Query(`SELECT id, type, action, name, date FROM deletion_history ORDER BY date ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to get deletion history: %w", err)
	}
	defer rows.Close()

	records := []*models.DeletionRecord{}
	for rows.Next() {
		var r models.DeletionRecord
		if err := rows.Scan(&r.ID, &r.Type, &r.Action, &r.Name, &r.Date); err != nil {
			return nil, fmt.Errorf("failed to scan deletion record: %w", err)
		}
		records = append(records, &r)
	}
	return records, rows.Err()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
