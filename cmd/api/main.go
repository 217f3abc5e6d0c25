package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/mcclellann/loanboard/pkg/calendar"
	"github.com/mcclellann/loanboard/pkg/config"
	"github.com/mcclellann/loanboard/pkg/ledger"
	"github.com/mcclellann/loanboard/pkg/models"
	"github.com/mcclellann/loanboard/pkg/report"
	"github.com/mcclellann/loanboard/pkg/store"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Server holds the ledger instance.
type Server struct {
	ledger  *ledger.Ledger
	storage store.Storage // Keep a reference to the storage to close it
	log     *logrus.Logger
}

func NewServer(s store.Storage, logger *logrus.Logger, opts ...ledger.Option) *Server {
	opts = append([]ledger.Option{ledger.WithLogger(logger)}, opts...)
	return &Server{
		ledger:  ledger.NewLedger(s, opts...),
		storage: s,
		log:     logger,
	}
}

func (s *Server) routes() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/loans", s.listLoansHandler).Methods("GET")
	router.HandleFunc("/loans", s.createLoanHandler).Methods("POST")
	router.HandleFunc("/loans/{id}", s.getLoanHandler).Methods("GET")
	router.HandleFunc("/loans/{id}", s.updateLoanHandler).Methods("PUT")
	router.HandleFunc("/loans/{id}", s.deleteLoanHandler).Methods("DELETE")
	router.HandleFunc("/loans/{id}/payments", s.recordPaymentHandler).Methods("POST")
	router.HandleFunc("/loans/{id}/promises", s.addPromiseHandler).Methods("POST")
	router.HandleFunc("/loans/{id}/archive", s.archiveLoanHandler).Methods("POST")
	router.HandleFunc("/loans/{id}/restore", s.restoreLoanHandler).Methods("POST")
	router.HandleFunc("/loans/{id}/schedule", s.regenerateScheduleHandler).Methods("POST")
	router.HandleFunc("/loans/{id}/installments/{number}", s.editInstallmentHandler).Methods("PUT")
	router.HandleFunc("/schedules/preview", s.previewScheduleHandler).Methods("POST")

	router.HandleFunc("/clients", s.listClientsHandler).Methods("GET")
	router.HandleFunc("/clients", s.createClientHandler).Methods("POST")
	router.HandleFunc("/accounts", s.listAccountsHandler).Methods("GET")
	router.HandleFunc("/accounts", s.createAccountHandler).Methods("POST")
	router.HandleFunc("/accounts/{id}/transactions", s.accountTransactionsHandler).Methods("GET")

	router.HandleFunc("/reports/summary", s.summaryHandler).Methods("GET")
	router.HandleFunc("/reports/overdue", s.overdueHandler).Methods("GET")
	router.HandleFunc("/deletion-history", s.deletionHistoryHandler).Methods("GET")

	router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	return router
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps ledger and store errors to HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, store.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ledger.ErrConfirmationRequired):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ledger.ErrInconsistentSchedule):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		s.log.WithError(err).Error("request failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func (s *Server) createLoanHandler(w http.ResponseWriter, r *http.Request) {
	var terms ledger.Terms
	if !decode(w, r, &terms) {
		return
	}

	loan, err := s.ledger.CreateLoan(terms)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, loan)
}

func (s *Server) getLoanHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := pathID(w, r)
	if !ok {
		return
	}

	view, err := s.ledger.GetLoanView(loanID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) listLoansHandler(w http.ResponseWriter, r *http.Request) {
	filter, err := report.ParseFilter(r.URL.Query().Get("filter"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	loans, err := s.ledger.GetAllLoans()
	if err != nil {
		s.writeError(w, err)
		return
	}

	today := s.ledger.Today()
	views := []ledger.LoanView{}
	for _, loan := range report.Apply(loans, filter, today, s.ledger.UrgentWindow()) {
		views = append(views, ledger.View(loan, today, s.ledger.UrgentWindow()))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) updateLoanHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := pathID(w, r)
	if !ok {
		return
	}

	var terms ledger.Terms
	if !decode(w, r, &terms) {
		return
	}

	loan, err := s.ledger.EditLoan(loanID, terms)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func (s *Server) deleteLoanHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := s.ledger.DeleteLoan(loanID); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) recordPaymentHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := pathID(w, r)
	if !ok {
		return
	}

	var payment ledger.Payment
	if !decode(w, r, &payment) {
		return
	}

	tx, err := s.ledger.RecordPayment(loanID, payment)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

func (s *Server) addPromiseHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := pathID(w, r)
	if !ok {
		return
	}

	var req struct {
		PromisedDueDate calendar.Date `json:"promised_due_date"`
		Note            string        `json:"note"`
	}
	if !decode(w, r, &req) {
		return
	}

	loan, err := s.ledger.AddPromise(loanID, req.PromisedDueDate, req.Note)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func (s *Server) archiveLoanHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := pathID(w, r)
	if !ok {
		return
	}

	loan, err := s.ledger.ArchiveLoan(loanID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func (s *Server) restoreLoanHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := pathID(w, r)
	if !ok {
		return
	}

	loan, err := s.ledger.RestoreLoan(loanID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func (s *Server) regenerateScheduleHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := pathID(w, r)
	if !ok {
		return
	}

	var req struct {
		FirstDueDate calendar.Date `json:"first_due_date"`
		Confirm      bool          `json:"confirm"`
	}
	if !decode(w, r, &req) {
		return
	}

	loan, err := s.ledger.RegenerateSchedule(loanID, req.FirstDueDate, req.Confirm)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func (s *Server) editInstallmentHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := pathID(w, r)
	if !ok {
		return
	}
	number, err := strconv.Atoi(mux.Vars(r)["number"])
	if err != nil {
		http.Error(w, "Invalid installment number", http.StatusBadRequest)
		return
	}

	var req struct {
		Amount  decimal.Decimal `json:"amount"`
		DueDate calendar.Date   `json:"due_date"`
	}
	if !decode(w, r, &req) {
		return
	}

	loan, err := s.ledger.EditInstallment(loanID, number, req.Amount, req.DueDate)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func (s *Server) previewScheduleHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AmountBorrowed decimal.Decimal `json:"amount_borrowed"`
		InterestRate   decimal.Decimal `json:"interest_rate"`
		Installments   int             `json:"installments"`
		FirstDueDate   calendar.Date   `json:"first_due_date"`
	}
	if !decode(w, r, &req) {
		return
	}

	preview, err := s.ledger.PreviewSchedule(req.AmountBorrowed, req.InterestRate, req.Installments, req.FirstDueDate)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

func (s *Server) createClientHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Phone    string `json:"phone"`
		Document string `json:"document"`
	}
	if !decode(w, r, &req) {
		return
	}

	client, err := s.ledger.CreateClient(req.Name, req.Phone, req.Document)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, client)
}

func (s *Server) listClientsHandler(w http.ResponseWriter, r *http.Request) {
	clients, err := s.ledger.GetAllClients()
	if err != nil {
		s.writeError(w, err)
		return
	}
	if clients == nil {
		clients = []*models.Client{}
	}
	writeJSON(w, http.StatusOK, clients)
}

func (s *Server) listAccountsHandler(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.ledger.GetAllAccounts()
	if err != nil {
		s.writeError(w, err)
		return
	}
	if accounts == nil {
		accounts = []*models.Account{}
	}
	writeJSON(w, http.StatusOK, accounts)
}

func (s *Server) createAccountHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
		Bank string `json:"bank"`
	}
	if !decode(w, r, &req) {
		return
	}

	account, err := s.ledger.CreateAccount(req.Name, req.Bank)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, account)
}

func (s *Server) accountTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := pathID(w, r)
	if !ok {
		return
	}

	txs, err := s.ledger.GetAccountTransactions(accountID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"balance":      report.AccountBalance(txs),
		"transactions": txs,
	})
}

func (s *Server) summaryHandler(w http.ResponseWriter, r *http.Request) {
	loans, err := s.ledger.GetAllLoans()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report.Summarize(loans, s.ledger.Today(), s.ledger.UrgentWindow()))
}

func (s *Server) overdueHandler(w http.ResponseWriter, r *http.Request) {
	loans, err := s.ledger.GetAllLoans()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report.OverdueRanking(loans, s.ledger.Today()))
}

func (s *Server) deletionHistoryHandler(w http.ResponseWriter, r *http.Request) {
	records, err := s.ledger.GetDeletionHistory()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func openStorage(cfg *config.Config) (store.Storage, error) {
	if cfg.Storage == config.StorageMemory {
		return store.NewMemoryStore(), nil
	}
	return store.NewSQLiteStore(cfg.DatabasePath)
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	logger := config.NewLogger(cfg.LogLevel)

	loc, err := cfg.Location()
	if err != nil {
		logger.Fatalf("Failed to load timezone: %v", err)
	}

	storage, err := openStorage(cfg)
	if err != nil {
		logger.Fatalf("Failed to initialize %s store: %v", cfg.Storage, err)
	}
	defer storage.Close()

	server := NewServer(storage, logger,
		ledger.WithLocation(loc),
		ledger.WithUrgentWindow(cfg.UrgentWindowDays),
	)

	logger.WithFields(logrus.Fields{"addr": cfg.Addr(), "storage": cfg.Storage}).Info("Server starting")
	logger.Fatal(http.ListenAndServe(cfg.Addr(), server.routes()))
}
