package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LoanOperations counts ledger mutations by outcome.
	LoanOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loan_operations_total",
			Help: "Loan mutations processed by the ledger",
		},
		[]string{"operation", "status"},
	)

	// Payments counts recorded payments per modality and payment type.
	Payments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loan_payments_total",
			Help: "Payments recorded against loans",
		},
		[]string{"modality", "type"},
	)

	// PaymentAmount accumulates the money received per modality.
	PaymentAmount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loan_payment_amount_total",
			Help: "Sum of amounts received from loan payments",
		},
		[]string{"modality"},
	)
)

// Observe records the outcome of a ledger operation.
func Observe(operation string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	LoanOperations.WithLabelValues(operation, status).Inc()
}

// ObservePayment records a payment that was applied and stored.
func ObservePayment(modality, paymentType string, amount float64) {
	Payments.WithLabelValues(modality, paymentType).Inc()
	PaymentAmount.WithLabelValues(modality).Add(amount)
}
