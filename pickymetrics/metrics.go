// Package pickymetrics defines the Prometheus metrics the core exports,
// following the shape of boulder's caMetrics (ca/ca.go): one
// *prometheus.CounterVec per labeled event, registered eagerly at
// construction.
package pickymetrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds every counter and histogram the core updates.
type Metrics struct {
	signatureCount   *prometheus.CounterVec
	signErrorCount   *prometheus.CounterVec
	certificates     *prometheus.CounterVec
	storageOpCount   *prometheus.CounterVec
	storageErrCount  *prometheus.CounterVec
	chainWalkLength  prometheus.Histogram
	bootstrapSeconds *prometheus.HistogramVec
}

// New registers and returns a Metrics bound to stats.
func New(stats prometheus.Registerer) *Metrics {
	signatureCount := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pickyca_signatures_total",
		Help: "Number of certificates signed, by purpose (root, intermediate, leaf).",
	}, []string{"purpose"})
	stats.MustRegister(signatureCount)

	signErrorCount := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pickyca_signature_errors_total",
		Help: "Number of signing attempts that failed, by error type.",
	}, []string{"type"})
	stats.MustRegister(signErrorCount)

	certificates := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pickyca_certificates_issued_total",
		Help: "Number of certificates issued, by purpose.",
	}, []string{"purpose"})
	stats.MustRegister(certificates)

	storageOpCount := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pickyca_storage_operations_total",
		Help: "Number of storage backend operations, by operation and outcome.",
	}, []string{"operation", "outcome"})
	stats.MustRegister(storageOpCount)

	storageErrCount := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pickyca_storage_errors_total",
		Help: "Number of storage backend errors, by error type.",
	}, []string{"type"})
	stats.MustRegister(storageErrCount)

	chainWalkLength := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pickyca_chain_walk_length",
		Help:    "Number of certificates returned by a chain walk.",
		Buckets: []float64{1, 2, 3, 4, 8, 16},
	})
	stats.MustRegister(chainWalkLength)

	bootstrapSeconds := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pickyca_bootstrap_duration_seconds",
		Help:    "Time taken to complete a bootstrap run, by outcome.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
	stats.MustRegister(bootstrapSeconds)

	return &Metrics{
		signatureCount:   signatureCount,
		signErrorCount:   signErrorCount,
		certificates:     certificates,
		storageOpCount:   storageOpCount,
		storageErrCount:  storageErrCount,
		chainWalkLength:  chainWalkLength,
		bootstrapSeconds: bootstrapSeconds,
	}
}

func (m *Metrics) NoteSignature(purpose string) {
	m.signatureCount.With(prometheus.Labels{"purpose": purpose}).Inc()
}

func (m *Metrics) NoteSignError(errType string) {
	m.signErrorCount.With(prometheus.Labels{"type": errType}).Inc()
}

func (m *Metrics) NoteCertificateIssued(purpose string) {
	m.certificates.With(prometheus.Labels{"purpose": purpose}).Inc()
}

func (m *Metrics) NoteStorageOp(operation string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.storageOpCount.With(prometheus.Labels{"operation": operation, "outcome": outcome}).Inc()
}

func (m *Metrics) NoteStorageError(errType string) {
	m.storageErrCount.With(prometheus.Labels{"type": errType}).Inc()
}

func (m *Metrics) ObserveChainWalkLength(n int) {
	m.chainWalkLength.Observe(float64(n))
}

func (m *Metrics) ObserveBootstrapDuration(outcome string, seconds float64) {
	m.bootstrapSeconds.With(prometheus.Labels{"outcome": outcome}).Observe(seconds)
}
