// metrics.go - Prometheus metrics for the pool daemon
package main

import (
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"shieldedpool/internal/runtime"
)

var (
	depositsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shieldedpool_deposits_total",
		Help: "Number of deposits committed to the ledger",
	})
	depositedLamports = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shieldedpool_deposited_lamports_total",
		Help: "Lamports moved into the vault by deposits",
	})
	rejectedTransactions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shieldedpool_rejected_transactions_total",
		Help: "Transactions rejected, by program error",
	}, []string{"reason"})
	leafCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "shieldedpool_leaf_count",
		Help: "Commitments in the pool accumulator",
	})
	feedSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "shieldedpool_feed_subscribers",
		Help: "Connected root feed subscribers",
	})
	transactionLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "shieldedpool_transaction_seconds",
		Help:    "Time spent executing a transaction",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
	})
	rateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shieldedpool_rate_limited_requests_total",
		Help: "Requests refused by the per-client rate limiter",
	})
)

// recordTransaction observes one Process call.
func recordTransaction(start time.Time, err error) {
	transactionLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		rejectedTransactions.WithLabelValues(errorReason(err)).Inc()
	}
}

// recordDeposit tracks a committed deposit.
func recordDeposit(amount, leaves uint64) {
	depositsTotal.Inc()
	depositedLamports.Add(float64(amount))
	leafCount.Set(float64(leaves))
}

// errorReason maps err to a bounded label value.
func errorReason(err error) string {
	var perr *runtime.ProgramError
	if errors.As(err, &perr) {
		return perr.Name
	}
	return "internal"
}
