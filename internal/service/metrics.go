package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	taskRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dopagent_task_runs_total",
		Help: "Portal task runs by task and outcome.",
	}, []string{"task", "status"})

	taskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dopagent_task_duration_seconds",
		Help:    "Portal task wall time by task.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	}, []string{"task"})

	ledgerAccounts = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dopagent_ledger_accounts",
		Help: "Accounts currently recorded in the ledger.",
	})
)
