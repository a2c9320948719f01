package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	UsersRegistered    prometheus.Counter
	ExperimentsCreated prometheus.Counter
	VariationsSpawned  prometheus.Counter
	SpawnFailures      prometheus.Counter
	SubjectsEnrolled   prometheus.Counter
	MatchesCreated     prometheus.Counter
	MatchesCompleted   prometheus.Counter
	EscrowDeposited    prometheus.Counter
	EscrowDisbursed    prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		UsersRegistered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bxhive_users_registered_total",
			Help: "Total number of users registered in the directory",
		}),
		ExperimentsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bxhive_experiments_created_total",
			Help: "Total number of experiment groups created",
		}),
		VariationsSpawned: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bxhive_variations_spawned_total",
			Help: "Total number of variation engines spawned and funded",
		}),
		SpawnFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bxhive_spawn_failures_total",
			Help: "Total number of spawn protocol runs that were rolled back",
		}),
		SubjectsEnrolled: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bxhive_subjects_enrolled_total",
			Help: "Total number of subjects enrolled across all variations",
		}),
		MatchesCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bxhive_matches_created_total",
			Help: "Total number of matches created",
		}),
		MatchesCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bxhive_matches_completed_total",
			Help: "Total number of matches settled and paid out",
		}),
		EscrowDeposited: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bxhive_escrow_deposited_units_total",
			Help: "Total escrow units deposited into variation engines",
		}),
		EscrowDisbursed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bxhive_escrow_disbursed_units_total",
			Help: "Total escrow units disbursed as payouts and withdrawals",
		}),
	}
}
