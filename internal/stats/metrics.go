package stats

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Contadores de processo expostos em /metrics.
var (
	ConnectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dechecs_connections_total",
		Help: "Conexões WebSocket admitidas.",
	})

	AdmissionRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dechecs_admission_rejected_total",
		Help: "Conexões rejeitadas pelo token bucket.",
	})

	GamesCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dechecs_games_created_total",
		Help: "Partidas criadas.",
	})

	MovesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dechecs_moves_total",
		Help: "Lances aplicados com sucesso.",
	})

	SettlementsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dechecs_settlements_total",
		Help: "Liquidações on-chain confirmadas.",
	})

	SettlementFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dechecs_settlement_failures_total",
		Help: "Liquidações que falharam e ficaram pendentes para o operador.",
	})

	FaultsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dechecs_handler_faults_total",
		Help: "Falhas não esperadas capturadas pela barreira de falhas.",
	})
)
