package stats

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// GameLister é o que o roteador precisa do registro de partidas.
type GameLister interface {
	ActiveIDs(ctx context.Context) ([]string, error)
}

// Router expõe a superfície HTTP de observabilidade do servidor de sessão:
// o resumo de partidas ativas, as métricas Prometheus e o liveness check
// consumido pelo Consul.
type Router struct {
	games GameLister
	log   *zap.SugaredLogger
}

func NewRouter(games GameLister, log *zap.SugaredLogger) *Router {
	return &Router{games: games, log: log}
}

// Mount registra as rotas no mux dado.
func (rt *Router) Mount(mux *http.ServeMux) {
	mux.HandleFunc("/stats", rt.handleStats)
	mux.HandleFunc("/healthz", rt.handleHealthz)
	mux.Handle("/metrics", promhttp.Handler())
}

func (rt *Router) handleStats(w http.ResponseWriter, r *http.Request) {
	ids, err := rt.games.ActiveIDs(r.Context())
	if err != nil {
		rt.log.Warnf("Falha ao listar partidas ativas: %v", err)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	json.NewEncoder(w).Encode(map[string]any{
		"activeGames": len(ids),
		"gameIds":     ids,
	})
}

func (rt *Router) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
