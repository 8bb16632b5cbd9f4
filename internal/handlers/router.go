package handlers

import (
	"net/http"
	"strings"

	"altcoin/internal/config"
	"altcoin/internal/middleware"
	"altcoin/internal/store"
	"altcoin/internal/websocket"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	gorillaws "github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Handler struct {
	queryDB  store.Getter
	cfg      config.Config
	orders   OrderService
	verifier BalanceVerifier
	users    UserStore
	trades   TradeStore
	history  TradeHistoryStore
	status   StatusReporter
	hub      *websocket.Hub
	upgrader gorillaws.Upgrader
	logger   *zap.Logger
}

func New(queryDB store.Getter, cfg config.Config, orders OrderService, verifier BalanceVerifier, users UserStore, trades TradeStore, history TradeHistoryStore, status StatusReporter, hub *websocket.Hub, logger *zap.Logger) *Handler {
	return &Handler{
		queryDB:  queryDB,
		cfg:      cfg,
		orders:   orders,
		verifier: verifier,
		users:    users,
		trades:   trades,
		history:  history,
		status:   status,
		hub:      hub,
		upgrader: websocket.NewUpgrader(allowedOrigins(cfg.AllowedOrigins)),
		logger:   logger,
	}
}

func (h *Handler) Routes() http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.RequestLogger(h.logger))
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins(h.cfg.AllowedOrigins),
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	router.Post("/buy", h.Buy)
	router.Post("/sell", h.Sell)
	router.Post("/users", h.CreateUser)
	router.Post("/deposit", h.Deposit)
	router.Post("/withdraw", h.Withdraw)
	router.Get("/users/{id}/balances", h.Balances)
	router.Get("/orderbook/{currency}/{priceCurrency}", h.OrderBook)
	router.Get("/trades/{currency}/{priceCurrency}", h.Trades)
	router.Get("/ws/balances", h.WSBalances)

	router.Handle("/metrics", promhttp.Handler())
	router.Get("/health", h.Health)
	return router
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.status == nil {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	status := h.status.Status()
	if !status.Healthy() {
		respondJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "degraded", "dispatcher": status})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok", "dispatcher": status})
}

func allowedOrigins(raw string) []string {
	var origins []string
	for _, origin := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
