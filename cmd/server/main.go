package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"altcoin/internal/config"
	"altcoin/internal/db"
	"altcoin/internal/dispatcher"
	"altcoin/internal/handlers"
	"altcoin/internal/logger"
	"altcoin/internal/services"
	"altcoin/internal/store"
	"altcoin/internal/tradefeed"
	"altcoin/internal/websocket"
	"altcoin/migrations"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.AppEnv)
	defer log.Sync()

	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("failed to connect database", zap.Error(err))
	}
	defer database.Close()

	users := store.NewUserStore(database)
	orders := store.NewOrderStore(database)
	trades := store.NewTradeStore(database)
	history := store.NewTradeHistoryStore(database)
	ledger := store.NewLedgerStore(database)
	txRunner := db.NewTxRunner(database)
	hub := websocket.NewHub()

	var publisher services.TradePublisher
	if len(cfg.KafkaBrokers) > 0 {
		producer := tradefeed.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic, log.Named("tradefeed"))
		defer producer.Close()
		publisher = producer
		log.Info("publishing trades", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	}

	engine := services.NewMatchingEngine(txRunner, users, orders, trades, history, ledger, publisher, log.Named("matching"))
	orderService := services.NewOrderService(txRunner, users, orders, trades, ledger, log.Named("orders"))
	reconciler := services.NewReconciler(txRunner, users, ledger, hub, log.Named("reconciler"))

	listener := db.NewListener(cfg.DatabaseURL, migrations.NotifyChannel, cfg.ListenerMinReconnect, cfg.ListenerMaxReconnect, log.Named("listener"))
	dispatch := dispatcher.New(engine, reconciler, trades, ledger, log.Named("dispatcher"), dispatcher.Options{RetryBase: cfg.RetryBase})

	handler := handlers.New(database, cfg, orderService, reconciler, users, trades, history, dispatch, hub, log.Named("http"))
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return listener.Run(ctx)
	})
	group.Go(func() error {
		err := dispatch.Run(ctx, listener.Notifications())
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	group.Go(func() error {
		log.Info("altcoin API listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.Error("shutdown with error", zap.Error(err))
		os.Exit(1)
	}
	log.Info("shutdown complete")
}
