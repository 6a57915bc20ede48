package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"persona-chat/internal/chat"
	"persona-chat/internal/config"
	"persona-chat/internal/db"
	"persona-chat/internal/httpapi"
	"persona-chat/internal/store/rabbitmq"
	"persona-chat/internal/store/redisstore"
)

func main() {
	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg := config.Load()

	gdb := db.Connect(cfg.DBDSN)
	if err := db.Migrate(gdb); err != nil {
		log.Fatal("migrate", zap.Error(err))
	}

	rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer rds.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rds.Ping(ctx); err != nil {
		log.Fatal("redis ping", zap.Error(err))
	}

	rabbit, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
	if err != nil {
		log.Fatal("rabbit connect", zap.Error(err))
	}
	defer rabbit.Close()

	// background sweep for idle sessions
	reaper := chat.NewReaper(chat.NewRepo(gdb), cfg.SweepInterval, cfg.InactivityThreshold, log)
	go reaper.Run(ctx)

	router := httpapi.NewRouter(gdb, cfg, rds, rabbit, log)

	srv := &http.Server{Addr: cfg.Addr, Handler: router}
	go func() {
		log.Info("server listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown", zap.Error(err))
	}
}
