package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/nearchat/nearchat/internal/access"
	"github.com/nearchat/nearchat/internal/api"
	"github.com/nearchat/nearchat/internal/config"
	"github.com/nearchat/nearchat/internal/database"
	"github.com/nearchat/nearchat/internal/server"
	"github.com/nearchat/nearchat/internal/stats"
)

func main() {
	logger := log.New(os.Stderr, "[nearchat] ", log.LstdFlags)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config: ", err)
	}

	dbConn, err := database.NewPgRepository(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("db open: ", err)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Fatal("db close: ", err)
		}
	}()

	if err := dbConn.Migrate(); err != nil {
		logger.Fatal("db migrate: ", err)
	}

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	accessController := access.NewController(logger, dbConn)

	chatServer, err := server.NewChatServer(logger, dbConn, accessController, statsUpdater)
	if err != nil {
		logger.Fatal("new chat server: ", err)
	}

	srv := api.NewNearChatApp(mux, logger, chatServer, accessController, dbConn, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	go chatServer.Run()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("HTTP server shutdown:", err)
	}

	logger.Println("shutting down chat server...")
	if err := chatServer.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("chat server shutdown:", err)
	}

	logger.Println("shutdown complete")
}
