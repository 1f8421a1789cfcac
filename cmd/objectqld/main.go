package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/guileen/objectql/catalog"
	"github.com/guileen/objectql/driver"
	"github.com/guileen/objectql/engine"
	"github.com/guileen/objectql/logger"
	"github.com/guileen/objectql/protocol/api"
	"github.com/guileen/objectql/security"
)

func main() {
	startTime := time.Now()
	logger.Info("starting objectql server", "startup_time", startTime.Format(time.RFC3339))

	config := engine.LoadConfig()
	if path := os.Getenv("OBJECTQL_CONFIG"); path != "" {
		loaded, err := engine.LoadConfigFile(path, config)
		if err != nil {
			logger.Error("failed to load config file", "path", path, "error", err)
			os.Exit(1)
		}
		config = loaded
	}

	registry := catalog.NewDemoRegistry()

	var drv driver.Driver
	if dsn := os.Getenv("OBJECTQL_PG_DSN"); dsn != "" {
		pg, err := driver.NewPGXDriver(context.Background(), dsn)
		if err != nil {
			logger.Error("failed to connect postgres", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		drv = pg
	} else {
		logger.Warn("OBJECTQL_PG_DSN not set, serving from mock driver")
		drv = &driver.MockDriver{}
	}

	eng := engine.New(config, registry, registry, drv, &security.ContextProvider{})
	defer eng.Close()

	var tokens *security.JWTProvider
	if secret := os.Getenv("OBJECTQL_JWT_SECRET"); secret != "" {
		tokens = &security.JWTProvider{Secret: []byte(secret)}
	} else {
		logger.Warn("OBJECTQL_JWT_SECRET not set, bearer authentication disabled")
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	api.NewRESTHandler(eng, tokens).RegisterRoutes(r)

	addr := os.Getenv("OBJECTQL_LISTEN")
	if addr == "" {
		addr = ":8080"
	}
	server := &http.Server{Addr: addr, Handler: r}

	go func() {
		logger.Info("http server listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
	logger.Info("server stopped", "uptime", time.Since(startTime).String())
}
