package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/BigDeckClub/BigDeckAppV3-sub007/internal/config"
	"github.com/BigDeckClub/BigDeckAppV3-sub007/internal/db"
	apihttp "github.com/BigDeckClub/BigDeckAppV3-sub007/internal/http"
	"github.com/BigDeckClub/BigDeckAppV3-sub007/internal/inventory"
	"github.com/BigDeckClub/BigDeckAppV3-sub007/internal/jobs"
	"github.com/BigDeckClub/BigDeckAppV3-sub007/internal/price"
	"github.com/BigDeckClub/BigDeckAppV3-sub007/internal/server"
	"github.com/BigDeckClub/BigDeckAppV3-sub007/internal/valuation"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var invStore *inventory.Store
	if cfg.DatabaseURL != "" {
		client, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("db connect: %v", err)
		}
		defer client.Disconnect(ctx)
		invStore = inventory.New(client)
	} else {
		log.Printf("DATABASE_URL not set, collection endpoints disabled")
	}

	priceSvc := price.NewService(cfg.Price, price.NewHTTPFetcher())
	priceSvc.Initialize(ctx)

	valuationSvc := valuation.NewEngine(priceSvc)

	handler := apihttp.NewHandler(priceSvc, valuationSvc, invStore)
	httpServer := server.New(cfg.HTTPPort, handler.Router())

	refreshJob := jobs.NewPriceRefreshJob(cfg.Price.JobInterval, priceSvc)
	go refreshJob.Start(ctx)

	go func() {
		if err := httpServer.Start(); err != nil {
			log.Printf("http server stopped: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		log.Printf("http server shutdown: %v", err)
	}
}
