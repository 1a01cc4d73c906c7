package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/wholesale-shop/backoffice/internal/config"
	"github.com/wholesale-shop/backoffice/internal/fulfillment"
	"github.com/wholesale-shop/backoffice/internal/gateway"
	"github.com/wholesale-shop/backoffice/internal/httpx"
	"github.com/wholesale-shop/backoffice/internal/inventory"
	kafkax "github.com/wholesale-shop/backoffice/internal/kafka"
	"github.com/wholesale-shop/backoffice/internal/postgres"
	"github.com/wholesale-shop/backoffice/internal/redisx"
	"github.com/wholesale-shop/backoffice/internal/schema"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := schema.Default()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer db.Close()
	if err := postgres.Migrate(ctx, db, reg); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producers, one per topic
	prod := kafkax.NewProducer(cfg.KafkaBrokers, fulfillment.TopicOrderFulfilled, 1024)
	prod.Start(ctx)
	compProd := kafkax.NewProducer(cfg.KafkaBrokers, fulfillment.TopicOrderCompensated, 256)
	compProd.Start(ctx)

	// Gateway: postgres behind the versioned redis read cache
	gw := gateway.NewCached(gateway.NewPostgres(reg, db), reg, &redisx.Cache{R: rdb}, redisx.TTLReadCache)
	ledger := inventory.NewLedger(gw)
	sessions := fulfillment.NewSessionManager(gw, ledger, prod, compProd, cfg.ServiceName)

	router := httpx.NewRouter()
	(&httpx.TablesHandler{Reg: reg, GW: gw}).Register(router)
	(&httpx.WizardHandler{Sessions: sessions}).Register(router)
	(&httpx.DashboardHandler{GW: gw, Redis: rdb}).Register(router)
	(&httpx.BulkHandler{Reg: reg, GW: gw}).Register(router)
	(&httpx.UsersHandler{GW: gw}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		log.Printf("HTTP listening at %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	prod.Close() // close inboxes -> flush & close writers
	compProd.Close()
	cancel()
	prod.WaitClosed()
	compProd.WaitClosed()
}
