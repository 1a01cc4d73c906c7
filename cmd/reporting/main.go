package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/wholesale-shop/backoffice/internal/config"
	"github.com/wholesale-shop/backoffice/internal/fulfillment"
	kafkax "github.com/wholesale-shop/backoffice/internal/kafka"
	"github.com/wholesale-shop/backoffice/internal/redisx"
	"github.com/wholesale-shop/backoffice/internal/reporting"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	svc := &reporting.Service{
		Redis:       rdb,
		ServiceName: cfg.ServiceName + "-reporting",
	}

	group := getenv("REPORTING_GROUP", "reporting-svc")
	workers := mustAtoi(os.Getenv("REPORTING_WORKERS"), "4")
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, fulfillment.TopicOrderFulfilled, workers)

	go func() {
		log.Printf("reporting consumer started: group=%s topic=%s workers=%d", group, fulfillment.TopicOrderFulfilled, workers)
		if err := cons.Start(ctx, svc.HandleOrderFulfilled); err != nil {
			log.Printf("consumer exit: %v", err)
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down consumer...")
	cancel()
	time.Sleep(500 * time.Millisecond)
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func mustAtoi(s, def string) int {
	if s == "" {
		s = def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 1
	}
	return i
}
