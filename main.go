package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"example.com/threadfeed/cmd/server"
	"example.com/threadfeed/cmd/worker"
	appkafka "example.com/threadfeed/internal/broker"
	config "example.com/threadfeed/internal/init"
	"example.com/threadfeed/internal/notify"
	"example.com/threadfeed/internal/realtime"
	"example.com/threadfeed/internal/store"
)

func main() {
	// Initialize application configuration
	cfg := config.Init()
	mode := cfg.Mode

	// Configure Kafka client parameters
	kafkaCfg := appkafka.KafkaConfig{
		Brokers:      []string{cfg.KafkaBroker},
		Topic:        cfg.KafkaTopic,
		Partition:    cfg.KafkaPartition,
		GroupID:      cfg.KafkaGroupID,
		WriteTimeout: cfg.KafkaWriteTO,
		ReadTimeout:  cfg.KafkaReadTO,
	}

	// Setup OS signal handling for graceful shutdown (SIGINT, SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Run application depending on selected mode
	switch mode {
	case "server":
		// Initialize the store backend selected by config
		st, err := store.New()
		if err != nil {
			log.Fatalf("Store connection failed: %v", err)
		}
		defer st.Close()

		kafkaWriter, err := appkafka.NewKafkaWriter(kafkaCfg)
		if err != nil {
			log.Fatalf("Kafka writer init failed: %v", err)
		}
		defer kafkaWriter.Close()

		// Entity creation events flow through the notifier queue so
		// store writes never wait on the broker
		notifier := notify.NewQueue(kafkaWriter, cfg.NotifyQueueSize)
		defer notifier.Close()

		server.Run(ctx, st, notifier, cfg.ServerAddr)
	case "worker":
		kafkaReader := appkafka.NewKafkaReader(kafkaCfg)
		defer kafkaReader.Close()

		// Start the worker that fans events out to realtime subscribers
		w := worker.New(kafkaReader, realtime.NewHub(), cfg.WSAddr, 0, 0)
		w.Run(ctx)
	default:
		log.Fatalf("unknown mode: %s", mode)
	}

	log.Println("Shutdown completed")
}
