package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"github.com/dmcarvalho/transferflow-backend/internal/adapter/idempotency"
	"github.com/dmcarvalho/transferflow-backend/internal/adapter/incentive"
	rabbit "github.com/dmcarvalho/transferflow-backend/internal/adapter/messaging/rabbitmq"
	"github.com/dmcarvalho/transferflow-backend/internal/adapter/repository/postgres"
	"github.com/dmcarvalho/transferflow-backend/internal/config"
	"github.com/dmcarvalho/transferflow-backend/internal/pkg/backoff"
	"github.com/dmcarvalho/transferflow-backend/internal/platform/logger"
	"github.com/dmcarvalho/transferflow-backend/internal/usecase/processor"
)

const (
	dialAttempts   = 10
	dialBackoff    = 500 * time.Millisecond
	dialBackoffCap = 30 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logg, err := logger.New(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logg.Sync()

	// 1. Setup Database
	db, err := postgres.NewDB(cfg.DB.DSN())
	if err != nil {
		logg.Fatalw("failed to connect to database", "error", err)
	}
	defer db.Close()

	// 2. Initialize Repositories (Postgres)
	accountRepo := postgres.NewAccountRepository(db)
	uow := postgres.NewUnitOfWork(db)

	// 3. Optional Redis dedup cache
	var dedup processor.DedupCache
	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
		})
		defer redisClient.Close()

		dedup = idempotency.NewRedisCache(redisClient, cfg.Redis.KeyTTL)
		logg.Infow("dedup cache enabled", "addr", cfg.Redis.Addr)
	}

	// 4. Incentive client and the transfer processor
	incentiveClient := incentive.NewClient(cfg.Incentive.URL, cfg.Incentive.Timeout, logg)
	service := processor.NewService(accountRepo, uow, incentiveClient, dedup, logg)

	// 5. Connect to the broker and declare the topology
	conn, channel, err := dialBroker(cfg.AMQP.URL, logg)
	if err != nil {
		logg.Fatalw("failed to connect to broker", "error", err)
	}
	defer conn.Close()

	topology := rabbit.DefaultTopology()
	topology.RetryDelay = cfg.AMQP.RetryDelay

	if err := rabbit.DeclareTopology(channel, topology); err != nil {
		logg.Fatalw("failed to declare topology", "error", err)
	}

	// Parked events are published with broker confirms so a dead-letter is
	// never acked away before the broker owns it.
	publisher, err := rabbit.NewConfirmPublisher(channel, rabbit.DefaultConfirmTimeout)
	if err != nil {
		logg.Fatalw("failed to enable publisher confirms", "error", err)
	}

	consumer := rabbit.NewConsumer(channel, publisher, service, rabbit.Config{
		Queue:           topology.Queue,
		DLXExchange:     topology.DLXExchange,
		Workers:         cfg.AMQP.Workers,
		MaxRedeliveries: cfg.AMQP.MaxRedeliveries,
	}, logg)

	// 6. Run until SIGTERM/SIGINT
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- consumer.Run(ctx)
	}()

	waitForShutdown(cancel, done, logg)
}

// dialBroker connects to the AMQP broker with exponential backoff, since the
// broker is commonly still starting when the consumer comes up.
func dialBroker(url string, logg *logger.Logger) (*amqp.Connection, *amqp.Channel, error) {
	var lastErr error

	for attempt := 0; attempt < dialAttempts; attempt++ {
		conn, err := amqp.Dial(url)
		if err == nil {
			channel, chErr := conn.Channel()
			if chErr == nil {
				return conn, channel, nil
			}

			_ = conn.Close()
			lastErr = chErr
		} else {
			lastErr = err
		}

		delay := backoff.ExponentialWithJitter(dialBackoff, attempt, dialBackoffCap)
		logg.Warnw("broker not ready, retrying", "attempt", attempt+1, "delay", delay, "error", lastErr)
		time.Sleep(delay)
	}

	return nil, nil, lastErr
}

// waitForShutdown waits for SIGTERM or SIGINT, cancels the consumer and
// waits for in-flight events to drain.
func waitForShutdown(cancel context.CancelFunc, done <-chan error, logg *logger.Logger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigChan:
		logg.Infow("received signal, shutting down gracefully", "signal", sig.String())
		cancel()
		<-done
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			logg.Errorw("consumer stopped", "error", err)
		}
		cancel()
	}

	logg.Infow("consumer stopped")
}
