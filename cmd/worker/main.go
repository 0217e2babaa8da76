// Worker consumes critical security alerts from Kafka and pushes them to Loki.
// Set KAFKA_BROKERS, SECURITY_ALERT_TOPIC, KAFKA_GROUP_ID, and LOKI_URL.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"multidept-session-trust/backend/internal/config"
	"multidept-session-trust/backend/internal/platform/logging"
	"multidept-session-trust/backend/internal/telemetry/loki"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	logging.Setup(cfg.LogLevel, !cfg.IsProduction())

	brokers := cfg.KafkaBrokersList()
	if len(brokers) == 0 {
		log.Fatal().Msg("worker: KAFKA_BROKERS is required")
	}
	client, err := loki.NewClient(cfg.LokiURL, "deptreports-security")
	if err != nil {
		log.Fatal().Err(err).Msg("worker: LOKI_URL is required")
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    cfg.SecurityAlertTopic,
		GroupID:  cfg.KafkaGroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
		MaxWait:  time.Second,
	})
	defer reader.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("topic", cfg.SecurityAlertTopic).Str("group", cfg.KafkaGroupID).Str("loki", cfg.LokiURL).Msg("worker: consuming")

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info().Msg("worker: stopped")
				return
			}
			log.Warn().Err(err).Msg("worker: kafka read error")
			continue
		}
		if err := push(ctx, client, msg.Value); err != nil {
			if ctx.Err() != nil {
				return
			}
			// the alert is still in the audit log; skip it rather than stall the partition
			log.Error().Err(err).Int64("offset", msg.Offset).Msg("worker: loki push failed")
		}
		if err := reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Msg("worker: commit failed")
		}
	}
}

// push retries transient Loki failures with exponential backoff.
func push(ctx context.Context, client *loki.Client, value []byte) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := client.PushAlertJSON(ctx, value)
		var se *loki.StatusError
		if errors.As(err, &se) && !se.Retryable() {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxElapsedTime(30*time.Second))
	return err
}
