package worker

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/jmehdipour/repo-digest/internal/app"
	"github.com/jmehdipour/repo-digest/internal/config"
	"github.com/jmehdipour/repo-digest/internal/kafka"
	"github.com/jmehdipour/repo-digest/internal/logger"
	"github.com/jmehdipour/repo-digest/internal/metrics"
	"github.com/jmehdipour/repo-digest/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var ingestWorkers int

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Consume queued webhooks from Kafka and relay them",
	RunE:  runIngest,
}

func init() {
	ingestCmd.Flags().IntVar(&ingestWorkers, "workers", 1, "concurrent processors; one repository stays on one processor")
}

func runIngest(cmd *cobra.Command, args []string) error {
	// 1) load config
	cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if !cfg.Kafka.Enabled {
		return errors.New("ingest: kafka.enabled is false")
	}
	logger.Init(cfg.Log.Level)
	log := logger.Component("ingest")

	metrics.MustRegister(prometheus.DefaultRegisterer)

	// 2) relay without a publisher, events are handled inline here
	a, err := app.Build(cfg, logger.Log, app.Options{})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	// 3) consumer
	consumer := kafka.NewConsumer(cfg.Kafka)
	defer func() { _ = consumer.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	w := worker.NewIngest(consumer, a.Service.OnWebhookEvent, log)
	w.Workers = ingestWorkers

	log.Info("ingest worker started",
		zap.String("topic", cfg.Kafka.Topic), zap.String("group", cfg.Kafka.GroupID), zap.Int("workers", ingestWorkers))
	return w.Run(ctx)
}
