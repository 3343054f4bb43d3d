package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/zhiyin2021/rocketmq-clients/internal/metrics"
	"github.com/zhiyin2021/rocketmq-clients/pkg/client"
	"github.com/zhiyin2021/rocketmq-clients/pkg/message"
	"github.com/zhiyin2021/rocketmq-clients/pkg/producer"
	"github.com/zhiyin2021/rocketmq-clients/pkg/utils"
)

func run(c *cli.Context) error {
	cfg, err := buildConfig(c)
	if err != nil {
		return fmt.Errorf("failed to build config: %w", err)
	}

	sugar, err := utils.NewSugaredLogger(cfg.Verbose)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer sugar.Desugar().Sync() //nolint:errcheck // best-effort flush; ignore sync errors

	sugar.Infow("config",
		"verbose", cfg.Verbose,
		"arn", cfg.Client.Arn,
		"endpoint", cfg.Client.Endpoint,
		"group", cfg.Client.Group,
		"topic", cfg.Topic,
		"count", cfg.Count,
		"sendTimeout", cfg.Client.SendMessageTimeout,
		"metricsHost", cfg.MetricsHost,
		"metricsPort", cfg.MetricsPort,
	)

	registry := prometheus.NewRegistry()
	m, err := metrics.New(registry)
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	metricsServer := metrics.NewServer(cfg.MetricsAddr(), registry)
	metricsErrCh := metricsServer.Start()
	sugar.Infof("metrics server listening on http://%s/metrics", cfg.MetricsAddr())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	manager := client.NewManager(sugar, client.WithMetrics(m))
	defer manager.Shutdown()

	p, err := producer.New(cfg.Client,
		producer.WithLogger(sugar),
		producer.WithManager(manager),
		producer.WithMetrics(m),
	)
	if err != nil {
		return fmt.Errorf("failed to create producer: %w", err)
	}
	if err := p.Start(); err != nil {
		return fmt.Errorf("failed to start producer: %w", err)
	}
	defer p.Shutdown() //nolint:errcheck // shutdown is a logged no-op on repeat

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for i := 0; i < cfg.Count; i++ {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			msg := message.New(cfg.Topic, []byte(cfg.Body))
			result, err := p.Send(msg)
			if err != nil {
				return fmt.Errorf("failed to send message %d: %w", i, err)
			}
			sugar.Infow("message sent",
				"messageId", result.MessageID,
				"partition", result.PartitionID,
				"offset", result.QueueOffset,
			)
		}
		stop()
		return nil
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case err := <-metricsErrCh:
			if err != nil {
				return fmt.Errorf("metrics server failed: %w", err)
			}
			return nil
		}
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		sugar.Infow("exiting due to context cancellation")
		return nil
	}
	if err != nil {
		sugar.Errorw("run failed", "error", err)
		return err
	}

	sugar.Info("shutting down")
	return nil
}
