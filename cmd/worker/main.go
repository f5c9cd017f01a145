package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/maxsonferovante/AsyncPaymentProcessor/internal/config"
	"github.com/maxsonferovante/AsyncPaymentProcessor/internal/consumer"
	"github.com/maxsonferovante/AsyncPaymentProcessor/internal/dispatch"
	"github.com/maxsonferovante/AsyncPaymentProcessor/internal/health"
	"github.com/maxsonferovante/AsyncPaymentProcessor/internal/history"
	"github.com/maxsonferovante/AsyncPaymentProcessor/internal/orchestrator"
	"github.com/maxsonferovante/AsyncPaymentProcessor/internal/processor"
	"github.com/maxsonferovante/AsyncPaymentProcessor/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// go-flags already printed the problem; exit non-zero per the
		// bootstrap fail-fast policy.
		os.Exit(1)
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.JSONFormatter{})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st := store.New(cfg.RedisAddr(), cfg.RedisDB, cfg.RedisTimeout())
	defer st.Close()
	if err := st.Ping(ctx); err != nil {
		logrus.WithError(err).Fatal("shared store unreachable")
	}

	client := processor.NewClient(cfg.DefaultProcessorURL, cfg.FallbackProcessorURL)
	cache := health.NewCache(st)
	queue := consumer.NewQueue(st, cfg.MainQueueKey)

	var recorder dispatch.Recorder = history.NewRecorder(st)
	if cfg.EnableCounters {
		recorder = history.NewTee(history.NewRecorder(st), history.NewCounters(st))
	}

	engine := dispatch.NewEngine(cache, client, queue, recorder, dispatch.Options{
		MaxRetryAttemptsPerDispatch: cfg.MaxRetryAttemptsPerDispatch,
		MaxReenqueueCount:           cfg.MaxReenqueueCount,
		AssumeHealthyWhenUnknown:    cfg.AssumeHealthyWhenUnknown,
	})
	cons := consumer.New(queue, engine, cfg.MaxConcurrentPayments, cfg.BatchSize, cfg.ExecutionDelay())
	orch := orchestrator.New(client, cache, orchestrator.StoreLeaser{Store: st})

	if backlog, err := queue.Length(ctx); err == nil {
		logrus.WithFields(logrus.Fields{
			"queue":                   cfg.MainQueueKey,
			"backlog":                 backlog,
			"max_concurrent_payments": cfg.MaxConcurrentPayments,
			"batch_size":              cfg.BatchSize,
		}).Info("worker starting")
	}

	go orch.Run(ctx)
	cons.Run(ctx)

	stats := cons.Stats()
	logrus.WithFields(logrus.Fields{
		"total":     stats.Total,
		"completed": stats.Completed,
	}).Info("worker stopped")
}
