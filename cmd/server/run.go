package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"whitelist/internal/admission/handler"
	admissionmetrics "whitelist/internal/admission/metrics"
	"whitelist/internal/admission/service"
	"whitelist/internal/platform/config"
	"whitelist/internal/platform/httpserver"
	"whitelist/internal/platform/metrics"
	"whitelist/internal/platform/tracing"
	"whitelist/internal/session"
	httptransport "whitelist/internal/transport/http"
	audit "whitelist/pkg/platform/audit"
	"whitelist/pkg/platform/audit/publishers/ops"
	"whitelist/pkg/platform/audit/worker"
	authmw "whitelist/pkg/platform/middleware/auth"
)

// run builds every component from cfg and serves until ctx is cancelled.
func run(ctx context.Context, cfg config.Server, logger *slog.Logger) error {
	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing, "whitelist")
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.WithoutCancel(ctx)); err != nil {
			logger.Error("failed to flush traces", "error", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	backend, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer backend.close()

	sink, err := openAuditSink(ctx, cfg, backend, logger)
	if err != nil {
		return err
	}
	defer sink.close()

	sampler := ops.NewSampler(1)
	sampler.SetRate(string(audit.EventMemberAlreadyRegistered), cfg.Audit.RepeatSampleRate)
	publisher := ops.NewPublisher(sink.sink,
		ops.WithLogger(logger),
		ops.WithMetrics(ops.NewMetrics(reg)),
		ops.WithCircuitBreaker(ops.NewCircuitBreaker(cfg.Audit.BreakerThreshold, cfg.Audit.BreakerCooldown)),
		ops.WithSampler(sampler),
	)
	auditWorker := worker.NewWorker(publisher, cfg.Audit.Buffer, logger)

	svc := service.New(backend.store,
		service.WithLogger(logger),
		service.WithAuditPublisher(auditWorker),
		service.WithMetrics(admissionmetrics.New(reg)),
	)
	registry, err := svc.Deploy(ctx, cfg.Whitelist.Capacity)
	if err != nil {
		return fmt.Errorf("deploy whitelist: %w", err)
	}
	logger.InfoContext(ctx, "whitelist ready",
		"store", cfg.Whitelist.Store,
		"capacity", registry.Capacity,
		"count", registry.Count,
		"chain_id", cfg.Whitelist.ChainID,
	)

	tokens := session.NewTokenService(cfg.Session.SigningKey, cfg.Session.Issuer, cfg.Session.Audience)
	requireCaller := authmw.RequireCaller(session.NewValidatorAdapter(tokens), cfg.Whitelist.ChainID, logger,
		authmw.WithAuditEmitter(auditWorker))
	router := httptransport.NewRouter(httptransport.Config{
		Logger:        logger,
		Whitelist:     handler.New(svc, logger),
		RequireCaller: requireCaller,
		RateLimit:     newRateLimiter(cfg, backend, logger).RateLimit,
		HTTPMetrics:   metrics.New(reg),
		Gatherer:      reg,
		HealthChecks:  append(backend.health, sink.health...),
	})

	// the worker outlives the server so events from draining requests are delivered
	workerCtx, stopWorker := context.WithCancel(context.WithoutCancel(ctx))
	var g errgroup.Group
	g.Go(func() error {
		return auditWorker.Run(workerCtx)
	})
	serveErr := httpserver.Serve(ctx, httpserver.New(cfg.Addr, router), cfg.ShutdownTimeout, logger)
	stopWorker()
	return errors.Join(serveErr, g.Wait())
}
