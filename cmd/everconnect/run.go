package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/SVOIcom/everscale-connect-backend/internal/alert"
	"github.com/SVOIcom/everscale-connect-backend/internal/circuitbreaker"
	"github.com/SVOIcom/everscale-connect-backend/internal/cluster"
	"github.com/SVOIcom/everscale-connect-backend/internal/config"
	"github.com/SVOIcom/everscale-connect-backend/internal/everclient"
	"github.com/SVOIcom/everscale-connect-backend/internal/proxy"
	redispkg "github.com/SVOIcom/everscale-connect-backend/internal/store/redis"
	"github.com/SVOIcom/everscale-connect-backend/internal/tracing"
)

const (
	serviceName = "everconnect"

	// cmdCachePurge asks every worker to drop its response cache.
	cmdCachePurge = "cache.purge"
)

func runCoordinator(ctx context.Context, cfg *config.Config, logger *slog.Logger, sink io.Writer) error {
	logger.Info("starting everconnect",
		"port", cfg.Server.Port,
		"workers", cfg.Server.MaxWorkers,
		"worker_lifetime", cfg.Server.WorkerLifetime,
		"sdk_bridge", cfg.Upstream.SDKBridgeURL,
		"default_network", cfg.Upstream.DefaultNetwork,
		"shared_cache", cfg.Cache.RedisURL != "",
	)

	coord, err := cluster.NewCoordinator(cfg.Server.MaxWorkers, logger,
		cluster.WithWorkerOutput(sink),
		cluster.WithStopTimeout(cfg.Server.ShutdownTimeout+5*time.Second),
		cluster.WithAlerter(newAlerter(cfg, logger)),
		cluster.WithCrashLoop(cfg.Alert.CrashLoopExits, cfg.Alert.MinUptime),
	)
	if err != nil {
		return err
	}
	return coord.Run(ctx)
}

func runWorker(ctx context.Context, cfg *config.Config, logger *slog.Logger, r role) error {
	shutdownTracing, err := tracing.Init(ctx, serviceName, cfg.Tracing.Endpoint, cfg.Tracing.Insecure, cfg.Tracing.SampleRatio)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracing shutdown error", "error", err)
		}
	}()

	pool := everclient.NewPool(everclient.PoolConfig{
		BridgeURL:       cfg.Upstream.SDKBridgeURL,
		RPS:             cfg.Upstream.RPS,
		Burst:           cfg.Upstream.Burst,
		HTTPClient:      &http.Client{Timeout: cfg.Upstream.Timeout + 2*time.Second},
		OnBreakerChange: breakerAlerts(newAlerter(cfg, logger), logger),
	}, logger)

	var opts []proxy.ServerOption
	if cfg.Cache.RedisURL != "" {
		store, err := redispkg.NewResponseStore(ctx, cfg.Cache.RedisURL, cfg.Cache.Namespace)
		if err != nil {
			return fmt.Errorf("connect shared cache: %w", err)
		}
		defer store.Close()
		opts = append(opts, proxy.WithStore(store))
		logger.Info("shared response cache enabled", "namespace", cfg.Cache.Namespace)
	}
	if cfg.RateLimit.RPS > 0 {
		limiter := proxy.NewIPLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst, logger)
		defer limiter.Stop()
		opts = append(opts, proxy.WithRateLimiter(limiter))
	}

	var (
		srv    *proxy.Server
		worker *cluster.Worker
	)
	if r == roleWorker {
		opts = append(opts, proxy.WithPurgeHook(func() {
			if err := worker.Broadcast(cmdCachePurge, map[string]string{"from": worker.ID()}); err != nil {
				logger.Warn("cache purge broadcast failed", "error", err)
			}
		}))
	} else {
		opts = append(opts, proxy.WithPurgeHook(func() { srv.Purge() }))
	}

	srv = proxy.NewServer(pool, proxy.Config{
		DefaultNetwork:  cfg.Upstream.DefaultNetwork,
		RunLocalTTL:     cfg.Cache.RunLocalTTL,
		PayloadTTL:      cfg.Cache.PayloadTTL,
		UpstreamTimeout: cfg.Upstream.Timeout,
		CacheCapacity:   cfg.Cache.Capacity,
	}, logger, opts...)

	worker = cluster.NewWorker(workerConfig(cfg, r), srv.Handler(), logger)
	worker.Handle(cmdCachePurge, func(cluster.Message) { srv.Purge() })
	return worker.Run(ctx)
}

func newAlerter(cfg *config.Config, logger *slog.Logger) alert.Alerter {
	return alert.New(cfg.Alert.SlackWebhookURL, cfg.Alert.WebhookURL, cfg.Alert.Cooldown, logger)
}

// breakerAlerts reports upstream outages when a network breaker opens and
// recoveries when it closes again. The hook runs under the breaker lock, so
// delivery happens in the background.
func breakerAlerts(a alert.Alerter, logger *slog.Logger) everclient.BreakerHook {
	return func(network string, from, to circuitbreaker.State) {
		var msg alert.Alert
		switch to {
		case circuitbreaker.StateOpen:
			if from == circuitbreaker.StateHalfOpen {
				return
			}
			msg = alert.Alert{Type: alert.AlertTypeUpstreamDown, Title: "SDK bridge unavailable",
				Message: "repeated transient failures opened the circuit breaker"}
		case circuitbreaker.StateClosed:
			msg = alert.Alert{Type: alert.AlertTypeUpstreamRecovered, Title: "SDK bridge recovered",
				Message: "circuit breaker closed"}
		default:
			return
		}
		msg.Component = "everclient"
		msg.Network = network
		msg.Fields = map[string]string{"from": from.String(), "to": to.String()}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := a.Send(ctx, msg); err != nil {
				logger.Warn("upstream alert failed", "network", network, "error", err)
			}
		}()
	}
}

// workerConfig retires clustered workers after their lifetime. A standalone
// process serves until stopped.
func workerConfig(cfg *config.Config, r role) cluster.WorkerConfig {
	wc := cluster.WorkerConfig{
		Addr:            ":" + strconv.Itoa(cfg.Server.Port),
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}
	if r == roleWorker {
		wc.Lifetime = cfg.Server.WorkerLifetime
	}
	return wc
}
