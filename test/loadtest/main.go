// Package main is a load harness for a running everconnect proxy. It fires
// runLocal or payload requests from concurrent workers and reports
// throughput, latency percentiles, and the mix of outcomes.
//
// Usage:
//
//	go run ./test/loadtest \
//	  -url http://localhost:3019/EverscaleBackendProvider \
//	  -abi ./SetcodeMultisigWallet.abi.json \
//	  -address 0:388820c348e6b2a5e38c8c8f1bf4088cdc384fc67219bd064f60c7d8d1092eb1 \
//	  -method getCustodians \
//	  -concurrency 16 \
//	  -duration 30s
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/SVOIcom/everscale-connect-backend/internal/retry"
	"github.com/SVOIcom/everscale-connect-backend/pkg/address"
	"github.com/SVOIcom/everscale-connect-backend/pkg/proxyclient"
)

func main() {
	var (
		baseURL     = flag.String("url", "http://localhost:3019/EverscaleBackendProvider", "Proxy base URL")
		network     = flag.String("network", "eri01.main.everos.dev", "Network server")
		abiPath     = flag.String("abi", "", "Path to the contract ABI JSON (required)")
		addrFlag    = flag.String("address", "", "Contract address for runLocal; empty switches to the payload route")
		method      = flag.String("method", "", "Contract method (required)")
		inputFlag   = flag.String("input", "{}", "Method input as a JSON object")
		concurrency = flag.Int("concurrency", 8, "Number of parallel workers")
		duration    = flag.Duration("duration", 30*time.Second, "Test duration")
		rps         = flag.Float64("rps", 0, "Overall request rate cap, 0 for none")
		timeout     = flag.Duration("timeout", 15*time.Second, "Per-request timeout")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if *abiPath == "" || *method == "" {
		fmt.Fprintln(os.Stderr, "-abi and -method are required")
		flag.Usage()
		os.Exit(2)
	}
	abiJSON, err := os.ReadFile(*abiPath)
	if err != nil {
		logger.Error("read abi", "error", err)
		os.Exit(1)
	}
	var input map[string]any
	if err := json.Unmarshal([]byte(*inputFlag), &input); err != nil {
		logger.Error("parse -input", "error", err)
		os.Exit(1)
	}

	client := proxyclient.New(*baseURL, logger, proxyclient.WithRetryPolicy(retry.Policy{Attempts: 1}))

	var call func(ctx context.Context) error
	if *addrFlag != "" {
		addr := address.New(*addrFlag)
		call = func(ctx context.Context) error {
			_, err := client.RunLocal(ctx, *network, addr, *method, string(abiJSON), input)
			return err
		}
	} else {
		call = func(ctx context.Context) error {
			_, err := client.Payload(ctx, *network, *method, string(abiJSON), input)
			return err
		}
	}

	limit := rate.Inf
	if *rps > 0 {
		limit = rate.Limit(*rps)
	}
	limiter := rate.NewLimiter(limit, *concurrency)

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			logger.Info("received signal, stopping load test")
			cancel()
		case <-ctx.Done():
		}
	}()

	logger.Info("starting load test",
		"url", *baseURL,
		"network", *network,
		"method", *method,
		"workers", *concurrency,
		"duration", *duration,
		"rps", *rps,
	)

	st := newStats()
	start := time.Now()

	var g errgroup.Group
	for i := 0; i < *concurrency; i++ {
		g.Go(func() error {
			for {
				if err := limiter.Wait(ctx); err != nil {
					return nil
				}
				reqCtx, reqCancel := context.WithTimeout(ctx, *timeout)
				began := time.Now()
				err := call(reqCtx)
				reqCancel()
				if ctx.Err() != nil {
					return nil
				}
				st.record(time.Since(began), classify(err))
			}
		})
	}
	_ = g.Wait()

	r := st.report(time.Since(start))
	r.print(os.Stdout, *concurrency)
	if r.Failed() {
		os.Exit(1)
	}
}
