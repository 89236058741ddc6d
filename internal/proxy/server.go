// Package proxy serves read-only contract calls and payload encoding for
// clients that have no chain SDK of their own.
package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/SVOIcom/everscale-connect-backend/internal/cache"
	"github.com/SVOIcom/everscale-connect-backend/internal/everclient"
	"github.com/SVOIcom/everscale-connect-backend/internal/tracing"
	"github.com/SVOIcom/everscale-connect-backend/pkg/abi"
	"github.com/SVOIcom/everscale-connect-backend/pkg/address"
	"github.com/SVOIcom/everscale-connect-backend/pkg/proxyclient"
)

// LegacyPrefix is the path under which older clients reach the proxy routes.
// TonLegacyPrefix serves clients built before the network was renamed.
const (
	LegacyPrefix    = "/EverscaleBackendProvider"
	TonLegacyPrefix = "/TonBackendProvider"
)

const (
	routeRunLocal = "runLocal"
	routePayload  = "payload"
	routePurge    = "purge"

	maxRequestBodyBytes = 8 << 20 // ABIs of large contracts run into megabytes
)

type Config struct {
	// DefaultNetwork is used when a request names no network server.
	DefaultNetwork  string
	RunLocalTTL     time.Duration
	PayloadTTL      time.Duration
	UpstreamTimeout time.Duration
	CacheCapacity   int
}

func (c *Config) setDefaults() {
	if c.DefaultNetwork == "" {
		c.DefaultNetwork = "eri01.main.everos.dev"
	}
	if c.RunLocalTTL <= 0 {
		c.RunLocalTTL = 5 * time.Second
	}
	if c.PayloadTTL <= 0 {
		c.PayloadTTL = time.Minute
	}
	if c.UpstreamTimeout <= 0 {
		c.UpstreamTimeout = cache.DefaultTimeout
	}
	if c.CacheCapacity <= 0 {
		c.CacheCapacity = 10_000
	}
}

// Server answers the runLocal and payload routes from a per-process cache
// backed by the chain SDK.
type Server struct {
	sdks     everclient.Factory
	cfg      Config
	store    cache.Store
	limiter  *IPLimiter
	runLocal *cache.Memo[json.RawMessage]
	payload  *cache.Memo[string]
	onPurge  func()
	logger   *slog.Logger
}

type ServerOption func(*Server)

// WithStore shares cached results through s in addition to the local cache.
func WithStore(s cache.Store) ServerOption {
	return func(srv *Server) { srv.store = s }
}

// WithRateLimiter limits the proxy routes per client IP. The caller owns l.
func WithRateLimiter(l *IPLimiter) ServerOption {
	return func(srv *Server) { srv.limiter = l }
}

// WithPurgeHook exposes POST /cache/purge, which calls fn. A clustered worker
// passes a hook that asks every worker to Purge.
func WithPurgeHook(fn func()) ServerOption {
	return func(srv *Server) { srv.onPurge = fn }
}

func NewServer(sdks everclient.Factory, cfg Config, logger *slog.Logger, opts ...ServerOption) *Server {
	cfg.setDefaults()
	s := &Server{
		sdks:   sdks,
		cfg:    cfg,
		logger: logger.With("component", "proxy"),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.runLocal = cache.NewMemo[json.RawMessage](
		cache.NewStringLRU[json.RawMessage](cfg.CacheCapacity, cfg.RunLocalTTL),
		routeRunLocal,
		cache.WithStore[json.RawMessage](s.store),
		cache.WithTimeout[json.RawMessage](cfg.UpstreamTimeout),
		cache.WithLogger[json.RawMessage](logger),
	)
	s.payload = cache.NewMemo[string](
		cache.NewStringLRU[string](cfg.CacheCapacity, cfg.PayloadTTL),
		routePayload,
		cache.WithStore[string](s.store),
		cache.WithTimeout[string](cfg.UpstreamTimeout),
		cache.WithLogger[string](logger),
	)
	return s
}

// Handler returns the routes, each registered at the root and under both
// legacy prefixes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	for _, prefix := range []string{"", LegacyPrefix, TonLegacyPrefix} {
		mux.Handle("POST "+prefix+"/runLocal/{network}/{address}/{method}", s.route(routeRunLocal, s.handleRunLocal))
		mux.Handle("POST "+prefix+"/payload/{network}/{method}", s.route(routePayload, s.handlePayload))
	}
	if s.onPurge != nil {
		mux.Handle("POST /cache/purge", s.route(routePurge, s.handlePurge))
	}
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

func (s *Server) route(name string, fn http.HandlerFunc) http.Handler {
	var h http.Handler = fn
	if s.limiter != nil {
		h = s.limiter.Wrap(name, h)
	}
	return tracing.Middleware(name, accessLog(s.logger, name, h))
}

func (s *Server) handleRunLocal(w http.ResponseWriter, r *http.Request) {
	network := s.network(r)
	addr := address.New(r.PathValue("address"))
	method := r.PathValue("method")

	body, d, ok := decodeRequest(w, r)
	if !ok {
		return
	}
	key := cacheKey(method, addr.String(), network, d.Fingerprint(), body.Input)

	result, err := s.runLocal.Load(r.Context(), key, func(ctx context.Context) (json.RawMessage, error) {
		out, err := s.sdks.Get(network).RunLocal(ctx, addr, d.JSON(), method, body.Input)
		if err != nil {
			return nil, err
		}
		return json.Marshal(out)
	})
	if err != nil {
		s.logger.Warn("runLocal failed",
			"network", network,
			"address", addr.String(),
			"method", method,
			"error", err,
		)
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, proxyclient.Envelope{Status: proxyclient.StatusOK, Result: result})
}

func (s *Server) handlePayload(w http.ResponseWriter, r *http.Request) {
	network := s.network(r)
	method := r.PathValue("method")

	body, d, ok := decodeRequest(w, r)
	if !ok {
		return
	}
	key := cacheKey(method, "", network, d.Fingerprint(), body.Input)

	encoded, err := s.payload.Load(r.Context(), key, func(ctx context.Context) (string, error) {
		return s.sdks.Get(network).EncodeInternalBody(ctx, d.JSON(), method, body.Input)
	})
	if err != nil {
		s.logger.Warn("payload failed", "network", network, "method", method, "error", err)
		writeFailure(w, r, err)
		return
	}
	result, err := json.Marshal(encoded)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, proxyclient.Envelope{Status: proxyclient.StatusOK, Result: result})
}

// Purge drops the responses cached by this process.
func (s *Server) Purge() {
	s.runLocal.Purge()
	s.payload.Purge()
	s.logger.Info("response cache purged")
}

func (s *Server) handlePurge(w http.ResponseWriter, r *http.Request) {
	s.onPurge()
	writeJSON(w, http.StatusAccepted, proxyclient.Envelope{Status: proxyclient.StatusOK})
}

func (s *Server) network(r *http.Request) string {
	if n := r.PathValue("network"); n != "" {
		return n
	}
	return s.cfg.DefaultNetwork
}

// cacheKey joins method, address, network, ABI fingerprint and the input
// serialized with sorted keys.
func cacheKey(method, addr, network, fingerprint string, input map[string]any) string {
	in, err := json.Marshal(input)
	if err != nil {
		in = []byte("null")
	}
	return strings.Join([]string{method, addr, network, fingerprint, string(in)}, "|")
}

// decodeRequest reads the body and parses its ABI. Numbers in the input stay
// json.Number so that 128 and 256 bit integers reach the SDK and the cache
// key intact. Malformed requests are answered with an error envelope.
func decodeRequest(w http.ResponseWriter, r *http.Request) (proxyclient.RequestBody, *abi.Descriptor, bool) {
	var body proxyclient.RequestBody
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return body, nil, false
	}
	if body.Abi == "" {
		writeBadRequest(w, "abi is required")
		return body, nil, false
	}
	d, err := abi.ParseString(body.Abi)
	if err != nil {
		writeBadRequest(w, err.Error())
		return body, nil, false
	}
	if body.Input == nil {
		body.Input = map[string]any{}
	}
	return body, d, true
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	markFailed(w)
	encoded, _ := json.Marshal(map[string]string{"message": msg})
	writeJSON(w, http.StatusOK, proxyclient.Envelope{
		Status:       proxyclient.StatusError,
		Error:        msg,
		EncodedError: string(encoded),
	})
}

// writeFailure answers with status 200 and an error envelope. SDK errors keep
// their code and data so clients can recover TVM exit codes.
func writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	markFailed(w)
	tracing.RecordError(r.Context(), err)
	env := proxyclient.Envelope{Status: proxyclient.StatusError, Error: err.Error()}

	var sdkErr *everclient.SDKError
	var encoded []byte
	switch {
	case errors.As(err, &sdkErr):
		env.Error = sdkErr.Message
		encoded, _ = json.Marshal(sdkErr)
	case errors.Is(err, cache.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		encoded, _ = json.Marshal(map[string]any{"message": err.Error(), "timeout": true})
	default:
		encoded, _ = json.Marshal(map[string]string{"message": err.Error()})
	}
	env.EncodedError = string(encoded)
	writeJSON(w, http.StatusOK, env)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
