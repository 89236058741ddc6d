package cluster

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/http"
	"os"
	"sync"
	"time"
)

// MaxLifetimeJitter is the upper bound of the random delay added to a
// worker's lifetime so that workers started together do not retire together.
const MaxLifetimeJitter = 10 * time.Second

type WorkerConfig struct {
	Addr string
	// Lifetime is how long the worker serves before it exits on its own.
	// Zero disables retirement.
	Lifetime        time.Duration
	ShutdownTimeout time.Duration
}

// Worker serves HTTP on a port shared with its siblings and exchanges
// messages with the coordinator over stdin and stdout.
type Worker struct {
	id      string
	cfg     WorkerConfig
	handler http.Handler
	logger  *slog.Logger

	in     io.Reader
	outMu  sync.Mutex
	out    io.Writer
	listen func(ctx context.Context, addr string) (net.Listener, error)
	jitter func() time.Duration

	handlersMu sync.RWMutex
	handlers   map[string]func(Message)
}

type WorkerOption func(*Worker)

// WithChannel replaces stdin and stdout as the message channel.
func WithChannel(in io.Reader, out io.Writer) WorkerOption {
	return func(w *Worker) {
		w.in = in
		w.out = out
	}
}

// WithListener replaces the SO_REUSEPORT listener.
func WithListener(fn func(ctx context.Context, addr string) (net.Listener, error)) WorkerOption {
	return func(w *Worker) { w.listen = fn }
}

func withJitter(fn func() time.Duration) WorkerOption {
	return func(w *Worker) { w.jitter = fn }
}

func NewWorker(cfg WorkerConfig, handler http.Handler, logger *slog.Logger, opts ...WorkerOption) *Worker {
	id := os.Getenv(WorkerIDEnv)
	if id == "" {
		id = fmt.Sprintf("pid-%d", os.Getpid())
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	w := &Worker{
		id:       id,
		cfg:      cfg,
		handler:  handler,
		logger:   logger.With("component", "worker", "worker_id", id),
		in:       os.Stdin,
		out:      os.Stdout,
		listen:   ListenReusePort,
		jitter:   func() time.Duration { return rand.N(MaxLifetimeJitter) },
		handlers: make(map[string]func(Message)),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Worker) ID() string {
	return w.id
}

// Handle registers fn for messages with the given cmd. Handlers run on the
// message reader goroutine.
func (w *Worker) Handle(cmd string, fn func(Message)) {
	w.handlersMu.Lock()
	defer w.handlersMu.Unlock()
	w.handlers[cmd] = fn
}

// Broadcast asks the coordinator to deliver a message to every worker,
// this one included.
func (w *Worker) Broadcast(cmd string, data any) error {
	msg := Message{Cmd: cmd}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("encode %s message: %w", cmd, err)
		}
		msg.Data = raw
	}
	line, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %s message: %w", cmd, err)
	}
	line = append(line, '\n')

	w.outMu.Lock()
	defer w.outMu.Unlock()
	_, err = w.out.Write(line)
	return err
}

// Run serves until ctx is cancelled or the lifetime elapses, then shuts the
// server down gracefully.
func (w *Worker) Run(ctx context.Context) error {
	ln, err := w.listen(ctx, w.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", w.cfg.Addr, err)
	}

	srv := &http.Server{
		Handler:           w.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(ln)
	}()
	go w.readMessages()

	var retire <-chan time.Time
	if w.cfg.Lifetime > 0 {
		lifetime := w.cfg.Lifetime + w.jitter()
		timer := time.NewTimer(lifetime)
		defer timer.Stop()
		retire = timer.C
		w.logger.Info("worker serving", "addr", ln.Addr().String(), "lifetime", lifetime)
	} else {
		w.logger.Info("worker serving", "addr", ln.Addr().String())
	}

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
		w.logger.Info("worker stopping")
	case <-retire:
		w.logger.Info("worker lifetime reached, retiring")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), w.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (w *Worker) readMessages() {
	scanner := bufio.NewScanner(w.in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxMessageBytes)
	for scanner.Scan() {
		var msg Message
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil || msg.Cmd == "" {
			w.logger.Debug("ignoring malformed message", "error", err)
			continue
		}
		w.dispatch(msg)
	}
}

func (w *Worker) dispatch(msg Message) {
	w.handlersMu.RLock()
	fn, ok := w.handlers[msg.Cmd]
	w.handlersMu.RUnlock()
	if !ok {
		w.logger.Debug("no handler for message", "cmd", msg.Cmd)
		return
	}
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("message handler panicked", "cmd", msg.Cmd, "panic", r)
		}
	}()
	fn(msg)
}
