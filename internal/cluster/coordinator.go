// Package cluster runs the proxy as a coordinator process supervising a set
// of worker processes that share one listening port.
package cluster

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/SVOIcom/everscale-connect-backend/internal/alert"
	"github.com/SVOIcom/everscale-connect-backend/internal/metrics"
)

const (
	// RoleEnv selects the process role; workers are started with RoleWorker.
	RoleEnv    = "EVERCONNECT_ROLE"
	RoleWorker = "worker"

	WorkerIDEnv = "EVERCONNECT_WORKER_ID"

	defaultRestartDelay = 500 * time.Millisecond
	defaultStopTimeout  = 15 * time.Second
	defaultMinUptime    = 10 * time.Second
	defaultCrashLoopAt  = 3
	alertTimeout        = 10 * time.Second
	maxMessageBytes     = 1 << 20
)

// IsWorker reports whether this process was started by a Coordinator.
func IsWorker() bool {
	return os.Getenv(RoleEnv) == RoleWorker
}

// Message is one line of the worker message channel. Only lines carrying a
// non-empty cmd are relayed.
type Message struct {
	Cmd  string          `json:"cmd"`
	Data json.RawMessage `json:"data,omitempty"`
}

// CommandFunc builds the command for a new worker process with the given id.
type CommandFunc func(id string) *exec.Cmd

// SelfCommand re-executes the running binary with its arguments in the
// worker role.
func SelfCommand() (CommandFunc, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locate executable: %w", err)
	}
	args := os.Args[1:]
	return func(id string) *exec.Cmd {
		cmd := exec.Command(exe, args...)
		cmd.Env = append(os.Environ(), RoleEnv+"="+RoleWorker, WorkerIDEnv+"="+id)
		cmd.Stderr = os.Stderr
		return cmd
	}, nil
}

type worker struct {
	id    string
	cmd   *exec.Cmd
	mu    sync.Mutex
	stdin io.WriteCloser
}

func (w *worker) send(line []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := w.stdin.Write(line)
	return err
}

// Coordinator keeps a fixed number of workers running, respawning any that
// exit, and relays broadcast messages between them.
type Coordinator struct {
	size         int
	command      CommandFunc
	restartDelay time.Duration
	stopTimeout  time.Duration
	output       io.Writer
	alerter      alert.Alerter
	minUptime    time.Duration
	crashLoopAt  int
	logger       *slog.Logger

	mu      sync.Mutex
	workers map[string]*worker
}

type CoordinatorOption func(*Coordinator)

func WithCommand(fn CommandFunc) CoordinatorOption {
	return func(c *Coordinator) { c.command = fn }
}

// WithRestartDelay sets the pause before a dead worker is replaced.
func WithRestartDelay(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) { c.restartDelay = d }
}

// WithStopTimeout bounds how long a worker may take to exit after SIGTERM.
func WithStopTimeout(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) { c.stopTimeout = d }
}

// WithWorkerOutput sends worker stderr, where workers log, to w.
func WithWorkerOutput(w io.Writer) CoordinatorOption {
	return func(c *Coordinator) { c.output = w }
}

func WithAlerter(a alert.Alerter) CoordinatorOption {
	return func(c *Coordinator) { c.alerter = a }
}

// WithCrashLoop reports a slot as crash looping once n workers in a row
// exited within minUptime of starting.
func WithCrashLoop(n int, minUptime time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		c.crashLoopAt = n
		c.minUptime = minUptime
	}
}

func NewCoordinator(size int, logger *slog.Logger, opts ...CoordinatorOption) (*Coordinator, error) {
	if size < 1 {
		return nil, fmt.Errorf("cluster size must be positive, got %d", size)
	}
	c := &Coordinator{
		size:         size,
		restartDelay: defaultRestartDelay,
		stopTimeout:  defaultStopTimeout,
		alerter:      alert.NoopAlerter{},
		minUptime:    defaultMinUptime,
		crashLoopAt:  defaultCrashLoopAt,
		logger:       logger.With("component", "coordinator"),
		workers:      make(map[string]*worker),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.command == nil {
		cmd, err := SelfCommand()
		if err != nil {
			return nil, err
		}
		c.command = cmd
	}
	return c, nil
}

// Run starts the workers and blocks until ctx is cancelled and every worker
// has exited.
func (c *Coordinator) Run(ctx context.Context) error {
	c.logger.Info("starting workers", "count", c.size)

	var wg sync.WaitGroup
	for slot := 0; slot < c.size; slot++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			c.supervise(ctx, slot)
		}(slot)
	}
	wg.Wait()
	c.logger.Info("all workers stopped")
	return nil
}

// Alive returns the number of running workers.
func (c *Coordinator) Alive() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.workers)
}

func (c *Coordinator) supervise(ctx context.Context, slot int) {
	var (
		mu     sync.Mutex
		streak int
	)
	// stable runs once a worker outlives minUptime.
	stable := func() {
		mu.Lock()
		looping := streak >= c.crashLoopAt
		streak = 0
		mu.Unlock()
		if looping {
			c.logger.Info("worker slot recovered", "slot", slot)
			c.notify(alert.AlertTypeWorkerRecovered, slot, "Worker slot recovered",
				fmt.Sprintf("worker has been up for %s", c.minUptime))
		}
	}

	for {
		started := time.Now()
		err := c.runWorker(ctx, stable)
		if ctx.Err() != nil {
			return
		}
		metrics.WorkerRestartsTotal.Inc()
		c.logger.Warn("worker exited, respawning", "slot", slot, "error", err)

		if time.Since(started) < c.minUptime {
			mu.Lock()
			streak++
			n := streak
			mu.Unlock()
			if n == c.crashLoopAt {
				c.logger.Error("worker slot is crash looping", "slot", slot, "exits", n)
				c.notify(alert.AlertTypeWorkerCrashLoop, slot, "Worker crash loop",
					fmt.Sprintf("%d workers exited within %s of starting, last error: %v", n, c.minUptime, err))
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.restartDelay):
		}
	}
}

func (c *Coordinator) notify(typ alert.AlertType, slot int, title, msg string) {
	a := alert.Alert{
		Type:      typ,
		Component: fmt.Sprintf("cluster/slot-%d", slot),
		Title:     title,
		Message:   msg,
		Fields:    map[string]string{"pid": fmt.Sprint(os.Getpid())},
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), alertTimeout)
		defer cancel()
		if err := c.alerter.Send(ctx, a); err != nil {
			c.logger.Warn("alert failed", "type", typ, "error", err)
		}
	}()
}

func (c *Coordinator) runWorker(ctx context.Context, onStable func()) error {
	id := uuid.NewString()
	cmd := c.command(id)
	if c.output != nil {
		cmd.Stderr = c.output
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("worker %s stdin: %w", id, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("worker %s stdout: %w", id, err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start worker %s: %w", id, err)
	}

	w := &worker{id: id, cmd: cmd, stdin: stdin}
	c.register(w)
	defer c.unregister(w)
	c.logger.Info("worker started", "worker_id", id, "pid", cmd.Process.Pid)
	stableTimer := time.AfterFunc(c.minUptime, onStable)
	defer stableTimer.Stop()

	relayDone := make(chan struct{})
	go func() {
		defer close(relayDone)
		c.relay(w, stdout)
	}()

	exited := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			c.stop(w, exited)
		case <-exited:
		}
	}()

	// Wait closes stdout, so the relay must drain it first.
	<-relayDone
	err = cmd.Wait()
	close(exited)
	return err
}

func (c *Coordinator) stop(w *worker, exited <-chan struct{}) {
	_ = w.cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-exited:
	case <-time.After(c.stopTimeout):
		c.logger.Warn("worker did not stop in time, killing", "worker_id", w.id)
		_ = w.cmd.Process.Kill()
	}
}

func (c *Coordinator) register(w *worker) {
	c.mu.Lock()
	c.workers[w.id] = w
	c.mu.Unlock()
	metrics.WorkersAlive.Inc()
}

func (c *Coordinator) unregister(w *worker) {
	c.mu.Lock()
	delete(c.workers, w.id)
	c.mu.Unlock()
	_ = w.stdin.Close()
	metrics.WorkersAlive.Dec()
}

// relay reads w's message channel until it closes. Lines that are not
// messages are logged and dropped.
func (c *Coordinator) relay(w *worker, r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxMessageBytes)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var msg Message
		if err := json.Unmarshal(line, &msg); err != nil || msg.Cmd == "" {
			c.logger.Debug("worker output", "worker_id", w.id, "line", string(line))
			continue
		}
		c.Broadcast(msg.Cmd, line)
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, os.ErrClosed) {
		c.logger.Warn("worker message channel failed", "worker_id", w.id, "error", err)
		// keep the worker from blocking on a full pipe
		_, _ = io.Copy(io.Discard, r)
	}
}

// Broadcast writes line to every running worker, the sender included.
func (c *Coordinator) Broadcast(cmd string, line []byte) {
	out := make([]byte, 0, len(line)+1)
	out = append(out, line...)
	out = append(out, '\n')

	c.mu.Lock()
	targets := make([]*worker, 0, len(c.workers))
	for _, w := range c.workers {
		targets = append(targets, w)
	}
	c.mu.Unlock()

	metrics.BroadcastsTotal.WithLabelValues(cmd).Inc()
	for _, w := range targets {
		if err := w.send(out); err != nil {
			c.logger.Warn("broadcast to worker failed", "worker_id", w.id, "cmd", cmd, "error", err)
		}
	}
}
