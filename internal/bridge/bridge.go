// Package bridge implements the external processor bridge from spec.md
// §4.E: a long-running child process that consumes one JSON value per
// input line on stdin and emits zero or more JSON values per line on
// stdout, exposed as a queue.Channel.
package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"

	"github.com/soochol/cdp/internal/decoder"
	"github.com/soochol/cdp/internal/queue"
)

// ErrNotFound is returned when the program cannot be resolved on PATH.
type ErrNotFound struct{ Program string }

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("bridge: program %q not found on PATH", e.Program)
}

type dryRunKey struct{}

// WithDryRun marks ctx so Spawn only resolves program on PATH instead of
// starting it, for paths that construct real factories to validate their
// options' shape without paying for the side effect of a live child
// process (spec.md §4.I eager validation).
func WithDryRun(ctx context.Context) context.Context {
	return context.WithValue(ctx, dryRunKey{}, true)
}

// IsDryRun reports whether ctx was marked by WithDryRun.
func IsDryRun(ctx context.Context) bool {
	v, _ := ctx.Value(dryRunKey{}).(bool)
	return v
}

// Registry is the process-wide set of bridge PIDs (spec.md §4.E step 2,
// §9 "Global state"). Like queue.Registry, a systems target would inject
// this explicitly per runtime rather than rely on a package-level global.
type Registry struct {
	mu   sync.Mutex
	pids map[int]struct{}
}

// NewRegistry creates an empty PID set.
func NewRegistry() *Registry { return &Registry{pids: make(map[int]struct{})} }

func (r *Registry) add(pid int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pids[pid] = struct{}{}
}

func (r *Registry) remove(pid int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pids, pid)
}

// Count reports how many bridges are currently registered.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pids)
}

// Bridge wraps a child process as a Channel[any]: Send encodes and writes a
// line to stdin, Receive decodes lines from stdout.
type Bridge struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser

	ch       *queue.Channel[any]
	inQueue  *queue.Queue[any]
	outQueue *queue.Queue[any]

	dead   atomic.Bool
	dryRun bool

	feedDone chan struct{}
	recvDone chan struct{}
}

// Spawn resolves program on PATH, starts it with stdin/stdout piped and
// stderr inherited, and wires a buffer channel feeding stdin plus a receive
// sequence decoding stdout via the stream decoder. Under WithDryRun, Spawn
// only resolves program on PATH and returns a Bridge that reports healthy
// and closes as a no-op, without starting a process.
func Spawn(ctx context.Context, program string, args []string, reg *Registry) (*Bridge, error) {
	resolved, err := exec.LookPath(program)
	if err != nil {
		return nil, &ErrNotFound{Program: program}
	}
	if IsDryRun(ctx) {
		return &Bridge{dryRun: true}, nil
	}

	cmd := exec.CommandContext(ctx, resolved, args...)
	cmd.Stderr = os.Stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("bridge: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("bridge: stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("bridge: start %q: %w", program, err)
	}
	if reg != nil {
		reg.add(cmd.Process.Pid)
	}

	b := &Bridge{
		cmd:      cmd,
		stdin:    stdin,
		stdout:   stdout,
		outQueue: queue.New[any]("bridge-out", nil),
		feedDone: make(chan struct{}),
		recvDone: make(chan struct{}),
	}

	inQueue := queue.New[any]("bridge-in", nil)
	b.inQueue = inQueue

	go b.feedLoop()
	go b.recvLoop()
	go func() {
		err := cmd.Wait()
		if err != nil {
			slog.Warn("bridge: child process exited", "program", program, "err", err)
		}
		b.dead.Store(true)
		if reg != nil {
			reg.remove(cmd.Process.Pid)
		}
	}()

	outCh := queue.NewQueueChannel(b.outQueue)
	b.ch = queue.Wrap(outCh, func(vs ...any) bool {
		ok := true
		for _, v := range vs {
			if !inQueue.Push(v) {
				ok = false
			}
		}
		return ok
	})

	return b, nil
}

// feedLoop encodes each value received from the stdin-feed queue as a
// compact JSON line and writes it to stdin. The program and its arguments
// reach the child exactly as the caller passed them: neither the bridge
// nor its callers (NewJQ, NewJsonnet, the stdout sink's jq/jsonnet path)
// wrap the program in a try-form, so how a runtime error on one input line
// affects the child is up to the child program. feedLoop itself just stops
// when the feed queue closes and drains, or stdin errors.
func (b *Bridge) feedLoop() {
	defer close(b.feedDone)
	w := bufio.NewWriter(b.stdin)
	for {
		v, ok := b.inQueue.Receive()
		if !ok {
			return
		}
		enc, err := json.Marshal(v)
		if err != nil {
			slog.Warn("bridge: failed to encode value for child stdin", "err", err)
			continue
		}
		if _, err := w.Write(enc); err != nil {
			return
		}
		if _, err := w.Write([]byte{'\n'}); err != nil {
			return
		}
		if err := w.Flush(); err != nil {
			return
		}
	}
}

func (b *Bridge) recvLoop() {
	defer close(b.recvDone)
	decoder.Decode(b.stdout, decoder.Options{Parse: decoder.JSONLine}, func(v any) bool {
		return b.outQueue.Push(v)
	})
	b.outQueue.Close()
}

// Channel exposes the bridge as a Channel[any]: Send feeds stdin, Receive
// drains decoded stdout values.
func (b *Bridge) Channel() *queue.Channel[any] { return b.ch }

// Healthy reports whether the child's exit code and terminating signal are
// both still unset.
func (b *Bridge) Healthy() bool { return b.dryRun || !b.dead.Load() }

// Close closes the stdin-feed queue, awaits the feed loop draining it,
// closes stdin, awaits receive completion, then signal-kills the child if
// still running (removal from the registry is handled by the Wait
// goroutine). A no-op for a dry-run Bridge, which never started a process.
func (b *Bridge) Close() {
	if b.dryRun {
		return
	}
	b.inQueue.Close()
	<-b.inQueue.Drained()
	<-b.feedDone
	b.stdin.Close()
	<-b.recvDone
	if !b.dead.Load() {
		b.cmd.Process.Kill()
	}
}
