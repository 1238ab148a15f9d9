// Package proxy implements the parent side of the remote-object proxy: it
// forks a worker process, constructs the target object inside it, and
// forwards method calls across the process boundary as correlated
// request/reply frames.
//
// A worker crash never propagates as a host crash. It surfaces as a fatal
// error that rejects every pending call and every call made afterwards,
// until the caller constructs a new handle.
package proxy

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tetherproc/tether/ipc"
	"github.com/tetherproc/tether/log"
	"github.com/tetherproc/tether/metrics"
	"github.com/tetherproc/tether/types"
)

// DefaultDisposeTimeout bounds the wait for the worker's dispose
// acknowledgement before force-termination proceeds anyway.
const DefaultDisposeTimeout = 10 * time.Second

// Options configures Spawn.
type Options struct {
	// EntryPoint is the worker binary to fork. Required.
	EntryPoint string
	// Args is the worker's argument list.
	Args []string
	// WorkDir is the working directory for the worker. Also forwarded in
	// the init message so the bootstrap can chdir explicitly.
	WorkDir string
	// Plugins is the plugin list forwarded to the worker bootstrap.
	Plugins []string
	// RequirePath selects the target factory inside the worker.
	RequirePath string
	// CtorArgs is the constructor argument list for the remote object.
	CtorArgs []any
	// DisposeTimeout bounds the wait for the dispose acknowledgement.
	// Zero means DefaultDisposeTimeout; negative means wait indefinitely.
	DisposeTimeout time.Duration
	// Logger overrides the default stderr logger.
	Logger *log.Logger
	// Collector overrides the default metrics collector.
	Collector *metrics.Collector
	// Codec overrides the default msgpack codec for boundary values.
	Codec ipc.Codec
	// ProcFactory overrides process creation (for testing).
	ProcFactory ProcFactory
}

// callOutcome settles one pending call with a value or an error.
type callOutcome struct {
	value any
	err   error
}

// pendingCall is one in-flight remote invocation.
type pendingCall struct {
	method string
	done   chan callOutcome // buffered, capacity 1
}

// Handle is a live proxy for one remote object inside one worker process.
// The handle owns the process exclusively.
//
// Call is the single forwarding funnel: typed caller-side stubs are written
// against it rather than generated from an open-ended method surface.
type Handle struct {
	meta      *types.WorkerMeta
	proc      Process
	enc       *ipc.FrameEncoder
	codec     ipc.Codec
	logger    *log.Logger
	collector *metrics.Collector
	tail      *tailBuffer

	disposeTimeout time.Duration

	initCh       chan struct{} // closed when initialized arrives
	initOnce     sync.Once
	disposeAckCh chan struct{} // closed when dispose_completed arrives
	ackOnce      sync.Once
	crashOnce    sync.Once

	mu         sync.Mutex
	nextID     uint64
	pending    map[uint64]*pendingCall
	fatal      error // cached crash error, nil while healthy
	disposing  bool
	disposed   bool
	crashArmed bool // false once disposal began; exits are then expected
}

// Spawn forks a worker process, sends the init message carrying the plugin
// list, require path, working directory, and constructor arguments, and
// returns a live handle. Calls made before the worker signals readiness are
// queued behind the init handshake.
func Spawn(ctx context.Context, opts Options) (*Handle, error) {
	if opts.EntryPoint == "" {
		return nil, errors.New("entry point is required")
	}

	meta := &types.WorkerMeta{
		WorkerID:   uuid.NewString(),
		EntryPoint: opts.EntryPoint,
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.NewLogger(meta)
	}
	collector := opts.Collector
	if collector == nil {
		collector = metrics.NewCollector(meta.WorkerID, opts.EntryPoint)
	}
	codec := opts.Codec
	if codec == nil {
		codec = ipc.DefaultCodec()
	}
	factory := opts.ProcFactory
	if factory == nil {
		factory = NewProcess
	}
	disposeTimeout := opts.DisposeTimeout
	if disposeTimeout == 0 {
		disposeTimeout = DefaultDisposeTimeout
	}

	proc := factory(&ProcConfig{
		EntryPoint: opts.EntryPoint,
		Args:       opts.Args,
		WorkDir:    opts.WorkDir,
	})

	if err := proc.Start(ctx); err != nil {
		collector.IncSpawnFailure()
		return nil, fmt.Errorf("spawn worker: %w", err)
	}

	h := &Handle{
		meta:           meta,
		proc:           proc,
		enc:            ipc.NewFrameEncoderWithCodec(proc.Requests(), codec),
		codec:          codec,
		logger:         logger,
		collector:      collector,
		tail:           newTailBuffer(DiagnosticTailLines),
		disposeTimeout: disposeTimeout,
		initCh:         make(chan struct{}),
		disposeAckCh:   make(chan struct{}),
		pending:        make(map[uint64]*pendingCall),
		crashArmed:     true,
	}

	init := types.InitMessage{
		Kind:        types.KindInit,
		Worker:      *meta,
		Plugins:     opts.Plugins,
		RequirePath: opts.RequirePath,
		Args:        opts.CtorArgs,
		WorkDir:     opts.WorkDir,
	}
	if err := h.enc.WriteMessage(&init); err != nil {
		_ = proc.Kill()
		collector.IncSpawnFailure()
		return nil, fmt.Errorf("send init: %w", err)
	}

	go h.receiveLoop()
	go h.tailStream(proc.Stdout())
	go h.tailStream(proc.Stderr())
	go h.watchExit()

	collector.IncSpawnSuccess()
	logger.Info("worker spawned", map[string]any{
		"pid":          proc.Pid(),
		"require_path": opts.RequirePath,
		"plugins":      opts.Plugins,
	})

	return h, nil
}

// Call invokes a method on the remote object and suspends until its reply
// arrives, the worker crashes, or ctx is done.
//
// No call frame is written before the worker signals readiness. Once a
// handle has crashed, Call fails immediately with the cached fatal error and
// writes nothing.
func (h *Handle) Call(ctx context.Context, method string, args ...any) (any, error) {
	h.mu.Lock()
	if h.fatal != nil {
		err := h.fatal
		h.mu.Unlock()
		h.collector.IncCallsRejected()
		return nil, err
	}
	if h.disposed || h.disposing {
		h.mu.Unlock()
		h.collector.IncCallsRejected()
		return nil, ErrDisposed
	}
	id := h.nextID
	h.nextID++
	call := &pendingCall{method: method, done: make(chan callOutcome, 1)}
	h.pending[id] = call
	h.mu.Unlock()

	h.collector.IncCallsStarted()

	// Gate transmission behind the init handshake. A crash or disposal
	// while queued settles the call through its done channel.
	select {
	case <-h.initCh:
		msg := types.CallMessage{
			Kind:   types.KindCall,
			ID:     id,
			Method: method,
			Args:   args,
		}
		if err := h.enc.WriteMessage(&msg); err != nil {
			// The exit watcher owns crash semantics; settle just this
			// call in case the channel broke with the process alive.
			h.settle(id, nil, fmt.Errorf("send call %q: %w", method, err))
		}
	case out := <-call.done:
		return h.finish(out)
	case <-ctx.Done():
		h.abandon(id)
		return nil, ctx.Err()
	}

	select {
	case out := <-call.done:
		return h.finish(out)
	case <-ctx.Done():
		h.abandon(id)
		return nil, ctx.Err()
	}
}

// finish maps a settled outcome to Call's return values and counts it.
func (h *Handle) finish(out callOutcome) (any, error) {
	if out.err != nil {
		h.collector.IncCallsRejected()
		return nil, out.err
	}
	h.collector.IncCallsResolved()
	return out.value, nil
}

// abandon drops a pending record after its caller gave up. A late reply for
// the id is then unmatched and ignored.
func (h *Handle) abandon(id uint64) {
	h.mu.Lock()
	delete(h.pending, id)
	h.mu.Unlock()
}

// settle routes a reply to its pending call. Returns false when no record
// matches the correlation id.
func (h *Handle) settle(id uint64, value any, err error) bool {
	h.mu.Lock()
	call, ok := h.pending[id]
	if ok {
		delete(h.pending, id)
	}
	h.mu.Unlock()
	if !ok {
		return false
	}
	call.done <- callOutcome{value: value, err: err}
	return true
}

// takePending detaches every pending record, leaving the table empty.
func (h *Handle) takePending() map[uint64]*pendingCall {
	h.mu.Lock()
	defer h.mu.Unlock()
	taken := h.pending
	h.pending = make(map[uint64]*pendingCall)
	return taken
}

// receiveLoop reads reply frames until the channel ends. It is the only
// reader of the reply stream.
func (h *Handle) receiveLoop() {
	dec := ipc.NewFrameDecoder(h.proc.Replies())
	for {
		payload, err := dec.ReadFrame()
		if err != nil {
			if errors.Is(err, io.EOF) {
				// Worker exited; the exit watcher takes it from here.
				return
			}
			// Framing is broken beyond resync. Kill the worker and let
			// the exit watcher run the crash path.
			h.logger.Error("reply channel framing broken", map[string]any{
				"error": err.Error(),
			})
			h.collector.IncDecodeErrors()
			_ = h.proc.Kill()
			return
		}

		msg, err := ipc.DecodeReply(payload, h.codec)
		if err != nil {
			if ipc.IsUnknownKind(err) {
				// Forward compatibility: tolerate kinds we do not know.
				h.logger.Warn("ignoring unrecognized message kind", map[string]any{
					"error": err.Error(),
				})
				h.collector.IncUnknownMessages()
				continue
			}
			h.logger.Error("reply decode failed", map[string]any{
				"error": err.Error(),
			})
			h.collector.IncDecodeErrors()
			continue
		}

		switch m := msg.(type) {
		case *types.InitializedMessage:
			h.initOnce.Do(func() { close(h.initCh) })
			h.logger.Debug("worker initialized", nil)
		case *types.ResultMessage:
			if !h.settle(m.ID, m.Value, nil) {
				h.dropUnmatched(m.ID, "result")
			}
		case *types.RejectionMessage:
			method := h.pendingMethod(m.ID)
			if !h.settle(m.ID, nil, &RemoteError{Method: method, Message: m.Error}) {
				h.dropUnmatched(m.ID, "rejection")
			}
		case *types.DisposeCompletedMessage:
			h.ackOnce.Do(func() { close(h.disposeAckCh) })
		}
	}
}

func (h *Handle) pendingMethod(id uint64) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if call, ok := h.pending[id]; ok {
		return call.method
	}
	return ""
}

// dropUnmatched logs a reply whose correlation id has no pending record.
// Protocol error on the worker's part, but never fatal for the handle.
func (h *Handle) dropUnmatched(id uint64, kind string) {
	h.logger.Warn("dropping reply with no pending call", map[string]any{
		"correlation_id": id,
		"kind":           kind,
	})
	h.collector.IncUnmatchedIDs()
}

// tailStream drains a diagnostic stream into the tail buffer.
func (h *Handle) tailStream(r io.Reader) {
	if r == nil {
		return
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		h.tail.Append(scanner.Text())
	}
}

// watchExit waits for worker termination and runs the crash path unless a
// disposal already claimed the exit as expected.
func (h *Handle) watchExit() {
	status, err := h.proc.Wait()
	if err != nil {
		h.logger.Error("worker wait failed", map[string]any{
			"error": err.Error(),
		})
		status = ExitStatus{Code: -1}
	}

	h.mu.Lock()
	armed := h.crashArmed
	h.mu.Unlock()
	if !armed {
		return
	}

	h.crash(status)
}

// crash records the fatal error, rejects every pending call with it, and
// marks the handle disposed. Runs at most once per handle and never blocks,
// even with zero calls pending.
func (h *Handle) crash(status ExitStatus) {
	h.crashOnce.Do(func() {
		fatal := &CrashError{Status: status, Tail: h.tail.Tail()}

		h.collector.IncCrashes()
		h.logger.Error("worker terminated unexpectedly", map[string]any{
			"exit_code": status.Code,
			"signal":    status.Signal,
			"tail":      fatal.Tail,
		})

		h.mu.Lock()
		h.fatal = fatal
		h.disposed = true
		h.mu.Unlock()

		for _, call := range h.takePending() {
			call.done <- callOutcome{err: fatal}
			h.collector.IncCallsRejected()
		}
	})
}

// Dispose shuts the worker down. Graceful shutdown is requested and waited
// for (bounded by the dispose timeout), then the process is force-terminated
// regardless of the outcome. Idempotent, and a no-op after a crash.
// It never fails from the caller's viewpoint.
func (h *Handle) Dispose(ctx context.Context) {
	h.mu.Lock()
	if h.disposed || h.disposing {
		h.mu.Unlock()
		return
	}
	h.disposing = true
	// Disarm first: a clean disposal must not be misreported as a crash.
	h.crashArmed = false
	h.mu.Unlock()

	if err := h.enc.WriteMessage(&types.DisposeMessage{Kind: types.KindDispose}); err != nil {
		h.logger.Warn("dispose request failed", map[string]any{
			"error": err.Error(),
		})
	} else {
		h.awaitDisposeAck(ctx)
	}

	// Graceful shutdown is attempted but never trusted.
	if err := h.proc.Kill(); err != nil {
		h.logger.Warn("worker kill failed", map[string]any{
			"error": err.Error(),
		})
	}

	h.mu.Lock()
	h.disposed = true
	h.mu.Unlock()

	for _, call := range h.takePending() {
		call.done <- callOutcome{err: ErrDisposed}
		h.collector.IncCallsRejected()
	}

	h.collector.IncDisposals()
	h.logger.Info("worker disposed", map[string]any{
		"pid": h.proc.Pid(),
	})
}

// awaitDisposeAck waits for dispose_completed, bounded by the configured
// timeout and ctx. All outcomes fall through to force-termination.
func (h *Handle) awaitDisposeAck(ctx context.Context) {
	var timeout <-chan time.Time
	if h.disposeTimeout > 0 {
		timer := time.NewTimer(h.disposeTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-h.disposeAckCh:
	case <-timeout:
		h.logger.Warn("dispose acknowledgement timed out", map[string]any{
			"timeout": h.disposeTimeout.String(),
		})
	case <-ctx.Done():
		h.logger.Warn("dispose wait canceled", map[string]any{
			"error": ctx.Err().Error(),
		})
	}
}

// Close disposes the handle. Implements io.Closer for cleanup helpers;
// the returned error is always nil.
func (h *Handle) Close() error {
	h.Dispose(context.Background())
	return nil
}

// Meta returns the worker identity.
func (h *Handle) Meta() *types.WorkerMeta {
	return h.meta
}

// Pid returns the worker process id.
func (h *Handle) Pid() int {
	return h.proc.Pid()
}

// Err returns the cached fatal error, or nil while the handle is healthy.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.fatal
}

// Metrics returns a snapshot of the handle's counters.
func (h *Handle) Metrics() metrics.Snapshot {
	return h.collector.Snapshot()
}
