// Package worker implements the child-process-side bootstrap: it reads
// request frames from the parent, constructs the real target object, and
// executes method calls against it.
//
// A worker binary registers one or more receiver factories and calls Serve:
//
//	func main() {
//		srv := worker.NewServer()
//		srv.Register("calc", func(init *types.InitMessage) (worker.Receiver, error) {
//			return &Calc{}, nil
//		})
//		if err := srv.Serve(context.Background()); err != nil {
//			os.Exit(1)
//		}
//	}
package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/tetherproc/tether/iox"
	"github.com/tetherproc/tether/ipc"
	"github.com/tetherproc/tether/log"
	"github.com/tetherproc/tether/types"
)

// Receiver is the remote object hosted by a worker. Invoke is the explicit
// dispatch surface: one named method set per receiver, no reflection.
type Receiver interface {
	Invoke(ctx context.Context, method string, args []any) (any, error)
}

// Factory constructs a Receiver from the init message. The constructor
// arguments arrive in init.Args.
type Factory func(init *types.InitMessage) (Receiver, error)

// Server runs the worker side of the protocol over a request/reply frame
// pair. Calls are executed concurrently, so replies may leave out of order;
// the parent routes them by correlation id.
type Server struct {
	factories map[string]Factory
	plugins   map[string]func() error
	codec     ipc.Codec
	logger    *log.Logger
}

// NewServer creates a worker server with the default codec.
func NewServer() *Server {
	return &Server{
		factories: make(map[string]Factory),
		plugins:   make(map[string]func() error),
		codec:     ipc.DefaultCodec(),
	}
}

// WithCodec replaces the boundary codec. Must match the parent's.
func (s *Server) WithCodec(codec ipc.Codec) *Server {
	s.codec = codec
	return s
}

// WithLogger replaces the logger. Without it, a worker-context logger is
// created from the init message's identity.
func (s *Server) WithLogger(logger *log.Logger) *Server {
	s.logger = logger
	return s
}

// Register adds a receiver factory under a require path.
func (s *Server) Register(requirePath string, factory Factory) {
	s.factories[requirePath] = factory
}

// RegisterPlugin adds a named plugin hook, run during init for each name in
// the init message's plugin list, before the receiver is constructed.
func (s *Server) RegisterPlugin(name string, setup func() error) {
	s.plugins[name] = setup
}

// Serve runs the protocol over the process-standard channels: requests on
// stdin, replies on inherited fd 3. Blocks until dispose or stream end.
func (s *Server) Serve(ctx context.Context) error {
	replies := os.NewFile(3, "replies")
	if replies == nil {
		return errors.New("reply channel (fd 3) not inherited")
	}
	defer iox.DiscardClose(replies)
	return s.ServeConn(ctx, os.Stdin, replies)
}

// ServeConn runs the protocol over an explicit request/reply stream pair.
// Split out from Serve so tests can drive a worker in-process.
func (s *Server) ServeConn(ctx context.Context, requests io.Reader, replies io.Writer) error {
	dec := ipc.NewFrameDecoder(requests)
	enc := ipc.NewFrameEncoderWithCodec(replies, s.codec)

	var receiver Receiver

	for {
		payload, err := dec.ReadFrame()
		if err != nil {
			if errors.Is(err, io.EOF) {
				// Parent went away without dispose; tear down quietly.
				s.teardown(receiver)
				return nil
			}
			return fmt.Errorf("request channel broken: %w", err)
		}

		msg, err := ipc.DecodeRequest(payload, s.codec)
		if err != nil {
			if ipc.IsUnknownKind(err) {
				s.logf("ignoring unrecognized message kind", map[string]any{
					"error": err.Error(),
				})
				continue
			}
			return fmt.Errorf("request decode failed: %w", err)
		}

		switch m := msg.(type) {
		case *types.InitMessage:
			receiver, err = s.handleInit(m, enc)
			if err != nil {
				return err
			}
		case *types.CallMessage:
			if receiver == nil {
				s.reject(enc, m.ID, "worker not initialized")
				continue
			}
			// Each call runs in its own goroutine: a slow method must not
			// block later calls, and replies are free to leave out of order.
			go s.dispatch(ctx, receiver, m, enc)
		case *types.DisposeMessage:
			s.teardown(receiver)
			if err := enc.WriteMessage(&types.DisposeCompletedMessage{Kind: types.KindDisposeCompleted}); err != nil {
				return fmt.Errorf("send dispose acknowledgement: %w", err)
			}
			return nil
		}
	}
}

// handleInit loads plugins, constructs the receiver, and acknowledges.
func (s *Server) handleInit(init *types.InitMessage, enc *ipc.FrameEncoder) (Receiver, error) {
	if s.logger == nil {
		s.logger = log.NewLogger(&init.Worker)
	}

	if init.WorkDir != "" {
		if err := os.Chdir(init.WorkDir); err != nil {
			return nil, fmt.Errorf("chdir to %q: %w", init.WorkDir, err)
		}
	}

	for _, name := range init.Plugins {
		setup, ok := s.plugins[name]
		if !ok {
			return nil, fmt.Errorf("plugin %q is not registered", name)
		}
		if err := setup(); err != nil {
			return nil, fmt.Errorf("plugin %q setup: %w", name, err)
		}
	}

	factory, ok := s.factories[init.RequirePath]
	if !ok {
		return nil, fmt.Errorf("no receiver registered for require path %q", init.RequirePath)
	}

	receiver, err := factory(init)
	if err != nil {
		return nil, fmt.Errorf("construct receiver %q: %w", init.RequirePath, err)
	}

	if err := enc.WriteMessage(&types.InitializedMessage{Kind: types.KindInitialized}); err != nil {
		return nil, fmt.Errorf("send initialized: %w", err)
	}

	s.logger.Info("receiver constructed", map[string]any{
		"require_path": init.RequirePath,
		"plugins":      init.Plugins,
	})

	return receiver, nil
}

// dispatch executes one call and replies with a result or rejection.
func (s *Server) dispatch(ctx context.Context, receiver Receiver, call *types.CallMessage, enc *ipc.FrameEncoder) {
	value, err := receiver.Invoke(ctx, call.Method, call.Args)
	if err != nil {
		s.reject(enc, call.ID, err.Error())
		return
	}

	reply := types.ResultMessage{
		Kind:  types.KindResult,
		ID:    call.ID,
		Value: value,
	}
	if err := enc.WriteMessage(&reply); err != nil {
		s.logf("result send failed", map[string]any{
			"correlation_id": call.ID,
			"error":          err.Error(),
		})
	}
}

func (s *Server) reject(enc *ipc.FrameEncoder, id uint64, message string) {
	reply := types.RejectionMessage{
		Kind:  types.KindRejection,
		ID:    id,
		Error: message,
	}
	if err := enc.WriteMessage(&reply); err != nil {
		s.logf("rejection send failed", map[string]any{
			"correlation_id": id,
			"error":          err.Error(),
		})
	}
}

// teardown closes the receiver if it owns resources.
func (s *Server) teardown(receiver Receiver) {
	if closer, ok := receiver.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			s.logf("receiver teardown failed", map[string]any{
				"error": err.Error(),
			})
		}
	}
}

// logf logs through the init-scoped logger once one exists.
func (s *Server) logf(message string, fields map[string]any) {
	if s.logger == nil {
		return
	}
	s.logger.Warn(message, fields)
}
