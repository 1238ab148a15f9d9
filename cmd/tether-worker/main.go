// Package main provides tether-worker, a demonstration worker binary.
//
// It hosts a small arithmetic/echo receiver under the require path "demo"
// and doubles as a reference implementation of the worker contract:
//
//	tether call --worker tether-worker --require demo --method add --args '[2,3]'
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/tetherproc/tether/types"
	"github.com/tetherproc/tether/worker"
)

func main() {
	srv := worker.NewServer()
	srv.Register("demo", newDemoReceiver)

	if err := srv.Serve(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "worker failed: %v\n", err)
		os.Exit(1)
	}
}

// demoReceiver is the reference remote object. Its constructor args, if
// present, set a greeting prefix used by the hello method.
type demoReceiver struct {
	greeting string
}

func newDemoReceiver(init *types.InitMessage) (worker.Receiver, error) {
	r := &demoReceiver{greeting: "hello"}
	if len(init.Args) > 0 {
		greeting, ok := init.Args[0].(string)
		if !ok {
			return nil, fmt.Errorf("greeting must be a string, got %T", init.Args[0])
		}
		r.greeting = greeting
	}
	return r, nil
}

// Invoke dispatches the receiver's named method set.
func (r *demoReceiver) Invoke(_ context.Context, method string, args []any) (any, error) {
	switch method {
	case "add":
		if len(args) != 2 {
			return nil, fmt.Errorf("add expects 2 arguments, got %d", len(args))
		}
		a, err := asFloat(args[0])
		if err != nil {
			return nil, err
		}
		b, err := asFloat(args[1])
		if err != nil {
			return nil, err
		}
		return a + b, nil
	case "echo":
		if len(args) != 1 {
			return nil, fmt.Errorf("echo expects 1 argument, got %d", len(args))
		}
		return args[0], nil
	case "hello":
		if len(args) != 1 {
			return nil, fmt.Errorf("hello expects 1 argument, got %d", len(args))
		}
		name, ok := args[0].(string)
		if !ok {
			return nil, fmt.Errorf("hello expects a string, got %T", args[0])
		}
		return fmt.Sprintf("%s, %s", r.greeting, name), nil
	case "sleep":
		if len(args) != 1 {
			return nil, fmt.Errorf("sleep expects 1 argument, got %d", len(args))
		}
		ms, err := asFloat(args[0])
		if err != nil {
			return nil, err
		}
		time.Sleep(time.Duration(ms) * time.Millisecond)
		return ms, nil
	case "fail":
		return nil, fmt.Errorf("told to fail")
	case "exit":
		// Simulates a worker crash mid-call.
		os.Exit(3)
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown method %q", method)
	}
}

// asFloat widens the numeric types msgpack may deliver.
func asFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int8:
		return float64(n), nil
	case int16:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint8:
		return float64(n), nil
	case uint16:
		return float64(n), nil
	case uint32:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("expected a number, got %T", v)
	}
}
