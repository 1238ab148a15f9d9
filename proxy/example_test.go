package proxy_test

import (
	"context"
	"fmt"

	"github.com/tetherproc/tether/proxy"
)

// Calculator is a typed caller-side stub over a remote receiver. Each method
// forwards through Handle.Call with an explicit method name, so the full
// remote surface is visible in one place.
type Calculator struct {
	handle *proxy.Handle
}

func (c *Calculator) Add(ctx context.Context, a, b int) (int, error) {
	value, err := c.handle.Call(ctx, "add", a, b)
	if err != nil {
		return 0, err
	}
	n, ok := value.(int64)
	if !ok {
		return 0, fmt.Errorf("add returned %T, want integer", value)
	}
	return int(n), nil
}

func ExampleHandle_Call() {
	ctx := context.Background()

	handle, err := proxy.Spawn(ctx, proxy.Options{
		EntryPoint:  "/opt/workers/calc",
		RequirePath: "calc",
	})
	if err != nil {
		fmt.Println("spawn failed:", err)
		return
	}
	defer handle.Dispose(ctx)

	calc := &Calculator{handle: handle}
	sum, err := calc.Add(ctx, 2, 3)
	if err != nil {
		fmt.Println("call failed:", err)
		return
	}
	fmt.Println("2 + 3 =", sum)
}
