package scheduler

import (
	"context"
	"testing"
)

// testContext returns a context cancelled when the test finishes
// (equivalent of testing.T.Context, which needs Go 1.24).
func testContext(t testing.TB) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
