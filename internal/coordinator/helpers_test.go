package coordinator

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/strata/internal/config"
	"github.com/roach88/strata/internal/ir"
	"github.com/roach88/strata/internal/testutil"
)

// fatalRecorder captures errors delivered to the fatal handler.
type fatalRecorder struct {
	mu   sync.Mutex
	errs []error
}

func (r *fatalRecorder) handle(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *fatalRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errs)
}

func testConfig(t *testing.T, name string) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Name = name
	cfg.Dir = t.TempDir()
	return cfg
}

// openTest opens a coordinator with predictable identities and a fatal
// handler that records instead of exiting.
func openTest(t *testing.T, cfg config.Config) (*Coordinator, *fatalRecorder) {
	t.Helper()
	rec := &fatalRecorder{}
	c, err := Open(context.Background(), cfg,
		WithFatalHandler(rec.handle),
		WithIDGenerator(testutil.NewSequentialIDs()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, rec
}

func order(total int64) ir.Object {
	return ir.NewObject(ir.O("total", ir.Int(total)))
}
