// File: cmd/watch_test.go
package cmd

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/autosubmit/internal/controller"
	"github.com/xkilldash9x/autosubmit/internal/mode"
	"github.com/xkilldash9x/autosubmit/internal/orchestrator"
	"github.com/xkilldash9x/autosubmit/internal/ui/uitest"
)

// lockedBuffer collects output written from several goroutines.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// blockingRunner holds the session open until it is stopped.
type blockingRunner struct{ entered chan struct{} }

func (r *blockingRunner) Run(ctx context.Context, _ mode.Mode, _ int, _ orchestrator.Observer) orchestrator.Summary {
	close(r.entered)
	<-ctx.Done()
	return orchestrator.Summary{Stop: orchestrator.StopCancelled, Err: ctx.Err()}
}

func TestReadCommands_DescribesActiveRun(t *testing.T) {
	defer goleak.VerifyNone(t)

	logger := zaptest.NewLogger(t)
	page := uitest.NewPage("a", "b")
	runner := &blockingRunner{entered: make(chan struct{})}
	ctrl := controller.New(page, mode.NewDetector(page, mode.DefaultKeywords, logger), runner, nil, nil, logger)

	in, input := io.Pipe()
	out := &lockedBuffer{}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return readCommands(gctx, in, out, ctrl, g, logger) })

	send := func(line string) {
		_, err := io.WriteString(input, line+"\n")
		require.NoError(t, err)
	}
	send("status")
	send("1")
	select {
	case <-runner.entered:
	case <-ctx.Done():
		t.Fatal("run never started")
	}
	send("status")
	send("2")
	send("quit")

	require.NoError(t, g.Wait())
	assert.False(t, ctrl.Active(), "quit stops the active run")

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "No run is active.", lines[0])
	assert.Regexp(t, `^Run [0-9a-f]{8} is active: draft-submit, 0 of 1 finished, started \d+s ago\.$`, lines[1])
	assert.Contains(t, lines[2], controller.ErrAlreadyRunning.Error())
	assert.Contains(t, lines[2], "0 of 1 finished")

	// The reader goroutine is released by closing the input on return.
	_, err := io.WriteString(input, "1\n")
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}

func TestDescribeSession(t *testing.T) {
	s := controller.Session{
		ID:             "0123456789abcdef",
		Mode:           mode.FailedReprocess,
		RequestedCount: 4,
		CompletedIndex: 2,
		Running:        true,
		StartedAt:      time.Now(),
	}
	assert.Equal(t, "Run 01234567 is active: failed-reprocess, 2 of 4 finished, started 0s ago.", describeSession(s))

	s.Running = false
	assert.Equal(t, "Run 01234567 is starting (4 requested).", describeSession(s))
}
