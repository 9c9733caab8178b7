package display

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/autosubmit/internal/controller"
	"github.com/xkilldash9x/autosubmit/internal/mode"
	"github.com/xkilldash9x/autosubmit/internal/monitor"
	"github.com/xkilldash9x/autosubmit/internal/orchestrator"
)

func TestConsole_PlainOutputForNonTerminal(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf)
	assert.False(t, c.colorize)
	assert.False(t, ShouldColorize(&buf))

	c.Status(monitor.Status{Mode: mode.DraftSubmit})
	c.Status(monitor.Status{Mode: mode.Idle})

	assert.Equal(t,
		"● Ready: draft queue (submit)\n● Not ready: open the Draft or Failed tab\n",
		buf.String())
}

func TestConsole_ProgressLine(t *testing.T) {
	c := NewConsole(&bytes.Buffer{})
	line := c.ProgressLine(controller.Progress{
		Index:     2,
		Total:     5,
		Signature: "  job_42   protein\nmonomer  ",
		State:     orchestrator.StateVerifying,
		Done:      1,
	})
	assert.Equal(t, "● [2/5] verifying job_42 protein monomer  done=1 skipped=0 failed=0", line)
}

func TestConsole_SummaryLine(t *testing.T) {
	c := NewConsole(&bytes.Buffer{})

	t.Run("Completed", func(t *testing.T) {
		line := c.SummaryLine(controller.Report{Summary: orchestrator.Summary{
			Requested: 3, Done: 3, Presumed: 1, Stop: orchestrator.StopCompleted, Duration: 1500 * time.Millisecond,
		}})
		assert.Equal(t, "● completed: 3/3 done (1 presumed), 0 skipped, 0 failed in 1.5s", line)
	})

	t.Run("FatalIncludesReason", func(t *testing.T) {
		line := c.SummaryLine(controller.Report{Summary: orchestrator.Summary{
			Requested: 5, Done: 2, Stop: orchestrator.StopFatal, Err: orchestrator.ErrQuotaExhausted,
		}})
		assert.True(t, strings.HasPrefix(line, "● fatal: 2/5 done"))
		assert.Contains(t, line, "daily quota exhausted")
	})
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}

func TestPrompt_Confirm(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  bool
	}{
		{"Yes", "y\n", true},
		{"YesWord", " YES \n", true},
		{"No", "n\n", false},
		{"Empty", "\n", false},
		{"EOF", "", false},
		{"NoNewline", "yes", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var out bytes.Buffer
			p := NewPrompt(strings.NewReader(tc.input), &out)
			ok, err := p.Confirm(context.Background(), 10, 4)
			require.NoError(t, err)
			assert.Equal(t, tc.want, ok)
			assert.Contains(t, out.String(), "Requested 10 items but only 4 are visible")
		})
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("tty detached") }

func TestPrompt_ReadError(t *testing.T) {
	p := NewPrompt(failingReader{}, &bytes.Buffer{})
	_, err := p.Confirm(context.Background(), 2, 1)
	assert.EqualError(t, err, "tty detached")
}
