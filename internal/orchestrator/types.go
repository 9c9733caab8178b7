// internal/orchestrator/types.go
package orchestrator

import (
	"errors"
	"fmt"
	"time"

	"github.com/xkilldash9x/autosubmit/internal/completion"
)

var (
	// ErrFatal marks a condition that halts the whole run.
	ErrFatal = errors.New("fatal")
	// ErrQuotaExhausted is the fatal condition raised when the quota marker is on the page.
	ErrQuotaExhausted = errors.New("daily quota exhausted")
	// ErrItemSkipped means a required control never appeared within its bound.
	ErrItemSkipped = errors.New("item skipped")
	// ErrItemTimeout means verification exhausted its poll budget.
	ErrItemTimeout = completion.ErrTimeout
	// ErrLostSourceQueue means the run could not return to the source list.
	ErrLostSourceQueue = errors.New("could not return to the source queue")
)

// State is the per-item position in the submission state machine.
type State int

const (
	StateIdle State = iota
	StateOpeningMenu
	StateChoosingClone
	StateSelecting
	StateAwaitingAdvance
	StateAwaitingConfirm
	StateVerifying
	StateDone
	StateFailed
	StateSkipped
)

var stateNames = map[State]string{
	StateIdle:            "idle",
	StateOpeningMenu:     "opening-menu",
	StateChoosingClone:   "choosing-clone",
	StateSelecting:       "selecting",
	StateAwaitingAdvance: "awaiting-advance",
	StateAwaitingConfirm: "awaiting-confirm",
	StateVerifying:       "verifying",
	StateDone:            "done",
	StateFailed:          "failed",
	StateSkipped:         "skipped",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether s ends an item.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed || s == StateSkipped
}

// Step names a pipeline step for progress and error reporting.
type Step string

const (
	StepOpenMenu    Step = "open-menu"
	StepChooseClone Step = "choose-clone"
	StepSelect      Step = "select"
	StepAdvance     Step = "advance"
	StepConfirm     Step = "confirm"
	StepVerify      Step = "verify"
	StepReturn      Step = "return"
)

// Step maps an active state onto the step it performs.
func (s State) Step() Step {
	switch s {
	case StateOpeningMenu:
		return StepOpenMenu
	case StateChoosingClone:
		return StepChooseClone
	case StateSelecting:
		return StepSelect
	case StateAwaitingAdvance:
		return StepAdvance
	case StateAwaitingConfirm:
		return StepConfirm
	case StateVerifying:
		return StepVerify
	default:
		return ""
	}
}

// StepError records which step an item stopped at.
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string { return fmt.Sprintf("%s: %v", e.Step, e.Err) }
func (e *StepError) Unwrap() error { return e.Err }

func skipped(step Step, format string, args ...any) *StepError {
	return &StepError{Step: step, Err: fmt.Errorf("%w: "+format, append([]any{ErrItemSkipped}, args...)...)}
}

// FatalError halts a run. It matches both ErrFatal and its cause under errors.Is.
type FatalError struct {
	Index int
	Step  Step
	Err   error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal at item %d (%s): %v", e.Index, e.Step, e.Err)
}

func (e *FatalError) Unwrap() []error { return []error{ErrFatal, e.Err} }

// Outcome is the terminal result of one item.
type Outcome struct {
	Index     int
	Signature string
	State     State
	Step      Step
	// Presumed is set when verification ran out of polls under the lenient policy.
	Presumed bool
	Nudges   int
	Err      error
	Duration time.Duration
}

// StopReason is the single condition that ended a run.
type StopReason int

const (
	StopCompleted StopReason = iota
	StopQueueEmpty
	StopFatal
	StopCancelled
	StopFailed
)

func (r StopReason) String() string {
	switch r {
	case StopCompleted:
		return "completed"
	case StopQueueEmpty:
		return "queue-empty"
	case StopFatal:
		return "fatal"
	case StopCancelled:
		return "stopped"
	default:
		return "failed"
	}
}

// Summary is what a run reports at its boundary.
type Summary struct {
	Requested int
	Attempted int
	Done      int
	Presumed  int
	Skipped   int
	Failed    int
	Stop      StopReason
	Err       error
	Duration  time.Duration
}

// Observer receives run progress. Calls happen on the orchestrator's goroutine.
type Observer interface {
	ItemStarted(index, total int, signature string)
	Transition(index int, from, to State)
	ItemFinished(out Outcome)
}

// NopObserver ignores everything.
type NopObserver struct{}

func (NopObserver) ItemStarted(int, int, string) {}
func (NopObserver) Transition(int, State, State) {}
func (NopObserver) ItemFinished(Outcome)         {}
