// internal/mode/mode.go
package mode

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Mode classifies what the control surface currently offers.
type Mode int

const (
	// Idle means neither queue is on screen; no run may start.
	Idle Mode = iota
	// DraftSubmit means the draft queue is active: each row is selected and submitted.
	DraftSubmit
	// FailedReprocess means the failed-jobs list is active: each row is cloned and resubmitted.
	FailedReprocess
)

func (m Mode) String() string {
	switch m {
	case DraftSubmit:
		return "draft-submit"
	case FailedReprocess:
		return "failed-reprocess"
	default:
		return "idle"
	}
}

// Parse converts a user supplied mode name. "auto" and "" map to Idle,
// which callers treat as a request for detection.
func Parse(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto", "idle":
		return Idle, nil
	case "draft", "drafts", "draft-submit", "submit":
		return DraftSubmit, nil
	case "failed", "reprocess", "failed-reprocess", "clone":
		return FailedReprocess, nil
	default:
		return Idle, fmt.Errorf("unknown mode %q (want auto, draft or reprocess)", s)
	}
}

// TabReader is the slice of the UI adapter the detector needs.
type TabReader interface {
	ActiveTabLabel(ctx context.Context) (string, error)
}

// Keywords are the case-insensitive fragments that identify each queue tab.
type Keywords struct {
	Draft  string
	Failed string
}

// DefaultKeywords match the tab labels of the reference target.
var DefaultKeywords = Keywords{Draft: "draft", Failed: "failed"}

// Classify maps a selected tab label onto a Mode.
func Classify(label string, kw Keywords) Mode {
	l := strings.ToLower(label)
	switch {
	case kw.Draft != "" && strings.Contains(l, strings.ToLower(kw.Draft)):
		return DraftSubmit
	case kw.Failed != "" && strings.Contains(l, strings.ToLower(kw.Failed)):
		return FailedReprocess
	default:
		return Idle
	}
}

// Detector reads the selected tab on every call. The page can switch context
// without notice, so results are never cached.
type Detector struct {
	tabs     TabReader
	keywords Keywords
	logger   *zap.Logger
}

// NewDetector creates a Detector. Zero keywords fall back to DefaultKeywords.
func NewDetector(tabs TabReader, kw Keywords, logger *zap.Logger) *Detector {
	if kw.Draft == "" && kw.Failed == "" {
		kw = DefaultKeywords
	}
	return &Detector{tabs: tabs, keywords: kw, logger: logger.Named("mode")}
}

// Detect returns the current mode. Adapter errors read as Idle.
func (d *Detector) Detect(ctx context.Context) Mode {
	label, err := d.tabs.ActiveTabLabel(ctx)
	if err != nil {
		d.logger.Debug("Could not read active tab.", zap.Error(err))
		return Idle
	}
	return Classify(label, d.keywords)
}
