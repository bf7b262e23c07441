package detect

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/yumetose/wardrobe/config"
	"github.com/yumetose/wardrobe/outfit"
	"github.com/yumetose/wardrobe/wardrobe"
	"go.uber.org/zap"
)

// Generator produces free text from recent chat lines and a prompt. The text
// is scanned for outfit commands afterwards.
type Generator interface {
	Generate(ctx context.Context, prompt string, lines []string) (string, error)
}

// ErrBusy is returned when a detection run is already in flight. A second
// trigger is rejected, not queued.
var ErrBusy = errors.New("detect: a detection run is already in progress")

// ErrDisabled is returned after repeated consecutive generator failures have
// switched the detector off. Enable clears it.
var ErrDisabled = errors.New("detect: automatic detection is disabled")

// BatchResult summarizes one detection run.
type BatchResult struct {
	Applied  []Command        `json:"applied"`
	Failures []CommandFailure `json:"failures"`
}

// Detector drives the automatic outfit-change flow: ask the generator about
// the recent chat lines, parse the returned commands, and apply them to the
// owner's live outfit. Only one run may be in flight at a time.
type Detector struct {
	gen    Generator
	mgr    *wardrobe.Manager
	cfg    config.DetectConfig
	logger *zap.Logger

	mu       sync.Mutex
	busy     bool
	failures int
	disabled bool
}

// NewDetector creates a Detector.
func NewDetector(gen Generator, mgr *wardrobe.Manager, cfg config.DetectConfig, logger *zap.Logger) *Detector {
	if cfg.Retries <= 0 {
		cfg.Retries = 3
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	return &Detector{gen: gen, mgr: mgr, cfg: cfg, logger: logger}
}

// Disabled reports whether the detector has switched itself off.
func (d *Detector) Disabled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.disabled
}

// Enable re-arms a self-disabled detector and resets the failure counter.
func (d *Detector) Enable() {
	d.mu.Lock()
	d.disabled = false
	d.failures = 0
	d.mu.Unlock()
}

func (d *Detector) acquire() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.disabled {
		return ErrDisabled
	}
	if d.busy {
		return ErrBusy
	}
	d.busy = true
	return nil
}

func (d *Detector) release() {
	d.mu.Lock()
	d.busy = false
	d.mu.Unlock()
}

// Run performs one detection round for owner over the given chat lines.
func (d *Detector) Run(ctx context.Context, owner wardrobe.Owner, lines []string) (*BatchResult, error) {
	if err := d.acquire(); err != nil {
		return nil, err
	}
	defer d.release()

	text, err := d.generateWithRetry(ctx, lines)
	if err != nil {
		d.recordFailure(err)
		return nil, err
	}
	d.recordSuccess()

	cmds, failures := ParseCommands(text)
	result := &BatchResult{Failures: failures}

	d.mgr.Mutate(owner, func(auto *outfit.MutableView) {
		for _, cmd := range cmds {
			if err := applyCommand(auto, cmd); err != nil {
				result.Failures = append(result.Failures, CommandFailure{
					Raw:    fmt.Sprintf(`outfit-system_%s_%s("%s")`, cmd.Action, cmd.SlotID, cmd.Value),
					Reason: err.Error(),
				})
				continue
			}
			result.Applied = append(result.Applied, cmd)
		}
	})

	if len(result.Applied) > 0 {
		d.mgr.NotifyMutation(ctx, owner, "detect", "")
	}
	return result, nil
}

// applyCommand mutates one slot. An unknown slot is a per-command failure.
func applyCommand(auto *outfit.MutableView, cmd Command) error {
	var value outfit.Value
	switch cmd.Action {
	case ActionWear, ActionChange:
		value = outfit.NewValue(cmd.Value)
	case ActionRemove:
		value = outfit.Value{}
	default:
		return fmt.Errorf("unknown action %q", cmd.Action)
	}
	if !auto.SetValue(cmd.SlotID, value) {
		return fmt.Errorf("unknown slot %q", cmd.SlotID)
	}
	return nil
}

// generateWithRetry calls the generator up to cfg.Retries times with a fixed
// delay between attempts.
func (d *Detector) generateWithRetry(ctx context.Context, lines []string) (string, error) {
	if d.cfg.HistoryLines > 0 && len(lines) > d.cfg.HistoryLines {
		lines = lines[len(lines)-d.cfg.HistoryLines:]
	}

	var lastErr error
	for attempt := 1; attempt <= d.cfg.Retries; attempt++ {
		text, err := d.gen.Generate(ctx, d.cfg.Prompt, lines)
		if err == nil {
			if strings.TrimSpace(text) == "" {
				return "", nil
			}
			return text, nil
		}
		lastErr = err
		d.logger.Warn("generation attempt failed",
			zap.Int("attempt", attempt), zap.Error(err))
		if attempt == d.cfg.Retries {
			break
		}
		select {
		case <-time.After(d.cfg.RetryDelay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "", lastErr
}

func (d *Detector) recordFailure(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures++
	if d.failures >= d.cfg.MaxFailures && !d.disabled {
		d.disabled = true
		d.logger.Error("automatic detection disabled after repeated failures",
			zap.Int("consecutive_failures", d.failures), zap.Error(err))
	}
}

func (d *Detector) recordSuccess() {
	d.mu.Lock()
	d.failures = 0
	d.mu.Unlock()
}
