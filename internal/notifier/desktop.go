package notifier

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"SignalDesk/internal/domain/models"
)

var ErrDesktopUnsupported = errors.New("desktop notifications are not supported on this platform")

// Desktop pops a system notification through notify-send or osascript.
type Desktop struct {
	timeout time.Duration
	goos    string
	run     func(ctx context.Context, name string, args ...string) error
}

func NewDesktop(timeout time.Duration) *Desktop {
	return &Desktop{timeout: timeout, goos: runtime.GOOS, run: runCommand}
}

func (d *Desktop) Name() string { return "desktop" }

func (d *Desktop) Notify(ctx context.Context, a models.Alert) error {
	name, args, err := d.command(a)
	if err != nil {
		return err
	}
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	if err := d.run(ctx, name, args...); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

func (d *Desktop) command(a models.Alert) (string, []string, error) {
	title := fmt.Sprintf("%s Trading Alert", a.Symbol())
	res := a.Evaluation.Result
	msg := fmt.Sprintf("%s signal\nPrice: %s\nStrength: %d\nRSI: %s",
		res.Direction.Action(), price(a.Evaluation.Snapshot.Price), res.Strength,
		a.Evaluation.Snapshot.RSI.StringFixed(2))

	switch d.goos {
	case "linux":
		urgency := "normal"
		if res.Direction.IsStrong() {
			urgency = "critical"
		}
		return "notify-send", []string{"--app-name=SignalDesk", "--urgency=" + urgency, title, msg}, nil
	case "darwin":
		script := fmt.Sprintf("display notification %s with title %s", appleQuote(msg), appleQuote(title))
		return "osascript", []string{"-e", script}, nil
	}
	return "", nil, fmt.Errorf("%w: %s", ErrDesktopUnsupported, d.goos)
}

// appleQuote produces an AppleScript string literal.
func appleQuote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

func runCommand(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil && len(out) > 0 {
		return fmt.Errorf("%w: %s", err, strings.TrimSpace(string(out)))
	}
	return err
}
