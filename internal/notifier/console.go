package notifier

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"SignalDesk/internal/domain/models"
	applogger "SignalDesk/pkg/logger"
)

// Console prints a framed alert block and logs a structured line.
type Console struct {
	mu  sync.Mutex
	out io.Writer
	log *applogger.Logger
}

func NewConsole(out io.Writer, log *applogger.Logger) *Console {
	return &Console{out: out, log: log}
}

func (c *Console) Name() string { return "console" }

func (c *Console) Notify(_ context.Context, a models.Alert) error {
	rule := strings.Repeat("=", 50)

	c.mu.Lock()
	_, err := fmt.Fprintf(c.out, "%s\nALERT %s\n%s%s\n", rule, Subject(a), Body(a), rule)
	c.mu.Unlock()

	c.log.Info("alert",
		applogger.String("alert_id", a.ID),
		applogger.String("symbol", a.Symbol()),
		applogger.String("direction", string(a.Direction())),
		applogger.String("previous", string(a.Previous)),
		applogger.Int("strength", a.Evaluation.Result.Strength),
		applogger.Decimal("price", a.Evaluation.Snapshot.Price),
	)
	if err != nil {
		return fmt.Errorf("console write: %w", err)
	}
	return nil
}
