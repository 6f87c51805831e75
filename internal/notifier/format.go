package notifier

import (
	"fmt"
	"strings"
	"time"

	"SignalDesk/internal/domain/models"

	"github.com/shopspring/decimal"
)

// Subject is the one-line headline used for mail subjects and desktop titles.
func Subject(a models.Alert) string {
	return fmt.Sprintf("[SignalDesk] %s %s", a.Symbol(), a.Direction())
}

// Body renders the plain-text alert block shared by the console and email
// notifiers.
func Body(a models.Alert) string {
	ev := a.Evaluation
	res := ev.Result

	var b strings.Builder
	name := ev.Instrument.Symbol
	if ev.Instrument.Name != "" {
		name = fmt.Sprintf("%s (%s)", ev.Instrument.Symbol, ev.Instrument.Name)
	}
	fmt.Fprintf(&b, "%s: %s %s\n", name, res.Direction.Action(), res.Direction)
	fmt.Fprintf(&b, "Previous: %s -> Current: %s\n", a.Previous, res.Direction)
	fmt.Fprintf(&b, "Price: %s | Strength: %d | RSI: %s\n",
		price(ev.Snapshot.Price), res.Strength, ev.Snapshot.RSI.StringFixed(2))

	if res.HasLevels() {
		fmt.Fprintf(&b, "Entry: %s | Stop loss: %s | Take profit: %s\n",
			price(*res.Entry), price(*res.StopLoss), price(*res.TakeProfit))
	}
	if res.FreshCross {
		b.WriteString("EMA cross just happened\n")
	}
	if res.RejectedReason != "" {
		fmt.Fprintf(&b, "Levels rejected: %s\n", res.RejectedReason)
	}
	if len(res.Reasons) > 0 {
		b.WriteString("Reasons:\n")
		for _, r := range res.Reasons {
			fmt.Fprintf(&b, "  - %s\n", r)
		}
	}
	fmt.Fprintf(&b, "Time: %s\n", ev.EvaluatedAt.UTC().Format(time.RFC3339))
	return b.String()
}

func price(d decimal.Decimal) string {
	return d.StringFixed(4)
}
