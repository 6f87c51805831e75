package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"SignalDesk/internal/domain/models"
	"SignalDesk/internal/usecase"

	"github.com/shopspring/decimal"
)

func TestPrintResults(t *testing.T) {
	sl, tp := decimal.NewFromInt(96), decimal.NewFromInt(106)
	entry := decimal.NewFromInt(100)
	results := []usecase.InstrumentResult{
		{
			Instrument: models.Instrument{Symbol: "BTCUSDT"},
			Evaluation: models.Evaluation{
				Snapshot: models.IndicatorSnapshot{Price: entry},
				Result:   models.SignalResult{Direction: models.StrongLong, Strength: 7, Score: 7, Entry: &entry, StopLoss: &sl, TakeProfit: &tp},
				Alerted:  true,
			},
		},
		{Instrument: models.Instrument{Symbol: "GC=F"}, Err: errors.New("upstream down")},
	}

	var buf bytes.Buffer
	if printResults(&buf, results) {
		t.Fatalf("one success must not count as total failure")
	}
	out := buf.String()
	for _, want := range []string{"STRONG_LONG", "score=+7", "sl=96.0000", "[alert]", "GC=F", "ERROR upstream down"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}

	if !printResults(&buf, results[1:]) {
		t.Fatalf("expected total failure")
	}
}
