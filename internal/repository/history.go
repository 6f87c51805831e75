package repository

import (
	"context"
	"sort"

	"SignalDesk/internal/domain/models"
)

// filterRecent returns the records matching f, newest first.
func filterRecent(all []models.Evaluation, f models.HistoryFilter) []models.Evaluation {
	out := make([]models.Evaluation, 0, len(all))
	for _, ev := range all {
		if f.Symbol != "" && ev.Instrument.Symbol != f.Symbol {
			continue
		}
		if !f.Since.IsZero() && ev.EvaluatedAt.Before(f.Since) {
			continue
		}
		out = append(out, ev)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].EvaluatedAt.After(out[j].EvaluatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

// NopHistory drops everything; used when history.backend is none.
type NopHistory struct{}

func (NopHistory) Append(_ context.Context, _ models.Evaluation) error { return nil }

func (NopHistory) Recent(_ context.Context, _ models.HistoryFilter) ([]models.Evaluation, error) {
	return nil, nil
}

func (NopHistory) Close() error { return nil }
