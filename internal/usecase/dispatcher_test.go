package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"
	"SignalDesk/pkg/cache"
	applogger "SignalDesk/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShouldAlert(t *testing.T) {
	disp := NewDispatcher(nil, newRecMetrics(), applogger.Nop())
	cases := []struct {
		prev, cur models.Direction
		want      bool
	}{
		{models.Neutral, models.Neutral, false},
		{"", models.Neutral, false},
		{"", models.Long, true},
		{models.Neutral, models.Long, true},
		{models.Long, models.Long, false},
		{models.Short, models.Short, false},
		{models.StrongLong, models.StrongLong, true},
		{models.StrongShort, models.StrongShort, true},
		{models.Long, models.Neutral, true},
		{models.Long, models.Short, true},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, disp.ShouldAlert(c.prev, c.cur), "%s -> %s", c.prev, c.cur)
	}
}

func strongEval(prev models.Direction) models.Evaluation {
	return models.Evaluation{
		Instrument:    btc,
		Snapshot:      bullishSnapshot(),
		Result:        models.SignalResult{Direction: models.StrongLong, Strength: 7, Score: 7},
		PrevDirection: prev,
		EvaluatedAt:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestDispatchFansOutAndJoinsErrors(t *testing.T) {
	ok := &recNotifier{name: "console"}
	bad := &recNotifier{name: "email", err: errors.New("smtp 535")}
	m := newRecMetrics()
	disp := NewDispatcher([]domrepo.Notifier{ok, bad}, m, applogger.Nop())
	disp.newID = func() string { return "id-1" }

	alert, err := disp.Dispatch(context.Background(), strongEval(models.Neutral))
	require.NotNil(t, alert)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "email: smtp 535")

	assert.Equal(t, "id-1", alert.ID)
	assert.Equal(t, models.Neutral, alert.Previous)
	assert.True(t, alert.Evaluation.Alerted)
	assert.Equal(t, 1, ok.count())
	assert.Equal(t, 1, bad.count())
	assert.Equal(t, 1, m.notifier["email"])
	assert.Equal(t, 1, m.alerts["STRONG_LONG"])
}

func TestDispatchCooldown(t *testing.T) {
	mem := cache.NewMemoryCache()
	defer mem.Close()

	n := &recNotifier{name: "console"}
	disp := NewDispatcher([]domrepo.Notifier{n}, newRecMetrics(), applogger.Nop(), WithCooldown(mem, time.Hour))
	ctx := context.Background()

	// a direction change always goes out
	a, err := disp.Dispatch(ctx, strongEval(models.Long))
	require.NoError(t, err)
	require.NotNil(t, a)

	a, err = disp.Dispatch(ctx, strongEval(models.StrongLong))
	require.NoError(t, err)
	require.NotNil(t, a, "first repeat takes the cooldown lock")

	a, err = disp.Dispatch(ctx, strongEval(models.StrongLong))
	require.NoError(t, err)
	assert.Nil(t, a, "second repeat inside the window is suppressed")
	assert.Equal(t, 2, n.count())
}

func TestDispatchCooldownReleasedWhenEveryNotifierFails(t *testing.T) {
	mem := cache.NewMemoryCache()
	defer mem.Close()

	n := &recNotifier{name: "email", err: errors.New("down")}
	disp := NewDispatcher([]domrepo.Notifier{n}, newRecMetrics(), applogger.Nop(), WithCooldown(mem, time.Hour))
	ctx := context.Background()

	_, err := disp.Dispatch(ctx, strongEval(models.StrongLong))
	require.Error(t, err)
	a, _ := disp.Dispatch(ctx, strongEval(models.StrongLong))
	assert.NotNil(t, a, "failed delivery must not start a cooldown")
	assert.Equal(t, 2, n.count())
}

type blockingNotifier struct{}

func (blockingNotifier) Name() string { return "slow" }

func (blockingNotifier) Notify(ctx context.Context, _ models.Alert) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestDispatchNotifierTimeout(t *testing.T) {
	disp := NewDispatcher([]domrepo.Notifier{blockingNotifier{}}, newRecMetrics(), applogger.Nop(), WithNotifyTimeout(20*time.Millisecond))
	_, err := disp.Dispatch(context.Background(), strongEval(models.Neutral))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
