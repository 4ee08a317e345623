package tasks_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/lexpraxis/backend-lexis/internal/lock"
	"github.com/lexpraxis/backend-lexis/internal/notify"
	"github.com/lexpraxis/backend-lexis/internal/tasks"
)

func TestDefaultSchedule(t *testing.T) {
	entries := tasks.DefaultSchedule()
	require.Len(t, entries, 3)

	byType := map[string]string{}
	for _, e := range entries {
		byType[e.Type] = e.Cronspec
	}
	require.Equal(t, "* * * * *", byType[tasks.TypeWebhookDispatch])
	require.Equal(t, "0 * * * *", byType[tasks.TypeDueSoonScan])
	require.Equal(t, "10 3 * * *", byType[tasks.TypeOverdueSweep])
}

func TestWebhookDispatchSkipsWhenLockHeld(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	// Simulate another worker holding the dispatch lock.
	require.NoError(t, rdb.Set(context.Background(), "lock:webhook-dispatch", "other-worker", time.Minute).Err())

	h := &tasks.Handlers{
		Dispatcher: &notify.Dispatcher{Enabled: true},
		Locker:     lock.Locker{R: rdb},
		LockTTL:    time.Minute,
	}
	err := h.HandleWebhookDispatch(context.Background(), asynq.NewTask(tasks.TypeWebhookDispatch, nil))
	require.NoError(t, err, "held lock means skip this cycle, not fail")

	// The other worker's lock is left alone.
	val, err := rdb.Get(context.Background(), "lock:webhook-dispatch").Result()
	require.NoError(t, err)
	require.Equal(t, "other-worker", val)
}

func TestWebhookDispatchRunsWhenLockFree(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	h := &tasks.Handlers{
		// Disabled dispatcher makes WorkOnce a no-op.
		Dispatcher: &notify.Dispatcher{Enabled: false},
		Locker:     lock.Locker{R: rdb},
		LockTTL:    time.Minute,
	}
	err := h.HandleWebhookDispatch(context.Background(), asynq.NewTask(tasks.TypeWebhookDispatch, nil))
	require.NoError(t, err)

	// The lock is released once the cycle completes.
	require.False(t, mr.Exists("lock:webhook-dispatch"))
}
