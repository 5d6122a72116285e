package bus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darkden-lab/eventbus/internal/logging"
)

const envelope = `{"code":"UserRegistered","sender":"SignupService","body":{"userId":"42"}}`

func invocation(t *testing.T, s Subscriber) *Invocation {
	t.Helper()
	inv, err := NewInvocation(NewSubscription("UserRegistered", s), envelope, nil)
	require.NoError(t, err)
	return inv
}

func waitTimeout(t *testing.T, wg *sync.WaitGroup) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for invocations")
	}
}

func TestNewInvocation(t *testing.T) {
	inv := invocation(t, Named("email", noop()))
	assert.Equal(t, "UserRegistered", inv.Code)
	assert.Equal(t, "SignupService", inv.Sender)
	assert.Equal(t, envelope, inv.Payload)
	assert.Equal(t, "email", inv.SubscriberName())
}

func TestNewInvocation_SetupErrors(t *testing.T) {
	_, err := NewInvocation(NewSubscription("a", nil), envelope, nil)
	assert.ErrorIs(t, err, ErrHandlerInvocationSetup)

	_, err = NewInvocation(NewSubscription("a", SubscriberFunc(nil)), envelope, nil)
	assert.ErrorIs(t, err, ErrHandlerInvocationSetup)
}

func TestInvocation_RunRecoversPanic(t *testing.T) {
	inv := invocation(t, SubscriberFunc(func(context.Context, string) error { panic("kaboom") }))

	err := inv.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")
}

func TestPool_RunsInvocations(t *testing.T) {
	pool := NewPool(PoolConfig{Workers: 4, QueueSize: 16, Logger: logging.Discard()})
	defer pool.Close(context.Background())

	var wg sync.WaitGroup
	var count atomic.Int32
	wg.Add(10)
	s := SubscriberFunc(func(_ context.Context, ev string) error {
		assert.Equal(t, envelope, ev)
		count.Add(1)
		wg.Done()
		return nil
	})

	for i := 0; i < 10; i++ {
		require.NoError(t, pool.Submit(invocation(t, s)))
	}
	waitTimeout(t, &wg)
	assert.Equal(t, int32(10), count.Load())
}

func TestPool_FailuresAreContained(t *testing.T) {
	var failures []error
	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(3)

	pool := NewPool(PoolConfig{
		Workers:   1,
		QueueSize: 8,
		Logger:    logging.Discard(),
		OnError: func(_ *Invocation, err error) {
			mu.Lock()
			failures = append(failures, err)
			mu.Unlock()
			wg.Done()
		},
	})
	defer pool.Close(context.Background())

	boom := errors.New("boom")
	require.NoError(t, pool.Submit(invocation(t, SubscriberFunc(func(context.Context, string) error { panic("kaboom") }))))
	require.NoError(t, pool.Submit(invocation(t, SubscriberFunc(func(context.Context, string) error { return boom }))))

	ran := make(chan struct{})
	require.NoError(t, pool.Submit(invocation(t, SubscriberFunc(func(context.Context, string) error {
		close(ran)
		return errors.New("third")
	}))))

	// The single worker survives the panic and keeps going.
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not survive a panicking subscriber")
	}
	waitTimeout(t, &wg)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, failures, 3)
	for _, err := range failures {
		assert.ErrorIs(t, err, ErrHandlerRuntime)
	}
	assert.ErrorIs(t, failures[1], boom)
}

func TestPool_SubmitNeverBlocks(t *testing.T) {
	release := make(chan struct{})
	pool := NewPool(PoolConfig{Workers: 1, QueueSize: 1, Logger: logging.Discard()})
	defer func() {
		close(release)
		pool.Close(context.Background())
	}()

	started := make(chan struct{}, 1)
	blocking := SubscriberFunc(func(context.Context, string) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return nil
	})

	require.NoError(t, pool.Submit(invocation(t, blocking)))
	<-started
	require.NoError(t, pool.Submit(invocation(t, blocking)))

	third := invocation(t, blocking)
	done := make(chan error, 1)
	go func() { done <- pool.Submit(third) }()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrPoolSaturated)
	case <-time.After(time.Second):
		t.Fatal("Submit blocked on a full queue")
	}
}

func TestPool_HandlerTimeout(t *testing.T) {
	pool := NewPool(PoolConfig{Workers: 1, HandlerTimeout: 20 * time.Millisecond, Logger: logging.Discard()})
	defer pool.Close(context.Background())

	got := make(chan error, 1)
	require.NoError(t, pool.Submit(invocation(t, SubscriberFunc(func(ctx context.Context, _ string) error {
		<-ctx.Done()
		got <- ctx.Err()
		return ctx.Err()
	}))))

	select {
	case err := <-got:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(2 * time.Second):
		t.Fatal("handler context never expired")
	}
}

func TestPool_CloseDrainsQueue(t *testing.T) {
	pool := NewPool(PoolConfig{Workers: 1, QueueSize: 8, Logger: logging.Discard()})

	var count atomic.Int32
	for i := 0; i < 5; i++ {
		require.NoError(t, pool.Submit(invocation(t, SubscriberFunc(func(context.Context, string) error {
			count.Add(1)
			return nil
		}))))
	}

	require.NoError(t, pool.Close(context.Background()))
	assert.Equal(t, int32(5), count.Load())

	assert.ErrorIs(t, pool.Submit(invocation(t, noop())), ErrPoolClosed)
	assert.NoError(t, pool.Close(context.Background()), "double close is a no-op")
}

func TestPool_CloseDeadlineCancelsHandlers(t *testing.T) {
	pool := NewPool(PoolConfig{Workers: 1, Logger: logging.Discard()})

	started := make(chan struct{})
	cancelled := make(chan struct{})
	require.NoError(t, pool.Submit(invocation(t, SubscriberFunc(func(ctx context.Context, _ string) error {
		close(started)
		<-ctx.Done()
		close(cancelled)
		return nil
	}))))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, pool.Close(ctx), context.DeadlineExceeded)

	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("handler context was not cancelled on close")
	}
}

func TestPool_PanickingErrorHookKeepsWorker(t *testing.T) {
	var hookCalls atomic.Int32
	pool := NewPool(PoolConfig{
		Workers: 1,
		Logger:  logging.Discard(),
		OnError: func(*Invocation, error) {
			hookCalls.Add(1)
			panic("hook exploded")
		},
	})
	defer pool.Close(context.Background())

	failing := SubscriberFunc(func(context.Context, string) error { return errors.New("smtp down") })
	require.NoError(t, pool.Submit(invocation(t, failing)))

	var wg sync.WaitGroup
	wg.Add(1)
	require.NoError(t, pool.Submit(invocation(t, SubscriberFunc(func(context.Context, string) error {
		wg.Done()
		return nil
	}))))

	waitTimeout(t, &wg)
	assert.Equal(t, int32(1), hookCalls.Load())
}
