package debounce

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"campus/api/internal/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type applied struct {
	field  string
	seq    uint64
	result Result
}

func collector() (Option, <-chan applied) {
	ch := make(chan applied, 16)
	return OnResult(func(field string, seq uint64, r Result) {
		ch <- applied{field: field, seq: seq, result: r}
	}), ch
}

func waitApplied(t *testing.T, ch <-chan applied) applied {
	t.Helper()
	select {
	case a := <-ch:
		return a
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a result")
		return applied{}
	}
}

func TestRapidChangesCheckOnlyLastValue(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	check := func(_ context.Context, value string) (Result, error) {
		mu.Lock()
		seen = append(seen, value)
		mu.Unlock()
		return Result{Valid: true, Message: value}, nil
	}
	opt, results := collector()
	v := New(map[string]CheckFunc{"username": check}, WithDelay(50*time.Millisecond), opt)
	defer v.Close()

	for _, value := range []string{"a", "al", "ali", "alic", "alice"} {
		v.Change("username", value)
		time.Sleep(2 * time.Millisecond)
	}
	got := waitApplied(t, results)
	assert.Equal(t, "alice", got.result.Message)
	assert.Equal(t, uint64(5), got.seq)

	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	assert.Equal(t, []string{"alice"}, seen)
	mu.Unlock()

	res, ok := v.Result("username")
	require.True(t, ok)
	assert.True(t, res.Valid)
	assert.False(t, v.Checking("username"))
}

func TestStaleResponseIsDiscarded(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	check := func(ctx context.Context, value string) (Result, error) {
		if calls.Add(1) == 1 {
			// The first check ignores cancellation and answers late.
			<-release
			return Result{Valid: false, Message: "stale " + value}, nil
		}
		return Result{Valid: true, Message: "fresh " + value}, nil
	}
	opt, results := collector()
	v := New(map[string]CheckFunc{"email": check}, WithDelay(5*time.Millisecond), opt)
	defer v.Close()

	v.Change("email", "old@campus.edu")
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)

	v.Change("email", "new@campus.edu")
	got := waitApplied(t, results)
	assert.Equal(t, "fresh new@campus.edu", got.result.Message)

	close(release)
	select {
	case late := <-results:
		t.Fatalf("stale result applied: %+v", late)
	case <-time.After(50 * time.Millisecond):
	}
	res, _ := v.Result("email")
	assert.Equal(t, "fresh new@campus.edu", res.Message)
}

func TestNewerChangeCancelsInFlightCheck(t *testing.T) {
	cancelled := make(chan struct{})
	var calls atomic.Int32
	check := func(ctx context.Context, value string) (Result, error) {
		if calls.Add(1) == 1 {
			<-ctx.Done()
			close(cancelled)
			return Result{}, ctx.Err()
		}
		return Result{Valid: true}, nil
	}
	opt, results := collector()
	v := New(map[string]CheckFunc{"username": check}, WithDelay(5*time.Millisecond), opt)
	defer v.Close()

	v.Change("username", "first")
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	v.Change("username", "second")

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("in-flight check was not cancelled")
	}
	got := waitApplied(t, results)
	assert.Equal(t, uint64(2), got.seq)
}

func TestCloseDropsPendingWork(t *testing.T) {
	var calls atomic.Int32
	check := func(context.Context, string) (Result, error) {
		calls.Add(1)
		return Result{Valid: true}, nil
	}
	v := New(map[string]CheckFunc{"username": check}, WithDelay(20*time.Millisecond))
	v.Change("username", "alice")
	v.Close()
	time.Sleep(40 * time.Millisecond)

	assert.Zero(t, calls.Load())
	_, ok := v.Result("username")
	assert.False(t, ok)
	assert.Zero(t, v.Change("username", "bob"))
}

func TestFieldsAreIndependent(t *testing.T) {
	check := func(_ context.Context, value string) (Result, error) {
		return Result{Valid: true, Message: value}, nil
	}
	opt, results := collector()
	v := New(map[string]CheckFunc{"username": check, "email": check}, WithDelay(5*time.Millisecond), opt)
	defer v.Close()

	v.Change("username", "alice")
	v.Change("email", "alice@campus.edu")
	got := map[string]string{}
	for i := 0; i < 2; i++ {
		a := waitApplied(t, results)
		got[a.field] = a.result.Message
	}
	assert.Equal(t, map[string]string{"username": "alice", "email": "alice@campus.edu"}, got)
}

func TestCheckErrorKeepsPreviousResult(t *testing.T) {
	fail := atomic.Bool{}
	check := func(context.Context, string) (Result, error) {
		if fail.Load() {
			return Result{}, errors.New("network down")
		}
		return Result{Valid: true, Message: "ok"}, nil
	}
	opt, results := collector()
	v := New(map[string]CheckFunc{"username": check}, WithDelay(5*time.Millisecond), opt)
	defer v.Close()

	v.Change("username", "alice")
	waitApplied(t, results)

	fail.Store(true)
	v.Change("username", "alice2")
	require.Eventually(t, func() bool { return !v.Checking("username") }, time.Second, time.Millisecond)
	res, ok := v.Result("username")
	require.True(t, ok)
	assert.Equal(t, "ok", res.Message)
}

type fakeChecker struct {
	calls atomic.Int32
	check client.FieldCheck
}

func (f *fakeChecker) CheckField(_ context.Context, field, value string) (client.FieldCheck, error) {
	f.calls.Add(1)
	return f.check, nil
}

func TestUsernameCheckRejectsFormatLocally(t *testing.T) {
	api := &fakeChecker{check: client.FieldCheck{Valid: true, Message: "Username is available"}}
	check := UsernameCheck(api)

	res, err := check(context.Background(), "no spaces!")
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Zero(t, api.calls.Load())

	res, err = check(context.Background(), "alice_01")
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, int32(1), api.calls.Load())
}

func TestEmailCheckRejectsFormatLocally(t *testing.T) {
	api := &fakeChecker{check: client.FieldCheck{Valid: false, Message: "Email is already registered"}}
	check := EmailCheck(api)

	res, err := check(context.Background(), "not-an-email")
	require.NoError(t, err)
	assert.Equal(t, "Enter a valid email address", res.Message)

	res, err = check(context.Background(), "bob@campus.edu")
	require.NoError(t, err)
	assert.Equal(t, "Email is already registered", res.Message)
}
