package push

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"kumoctl/internal/logger"
)

// fakeTransport records transport calls and lets tests deliver inbound
// events through the registered handler.
type fakeTransport struct {
	mu          sync.Mutex
	handler     EventHandler
	connectErr  error
	emitErr     error
	emitGate    chan struct{} // when set, Emit blocks until it closes
	connects    int
	disconnects int
	subscribes  []string
	emits       []string
}

func (f *fakeTransport) Connect(ctx context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	return f.connectErr
}

func (f *fakeTransport) Subscribe(serial string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribes = append(f.subscribes, serial)
	return nil
}

func (f *fakeTransport) Emit(event string, payload any) error {
	f.mu.Lock()
	f.emits = append(f.emits, event)
	gate := f.emitGate
	err := f.emitErr
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return err
}

func (f *fakeTransport) OnEvent(handler EventHandler) {
	f.handler = handler
}

func (f *fakeTransport) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
}

func (f *fakeTransport) deliver(serial string) {
	f.handler(eventDeviceUpdate, map[string]any{
		"deviceSerial": serial,
		"roomTemp":     21.5,
	})
}

func staticToken(string) TokenFunc {
	return func(context.Context) (string, error) { return "tok", nil }
}

func newTestResolver(t *testing.T, transport Transport) *Resolver {
	t.Helper()
	return NewResolver(transport, staticToken("tok"), logger.Get("error"))
}

func TestForceDeviceRefresh_NilTransportReturnsNil(t *testing.T) {
	r := newTestResolver(t, nil)
	if got := r.ForceDeviceRefresh(context.Background(), "SER1", time.Second); got != nil {
		t.Fatalf("ForceDeviceRefresh = %v, want nil when capability absent", got)
	}
}

func TestForceDeviceRefresh_NilReceiverReturnsNil(t *testing.T) {
	var r *Resolver
	if got := r.ForceDeviceRefresh(context.Background(), "SER1", time.Second); got != nil {
		t.Fatalf("ForceDeviceRefresh = %v, want nil on nil receiver", got)
	}
}

func TestForceDeviceRefresh_ConnectFailureDegrades(t *testing.T) {
	ft := &fakeTransport{connectErr: errors.New("dial refused")}
	r := newTestResolver(t, ft)

	if got := r.ForceDeviceRefresh(context.Background(), "SER1", time.Second); got != nil {
		t.Fatalf("ForceDeviceRefresh = %v, want nil on connect failure", got)
	}
	if len(ft.subscribes) != 0 {
		t.Fatalf("subscribed despite failed connection: %v", ft.subscribes)
	}
}

func TestForceDeviceRefresh_AuthFailureDegrades(t *testing.T) {
	ft := &fakeTransport{}
	r := NewResolver(ft, func(context.Context) (string, error) {
		return "", errors.New("not logged in")
	}, logger.Get("error"))

	if got := r.ForceDeviceRefresh(context.Background(), "SER1", time.Second); got != nil {
		t.Fatalf("ForceDeviceRefresh = %v, want nil when token unavailable", got)
	}
	if ft.connects != 0 {
		t.Fatalf("connected despite missing token")
	}
}

func TestForceDeviceRefresh_TimesOutQuickly(t *testing.T) {
	ft := &fakeTransport{}
	r := newTestResolver(t, ft)

	start := time.Now()
	got := r.ForceDeviceRefresh(context.Background(), "SER1", 10*time.Millisecond)
	elapsed := time.Since(start)

	if got != nil {
		t.Fatalf("ForceDeviceRefresh = %v, want nil on timeout", got)
	}
	if elapsed > 500*time.Millisecond {
		t.Fatalf("timed-out call took %v, should return promptly", elapsed)
	}
	r.mu.Lock()
	pending := len(r.pending)
	r.mu.Unlock()
	if pending != 0 {
		t.Fatalf("pending table still holds %d entries after timeout", pending)
	}
}

func TestForceDeviceRefresh_FulfilledByMatchingUpdate(t *testing.T) {
	ft := &fakeTransport{}
	r := newTestResolver(t, ft)

	result := make(chan map[string]any, 1)
	go func() {
		result <- r.ForceDeviceRefresh(context.Background(), "SER1", 2*time.Second)
	}()

	waitForPending(t, r, "SER1")
	ft.deliver("SER1")

	got := <-result
	if got == nil {
		t.Fatal("ForceDeviceRefresh = nil, want the delivered payload")
	}
	if got["deviceSerial"] != "SER1" || got["roomTemp"] != 21.5 {
		t.Fatalf("payload = %v", got)
	}
	if len(ft.subscribes) != 1 || ft.subscribes[0] != "SER1" {
		t.Fatalf("subscribes = %v, want [SER1]", ft.subscribes)
	}
	if len(ft.emits) != len(requestTypes) {
		t.Fatalf("emitted %d solicitation signals, want %d", len(ft.emits), len(requestTypes))
	}
}

func TestForceDeviceRefresh_OtherSerialDoesNotFulfill(t *testing.T) {
	ft := &fakeTransport{}
	r := newTestResolver(t, ft)

	result := make(chan map[string]any, 1)
	go func() {
		result <- r.ForceDeviceRefresh(context.Background(), "SER1", 50*time.Millisecond)
	}()

	waitForPending(t, r, "SER1")
	ft.deliver("OTHER")

	if got := <-result; got != nil {
		t.Fatalf("ForceDeviceRefresh = %v, want nil; update was for another serial", got)
	}
	if r.LastKnownUpdate("OTHER") == nil {
		t.Fatal("unsolicited update for OTHER was not cached")
	}
}

func TestForceDeviceRefresh_ConcurrentCallersCoalesce(t *testing.T) {
	ft := &fakeTransport{}
	r := newTestResolver(t, ft)

	results := make(chan map[string]any, 2)
	for i := 0; i < 2; i++ {
		go func() {
			results <- r.ForceDeviceRefresh(context.Background(), "SER1", 2*time.Second)
		}()
	}

	waitForWaiters(t, r, "SER1", 2)
	ft.deliver("SER1")

	for i := 0; i < 2; i++ {
		if got := <-results; got == nil {
			t.Fatalf("caller %d got nil, want shared payload", i)
		}
	}
	// one solicitation served both callers
	if len(ft.subscribes) != 1 {
		t.Fatalf("subscribes = %v, want a single coalesced solicitation", ft.subscribes)
	}
}

func TestForceDeviceRefresh_EmitFailureMarksDisconnected(t *testing.T) {
	ft := &fakeTransport{emitErr: errors.New("broken pipe")}
	r := newTestResolver(t, ft)

	if got := r.ForceDeviceRefresh(context.Background(), "SER1", time.Second); got != nil {
		t.Fatalf("ForceDeviceRefresh = %v, want nil on emit failure", got)
	}
	ft.mu.Lock()
	disconnects := ft.disconnects
	ft.mu.Unlock()
	if disconnects == 0 {
		t.Fatal("transport was not torn down after the failed emit")
	}

	// next call reconnects from scratch
	ft.mu.Lock()
	ft.emitErr = nil
	ft.mu.Unlock()
	go func() {
		waitForPending(t, r, "SER1")
		ft.deliver("SER1")
	}()
	if got := r.ForceDeviceRefresh(context.Background(), "SER1", 2*time.Second); got == nil {
		t.Fatal("ForceDeviceRefresh = nil after recovery, want payload")
	}
	if ft.connects != 2 {
		t.Fatalf("connects = %d, want a reconnect after the failed emit", ft.connects)
	}
}

func TestForceDeviceRefresh_SlowEmitDoesNotBlockDispatch(t *testing.T) {
	gate := make(chan struct{})
	ft := &fakeTransport{emitGate: gate}
	r := newTestResolver(t, ft)

	result := make(chan map[string]any, 1)
	go func() {
		result <- r.ForceDeviceRefresh(context.Background(), "SER1", 2*time.Second)
	}()

	// wait until the solicitation is stuck in its first emit
	deadline := time.Now().Add(time.Second)
	for {
		ft.mu.Lock()
		n := len(ft.emits)
		ft.mu.Unlock()
		if n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("solicitation never reached the transport")
		}
		time.Sleep(time.Millisecond)
	}

	// an inbound event for another serial must still get through
	dispatched := make(chan struct{})
	go func() {
		ft.handler(eventDeviceUpdate, map[string]any{"deviceSerial": "OTHER", "roomTemp": 20.0})
		close(dispatched)
	}()
	select {
	case <-dispatched:
	case <-time.After(time.Second):
		t.Fatal("event dispatch stalled behind an in-flight solicitation")
	}
	if r.LastKnownUpdate("OTHER") == nil {
		t.Fatal("dispatched update was not cached")
	}

	close(gate)
	ft.deliver("SER1")
	if got := <-result; got == nil {
		t.Fatal("refresh = nil, want payload once the emit completed")
	}
}

func TestForceDeviceRefresh_StaleCachedUpdateDoesNotSatisfy(t *testing.T) {
	ft := &fakeTransport{}
	r := newTestResolver(t, ft)

	// seed a stale update, then ask for fresh data
	ft.handler(eventDeviceUpdate, map[string]any{"deviceSerial": "SER1", "roomTemp": 19.0})
	if r.LastKnownUpdate("SER1") == nil {
		t.Fatal("seed update was not cached")
	}

	if got := r.ForceDeviceRefresh(context.Background(), "SER1", 20*time.Millisecond); got != nil {
		t.Fatalf("ForceDeviceRefresh = %v, want nil; cached update must not count as fresh", got)
	}
	if r.LastKnownUpdate("SER1") != nil {
		t.Fatal("stale cache entry should have been cleared by the refresh attempt")
	}
}

func TestForceDeviceRefresh_ContextCancel(t *testing.T) {
	ft := &fakeTransport{}
	r := newTestResolver(t, ft)

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan map[string]any, 1)
	go func() {
		result <- r.ForceDeviceRefresh(ctx, "SER1", time.Minute)
	}()

	waitForPending(t, r, "SER1")
	cancel()

	select {
	case got := <-result:
		if got != nil {
			t.Fatalf("ForceDeviceRefresh = %v, want nil on canceled context", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ForceDeviceRefresh did not return after context cancel")
	}
}

func waitForPending(t *testing.T, r *Resolver, serial string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		r.mu.Lock()
		_, ok := r.pending[serial]
		r.mu.Unlock()
		if ok {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("no solicitation registered in time")
}

func waitForWaiters(t *testing.T, r *Resolver, serial string, n int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		r.mu.Lock()
		sol, ok := r.pending[serial]
		waiters := 0
		if ok {
			waiters = sol.waiters
		}
		r.mu.Unlock()
		if waiters >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("never saw %d coalesced waiters", n)
}
