package push

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"kumoctl/internal/logger"
)

// Event names on the realtime channel.
const (
	eventSubscribe      = "subscribe"
	eventAdapterRequest = "force_adapter_request"
	eventDeviceUpdate   = "device_update"
)

// requestTypes are the solicitation signals the mobile app sends to
// make a device report through the push channel.
var requestTypes = []string{"iuStatus", "profile", "adapterStatus", "mhk2"}

// EventHandler receives inbound events. It runs on the transport's
// read loop and must not block.
type EventHandler func(event string, data map[string]any)

// Transport is the realtime channel collaborator. Implementations must
// deliver every inbound event to the handler registered with OnEvent
// before Connect is called.
type Transport interface {
	Connect(ctx context.Context, token string) error
	Subscribe(serial string) error
	Emit(event string, payload any) error
	OnEvent(handler EventHandler)
	Disconnect()
}

// TokenFunc supplies a current access token, authenticating the
// session first if needed.
type TokenFunc func(ctx context.Context) (string, error)

// adapterRequest is the payload of one solicitation signal.
type adapterRequest struct {
	DeviceSerial string `json:"deviceSerial"`
	RequestType  string `json:"requestType"`
	MessageID    string `json:"messageID"`
}

// solicitation is one in-flight wait for a fresh update on a serial.
// done closes at most once, when the first matching event lands.
// Concurrent callers for the same serial coalesce onto one
// solicitation; each keeps its own timeout.
type solicitation struct {
	done    chan struct{}
	payload map[string]any
	waiters int
}

// Resolver manages the lazily-connected push channel and per-serial
// solicitations. Every failure path degrades to "no fresh data"; the
// push channel is an optimization, never a requirement.
type Resolver struct {
	transport Transport
	token     TokenFunc
	log       *logger.Logger

	connMu    sync.Mutex
	connected bool

	mu          sync.Mutex
	pending     map[string]*solicitation
	lastUpdates map[string]map[string]any
}

// NewResolver wires a Resolver to its transport. transport may be nil,
// which marks the push capability absent for the life of the process.
// The single event handler is registered here, once; solicitations
// only populate and clear the dispatch table.
func NewResolver(transport Transport, token TokenFunc, log *logger.Logger) *Resolver {
	r := &Resolver{
		transport:   transport,
		token:       token,
		log:         log,
		pending:     make(map[string]*solicitation),
		lastUpdates: make(map[string]map[string]any),
	}
	if transport != nil {
		transport.OnEvent(r.handleEvent)
	}
	return r
}

// ForceDeviceRefresh solicits a fresh report from one device and waits
// up to timeout for it to arrive. It returns the update payload, or
// nil when the capability is absent, the connection fails, the wait
// times out or the context is canceled. It never returns an error.
func (r *Resolver) ForceDeviceRefresh(ctx context.Context, serial string, timeout time.Duration) map[string]any {
	if r == nil || r.transport == nil {
		return nil
	}
	if !r.ensureConnected(ctx) {
		return nil
	}

	r.mu.Lock()
	delete(r.lastUpdates, serial) // a stale update must not satisfy this call
	sol, joined := r.pending[serial]
	if !joined {
		sol = &solicitation{done: make(chan struct{})}
		r.pending[serial] = sol
	}
	sol.waiters++
	r.mu.Unlock()

	// the creator emits outside the lock so a slow write cannot stall
	// event dispatch or solicitations for other serials
	if !joined {
		if err := r.solicit(serial); err != nil {
			if r.log != nil {
				r.log.Debugw("push solicitation failed", "serial", serial, "err", err)
			}
			// the channel dropped; tear it down so the next call re-dials
			r.markDisconnected()
			r.mu.Lock()
			if r.pending[serial] == sol {
				delete(r.pending, serial)
				close(sol.done) // wake coalesced waiters with no payload
			}
			sol.waiters--
			r.mu.Unlock()
			return nil
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var payload map[string]any
	select {
	case <-sol.done:
		payload = sol.payload
	case <-timer.C:
	case <-ctx.Done():
	}

	r.mu.Lock()
	sol.waiters--
	if sol.waiters == 0 && r.pending[serial] == sol {
		// timed out with no event; drop the waiter entry so a later
		// event cannot fulfill a stale handle
		delete(r.pending, serial)
	}
	r.mu.Unlock()

	return payload
}

// LastKnownUpdate returns the most recent unsolicited update cached
// for a serial, if any.
func (r *Resolver) LastKnownUpdate(serial string) map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastUpdates[serial]
}

// Close tears down the push connection if one was established.
func (r *Resolver) Close() {
	if r == nil || r.transport == nil {
		return
	}
	r.connMu.Lock()
	defer r.connMu.Unlock()
	if r.connected {
		r.transport.Disconnect()
		r.connected = false
	}
}

// ensureConnected lazily establishes the push connection using the
// current access token. Auth or connect failure reports false.
func (r *Resolver) ensureConnected(ctx context.Context) bool {
	r.connMu.Lock()
	defer r.connMu.Unlock()
	if r.connected {
		return true
	}

	token, err := r.token(ctx)
	if err != nil {
		if r.log != nil {
			r.log.Debugw("push auth unavailable", "err", err)
		}
		return false
	}
	if err := r.transport.Connect(ctx, token); err != nil {
		if r.log != nil {
			r.log.Debugw("push connect failed", "err", err)
		}
		return false
	}
	r.connected = true
	return true
}

// markDisconnected tears the channel down so the next solicitation
// re-dials. Dropping only the flag is not enough: the transport's
// Connect no-ops while it still holds a conn, even a dead one.
func (r *Resolver) markDisconnected() {
	r.connMu.Lock()
	defer r.connMu.Unlock()
	r.transport.Disconnect()
	r.connected = false
}

// solicit subscribes to a serial and emits the solicitation signals.
// Runs outside r.mu; writes carry the transport's own deadline.
func (r *Resolver) solicit(serial string) error {
	if err := r.transport.Subscribe(serial); err != nil {
		return err
	}
	for _, rt := range requestTypes {
		req := adapterRequest{
			DeviceSerial: serial,
			RequestType:  rt,
			MessageID:    uuid.NewString(),
		}
		if err := r.transport.Emit(eventAdapterRequest, req); err != nil {
			return err
		}
	}
	return nil
}

// handleEvent dispatches one inbound event. Updates for a pending
// serial fulfill its solicitation exactly once; updates nobody asked
// for are cached as the last known state for that serial.
func (r *Resolver) handleEvent(event string, data map[string]any) {
	if event != eventDeviceUpdate {
		return
	}
	serial, _ := data["deviceSerial"].(string)
	if serial == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastUpdates[serial] = data
	if sol, ok := r.pending[serial]; ok {
		sol.payload = data
		close(sol.done)
		delete(r.pending, serial)
	}
}
