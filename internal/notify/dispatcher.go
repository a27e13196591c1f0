package notify

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nicholas-fedor/shoutrrr"

	"warden/internal/events"
)

// Sender abstracts message dispatch so the dispatcher can be tested
// without hitting real services.
type Sender interface {
	Send(shoutrrrURL, message string) error
}

// ShoutrrrSender dispatches via the Shoutrrr library.
type ShoutrrrSender struct{}

func (ShoutrrrSender) Send(url, message string) error {
	return shoutrrr.Send(url, message)
}

// defaultCooldown suppresses repeat alerts of the same event type.
const defaultCooldown = 5 * time.Minute

// Dispatcher subscribes to the event bus, filters by severity,
// enforces per-event-type cooldowns, and dispatches via Shoutrrr.
type Dispatcher struct {
	url         string
	bus         *events.Bus
	sender      Sender
	minSeverity events.Severity
	cooldown    time.Duration

	// cooldowns tracks the last dispatch time per event type.
	mu        sync.Mutex
	cooldowns map[events.EventType]time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewDispatcher creates a dispatcher wired to the given bus. Events
// below minSeverity are ignored.
func NewDispatcher(url string, bus *events.Bus, sender Sender, minSeverity events.Severity) *Dispatcher {
	if sender == nil {
		sender = ShoutrrrSender{}
	}
	return &Dispatcher{
		url:         url,
		bus:         bus,
		sender:      sender,
		minSeverity: minSeverity,
		cooldown:    defaultCooldown,
		cooldowns:   make(map[events.EventType]time.Time),
		stopCh:      make(chan struct{}),
	}
}

// Start subscribes to all events and begins dispatching.
func (d *Dispatcher) Start() {
	ch := make(chan events.Event, 256)

	d.bus.Subscribe(func(e events.Event) {
		select {
		case ch <- e:
		default:
			log.Printf("notify: event queue full, dropping %s event", e.Type)
		}
	})

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for {
			select {
			case e := <-ch:
				d.handle(e)
			case <-d.stopCh:
				// Drain remaining events
				for {
					select {
					case e := <-ch:
						d.handle(e)
					default:
						return
					}
				}
			}
		}
	}()
}

// Stop signals the dispatcher goroutine to finish and waits for it.
func (d *Dispatcher) Stop() {
	close(d.stopCh)
	d.wg.Wait()
}

func (d *Dispatcher) handle(e events.Event) {
	if d.url == "" || e.Severity < d.minSeverity {
		return
	}
	if e.Severity < events.SeverityCritical && d.inCooldown(e.Type) {
		return
	}

	msg := formatMessage(e)
	if err := d.sender.Send(d.url, msg); err != nil {
		log.Printf("notify: send failed: %v", err)
	}
}

// inCooldown reports whether the event type fired too recently, and
// stamps it if not. Critical events bypass the cooldown.
func (d *Dispatcher) inCooldown(t events.EventType) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	if last, ok := d.cooldowns[t]; ok && now.Sub(last) < d.cooldown {
		return true
	}
	d.cooldowns[t] = now
	return false
}

// formatMessage builds a human-readable notification string.
func formatMessage(e events.Event) string {
	severity := e.Severity.String()
	if e.ExtensionID != "" {
		return fmt.Sprintf("[%s] [%s] %s", severity, e.ExtensionID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", severity, e.Message)
}
