package notify

import (
	"strings"
	"sync"
	"testing"
	"time"

	"warden/internal/events"
)

// fakeSender records sent messages instead of hitting real services.
type fakeSender struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeSender) Send(url, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, message)
	return nil
}

func (f *fakeSender) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	copy(out, f.sent)
	return out
}

func newTestDispatcher(t *testing.T, min events.Severity) (*events.Bus, *Dispatcher, *fakeSender) {
	t.Helper()
	bus := events.NewBus()
	sender := &fakeSender{}
	d := NewDispatcher("discord://token@channel", bus, sender, min)
	d.Start()
	return bus, d, sender
}

func TestDispatchesMatchingSeverity(t *testing.T) {
	bus, d, sender := newTestDispatcher(t, events.SeverityWarning)

	bus.Publish(events.Event{
		Type:        events.ConflictReported,
		Severity:    events.SeverityWarning,
		ExtensionID: "ext-001",
		Message:     "conflicts detected",
	})
	d.Stop()

	msgs := sender.messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if !strings.Contains(msgs[0], "[warning]") || !strings.Contains(msgs[0], "ext-001") {
		t.Errorf("unexpected message %q", msgs[0])
	}
}

func TestFiltersBelowMinSeverity(t *testing.T) {
	bus, d, sender := newTestDispatcher(t, events.SeverityWarning)

	bus.Publish(events.Event{
		Type:     events.ExtensionRegistered,
		Severity: events.SeverityInfo,
		Message:  "registered",
	})
	d.Stop()

	if len(sender.messages()) != 0 {
		t.Error("info events should be filtered at warning threshold")
	}
}

func TestCooldownSuppressesRepeats(t *testing.T) {
	bus, d, sender := newTestDispatcher(t, events.SeverityInfo)

	for i := 0; i < 3; i++ {
		bus.Publish(events.Event{
			Type:     events.ConflictReported,
			Severity: events.SeverityWarning,
			Message:  "again",
		})
	}
	d.Stop()

	if got := len(sender.messages()); got != 1 {
		t.Errorf("cooldown should collapse repeats, got %d messages", got)
	}
}

func TestCriticalBypassesCooldown(t *testing.T) {
	bus, d, sender := newTestDispatcher(t, events.SeverityInfo)

	for i := 0; i < 3; i++ {
		bus.Publish(events.Event{
			Type:     events.ViolationDetected,
			Severity: events.SeverityCritical,
			Message:  "violation",
		})
	}
	d.Stop()

	if got := len(sender.messages()); got != 3 {
		t.Errorf("critical events bypass the cooldown, got %d messages", got)
	}
}

func TestNoURLMeansNoDispatch(t *testing.T) {
	bus := events.NewBus()
	sender := &fakeSender{}
	d := NewDispatcher("", bus, sender, events.SeverityInfo)
	d.Start()

	bus.Publish(events.Event{
		Type:     events.ConflictReported,
		Severity: events.SeverityCritical,
		Message:  "x",
	})
	d.Stop()

	if len(sender.messages()) != 0 {
		t.Error("dispatcher without a URL must not send")
	}
}

func TestStopDrainsQueue(t *testing.T) {
	bus := events.NewBus()
	sender := &fakeSender{}
	d := NewDispatcher("discord://token@channel", bus, sender, events.SeverityInfo)
	d.Start()

	bus.Publish(events.Event{
		Type:     events.ExtensionStateChanged,
		Severity: events.SeverityInfo,
		Message:  "toggled",
	})
	d.Stop()

	deadline := time.Now().Add(time.Second)
	for len(sender.messages()) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if len(sender.messages()) != 1 {
		t.Error("queued event should be delivered before Stop returns")
	}
}
