package federation

import (
	"context"
	"sync"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// observerRegistration holds information about a registered observer
type observerRegistration struct {
	observer     Observer
	eventTypes   map[string]bool // set of event types this observer is interested in
	registeredAt time.Time
}

// observerRegistry manages a host's observers. Notification is
// best-effort: observer errors are logged and never propagated to the
// emitting runtime path.
type observerRegistry struct {
	logger    Logger
	mu        sync.RWMutex
	observers map[string]*observerRegistration // key is observer ID
}

func newObserverRegistry(logger Logger) *observerRegistry {
	return &observerRegistry{
		logger:    logger,
		observers: make(map[string]*observerRegistration),
	}
}

func (r *observerRegistry) empty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.observers) == 0
}

func (r *observerRegistry) register(observer Observer, eventTypes ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	eventTypeMap := make(map[string]bool, len(eventTypes))
	for _, eventType := range eventTypes {
		eventTypeMap[eventType] = true
	}
	r.observers[observer.ObserverID()] = &observerRegistration{
		observer:     observer,
		eventTypes:   eventTypeMap,
		registeredAt: time.Now(),
	}
}

func (r *observerRegistry) unregister(observer Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.observers, observer.ObserverID())
}

func (r *observerRegistry) notify(ctx context.Context, event cloudevents.Event) error {
	r.mu.RLock()
	interested := make([]*observerRegistration, 0, len(r.observers))
	for _, reg := range r.observers {
		if len(reg.eventTypes) == 0 || reg.eventTypes[event.Type()] {
			interested = append(interested, reg)
		}
	}
	r.mu.RUnlock()

	for _, reg := range interested {
		if err := reg.observer.OnEvent(ctx, event); err != nil {
			r.logger.Error("Observer failed to handle event",
				"observer", reg.observer.ObserverID(), "event", event.Type(), "error", err)
		}
	}
	return nil
}

func (r *observerRegistry) info() []ObserverInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ObserverInfo, 0, len(r.observers))
	for _, reg := range r.observers {
		eventTypes := make([]string, 0, len(reg.eventTypes))
		for eventType := range reg.eventTypes {
			eventTypes = append(eventTypes, eventType)
		}
		out = append(out, ObserverInfo{
			ID:           reg.observer.ObserverID(),
			EventTypes:   eventTypes,
			RegisteredAt: reg.registeredAt,
		})
	}
	return out
}

// RegisterObserver adds an observer to receive host telemetry events.
// An empty eventTypes list subscribes to all events.
func (h *StdHost) RegisterObserver(observer Observer, eventTypes ...string) error {
	h.observers.register(observer, eventTypes...)
	h.logger.Debug("Registered observer", "observer", observer.ObserverID(), "eventTypes", eventTypes)
	return nil
}

// UnregisterObserver removes an observer. Idempotent.
func (h *StdHost) UnregisterObserver(observer Observer) error {
	h.observers.unregister(observer)
	return nil
}

// NotifyObservers sends an event to all registered observers. Observer
// errors are logged, never returned.
func (h *StdHost) NotifyObservers(ctx context.Context, event cloudevents.Event) error {
	return h.observers.notify(ctx, event)
}

// GetObservers returns information about registered observers.
func (h *StdHost) GetObservers() []ObserverInfo {
	return h.observers.info()
}
