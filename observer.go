// Package federation provides Observer pattern interfaces for runtime
// telemetry. Events use the CloudEvents specification for standardized
// format and interoperability with external systems.
package federation

import (
	"context"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// Observer defines the interface for objects that want to be notified of
// runtime events such as remote registration, container creation, and
// shared-scope conflicts. Observers register with a Subject (typically the
// host) to receive notifications.
type Observer interface {
	// OnEvent is called when an event occurs that the observer is
	// interested in. Observers should handle events quickly to avoid
	// blocking other observers.
	OnEvent(ctx context.Context, event cloudevents.Event) error

	// ObserverID returns a unique identifier for this observer, used for
	// registration tracking and debugging.
	ObserverID() string
}

// Subject defines the interface for objects that can be observed.
// The host implements Subject and notifies observers of every lifecycle
// event it emits.
type Subject interface {
	// RegisterObserver adds an observer to receive notifications.
	// Observers can optionally filter events by type; an empty eventTypes
	// list subscribes to all events.
	RegisterObserver(observer Observer, eventTypes ...string) error

	// UnregisterObserver removes an observer. It is idempotent and does
	// not error when the observer was never registered.
	UnregisterObserver(observer Observer) error

	// NotifyObservers sends an event to all registered observers.
	// Observer errors are logged, never propagated to the emitter.
	NotifyObservers(ctx context.Context, event cloudevents.Event) error

	// GetObservers returns information about registered observers.
	GetObservers() []ObserverInfo
}

// ObserverInfo provides information about a registered observer.
type ObserverInfo struct {
	// ID is the unique identifier of the observer
	ID string `json:"id"`

	// EventTypes are the event types this observer is subscribed to.
	// Empty slice means all events.
	EventTypes []string `json:"eventTypes"`

	// RegisteredAt indicates when the observer was registered
	RegisteredAt time.Time `json:"registeredAt"`
}

// EventType constants for runtime events. Following the CloudEvents
// specification, these use reverse domain notation.
const (
	// Remote lifecycle events
	EventTypeRemoteRegistered   = "com.federation.remote.registered"
	EventTypeRemoteReplaced     = "com.federation.remote.replaced"
	EventTypeRemoteResolved     = "com.federation.remote.resolved"
	EventTypeRemoteLoaded       = "com.federation.remote.loaded"
	EventTypeRemoteLoadFailed   = "com.federation.remote.load_failed"
	EventTypeContainerCreated   = "com.federation.container.created"
	EventTypeManifestRefreshed  = "com.federation.manifest.refreshed"

	// Shared scope events
	EventTypeShareRegistered = "com.federation.share.registered"
	EventTypeShareResolved   = "com.federation.share.resolved"
	EventTypeShareConflict   = "com.federation.share.conflict"

	// Preload and prefetch events
	EventTypePreloadPlanned    = "com.federation.preload.planned"
	EventTypePrefetchStarted   = "com.federation.prefetch.started"
	EventTypePrefetchResolved  = "com.federation.prefetch.resolved"
	EventTypePrefetchRejected  = "com.federation.prefetch.rejected"
	EventTypePrefetchRefetched = "com.federation.prefetch.refetched"

	// Host lifecycle events
	EventTypeConfigReloaded = "com.federation.config.reloaded"
)

// FunctionalObserver provides a simple way to create observers using
// functions, without defining full structs.
type FunctionalObserver struct {
	id      string
	handler func(ctx context.Context, event cloudevents.Event) error
}

// NewFunctionalObserver creates a new observer that uses the provided
// function to handle events.
func NewFunctionalObserver(id string, handler func(ctx context.Context, event cloudevents.Event) error) Observer {
	return &FunctionalObserver{
		id:      id,
		handler: handler,
	}
}

// OnEvent implements the Observer interface by calling the handler function.
func (f *FunctionalObserver) OnEvent(ctx context.Context, event cloudevents.Event) error {
	return f.handler(ctx, event)
}

// ObserverID implements the Observer interface by returning the observer ID.
func (f *FunctionalObserver) ObserverID() string {
	return f.id
}
