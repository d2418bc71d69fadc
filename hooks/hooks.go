package hooks

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/INLOpen/obsbase/core"
)

// EventType defines the type of a hook event.
type EventType string

// --- Event Type Constants ---
const (
	// Observation Lifecycle Events
	EventPreAddObservation    EventType = "PreAddObservation"
	EventPostAddObservation   EventType = "PostAddObservation"
	EventPrePutObservation    EventType = "PrePutObservation"
	EventPostPutObservation   EventType = "PostPutObservation"
	EventPreGetObservation    EventType = "PreGetObservation"
	EventPostGetObservation   EventType = "PostGetObservation"
	EventPreRemoveObservation  EventType = "PreRemoveObservation"
	EventPostRemoveObservation EventType = "PostRemoveObservation"
	EventPreDeleteStream      EventType = "PreDeleteStream"
	EventPostDeleteStream     EventType = "PostDeleteStream"
	EventPreClear             EventType = "PreClear"
	EventPostClear            EventType = "PostClear"

	// Engine Internal Events
	EventPreFlushMemtable  EventType = "PreFlushMemtable"
	EventPostFlushMemtable EventType = "PostFlushMemtable"
	EventPostSSTableCreate EventType = "PostSSTableCreate"
	EventPreSSTableDelete  EventType = "PreSSTableDelete"
	EventPreWALAppend      EventType = "PreWALAppend"
	EventPostWALAppend     EventType = "PostWALAppend"
	EventPostWALRotate     EventType = "PostWALRotate"
	EventPostWALRecovery   EventType = "PostWALRecovery"

	// Series GC Events (the explicit compaction pass of §4.3)
	EventPreCompact  EventType = "PreCompact"
	EventPostCompact EventType = "PostCompact"

	// Cache Events
	EventOnCacheHit      EventType = "OnCacheHit"
	EventOnCacheMiss     EventType = "OnCacheMiss"
	EventOnCacheEviction EventType = "OnCacheEviction"

	// Registry Events
	EventOnSystemCreate EventType = "OnSystemCreate"
	EventOnFoiCreate    EventType = "OnFoiCreate"
	EventOnStreamCreate EventType = "OnStreamCreate"
	EventOnSeriesCreate EventType = "OnSeriesCreate"

	// Engine Lifecycle
	EventPreStartEngine  EventType = "PreStartEngine"
	EventPostStartEngine EventType = "PostStartEngine"
	EventPreCloseEngine  EventType = "PreCloseEngine"
	EventPostCloseEngine EventType = "PostCloseEngine"

	// Query Lifecycle
	EventPreQuery  EventType = "PreQuery"
	EventPostQuery EventType = "PostQuery"
)

// --- HookManager Interface and Implementation ---

// HookManager defines the interface for managing and triggering hooks.
type HookManager interface {
	// Register adds a listener for a specific event type.
	Register(eventType EventType, listener HookListener)
	// Trigger fires all registered listeners for a given event.
	// It handles synchronous vs. asynchronous execution based on the event type and listener preference.
	Trigger(ctx context.Context, event HookEvent) error
	// Stop waits for all asynchronous listeners to complete. Useful for graceful shutdown.
	Stop()
}

// HookEvent is the interface that all event objects must implement.
type HookEvent interface {
	// Type returns the type of the event.
	Type() EventType
	// Payload returns the data associated with the event.
	Payload() interface{}
}

// BaseEvent provides a base implementation for HookEvent.
type BaseEvent struct {
	eventType EventType
	payload   interface{}
}

func (e *BaseEvent) Type() EventType      { return e.eventType }
func (e *BaseEvent) Payload() interface{} { return e.payload }

// PreAddObservationPayload contains the data for a PreAddObservation event.
// Obs is a pointer to allow listeners to amend the observation before it's
// indexed (e.g. injecting a denormalized foiId).
type PreAddObservationPayload struct {
	Obs *core.Observation
}

// NewPreAddObservationEvent creates an event for before an observation is added.
func NewPreAddObservationEvent(payload PreAddObservationPayload) HookEvent {
	return &BaseEvent{eventType: EventPreAddObservation, payload: payload}
}

// PostAddObservationPayload contains the data for a PostAddObservation event.
type PostAddObservationPayload struct {
	Obs      core.Observation
	OpaqueID []byte
	Error    error
}

// NewPostAddObservationEvent creates an event for after an observation is added.
func NewPostAddObservationEvent(payload PostAddObservationPayload) HookEvent {
	return &BaseEvent{eventType: EventPostAddObservation, payload: payload}
}

// PrePutObservationPayload contains the data for a PrePutObservation event
// (full replace of an existing observation by its opaque id).
type PrePutObservationPayload struct {
	OpaqueID []byte
	Obs      *core.Observation
}

// NewPrePutObservationEvent creates an event for before an observation is replaced.
func NewPrePutObservationEvent(payload PrePutObservationPayload) HookEvent {
	return &BaseEvent{eventType: EventPrePutObservation, payload: payload}
}

// PostPutObservationPayload contains the data for a PostPutObservation event.
type PostPutObservationPayload struct {
	OpaqueID []byte
	Obs      core.Observation
	Error    error
}

// NewPostPutObservationEvent creates an event for after an observation is replaced.
func NewPostPutObservationEvent(payload PostPutObservationPayload) HookEvent {
	return &BaseEvent{eventType: EventPostPutObservation, payload: payload}
}

// PreGetObservationPayload contains the data for a PreGetObservation event.
type PreGetObservationPayload struct {
	OpaqueID []byte
}

// NewPreGetObservationEvent creates an event for before an observation is fetched.
func NewPreGetObservationEvent(payload PreGetObservationPayload) HookEvent {
	return &BaseEvent{eventType: EventPreGetObservation, payload: payload}
}

// PostGetObservationPayload contains the data for a PostGetObservation event.
type PostGetObservationPayload struct {
	OpaqueID []byte
	Result   *core.Observation // nil when not found
	Error    error
}

// NewPostGetObservationEvent creates an event for after an observation is fetched.
func NewPostGetObservationEvent(payload PostGetObservationPayload) HookEvent {
	return &BaseEvent{eventType: EventPostGetObservation, payload: payload}
}

// PreRemoveObservationPayload contains the data for a PreRemoveObservation event.
type PreRemoveObservationPayload struct {
	OpaqueID []byte
}

// NewPreRemoveObservationEvent creates an event for before an observation is removed.
func NewPreRemoveObservationEvent(payload PreRemoveObservationPayload) HookEvent {
	return &BaseEvent{eventType: EventPreRemoveObservation, payload: payload}
}

// PostRemoveObservationPayload contains the data for a PostRemoveObservation event.
type PostRemoveObservationPayload struct {
	OpaqueID []byte
	Error    error
}

// NewPostRemoveObservationEvent creates an event for after an observation is removed.
func NewPostRemoveObservationEvent(payload PostRemoveObservationPayload) HookEvent {
	return &BaseEvent{eventType: EventPostRemoveObservation, payload: payload}
}

// PreDeleteStreamPayload contains the data for a PreDeleteStream event, fired
// once before the cascading walk over SeriesByStream begins (§4.3).
type PreDeleteStreamPayload struct {
	StreamID uint64
}

// NewPreDeleteStreamEvent creates an event for before a stream is cascade-deleted.
func NewPreDeleteStreamEvent(payload PreDeleteStreamPayload) HookEvent {
	return &BaseEvent{eventType: EventPreDeleteStream, payload: payload}
}

// PostDeleteStreamPayload contains the data for a PostDeleteStream event.
type PostDeleteStreamPayload struct {
	StreamID        uint64
	SeriesRemoved   int
	RecordsRemoved  int64
	Error           error
}

// NewPostDeleteStreamEvent creates an event for after a stream is cascade-deleted.
func NewPostDeleteStreamEvent(payload PostDeleteStreamPayload) HookEvent {
	return &BaseEvent{eventType: EventPostDeleteStream, payload: payload}
}

// NewPreClearEvent creates an event for before the store is cleared.
func NewPreClearEvent() HookEvent {
	return &BaseEvent{eventType: EventPreClear, payload: nil}
}

// NewPostClearEvent creates an event for after the store is cleared.
func NewPostClearEvent(err error) HookEvent {
	return &BaseEvent{eventType: EventPostClear, payload: err}
}

// PreFlushMemtablePayload contains data for a PreFlushMemtable event.
type PreFlushMemtablePayload struct {
	// Currently no data, but can be extended.
}

// NewPreFlushMemtableEvent creates a new event for before a memtable is flushed.
func NewPreFlushMemtableEvent(payload PreFlushMemtablePayload) HookEvent {
	return &BaseEvent{
		eventType: EventPreFlushMemtable,
		payload:   payload,
	}
}

// PostFlushMemtablePayload contains the data for a PostFlushMemtable event.
// SSTablePath is the on-disk segment the memtable's paged-map buffer was
// flushed to, avoiding a dependency on the sstable package's concrete type.
type PostFlushMemtablePayload struct {
	SSTablePath string
	KeyCount    uint64
}

// NewPostFlushMemtableEvent creates a new event for after a memtable is flushed.
func NewPostFlushMemtableEvent(payload PostFlushMemtablePayload) HookEvent {
	return &BaseEvent{
		eventType: EventPostFlushMemtable,
		payload:   payload,
	}
}

// --- HookListener Interface ---

// HookListener defines the interface for components that want to listen to events.
type HookListener interface {
	// OnEvent is called by the HookManager when a registered event is triggered.
	// Returning an error from a "Pre" hook (e.g., PreAddObservation) can cancel the operation.
	// Errors from "Post" hooks are typically logged without affecting the main operation.
	OnEvent(ctx context.Context, event HookEvent) error

	// Priority returns the listener's priority. Lower numbers are executed first.
	Priority() int

	// IsAsync indicates if the listener should be called asynchronously for Post-events.
	IsAsync() bool
}

// SSTablePayload contains information about an on-disk segment for
// create/delete events.
type SSTablePayload struct {
	ID   uint64
	Path string
	Size int64
}

// NewPostSSTableCreateEvent creates an event for after a new segment has been created and loaded.
func NewPostSSTableCreateEvent(payload SSTablePayload) HookEvent {
	return &BaseEvent{eventType: EventPostSSTableCreate, payload: payload}
}

// NewPreSSTableDeleteEvent creates an event for before a segment file is deleted from disk.
func NewPreSSTableDeleteEvent(payload SSTablePayload) HookEvent {
	return &BaseEvent{eventType: EventPreSSTableDelete, payload: payload}
}

// WALAppendPayload contains the data for a Pre WALAppend event.
// For Pre-hooks, Entries is a pointer to allow modification.
type WALAppendPayload struct {
	Entries *[]core.WALEntry // Pointer for Pre-hook modification
}

// PostWALAppendPayload contains data after a WAL append operation.
type PostWALAppendPayload struct {
	Entries []core.WALEntry
	Error   error
}

// NewPreWALAppendEvent creates an event for before a batch of entries is appended to the WAL.
func NewPreWALAppendEvent(payload WALAppendPayload) HookEvent {
	return &BaseEvent{eventType: EventPreWALAppend, payload: payload}
}

// NewPostWALAppendEvent creates an event for after a batch of entries is appended to the WAL.
func NewPostWALAppendEvent(payload PostWALAppendPayload) HookEvent {
	return &BaseEvent{eventType: EventPostWALAppend, payload: payload}
}

// PostWALRotatePayload contains information about a WAL rotation.
type PostWALRotatePayload struct {
	OldSegmentIndex uint64
	NewSegmentIndex uint64
	NewSegmentPath  string
}

// NewPostWALRotateEvent creates an event for after the WAL has been rotated to a new segment.
func NewPostWALRotateEvent(payload PostWALRotatePayload) HookEvent {
	return &BaseEvent{eventType: EventPostWALRotate, payload: payload}
}

// PostWALRecoveryPayload contains information about a completed WAL recovery.
type PostWALRecoveryPayload struct {
	RecoveredEntriesCount int
	Duration              time.Duration
}

// NewPostWALRecoveryEvent creates an event for after WAL recovery is complete.
func NewPostWALRecoveryEvent(payload PostWALRecoveryPayload) HookEvent {
	return &BaseEvent{eventType: EventPostWALRecovery, payload: payload}
}

// CompactPayload contains data for the explicit series-GC compaction pass
// (§4.3 "empty series may be garbage-collected during an explicit compaction
// pass").
type CompactPayload struct {
	SeriesInspected int
	SeriesRemoved   int
	Error           error
}

// NewPreCompactEvent creates an event for before a compaction pass starts.
func NewPreCompactEvent() HookEvent {
	return &BaseEvent{eventType: EventPreCompact, payload: nil}
}

// NewPostCompactEvent creates an event for after a compaction pass finishes.
func NewPostCompactEvent(payload CompactPayload) HookEvent {
	return &BaseEvent{eventType: EventPostCompact, payload: payload}
}

// CachePayload contains information for cache-related events.
type CachePayload struct {
	Key string
}

// NewOnCacheHitEvent creates an event for a cache hit.
func NewOnCacheHitEvent(payload CachePayload) HookEvent {
	return &BaseEvent{eventType: EventOnCacheHit, payload: payload}
}

// NewOnCacheMissEvent creates an event for a cache miss.
func NewOnCacheMissEvent(payload CachePayload) HookEvent {
	return &BaseEvent{eventType: EventOnCacheMiss, payload: payload}
}

// NewOnCacheEvictionEvent creates an event for a cache eviction.
func NewOnCacheEvictionEvent(payload CachePayload) HookEvent {
	return &BaseEvent{eventType: EventOnCacheEviction, payload: payload}
}

// --- Registry Payloads ---

// SystemCreatePayload contains information about a newly registered System.
type SystemCreatePayload struct {
	UID        string
	InternalID uint64
}

// NewOnSystemCreateEvent creates an event for when a new System is registered.
func NewOnSystemCreateEvent(payload SystemCreatePayload) HookEvent {
	return &BaseEvent{eventType: EventOnSystemCreate, payload: payload}
}

// FoiCreatePayload contains information about a newly registered FoI.
type FoiCreatePayload struct {
	UID        string
	InternalID uint64
}

// NewOnFoiCreateEvent creates an event for when a new FeatureOfInterest is registered.
func NewOnFoiCreateEvent(payload FoiCreatePayload) HookEvent {
	return &BaseEvent{eventType: EventOnFoiCreate, payload: payload}
}

// StreamCreatePayload contains information about a newly registered DataStream.
type StreamCreatePayload struct {
	SystemID   uint64
	OutputName string
	StreamID   uint64
}

// NewOnStreamCreateEvent creates an event for when a new DataStream is registered.
func NewOnStreamCreateEvent(payload StreamCreatePayload) HookEvent {
	return &BaseEvent{eventType: EventOnStreamCreate, payload: payload}
}

// SeriesCreatePayload contains information about a newly created series.
type SeriesCreatePayload struct {
	StreamID uint64
	FoiID    uint64
	SeriesID uint64
}

// NewOnSeriesCreateEvent creates an event for when a new series is first seen.
func NewOnSeriesCreateEvent(payload SeriesCreatePayload) HookEvent {
	return &BaseEvent{eventType: EventOnSeriesCreate, payload: payload}
}

// --- Engine Lifecycle Payloads ---

// EngineLifecyclePayload is used for engine start/close events.
type EngineLifecyclePayload struct{}

// NewPreStartEngineEvent creates an event for before the engine starts.
func NewPreStartEngineEvent() HookEvent {
	return &BaseEvent{eventType: EventPreStartEngine, payload: EngineLifecyclePayload{}}
}

// NewPostStartEngineEvent creates an event for after the engine has started.
func NewPostStartEngineEvent() HookEvent {
	return &BaseEvent{eventType: EventPostStartEngine, payload: EngineLifecyclePayload{}}
}

// NewPreCloseEngineEvent creates an event for before the engine closes.
func NewPreCloseEngineEvent() HookEvent {
	return &BaseEvent{eventType: EventPreCloseEngine, payload: EngineLifecyclePayload{}}
}

// NewPostCloseEngineEvent creates an event for after the engine has closed.
func NewPostCloseEngineEvent() HookEvent {
	return &BaseEvent{eventType: EventPostCloseEngine, payload: EngineLifecyclePayload{}}
}

// PreQueryPayload contains the query parameters before execution. Filter is
// a pointer to allow listeners to narrow or rewrite it.
type PreQueryPayload struct {
	Filter *core.ObservationFilter
}

// NewPreQueryEvent creates an event for before a query is executed.
func NewPreQueryEvent(payload PreQueryPayload) HookEvent {
	return &BaseEvent{eventType: EventPreQuery, payload: payload}
}

// PostQueryPayload contains information after a query has executed.
type PostQueryPayload struct {
	Filter   core.ObservationFilter
	Duration time.Duration
	Error    error
}

// NewPostQueryEvent creates an event for after a query has executed.
func NewPostQueryEvent(payload PostQueryPayload) HookEvent {
	return &BaseEvent{eventType: EventPostQuery, payload: payload}
}

// listenerWithPriority wraps a listener with its priority for heap management.
type listenerWithPriority struct {
	listener HookListener
	priority int
}

// DefaultHookManager is a concrete implementation of HookManager.
type DefaultHookManager struct {
	// The map stores slices of listeners, kept sorted by priority.
	listeners map[EventType][]*listenerWithPriority
	mu        sync.RWMutex
	wg        sync.WaitGroup // For tracking async listeners
	logger    *slog.Logger
}

// NewHookManager creates a new DefaultHookManager.
func NewHookManager(logger *slog.Logger) HookManager {
	if logger == nil {
		// Default to a discard logger to prevent nil panics if no logger is provided.
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &DefaultHookManager{
		listeners: make(map[EventType][]*listenerWithPriority),
		logger:    logger,
	}
}

// Register adds a listener for a specific event type, maintaining priority order.
func (m *DefaultHookManager) Register(eventType EventType, listener HookListener) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item := &listenerWithPriority{
		listener: listener,
		priority: listener.Priority(),
	}

	// Get the existing slice of listeners for this event type.
	l := m.listeners[eventType]

	// Find the correct insertion index to maintain sorted order.
	// sort.Search finds the first index i where l[i].priority >= item.priority.
	idx := sort.Search(len(l), func(i int) bool {
		return l[i].priority >= item.priority
	})

	// Optimized insertion to reduce re-allocations.
	// Append a zero value to the slice, which might grow the slice once.
	l = append(l, nil)
	// Shift elements to make space for the new item.
	copy(l[idx+1:], l[idx:])
	// Insert the new item at the correct position.
	l[idx] = item // Insert the new item

	m.listeners[eventType] = l
}

// Trigger fires all registered listeners for a given event in priority order.
func (m *DefaultHookManager) Trigger(ctx context.Context, event HookEvent) error {
	m.mu.RLock()
	listeners, ok := m.listeners[event.Type()]
	m.mu.RUnlock()

	if !ok || len(listeners) == 0 {
		return nil
	}

	isPreHook := strings.HasPrefix(string(event.Type()), "Pre")

	for _, item := range listeners {
		isListenerAsync := item.listener.IsAsync()

		// Pre-hooks MUST be synchronous to allow for cancellation.
		// Post-hooks can be sync or async based on the listener's preference.
		if isPreHook || !isListenerAsync {
			// --- Synchronous Execution ---
			if isPreHook && isListenerAsync {
				m.logger.Warn("Listener for Pre-hook requested async execution, but Pre-hooks are always synchronous.", "event", event.Type(), "priority", item.priority)
			}

			if err := item.listener.OnEvent(ctx, event); err != nil {
				if isPreHook {
					// For Pre-hooks, the error is critical and cancels the operation.
					return fmt.Errorf("pre-hook for event %s (priority %d) failed: %w", event.Type(), item.priority, err)
				}
				// For synchronous Post-hooks, we just log the error and continue.
				m.logger.Error("Error from synchronous post-hook listener", "event", event.Type(), "priority", item.priority, "error", err)
			}
		} else {
			// --- Asynchronous Execution --- (Only for Post-hooks that return IsAsync() == true)
			m.wg.Add(1)
			// Pass item as an argument to the closure to capture its current value.
			go func(currentItem *listenerWithPriority) {
				defer m.wg.Done()
				if err := currentItem.listener.OnEvent(ctx, event); err != nil {
					m.logger.Error("Error from asynchronous post-hook listener", "event", event.Type(), "priority", currentItem.priority, "error", err)
				}
			}(item)
		}
	}
	return nil
}

// Stop waits for all asynchronous listeners to complete.
func (m *DefaultHookManager) Stop() {
	m.wg.Wait()
}
