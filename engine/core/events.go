package core

import "sync"

// EventContext carries the payload fired with an event code.
type EventContext struct {
	Data interface{}
}

// System internal event codes. Application should use codes beyond 255.
type SystemEventCode int

const (
	// Shuts the application down on the next frame.
	EVENT_CODE_APPLICATION_QUIT SystemEventCode = 0x01

	// A watched scene description file changed on disk.
	/* Context usage:
	 * path := context.Data.(string)
	 */
	EVENT_CODE_SCENE_FILE_CHANGED SystemEventCode = 0x02

	// A scene finished a full load+bake cycle (startup or hot reload).
	/* Context usage:
	 * sceneName := context.Data.(string)
	 */
	EVENT_CODE_SCENE_BAKED SystemEventCode = 0x03

	// A frame capture was written to disk.
	/* Context usage:
	 * path := context.Data.(string)
	 */
	EVENT_CODE_FRAME_CAPTURED SystemEventCode = 0x04

	MAX_EVENT_CODE SystemEventCode = 0xFF
)

const maxMessageCodes = 4096

type registeredEvent struct {
	listener interface{}
	callback FnOnEvent
}

type eventCodeEntry struct {
	events []*registeredEvent
}

// State structure.
type eventSystemState struct {
	// Lookup table for event codes.
	registered [maxMessageCodes]eventCodeEntry
	mu         sync.Mutex
}

var onceEvent sync.Once
var eventsInitialized bool = false
var eventState *eventSystemState = nil

// Should return true if handled (stops propagation).
type FnOnEvent func(code SystemEventCode, sender interface{}, listenerInst interface{}, data EventContext) bool

func EventInitialize() bool {
	if eventsInitialized {
		return false
	}
	onceEvent.Do(func() {
		eventState = &eventSystemState{}
	})
	eventsInitialized = true
	return true
}

func EventShutdown() error {
	if eventState == nil {
		return nil
	}
	eventState.mu.Lock()
	defer eventState.mu.Unlock()
	for i := 0; i < maxMessageCodes; i++ {
		eventState.registered[i].events = nil
	}
	return nil
}

/**
 * Register to listen for when events are sent with the provided code. Events with duplicate
 * listener/callback combos will not be registered again and will cause this to return FALSE.
 */
func EventRegister(code SystemEventCode, listener interface{}, onEvent FnOnEvent) bool {
	if !eventsInitialized {
		return false
	}
	eventState.mu.Lock()
	defer eventState.mu.Unlock()
	for _, e := range eventState.registered[code].events {
		if e.listener == listener {
			return false
		}
	}
	eventState.registered[code].events = append(eventState.registered[code].events, &registeredEvent{
		listener: listener,
		callback: onEvent,
	})
	return true
}

/**
 * Unregister from listening for when events are sent with the provided code. If no matching
 * registration is found, this function returns FALSE.
 */
func EventUnregister(code SystemEventCode, listener interface{}) bool {
	if !eventsInitialized {
		return false
	}
	eventState.mu.Lock()
	defer eventState.mu.Unlock()
	events := eventState.registered[code].events
	for i, e := range events {
		if e.listener == listener {
			eventState.registered[code].events = append(events[:i], events[i+1:]...)
			return true
		}
	}
	return false
}

/**
 * Fires an event to listeners of the given code. If an event handler returns
 * TRUE, the event is considered handled and is not passed on to any more listeners.
 */
func EventFire(code SystemEventCode, sender interface{}, context EventContext) bool {
	if !eventsInitialized {
		return false
	}
	eventState.mu.Lock()
	events := make([]*registeredEvent, len(eventState.registered[code].events))
	copy(events, eventState.registered[code].events)
	eventState.mu.Unlock()

	for _, e := range events {
		if e.callback(code, sender, e.listener, context) {
			return true
		}
	}
	return false
}
