package services

import "sync"

// fakeNotifier records every broadcast so tests can assert on event
// order, targets and payloads without a live websocket hub.
type fakeNotifier struct {
	mu     sync.Mutex
	events []recordedEvent
	rooms  map[string]map[string]bool
}

type recordedEvent struct {
	Event   string
	UserID  string // direct target, empty for session broadcasts
	Session string // broadcast session, empty for direct sends
	Except  string
	Payload interface{}
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{rooms: make(map[string]map[string]bool)}
}

func (f *fakeNotifier) NotifyUser(userID, event string, payload interface{}) {
	f.record(recordedEvent{Event: event, UserID: userID, Payload: payload})
}

func (f *fakeNotifier) NotifySession(sessionID, event string, payload interface{}) {
	f.record(recordedEvent{Event: event, Session: sessionID, Payload: payload})
}

func (f *fakeNotifier) NotifySessionExcept(sessionID, exceptUserID, event string, payload interface{}) {
	f.record(recordedEvent{Event: event, Session: sessionID, Except: exceptUserID, Payload: payload})
}

func (f *fakeNotifier) AddToSession(sessionID, userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rooms[sessionID] == nil {
		f.rooms[sessionID] = make(map[string]bool)
	}
	f.rooms[sessionID][userID] = true
}

func (f *fakeNotifier) RemoveFromSession(sessionID, userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rooms[sessionID], userID)
}

func (f *fakeNotifier) DropSession(sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rooms, sessionID)
}

func (f *fakeNotifier) record(e recordedEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
}

func (f *fakeNotifier) named(event string) []recordedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []recordedEvent
	for _, e := range f.events {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

func (f *fakeNotifier) inRoom(sessionID, userID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rooms[sessionID][userID]
}
