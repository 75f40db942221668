package session

// EventKind describes what changed in the session
type EventKind int

const (
	EventCreated EventKind = iota
	EventSwitched
	EventHistoryChanged
	EventSaved
	EventRenamed
	EventDeleted
	EventAnnotated
	EventPromptChanged
	// EventBackgroundSaved means a conversation other than the active one
	// received a reply and was saved.
	EventBackgroundSaved
)

func (k EventKind) String() string {
	switch k {
	case EventCreated:
		return "created"
	case EventSwitched:
		return "switched"
	case EventHistoryChanged:
		return "history_changed"
	case EventSaved:
		return "saved"
	case EventRenamed:
		return "renamed"
	case EventDeleted:
		return "deleted"
	case EventAnnotated:
		return "annotated"
	case EventPromptChanged:
		return "prompt_changed"
	case EventBackgroundSaved:
		return "background_saved"
	}
	return "unknown"
}

// Event is delivered to observers after each change
type Event struct {
	Kind EventKind
	ID   string
}

// Observer is called synchronously on the session's goroutine
type Observer func(Event)

type subscription struct {
	id int
	fn Observer
}

// Subscribe registers fn and returns a function that removes it
func (s *Session) Subscribe(fn Observer) func() {
	id := s.nextObsID
	s.nextObsID++
	s.observers = append(s.observers, subscription{id: id, fn: fn})
	return func() {
		for i, sub := range s.observers {
			if sub.id == id {
				s.observers = append(s.observers[:i], s.observers[i+1:]...)
				return
			}
		}
	}
}

func (s *Session) notify(ev Event) {
	for _, sub := range s.observers {
		sub.fn(ev)
	}
}
