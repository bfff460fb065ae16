package notify

import "sync"

// Kind names the store mutation that triggered an event.
type Kind string

const (
	Replaced Kind = "replaced"
	Upserted Kind = "upserted"
	Restored Kind = "restored"
	Removed  Kind = "removed"
	Cleared  Kind = "cleared"
)

// Event tells subscribers the store changed. Subscribers should re-read
// the store rather than apply the event incrementally.
type Event struct {
	Kind    Kind
	IDs     []string
	Version uint64
}

type subscriber struct {
	id int
	fn func(Event)
}

// Notifier is a synchronous publish/subscribe register.
type Notifier struct {
	mu     sync.Mutex
	nextID int
	subs   []subscriber
}

func New() *Notifier {
	return &Notifier{}
}

// Subscribe registers fn and returns a function that removes it.
func (n *Notifier) Subscribe(fn func(Event)) (unsubscribe func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nextID++
	id := n.nextID
	n.subs = append(n.subs, subscriber{id: id, fn: fn})
	var once sync.Once
	return func() {
		once.Do(func() { n.remove(id) })
	}
}

func (n *Notifier) remove(id int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, s := range n.subs {
		if s.id == id {
			n.subs = append(n.subs[:i:i], n.subs[i+1:]...)
			return
		}
	}
}

// Publish delivers ev to every subscriber in subscription order before returning.
// Subscribers may subscribe or unsubscribe from inside the callback.
func (n *Notifier) Publish(ev Event) {
	n.mu.Lock()
	subs := make([]subscriber, len(n.subs))
	copy(subs, n.subs)
	n.mu.Unlock()
	for _, s := range subs {
		s.fn(ev)
	}
}

// Len returns the number of subscribers.
func (n *Notifier) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs)
}
