// Package events is a synchronous publish/subscribe bus. Publish delivers to
// the subscribers registered at call time, in subscription order, before it
// returns. There is no buffering and no delivery guarantee beyond that.
package events

type subscriber[E any] struct {
	id uint64
	fn func(E)
}

type Bus[E any] struct {
	nextID uint64
	subs   []subscriber[E]
}

// Subscribe registers fn and returns a func that removes it again.
func (b *Bus[E]) Subscribe(fn func(E)) (unsubscribe func()) {
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscriber[E]{id: id, fn: fn})
	return func() { b.remove(id) }
}

func (b *Bus[E]) remove(id uint64) {
	for i, s := range b.subs {
		if s.id != id {
			continue
		}
		// Copy so an in-flight Publish keeps iterating its own snapshot.
		next := make([]subscriber[E], 0, len(b.subs)-1)
		next = append(next, b.subs[:i]...)
		next = append(next, b.subs[i+1:]...)
		b.subs = next
		return
	}
}

func (b *Bus[E]) Publish(e E) {
	for _, s := range b.subs {
		s.fn(e)
	}
}

func (b *Bus[E]) Len() int { return len(b.subs) }
