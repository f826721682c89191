package events

import "testing"

func TestBus_DeliversInSubscriptionOrder(t *testing.T) {
	var b Bus[string]
	var got []string
	b.Subscribe(func(e string) { got = append(got, "a:"+e) })
	b.Subscribe(func(e string) { got = append(got, "b:"+e) })

	b.Publish("x")
	b.Publish("y")

	want := []string{"a:x", "b:x", "a:y", "b:y"}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	var b Bus[int]
	n := 0
	off := b.Subscribe(func(int) { n++ })
	b.Publish(1)
	off()
	off()
	b.Publish(2)
	if n != 1 || b.Len() != 0 {
		t.Fatalf("n=%d len=%d", n, b.Len())
	}
}

func TestBus_UnsubscribeDuringPublish(t *testing.T) {
	var b Bus[int]
	var calls []string
	var offB func()
	b.Subscribe(func(int) {
		calls = append(calls, "a")
		offB()
	})
	offB = b.Subscribe(func(int) { calls = append(calls, "b") })

	// b was present when Publish started, so it still receives this event.
	b.Publish(1)
	b.Publish(2)
	if len(calls) != 3 || calls[0] != "a" || calls[1] != "b" || calls[2] != "a" {
		t.Fatalf("calls=%v", calls)
	}
}
