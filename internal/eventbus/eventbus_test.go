package eventbus

import "testing"

func TestPublishReachesAllSubscribers(t *testing.T) {
	b := New[int]()
	defer b.Close()

	s1 := b.Subscribe()
	s2 := b.Subscribe()
	b.Publish(7)

	for i, ch := range []<-chan int{s1, s2} {
		select {
		case v := <-ch:
			if v != 7 {
				t.Errorf("subscriber %d got %d", i, v)
			}
		default:
			t.Errorf("subscriber %d received nothing", i)
		}
	}
}

func TestPublishPreservesOrder(t *testing.T) {
	b := New[int]()
	defer b.Close()

	sub := b.Subscribe()
	for i := 0; i < 10; i++ {
		b.Publish(i)
	}
	for i := 0; i < 10; i++ {
		if v := <-sub; v != i {
			t.Fatalf("event %d arrived as %d", i, v)
		}
	}
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	b := New[int]()
	defer b.Close()

	sub := b.Subscribe()
	// Overflow the buffer; Publish must not block.
	for i := 0; i < 200; i++ {
		b.Publish(i)
	}
	n := len(sub)
	if n == 0 || n > 64 {
		t.Fatalf("expected up to 64 buffered events, got %d", n)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New[int]()
	defer b.Close()

	sub := b.Subscribe()
	b.Unsubscribe(sub)
	if _, ok := <-sub; ok {
		t.Fatal("unsubscribed channel still open")
	}
	// Publishing after unsubscribe must not panic.
	b.Publish(1)
}

func TestCloseEndsSubscribers(t *testing.T) {
	b := New[int]()
	sub := b.Subscribe()
	b.Close()
	if _, ok := <-sub; ok {
		t.Fatal("channel open after close")
	}
	if late := b.Subscribe(); late == nil {
		t.Fatal("nil channel from closed bus")
	} else if _, ok := <-late; ok {
		t.Fatal("late subscriber channel open")
	}
	b.Publish(1)
	b.Close()
}
