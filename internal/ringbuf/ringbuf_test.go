package ringbuf

import (
	"sync"
	"testing"
)

func TestFIFOOrder(t *testing.T) {
	r := New[int](4)
	for i := 1; i <= 3; i++ {
		if !r.TryEnqueue(i) {
			t.Fatalf("enqueue %d failed", i)
		}
	}
	for want := 1; want <= 3; want++ {
		got, ok := r.TryDequeue()
		if !ok || got != want {
			t.Fatalf("dequeue = %d,%v, want %d", got, ok, want)
		}
	}
	if _, ok := r.TryDequeue(); ok {
		t.Fatal("dequeue from empty ring succeeded")
	}
}

func TestRejectsWhenFull(t *testing.T) {
	r := New[string](2)
	r.TryEnqueue("a")
	r.TryEnqueue("b")
	if r.TryEnqueue("c") {
		t.Fatal("enqueue into full ring succeeded")
	}
	if r.Len() != 2 {
		t.Fatalf("Len = %d, want 2", r.Len())
	}
}

func TestWrapAround(t *testing.T) {
	r := New[int](2)
	r.TryEnqueue(1)
	r.TryEnqueue(2)
	r.TryDequeue()
	if !r.TryEnqueue(3) {
		t.Fatal("enqueue after dequeue failed")
	}

	got := r.Drain()
	if len(got) != 2 || got[0] != 2 || got[1] != 3 {
		t.Fatalf("Drain = %v, want [2 3]", got)
	}
	if r.Len() != 0 {
		t.Fatalf("Len after Drain = %d, want 0", r.Len())
	}
}

func TestConcurrentProducers(t *testing.T) {
	r := New[int](1000)

	var wg sync.WaitGroup
	for p := 0; p < 10; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				r.TryEnqueue(i)
			}
		}()
	}
	wg.Wait()

	if r.Len() != 1000 {
		t.Fatalf("Len = %d, want 1000", r.Len())
	}
}
