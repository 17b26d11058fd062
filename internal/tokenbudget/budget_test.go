package tokenbudget

import (
	"sync"
	"testing"
)

func TestConsumeWithinBudget(t *testing.T) {
	b := New(100, 10)
	if !b.Consume(50) {
		t.Fatal("expected consume to succeed")
	}
	if b.Consumed() != 50 {
		t.Fatalf("got %d", b.Consumed())
	}
}

func TestConsumeOverBudget(t *testing.T) {
	b := New(100, 10)
	if b.Consume(91) {
		t.Fatal("expected consume to fail (91+10 > 100)")
	}
	if b.Consumed() != 0 {
		t.Fatalf("consumed should be unchanged on failure, got %d", b.Consumed())
	}
}

func TestConcurrentConsumeNeverOversubscribes(t *testing.T) {
	b := New(1000, 0)
	var wg sync.WaitGroup
	var successes atomic64
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if b.Consume(10) {
				successes.add(1)
			}
		}()
	}
	wg.Wait()
	if b.Consumed() > 1000 {
		t.Fatalf("oversubscribed: %d", b.Consumed())
	}
	if successes.get()*10 != b.Consumed() {
		t.Fatalf("mismatch: %d successes vs %d consumed", successes.get(), b.Consumed())
	}
}

type atomic64 struct {
	mu sync.Mutex
	n  int64
}

func (a *atomic64) add(n int64) {
	a.mu.Lock()
	a.n += n
	a.mu.Unlock()
}

func (a *atomic64) get() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.n
}

func TestUtilization(t *testing.T) {
	b := New(200, 0)
	b.Consume(50)
	if u := b.Utilization(); u != 25.0 {
		t.Fatalf("got %v", u)
	}
}
