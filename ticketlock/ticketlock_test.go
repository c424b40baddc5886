package ticketlock

import (
	"sync"
	"testing"
)

func TestAcquireRelease(t *testing.T) {
	l := New()
	l.Acquire()
	if got := l.Snapshot().Acquisitions; got != 1 {
		t.Fatalf("Acquisitions = %d, want 1", got)
	}
	l.Release()
	l.Acquire()
	l.Release()
	if got := l.Snapshot().Acquisitions; got != 2 {
		t.Fatalf("Acquisitions = %d, want 2", got)
	}
}

func TestTryAcquire(t *testing.T) {
	l := New()
	if !l.TryAcquire() {
		t.Fatal("TryAcquire on free lock failed")
	}
	if l.TryAcquire() {
		t.Fatal("TryAcquire on held lock succeeded")
	}
	l.Release()
	if !l.TryAcquire() {
		t.Fatal("TryAcquire after release failed")
	}
	l.Release()
}

func TestOwnerTracking(t *testing.T) {
	l := New()
	if l.Owner() != NoOwner {
		t.Fatal("fresh lock has an owner")
	}
	l.Acquire()
	l.SetOwner(3)
	if got := l.Owner(); got != 3 {
		t.Fatalf("Owner = %d, want 3", got)
	}
	l.Release()
	if l.Owner() != NoOwner {
		t.Fatal("owner survived release")
	}
}

func TestMutualExclusion(t *testing.T) {
	l := New()
	const workers = 8
	const rounds = 2000
	var counter int
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				l.Acquire()
				counter++
				l.Release()
			}
		}()
	}
	wg.Wait()
	if counter != workers*rounds {
		t.Fatalf("counter = %d, want %d", counter, workers*rounds)
	}
	s := l.Snapshot()
	if s.Acquisitions != workers*rounds {
		t.Fatalf("Acquisitions = %d, want %d", s.Acquisitions, workers*rounds)
	}
}

func TestNullLock(t *testing.T) {
	var l Null
	l.Acquire()
	if !l.TryAcquire() {
		t.Fatal("Null TryAcquire = false")
	}
	l.Release()
}

func BenchmarkUncontended(b *testing.B) {
	l := New()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		l.Acquire()
		l.Release()
	}
}
