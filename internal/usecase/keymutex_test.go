package usecase

import (
	"sync"
	"testing"
)

func TestKeyMutex_SerializesSameKey(t *testing.T) {
	locks := newKeyMutex()

	const workers = 64
	counter := 0

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			unlock := locks.Lock("login:a@x.com")
			counter++
			unlock()
		}()
	}
	wg.Wait()

	if counter != workers {
		t.Fatalf("expected %d serialized increments, got %d", workers, counter)
	}
}

func TestKeyMutex_ReleasesEntryWhenIdle(t *testing.T) {
	locks := newKeyMutex()

	unlock := locks.Lock("a")
	unlock()

	locks.mu.Lock()
	defer locks.mu.Unlock()
	if len(locks.locks) != 0 {
		t.Fatalf("expected lock table to be empty, %d entries remain", len(locks.locks))
	}
}

func TestKeyMutex_IndependentKeysDoNotBlock(t *testing.T) {
	locks := newKeyMutex()

	unlockA := locks.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlockB := locks.Lock("b")
		unlockB()
		close(done)
	}()

	<-done
}
