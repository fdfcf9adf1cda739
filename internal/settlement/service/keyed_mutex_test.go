package service

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyedMutex_SerializesPerKey(t *testing.T) {
	km := newKeyedMutex()
	n := 0
	var wg sync.WaitGroup

	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			km.Lock(1)
			defer km.Unlock(1)
			n++
		}()
	}
	wg.Wait()

	assert.Equal(t, 200, n)
}

func TestKeyedMutex_IndependentKeysDoNotBlock(t *testing.T) {
	km := newKeyedMutex()
	km.Lock(1)
	defer km.Unlock(1)

	// Would deadlock if keys shared a lock.
	km.Lock(2)
	km.Unlock(2)
}

func TestKeyedMutex_ReleasesEntries(t *testing.T) {
	km := newKeyedMutex()
	km.Lock(7)
	km.Unlock(7)

	km.mu.Lock()
	defer km.mu.Unlock()
	assert.Empty(t, km.locks)
}
