package keylock

import (
	"cmp"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLock_SerializesSameKey(t *testing.T) {
	locks := New[string]()
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("counter")
			defer unlock()
			v := counter
			v++
			counter = v
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
	assert.Equal(t, 0, locks.Len(), "released keys are forgotten")
}

func TestLock_UnlockIsIdempotent(t *testing.T) {
	locks := New[int]()
	unlock := locks.Lock(1)
	unlock()
	unlock()

	// Lock must still be obtainable after double release.
	again := locks.Lock(1)
	again()
	assert.Equal(t, 0, locks.Len())
}

func TestLockAll_DeduplicatesKeys(t *testing.T) {
	locks := New[string]()
	unlock := locks.LockAll([]string{"b", "a", "b"}, cmp.Compare[string])
	assert.Equal(t, 2, locks.Len())
	unlock()
	assert.Equal(t, 0, locks.Len())
}
