package stw

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSharedAllowsConcurrentHolders(t *testing.T) {
	l := &Lock{}

	var wg sync.WaitGroup
	concurrent := int32(0)
	maxConcurrent := int32(0)
	var mu sync.Mutex

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := l.Shared()
			defer release()

			mu.Lock()
			concurrent++
			if concurrent > maxConcurrent {
				maxConcurrent = concurrent
			}
			mu.Unlock()

			time.Sleep(10 * time.Millisecond)

			mu.Lock()
			concurrent--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Greater(t, maxConcurrent, int32(1))
}

func TestExclusiveBlocksShared(t *testing.T) {
	l := &Lock{}

	release := l.Exclusive()

	done := make(chan struct{})
	go func() {
		r := l.Shared()
		r()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("shared lock acquired while exclusive held")
	case <-time.After(20 * time.Millisecond):
	}

	release()
	<-done
}
