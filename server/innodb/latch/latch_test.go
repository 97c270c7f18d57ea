package latch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIndexLatchSharedConcurrentWithUpdate(t *testing.T) {
	l := NewIndexLatch()
	l.RLock()
	l.LockUpdate()
	// shared readers are not excluded by update mode.
	l.RUnlock()
	l.UnlockUpdate()
}

func TestIndexLatchUpgradeExcludesReaders(t *testing.T) {
	l := NewIndexLatch()
	l.LockUpdate()
	done := make(chan struct{})
	l.RLock()
	go func() {
		l.Upgrade()
		l.Downgrade()
		close(done)
	}()
	l.RUnlock()
	<-done
	l.UnlockUpdate()
}

func TestSavepointStackReleaseOrder(t *testing.T) {
	a, b, c := NewLatch(), NewLatch(), NewLatch()
	a.RLock()
	b.RLock()
	c.Lock()

	stack := NewStack()
	stack.PushShared(a)
	stack.PushShared(b)
	stack.PushExclusive(c)

	assert.Equal(t, 3, stack.Len())
	stack.ReleaseAbove(0)
	assert.Equal(t, 1, stack.Len())
	stack.ReleaseAll()
	assert.Equal(t, 0, stack.Len())

	assert.True(t, a.TryLock())
	a.Unlock()
}
