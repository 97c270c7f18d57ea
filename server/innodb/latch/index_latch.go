package latch

import "sync"

// Mode names the strength of a hold on an IndexLatch.
type Mode int

const (
	// ModeShared is a many-reader hold.
	ModeShared Mode = iota
	// ModeUpdate is an intermediate mode: at most one holder, compatible
	// with concurrent shared readers, and upgradeable to ModeExclusive by
	// its holder without giving up the update hold; the upgrade itself
	// waits until the remaining shared readers have released (spec §5).
	ModeUpdate
	// ModeExclusive is a single-writer hold; incompatible with any other
	// mode.
	ModeExclusive
)

// IndexLatch is the single-writer/many-reader latch spec §5 attaches to
// each B-tree, generalizing Latch with the update mode MySQL-family engines
// use to let one thread stage an upgrade while readers keep scanning.
type IndexLatch struct {
	mu         sync.RWMutex
	updateMu   sync.Mutex
	updateHeld bool
}

// NewIndexLatch creates an unlocked IndexLatch.
func NewIndexLatch() *IndexLatch {
	return &IndexLatch{}
}

// Lock acquires ModeExclusive. It takes the update slot first, so it also
// waits for any ModeUpdate holder.
func (l *IndexLatch) Lock() {
	l.updateMu.Lock()
	l.mu.Lock()
}

// Unlock releases ModeExclusive.
func (l *IndexLatch) Unlock() {
	l.mu.Unlock()
	l.updateMu.Unlock()
}

// RLock acquires ModeShared.
func (l *IndexLatch) RLock() { l.mu.RLock() }

// RUnlock releases ModeShared.
func (l *IndexLatch) RUnlock() { l.mu.RUnlock() }

// LockUpdate acquires ModeUpdate: excludes other update-mode holders, but
// not shared readers.
func (l *IndexLatch) LockUpdate() {
	l.updateMu.Lock()
	l.updateHeld = true
}

// UnlockUpdate releases ModeUpdate.
func (l *IndexLatch) UnlockUpdate() {
	l.updateHeld = false
	l.updateMu.Unlock()
}

// Upgrade promotes a held ModeUpdate to ModeExclusive by waiting out the
// remaining readers; the caller must already hold ModeUpdate.
func (l *IndexLatch) Upgrade() {
	l.mu.Lock()
}

// Downgrade releases the exclusive hold taken by Upgrade while the caller
// continues to hold ModeUpdate.
func (l *IndexLatch) Downgrade() {
	l.mu.Unlock()
}
