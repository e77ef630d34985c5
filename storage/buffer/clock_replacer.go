package buffer

import (
	"sync"
)

// ClockReplacer approximates LRU with one reference bit per frame and a
// clock hand. The hand sweeps the frames skipping pinned ones, clearing
// set reference bits and victimizing the first frame found unset.
type ClockReplacer struct {
	ref    []bool
	pinned []bool
	hand   uint32
	size   uint32
	mutex  sync.Mutex
}

// NewClockReplacer instantiates a new clock replacer
func NewClockReplacer(poolSize uint32) *ClockReplacer {
	pinned := make([]bool, poolSize)
	for i := range pinned {
		pinned[i] = true
	}
	return &ClockReplacer{
		ref:    make([]bool, poolSize),
		pinned: pinned,
	}
}

// RecordAccess is a no-op; the reference bit is set by Pin
func (c *ClockReplacer) RecordAccess(frameID FrameID) {
}

// Victim sweeps the clock and removes the victim frame
func (c *ClockReplacer) Victim() *FrameID {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.size == 0 {
		return nil
	}

	for ; ; c.hand = (c.hand + 1) % uint32(len(c.ref)) {
		if c.pinned[c.hand] {
			continue
		}
		if c.ref[c.hand] {
			c.ref[c.hand] = false
			continue
		}

		frameID := FrameID(c.hand)
		c.pinned[c.hand] = true
		c.size--
		c.hand = (c.hand + 1) % uint32(len(c.ref))
		return &frameID
	}
}

// Pin marks a frame non-evictable and references it
func (c *ClockReplacer) Pin(frameID FrameID) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if !c.pinned[frameID] {
		c.pinned[frameID] = true
		c.size--
	}
	c.ref[frameID] = true
}

// Unpin marks a frame evictable
func (c *ClockReplacer) Unpin(frameID FrameID) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.pinned[frameID] {
		c.pinned[frameID] = false
		c.size++
	}
}

// Remove drops a frame that leaves the pool
func (c *ClockReplacer) Remove(frameID FrameID) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if !c.pinned[frameID] {
		c.pinned[frameID] = true
		c.size--
	}
	c.ref[frameID] = false
}

// Size returns the number of evictable frames
func (c *ClockReplacer) Size() uint32 {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.size
}
