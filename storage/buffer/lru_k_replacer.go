package buffer

import (
	"fmt"
	"sync"

	pair "github.com/notEpsilon/go-pair"
	"github.com/tkobori/ShachiDB/common"
)

const infiniteDiff = ^uint64(0)

// LRUKReplacer victimizes the evictable frame with the largest backward
// K-distance: the distance from now to its K-th most recent access.
// Frames with fewer than K recorded accesses count as infinitely distant
// and tie-break on the oldest recorded timestamp.
type LRUKReplacer struct {
	accessHistory    [][]uint64
	evictable        []bool
	k                uint64
	currentTimestamp uint64
	mutex            sync.Mutex
}

// NewLRUKReplacer instantiates a new LRU-K replacer
func NewLRUKReplacer(poolSize uint32, k uint32) *LRUKReplacer {
	return &LRUKReplacer{
		accessHistory: make([][]uint64, poolSize),
		evictable:     make([]bool, poolSize),
		k:             uint64(k),
	}
}

// RecordAccess appends a monotonically increasing timestamp to the
// frame's history, trimmed to the K most recent entries.
func (l *LRUKReplacer) RecordAccess(frameID FrameID) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	common.SH_Assert(int(frameID) < len(l.accessHistory),
		fmt.Sprintf("LRUKReplacer: frame id %d out of range", frameID))

	history := append(l.accessHistory[frameID], l.currentTimestamp)
	l.currentTimestamp++
	if uint64(len(history)) > l.k {
		history = history[1:]
	}
	l.accessHistory[frameID] = history
}

// Victim picks the evictable frame maximizing the K-distance and clears
// its history.
func (l *LRUKReplacer) Victim() *FrameID {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	var victim FrameID
	maxDiff := pair.Pair[uint64, uint64]{}
	found := false

	for i := range l.accessHistory {
		if len(l.accessHistory[i]) == 0 || !l.evictable[i] {
			continue
		}

		diff := l.getDiff(FrameID(i))
		if !found || diff.First > maxDiff.First ||
			(diff.First == maxDiff.First && diff.Second < maxDiff.Second) {
			victim = FrameID(i)
			maxDiff = diff
			found = true
		}
	}

	if !found {
		return nil
	}

	l.accessHistory[victim] = nil
	l.evictable[victim] = false
	return &victim
}

// getDiff returns (K-distance, K-th most recent timestamp) of a frame
func (l *LRUKReplacer) getDiff(frameID FrameID) pair.Pair[uint64, uint64] {
	history := l.accessHistory[frameID]
	recentK := history[0]
	if uint64(len(history)) < l.k {
		return pair.Pair[uint64, uint64]{First: infiniteDiff, Second: recentK}
	}
	return pair.Pair[uint64, uint64]{First: l.currentTimestamp - recentK, Second: recentK}
}

// SetEvictable toggles whether the frame may be victimized
func (l *LRUKReplacer) SetEvictable(frameID FrameID, evictable bool) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	common.SH_Assert(int(frameID) < len(l.evictable),
		fmt.Sprintf("LRUKReplacer: frame id %d out of range", frameID))

	l.evictable[frameID] = evictable
}

// Pin marks the frame non-evictable
func (l *LRUKReplacer) Pin(frameID FrameID) {
	l.SetEvictable(frameID, false)
}

// Unpin marks the frame evictable
func (l *LRUKReplacer) Unpin(frameID FrameID) {
	l.SetEvictable(frameID, true)
}

// Remove drops the history of a frame that leaves the pool
func (l *LRUKReplacer) Remove(frameID FrameID) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	l.accessHistory[frameID] = nil
	l.evictable[frameID] = false
}

// Size counts the evictable frames with recorded history. Linear over
// the pool, which stays small enough not to matter.
func (l *LRUKReplacer) Size() uint32 {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	size := uint32(0)
	for i := range l.accessHistory {
		if len(l.accessHistory[i]) > 0 && l.evictable[i] {
			size++
		}
	}
	return size
}
