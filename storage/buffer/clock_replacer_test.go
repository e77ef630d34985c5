package buffer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClockReplacer(t *testing.T) {
	clock := NewClockReplacer(8)

	clock.Unpin(1)
	clock.Unpin(2)
	clock.Unpin(3)
	clock.Unpin(4)
	clock.Unpin(5)
	require.Equal(t, uint32(5), clock.Size())

	clock.Pin(3)
	require.Equal(t, uint32(4), clock.Size())

	require.Equal(t, FrameID(1), *clock.Victim())
	require.Equal(t, FrameID(2), *clock.Victim())
	require.Equal(t, FrameID(4), *clock.Victim())
	require.Equal(t, uint32(1), clock.Size())

	// unpinning 3 clears nothing; its reference bit costs one sweep
	clock.Unpin(3)
	require.Equal(t, FrameID(5), *clock.Victim())
	require.Equal(t, FrameID(3), *clock.Victim())
	require.Nil(t, clock.Victim())
}
