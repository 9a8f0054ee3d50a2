package blockcache

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCMSketchIncrementEstimate(t *testing.T) {
	s := newCMSketch(16)
	s.increment(1)
	s.increment(1)
	s.increment(1)
	s.increment(1)
	require.Equal(t, uint64(4), s.estimate(1))
	require.Equal(t, uint64(0), s.estimate(2))
}

func TestCMSketchSaturates(t *testing.T) {
	s := newCMSketch(16)
	for i := 0; i < 20; i++ {
		s.increment(5)
	}
	require.Equal(t, uint64(15), s.estimate(5))
}

func TestCMSketchReset(t *testing.T) {
	s := newCMSketch(16)
	for i := 0; i < 4; i++ {
		s.increment(3)
	}
	s.reset()
	require.LessOrEqual(t, s.estimate(3), uint64(2))
}

func TestCMSketchClear(t *testing.T) {
	s := newCMSketch(16)
	s.increment(9)
	s.increment(9)
	s.clear()
	require.Equal(t, uint64(0), s.estimate(9))
}

func TestNext2Power(t *testing.T) {
	require.Equal(t, uint64(1), next2Power(1))
	require.Equal(t, uint64(16), next2Power(9))
	require.Equal(t, uint64(1024), next2Power(1024))
}
