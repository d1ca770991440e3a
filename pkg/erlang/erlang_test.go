package erlang

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOfferedLoad(t *testing.T) {
	assert.InDelta(t, 8.3333, OfferedLoad(50, 300, 1800), 1e-4)
	assert.Equal(t, 0.0, OfferedLoad(0, 300, 1800))
	assert.Equal(t, 0.0, OfferedLoad(10, 300, 0))
}

func TestErlangB_KnownValues(t *testing.T) {
	// B(1, a) = a / (1 + a)
	assert.InDelta(t, 2.0/3.0, ErlangB(2, 1), 1e-12)
	// B(2, 2) = (a^2/2) / (1 + a + a^2/2) = 2/5
	assert.InDelta(t, 0.4, ErlangB(2, 2), 1e-12)
	assert.Equal(t, 1.0, ErlangB(5, 0))
}

func TestWaitProbability_UnstableIsExactlyOne(t *testing.T) {
	loads := []float64{0.5, 1, 2.7, 8.33, 40, 250}
	for _, a := range loads {
		for c := 1; float64(c) <= a; c++ {
			require.Equal(t, 1.0, WaitProbability(a, c), "a=%v c=%d", a, c)
		}
	}
}

func TestWaitProbability_KnownValues(t *testing.T) {
	// a=2, c=3: Pw = (8/6 * 3) / (1 + 2 + 2 + 8/6*3) = 4/9
	assert.InDelta(t, 4.0/9.0, WaitProbability(2, 3), 1e-12)
	// a=0.5, c=1 is M/M/1: Pw = rho
	assert.InDelta(t, 0.5, WaitProbability(0.5, 1), 1e-12)
	assert.Equal(t, 0.0, WaitProbability(0, 4))
}

func TestWaitProbability_LargeServerCount(t *testing.T) {
	// Factorial-based evaluation overflows float64 far below these sizes.
	for _, tc := range []struct {
		a float64
		c int
	}{
		{a: 180, c: 200},
		{a: 950, c: 1000},
		{a: 4900, c: 5000},
	} {
		pw := WaitProbability(tc.a, tc.c)
		assert.False(t, math.IsNaN(pw), "a=%v c=%d produced NaN", tc.a, tc.c)
		assert.GreaterOrEqual(t, pw, 0.0)
		assert.LessOrEqual(t, pw, 1.0)
	}
}

func TestServiceLevel(t *testing.T) {
	a := OfferedLoad(50, 300, 1800)

	assert.Equal(t, 0.0, ServiceLevel(1, 8, a, 300, 20), "c <= a must yield 0")

	sl11 := ServiceLevel(WaitProbability(a, 11), 11, a, 300, 20)
	sl12 := ServiceLevel(WaitProbability(a, 12), 12, a, 300, 20)
	assert.InDelta(t, 0.7492, sl11, 1e-3)
	assert.InDelta(t, 0.8622, sl12, 1e-3)
}

func TestServiceLevel_MonotonicInServers(t *testing.T) {
	for _, a := range []float64{0.3, 2.5, 8.33, 47.9, 120} {
		prev := -1.0
		for c := 1; c <= int(a)+60; c++ {
			sl := ServiceLevel(WaitProbability(a, c), c, a, 300, 20)
			require.GreaterOrEqual(t, sl, prev, "a=%v c=%d", a, c)
			prev = sl
		}
	}
}

func TestASAAndOccupancy(t *testing.T) {
	assert.True(t, math.IsInf(ASA(1, 2, 3, 300), 1))
	// a=2, c=3, Pw=4/9, AHT=300: ASA = 4/9*300/1
	assert.InDelta(t, 133.333, ASA(4.0/9.0, 3, 2, 300), 1e-3)

	assert.InDelta(t, 2.0/3.0, Occupancy(2, 3), 1e-12)
	assert.Equal(t, 0.0, Occupancy(2, 0))
	assert.Equal(t, 1.0, Occupancy(5, 3))
}
