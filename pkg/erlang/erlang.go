// Package erlang evaluates the Erlang C queueing model: the probability that
// a contact waits, and the resulting service level, for a given offered load
// and number of servers.
//
// The wait probability is derived from the Erlang B loss probability, which
// is accumulated term by term so that large server counts never touch a
// factorial.
package erlang

import "math"

// OfferedLoad returns the traffic intensity in erlangs for volume contacts
// handled in ahtSec seconds each over an interval of intervalSec seconds.
func OfferedLoad(volume int, ahtSec, intervalSec float64) float64 {
	if volume <= 0 || ahtSec <= 0 || intervalSec <= 0 {
		return 0
	}
	return float64(volume) * ahtSec / intervalSec
}

// ErlangB returns the blocking probability of an M/M/c/c system with offered
// load a, using B(0)=1, B(k)=a*B(k-1)/(k+a*B(k-1)).
func ErlangB(a float64, c int) float64 {
	if c < 0 {
		return 1
	}
	b := 1.0
	for k := 1; k <= c; k++ {
		ab := a * b
		b = ab / (float64(k) + ab)
	}
	return b
}

// WaitProbability returns the Erlang C probability that an arriving contact
// has to queue. When c <= a the queue is unstable and the result is exactly 1.
func WaitProbability(a float64, c int) float64 {
	if c < 1 || float64(c) <= a {
		return 1.0
	}
	if a <= 0 {
		return 0
	}
	b := ErlangB(a, c)
	fc := float64(c)
	return clamp01(fc * b / (fc - a*(1-b)))
}

// ServiceLevel returns the probability that a contact is answered within
// targetSec, given wait probability pw: 1 - pw*exp(-(c-a)*target/aht).
// It returns 0 when c <= a.
func ServiceLevel(pw float64, c int, a, ahtSec, targetSec float64) float64 {
	fc := float64(c)
	if fc <= a {
		return 0
	}
	if ahtSec <= 0 {
		return clamp01(1 - pw)
	}
	return clamp01(1 - pw*math.Exp(-(fc-a)*targetSec/ahtSec))
}

// ASA returns the average speed of answer in seconds. It is +Inf when the
// queue is unstable.
func ASA(pw float64, c int, a, ahtSec float64) float64 {
	fc := float64(c)
	if fc <= a {
		return math.Inf(1)
	}
	return pw * ahtSec / (fc - a)
}

// Occupancy returns the fraction of time the c servers are busy.
func Occupancy(a float64, c int) float64 {
	if c <= 0 {
		return 0
	}
	return clamp01(a / float64(c))
}

func clamp01(x float64) float64 {
	switch {
	case math.IsNaN(x):
		return 1
	case x < 0:
		return 0
	case x > 1:
		return 1
	default:
		return x
	}
}
