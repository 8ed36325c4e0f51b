package tracker

import (
	"math/rand"
	"time"
)

// Policy yields the wait before the next poll attempt. attempt starts at 1
// for the delay following the first unsuccessful poll.
type Policy interface {
	Delay(attempt int) time.Duration
}

// Fixed waits the same interval between every attempt. This is the
// compatibility default: 3 retries at 5 seconds.
type Fixed struct {
	Interval time.Duration
}

// Delay implements Policy.
func (f Fixed) Delay(int) time.Duration {
	return f.Interval
}

// Exponential grows the wait by Multiplier per attempt, capped at Max.
type Exponential struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

// Delay implements Policy.
func (e Exponential) Delay(attempt int) time.Duration {
	d := e.Initial
	for i := 1; i < attempt; i++ {
		d = time.Duration(float64(d) * e.Multiplier)
		if e.Max > 0 && d > e.Max {
			return e.Max
		}
	}
	if e.Max > 0 && d > e.Max {
		return e.Max
	}
	return d
}

// Jittered spreads another policy's delay uniformly within ±Fraction of it.
type Jittered struct {
	Base     Policy
	Fraction float64 // 0.2 means ±20%
}

// Delay implements Policy.
func (j Jittered) Delay(attempt int) time.Duration {
	d := j.Base.Delay(attempt)
	if j.Fraction <= 0 {
		return d
	}
	spread := float64(d) * j.Fraction
	return time.Duration(float64(d) - spread + rand.Float64()*2*spread)
}
