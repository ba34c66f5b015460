package service

import (
	"math/rand/v2"
	"time"
)

const (
	// defaultBackoffCap bounds exponential retry growth.
	defaultBackoffCap = 60 * time.Second
	// defaultBackoffJitter is the maximum random jitter added to each delay.
	defaultBackoffJitter = time.Second
)

// BackoffPolicy computes retry delays: min(cap, 2^attempts) with random
// jitter so many jobs failing at the same moment do not retry in lockstep.
type BackoffPolicy struct {
	// Cap bounds the exponential base delay; defaults to 60s.
	Cap time.Duration
	// Jitter is the exclusive upper bound of the random addition;
	// defaults to 1s. Zero jitter is selected with a negative value.
	Jitter time.Duration
}

// Base returns the deterministic part of the delay for the given
// post-increment attempt count: min(cap, 2^attempts) seconds.
func (p BackoffPolicy) Base(attempts int) time.Duration {
	capDelay := p.Cap
	if capDelay <= 0 {
		capDelay = defaultBackoffCap
	}
	if attempts < 0 {
		attempts = 0
	}
	// 2^attempts overflows quickly; anything past the cap is the cap.
	if attempts > 30 {
		return capDelay
	}
	delay := time.Duration(1<<uint(attempts)) * time.Second
	if delay > capDelay {
		return capDelay
	}
	return delay
}

// Delay returns the base delay plus jitter.
func (p BackoffPolicy) Delay(attempts int) time.Duration {
	jitter := p.Jitter
	if jitter == 0 {
		jitter = defaultBackoffJitter
	}
	if jitter < 0 {
		return p.Base(attempts)
	}
	return p.Base(attempts) + rand.N(jitter)
}
