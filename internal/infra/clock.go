// Package infra holds the small injectable collaborators the core depends
// on: the clock, the event sequencer, and order-id minting.
package infra

import "time"

// Clock abstracts time so the venue can run against the host clock in
// production and a fixed clock in tests.
type Clock interface {
	NowNS() int64
}

// SystemClock reads the host clock.
type SystemClock struct{}

func (SystemClock) NowNS() int64 { return time.Now().UnixNano() }

// FixedClock always reports T. Deterministic tests pin it.
type FixedClock struct {
	T int64
}

func (c FixedClock) NowNS() int64 { return c.T }
