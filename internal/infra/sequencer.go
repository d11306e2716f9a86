package infra

// Sequencer is the metadata oracle: each Next call mints the next event seq
// and a timestamp from the injected clock. A venue owns exactly one, shared
// by all of its engines, so seq is strictly monotonic venue-wide.
type Sequencer struct {
	seq   uint64
	clock Clock
}

func NewSequencer(clock Clock) *Sequencer {
	return &Sequencer{clock: clock}
}

// Next returns the next (seq, ts_ns) pair. Seq starts at 1.
func (s *Sequencer) Next() (uint64, int64) {
	s.seq++
	return s.seq, s.clock.NowNS()
}

// Seq reports the last sequence number handed out.
func (s *Sequencer) Seq() uint64 { return s.seq }

// Reset moves the counter so the next event is seq+1. Replay uses it to
// continue a restored stream without reusing sequence numbers.
func (s *Sequencer) Reset(seq uint64) { s.seq = seq }
