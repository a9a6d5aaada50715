// ABOUTME: Per-instance sequence counter and Lamport timestamps for event ordering
// ABOUTME: Orders emission slots from one authority; ties break on participant rank

package participant

import "sync/atomic"

// SeqCounter hands out strictly increasing sequence numbers starting at 1.
// It is safe for concurrent use. One counter lives per running service
// instance, so it gives a total order for that instance only; it is not a
// multi-writer clock and cannot merge histories from independent processes.
// The zero value is ready to use.
type SeqCounter struct {
	issued atomic.Uint64
}

// NewSeqCounter returns a counter whose first Next call yields 1.
func NewSeqCounter() *SeqCounter {
	return &SeqCounter{}
}

// Next returns the current value and advances the counter.
func (c *SeqCounter) Next() uint64 {
	return c.issued.Add(1)
}

// Current returns the value the next call to Next will yield.
func (c *SeqCounter) Current() uint64 {
	return c.issued.Load() + 1
}

// LamportTimestamp is a (participant, seq) pair.
type LamportTimestamp struct {
	Participant ID     `json:"participant"`
	Seq         uint64 `json:"seq"`
}

// Stamp draws the next sequence number from c on behalf of actor.
func Stamp(actor Actor, c *SeqCounter) LamportTimestamp {
	return LamportTimestamp{Participant: actor.ParticipantID(), Seq: c.Next()}
}

// Less reports whether a sorts before b: lower seq first, then lower
// participant rank.
func Less(a, b LamportTimestamp) bool {
	if a.Seq != b.Seq {
		return a.Seq < b.Seq
	}
	return a.Participant < b.Participant
}
