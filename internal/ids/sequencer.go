package ids

import "sync/atomic"

// RequestSequencer assigns monotonically increasing correlation ids to
// outbound requests so responses can be matched by sequence. One
// sequencer per session.
type RequestSequencer struct {
	n atomic.Int64
}

// Next returns the next request id, starting at 1.
func (s *RequestSequencer) Next() int {
	return int(s.n.Add(1))
}
