package crdt

// Stamp orders writes across replicas: Lamport clock first, replica id as
// the tie-break. Two distinct writes never share a stamp.
type Stamp struct {
	Clock   uint64 `json:"c"`
	Replica string `json:"r"`
}

// Less reports whether s happened before o in the total write order.
func (s Stamp) Less(o Stamp) bool {
	if s.Clock != o.Clock {
		return s.Clock < o.Clock
	}
	return s.Replica < o.Replica
}

// IsZero reports whether the stamp was never assigned.
func (s Stamp) IsZero() bool {
	return s.Clock == 0 && s.Replica == ""
}
