package crdt

import (
	"encoding/json"
	"fmt"
)

// Entry is one register of a map: the latest value written under a key, or
// a tombstone when Deleted is set.
type Entry struct {
	Key     string          `json:"k"`
	Value   json.RawMessage `json:"v,omitempty"`
	Deleted bool            `json:"d,omitempty"`
	Stamp   Stamp           `json:"s"`
}

// Op is an entry addressed to a named map.
type Op struct {
	Map string `json:"m"`
	Entry
}

// Update is the unit of replication: every op committed by one
// transaction, or a full-state snapshot.
type Update struct {
	Origin string `json:"o"`
	Ops    []Op   `json:"ops"`
}

// Empty reports whether the update carries no ops.
func (u Update) Empty() bool { return len(u.Ops) == 0 }

// Encode serializes an update for the wire.
func Encode(u Update) ([]byte, error) {
	data, err := json.Marshal(u)
	if err != nil {
		return nil, fmt.Errorf("failed to encode update: %w", err)
	}
	return data, nil
}

// DecodeUpdate parses an update produced by Encode.
func DecodeUpdate(data []byte) (Update, error) {
	var u Update
	if err := json.Unmarshal(data, &u); err != nil {
		return Update{}, fmt.Errorf("failed to decode update: %w", err)
	}
	return u, nil
}
