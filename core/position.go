package core

import (
	"encoding/json"
	"fmt"
	"slices"
)

// Position is the continuation pointer of an instance. Activities are addressed by their node id,
// never by reference, so a position can be restored in any process.
type Position struct {
	// Scheduled are activities that still have to be executed, in order.
	Scheduled []string `json:"scheduled,omitempty"`

	// Waiting are activities that created a bookmark and wait for it to be resumed.
	Waiting []string `json:"waiting,omitempty"`
}

func DecodePosition(b []byte) (*Position, error) {
	p := &Position{}
	if len(b) == 0 {
		return p, nil
	}

	if err := json.Unmarshal(b, p); err != nil {
		return nil, fmt.Errorf("decoding position: %w", err)
	}

	return p, nil
}

func (p *Position) Encode() ([]byte, error) {
	return json.Marshal(p)
}

func (p *Position) IsWaiting(activityID string) bool {
	return slices.Contains(p.Waiting, activityID)
}

func (p *Position) AddWaiting(activityID string) {
	if !p.IsWaiting(activityID) {
		p.Waiting = append(p.Waiting, activityID)
	}
}

func (p *Position) RemoveWaiting(activityID string) {
	p.Waiting = slices.DeleteFunc(p.Waiting, func(id string) bool { return id == activityID })
}
