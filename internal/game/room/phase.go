package room

// Phase identifies where a room is in its lifecycle.
// The zero value is Waiting.
type Phase int

const (
	// Waiting accepts new joins; the game has not started.
	Waiting Phase = iota
	// Playing processes and broadcasts live simulation updates.
	Playing
	// Paused suspends gameplay mutation and broadcast but retains all sessions.
	Paused
	// Ended is terminal; the room is eligible for deletion.
	Ended
)

// String returns the wire name of the phase.
func (p Phase) String() string {
	switch p {
	case Waiting:
		return "waiting"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	case Ended:
		return "ended"
	default:
		return "unknown"
	}
}
