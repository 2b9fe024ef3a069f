package app

import "loteria/internal/domain"

// EventKind identifies emitted session events for dispatch to connections.
type EventKind string

const (
	EventRoomState      EventKind = "room_state"
	EventBoardDealt     EventKind = "board_dealt"
	EventGameStarted    EventKind = "game_started"
	EventGameReset      EventKind = "game_reset"
	EventCardRevealed   EventKind = "card_revealed"
	EventDeckPaused     EventKind = "deck_paused"
	EventDeckResumed    EventKind = "deck_resumed"
	EventDeckFinished   EventKind = "deck_finished"
	EventWinnerDeclared EventKind = "winner_declared"
	EventClaimDenied    EventKind = "claim_denied"
)

// Event is a session event with optional targeted recipients.
type Event struct {
	Kind       EventKind
	Payload    any
	Recipients []string // user IDs; empty means broadcast to the room
}

// RoomStatePayload is the derived snapshot broadcast after every mutation.
type RoomStatePayload struct {
	Code        string
	Started     bool
	Auto        bool
	Paused      bool
	Players     []string // display names in join order
	CalledCount int
	Remaining   int
	HostID      string
	CurrentCard string // empty when no card has been called
}

// BoardDealtPayload carries a freshly dealt board to one player.
type BoardDealtPayload struct {
	UserID string
	Board  []string
}

// CardRevealedPayload announces the card at the cursor after a step. Card is
// empty when stepping back past the first card of the deck.
type CardRevealedPayload struct {
	Card        string
	CalledCount int
	Remaining   int
}

// WinnerDeclaredPayload names a verified winner to the whole room.
type WinnerDeclaredPayload struct {
	UserID string
	Name   string
}

// ClaimDeniedPayload carries the deliberately generic denial reason to the
// claimant only. It never reveals which cards are missing.
type ClaimDeniedPayload struct {
	Reason string
}

// Snapshot derives the broadcastable room state from the session.
func Snapshot(r *domain.Room) RoomStatePayload {
	names := make([]string, 0, len(r.Order))
	for _, id := range r.Order {
		if p, ok := r.Players[id]; ok {
			names = append(names, p.Name)
		}
	}
	return RoomStatePayload{
		Code:        r.Code,
		Started:     r.Started,
		Auto:        r.Auto,
		Paused:      r.Paused,
		Players:     names,
		CalledCount: domain.CalledCount(r),
		Remaining:   domain.Remaining(r),
		HostID:      r.HostID,
		CurrentCard: domain.CurrentCard(r),
	}
}
