package app

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"loteria/internal/domain"
)

// DefaultPlayerName is used when a participant joins without a display name.
const DefaultPlayerName = "Player"

// claimDeniedReason is intentionally generic so a false claim leaks nothing
// about which cards are still missing.
const claimDeniedReason = "Not yet. Not all of your cards have been called."

var (
	ErrNotHost       = errors.New("actor is not the room host")
	ErrUnknownPlayer = errors.New("player not found in room")
	ErrRoomFull      = errors.New("room is full")
	ErrGameStarted   = errors.New("game already started")
	ErrNotStarted    = errors.New("game not started")
	ErrWrongMode     = errors.New("operation not valid in current pacing mode")
)

// Service contains the room-session use-cases operating on domain state.
// All methods mutate the given room and return the events to dispatch, in
// order. Host-only operations fail with ErrNotHost without touching state;
// the transport layer drops those silently.
type Service struct {
	catalog    []string
	boardSize  int
	maxPlayers int
	rng        *rand.Rand
}

// NewService constructs a Service.
// rng may be nil to use a time-seeded default. The catalog must hold at
// least boardSize distinct cards; anything less is a deployment error.
func NewService(catalog []string, boardSize, maxPlayers int, rng *rand.Rand) (*Service, error) {
	if boardSize <= 0 || len(catalog) < boardSize {
		return nil, fmt.Errorf("catalog holds %d cards, need at least %d", len(catalog), boardSize)
	}
	if maxPlayers <= 0 {
		return nil, fmt.Errorf("max players must be positive, got %d", maxPlayers)
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Service{catalog: catalog, boardSize: boardSize, maxPlayers: maxPlayers, rng: rng}, nil
}

// MaxPlayers returns the configured roster cap.
func (s *Service) MaxPlayers() int { return s.maxPlayers }

// Join adds a participant to the room and deals it a board. The first human
// to join becomes host. A returning participant is let back in even mid-game
// and gets its existing board re-sent.
func (s *Service) Join(r *domain.Room, userID, name string, isBot bool) ([]Event, error) {
	if p, ok := r.Players[userID]; ok {
		// Rejoin after a dropped connection. The board survives.
		return []Event{
			{Kind: EventBoardDealt, Payload: BoardDealtPayload{UserID: userID, Board: p.Board}, Recipients: []string{userID}},
			{Kind: EventRoomState, Payload: Snapshot(r)},
		}, nil
	}
	if r.Started {
		return nil, ErrGameStarted
	}
	if len(r.Players) >= s.maxPlayers {
		return nil, ErrRoomFull
	}

	if name == "" {
		name = DefaultPlayerName
	}
	p := &domain.Player{
		UserID: userID,
		Name:   name,
		Board:  domain.DealBoard(s.catalog, s.boardSize, s.rng),
		IsBot:  isBot,
	}
	domain.AddPlayer(r, p)

	if !domain.IsHumanHost(r) {
		r.HostID = domain.FirstHuman(r)
	}

	return []Event{
		{Kind: EventBoardDealt, Payload: BoardDealtPayload{UserID: userID, Board: p.Board}, Recipients: []string{userID}},
		{Kind: EventRoomState, Payload: Snapshot(r)},
	}, nil
}

// Leave removes a participant. A departing host hands authority to the
// earliest-joined remaining human. The caller is responsible for tearing the
// room down once the roster is empty.
func (s *Service) Leave(r *domain.Room, userID string) ([]Event, error) {
	if _, ok := r.Players[userID]; !ok {
		return nil, ErrUnknownPlayer
	}
	domain.RemovePlayer(r, userID)
	if r.HostID == userID || !domain.IsHumanHost(r) {
		r.HostID = domain.FirstHuman(r)
	}
	if len(r.Players) == 0 {
		return nil, nil
	}
	return []Event{{Kind: EventRoomState, Payload: Snapshot(r)}}, nil
}

// StartGame shuffles a fresh deck and begins calling. Boards are untouched;
// only a full reset redeals them.
func (s *Service) StartGame(r *domain.Room, actorID string) ([]Event, error) {
	if !domain.IsHost(r, actorID) {
		return nil, ErrNotHost
	}
	s.beginGame(r)
	return []Event{
		{Kind: EventGameStarted},
		{Kind: EventRoomState, Payload: Snapshot(r)},
	}, nil
}

// ResetGame starts a completely new game: every current player gets a fresh
// board and the deck is reshuffled from the top.
func (s *Service) ResetGame(r *domain.Room, actorID string) ([]Event, error) {
	if !domain.IsHost(r, actorID) {
		return nil, ErrNotHost
	}

	events := make([]Event, 0, len(r.Order)+2)
	for _, id := range r.Order {
		p, ok := r.Players[id]
		if !ok {
			continue
		}
		p.Board = domain.DealBoard(s.catalog, s.boardSize, s.rng)
		events = append(events, Event{
			Kind:       EventBoardDealt,
			Payload:    BoardDealtPayload{UserID: id, Board: p.Board},
			Recipients: []string{id},
		})
	}

	s.beginGame(r)
	events = append(events,
		Event{Kind: EventGameReset},
		Event{Kind: EventRoomState, Payload: Snapshot(r)},
	)
	return events, nil
}

func (s *Service) beginGame(r *domain.Room) {
	r.Deck = domain.NewDeck(s.catalog, s.rng)
	r.Cursor = -1
	r.Started = true
	r.Paused = false
	r.WinnerID = ""
}

// SetMode switches between automatic and manual calling. The caller predicate
// derives timer state from the room, so no explicit disarm is needed here.
func (s *Service) SetMode(r *domain.Room, actorID string, auto bool) ([]Event, error) {
	if !domain.IsHost(r, actorID) {
		return nil, ErrNotHost
	}
	r.Auto = auto
	return []Event{{Kind: EventRoomState, Payload: Snapshot(r)}}, nil
}

// Pause halts the automatic caller. Idempotent; meaningless in manual mode.
func (s *Service) Pause(r *domain.Room, actorID string) ([]Event, error) {
	if !domain.IsHost(r, actorID) {
		return nil, ErrNotHost
	}
	if !r.Auto {
		return nil, ErrWrongMode
	}
	if r.Paused {
		return nil, nil
	}
	r.Paused = true
	return []Event{
		{Kind: EventDeckPaused},
		{Kind: EventRoomState, Payload: Snapshot(r)},
	}, nil
}

// Resume restarts the automatic caller after a pause. Idempotent.
func (s *Service) Resume(r *domain.Room, actorID string) ([]Event, error) {
	if !domain.IsHost(r, actorID) {
		return nil, ErrNotHost
	}
	if !r.Auto {
		return nil, ErrWrongMode
	}
	if !r.Paused {
		return nil, nil
	}
	r.Paused = false
	return []Event{
		{Kind: EventDeckResumed},
		{Kind: EventRoomState, Payload: Snapshot(r)},
	}, nil
}

// AdvanceNext steps the deck forward one card. Manual mode only.
func (s *Service) AdvanceNext(r *domain.Room, actorID string) ([]Event, error) {
	if !domain.IsHost(r, actorID) {
		return nil, ErrNotHost
	}
	if r.Auto {
		return nil, ErrWrongMode
	}
	if !r.Started {
		return nil, ErrNotStarted
	}
	return s.advance(r), nil
}

// Tick is the automatic-caller equivalent of AdvanceNext, fired by the
// pacing schedule rather than a host request.
func (s *Service) Tick(r *domain.Room) []Event {
	if !domain.CallerActive(r) {
		return nil
	}
	return s.advance(r)
}

// advance moves the cursor forward and emits the reveal. Reaching the last
// card emits the finished notice in the same batch; calling again at the end
// re-emits it without moving the cursor, matching a host mashing "next".
func (s *Service) advance(r *domain.Room) []Event {
	if domain.DeckExhausted(r) {
		return []Event{
			{Kind: EventDeckFinished},
			{Kind: EventRoomState, Payload: Snapshot(r)},
		}
	}
	r.Cursor++
	events := []Event{{
		Kind: EventCardRevealed,
		Payload: CardRevealedPayload{
			Card:        domain.CurrentCard(r),
			CalledCount: domain.CalledCount(r),
			Remaining:   domain.Remaining(r),
		},
	}}
	if domain.DeckExhausted(r) {
		events = append(events, Event{Kind: EventDeckFinished})
	}
	return append(events, Event{Kind: EventRoomState, Payload: Snapshot(r)})
}

// AdvancePrev steps the deck backward one card, un-revealing the current one.
// Stepping back past the first card leaves the deck in its pre-game state.
func (s *Service) AdvancePrev(r *domain.Room, actorID string) ([]Event, error) {
	if !domain.IsHost(r, actorID) {
		return nil, ErrNotHost
	}
	if r.Auto {
		return nil, ErrWrongMode
	}
	if !r.Started {
		return nil, ErrNotStarted
	}
	switch {
	case r.Cursor > 0:
		r.Cursor--
	case r.Cursor == 0:
		r.Cursor = -1
	default:
		return nil, nil
	}
	return []Event{
		{
			Kind: EventCardRevealed,
			Payload: CardRevealedPayload{
				Card:        domain.CurrentCard(r),
				CalledCount: domain.CalledCount(r),
				Remaining:   domain.Remaining(r),
			},
		},
		{Kind: EventRoomState, Payload: Snapshot(r)},
	}, nil
}

// Claim verifies a player's win claim against the called history. A verified
// win parks the automatic caller and announces the winner to the room; a
// false claim answers the claimant alone with a generic denial.
func (s *Service) Claim(r *domain.Room, userID string) ([]Event, error) {
	p, ok := r.Players[userID]
	if !ok {
		return nil, ErrUnknownPlayer
	}

	if !domain.VerifyClaim(r, userID) {
		return []Event{{
			Kind:       EventClaimDenied,
			Payload:    ClaimDeniedPayload{Reason: claimDeniedReason},
			Recipients: []string{userID},
		}}, nil
	}

	if r.Auto {
		r.Paused = true
	}
	r.WinnerID = userID
	return []Event{
		{Kind: EventWinnerDeclared, Payload: WinnerDeclaredPayload{UserID: userID, Name: p.Name}},
		{Kind: EventRoomState, Payload: Snapshot(r)},
	}, nil
}
