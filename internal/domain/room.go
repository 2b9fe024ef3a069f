package domain

// Player holds the domain state for one roster entry in a room.
type Player struct {
	UserID string
	Name   string
	Board  []string
	IsBot  bool
}

// Room captures the authoritative state for a single room instance.
//
// The deck is a fixed permutation of the catalog plus a cursor; the called
// history is always derived from the cursor rather than stored, so stepping
// backward can never desync the two.
type Room struct {
	Code     string
	HostID   string
	Started  bool
	Auto     bool // automatic (timer-driven) vs. manual (host-stepped) calling
	Paused   bool
	Deck     []string
	Cursor   int // index of the most recently called card, -1 before any call
	Players  map[string]*Player
	Order    []string // user IDs in join order, drives host re-election
	WinnerID string   // set after a verified claim, cleared on start/reset
}

// NewRoom returns an empty room in automatic mode with nothing called.
func NewRoom(code string) *Room {
	return &Room{
		Code:    code,
		Auto:    true,
		Cursor:  -1,
		Players: make(map[string]*Player),
	}
}

// CalledCount returns how many cards have been called so far.
func CalledCount(r *Room) int {
	if len(r.Deck) == 0 || r.Cursor < 0 {
		return 0
	}
	return r.Cursor + 1
}

// Remaining returns how many cards are left in the deck.
func Remaining(r *Room) int {
	return len(r.Deck) - CalledCount(r)
}

// CurrentCard returns the most recently called card, or "" if none.
func CurrentCard(r *Room) string {
	if len(r.Deck) == 0 || r.Cursor < 0 {
		return ""
	}
	return r.Deck[r.Cursor]
}

// CalledCards returns the called history: the deck prefix up to the cursor.
func CalledCards(r *Room) []string {
	return r.Deck[:CalledCount(r)]
}

// DeckExhausted reports whether the cursor sits on the last card.
func DeckExhausted(r *Room) bool {
	return len(r.Deck) > 0 && r.Cursor >= len(r.Deck)-1
}

// CallerActive reports whether the automatic caller should be running.
// This predicate is the single source of truth for "the pacing timer is
// armed"; evaluating it after every mutation makes disarming synchronous
// and idempotent.
func CallerActive(r *Room) bool {
	return r.Started && r.Auto && !r.Paused && !DeckExhausted(r)
}

// IsHost reports whether the given user holds host authority in the room.
func IsHost(r *Room, userID string) bool {
	return r.HostID != "" && r.HostID == userID
}

// AddPlayer inserts the player and records its join-order position.
func AddPlayer(r *Room, p *Player) {
	r.Players[p.UserID] = p
	r.Order = append(r.Order, p.UserID)
}

// RemovePlayer drops the player from the roster and join order.
func RemovePlayer(r *Room, userID string) {
	delete(r.Players, userID)
	for i, id := range r.Order {
		if id == userID {
			r.Order = append(r.Order[:i], r.Order[i+1:]...)
			break
		}
	}
}

// IsHumanHost reports whether the room's host is a human roster member.
func IsHumanHost(r *Room) bool {
	p, ok := r.Players[r.HostID]
	return ok && !p.IsBot
}

// FirstHuman returns the earliest-joined human participant, or "" if the
// roster holds no humans. Host authority never falls to a bot.
func FirstHuman(r *Room) string {
	for _, id := range r.Order {
		if p, ok := r.Players[id]; ok && !p.IsBot {
			return id
		}
	}
	return ""
}

// VerifyClaim reports whether every card on the claimant's board has been
// called. Unknown claimants never win.
func VerifyClaim(r *Room, userID string) bool {
	p, ok := r.Players[userID]
	if !ok || len(p.Board) == 0 {
		return false
	}
	called := make(map[string]struct{}, CalledCount(r))
	for _, card := range CalledCards(r) {
		called[card] = struct{}{}
	}
	for _, card := range p.Board {
		if _, ok := called[card]; !ok {
			return false
		}
	}
	return true
}
