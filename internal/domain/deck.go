package domain

import "math/rand"

// roomCodeAlphabet deliberately omits 0/O and 1/I so codes read unambiguously.
const roomCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// RoomCodeLength is the number of symbols in a room code.
const RoomCodeLength = 4

// NewDeck returns a shuffled copy of the catalog for one game.
func NewDeck(catalog []string, rng *rand.Rand) []string {
	deck := make([]string, len(catalog))
	copy(deck, catalog)
	rng.Shuffle(len(deck), func(i, j int) { deck[i], deck[j] = deck[j], deck[i] })
	return deck
}

// DealBoard draws size distinct cards uniformly at random from the catalog.
// A full-catalog shuffle truncated to size keeps every subset equally likely.
func DealBoard(catalog []string, size int, rng *rand.Rand) []string {
	deck := NewDeck(catalog, rng)
	board := make([]string, size)
	copy(board, deck[:size])
	return board
}

// NewRoomCode returns a random room code of RoomCodeLength symbols.
func NewRoomCode(rng *rand.Rand) string {
	code := make([]byte, RoomCodeLength)
	for i := range code {
		code[i] = roomCodeAlphabet[rng.Intn(len(roomCodeAlphabet))]
	}
	return string(code)
}
