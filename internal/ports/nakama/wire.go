package nakama

import "loteria/internal/app"

// Wire payloads are plain JSON. The match label doubles as the room
// registry's lookup record, queried by the room RPCs.

// MatchLabel is advertised to the match listing service.
type MatchLabel struct {
	Code  string `json:"code"`
	Open  int    `json:"open"`
	State string `json:"state"` // "lobby" | "playing"
}

type roomStateMsg struct {
	Code        string   `json:"code"`
	Started     bool     `json:"started"`
	Auto        bool     `json:"auto"`
	Paused      bool     `json:"paused"`
	Players     []string `json:"players"`
	CalledCount int      `json:"called_count"`
	Remaining   int      `json:"remaining"`
	HostID      string   `json:"host_id"`
	CurrentCard string   `json:"current_card,omitempty"`
}

type cardRevealedMsg struct {
	Card        string `json:"card"`
	CalledCount int    `json:"called_count"`
	Remaining   int    `json:"remaining"`
}

type boardDealtMsg struct {
	Board []string `json:"board"`
}

type winnerDeclaredMsg struct {
	Winner string `json:"winner"`
	Beans  int64  `json:"beans"` // winner's bean balance after the purse, 0 for bots
}

type claimDeniedMsg struct {
	Reason string `json:"reason"`
}

type setModeMsg struct {
	Auto bool `json:"auto"`
}

func toWireRoomState(p app.RoomStatePayload) roomStateMsg {
	return roomStateMsg{
		Code:        p.Code,
		Started:     p.Started,
		Auto:        p.Auto,
		Paused:      p.Paused,
		Players:     p.Players,
		CalledCount: p.CalledCount,
		Remaining:   p.Remaining,
		HostID:      p.HostID,
		CurrentCard: p.CurrentCard,
	}
}
