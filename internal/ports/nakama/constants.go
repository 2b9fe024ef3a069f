package nakama

const (
	// RpcRoomCreate creates a room with a fresh code and returns its match ID.
	RpcRoomCreate = "room_create"
	// RpcRoomJoin resolves a room code to a joinable match ID.
	RpcRoomJoin = "room_join"
	// RpcRoomList returns open lobby rooms for a room browser.
	RpcRoomList = "room_list"
	// RpcVoiceToken signs a voice-channel access token for the caller.
	RpcVoiceToken = "voice_token"

	// MatchNameLoteria is the authoritative match handler name registered with Nakama.
	MatchNameLoteria = "loteria_match"
)

// Op codes for client messages and server events.
const (
	// Client -> Server
	OpStartGame  int64 = 1
	OpResetGame  int64 = 2
	OpSetMode    int64 = 3
	OpPauseDeck  int64 = 4
	OpResumeDeck int64 = 5
	OpNextCard   int64 = 6
	OpPrevCard   int64 = 7
	OpClaimWin   int64 = 8

	// Server -> Client events
	OpRoomState      int64 = 101
	OpBoardDealt     int64 = 102 // sent privately
	OpGameStarted    int64 = 103
	OpGameReset      int64 = 104
	OpCardRevealed   int64 = 105
	OpDeckPaused     int64 = 106
	OpDeckResumed    int64 = 107
	OpDeckFinished   int64 = 108
	OpWinnerDeclared int64 = 109
	OpClaimDenied    int64 = 110 // sent privately
)
