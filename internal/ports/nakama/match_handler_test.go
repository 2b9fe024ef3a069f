package nakama

import (
	"context"
	"encoding/json"
	"testing"

	"loteria/internal/app"
	"loteria/internal/bot"
	"loteria/internal/ports"

	"github.com/heroiclabs/nakama-common/runtime"
)

// noopLogger implements runtime.Logger for tests that only need to satisfy the interface.
type noopLogger struct{}

func (noopLogger) Debug(string, ...interface{}) {}
func (noopLogger) Info(string, ...interface{})  {}
func (noopLogger) Warn(string, ...interface{})  {}
func (noopLogger) Error(string, ...interface{}) {}
func (noopLogger) WithField(string, interface{}) runtime.Logger {
	return noopLogger{}
}
func (noopLogger) WithFields(map[string]interface{}) runtime.Logger {
	return noopLogger{}
}
func (noopLogger) Fields() map[string]interface{} {
	return nil
}

type broadcastCall struct {
	opCode     int64
	data       []byte
	recipients []runtime.Presence
}

// mockDispatcher records match dispatcher calls for assertions.
type mockDispatcher struct {
	broadcasts   []broadcastCall
	labelUpdates []string
}

func (md *mockDispatcher) BroadcastMessage(opCode int64, data []byte, presences []runtime.Presence, sender runtime.Presence, reliable bool) error {
	md.broadcasts = append(md.broadcasts, broadcastCall{
		opCode:     opCode,
		data:       append([]byte(nil), data...),
		recipients: presences,
	})
	return nil
}

func (md *mockDispatcher) BroadcastMessageDeferred(opCode int64, data []byte, presences []runtime.Presence, sender runtime.Presence, reliable bool) error {
	return nil
}

func (md *mockDispatcher) MatchKick(presences []runtime.Presence) error {
	return nil
}

func (md *mockDispatcher) MatchLabelUpdate(label string) error {
	md.labelUpdates = append(md.labelUpdates, label)
	return nil
}

func (md *mockDispatcher) countOp(opCode int64) int {
	n := 0
	for _, b := range md.broadcasts {
		if b.opCode == opCode {
			n++
		}
	}
	return n
}

func (md *mockDispatcher) lastOp(opCode int64) (broadcastCall, bool) {
	for i := len(md.broadcasts) - 1; i >= 0; i-- {
		if md.broadcasts[i].opCode == opCode {
			return md.broadcasts[i], true
		}
	}
	return broadcastCall{}, false
}

// fakePresence is a minimal runtime.Presence for seating test users.
type fakePresence struct {
	userID   string
	username string
}

func (f fakePresence) GetUserId() string                 { return f.userID }
func (f fakePresence) GetSessionId() string              { return "session-" + f.userID }
func (f fakePresence) GetNodeId() string                 { return "node-1" }
func (f fakePresence) GetHidden() bool                   { return false }
func (f fakePresence) GetPersistence() bool              { return false }
func (f fakePresence) GetUsername() string               { return f.username }
func (f fakePresence) GetStatus() string                 { return "" }
func (f fakePresence) GetReason() runtime.PresenceReason { return runtime.PresenceReasonUnknown }

// fakeMatchData is a client message delivered to the match loop.
type fakeMatchData struct {
	fakePresence
	opCode int64
	data   []byte
}

func (f fakeMatchData) GetOpCode() int64      { return f.opCode }
func (f fakeMatchData) GetData() []byte       { return f.data }
func (f fakeMatchData) GetReliable() bool     { return true }
func (f fakeMatchData) GetReceiveTime() int64 { return 0 }

type mockEconomy struct {
	balances map[string]int64
	updates  []ports.WalletUpdate
}

func (me *mockEconomy) GetBalance(ctx context.Context, userID string) (int64, error) {
	return me.balances[userID], nil
}

func (me *mockEconomy) UpdateBalances(ctx context.Context, updates []ports.WalletUpdate) error {
	if me.balances == nil {
		me.balances = make(map[string]int64)
	}
	for _, u := range updates {
		me.balances[u.UserID] += u.Amount
	}
	me.updates = append(me.updates, updates...)
	return nil
}

func init() {
	// Load bot identities for testing.
	if err := bot.LoadIdentities("test_bot_identities.json"); err != nil {
		panic("Failed to load bot identities for tests: " + err.Error())
	}
}

func newTestMatch(t *testing.T) (*matchHandler, *MatchState, *mockDispatcher) {
	t.Helper()
	mh := &matchHandler{}
	params := map[string]interface{}{
		"code":         "ABCD",
		"creator_id":   "u1",
		"creator_name": "Ana",
	}
	raw, tickRate, label := mh.MatchInit(context.Background(), noopLogger{}, nil, nil, params)
	if raw == nil {
		t.Fatal("MatchInit returned nil state")
	}
	if tickRate != 1 {
		t.Fatalf("tick rate = %d, want 1", tickRate)
	}
	var parsed MatchLabel
	if err := json.Unmarshal([]byte(label), &parsed); err != nil {
		t.Fatalf("label %q is not valid JSON: %v", label, err)
	}
	if parsed.Code != "ABCD" || parsed.State != "lobby" {
		t.Fatalf("initial label = %+v, want code ABCD in lobby", parsed)
	}

	state := raw.(*MatchState)
	state.Economy = &mockEconomy{}
	return mh, state, &mockDispatcher{}
}

func seatUser(t *testing.T, mh *matchHandler, state *MatchState, dispatcher *mockDispatcher, userID, username string) {
	t.Helper()
	p := fakePresence{userID: userID, username: username}
	next, allowed, reason := mh.MatchJoinAttempt(context.Background(), noopLogger{}, nil, nil, dispatcher, state.Tick, state, p, nil)
	if !allowed {
		t.Fatalf("join attempt for %s denied: %s", userID, reason)
	}
	mh.MatchJoin(context.Background(), noopLogger{}, nil, nil, dispatcher, state.Tick, next, []runtime.Presence{p})
}

func loop(mh *matchHandler, state *MatchState, dispatcher *mockDispatcher, tick int64, messages ...runtime.MatchData) interface{} {
	return mh.MatchLoop(context.Background(), noopLogger{}, nil, nil, dispatcher, tick, state, messages)
}

func msgFrom(userID string, opCode int64, data []byte) fakeMatchData {
	return fakeMatchData{fakePresence: fakePresence{userID: userID}, opCode: opCode, data: data}
}

func TestMatchJoinSeatsCreatorAsHost(t *testing.T) {
	mh, state, dispatcher := newTestMatch(t)
	seatUser(t, mh, state, dispatcher, "u1", "ana_login")

	if state.Room.HostID != "u1" {
		t.Fatalf("host = %q, want u1", state.Room.HostID)
	}
	// The creator's display name arrived via match params, not their username.
	if got := state.Room.Players["u1"].Name; got != "Ana" {
		t.Fatalf("creator name = %q, want Ana", got)
	}

	board, ok := dispatcher.lastOp(OpBoardDealt)
	if !ok {
		t.Fatal("no board dealt message dispatched")
	}
	if len(board.recipients) != 1 || board.recipients[0].GetUserId() != "u1" {
		t.Fatal("board must be sent to the new player only")
	}
	if _, ok := dispatcher.lastOp(OpRoomState); !ok {
		t.Fatal("no room state broadcast after join")
	}
	if len(dispatcher.labelUpdates) == 0 {
		t.Fatal("label not refreshed after join")
	}
}

func TestMatchJoinFallsBackToUsername(t *testing.T) {
	mh, state, dispatcher := newTestMatch(t)
	seatUser(t, mh, state, dispatcher, "u2", "beto_login")

	if got := state.Room.Players["u2"].Name; got != "beto_login" {
		t.Fatalf("name = %q, want username fallback", got)
	}
}

func TestMatchJoinAttemptGates(t *testing.T) {
	mh, state, dispatcher := newTestMatch(t)
	seatUser(t, mh, state, dispatcher, "u1", "Ana")

	loop(mh, state, dispatcher, 1, msgFrom("u1", OpStartGame, nil))
	if !state.Room.Started {
		t.Fatal("start opcode from host did not start the game")
	}

	_, allowed, reason := mh.MatchJoinAttempt(context.Background(), noopLogger{}, nil, nil, dispatcher, 2, state, fakePresence{userID: "u2"}, nil)
	if allowed || reason != "game already started" {
		t.Fatalf("mid-game join: allowed=%v reason=%q", allowed, reason)
	}

	// A roster member may always come back, even mid-game.
	_, allowed, _ = mh.MatchJoinAttempt(context.Background(), noopLogger{}, nil, nil, dispatcher, 2, state, fakePresence{userID: "u1"}, nil)
	if !allowed {
		t.Fatal("rejoin denied for existing roster member")
	}
}

func TestMatchJoinAttemptRoomFull(t *testing.T) {
	mh, state, dispatcher := newTestMatch(t)
	limit := state.App.MaxPlayers()
	for i := 0; i < limit; i++ {
		seatUser(t, mh, state, dispatcher, string(rune('a'+i)), "")
	}

	_, allowed, reason := mh.MatchJoinAttempt(context.Background(), noopLogger{}, nil, nil, dispatcher, 1, state, fakePresence{userID: "late"}, nil)
	if allowed || reason != "room full" {
		t.Fatalf("full-room join: allowed=%v reason=%q", allowed, reason)
	}
}

func TestMatchJoinAttemptStashesDisplayName(t *testing.T) {
	mh, state, dispatcher := newTestMatch(t)
	metadata := map[string]string{"display_name": "Doña Beto"}
	_, allowed, _ := mh.MatchJoinAttempt(context.Background(), noopLogger{}, nil, nil, dispatcher, 1, state, fakePresence{userID: "u2"}, metadata)
	if !allowed {
		t.Fatal("join attempt denied")
	}
	if got := state.PendingNames["u2"]; got != "Doña Beto" {
		t.Fatalf("pending name = %q", got)
	}
}

func TestNonHostOpcodeIsSilentlyDropped(t *testing.T) {
	mh, state, dispatcher := newTestMatch(t)
	seatUser(t, mh, state, dispatcher, "u1", "Ana")
	seatUser(t, mh, state, dispatcher, "u2", "Beto")
	before := len(dispatcher.broadcasts)

	loop(mh, state, dispatcher, 1, msgFrom("u2", OpStartGame, nil))

	if state.Room.Started {
		t.Fatal("non-host start mutated the room")
	}
	if len(dispatcher.broadcasts) != before {
		t.Fatal("rejected operation must produce no observable output")
	}
}

func TestMatchLoopAutomaticPacing(t *testing.T) {
	mh, state, dispatcher := newTestMatch(t)
	seatUser(t, mh, state, dispatcher, "u1", "Ana")
	state.IntervalTicks = 3

	loop(mh, state, dispatcher, 1, msgFrom("u1", OpStartGame, nil))
	if state.NextRevealTick != 4 {
		t.Fatalf("NextRevealTick = %d after start at tick 1, want 4", state.NextRevealTick)
	}

	loop(mh, state, dispatcher, 2)
	loop(mh, state, dispatcher, 3)
	if got := dispatcher.countOp(OpCardRevealed); got != 0 {
		t.Fatalf("%d cards revealed before the interval elapsed", got)
	}

	loop(mh, state, dispatcher, 4)
	if got := dispatcher.countOp(OpCardRevealed); got != 1 {
		t.Fatalf("%d cards revealed at the interval, want 1", got)
	}
	if state.Room.Cursor != 0 {
		t.Fatalf("cursor = %d after first reveal, want 0", state.Room.Cursor)
	}
	if state.NextRevealTick != 7 {
		t.Fatalf("NextRevealTick = %d after reveal at tick 4, want 7", state.NextRevealTick)
	}
}

func TestMatchLoopPauseDisarmsCaller(t *testing.T) {
	mh, state, dispatcher := newTestMatch(t)
	seatUser(t, mh, state, dispatcher, "u1", "Ana")
	state.IntervalTicks = 2

	loop(mh, state, dispatcher, 1, msgFrom("u1", OpStartGame, nil))
	loop(mh, state, dispatcher, 2, msgFrom("u1", OpPauseDeck, nil))
	if state.NextRevealTick != 0 {
		t.Fatalf("NextRevealTick = %d while paused, want 0", state.NextRevealTick)
	}

	for tick := int64(3); tick < 10; tick++ {
		loop(mh, state, dispatcher, tick)
	}
	if got := dispatcher.countOp(OpCardRevealed); got != 0 {
		t.Fatalf("%d cards revealed while paused", got)
	}

	loop(mh, state, dispatcher, 10, msgFrom("u1", OpResumeDeck, nil))
	loop(mh, state, dispatcher, 11)
	loop(mh, state, dispatcher, 12)
	if got := dispatcher.countOp(OpCardRevealed); got != 1 {
		t.Fatalf("%d cards revealed after resume, want 1", got)
	}
}

func TestMatchLoopCommandsApplyBeforePacing(t *testing.T) {
	mh, state, dispatcher := newTestMatch(t)
	seatUser(t, mh, state, dispatcher, "u1", "Ana")
	state.IntervalTicks = 2

	loop(mh, state, dispatcher, 1, msgFrom("u1", OpStartGame, nil))
	// Pause arrives on the very tick the reveal was due: the command wins.
	loop(mh, state, dispatcher, 3, msgFrom("u1", OpPauseDeck, nil))
	if got := dispatcher.countOp(OpCardRevealed); got != 0 {
		t.Fatal("pacing tick fired ahead of a same-tick pause command")
	}
}

func TestMatchLoopManualStepping(t *testing.T) {
	mh, state, dispatcher := newTestMatch(t)
	seatUser(t, mh, state, dispatcher, "u1", "Ana")

	modeReq, _ := json.Marshal(setModeMsg{Auto: false})
	loop(mh, state, dispatcher, 1, msgFrom("u1", OpSetMode, modeReq))
	loop(mh, state, dispatcher, 2, msgFrom("u1", OpStartGame, nil))
	loop(mh, state, dispatcher, 3, msgFrom("u1", OpNextCard, nil))
	loop(mh, state, dispatcher, 4, msgFrom("u1", OpNextCard, nil))

	if state.Room.Cursor != 1 {
		t.Fatalf("cursor = %d after two manual steps, want 1", state.Room.Cursor)
	}
	call, ok := dispatcher.lastOp(OpCardRevealed)
	if !ok {
		t.Fatal("no card revealed message dispatched")
	}
	var reveal cardRevealedMsg
	if err := json.Unmarshal(call.data, &reveal); err != nil {
		t.Fatalf("reveal payload: %v", err)
	}
	if reveal.Card != state.Room.Deck[1] || reveal.CalledCount != 2 {
		t.Fatalf("reveal = %+v, want second deck card", reveal)
	}

	loop(mh, state, dispatcher, 5, msgFrom("u1", OpPrevCard, nil))
	if state.Room.Cursor != 0 {
		t.Fatalf("cursor = %d after step back, want 0", state.Room.Cursor)
	}

	// Timer must stay disarmed throughout manual play.
	if state.NextRevealTick != 0 {
		t.Fatalf("NextRevealTick = %d in manual mode, want 0", state.NextRevealTick)
	}
}

func TestClaimWinSettlesPurseAndAnnouncesWinner(t *testing.T) {
	mh, state, dispatcher := newTestMatch(t)
	seatUser(t, mh, state, dispatcher, "u1", "Ana")
	seatUser(t, mh, state, dispatcher, "u2", "Beto")
	economy := state.Economy.(*mockEconomy)

	loop(mh, state, dispatcher, 1, msgFrom("u1", OpStartGame, nil))
	state.Room.Cursor = len(state.Room.Deck) - 1 // everything called

	loop(mh, state, dispatcher, 2, msgFrom("u2", OpClaimWin, nil))

	if state.Room.WinnerID != "u2" {
		t.Fatalf("winner = %q, want u2", state.Room.WinnerID)
	}
	call, ok := dispatcher.lastOp(OpWinnerDeclared)
	if !ok {
		t.Fatal("no winner announcement dispatched")
	}
	if len(call.recipients) != 0 {
		t.Fatal("winner announcement must be a room-wide broadcast")
	}
	var winner winnerDeclaredMsg
	if err := json.Unmarshal(call.data, &winner); err != nil {
		t.Fatalf("winner payload: %v", err)
	}
	if winner.Winner != "Beto" {
		t.Fatalf("winner name = %q, want Beto", winner.Winner)
	}
	if winner.Beans != state.WinPurse {
		t.Fatalf("winner beans = %d, want settled purse of %d", winner.Beans, state.WinPurse)
	}

	if len(economy.updates) != 1 {
		t.Fatalf("purse settlements = %d, want 1", len(economy.updates))
	}
	if got := economy.updates[0]; got.UserID != "u2" || got.Amount != state.WinPurse {
		t.Fatalf("settlement = %+v, want %d beans for u2", got, state.WinPurse)
	}

	// Winner parks the automatic caller for good.
	for tick := int64(3); tick < 10; tick++ {
		loop(mh, state, dispatcher, tick)
	}
	if got := dispatcher.countOp(OpCardRevealed); got != 0 {
		t.Fatal("caller kept revealing after the win")
	}
}

func TestFalseClaimAnswersClaimantOnly(t *testing.T) {
	mh, state, dispatcher := newTestMatch(t)
	seatUser(t, mh, state, dispatcher, "u1", "Ana")
	seatUser(t, mh, state, dispatcher, "u2", "Beto")
	economy := state.Economy.(*mockEconomy)

	loop(mh, state, dispatcher, 1, msgFrom("u1", OpStartGame, nil))
	loop(mh, state, dispatcher, 2, msgFrom("u2", OpClaimWin, nil))

	call, ok := dispatcher.lastOp(OpClaimDenied)
	if !ok {
		t.Fatal("no denial dispatched")
	}
	if len(call.recipients) != 1 || call.recipients[0].GetUserId() != "u2" {
		t.Fatal("denial must go to the claimant only")
	}
	if state.Room.WinnerID != "" || len(economy.updates) != 0 {
		t.Fatal("false claim settled a purse or set a winner")
	}
}

func TestMatchLeaveReelectsHostAndClosesEmptyRoom(t *testing.T) {
	mh, state, dispatcher := newTestMatch(t)
	seatUser(t, mh, state, dispatcher, "u1", "Ana")
	seatUser(t, mh, state, dispatcher, "u2", "Beto")

	next := mh.MatchLeave(context.Background(), noopLogger{}, nil, nil, dispatcher, 5, state, []runtime.Presence{fakePresence{userID: "u1"}})
	if next == nil {
		t.Fatal("room with a human left must stay alive")
	}
	if state.Room.HostID != "u2" {
		t.Fatalf("host = %q after departure, want u2", state.Room.HostID)
	}

	next = mh.MatchLeave(context.Background(), noopLogger{}, nil, nil, dispatcher, 6, state, []runtime.Presence{fakePresence{userID: "u2"}})
	if next != nil {
		t.Fatal("emptied room must be torn down")
	}
}

func TestTargetedEventSkipsDisconnectedRecipient(t *testing.T) {
	mh, state, dispatcher := newTestMatch(t)
	seatUser(t, mh, state, dispatcher, "u1", "Ana")
	before := len(dispatcher.broadcasts)

	ev := app.Event{
		Kind:       app.EventClaimDenied,
		Payload:    app.ClaimDeniedPayload{Reason: "nope"},
		Recipients: []string{"ghost"},
	}
	mh.broadcastEvent(context.Background(), state, dispatcher, noopLogger{}, ev)

	if len(dispatcher.broadcasts) != before {
		t.Fatal("targeted event to a disconnected user must not broadcast")
	}
}

func TestProcessBotsFillsSoloLobby(t *testing.T) {
	mh, state, dispatcher := newTestMatch(t)
	seatUser(t, mh, state, dispatcher, "u1", "Ana")
	state.BotsEnabled = true
	state.BotAutoFillDelay = 2
	state.BotFillCount = 2

	loop(mh, state, dispatcher, 1)
	if state.SoloHumanSince != 1 {
		t.Fatalf("SoloHumanSince = %d, want 1", state.SoloHumanSince)
	}

	loop(mh, state, dispatcher, 2)
	loop(mh, state, dispatcher, 3)

	bots := 0
	for _, p := range state.Room.Players {
		if p.IsBot {
			bots++
		}
	}
	if bots != 2 {
		t.Fatalf("bots seated = %d, want 2", bots)
	}
	if state.SoloHumanSince != 0 {
		t.Fatalf("auto-fill timer not reset, got %d", state.SoloHumanSince)
	}
	// Bots never take the host seat.
	if state.Room.HostID != "u1" {
		t.Fatalf("host = %q after auto-fill, want u1", state.Room.HostID)
	}
}

func TestFillWithBotsStopsWhenPoolExhausted(t *testing.T) {
	mh, state, dispatcher := newTestMatch(t)
	seatUser(t, mh, state, dispatcher, "u1", "Ana")
	state.BotsEnabled = true
	state.BotAutoFillDelay = 1
	// Demand more bots than the identity pool can supply; the fill must seat
	// what it has and stop rather than spin on taken identities.
	state.BotFillCount = state.App.MaxPlayers()

	loop(mh, state, dispatcher, 1)
	loop(mh, state, dispatcher, 2)

	bots := 0
	for _, p := range state.Room.Players {
		if p.IsBot {
			bots++
		}
	}
	if bots != bot.PoolSize() {
		t.Fatalf("bots seated = %d, want the whole pool of %d", bots, bot.PoolSize())
	}
	if got := len(state.Room.Players); got != bot.PoolSize()+1 {
		t.Fatalf("roster size = %d, want %d", got, bot.PoolSize()+1)
	}
}

func TestProcessBotsClaimWhenBoardCompletes(t *testing.T) {
	mh, state, dispatcher := newTestMatch(t)
	seatUser(t, mh, state, dispatcher, "u1", "Ana")
	state.BotsEnabled = true

	identity := bot.GetIdentity(0)
	if _, err := state.App.Join(state.Room, identity.UserID, identity.DisplayName, true); err != nil {
		t.Fatalf("seat bot: %v", err)
	}
	state.Bots[identity.UserID] = bot.NewAgent(identity.UserID, 1, 1, state.rng)

	loop(mh, state, dispatcher, 1, msgFrom("u1", OpStartGame, nil))
	state.Room.Cursor = len(state.Room.Deck) - 1
	state.NextRevealTick = 0

	// First loop schedules the shout, the next one fires it.
	loop(mh, state, dispatcher, 2)
	loop(mh, state, dispatcher, 4)

	if state.Room.WinnerID != identity.UserID {
		t.Fatalf("winner = %q, want bot %s", state.Room.WinnerID, identity.UserID)
	}
	// Bots win bragging rights, not beans.
	if economy := state.Economy.(*mockEconomy); len(economy.updates) != 0 {
		t.Fatalf("bot win settled %d purse updates", len(economy.updates))
	}
}

func TestProcessBotsDropsAgentsForDepartedBots(t *testing.T) {
	mh, state, dispatcher := newTestMatch(t)
	seatUser(t, mh, state, dispatcher, "u1", "Ana")
	state.BotsEnabled = true
	state.Bots["gone-bot"] = bot.NewAgent("gone-bot", 1, 1, state.rng)

	loop(mh, state, dispatcher, 1, msgFrom("u1", OpStartGame, nil))
	loop(mh, state, dispatcher, 2)

	if _, ok := state.Bots["gone-bot"]; ok {
		t.Fatal("agent for an absent bot must be dropped")
	}
}
