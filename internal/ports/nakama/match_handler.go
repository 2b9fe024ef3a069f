package nakama

import (
	"context"
	"database/sql"
	"encoding/json"
	"math/rand"
	"strconv"
	"time"

	"loteria/internal/app"
	"loteria/internal/bot"
	"loteria/internal/config"
	"loteria/internal/domain"
	"loteria/internal/ports"

	"github.com/heroiclabs/nakama-common/runtime"
)

// MatchState holds the authoritative runtime state for one room. One Nakama
// match is one room; the match loop serializes every mutation, so the room
// never observes a half-applied operation.
type MatchState struct {
	Room      *domain.Room
	Presences map[string]runtime.Presence // userID -> presence for targeted messaging
	App       *app.Service
	Economy   ports.EconomyPort

	Tick           int64
	IntervalTicks  int64 // ticks between automatic calls
	NextRevealTick int64 // 0 means the caller is disarmed
	WinPurse       int64

	PendingNames map[string]string // display names stashed at join-attempt time

	BotsEnabled      bool
	BotMinDelay      int64 // ticks a bot waits before shouting
	BotMaxDelay      int64
	BotAutoFillDelay int64 // ticks before a solo human gets bot company
	BotFillCount     int
	Bots             map[string]*bot.Agent
	SoloHumanSince   int64 // tick when a solo human started waiting, 0 if none
	rng              *rand.Rand
}

// NewMatch is the factory function registered with Nakama.
func NewMatch(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule) (runtime.Match, error) {
	return &matchHandler{}, nil
}

type matchHandler struct{}

// MatchInit is called when the room's match is created.
func (mh *matchHandler) MatchInit(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, params map[string]interface{}) (interface{}, int, string) {
	if err := config.LoadGameConfig("data/game_config.json"); err != nil {
		logger.Warn("MatchInit: Could not load game config, using defaults: %v", err)
	}
	if err := bot.LoadIdentities("data/bot_identities.json"); err != nil {
		logger.Warn("MatchInit: Could not load bot identities: %v", err)
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	code, _ := params["code"].(string)
	if code == "" {
		// Match created outside the room RPCs; still give it a usable code.
		code = domain.NewRoomCode(rng)
		logger.Warn("MatchInit: No room code in params, generated %s", code)
	}

	svc, err := app.NewService(config.Cards(), config.BoardSize(), config.MaxPlayers(), rng)
	if err != nil {
		logger.Error("MatchInit: Invalid card catalog configuration: %v", err)
		return nil, 0, ""
	}

	state := &MatchState{
		Room:          domain.NewRoom(code),
		Presences:     make(map[string]runtime.Presence),
		App:           svc,
		Economy:       NewNakamaEconomyAdapter(nk),
		IntervalTicks: int64(config.AutoIntervalSeconds()),
		WinPurse:      config.WinPurseBeans(),
		PendingNames:  make(map[string]string),
		BotFillCount:  config.BotFillCount(),
		Bots:          make(map[string]*bot.Agent),
		rng:           rng,
	}

	// The creator's display name travels in the match setup params so it is
	// already known when their presence joins.
	if creatorID, ok := params["creator_id"].(string); ok && creatorID != "" {
		if creatorName, ok := params["creator_name"].(string); ok {
			state.PendingNames[creatorID] = creatorName
		}
	}

	if env, ok := ctx.Value(runtime.RUNTIME_CTX_ENV).(map[string]string); ok {
		if val, ok := env["loteria_bots_enabled"]; ok {
			state.BotsEnabled = val == "true"
		}
		if val, ok := env["loteria_bot_min_delay_sec"]; ok {
			if i, err := strconv.Atoi(val); err == nil {
				state.BotMinDelay = int64(i)
			}
		}
		if val, ok := env["loteria_bot_max_delay_sec"]; ok {
			if i, err := strconv.Atoi(val); err == nil {
				state.BotMaxDelay = int64(i)
			}
		}
		if val, ok := env["loteria_bot_auto_fill_delay_sec"]; ok {
			if i, err := strconv.Atoi(val); err == nil {
				state.BotAutoFillDelay = int64(i)
			}
		}
	}

	// Defaults if not set
	if state.BotMinDelay == 0 {
		state.BotMinDelay = 1
	}
	if state.BotMaxDelay == 0 {
		state.BotMaxDelay = 3
	}
	if state.BotAutoFillDelay == 0 {
		state.BotAutoFillDelay = 5
	}

	labelBytes, err := json.Marshal(MatchLabel{Code: code, Open: svc.MaxPlayers(), State: "lobby"})
	if err != nil {
		logger.Error("MatchInit: Failed to marshal label: %v", err)
		return nil, 0, ""
	}

	tickRate := 1 // one tick per second; the pacing interval is counted in ticks
	return state, tickRate, string(labelBytes)
}

func (mh *matchHandler) MatchJoinAttempt(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, presence runtime.Presence, metadata map[string]string) (interface{}, bool, string) {
	matchState, ok := state.(*MatchState)
	if !ok {
		return state, false, "state not found"
	}

	userID := presence.GetUserId()

	// Returning participants may rejoin even mid-game.
	if _, exists := matchState.Room.Players[userID]; exists {
		return matchState, true, ""
	}

	if matchState.Room.Started {
		return matchState, false, "game already started"
	}
	if len(matchState.Room.Players) >= matchState.App.MaxPlayers() {
		return matchState, false, "room full"
	}

	if name := metadata["display_name"]; name != "" {
		matchState.PendingNames[userID] = name
	}

	return matchState, true, ""
}

func (mh *matchHandler) MatchJoin(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, presences []runtime.Presence) interface{} {
	matchState, ok := state.(*MatchState)
	if !ok {
		logger.Error("MatchJoin: state not found")
		return state
	}

	for _, p := range presences {
		userID := p.GetUserId()
		matchState.Presences[userID] = p

		name := matchState.PendingNames[userID]
		delete(matchState.PendingNames, userID)
		if name == "" {
			name = p.GetUsername()
		}

		events, err := matchState.App.Join(matchState.Room, userID, name, false)
		if err != nil {
			// JoinAttempt already gated capacity and phase; anything here is a race worth logging.
			logger.Warn("MatchJoin: User %s could not be seated: %v", userID, err)
			continue
		}
		mh.broadcastEvents(ctx, matchState, dispatcher, logger, events)
	}

	mh.updateLabel(matchState, dispatcher, logger)
	return matchState
}

// MatchLeave removes departing participants, re-elects the host when needed
// and tears the room down once no humans remain.
func (mh *matchHandler) MatchLeave(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, presences []runtime.Presence) interface{} {
	matchState, ok := state.(*MatchState)
	if !ok {
		logger.Error("MatchLeave: state not found")
		return state
	}

	for _, p := range presences {
		userID := p.GetUserId()
		delete(matchState.Presences, userID)

		events, err := matchState.App.Leave(matchState.Room, userID)
		if err != nil {
			logger.Warn("MatchLeave: User %s was not in the roster: %v", userID, err)
			continue
		}
		logger.Debug("MatchLeave: User %s left room %s.", userID, matchState.Room.Code)
		mh.broadcastEvents(ctx, matchState, dispatcher, logger, events)
	}

	if domain.FirstHuman(matchState.Room) == "" {
		// Bots alone keep no room alive. Returning nil deletes the match and
		// with it the only tick source, so no timer can outlive the room.
		logger.Info("MatchLeave: Room %s has no humans left, closing.", matchState.Room.Code)
		if err := releaseRoomCode(ctx, nk, matchState.Room.Code); err != nil {
			logger.Warn("MatchLeave: Failed to release code %s: %v", matchState.Room.Code, err)
		}
		return nil
	}

	mh.updateLabel(matchState, dispatcher, logger)
	return matchState
}

func (mh *matchHandler) MatchLoop(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, messages []runtime.MatchData) interface{} {
	matchState, ok := state.(*MatchState)
	if !ok {
		return state
	}

	matchState.Tick = tick

	// Host commands are applied strictly before the pacing tick so a delayed
	// automatic call can never reorder ahead of an earlier manual command.
	for _, msg := range messages {
		mh.handleMessage(ctx, matchState, dispatcher, logger, msg)
	}

	mh.processCaller(ctx, matchState, dispatcher, logger)

	if matchState.BotsEnabled {
		mh.processBots(ctx, matchState, dispatcher, logger)
	}

	return matchState
}

func (mh *matchHandler) handleMessage(ctx context.Context, state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, msg runtime.MatchData) {
	senderID := msg.GetUserId()

	var events []app.Event
	var err error

	switch msg.GetOpCode() {
	case OpStartGame:
		events, err = state.App.StartGame(state.Room, senderID)
	case OpResetGame:
		events, err = state.App.ResetGame(state.Room, senderID)
	case OpSetMode:
		var req setModeMsg
		if jsonErr := json.Unmarshal(msg.GetData(), &req); jsonErr != nil {
			logger.Warn("handleMessage: Invalid set-mode payload from %s: %v", senderID, jsonErr)
			return
		}
		events, err = state.App.SetMode(state.Room, senderID, req.Auto)
	case OpPauseDeck:
		events, err = state.App.Pause(state.Room, senderID)
	case OpResumeDeck:
		events, err = state.App.Resume(state.Room, senderID)
	case OpNextCard:
		events, err = state.App.AdvanceNext(state.Room, senderID)
	case OpPrevCard:
		events, err = state.App.AdvancePrev(state.Room, senderID)
	case OpClaimWin:
		events, err = state.App.Claim(state.Room, senderID)
	default:
		logger.Warn("handleMessage: Unknown opcode %d from %s", msg.GetOpCode(), senderID)
		return
	}

	if err != nil {
		// Unauthorized and wrong-mode operations fail closed: log only, no
		// events, no state change, nothing observable to the sender.
		logger.Warn("handleMessage: Op %d from %s rejected: %v", msg.GetOpCode(), senderID, err)
		return
	}

	mh.broadcastEvents(ctx, state, dispatcher, logger, events)
	mh.updateLabel(state, dispatcher, logger)
}

// processCaller drives the automatic pacing. Armed-ness is re-derived from
// room state on every loop, which makes disarming synchronous with whatever
// mutation changed the state and trivially idempotent.
func (mh *matchHandler) processCaller(ctx context.Context, state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger) {
	if !domain.CallerActive(state.Room) {
		state.NextRevealTick = 0
		return
	}

	if state.NextRevealTick == 0 {
		state.NextRevealTick = state.Tick + state.IntervalTicks
		return
	}

	if state.Tick < state.NextRevealTick {
		return
	}

	events := state.App.Tick(state.Room)
	mh.broadcastEvents(ctx, state, dispatcher, logger, events)

	if domain.CallerActive(state.Room) {
		state.NextRevealTick = state.Tick + state.IntervalTicks
	} else {
		state.NextRevealTick = 0
	}
}

// processBots auto-fills a lonely lobby and lets bot boards shout when they
// complete.
func (mh *matchHandler) processBots(ctx context.Context, state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger) {
	room := state.Room

	if !room.Started && mh.countHumans(room) == 1 && len(room.Players) < state.App.MaxPlayers() {
		if state.SoloHumanSince == 0 {
			state.SoloHumanSince = state.Tick
			logger.Debug("processBots: Solo human detected in %s, starting auto-fill timer.", room.Code)
		}
		if state.Tick-state.SoloHumanSince >= state.BotAutoFillDelay {
			mh.fillWithBots(ctx, state, dispatcher, logger)
			state.SoloHumanSince = 0
		}
	} else {
		state.SoloHumanSince = 0
	}

	if !room.Started {
		return
	}
	for botID, agent := range state.Bots {
		if _, ok := room.Players[botID]; !ok {
			delete(state.Bots, botID)
			continue
		}
		if agent.DecideClaim(room, state.Tick) {
			events, err := state.App.Claim(room, botID)
			if err != nil {
				logger.Error("processBots: Bot %s claim failed: %v", botID, err)
				continue
			}
			logger.Info("processBots: Bot %s shouted loteria in room %s", botID, room.Code)
			mh.broadcastEvents(ctx, state, dispatcher, logger, events)
		}
	}
}

func (mh *matchHandler) fillWithBots(ctx context.Context, state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger) {
	room := state.Room

	// A loaded pool holds finitely many distinct identities; once every one
	// of them is seated no further attempt can make progress, so the loop is
	// bounded by one pass over the pool (or the fill demand when identities
	// are fabricated).
	attempts := state.BotFillCount
	if n := bot.PoolSize(); n > attempts {
		attempts = n
	}

	added := 0
	for i := 0; i < attempts && added < state.BotFillCount && len(room.Players) < state.App.MaxPlayers(); i++ {
		identity := bot.GetIdentity(len(state.Bots) + i)
		if _, taken := room.Players[identity.UserID]; taken {
			continue
		}

		events, err := state.App.Join(room, identity.UserID, identity.DisplayName, true)
		if err != nil {
			logger.Error("processBots: Failed to seat bot %s: %v", identity.UserID, err)
			return
		}
		state.Bots[identity.UserID] = bot.NewAgent(identity.UserID, state.BotMinDelay, state.BotMaxDelay, state.rng)
		logger.Info("processBots: Added bot %s (%s) to room %s", identity.DisplayName, identity.UserID, room.Code)
		mh.broadcastEvents(ctx, state, dispatcher, logger, events)
		added++
	}
	if added > 0 {
		mh.updateLabel(state, dispatcher, logger)
	}
}

func (mh *matchHandler) countHumans(room *domain.Room) int {
	count := 0
	for _, p := range room.Players {
		if !p.IsBot {
			count++
		}
	}
	return count
}

func (mh *matchHandler) broadcastEvents(ctx context.Context, state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, events []app.Event) {
	for _, ev := range events {
		mh.broadcastEvent(ctx, state, dispatcher, logger, ev)
	}
}

// broadcastEvent converts one session event to its wire payload and dispatches
// it, room-wide or to the event's recipients only.
func (mh *matchHandler) broadcastEvent(ctx context.Context, state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, ev app.Event) {
	var opCode int64
	var payload any

	switch ev.Kind {
	case app.EventRoomState:
		opCode = OpRoomState
		payload = toWireRoomState(ev.Payload.(app.RoomStatePayload))
	case app.EventBoardDealt:
		opCode = OpBoardDealt
		p := ev.Payload.(app.BoardDealtPayload)
		payload = boardDealtMsg{Board: p.Board}
	case app.EventGameStarted:
		opCode = OpGameStarted
	case app.EventGameReset:
		opCode = OpGameReset
	case app.EventCardRevealed:
		opCode = OpCardRevealed
		p := ev.Payload.(app.CardRevealedPayload)
		payload = cardRevealedMsg{Card: p.Card, CalledCount: p.CalledCount, Remaining: p.Remaining}
	case app.EventDeckPaused:
		opCode = OpDeckPaused
	case app.EventDeckResumed:
		opCode = OpDeckResumed
	case app.EventDeckFinished:
		opCode = OpDeckFinished
	case app.EventWinnerDeclared:
		opCode = OpWinnerDeclared
		p := ev.Payload.(app.WinnerDeclaredPayload)
		payload = winnerDeclaredMsg{Winner: p.Name, Beans: mh.settleWin(ctx, state, logger, p.UserID)}
	case app.EventClaimDenied:
		opCode = OpClaimDenied
		p := ev.Payload.(app.ClaimDeniedPayload)
		payload = claimDeniedMsg{Reason: p.Reason}
	default:
		logger.Warn("Unknown event kind: %v", ev.Kind)
		return
	}

	var data []byte
	if payload != nil {
		var err error
		data, err = json.Marshal(payload)
		if err != nil {
			logger.Error("Failed to marshal event %v: %v", ev.Kind, err)
			return
		}
	}

	// Determine recipients (default to broadcast).
	var recipients []runtime.Presence
	if len(ev.Recipients) > 0 {
		for _, userID := range ev.Recipients {
			if p, ok := state.Presences[userID]; ok {
				recipients = append(recipients, p)
			}
		}

		// Targeted events whose recipients are not connected (bots, dropped
		// sessions) must not fall through to a room-wide broadcast.
		if len(recipients) == 0 {
			return
		}
	}

	dispatcher.BroadcastMessage(opCode, data, recipients, nil, true)
}

// settleWin credits the bean purse to a human winner and returns their
// resulting balance for the winner announcement. Bots win bragging rights
// only, and a failed settlement reports a zero balance rather than blocking
// the announcement.
func (mh *matchHandler) settleWin(ctx context.Context, state *MatchState, logger runtime.Logger, winnerID string) int64 {
	if state.Economy == nil || state.WinPurse <= 0 || bot.IsBot(winnerID) {
		return 0
	}
	updates := []ports.WalletUpdate{{
		UserID: winnerID,
		Amount: state.WinPurse,
		Metadata: map[string]interface{}{
			"reason":    "loteria_win",
			"room_code": state.Room.Code,
		},
	}}
	if err := state.Economy.UpdateBalances(ctx, updates); err != nil {
		logger.Error("Failed to credit win purse to %s: %v", winnerID, err)
		return 0
	}
	balance, err := state.Economy.GetBalance(ctx, winnerID)
	if err != nil {
		logger.Warn("Could not read balance for winner %s: %v", winnerID, err)
		return 0
	}
	return balance
}

func (mh *matchHandler) updateLabel(state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger) {
	roomState := "lobby"
	if state.Room.Started {
		roomState = "playing"
	}

	open := state.App.MaxPlayers() - len(state.Room.Players)
	if open < 0 {
		open = 0
	}

	labelBytes, err := json.Marshal(MatchLabel{Code: state.Room.Code, Open: open, State: roomState})
	if err != nil {
		logger.Error("UpdateLabel: Failed to marshal: %v", err)
		return
	}
	if err := dispatcher.MatchLabelUpdate(string(labelBytes)); err != nil {
		logger.Error("UpdateLabel: Failed to update: %v", err)
	}
}

func (mh *matchHandler) MatchTerminate(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, reason int) interface{} {
	if matchState, ok := state.(*MatchState); ok {
		if err := releaseRoomCode(ctx, nk, matchState.Room.Code); err != nil {
			logger.Warn("MatchTerminate: Failed to release code %s: %v", matchState.Room.Code, err)
		}
	}
	logger.Debug("MatchTerminate: Match terminated for reason %d", reason)
	return state
}

func (mh *matchHandler) MatchSignal(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, data string) (interface{}, string) {
	return state, ""
}
