package nakama

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"loteria/internal/domain"

	"github.com/heroiclabs/nakama-common/api"
	"github.com/heroiclabs/nakama-common/runtime"
)

// maxCodeAttempts bounds the retry-on-collision loop for code generation.
// With a 32^4 code space, exhausting this is effectively a server fault.
const maxCodeAttempts = 16

// roomCodeCollection holds one system-owned marker per active room code.
// Codes are claimed with a conditional write before the match is created, so
// two concurrent creates can never mint the same code; the marker is deleted
// when the room closes.
const roomCodeCollection = "room_codes"

// codeStorage is the slice of runtime.NakamaModule the code reservation needs.
type codeStorage interface {
	StorageWrite(ctx context.Context, writes []*runtime.StorageWrite) ([]*api.StorageObjectAck, error)
	StorageDelete(ctx context.Context, deletes []*runtime.StorageDelete) error
}

// reserveRoomCode claims the code. The "*" version makes the write succeed
// only when no marker exists yet; a version rejection means another create
// holds the code.
func reserveRoomCode(ctx context.Context, nk codeStorage, code string) (bool, error) {
	writes := []*runtime.StorageWrite{{
		Collection:      roomCodeCollection,
		Key:             code,
		Value:           "{}",
		Version:         "*",
		PermissionRead:  runtime.STORAGE_PERMISSION_NO_READ,
		PermissionWrite: runtime.STORAGE_PERMISSION_NO_WRITE,
	}}
	if _, err := nk.StorageWrite(ctx, writes); err != nil {
		if errors.Is(err, runtime.ErrStorageRejectedVersion) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// releaseRoomCode returns the code to the pool on room teardown. Rooms
// created outside the RPC path hold no reservation, so releasing is always
// safe.
func releaseRoomCode(ctx context.Context, nk codeStorage, code string) error {
	if nk == nil || code == "" {
		return nil
	}
	deletes := []*runtime.StorageDelete{{
		Collection: roomCodeCollection,
		Key:        code,
	}}
	return nk.StorageDelete(ctx, deletes)
}

var (
	codeRng   = rand.New(rand.NewSource(time.Now().UnixNano()))
	codeRngMu sync.Mutex
)

func newRoomCode() string {
	codeRngMu.Lock()
	defer codeRngMu.Unlock()
	return domain.NewRoomCode(codeRng)
}

// RoomCreateRequest is the payload for the room_create RPC.
type RoomCreateRequest struct {
	DisplayName string `json:"display_name"`
}

// RoomJoinRequest is the payload for the room_join RPC.
type RoomJoinRequest struct {
	Code string `json:"code"`
}

// RoomAck is the request/response envelope for the room RPCs. Failures are
// answered in-band with ok=false; only internal faults become RPC errors.
type RoomAck struct {
	OK      bool   `json:"ok"`
	Code    string `json:"code,omitempty"`
	MatchID string `json:"match_id,omitempty"`
	Error   string `json:"error,omitempty"`
}

// RoomListEntry is one open room in the room_list RPC response.
type RoomListEntry struct {
	Code       string `json:"code"`
	MatchID    string `json:"match_id"`
	Players    int    `json:"players"`
	MaxPlayers int    `json:"max_players"`
}

func marshalAck(ack RoomAck) string {
	b, _ := json.Marshal(ack)
	return string(b)
}

// rpcRoomCreate creates a room under a fresh non-colliding code and returns
// the match ID the creator's socket should join. The creator becomes sole
// player and host the moment their presence arrives.
func rpcRoomCreate(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	userID, _ := ctx.Value(runtime.RUNTIME_CTX_USER_ID).(string)

	var req RoomCreateRequest
	if payload != "" {
		if err := json.Unmarshal([]byte(payload), &req); err != nil {
			return "", runtime.NewError("invalid payload", 3) // INVALID_ARGUMENT
		}
	}

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code := newRoomCode()

		// Claiming the code before MatchCreate closes the race two concurrent
		// creates would otherwise have between a lookup and the match landing
		// in the listing index.
		reserved, err := reserveRoomCode(ctx, nk, code)
		if err != nil {
			logger.Error("rpcRoomCreate [User:%s]: Failed to reserve code %s: %v", userID, code, err)
			return "", runtime.NewError("internal error", 13) // INTERNAL
		}
		if !reserved {
			continue
		}

		params := map[string]interface{}{
			"code":         code,
			"creator_id":   userID,
			"creator_name": req.DisplayName,
		}
		matchID, err := nk.MatchCreate(ctx, MatchNameLoteria, params)
		if err != nil {
			logger.Error("rpcRoomCreate [User:%s]: Failed to create match: %v", userID, err)
			if relErr := releaseRoomCode(ctx, nk, code); relErr != nil {
				logger.Warn("rpcRoomCreate [User:%s]: Failed to release code %s: %v", userID, code, relErr)
			}
			return "", runtime.NewError("internal error", 13)
		}

		logger.Info("rpcRoomCreate [User:%s]: Created room %s (%s)", userID, code, matchID)
		return marshalAck(RoomAck{OK: true, Code: code, MatchID: matchID}), nil
	}

	logger.Error("rpcRoomCreate [User:%s]: Exhausted %d code attempts", userID, maxCodeAttempts)
	return "", runtime.NewError("internal error", 13)
}

// rpcRoomJoin resolves a room code to its match ID. The authoritative
// started/full checks happen again at join-attempt time; this pre-check just
// gives the client a proper error message instead of a socket rejection.
func rpcRoomJoin(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	var req RoomJoinRequest
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		return "", runtime.NewError("invalid payload", 3)
	}

	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if code == "" {
		return marshalAck(RoomAck{OK: false, Error: "room not found"}), nil
	}

	match, err := findRoomByCode(ctx, nk, code)
	if err != nil {
		logger.Error("rpcRoomJoin: Failed to look up code %s: %v", code, err)
		return "", runtime.NewError("internal error", 13)
	}
	if match == nil {
		return marshalAck(RoomAck{OK: false, Error: "room not found"}), nil
	}

	var label MatchLabel
	if err := json.Unmarshal([]byte(match.GetLabel().GetValue()), &label); err != nil {
		logger.Error("rpcRoomJoin: Bad label on match %s: %v", match.GetMatchId(), err)
		return "", runtime.NewError("internal error", 13)
	}

	if label.State != "lobby" {
		return marshalAck(RoomAck{OK: false, Error: "game already started"}), nil
	}
	if label.Open <= 0 {
		return marshalAck(RoomAck{OK: false, Error: "room full"}), nil
	}

	return marshalAck(RoomAck{OK: true, Code: code, MatchID: match.GetMatchId()}), nil
}

// rpcRoomList returns open lobby rooms for a room browser.
func rpcRoomList(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	limit := 20
	authoritative := true
	query := "+label.state:lobby +label.open:>=1"

	matches, err := nk.MatchList(ctx, limit, authoritative, "", nil, nil, query)
	if err != nil {
		logger.Error("rpcRoomList: Failed to list matches: %v", err)
		return "", runtime.NewError("internal error", 13)
	}

	entries := make([]RoomListEntry, 0, len(matches))
	for _, m := range matches {
		var label MatchLabel
		if err := json.Unmarshal([]byte(m.GetLabel().GetValue()), &label); err != nil {
			continue
		}
		entries = append(entries, RoomListEntry{
			Code:       label.Code,
			MatchID:    m.GetMatchId(),
			Players:    int(m.GetSize()),
			MaxPlayers: label.Open + int(m.GetSize()),
		})
	}

	b, err := json.Marshal(entries)
	if err != nil {
		return "", runtime.NewError("internal error", 13)
	}
	return string(b), nil
}

// findRoomByCode returns the match advertising the given room code, or nil.
func findRoomByCode(ctx context.Context, nk runtime.NakamaModule, code string) (*api.Match, error) {
	limit := 1
	authoritative := true
	query := fmt.Sprintf("+label.code:%s", code)

	matches, err := nk.MatchList(ctx, limit, authoritative, "", nil, nil, query)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, nil
	}
	return matches[0], nil
}
