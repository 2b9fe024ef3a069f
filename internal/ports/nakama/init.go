package nakama

import (
	"context"
	"database/sql"

	"github.com/heroiclabs/nakama-common/runtime"
)

// InitModule wires RPCs, hooks and the match handler into the Nakama runtime.
func InitModule(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, initializer runtime.Initializer) error {
	if err := RegisterRPCs(initializer); err != nil {
		return err
	}

	if err := initializer.RegisterAfterAuthenticateDevice(AfterAuthenticateDevice); err != nil {
		return err
	}

	if err := initializer.RegisterMatch(MatchNameLoteria, NewMatch); err != nil {
		return err
	}

	logger.Info("Loteria Go module loaded.")
	return nil
}

// RegisterRPCs registers the room registry and voice RPC endpoints.
func RegisterRPCs(initializer runtime.Initializer) error {
	if err := initializer.RegisterRpc(RpcRoomCreate, rpcRoomCreate); err != nil {
		return err
	}
	if err := initializer.RegisterRpc(RpcRoomJoin, rpcRoomJoin); err != nil {
		return err
	}
	if err := initializer.RegisterRpc(RpcRoomList, rpcRoomList); err != nil {
		return err
	}
	return initializer.RegisterRpc(RpcVoiceToken, rpcVoiceToken)
}
