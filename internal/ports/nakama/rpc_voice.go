package nakama

import (
	"context"
	"database/sql"
	"encoding/json"

	"loteria/internal/app"

	"github.com/heroiclabs/nakama-common/runtime"
)

// VoiceTokenRequest is the payload for the voice_token RPC.
type VoiceTokenRequest struct {
	Action   string `json:"action"` // "login" | "join"
	RoomCode string `json:"room_code,omitempty"`
}

// VoiceTokenResponse carries the signed token back to the client.
type VoiceTokenResponse struct {
	Token string `json:"token"`
}

// rpcVoiceToken signs a voice access token for the calling user. Join tokens
// are scoped to the voice channel of the given room code.
func rpcVoiceToken(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	userID, _ := ctx.Value(runtime.RUNTIME_CTX_USER_ID).(string)
	if userID == "" {
		return "", runtime.NewError("unauthenticated", 16) // UNAUTHENTICATED
	}

	var req VoiceTokenRequest
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		return "", runtime.NewError("invalid payload", 3) // INVALID_ARGUMENT
	}

	var issuer, secret, domain string
	if env, ok := ctx.Value(runtime.RUNTIME_CTX_ENV).(map[string]string); ok {
		issuer = env["voice_issuer"]
		secret = env["voice_secret"]
		domain = env["voice_domain"]
	}
	if issuer == "" || secret == "" || domain == "" {
		logger.Warn("rpcVoiceToken: Voice credentials missing from env.")
		return "", runtime.NewError("voice not configured", 13) // INTERNAL
	}

	svc := app.NewVoiceService(secret, issuer, domain)
	token, err := svc.GenerateToken(userID, req.Action, req.RoomCode)
	if err != nil {
		logger.Error("rpcVoiceToken: Failed to generate token: %v", err)
		return "", runtime.NewError("invalid payload", 3)
	}

	b, _ := json.Marshal(VoiceTokenResponse{Token: token})
	return string(b), nil
}
