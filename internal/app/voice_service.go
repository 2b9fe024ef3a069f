package app

import (
	"fmt"
	"time"

	"github.com/form3tech-oss/jwt-go"
	"github.com/google/uuid"
)

// VoiceService signs Vivox access tokens so players can talk in their room's
// voice channel while the caller reads cards.
type VoiceService struct {
	voiceSecret string
	voiceIssuer string
	voiceDomain string
}

const (
	VoiceTokenActionLogin = "login"
	VoiceTokenActionJoin  = "join"

	// voiceChannelPrefix namespaces channels so a room code can never collide
	// with other channel names on the same Vivox issuer.
	voiceChannelPrefix = "loteria-"
)

func NewVoiceService(secret, issuer, domain string) *VoiceService {
	return &VoiceService{
		voiceSecret: secret,
		voiceIssuer: issuer,
		voiceDomain: domain,
	}
}

// GenerateToken signs a token for the given action. Join tokens are scoped to
// the voice channel derived from the room code.
func (s *VoiceService) GenerateToken(user, action, roomCode string) (string, error) {
	if s == nil {
		return "", fmt.Errorf("voice service is nil")
	}
	if user == "" {
		return "", fmt.Errorf("user is required")
	}
	if s.voiceSecret == "" || s.voiceIssuer == "" || s.voiceDomain == "" {
		return "", fmt.Errorf("voice config is incomplete")
	}

	userURI := s.userURI(user)
	targetURI, err := s.targetURI(action, roomCode, userURI)
	if err != nil {
		return "", err
	}

	claims := jwt.MapClaims{
		"iss": s.voiceIssuer,
		"sub": user,
		"exp": time.Now().Add(time.Hour * 1).Unix(),
		"vxa": action,
		"vxi": uuid.NewString(),
		"f":   userURI,
		"t":   targetURI,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.voiceSecret))
}

func (s *VoiceService) userURI(user string) string {
	return "sip:." + s.voiceIssuer + "." + user + ".@" + s.voiceDomain
}

func (s *VoiceService) channelURI(roomCode string) string {
	return "sip:confctl-g-" + voiceChannelPrefix + roomCode + "@" + s.voiceDomain
}

func (s *VoiceService) targetURI(action, roomCode, userURI string) (string, error) {
	switch action {
	case VoiceTokenActionLogin:
		return userURI, nil
	case VoiceTokenActionJoin:
		if roomCode == "" {
			return "", fmt.Errorf("room code is required for join tokens")
		}
		return s.channelURI(roomCode), nil
	default:
		return "", fmt.Errorf("unsupported voice action: %s", action)
	}
}
