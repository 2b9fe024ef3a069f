package bot

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
)

// Identity describes one entry in the bot pool. Bots never open connections;
// they exist only as roster members inside a room.
type Identity struct {
	UserID      string `json:"user_id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
}

var (
	identities []Identity
	botIDMap   map[string]bool
	loadOnce   sync.Once
	loadErr    error
	mu         sync.Mutex
)

// LoadIdentities loads the bot profiles from the given path.
func LoadIdentities(path string) error {
	loadOnce.Do(func() {
		data, err := os.ReadFile(path)
		if err != nil {
			loadErr = fmt.Errorf("failed to read bot identities: %w", err)
			return
		}

		if err := json.Unmarshal(data, &identities); err != nil {
			loadErr = fmt.Errorf("failed to unmarshal bot identities: %w", err)
			return
		}

		mu.Lock()
		defer mu.Unlock()
		ensureMaps()
		for _, identity := range identities {
			if identity.UserID != "" {
				mapIdentity(identity)
			}
		}
	})
	return loadErr
}

func ensureMaps() {
	if botIDMap == nil {
		botIDMap = make(map[string]bool)
	}
}

func mapIdentity(identity Identity) {
	botIDMap[identity.UserID] = true
}

// PoolSize returns the number of loaded pool identities. It is the upper
// bound on distinct bots a room can seat from the pool.
func PoolSize() int {
	mu.Lock()
	defer mu.Unlock()
	return len(identities)
}

// GetIdentity returns an identity for a bot by index (mod pool size). When no
// pool is loaded it fabricates one with a fresh unique ID so auto-fill still
// works on an unconfigured server.
func GetIdentity(index int) Identity {
	mu.Lock()
	defer mu.Unlock()
	if len(identities) == 0 {
		identity := Identity{
			UserID:      "bot-" + uuid.NewString(),
			DisplayName: fmt.Sprintf("Bot Player %d", index+1),
		}
		ensureMaps()
		mapIdentity(identity)
		return identity
	}
	return identities[index%len(identities)]
}

// IsBot reports whether the given user ID belongs to the bot pool.
func IsBot(userID string) bool {
	mu.Lock()
	defer mu.Unlock()
	return botIDMap[userID]
}
