package ports

import "context"

// WalletUpdate represents a single bean-balance change for a user.
type WalletUpdate struct {
	UserID   string
	Amount   int64
	Metadata map[string]interface{}
}

// EconomyPort defines the interface for managing the bean currency.
type EconomyPort interface {
	// GetBalance retrieves the current bean balance for a user.
	GetBalance(ctx context.Context, userID string) (int64, error)

	// UpdateBalances applies multiple wallet changes.
	// Used to settle the win purse after a verified claim.
	UpdateBalances(ctx context.Context, updates []WalletUpdate) error
}
