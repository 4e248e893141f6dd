package domain

import "context"

// ProtocolClient is one live user-account connection.
// Every error it returns is either nil, a context error or a *ProtocolError.
type ProtocolClient interface {
	// Connect establishes the connection using the stored session
	Connect(ctx context.Context) error

	// Disconnect disconnects from Telegram.
	// The context controls the timeout for graceful shutdown
	Disconnect(ctx context.Context) error

	// IsConnected checks if client is connected
	IsConnected() bool

	// Self returns the account profile including bio
	Self(ctx context.Context) (*Profile, error)

	// ListGroups returns basic groups and supergroups the account has not left
	ListGroups(ctx context.Context) ([]Group, error)

	// SendMessage sends text with formatting entities to a group
	SendMessage(ctx context.Context, peer Peer, msg Message) error

	// LatestSavedMessage returns the newest note in Saved Messages, nil if there is none
	LatestSavedMessage(ctx context.Context) (*Message, error)
}

// ClientFactory creates protocol clients bound to a persisted account session
type ClientFactory interface {
	NewClient(accountID int64, phone string) (ProtocolClient, error)
}
