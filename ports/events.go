package ports

import "context"

// EventPublisher publishes auth events to notify other instances
type EventPublisher interface {
	PublishLogout(ctx context.Context, address string, sessionID string) error
	PublishWalletChanged(ctx context.Context, sessionAddress, tokenAddress, sessionID string) error
}
