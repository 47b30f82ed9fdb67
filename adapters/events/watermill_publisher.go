package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/chainsona/cpop-sub000/ports"
)

const (
	// LogoutTopic carries sessions ended by the user
	LogoutTopic = "cpop.auth.logout"

	// WalletChangedTopic carries sessions killed because the wallet token named another address
	WalletChangedTopic = "cpop.auth.wallet_changed"
)

// LogoutEvent represents a logout event
type LogoutEvent struct {
	Address   string `json:"address"`
	SessionID string `json:"session_id"`
}

// WalletChangedEvent represents a forced logout after a wallet switch
type WalletChangedEvent struct {
	SessionAddress string `json:"session_address"`
	TokenAddress   string `json:"token_address"`
	SessionID      string `json:"session_id"`
}

// WatermillPublisher implements the EventPublisher interface using Watermill
type WatermillPublisher struct {
	publisher message.Publisher
}

// NewWatermillPublisher creates a new Watermill publisher
func NewWatermillPublisher(publisher message.Publisher) ports.EventPublisher {
	return &WatermillPublisher{publisher: publisher}
}

// PublishLogout publishes a logout event
func (p *WatermillPublisher) PublishLogout(ctx context.Context, address string, sessionID string) error {
	return p.publish(ctx, LogoutTopic, LogoutEvent{
		Address:   address,
		SessionID: sessionID,
	})
}

// PublishWalletChanged publishes a wallet switch event
func (p *WatermillPublisher) PublishWalletChanged(ctx context.Context, sessionAddress, tokenAddress, sessionID string) error {
	return p.publish(ctx, WalletChangedTopic, WalletChangedEvent{
		SessionAddress: sessionAddress,
		TokenAddress:   tokenAddress,
		SessionID:      sessionID,
	})
}

func (p *WatermillPublisher) publish(ctx context.Context, topic string, event interface{}) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}
