package repo

import "context"

// SendResult reports the transport-assigned ID of an outbound message
type SendResult struct {
	MessageID string
}

// TransportRepo sends outbound messages to the chat platform
type TransportRepo interface {
	// SendGroupMessage sends text to a group
	SendGroupMessage(ctx context.Context, groupID, text string) (*SendResult, error)

	// SendPrivateMessage sends text to a user
	SendPrivateMessage(ctx context.Context, userID, text string) (*SendResult, error)
}
