package data

import (
	"context"
	"fmt"
	"strconv"

	"github.com/anthropics/ruabot/internal/biz/repo"
	"github.com/anthropics/ruabot/internal/infra/onebot"
)

// botSender is the slice of the OneBot client the transport needs
type botSender interface {
	SendGroupMessage(ctx context.Context, groupID int64, text string) (string, error)
	SendPrivateMessage(ctx context.Context, userID int64, text string) (string, error)
}

// transportRepo adapts the OneBot client to the transport interface.
// Outbound text is CQ-escaped so generated brackets cannot be read as
// message segments.
type transportRepo struct {
	client botSender
}

// NewTransportRepo wraps a connected OneBot client
func NewTransportRepo(client *onebot.Client) repo.TransportRepo {
	return &transportRepo{client: client}
}

func (r *transportRepo) SendGroupMessage(ctx context.Context, groupID, text string) (*repo.SendResult, error) {
	id, err := strconv.ParseInt(groupID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid group id %q: %w", groupID, err)
	}
	msgID, err := r.client.SendGroupMessage(ctx, id, onebot.Escape(text))
	if err != nil {
		return nil, fmt.Errorf("failed to send group message: %w", err)
	}
	return &repo.SendResult{MessageID: msgID}, nil
}

func (r *transportRepo) SendPrivateMessage(ctx context.Context, userID, text string) (*repo.SendResult, error) {
	id, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid user id %q: %w", userID, err)
	}
	msgID, err := r.client.SendPrivateMessage(ctx, id, onebot.Escape(text))
	if err != nil {
		return nil, fmt.Errorf("failed to send private message: %w", err)
	}
	return &repo.SendResult{MessageID: msgID}, nil
}
