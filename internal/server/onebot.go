package server

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/anthropics/ruabot/internal/biz/domain"
	"github.com/anthropics/ruabot/internal/infra/onebot"
	"github.com/anthropics/ruabot/internal/service"
)

// OneBotServer receives OneBot push events and feeds them into the
// message pipeline.
type OneBotServer struct {
	client    *onebot.Client
	handler   *service.HandlerService
	botUserID string
	log       *zap.SugaredLogger
}

// NewOneBotServer creates the server. botUserID is used for mention
// detection and may be empty until the implementation reports it.
func NewOneBotServer(client *onebot.Client, handler *service.HandlerService, botUserID string, log *zap.SugaredLogger) *OneBotServer {
	return &OneBotServer{
		client:    client,
		handler:   handler,
		botUserID: botUserID,
		log:       log,
	}
}

// Start wires the event handler and blocks on the transport loop
func (s *OneBotServer) Start(ctx context.Context) error {
	s.client.OnEvent(func(evt *onebot.Event) {
		s.handleEvent(ctx, evt)
	})
	return s.client.Start(ctx)
}

func (s *OneBotServer) handleEvent(ctx context.Context, evt *onebot.Event) {
	if !evt.IsGroupMessage() && !evt.IsPrivateMessage() {
		return
	}

	// The bot's own QQ number comes with every event; learn it if the
	// config left it empty.
	if s.botUserID == "" && evt.SelfID != 0 {
		s.botUserID = strconv.FormatInt(evt.SelfID, 10)
	}
	userID := strconv.FormatInt(evt.UserID, 10)
	if userID == s.botUserID {
		return
	}

	msg := &service.InboundMessage{
		MessageID:  evt.MessageID.String(),
		UserID:     userID,
		Nickname:   evt.Sender.Nickname,
		Cardname:   evt.Sender.Card,
		PlainText:  onebot.ExtractPlainText(evt.RawMessage),
		RawMessage: evt.RawMessage,
		Time:       time.Unix(evt.Time, 0),
	}

	if evt.IsGroupMessage() {
		msg.IsGroup = true
		msg.GroupID = strconv.FormatInt(evt.GroupID, 10)
		msg.ChatID = domain.GroupChatID(msg.GroupID)
		msg.Mentioned = onebot.MentionsUser(evt.RawMessage, s.botUserID)
	} else {
		msg.ChatID = domain.UserChatID(userID)
	}

	s.log.Debugw("message received",
		"chat", msg.ChatID, "user", userID, "mentioned", msg.Mentioned)

	// Handle asynchronously so the read pump is never blocked by
	// humanization delays or LLM calls.
	go s.handler.HandleMessage(ctx, msg)
}
