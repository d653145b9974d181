package domain

import (
	"fmt"
	"strings"
	"time"
)

// ChatType represents the chat type
type ChatType string

const (
	ChatTypeGroup   ChatType = "group"
	ChatTypePrivate ChatType = "private"
)

// GroupChatID builds the chat key for a group
func GroupChatID(groupID string) string {
	return "group:" + groupID
}

// UserChatID builds the chat key for a private chat
func UserChatID(userID string) string {
	return "user:" + userID
}

// IsGroupChat checks whether the chat key refers to a group
func IsGroupChat(chatID string) bool {
	return strings.HasPrefix(chatID, "group:")
}

// MessageRecord is an immutable record of one inbound or outbound message
type MessageRecord struct {
	ID           int64
	MessageID    string
	ChatID       string
	UserID       string
	UserNickname string
	UserCardname string
	PlainText    string
	RawMessage   string // original message including CQ codes
	GroupID      string
	Time         time.Time
	IsBotMessage bool
}

// SenderLabel returns the display name for the sender
func (m *MessageRecord) SenderLabel() string {
	if m.UserCardname != "" {
		return m.UserCardname
	}
	if m.UserNickname != "" {
		return m.UserNickname
	}
	return "User_" + m.UserID
}

// FormatLine formats the message as a single transcript line
func (m *MessageRecord) FormatLine(botPlaceholder string) string {
	name := m.SenderLabel()
	if m.IsBotMessage {
		name = botPlaceholder
	}
	return fmt.Sprintf("[%s] %s: %s", m.Time.Format("15:04:05"), name, m.PlainText)
}

// FormatTranscript renders messages as transcript lines, oldest first
func FormatTranscript(messages []*MessageRecord, botPlaceholder string) string {
	var sb strings.Builder
	for _, m := range messages {
		sb.WriteString(m.FormatLine(botPlaceholder))
		sb.WriteString("\n")
	}
	return sb.String()
}
