package domain

import "time"

// Sticker kinds extracted from raw messages.
const (
	StickerTypeImage   = "image"
	StickerTypeFace    = "face"
	StickerTypeSticker = "sticker"
	StickerTypeEmoji   = "emoji"
)

// MaxStickerContexts caps the rolling context_list per sticker.
const MaxStickerContexts = 10

// Sticker is a learned non-text expressive element
type Sticker struct {
	ID             int64
	StickerType    string
	StickerID      string
	StickerURL     string
	StickerFile    string
	Situation      string
	Emotion        string
	Meaning        string
	ChatID         string
	ContextList    []string
	Count          int
	LastActiveTime time.Time
	CreateDate     time.Time
	Checked        bool
	Rejected       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// AddContext appends one context line, keeping the newest MaxStickerContexts
func (s *Sticker) AddContext(context string) {
	s.ContextList = append(s.ContextList, context)
	if len(s.ContextList) > MaxStickerContexts {
		s.ContextList = s.ContextList[len(s.ContextList)-MaxStickerContexts:]
	}
}

// StickerMarker is one expressive element found inside a raw message
type StickerMarker struct {
	Type       string
	Identifier string
	URL        string
	File       string
}
