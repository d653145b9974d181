package domain

import "time"

// Profiling floors and caps.
const (
	MinMessagesForPersonProfile = 5
	MinMessagesForGroupProfile  = 20
	MaxMemoryPoints             = 20
)

// PersonID builds the profile key for a user on a platform
func PersonID(platform, userID string) string {
	return platform + ":" + userID
}

// PersonProfile is a long-lived impression of one user
type PersonProfile struct {
	ID           int64
	PersonID     string
	Platform     string
	UserID       string
	PersonName   string
	NameReason   string
	Nickname     string
	IsKnown      bool
	MemoryPoints []string
	KnowSince    time.Time
	LastKnow     time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AddMemoryPoints appends points and trims FIFO so that at most
// MaxMemoryPoints newest entries remain.
func (p *PersonProfile) AddMemoryPoints(points []string) {
	p.MemoryPoints = append(p.MemoryPoints, points...)
	if len(p.MemoryPoints) > MaxMemoryPoints {
		p.MemoryPoints = p.MemoryPoints[len(p.MemoryPoints)-MaxMemoryPoints:]
	}
}

// GroupProfile is a long-lived impression of one group
type GroupProfile struct {
	ID          int64
	GroupID     string
	Platform    string
	GroupName   string
	Impression  string
	Topic       string
	MemberList  []string
	MemberCount int
	CreateTime  time.Time
	LastActive  time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
