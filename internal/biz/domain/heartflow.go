package domain

import "time"

// Atmosphere is a coarse activity classification of a chat
type Atmosphere string

const (
	AtmosphereSilent  Atmosphere = "silent"
	AtmosphereCalm    Atmosphere = "calm"
	AtmosphereActive  Atmosphere = "active"
	AtmosphereHeated  Atmosphere = "heated"
	AtmosphereChaotic Atmosphere = "chaotic"
)

// Atmosphere classification boundaries (messages per minute over the
// trailing window) and window sizes.
const (
	AtmosphereWindow       = 5 * time.Minute
	FlowWindowSize         = 50
	ParticipantIdleTimeout = 300 * time.Second
	SilentRateCeiling      = 0.5
	CalmRateCeiling        = 2.0
	ActiveRateCeiling      = 5.0
	HeatedRateCeiling      = 10.0
)

// ClassifyAtmosphere buckets a message rate (msgs/min) into an atmosphere
func ClassifyAtmosphere(msgsPerMin float64) Atmosphere {
	switch {
	case msgsPerMin < SilentRateCeiling:
		return AtmosphereSilent
	case msgsPerMin < CalmRateCeiling:
		return AtmosphereCalm
	case msgsPerMin < ActiveRateCeiling:
		return AtmosphereActive
	case msgsPerMin < HeatedRateCeiling:
		return AtmosphereHeated
	default:
		return AtmosphereChaotic
	}
}

// OptimalDelay maps an atmosphere to the suggested pre-reply pause.
// Private chats always use the short delay.
func OptimalDelay(a Atmosphere, isGroup bool) time.Duration {
	if !isGroup {
		return 500 * time.Millisecond
	}
	switch a {
	case AtmosphereSilent:
		return 2 * time.Second
	case AtmosphereCalm:
		return 1500 * time.Millisecond
	case AtmosphereActive:
		return time.Second
	case AtmosphereHeated:
		return 500 * time.Millisecond
	default:
		return 200 * time.Millisecond
	}
}

// FlowMessage is one entry in a chat's rolling HeartFlow window
type FlowMessage struct {
	UserID  string
	Content string
	IsBot   bool
	Time    time.Time
}
