package protocol

import "time"

// Default TTLs by message category. Telemetry goes stale fastest.
var defaultTTLs = map[string]time.Duration{
	TypeRobotTelemetry: 30 * time.Second,
	TypeRobotEvent:     2 * time.Minute,

	TypeEmergencyStop: 10 * time.Minute,

	TypeScheduleCreated:    24 * time.Hour,
	TypeScheduleUpdated:    24 * time.Hour,
	TypeScheduleCanceled:   24 * time.Hour,
	TypeInspectionCreated:  24 * time.Hour,
	TypeInspectionVerified: 24 * time.Hour,
}

// FallbackTTL is used when no specific TTL is configured.
const FallbackTTL = 10 * time.Minute

// DefaultTTLFor returns the default TTL for a message type.
func DefaultTTLFor(msgType string) time.Duration {
	if ttl, ok := defaultTTLs[msgType]; ok {
		return ttl
	}
	return FallbackTTL
}

// IsExpired returns true if the envelope has passed its expiry time.
func IsExpired(env *Envelope) bool {
	return expired(env.ExpiresAt)
}

// IsExpiredHeader checks expiry using only the raw header.
func IsExpiredHeader(hdr *RawHeader) bool {
	return expired(hdr.ExpiresAt)
}

func expired(at time.Time) bool {
	if at.IsZero() {
		return false
	}
	return time.Now().UTC().After(at)
}
