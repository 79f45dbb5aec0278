package points

import (
	"math"
	"strings"
)

// AwardSpec is the payload a learning mode produces when a session
// completes.
type AwardSpec struct {
	ModeID           string
	Difficulty       string
	Points           int64
	AwardedAtEpochMs int64
}

// PendingAward is one queued award awaiting acknowledgement by the remote
// store. The queue holds at most one entry per session id.
type PendingAward struct {
	SessionID        string `json:"session_id"`
	ModeID           string `json:"mode_id"`
	Difficulty       string `json:"difficulty"`
	Points           int64  `json:"points"`
	AwardedAtEpochMs int64  `json:"awarded_at_epoch_ms"`
}

// normalized returns a cleaned copy of the award, or nil when the entry is
// unusable (blank session id or non-positive points). Unusable entries are
// dropped on read rather than surfaced as errors.
func (a PendingAward) normalized() *PendingAward {
	sessionID := strings.TrimSpace(a.SessionID)
	if sessionID == "" {
		return nil
	}
	if a.Points <= 0 {
		return nil
	}
	return &PendingAward{
		SessionID:        sessionID,
		ModeID:           normalizeModeID(a.ModeID),
		Difficulty:       string(NormalizeDifficulty(a.Difficulty)),
		Points:           a.Points,
		AwardedAtEpochMs: max(int64(0), a.AwardedAtEpochMs),
	}
}

func normalizeModeID(modeID string) string {
	trimmed := strings.ToLower(strings.TrimSpace(modeID))
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}

// saturatingAdd adds a non-negative delta to base, pinning at MaxInt64
// instead of wrapping.
func saturatingAdd(base, delta int64) int64 {
	if delta <= 0 {
		return base
	}
	if base > math.MaxInt64-delta {
		return math.MaxInt64
	}
	return base + delta
}
