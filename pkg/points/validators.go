package points

// AwardSessionPayload represents the request body for awarding a completed
// session. Points defaults to the difficulty's base value when omitted.
type AwardSessionPayload struct {
	SessionID        string `json:"session_id" validate:"required"`
	ModeID           string `json:"mode_id"`
	Difficulty       string `json:"difficulty"`
	Points           int64  `json:"points" validate:"omitempty,gt=0"`
	AwardedAtEpochMs int64  `json:"awarded_at_epoch_ms" validate:"omitempty,gt=0"`
}

// RetentionPayload represents the request body for pruning session history.
type RetentionPayload struct {
	Preset string `json:"preset" validate:"required"`
}
