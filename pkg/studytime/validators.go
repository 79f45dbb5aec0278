package studytime

// RecordIntervalPayload represents the request body for recording a
// screen-visible interval.
type RecordIntervalPayload struct {
	StartEpochMs int64 `json:"start_epoch_ms" validate:"required,gt=0"`
	EndEpochMs   int64 `json:"end_epoch_ms" validate:"required,gtfield=StartEpochMs"`
}

// RecordEntryPayload represents the request body for recording an app
// entry. A zero timestamp means now.
type RecordEntryPayload struct {
	EpochMs int64 `json:"epoch_ms" validate:"omitempty,gt=0"`
}

// TimeBonusPayload represents the request body for crediting a time bonus
// to the current day.
type TimeBonusPayload struct {
	BonusMillis int64 `json:"bonus_millis" validate:"required,gt=0"`
}

// ManualBonusPayload represents the request body for crediting a bonus to a
// specific day. A blank day key means today.
type ManualBonusPayload struct {
	BonusMillis int64  `json:"bonus_millis" validate:"required,gt=0"`
	DayKey      string `json:"day_key" validate:"date"`
}
