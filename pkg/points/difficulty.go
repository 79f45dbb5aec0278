package points

import "strings"

// Difficulty is the canonical difficulty of a learning session. Raw values
// arrive from clients in several spellings; NormalizeDifficulty maps them
// all onto these keys, defaulting to intermediate.
type Difficulty string

const (
	DifficultyBeginner          Difficulty = "beginner"
	DifficultyElementary        Difficulty = "elementary"
	DifficultyIntermediate      Difficulty = "intermediate"
	DifficultyUpperIntermediate Difficulty = "upper-intermediate"
	DifficultyAdvanced          Difficulty = "advanced"
)

var basePoints = map[Difficulty]int64{
	DifficultyBeginner:          5,
	DifficultyElementary:        10,
	DifficultyIntermediate:      20,
	DifficultyUpperIntermediate: 35,
	DifficultyAdvanced:          50,
}

// BasePoints returns the point value a completed session at this difficulty
// is worth before any mode-specific adjustment.
func (d Difficulty) BasePoints() int64 {
	return basePoints[d]
}

func (d Difficulty) String() string {
	return string(d)
}

// NormalizeDifficulty maps a raw difficulty string onto a canonical
// Difficulty. Underscores and spaces are treated as hyphens and unknown
// values fall back to intermediate.
func NormalizeDifficulty(raw string) Difficulty {
	value := strings.ToLower(strings.TrimSpace(raw))
	value = strings.ReplaceAll(value, "_", "-")
	value = strings.ReplaceAll(value, " ", "-")
	if value == "upperintermediate" {
		value = string(DifficultyUpperIntermediate)
	}

	switch Difficulty(value) {
	case DifficultyBeginner, DifficultyElementary, DifficultyUpperIntermediate, DifficultyAdvanced:
		return Difficulty(value)
	default:
		return DifficultyIntermediate
	}
}
