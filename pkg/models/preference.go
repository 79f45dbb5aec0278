package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Preference is one typed key/value row in a preference namespace. Values
// are stored JSON-encoded so a single column can carry ints, booleans,
// strings, string sets, and the pending award list.
type Preference struct {
	bun.BaseModel `bun:"table:preferences,alias:p"`

	Namespace string    `bun:",pk,notnull" json:"namespace"`
	Key       string    `bun:",pk,notnull" json:"key"`
	Value     string    `bun:",notnull" json:"value"`
	UpdatedAt time.Time `bun:",nullzero,notnull,default:current_timestamp" json:"updated_at"`
}
