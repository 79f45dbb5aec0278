package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Document is one document in the authoritative metrics store, addressed by
// a slash-separated path. Fields is a JSON object.
type Document struct {
	bun.BaseModel `bun:"table:documents,alias:d"`

	Path      string    `bun:",pk,notnull" json:"path"`
	Fields    string    `bun:",notnull" json:"fields"`
	UpdatedAt time.Time `bun:",nullzero,notnull,default:current_timestamp" json:"updated_at"`
}
