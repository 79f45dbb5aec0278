package docstore

import (
	"context"
	"fmt"
)

// Fields is the decoded field map of one document.
type Fields map[string]any

// Store is the authoritative metrics document store. Paths are
// slash-separated; writes inside RunInTx commit atomically or not at all.
type Store interface {
	// Get returns the document's fields. The boolean reports existence.
	Get(ctx context.Context, path string) (Fields, bool, error)
	// Set writes the document. With merge, given fields are overlaid on any
	// existing ones; without, the document is replaced.
	Set(ctx context.Context, path string, fields Fields, merge bool) error
	Delete(ctx context.Context, path string) error
	// DeleteTree removes the document at prefix and every document below it.
	DeleteTree(ctx context.Context, prefix string) error
	// List returns the paths of all documents strictly below prefix.
	List(ctx context.Context, prefix string) ([]string, error)
	// RunInTx runs fn inside one transaction. Reads inside the transaction
	// observe its own writes.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the view of the store inside RunInTx.
type Tx interface {
	Get(ctx context.Context, path string) (Fields, bool, error)
	Set(ctx context.Context, path string, fields Fields, merge bool) error
}

// Document paths for one account's learning metrics.

func UserRoot(uid string) string {
	return fmt.Sprintf("users/%s", uid)
}

func PointsDoc(uid string) string {
	return fmt.Sprintf("users/%s/learning_metrics/points", uid)
}

func SessionDoc(uid, sessionID string) string {
	return fmt.Sprintf("users/%s/learning_metrics/points/sessions/%s", uid, sessionID)
}

func SessionsPrefix(uid string) string {
	return fmt.Sprintf("users/%s/learning_metrics/points/sessions", uid)
}

func StudyTimeDoc(uid string) string {
	return fmt.Sprintf("users/%s/learning_metrics/study_time", uid)
}

// Int64Field reads an integer field, tolerating the float64 a JSON decode
// produces. Missing or non-numeric values yield def.
func Int64Field(fields Fields, key string, def int64) int64 {
	raw, ok := fields[key]
	if !ok {
		return def
	}
	switch v := raw.(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return def
	}
}

// StringField reads a string field, yielding def when missing or not a
// string.
func StringField(fields Fields, key, def string) string {
	raw, ok := fields[key]
	if !ok {
		return def
	}
	if v, ok := raw.(string); ok {
		return v
	}
	return def
}

// StringListField reads a list-of-strings field. Non-string elements are
// dropped; a missing or malformed field yields nil.
func StringListField(fields Fields, key string) []string {
	raw, ok := fields[key]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		result := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				result = append(result, s)
			}
		}
		return result
	default:
		return nil
	}
}
