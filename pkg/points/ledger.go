package points

import (
	"context"
	"strings"
	"sync"

	"github.com/segmentio/encoding/json"
	"github.com/studykeep/studykeep/pkg/prefstore"
	"github.com/uptrace/bun"
)

// Namespace is the preference namespace holding all local point state.
const Namespace = "learning_point_metrics"

const (
	keyTotalPoints       = "total_points"
	keyAwardedSessionIDs = "awarded_session_ids"
	keyPendingAwardsJSON = "pending_awards_json"
)

// Ledger is the local point ledger: an idempotent per-session award book,
// a running total, and the queue of awards not yet acknowledged by the
// remote store. All methods serialize on one mutex; none of them touch the
// network.
type Ledger struct {
	mu    sync.Mutex
	store *prefstore.Store
}

func NewLedger(db *bun.DB) *Ledger {
	return &Ledger{store: prefstore.New(db, Namespace)}
}

// TotalPoints returns the locally known point total.
func (l *Ledger) TotalPoints(ctx context.Context) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.totalPointsLocked(ctx)
}

func (l *Ledger) totalPointsLocked(ctx context.Context) (int64, error) {
	total, err := l.store.Int64(ctx, keyTotalPoints, 0)
	if err != nil {
		return 0, err
	}
	return max(int64(0), total), nil
}

// HasAwardedSession reports whether the session has already been credited
// locally.
func (l *Ledger) HasAwardedSession(ctx context.Context, sessionID string) (bool, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return false, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	awarded, err := l.awardedSessionIDsLocked(ctx)
	if err != nil {
		return false, err
	}
	_, ok := awarded[sessionID]
	return ok, nil
}

// AwardSessionIfNeeded credits the session once. It returns false without
// changing state when the session id is blank, the award carries no points,
// or the session was already credited. Otherwise it bumps the total, marks
// the session awarded, queues the award for the cloud, and persists all
// three in one atomic commit.
func (l *Ledger) AwardSessionIfNeeded(ctx context.Context, sessionID string, spec AwardSpec) (bool, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" || spec.Points <= 0 {
		return false, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	awarded, err := l.awardedSessionIDsLocked(ctx)
	if err != nil {
		return false, err
	}
	if _, ok := awarded[sessionID]; ok {
		return false, nil
	}

	total, err := l.totalPointsLocked(ctx)
	if err != nil {
		return false, err
	}
	pending, err := l.pendingAwardsLocked(ctx)
	if err != nil {
		return false, err
	}

	award := PendingAward{
		SessionID:        sessionID,
		ModeID:           spec.ModeID,
		Difficulty:       spec.Difficulty,
		Points:           spec.Points,
		AwardedAtEpochMs: spec.AwardedAtEpochMs,
	}
	normalized := award.normalized()
	if normalized == nil {
		return false, nil
	}

	awarded[sessionID] = struct{}{}
	pending = upsertPending(pending, *normalized)

	err = l.persistStateLocked(ctx, saturatingAdd(total, normalized.Points), awarded, pending)
	if err != nil {
		return false, err
	}
	return true, nil
}

// MergeCloudTotalPoints reconciles the local total with a cloud value by
// taking the maximum. The local total never decreases here; the cloud copy
// may already include awards another device applied.
func (l *Ledger) MergeCloudTotalPoints(ctx context.Context, cloudTotal int64) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	local, err := l.totalPointsLocked(ctx)
	if err != nil {
		return 0, err
	}
	merged := max(local, max(int64(0), cloudTotal))
	if merged == local {
		return local, nil
	}

	err = l.store.Batch().PutInt64(keyTotalPoints, merged).Commit(ctx)
	if err != nil {
		return 0, err
	}
	return merged, nil
}

// PendingAwards returns the queue of awards awaiting cloud acknowledgement,
// normalized and deduplicated by session id.
func (l *Ledger) PendingAwards(ctx context.Context) ([]PendingAward, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pendingAwardsLocked(ctx)
}

// RemovePendingAwards drains acknowledged session ids from the queue.
func (l *Ledger) RemovePendingAwards(ctx context.Context, sessionIDs map[string]struct{}) error {
	normalized := normalizeIDSet(sessionIDs)
	if len(normalized) == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	pending, err := l.pendingAwardsLocked(ctx)
	if err != nil {
		return err
	}

	remaining := pending[:0]
	for _, award := range pending {
		if _, ok := normalized[award.SessionID]; !ok {
			remaining = append(remaining, award)
		}
	}
	if len(remaining) == len(pending) {
		return nil
	}
	return l.persistPendingLocked(ctx, remaining)
}

// ForgetAwardedSessions removes session ids from the awarded set and the
// pending queue. Used by retention pruning; a forgotten session can be
// credited again if it is ever replayed.
func (l *Ledger) ForgetAwardedSessions(ctx context.Context, sessionIDs map[string]struct{}) error {
	normalized := normalizeIDSet(sessionIDs)
	if len(normalized) == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	awarded, err := l.awardedSessionIDsLocked(ctx)
	if err != nil {
		return err
	}
	pending, err := l.pendingAwardsLocked(ctx)
	if err != nil {
		return err
	}

	changed := false
	for id := range normalized {
		if _, ok := awarded[id]; ok {
			delete(awarded, id)
			changed = true
		}
	}
	remaining := pending[:0]
	for _, award := range pending {
		if _, ok := normalized[award.SessionID]; !ok {
			remaining = append(remaining, award)
		} else {
			changed = true
		}
	}
	if !changed {
		return nil
	}

	encoded, err := json.Marshal(remaining)
	if err != nil {
		return err
	}
	return l.store.Batch().
		PutStringSet(keyAwardedSessionIDs, awarded).
		PutString(keyPendingAwardsJSON, string(encoded)).
		Commit(ctx)
}

// ResetAllPoints wipes the total, the awarded set, and the pending queue.
// Explicit destructive user action only.
func (l *Ledger) ResetAllPoints(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.store.Batch().
		PutInt64(keyTotalPoints, 0).
		Remove(keyAwardedSessionIDs).
		Remove(keyPendingAwardsJSON).
		Commit(ctx)
}

func (l *Ledger) awardedSessionIDsLocked(ctx context.Context) (map[string]struct{}, error) {
	raw, err := l.store.StringSet(ctx, keyAwardedSessionIDs)
	if err != nil {
		return nil, err
	}
	return normalizeIDSet(raw), nil
}

func (l *Ledger) pendingAwardsLocked(ctx context.Context) ([]PendingAward, error) {
	raw, err := l.store.String(ctx, keyPendingAwardsJSON, "")
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	var parsed []PendingAward
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		// Corrupt queue reads as empty rather than failing the caller.
		return nil, nil
	}

	result := make([]PendingAward, 0, len(parsed))
	for _, item := range parsed {
		normalized := item.normalized()
		if normalized == nil {
			continue
		}
		result = upsertPending(result, *normalized)
	}
	return result, nil
}

func (l *Ledger) persistStateLocked(ctx context.Context, totalPoints int64, awarded map[string]struct{}, pending []PendingAward) error {
	encoded, err := json.Marshal(pending)
	if err != nil {
		return err
	}
	return l.store.Batch().
		PutInt64(keyTotalPoints, max(int64(0), totalPoints)).
		PutStringSet(keyAwardedSessionIDs, awarded).
		PutString(keyPendingAwardsJSON, string(encoded)).
		Commit(ctx)
}

func (l *Ledger) persistPendingLocked(ctx context.Context, pending []PendingAward) error {
	encoded, err := json.Marshal(pending)
	if err != nil {
		return err
	}
	return l.store.Batch().PutString(keyPendingAwardsJSON, string(encoded)).Commit(ctx)
}

// upsertPending replaces the entry with the same session id in place, or
// appends. The queue keeps first-seen ordering with last-write-wins values.
func upsertPending(pending []PendingAward, award PendingAward) []PendingAward {
	for i := range pending {
		if pending[i].SessionID == award.SessionID {
			pending[i] = award
			return pending
		}
	}
	return append(pending, award)
}

func normalizeIDSet(ids map[string]struct{}) map[string]struct{} {
	normalized := make(map[string]struct{}, len(ids))
	for id := range ids {
		id = strings.TrimSpace(id)
		if id != "" {
			normalized[id] = struct{}{}
		}
	}
	return normalized
}
