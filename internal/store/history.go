package store

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Monotonic entropy keeps ids sortable even within one millisecond.
var (
	ulidMu      sync.Mutex
	ulidEntropy = ulid.Monotonic(rand.Reader, 0)
)

func newHistoryID(now time.Time) string {
	ulidMu.Lock()
	defer ulidMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(now), ulidEntropy).String()
}

// Lifecycle events recorded in the history log.
const (
	EventAdd      = "ADD"
	EventAccess   = "ACCESS"
	EventDecay    = "DECAY"
	EventForget   = "FORGET"
	EventPromote  = "PROMOTE"
	EventReecho   = "REECHO"
	EventConflict = "CONFLICT"
	EventFuse     = "FUSE"
)

// HistoryEntry is one immutable audit entry. Entries are never updated or
// deleted by the core. ULID ids keep the log sortable by creation order.
type HistoryEntry struct {
	ID        string         `json:"id"`
	OwnerID   string         `json:"owner_id"`
	RecordID  string         `json:"record_id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// AppendHistory writes an audit entry.
func (db *DB) AppendHistory(ownerID, recordID, event string, detail map[string]any) error {
	return appendHistory(db.DB, ownerID, recordID, event, detail)
}

// AppendHistory stages an audit entry in the transaction.
func (tx *Tx) AppendHistory(ownerID, recordID, event string, detail map[string]any) error {
	return appendHistory(tx.Tx, ownerID, recordID, event, detail)
}

func appendHistory(q executor, ownerID, recordID, event string, detail map[string]any) error {
	now := time.Now()
	id := newHistoryID(now)

	detailJSON := "{}"
	if len(detail) > 0 {
		b, err := json.Marshal(detail)
		if err != nil {
			return fmt.Errorf("marshal history detail: %w", err)
		}
		detailJSON = string(b)
	}

	_, err := q.Exec(`
		INSERT INTO history (id, owner_id, record_id, event, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, ownerID, recordID, event, detailJSON, now.UnixMilli())
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

// History returns a record's audit entries, oldest first.
func (db *DB) History(recordID string) ([]HistoryEntry, error) {
	rows, err := db.Query(`
		SELECT id, owner_id, record_id, event, detail, created_at
		FROM history WHERE record_id = ? ORDER BY id
	`, recordID)
	if err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}
	defer rows.Close()

	var out []HistoryEntry
	for rows.Next() {
		var (
			e         HistoryEntry
			detail    string
			createdAt int64
		)
		if err := rows.Scan(&e.ID, &e.OwnerID, &e.RecordID, &e.Event, &detail, &createdAt); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		if detail != "" && detail != "{}" {
			json.Unmarshal([]byte(detail), &e.Detail)
		}
		e.CreatedAt = time.UnixMilli(createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}
