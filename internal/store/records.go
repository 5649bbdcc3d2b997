package store

import (
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Depth is the echo encoding depth of a record. It only ever increases.
type Depth string

const (
	DepthShallow Depth = "shallow"
	DepthMedium  Depth = "medium"
	DepthDeep    Depth = "deep"
)

// Rank orders depths for the never-downgrade rule.
func (d Depth) Rank() int {
	switch d {
	case DepthMedium:
		return 1
	case DepthDeep:
		return 2
	}
	return 0
}

// Next returns the depth one step up; deep stays deep.
func (d Depth) Next() Depth {
	switch d {
	case DepthShallow:
		return DepthMedium
	case DepthMedium:
		return DepthDeep
	}
	return DepthDeep
}

// Layer is the memory tier. Records land in SML and are promoted to LML.
type Layer string

const (
	LayerSML Layer = "sml"
	LayerLML Layer = "lml"
)

// Status is the soft lifecycle state. Non-active records stay for audit.
type Status string

const (
	StatusActive    Status = "active"
	StatusForgotten Status = "forgotten"
	StatusMerged    Status = "merged"
)

// MemoryRecord is one stored fact with its lifecycle state.
type MemoryRecord struct {
	ID      string `json:"id"`
	OwnerID string `json:"owner_id"`
	Content string `json:"content"`

	Paraphrase   string   `json:"paraphrase,omitempty"`
	Keywords     []string `json:"keywords,omitempty"`
	Implications []string `json:"implications,omitempty"`
	QuestionForm string   `json:"question_form,omitempty"`
	Depth        Depth    `json:"depth"`

	Layer           Layer   `json:"layer"`
	Strength        float64 `json:"strength"`
	AccessCount     int     `json:"access_count"`
	PromotedAtCount int     `json:"promoted_at_count,omitempty"` // access count at promotion time
	Status          Status  `json:"status"`

	CategoryIDs  []string `json:"category_ids,omitempty"`
	MergedFrom   []string `json:"merged_from,omitempty"`
	SupersededBy string   `json:"superseded_by,omitempty"`
	Supersedes   string   `json:"supersedes,omitempty"`

	Embedding    []float32 `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	LastAccessed time.Time `json:"last_accessed"`
	LastDecayed  time.Time `json:"last_decayed"`
}

// Scope filters a record listing.
type Scope struct {
	OwnerID     string
	Status      Status // empty: active only; "*": any
	Layer       Layer  // empty: any
	CategoryID  string // empty: any
	MinStrength float64
	Limit       int
}

// ClampStrength bounds a strength value to [0,1].
func ClampStrength(s float64) float64 {
	return math.Max(0.0, math.Min(1.0, s))
}

const recordColumns = `id, owner_id, content, paraphrase, keywords, implications,
	question_form, depth, layer, strength, access_count, promoted_at_count, status,
	category_ids, merged_from, superseded_by, supersedes, embedding,
	created_at, last_accessed, last_decayed`

// InsertRecord persists a new record. Strength is clamped on the way in.
func (db *DB) InsertRecord(r *MemoryRecord) error { return insertRecord(db.DB, r) }

// InsertRecord stages a record insert in the transaction.
func (tx *Tx) InsertRecord(r *MemoryRecord) error { return insertRecord(tx.Tx, r) }

func insertRecord(q executor, r *MemoryRecord) error {
	now := time.Now()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	if r.LastAccessed.IsZero() {
		r.LastAccessed = r.CreatedAt
	}
	if r.LastDecayed.IsZero() {
		r.LastDecayed = r.CreatedAt
	}
	if r.Status == "" {
		r.Status = StatusActive
	}
	if r.Layer == "" {
		r.Layer = LayerSML
	}
	r.Strength = ClampStrength(r.Strength)

	_, err := q.Exec(`
		INSERT INTO records (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULLIF(?, ''), NULLIF(?, ''), ?, ?, ?, ?)
	`, r.ID, r.OwnerID, r.Content, r.Paraphrase, marshalList(r.Keywords), marshalList(r.Implications),
		r.QuestionForm, string(r.Depth), string(r.Layer), r.Strength, r.AccessCount, r.PromotedAtCount,
		string(r.Status), marshalList(r.CategoryIDs), marshalList(r.MergedFrom),
		r.SupersededBy, r.Supersedes, encodeVector(r.Embedding),
		r.CreatedAt.UnixMilli(), r.LastAccessed.UnixMilli(), r.LastDecayed.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

// GetRecord loads a record by id regardless of status (audit access).
func (db *DB) GetRecord(id string) (*MemoryRecord, error) { return getRecord(db.DB, id) }

// GetRecord loads a record inside the transaction.
func (tx *Tx) GetRecord(id string) (*MemoryRecord, error) { return getRecord(tx.Tx, id) }

func getRecord(q executor, id string) (*MemoryRecord, error) {
	row := q.QueryRow(`SELECT `+recordColumns+` FROM records WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("record %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return rec, nil
}

// ListRecords returns records matching the scope, strongest first.
func (db *DB) ListRecords(s Scope) ([]MemoryRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM records WHERE owner_id = ?`
	args := []any{s.OwnerID}

	switch s.Status {
	case "*":
	case "":
		query += ` AND status = ?`
		args = append(args, string(StatusActive))
	default:
		query += ` AND status = ?`
		args = append(args, string(s.Status))
	}
	if s.Layer != "" {
		query += ` AND layer = ?`
		args = append(args, string(s.Layer))
	}
	if s.MinStrength > 0 {
		query += ` AND strength >= ?`
		args = append(args, s.MinStrength)
	}
	query += ` ORDER BY strength DESC, last_accessed DESC`
	// The category filter runs in Go, so the SQL limit only applies when no
	// rows will be dropped afterwards.
	if s.Limit > 0 && s.CategoryID == "" {
		query += ` LIMIT ?`
		args = append(args, s.Limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var out []MemoryRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		// Category membership lives in a JSON list; filter in Go.
		if s.CategoryID != "" && !contains(rec.CategoryIDs, s.CategoryID) {
			continue
		}
		out = append(out, *rec)
		if s.Limit > 0 && len(out) == s.Limit {
			break
		}
	}
	return out, rows.Err()
}

// ListOwners returns every owner with at least one record.
func (db *DB) ListOwners() ([]string, error) {
	rows, err := db.Query(`SELECT DISTINCT owner_id FROM records`)
	if err != nil {
		return nil, fmt.Errorf("list owners: %w", err)
	}
	defer rows.Close()

	var owners []string
	for rows.Next() {
		var o string
		if err := rows.Scan(&o); err != nil {
			return nil, err
		}
		owners = append(owners, o)
	}
	return owners, rows.Err()
}

// UpdateDecay writes a record's new strength and decay timestamp.
func (db *DB) UpdateDecay(id string, strength float64, decayedAt time.Time) error {
	return updateDecay(db.DB, id, strength, decayedAt)
}

func (tx *Tx) UpdateDecay(id string, strength float64, decayedAt time.Time) error {
	return updateDecay(tx.Tx, id, strength, decayedAt)
}

func updateDecay(q executor, id string, strength float64, decayedAt time.Time) error {
	_, err := q.Exec(`UPDATE records SET strength = ?, last_decayed = ? WHERE id = ?`,
		ClampStrength(strength), decayedAt.UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("update decay %s: %w", id, err)
	}
	return nil
}

// SetStatus moves a record to a soft lifecycle state, optionally linking the
// record that displaced it.
func (db *DB) SetStatus(id string, status Status, supersededBy string) error {
	return setStatus(db.DB, id, status, supersededBy)
}

func (tx *Tx) SetStatus(id string, status Status, supersededBy string) error {
	return setStatus(tx.Tx, id, status, supersededBy)
}

func setStatus(q executor, id string, status Status, supersededBy string) error {
	_, err := q.Exec(`
		UPDATE records SET status = ?, superseded_by = COALESCE(NULLIF(?, ''), superseded_by)
		WHERE id = ?
	`, string(status), supersededBy, id)
	if err != nil {
		return fmt.Errorf("set status %s: %w", id, err)
	}
	return nil
}

// Promote moves a record to LML, remembering the access count at promotion.
func (db *DB) Promote(id string, atCount int) error { return promote(db.DB, id, atCount) }

func (tx *Tx) Promote(id string, atCount int) error { return promote(tx.Tx, id, atCount) }

func promote(q executor, id string, atCount int) error {
	_, err := q.Exec(`UPDATE records SET layer = ?, promoted_at_count = ? WHERE id = ? AND layer = ?`,
		string(LayerLML), atCount, id, string(LayerSML))
	if err != nil {
		return fmt.Errorf("promote %s: %w", id, err)
	}
	return nil
}

// BoostAccess records a retrieval hit: bump access count, add the strength
// boost, refresh last_accessed.
func (db *DB) BoostAccess(id string, boost float64, now time.Time) error {
	return boostAccess(db.DB, id, boost, now)
}

func (tx *Tx) BoostAccess(id string, boost float64, now time.Time) error {
	return boostAccess(tx.Tx, id, boost, now)
}

func boostAccess(q executor, id string, boost float64, now time.Time) error {
	_, err := q.Exec(`
		UPDATE records
		SET access_count = access_count + 1,
		    strength = MIN(1.0, strength + ?),
		    last_accessed = ?
		WHERE id = ?
	`, boost, now.UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("boost access %s: %w", id, err)
	}
	return nil
}

// UpdateEnrichment writes re-echoed fields. Depth is monotone by contract;
// callers never pass a lower depth.
func (db *DB) UpdateEnrichment(r *MemoryRecord) error { return updateEnrichment(db.DB, r) }

func (tx *Tx) UpdateEnrichment(r *MemoryRecord) error { return updateEnrichment(tx.Tx, r) }

func updateEnrichment(q executor, r *MemoryRecord) error {
	_, err := q.Exec(`
		UPDATE records
		SET paraphrase = ?, keywords = ?, implications = ?, question_form = ?, depth = ?, strength = ?
		WHERE id = ?
	`, r.Paraphrase, marshalList(r.Keywords), marshalList(r.Implications),
		r.QuestionForm, string(r.Depth), ClampStrength(r.Strength), r.ID)
	if err != nil {
		return fmt.Errorf("update enrichment %s: %w", r.ID, err)
	}
	return nil
}

// SetCategories replaces a record's category membership.
func (db *DB) SetCategories(id string, categoryIDs []string) error {
	return setCategories(db.DB, id, categoryIDs)
}

func (tx *Tx) SetCategories(id string, categoryIDs []string) error {
	return setCategories(tx.Tx, id, categoryIDs)
}

func setCategories(q executor, id string, categoryIDs []string) error {
	_, err := q.Exec(`UPDATE records SET category_ids = ? WHERE id = ?`, marshalList(categoryIDs), id)
	if err != nil {
		return fmt.Errorf("set categories %s: %w", id, err)
	}
	return nil
}

// ReassignCategory rewrites membership of every record in a category; used
// when sibling categories merge.
func (db *DB) ReassignCategory(ownerID, fromID, toID string) (int, error) {
	recs, err := db.ListRecords(Scope{OwnerID: ownerID, Status: "*", CategoryID: fromID})
	if err != nil {
		return 0, err
	}
	moved := 0
	for i := range recs {
		ids := replaceID(recs[i].CategoryIDs, fromID, toID)
		if err := db.SetCategories(recs[i].ID, ids); err != nil {
			return moved, err
		}
		moved++
	}
	return moved, nil
}

// ResolveRecord follows the superseded_by chain until it reaches a record
// that is not superseded, so merged ids stay externally addressable.
func (db *DB) ResolveRecord(id string) (*MemoryRecord, error) {
	seen := map[string]bool{}
	for {
		rec, err := db.GetRecord(id)
		if err != nil {
			return nil, err
		}
		if rec.SupersededBy == "" || seen[rec.SupersededBy] {
			return rec, nil
		}
		seen[id] = true
		id = rec.SupersededBy
	}
}

// OwnerStats summarizes one owner's record population.
type OwnerStats struct {
	Total       int            `json:"total"`
	Active      int            `json:"active"`
	SMLCount    int            `json:"sml_count"`
	LMLCount    int            `json:"lml_count"`
	AvgStrength float64        `json:"avg_strength"`
	DepthCounts map[string]int `json:"depth_counts"`
}

// StatsForOwner aggregates counts over active records.
func (db *DB) StatsForOwner(ownerID string) (OwnerStats, error) {
	stats := OwnerStats{DepthCounts: map[string]int{}}

	recs, err := db.ListRecords(Scope{OwnerID: ownerID, Status: "*"})
	if err != nil {
		return stats, err
	}

	var strengthSum float64
	for i := range recs {
		stats.Total++
		if recs[i].Status != StatusActive {
			continue
		}
		stats.Active++
		strengthSum += recs[i].Strength
		if recs[i].Layer == LayerLML {
			stats.LMLCount++
		} else {
			stats.SMLCount++
		}
		stats.DepthCounts[string(recs[i].Depth)]++
	}
	if stats.Active > 0 {
		stats.AvgStrength = strengthSum / float64(stats.Active)
	}
	return stats, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*MemoryRecord, error) {
	var (
		r                              MemoryRecord
		depth, layer, status           string
		keywords, implications         string
		categoryIDs, mergedFrom        string
		supersededBy, supersedes       sql.NullString
		embedding                      []byte
		createdAt, accessed, decayedAt int64
	)
	err := row.Scan(&r.ID, &r.OwnerID, &r.Content, &r.Paraphrase, &keywords, &implications,
		&r.QuestionForm, &depth, &layer, &r.Strength, &r.AccessCount, &r.PromotedAtCount, &status,
		&categoryIDs, &mergedFrom, &supersededBy, &supersedes, &embedding,
		&createdAt, &accessed, &decayedAt)
	if err != nil {
		return nil, err
	}

	r.Depth = Depth(depth)
	r.Layer = Layer(layer)
	r.Status = Status(status)
	r.Keywords = unmarshalList(keywords)
	r.Implications = unmarshalList(implications)
	r.CategoryIDs = unmarshalList(categoryIDs)
	r.MergedFrom = unmarshalList(mergedFrom)
	r.SupersededBy = supersededBy.String
	r.Supersedes = supersedes.String
	r.Embedding = decodeVector(embedding)
	r.CreatedAt = time.UnixMilli(createdAt)
	r.LastAccessed = time.UnixMilli(accessed)
	r.LastDecayed = time.UnixMilli(decayedAt)
	return &r, nil
}

func marshalList(items []string) string {
	if len(items) == 0 {
		return "[]"
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func unmarshalList(data string) []string {
	if data == "" || data == "[]" {
		return nil
	}
	var items []string
	if err := json.Unmarshal([]byte(data), &items); err != nil {
		return nil
	}
	return items
}

func contains(items []string, want string) bool {
	for _, it := range items {
		if it == want {
			return true
		}
	}
	return false
}

func replaceID(items []string, from, to string) []string {
	var out []string
	for _, it := range items {
		if it == from {
			it = to
		}
		if !contains(out, it) {
			out = append(out, it)
		}
	}
	return out
}

// encodeVector packs a float32 slice little-endian for BLOB storage.
func encodeVector(vec []float32) []byte {
	if len(vec) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	if len(buf) == 0 || len(buf)%4 != 0 {
		return nil
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}
