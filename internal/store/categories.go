package store

import (
	"database/sql"
	"fmt"
	"time"
)

// CategoryNode is one node in an owner's category hierarchy. Nodes are an
// arena keyed by id with an explicit parent_id; parents are fixed at
// creation, only sibling merges retire nodes.
type CategoryNode struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"owner_id"`
	Name         string    `json:"name"`
	ParentID     string    `json:"parent_id,omitempty"`
	DepthLevel   int       `json:"depth_level"`
	Summary      string    `json:"summary,omitempty"`
	SummaryStale bool      `json:"summary_stale"`
	MemberCount  int       `json:"member_count"`
	Strength     float64   `json:"strength"`
	Embedding    []float32 `json:"-"`
	Deleted      bool      `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	LastUsed     time.Time `json:"last_used"`
}

const categoryColumns = `id, owner_id, name, parent_id, depth_level, summary, summary_stale,
	member_count, strength, embedding, deleted, created_at, last_used`

// InsertCategory persists a new category node.
func (db *DB) InsertCategory(c *CategoryNode) error { return insertCategory(db.DB, c) }

func (tx *Tx) InsertCategory(c *CategoryNode) error { return insertCategory(tx.Tx, c) }

func insertCategory(q executor, c *CategoryNode) error {
	now := time.Now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.LastUsed.IsZero() {
		c.LastUsed = now
	}
	c.Strength = ClampStrength(c.Strength)

	_, err := q.Exec(`
		INSERT INTO categories (`+categoryColumns+`)
		VALUES (?, ?, ?, NULLIF(?, ''), ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.OwnerID, c.Name, c.ParentID, c.DepthLevel, c.Summary, boolInt(c.SummaryStale),
		c.MemberCount, c.Strength, encodeVector(c.Embedding), boolInt(c.Deleted),
		c.CreatedAt.UnixMilli(), c.LastUsed.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert category: %w", err)
	}
	return nil
}

// GetCategory loads a category node by id, including soft-deleted ones.
func (db *DB) GetCategory(id string) (*CategoryNode, error) {
	row := db.QueryRow(`SELECT `+categoryColumns+` FROM categories WHERE id = ?`, id)
	cat, err := scanCategory(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("category %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get category: %w", err)
	}
	return cat, nil
}

// ListCategories returns an owner's live category nodes.
func (db *DB) ListCategories(ownerID string) ([]CategoryNode, error) {
	rows, err := db.Query(`
		SELECT `+categoryColumns+` FROM categories
		WHERE owner_id = ? AND deleted = 0
		ORDER BY depth_level, name
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []CategoryNode
	for rows.Next() {
		cat, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, *cat)
	}
	return out, rows.Err()
}

// UpdateCategory writes the mutable fields of a category node.
func (db *DB) UpdateCategory(c *CategoryNode) error { return updateCategory(db.DB, c) }

func (tx *Tx) UpdateCategory(c *CategoryNode) error { return updateCategory(tx.Tx, c) }

func updateCategory(q executor, c *CategoryNode) error {
	_, err := q.Exec(`
		UPDATE categories
		SET name = ?, summary = ?, summary_stale = ?, member_count = ?, strength = ?,
		    embedding = ?, deleted = ?, last_used = ?
		WHERE id = ?
	`, c.Name, c.Summary, boolInt(c.SummaryStale), c.MemberCount, ClampStrength(c.Strength),
		encodeVector(c.Embedding), boolInt(c.Deleted), c.LastUsed.UnixMilli(), c.ID)
	if err != nil {
		return fmt.Errorf("update category %s: %w", c.ID, err)
	}
	return nil
}

// TouchCategory records category use: refresh last_used and add the access
// boost to its strength.
func (db *DB) TouchCategory(id string, boost float64, now time.Time) error {
	_, err := db.Exec(`
		UPDATE categories
		SET strength = MIN(1.0, strength + ?), last_used = ?
		WHERE id = ?
	`, boost, now.UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("touch category %s: %w", id, err)
	}
	return nil
}

// AddMember adjusts member_count by delta (may be negative, floored at 0).
func (db *DB) AddMember(id string, delta int) error { return addMember(db.DB, id, delta) }

// AddMember stages a member count adjustment in the transaction.
func (tx *Tx) AddMember(id string, delta int) error { return addMember(tx.Tx, id, delta) }

func addMember(q executor, id string, delta int) error {
	_, err := q.Exec(`
		UPDATE categories
		SET member_count = MAX(0, member_count + ?), summary_stale = 1
		WHERE id = ?
	`, delta, id)
	if err != nil {
		return fmt.Errorf("add member %s: %w", id, err)
	}
	return nil
}

func scanCategory(row rowScanner) (*CategoryNode, error) {
	var (
		c                  CategoryNode
		parentID           sql.NullString
		stale, deleted     int
		embedding          []byte
		createdAt, lastUse int64
	)
	err := row.Scan(&c.ID, &c.OwnerID, &c.Name, &parentID, &c.DepthLevel, &c.Summary, &stale,
		&c.MemberCount, &c.Strength, &embedding, &deleted, &createdAt, &lastUse)
	if err != nil {
		return nil, err
	}
	c.ParentID = parentID.String
	c.SummaryStale = stale != 0
	c.Deleted = deleted != 0
	c.Embedding = decodeVector(embedding)
	c.CreatedAt = time.UnixMilli(createdAt)
	c.LastUsed = time.UnixMilli(lastUse)
	return &c, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
