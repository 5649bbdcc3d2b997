package store

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "records: memory records with strength, layer, echo fields",
		SQL: `
CREATE TABLE records (
    id                TEXT PRIMARY KEY,
    owner_id          TEXT NOT NULL,
    content           TEXT NOT NULL,

    -- Echo enrichment
    paraphrase        TEXT NOT NULL DEFAULT '',
    keywords          TEXT NOT NULL DEFAULT '[]',
    implications      TEXT NOT NULL DEFAULT '[]',
    question_form     TEXT NOT NULL DEFAULT '',
    depth             TEXT NOT NULL CHECK (depth IN ('shallow', 'medium', 'deep')),

    -- Lifecycle
    layer             TEXT NOT NULL CHECK (layer IN ('sml', 'lml')),
    strength          REAL NOT NULL CHECK (strength >= 0.0 AND strength <= 1.0),
    access_count      INTEGER NOT NULL DEFAULT 0,
    promoted_at_count INTEGER NOT NULL DEFAULT 0,
    status            TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'forgotten', 'merged')),

    -- Organization and provenance
    category_ids      TEXT NOT NULL DEFAULT '[]',
    merged_from       TEXT NOT NULL DEFAULT '[]',
    superseded_by     TEXT,
    supersedes        TEXT,

    embedding         BLOB,
    created_at        INTEGER NOT NULL,
    last_accessed     INTEGER NOT NULL,
    last_decayed      INTEGER NOT NULL
);

CREATE INDEX idx_records_owner        ON records(owner_id);
CREATE INDEX idx_records_owner_status ON records(owner_id, status);
`,
	},
	{
		Version:     2,
		Description: "categories: dynamic hierarchy nodes",
		SQL: `
CREATE TABLE categories (
    id            TEXT PRIMARY KEY,
    owner_id      TEXT NOT NULL,
    name          TEXT NOT NULL,
    parent_id     TEXT,
    depth_level   INTEGER NOT NULL CHECK (depth_level BETWEEN 0 AND 2),
    summary       TEXT NOT NULL DEFAULT '',
    summary_stale INTEGER NOT NULL DEFAULT 0,
    member_count  INTEGER NOT NULL DEFAULT 0,
    strength      REAL NOT NULL CHECK (strength >= 0.0 AND strength <= 1.0),
    embedding     BLOB,
    deleted       INTEGER NOT NULL DEFAULT 0,
    created_at    INTEGER NOT NULL,
    last_used     INTEGER NOT NULL,

    FOREIGN KEY (parent_id) REFERENCES categories(id)
);

CREATE INDEX idx_categories_owner  ON categories(owner_id, deleted);
CREATE INDEX idx_categories_parent ON categories(parent_id);
`,
	},
	{
		Version:     3,
		Description: "history: immutable lifecycle audit log",
		SQL: `
CREATE TABLE history (
    id         TEXT PRIMARY KEY,
    owner_id   TEXT NOT NULL,
    record_id  TEXT NOT NULL,
    event      TEXT NOT NULL,
    detail     TEXT NOT NULL DEFAULT '{}',
    created_at INTEGER NOT NULL
);

CREATE INDEX idx_history_record ON history(record_id);
CREATE INDEX idx_history_owner  ON history(owner_id, created_at DESC);
`,
	},
}
