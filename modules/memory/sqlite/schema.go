package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// migrations[i] upgrades the schema from version i to i+1.
var migrations = [][]string{
	{
		`CREATE TABLE IF NOT EXISTS memories (
			id          TEXT    PRIMARY KEY,
			text        TEXT    NOT NULL,
			memory_type TEXT    NOT NULL,
			student_id  TEXT    NOT NULL DEFAULT '',
			timestamp   INTEGER NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_memories_type ON memories(memory_type)`,
		`CREATE INDEX IF NOT EXISTS idx_memories_student ON memories(student_id)`,

		`CREATE VIRTUAL TABLE IF NOT EXISTS memories_fts USING fts5(
			text,
			content=memories,
			content_rowid=rowid
		)`,

		`CREATE TRIGGER IF NOT EXISTS memories_ai AFTER INSERT ON memories BEGIN
			INSERT INTO memories_fts(rowid, text) VALUES (new.rowid, new.text);
		END`,

		`CREATE TRIGGER IF NOT EXISTS memories_ad AFTER DELETE ON memories BEGIN
			INSERT INTO memories_fts(memories_fts, rowid, text) VALUES ('delete', old.rowid, old.text);
		END`,

		`CREATE TRIGGER IF NOT EXISTS memories_au AFTER UPDATE ON memories BEGIN
			INSERT INTO memories_fts(memories_fts, rowid, text) VALUES ('delete', old.rowid, old.text);
			INSERT INTO memories_fts(rowid, text) VALUES (new.rowid, new.text);
		END`,
	},
	// Thai has no spaces between words, so the word tokenizer indexed
	// whole clauses. Trigrams match inside them.
	{
		`DROP TRIGGER IF EXISTS memories_ai`,
		`DROP TRIGGER IF EXISTS memories_ad`,
		`DROP TRIGGER IF EXISTS memories_au`,
		`DROP TABLE IF EXISTS memories_fts`,

		`CREATE VIRTUAL TABLE memories_fts USING fts5(
			text,
			content=memories,
			content_rowid=rowid,
			tokenize='trigram'
		)`,

		`CREATE TRIGGER memories_ai AFTER INSERT ON memories BEGIN
			INSERT INTO memories_fts(rowid, text) VALUES (new.rowid, new.text);
		END`,

		`CREATE TRIGGER memories_ad AFTER DELETE ON memories BEGIN
			INSERT INTO memories_fts(memories_fts, rowid, text) VALUES ('delete', old.rowid, old.text);
		END`,

		`CREATE TRIGGER memories_au AFTER UPDATE ON memories BEGIN
			INSERT INTO memories_fts(memories_fts, rowid, text) VALUES ('delete', old.rowid, old.text);
			INSERT INTO memories_fts(rowid, text) VALUES (new.rowid, new.text);
		END`,

		`INSERT INTO memories_fts(memories_fts) VALUES ('rebuild')`,
	},
}

// schemaVersion is the version a fully migrated database reports.
var schemaVersion = len(migrations)

// migrate brings the database schema up to schemaVersion. Each step runs in
// its own transaction and is recorded in schema_version.
func migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("sqlite: create schema_version: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("sqlite: read schema version: %w", err)
	}

	for v := current; v < schemaVersion; v++ {
		if err := applyMigration(ctx, db, v+1, migrations[v]); err != nil {
			return err
		}
	}
	return nil
}

func applyMigration(ctx context.Context, db *sql.DB, version int, stmts []string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin migration %d: %w", version, err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite: migration %d: %w\nstatement: %s", version, err, stmt)
		}
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
		return fmt.Errorf("sqlite: record schema version %d: %w", version, err)
	}
	return tx.Commit()
}
