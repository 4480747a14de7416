package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	uid          INTEGER PRIMARY KEY,
	message_id   TEXT NOT NULL DEFAULT '',
	subject      TEXT NOT NULL DEFAULT '',
	pass_through INTEGER NOT NULL DEFAULT 0 CHECK(pass_through IN (0, 1)),
	reason       TEXT NOT NULL DEFAULT 'none',
	detail       TEXT NOT NULL DEFAULT '',
	archive_path TEXT NOT NULL DEFAULT '',
	run_id       TEXT NOT NULL DEFAULT '',
	processed_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_reason ON messages(reason);
CREATE INDEX IF NOT EXISTS idx_messages_processed_at ON messages(processed_at);
CREATE INDEX IF NOT EXISTS idx_messages_run_id ON messages(run_id);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}
