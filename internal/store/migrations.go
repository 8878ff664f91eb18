package store

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered list of all schema migrations.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create sessions",
		SQL: `
			CREATE TABLE sessions (
				id            TEXT PRIMARY KEY,
				key_str       TEXT NOT NULL,
				channel_id    TEXT NOT NULL,
				chat_id       TEXT NOT NULL,
				thread_id     TEXT NOT NULL DEFAULT '',
				sender_id     TEXT NOT NULL DEFAULT '',
				handle        TEXT NOT NULL DEFAULT '',
				turn_count    INTEGER NOT NULL DEFAULT 0,
				created_at    TEXT NOT NULL DEFAULT (datetime('now')),
				last_activity TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE UNIQUE INDEX idx_sessions_key ON sessions (key_str);
			CREATE INDEX idx_sessions_channel ON sessions (channel_id);
			CREATE INDEX idx_sessions_activity ON sessions (last_activity);
		`,
	},
}
