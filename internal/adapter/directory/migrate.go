package directory

import "database/sql"

// migrate creates the schema if it doesn't exist.
func migrate(db *sql.DB) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS agents (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			role       TEXT NOT NULL,
			provider   TEXT NOT NULL,
			model      TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS hires (
			user_id  TEXT NOT NULL,
			agent_id TEXT NOT NULL REFERENCES agents(id),
			hired_at TEXT NOT NULL,
			PRIMARY KEY (user_id, agent_id)
		);

		CREATE TABLE IF NOT EXISTS usage_log (
			id                INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id           TEXT NOT NULL,
			agent_id          TEXT NOT NULL,
			session_id        TEXT NOT NULL DEFAULT '',
			prompt_tokens     INTEGER NOT NULL DEFAULT 0,
			completion_tokens INTEGER NOT NULL DEFAULT 0,
			total_tokens      INTEGER NOT NULL DEFAULT 0,
			cost              REAL NOT NULL DEFAULT 0,
			created_at        TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_usage_user ON usage_log(user_id);
		CREATE INDEX IF NOT EXISTS idx_hires_user ON hires(user_id);
	`
	_, err := db.Exec(schema)
	return err
}
