package migrations

import (
	"database/sql"
)

// getAllMigrations returns all available migrations
func getAllMigrations() []Migration {
	return []Migration{
		migration1_SyncedUsers(),
		migration2_PrincipalIndex(),
	}
}

// migration1_SyncedUsers creates the table holding synchronized external users
func migration1_SyncedUsers() Migration {
	return Migration{
		Version:     1,
		Description: "Create synced_users table",
		Up: func(tx *sql.Tx) error {
			if _, err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS synced_users (
					id TEXT PRIMARY KEY,
					user_id TEXT UNIQUE NOT NULL,
					principal_name TEXT NOT NULL,
					external_ref TEXT NOT NULL,
					attributes TEXT,
					version INTEGER NOT NULL DEFAULT 1,
					created_at INTEGER NOT NULL,
					updated_at INTEGER NOT NULL,
					last_synced_at INTEGER NOT NULL
				)
			`); err != nil {
				return err
			}
			return nil
		},
	}
}

// migration2_PrincipalIndex indexes principal names for authorization lookups
func migration2_PrincipalIndex() Migration {
	return Migration{
		Version:     2,
		Description: "Index synced_users by principal name",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_synced_users_principal ON synced_users(principal_name)`)
			return err
		},
	}
}
