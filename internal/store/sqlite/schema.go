package sqlite

import "database/sql"

// Schema creates the relay tables if they do not exist yet.
const Schema = `
CREATE TABLE IF NOT EXISTS chat_rooms (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	post_id            INTEGER NOT NULL,
	writer             TEXT NOT NULL,
	user               TEXT NOT NULL,
	writer_profile_img TEXT NOT NULL DEFAULT '',
	user_profile_img   TEXT NOT NULL DEFAULT '',
	created_at         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS chat_messages (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	room_id    INTEGER NOT NULL,
	sender     TEXT NOT NULL,
	body       TEXT NOT NULL,
	client_id  TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (room_id) REFERENCES chat_rooms(id)
);

CREATE INDEX IF NOT EXISTS idx_chat_messages_room ON chat_messages(room_id, id DESC);
CREATE INDEX IF NOT EXISTS idx_chat_rooms_writer ON chat_rooms(writer);
CREATE INDEX IF NOT EXISTS idx_chat_rooms_user ON chat_rooms(user);
`

// ApplySchema runs Schema against db.
func ApplySchema(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
