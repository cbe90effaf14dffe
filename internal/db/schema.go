package db

// SchemaSQL creates all tables. Timestamps are REAL Unix epoch seconds.
const SchemaSQL = `
CREATE TABLE IF NOT EXISTS conversations (
    id           TEXT PRIMARY KEY,
    created_at   REAL NOT NULL,
    last_updated REAL NOT NULL,
    summary      TEXT
);

CREATE TABLE IF NOT EXISTS messages (
    id              TEXT PRIMARY KEY,
    conversation_id TEXT NOT NULL REFERENCES conversations(id),
    role            TEXT NOT NULL CHECK (role IN ('user', 'assistant', 'system')),
    content_type    TEXT NOT NULL DEFAULT 'text'
                    CHECK (content_type IN ('text', 'image', 'audio', 'video', 'file')),
    content         TEXT NOT NULL,
    created_at      REAL NOT NULL,
    updated_at      REAL
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation
    ON messages (conversation_id, created_at);

CREATE TABLE IF NOT EXISTS attachments (
    id         TEXT PRIMARY KEY,
    message_id TEXT NOT NULL REFERENCES messages(id),
    file_name  TEXT NOT NULL,
    file_path  TEXT NOT NULL,
    file_type  TEXT,
    file_size  INTEGER,
    created_at REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_attachments_message ON attachments (message_id);

CREATE TABLE IF NOT EXISTS settings (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    name        TEXT NOT NULL UNIQUE,
    is_default  INTEGER NOT NULL DEFAULT 0,
    provider    TEXT NOT NULL DEFAULT 'openai',
    host        TEXT NOT NULL,
    model_name  TEXT NOT NULL,
    api_key     TEXT NOT NULL DEFAULT '',
    temperature REAL NOT NULL DEFAULT 1.0,
    max_tokens  INTEGER NOT NULL DEFAULT 4096,
    top_p       REAL NOT NULL DEFAULT 0.95,
    created_at  REAL NOT NULL,
    updated_at  REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS system_prompts (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    prompt_name TEXT NOT NULL UNIQUE,
    prompt_text TEXT NOT NULL,
    is_active   INTEGER NOT NULL DEFAULT 0,
    created_at  REAL NOT NULL,
    updated_at  REAL NOT NULL
);
`
