package ledgermirror

const schema = `
CREATE TABLE IF NOT EXISTS blocks (
	block_index     INTEGER PRIMARY KEY,
	block_id        TEXT NOT NULL UNIQUE,
	parent_id       TEXT NOT NULL,
	contents_hash   TEXT NOT NULL,
	key_images_spent TEXT NOT NULL, -- JSON array of hex key images
	created_at      INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS outputs (
	global_index    INTEGER PRIMARY KEY,
	block_index     INTEGER NOT NULL REFERENCES blocks(block_index),
	public_key      TEXT NOT NULL,
	target_key      TEXT NOT NULL,
	commitment      TEXT NOT NULL,
	masked_value    TEXT NOT NULL, -- hex-encoded uint64, avoids signed-overflow on the wire
	masked_token_id TEXT NOT NULL, -- hex-encoded uint64
	encrypted_hint  BLOB NOT NULL,
	output_index    INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_outputs_block ON outputs(block_index);
CREATE INDEX IF NOT EXISTS idx_outputs_public_key ON outputs(public_key);
`
