package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// migrations are applied in order at startup. Statements are idempotent so a
// restart against an already-migrated database is a no-op.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            BIGSERIAL PRIMARY KEY,
		address       TEXT        NOT NULL UNIQUE,
		username      TEXT        NOT NULL,
		mirror_status TEXT        NOT NULL DEFAULT 'pending',
		mirror_tx     TEXT,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS rooms (
		id            BIGSERIAL PRIMARY KEY,
		creator_id    BIGINT      NOT NULL REFERENCES users (id),
		name          TEXT        NOT NULL UNIQUE,
		description   TEXT        NOT NULL DEFAULT '',
		type          TEXT        NOT NULL,
		password_hash TEXT,
		logo_url      TEXT        NOT NULL DEFAULT '',
		mirror_status TEXT        NOT NULL DEFAULT 'pending',
		mirror_tx     TEXT,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS user_rooms (
		id         BIGSERIAL PRIMARY KEY,
		user_id    BIGINT      NOT NULL REFERENCES users (id),
		room_id    BIGINT      NOT NULL REFERENCES rooms (id),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		last_visit TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (user_id, room_id)
	)`,

	`CREATE TABLE IF NOT EXISTS memes (
		id            BIGSERIAL PRIMARY KEY,
		creator_id    BIGINT      NOT NULL REFERENCES users (id),
		room_id       BIGINT      NOT NULL REFERENCES rooms (id),
		url           TEXT        NOT NULL,
		likes_count   BIGINT      NOT NULL DEFAULT 0,
		mirror_status TEXT        NOT NULL DEFAULT 'pending',
		mirror_tx     TEXT,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE INDEX IF NOT EXISTS idx_memes_room_created ON memes (room_id, created_at DESC)`,

	`CREATE TABLE IF NOT EXISTS meme_likes (
		id            BIGSERIAL PRIMARY KEY,
		meme_id       BIGINT      NOT NULL REFERENCES memes (id),
		liker_id      BIGINT      NOT NULL REFERENCES users (id),
		mirror_status TEXT        NOT NULL DEFAULT 'pending',
		mirror_tx     TEXT,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (meme_id, liker_id)
	)`,

	// likes_count moves in the same transaction as the like row.
	`CREATE OR REPLACE FUNCTION memefeed_like_counter() RETURNS TRIGGER AS $$
	BEGIN
		IF TG_OP = 'INSERT' THEN
			UPDATE memes SET likes_count = likes_count + 1 WHERE id = NEW.meme_id;
			RETURN NEW;
		ELSIF TG_OP = 'DELETE' THEN
			UPDATE memes SET likes_count = likes_count - 1 WHERE id = OLD.meme_id;
			RETURN OLD;
		END IF;
		RETURN NULL;
	END;
	$$ LANGUAGE plpgsql`,

	`DROP TRIGGER IF EXISTS trg_meme_likes_counter ON meme_likes`,

	`CREATE TRIGGER trg_meme_likes_counter
		AFTER INSERT OR DELETE ON meme_likes
		FOR EACH ROW EXECUTE FUNCTION memefeed_like_counter()`,

	// Committed memes are announced on the new_content channel with the
	// full row so listeners can forward them without a read-back. Keys are
	// spelled out so the pushed entity matches the REST response shape.
	`CREATE OR REPLACE FUNCTION memefeed_notify_new_content() RETURNS TRIGGER AS $$
	BEGIN
		PERFORM pg_notify('new_content', json_build_object(
			'topic', 'new_content',
			'entityType', 'meme',
			'entity', json_build_object(
				'id', NEW.id,
				'creatorId', NEW.creator_id,
				'roomId', NEW.room_id,
				'url', NEW.url,
				'likesCount', NEW.likes_count,
				'mirrorStatus', NEW.mirror_status,
				'mirrorTx', NEW.mirror_tx,
				'createdAt', NEW.created_at
			)
		)::text);
		RETURN NEW;
	END;
	$$ LANGUAGE plpgsql`,

	`DROP TRIGGER IF EXISTS trg_memes_notify ON memes`,

	`CREATE TRIGGER trg_memes_notify
		AFTER INSERT ON memes
		FOR EACH ROW EXECUTE FUNCTION memefeed_notify_new_content()`,
}

// Apply runs all migrations in order against db.
func Apply(ctx context.Context, db *sql.DB) error {
	for i, stmt := range migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
