package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-esi-sso-go/internal/character/entity"
	"github.com/ovaphlow/pitchfork/service-esi-sso-go/pkg/utilities"
)

var ErrNotFound = errors.New("character not found")

// row is the table layout. Times are unix seconds so the same schema works
// on sqlite and postgres.
type row struct {
	CharacterID   string `db:"character_id"`
	CharacterName string `db:"character_name"`
	OwnerHash     string `db:"character_owner_hash"`
	AccessToken   string `db:"access_token"`
	RefreshToken  string `db:"refresh_token"`
	ExpiresAt     int64  `db:"expires_at"`
	UpdatedAt     int64  `db:"updated_at"`
}

// CharacterRepo stores characters in character_info. Tokens are sealed
// before they are written.
type CharacterRepo struct {
	db     *sqlx.DB
	sealer *utilities.Sealer
}

func NewCharacterRepo(db *sqlx.DB, sealer *utilities.Sealer) *CharacterRepo {
	return &CharacterRepo{db: db, sealer: sealer}
}

// EnsureTable creates the character_info table if it does not already exist.
func (r *CharacterRepo) EnsureTable(ctx context.Context) error {
	const tbl = `
	CREATE TABLE IF NOT EXISTS character_info (
		character_id varchar(32) PRIMARY KEY,
		character_name varchar(128) NOT NULL DEFAULT '',
		character_owner_hash varchar(128) NOT NULL DEFAULT '',
		access_token text NOT NULL DEFAULT '',
		refresh_token text NOT NULL DEFAULT '',
		expires_at bigint NOT NULL DEFAULT 0,
		updated_at bigint NOT NULL DEFAULT 0
	)
	`
	if _, err := r.db.ExecContext(ctx, tbl); err != nil {
		return err
	}

	const idx = `
	CREATE INDEX IF NOT EXISTS idx_character_info_owner ON character_info (character_owner_hash)
	`
	if _, err := r.db.ExecContext(ctx, idx); err != nil {
		return err
	}
	return nil
}

// Upsert inserts the character or replaces every column of an existing row.
func (r *CharacterRepo) Upsert(ctx context.Context, c *entity.Character) error {
	rw, err := r.toRow(c)
	if err != nil {
		return err
	}
	const q = `
	INSERT INTO character_info (character_id, character_name, character_owner_hash, access_token, refresh_token, expires_at, updated_at)
	VALUES (:character_id, :character_name, :character_owner_hash, :access_token, :refresh_token, :expires_at, :updated_at)
	ON CONFLICT (character_id) DO UPDATE SET
		character_name = excluded.character_name,
		character_owner_hash = excluded.character_owner_hash,
		access_token = excluded.access_token,
		refresh_token = excluded.refresh_token,
		expires_at = excluded.expires_at,
		updated_at = excluded.updated_at
	`
	_, err = r.db.NamedExecContext(ctx, q, rw)
	return err
}

// UpdateTokens replaces only the token columns. A missing row is not an error.
func (r *CharacterRepo) UpdateTokens(ctx context.Context, characterID, accessToken, refreshToken string, expiresAt time.Time) error {
	at, err := r.sealer.Seal(accessToken)
	if err != nil {
		return err
	}
	rt, err := r.sealer.Seal(refreshToken)
	if err != nil {
		return err
	}
	q := r.db.Rebind(`UPDATE character_info SET access_token = ?, refresh_token = ?, expires_at = ?, updated_at = ? WHERE character_id = ?`)
	_, err = r.db.ExecContext(ctx, q, at, rt, expiresAt.Unix(), time.Now().UTC().Unix(), characterID)
	return err
}

// ClearTokens drops the stored tokens and keeps the character itself.
func (r *CharacterRepo) ClearTokens(ctx context.Context, characterID string) error {
	q := r.db.Rebind(`UPDATE character_info SET access_token = '', refresh_token = '', expires_at = 0, updated_at = ? WHERE character_id = ?`)
	_, err := r.db.ExecContext(ctx, q, time.Now().UTC().Unix(), characterID)
	return err
}

func (r *CharacterRepo) Get(ctx context.Context, characterID string) (*entity.Character, error) {
	var rw row
	q := r.db.Rebind(`SELECT character_id, character_name, character_owner_hash, access_token, refresh_token, expires_at, updated_at FROM character_info WHERE character_id = ?`)
	if err := r.db.GetContext(ctx, &rw, q, characterID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return r.fromRow(rw)
}

// List returns every stored character ordered by most recent activity.
func (r *CharacterRepo) List(ctx context.Context) ([]*entity.Character, error) {
	var rows []row
	const q = `SELECT character_id, character_name, character_owner_hash, access_token, refresh_token, expires_at, updated_at FROM character_info ORDER BY updated_at DESC, character_id`
	if err := r.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, err
	}
	out := make([]*entity.Character, 0, len(rows))
	for _, rw := range rows {
		c, err := r.fromRow(rw)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (r *CharacterRepo) toRow(c *entity.Character) (*row, error) {
	at, err := r.sealer.Seal(c.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("seal access token: %w", err)
	}
	rt, err := r.sealer.Seal(c.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("seal refresh token: %w", err)
	}
	updated := c.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}
	return &row{
		CharacterID:   c.CharacterID,
		CharacterName: c.CharacterName,
		OwnerHash:     c.OwnerHash,
		AccessToken:   at,
		RefreshToken:  rt,
		ExpiresAt:     unixOrZero(c.ExpiresAt),
		UpdatedAt:     updated.Unix(),
	}, nil
}

func (r *CharacterRepo) fromRow(rw row) (*entity.Character, error) {
	at, err := r.sealer.Open(rw.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("open access token for %s: %w", rw.CharacterID, err)
	}
	rt, err := r.sealer.Open(rw.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("open refresh token for %s: %w", rw.CharacterID, err)
	}
	c := &entity.Character{
		CharacterID:   rw.CharacterID,
		CharacterName: rw.CharacterName,
		OwnerHash:     rw.OwnerHash,
		AccessToken:   at,
		RefreshToken:  rt,
		UpdatedAt:     time.Unix(rw.UpdatedAt, 0).UTC(),
	}
	if rw.ExpiresAt > 0 {
		c.ExpiresAt = time.Unix(rw.ExpiresAt, 0).UTC()
	}
	return c, nil
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}
