package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-esi-sso-go/internal/setting/entity"
	"github.com/ovaphlow/pitchfork/service-esi-sso-go/pkg/utilities"
)

var ErrNotFound = errors.New("sso configuration not found")

type ssoRow struct {
	ClientID     string `db:"client_id"`
	ClientSecret string `db:"client_secret"`
	CallbackURL  string `db:"callback_url"`
	Scope        string `db:"scope"`
	UpdatedAt    int64  `db:"updated_at"`
}

// Repo persists the SSO configuration. The table holds at most one row; the
// client secret is sealed at rest.
type Repo struct {
	db     *sqlx.DB
	sealer *utilities.Sealer
}

func NewRepo(db *sqlx.DB, sealer *utilities.Sealer) *Repo {
	return &Repo{db: db, sealer: sealer}
}

// EnsureTable creates sso_configurations if it does not exist.
func (r *Repo) EnsureTable(ctx context.Context) error {
	const tbl = `
	CREATE TABLE IF NOT EXISTS sso_configurations (
		client_id text NOT NULL,
		client_secret text NOT NULL,
		callback_url text NOT NULL,
		scope text NOT NULL DEFAULT '',
		updated_at bigint NOT NULL DEFAULT 0
	)
	`
	_, err := r.db.ExecContext(ctx, tbl)
	return err
}

// Load returns the stored configuration or ErrNotFound.
func (r *Repo) Load(ctx context.Context) (*entity.SsoConfig, error) {
	var row ssoRow
	const q = `SELECT client_id, client_secret, callback_url, scope, updated_at FROM sso_configurations LIMIT 1`
	if err := r.db.GetContext(ctx, &row, q); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	secret, err := r.sealer.Open(row.ClientSecret)
	if err != nil {
		return nil, fmt.Errorf("open client secret: %w", err)
	}
	return &entity.SsoConfig{
		ClientID:     row.ClientID,
		ClientSecret: secret,
		CallbackURL:  row.CallbackURL,
		Scope:        row.Scope,
		UpdatedAt:    time.Unix(row.UpdatedAt, 0).UTC(),
	}, nil
}

// Save replaces the stored configuration wholesale.
func (r *Repo) Save(ctx context.Context, c *entity.SsoConfig) error {
	secret, err := r.sealer.Seal(c.ClientSecret)
	if err != nil {
		return fmt.Errorf("seal client secret: %w", err)
	}
	updated := c.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}
	row := ssoRow{
		ClientID:     c.ClientID,
		ClientSecret: secret,
		CallbackURL:  c.CallbackURL,
		Scope:        c.Scope,
		UpdatedAt:    updated.Unix(),
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM sso_configurations`); err != nil {
		return err
	}
	const ins = `INSERT INTO sso_configurations (client_id, client_secret, callback_url, scope, updated_at)
		VALUES (:client_id, :client_secret, :callback_url, :scope, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, ins, row); err != nil {
		return err
	}
	return tx.Commit()
}
