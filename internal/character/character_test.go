package character

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/service-esi-sso-go/internal/character/repo"
	"github.com/ovaphlow/pitchfork/service-esi-sso-go/internal/sso"
	"github.com/ovaphlow/pitchfork/service-esi-sso-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-esi-sso-go/pkg/utilities"
)

func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := database.Open(database.Config{
		Driver:   database.DriverSQLite,
		DSN:      filepath.Join(t.TempDir(), "characters.db"),
		MaxConns: 1,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestService(t *testing.T, sealer *utilities.Sealer) (*Service, *sqlx.DB) {
	t.Helper()
	db := openTestDB(t)
	r := repo.NewCharacterRepo(db, sealer)
	require.NoError(t, r.EnsureTable(context.Background()))
	require.NoError(t, r.EnsureTable(context.Background()))
	return NewService(r, nil), db
}

var (
	pilot = &sso.Identity{CharacterID: "90000001", CharacterName: "Test Pilot", OwnerHash: "owner"}
	exp   = time.Date(2024, 5, 1, 12, 20, 0, 0, time.UTC)
)

func TestRecordAndGet(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	require.NoError(t, svc.Record(ctx, pilot, &sso.TokenSet{AccessToken: "at", RefreshToken: "rt", TokenType: "Bearer", ExpiresAt: exp}))

	c, err := svc.Get(ctx, "90000001")
	require.NoError(t, err)
	assert.Equal(t, "Test Pilot", c.CharacterName)
	assert.Equal(t, "owner", c.OwnerHash)
	assert.Equal(t, "at", c.AccessToken)
	assert.Equal(t, "rt", c.RefreshToken)
	assert.True(t, c.ExpiresAt.Equal(exp))
	assert.True(t, c.HasTokens())
}

func TestRecordTwiceUpserts(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	require.NoError(t, svc.Record(ctx, pilot, &sso.TokenSet{AccessToken: "at-1", ExpiresAt: exp}))
	renamed := *pilot
	renamed.CharacterName = "Renamed Pilot"
	require.NoError(t, svc.Record(ctx, &renamed, &sso.TokenSet{AccessToken: "at-2", ExpiresAt: exp}))

	all, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Renamed Pilot", all[0].CharacterName)
	assert.Equal(t, "at-2", all[0].AccessToken)
}

func TestUpdateTokensAndForget(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	require.NoError(t, svc.Record(ctx, pilot, &sso.TokenSet{AccessToken: "at-1", RefreshToken: "rt-1", ExpiresAt: exp}))
	require.NoError(t, svc.UpdateTokens(ctx, "90000001", &sso.TokenSet{AccessToken: "at-2", RefreshToken: "rt-1", ExpiresAt: exp.Add(time.Hour)}))

	c, err := svc.Get(ctx, "90000001")
	require.NoError(t, err)
	assert.Equal(t, "at-2", c.AccessToken)
	assert.True(t, c.ExpiresAt.Equal(exp.Add(time.Hour)))

	require.NoError(t, svc.Forget(ctx, "90000001"))
	c, err = svc.Get(ctx, "90000001")
	require.NoError(t, err)
	assert.False(t, c.HasTokens())
	assert.True(t, c.ExpiresAt.IsZero())
	assert.Equal(t, "Test Pilot", c.CharacterName)

	// unknown characters are ignored
	assert.NoError(t, svc.UpdateTokens(ctx, "1", &sso.TokenSet{AccessToken: "x", ExpiresAt: exp}))
	assert.NoError(t, svc.Forget(ctx, "1"))
}

func TestGetMissing(t *testing.T) {
	svc, _ := newTestService(t, nil)
	_, err := svc.Get(context.Background(), "404")
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestTokensSealedAtRest(t *testing.T) {
	sealer, err := utilities.NewSealer(bytes.Repeat([]byte{9}, 32))
	require.NoError(t, err)
	svc, db := newTestService(t, sealer)
	ctx := context.Background()

	require.NoError(t, svc.Record(ctx, pilot, &sso.TokenSet{AccessToken: "plain-access", RefreshToken: "plain-refresh", ExpiresAt: exp}))

	var stored string
	require.NoError(t, db.Get(&stored, db.Rebind("SELECT refresh_token FROM character_info WHERE character_id = ?"), "90000001"))
	assert.NotContains(t, stored, "plain-refresh")

	c, err := svc.Get(ctx, "90000001")
	require.NoError(t, err)
	assert.Equal(t, "plain-refresh", c.RefreshToken)
}
