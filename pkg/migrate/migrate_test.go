package migrate

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsAreValid(t *testing.T) {
	require.NoError(t, ValidateEmbedded())
}

func TestOrdersMigrationContainsConstraints(t *testing.T) {
	matches, err := fs.Glob(Files, "migrations/*_create_orders.sql")
	require.NoError(t, err)
	require.Len(t, matches, 1)

	data, err := fs.ReadFile(Files, matches[0])
	require.NoError(t, err)
	content := string(data)

	for _, sub := range []string{
		"CONSTRAINT orders_stripe_session_id_key UNIQUE (stripe_session_id)",
		"CHECK (total_cents = subtotal_cents + shipping_cents)",
		"CHECK (status IN ('pending', 'paid', 'fulfilled', 'refunded', 'canceled'))",
		"DROP TABLE IF EXISTS orders",
	} {
		assert.Containsf(t, content, sub, "missing expected statement")
	}
}

func TestAwaitingPaymentMigration(t *testing.T) {
	matches, err := fs.Glob(Files, "migrations/*_orders_awaiting_payment_and_optional_email.sql")
	require.NoError(t, err)
	require.Len(t, matches, 1)

	data, err := fs.ReadFile(Files, matches[0])
	require.NoError(t, err)
	content := string(data)

	for _, sub := range []string{
		"ALTER TABLE profiles ALTER COLUMN email DROP NOT NULL",
		"ADD COLUMN IF NOT EXISTS awaiting_payment_at timestamptz",
		"orders_payment_intent_idx",
		"DROP COLUMN IF EXISTS awaiting_payment_at",
	} {
		assert.Containsf(t, content, sub, "missing expected statement")
	}
}

func TestCreateSQLMigration(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 4, 2, 10, 30, 0, 0, time.UTC)

	path, err := CreateSQLMigration(dir, "Add Order Notes!", now)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "20260402103000_add_order_notes.sql"), path)

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "-- +goose Up"))
	require.NoError(t, ValidateDir(dir))

	_, err = CreateSQLMigration(dir, "Add Order Notes!", now)
	assert.Error(t, err, "same version must not be overwritten")

	_, err = CreateSQLMigration(dir, "!!!", now)
	assert.Error(t, err)
}

func TestValidateDirRejectsBadNames(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "001_bad.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644))
	assert.Error(t, ValidateDir(dir))
}
