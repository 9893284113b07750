package warehouse

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixtureSchema = `
CREATE TABLE accounts (
	account_id TEXT, short_name TEXT, account_type TEXT, classification TEXT,
	status TEXT, open_date TEXT, close_date TEXT, domicile_country TEXT,
	domicile_state TEXT, book_ccy TEXT, objective TEXT, capital_commitment TEXT
);
CREATE TABLE position_snapshots (
	account_id TEXT, as_of TEXT, asset_class TEXT, market_value TEXT,
	unrealized_gl TEXT, quantity TEXT, unit_cost TEXT, price_period_end TEXT,
	original_cost TEXT
);
CREATE TABLE transactions (
	account_id TEXT, event_date TEXT, event_type TEXT, asset_class TEXT,
	book_amount TEXT, quantity TEXT, realized_gain TEXT, realized_loss TEXT
);
`

func fixture(t *testing.T, statements ...string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "warehouse.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(fixtureSchema)
	require.NoError(t, err)

	for _, stmt := range statements {
		_, err = db.Exec(stmt)
		require.NoError(t, err)
	}
	return path
}

func seededFixture(t *testing.T) string {
	return fixture(t,
		`INSERT INTO accounts VALUES
			('ACC-1', 'alpha', 'IRA', 'Individual', 'OPEN', '2022-01-15', NULL, 'US', 'CA', 'USD', 'Growth', '50000'),
			('ACC-2', 'beta', 'Trust', 'Entity', 'CLOSED', '2021-06-01', '2023-04-10', 'US', 'TX', 'USD', '', '')`,
		`INSERT INTO position_snapshots VALUES
			('ACC-1', '2023-05-10', 'Equity', '100.5', '10', '50', '2.0', '2.1', '95'),
			('ACC-1', 'not-a-date', 'Equity', '110', '12', '50', '2.0', '2.2', '95'),
			('ACC-1', '2019-01-01', 'Equity', '70', '1', '50', '2.0', '1.4', '95')`,
		`INSERT INTO transactions VALUES
			('ACC-1', '2023-05-12', 'BUY', 'Equity', 'garbage', '10', '0', '0'),
			('ACC-2', '2023-03-01', 'SELL', 'Bond', '250', '-5', '12', '-2')`,
	)
}

func TestExtractor_Extract(t *testing.T) {
	path := seededFixture(t)
	e := NewExtractor(path, 730, zerolog.Nop())
	ref := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)

	out, err := e.Extract(ref)
	require.NoError(t, err)

	require.Len(t, out.Accounts, 2)
	acc := out.Accounts[0]
	assert.Equal(t, "ACC-1", acc.ID)
	assert.Equal(t, time.Date(2022, 1, 15, 0, 0, 0, 0, time.UTC), acc.OpenDate)
	assert.Nil(t, acc.CloseDate)
	assert.Equal(t, 50000.0, acc.CapitalCommitment)
	require.NotNil(t, out.Accounts[1].CloseDate)
	assert.Equal(t, time.Date(2023, 4, 10, 0, 0, 0, 0, time.UTC), *out.Accounts[1].CloseDate)

	// The 2019 snapshot falls outside the 730-day lookback; the undated
	// one is retained with a coerced date
	require.Len(t, out.Positions, 2)
	assert.True(t, out.Positions[1].AsOf.IsZero())
	assert.Equal(t, 1, out.Stats.Coercions["position_snapshots.as_of"])

	require.Len(t, out.Transactions, 2)
	assert.Equal(t, 0.0, out.Transactions[0].BookAmount)
	assert.Equal(t, 1, out.Stats.Coercions["transactions.book_amount"])

	assert.Equal(t, 2, out.Stats.AccountRows)
	assert.Equal(t, 2, out.Stats.PositionRows)
	assert.Equal(t, 2, out.Stats.TransactionRows)
}

func TestExtractor_Extract_MissingTableIsFatal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE accounts (account_id TEXT)`)
	require.NoError(t, err)
	db.Close()

	e := NewExtractor(path, 730, zerolog.Nop())
	_, err = e.Extract(time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "input contract violation")
}

func TestExtractor_Extract_MissingColumnIsFatal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(`
		CREATE TABLE accounts (account_id TEXT, short_name TEXT);
		CREATE TABLE position_snapshots (account_id TEXT);
		CREATE TABLE transactions (account_id TEXT);
		INSERT INTO accounts VALUES ('A', 'a');
	`)
	require.NoError(t, err)
	db.Close()

	e := NewExtractor(path, 730, zerolog.Nop())
	_, err = e.Extract(time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing column")
}

func TestExtractor_Extract_EmptyTableIsFatal(t *testing.T) {
	path := fixture(t) // schema only, no rows

	e := NewExtractor(path, 730, zerolog.Nop())
	_, err := e.Extract(time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is empty")
}
