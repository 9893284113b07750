package warehouse

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
	"github.com/rs/zerolog"

	"github.com/halcyonwealth/churn-pipeline/internal/domain"
)

// Extract holds the three materialized input tables for one run, plus
// ingestion statistics.
type Extract struct {
	Accounts     []domain.Account
	Positions    []domain.PositionSnapshot
	Transactions []domain.Transaction
	Stats        Stats
}

// Stats counts what ingestion saw. Coercions is keyed by
// "<table>.<column>" and counts per-record malformed values that were
// coerced to a missing marker rather than dropped.
type Stats struct {
	AccountRows     int            `json:"account_rows"`
	PositionRows    int            `json:"position_rows"`
	TransactionRows int            `json:"transaction_rows"`
	Coercions       map[string]int `json:"coercions"`
}

// Extractor reads the warehouse SQLite extract. The extract is input-only;
// the pipeline never writes to it.
type Extractor struct {
	path         string
	lookbackDays int
	log          zerolog.Logger
}

// NewExtractor creates a new warehouse extractor
func NewExtractor(path string, lookbackDays int, log zerolog.Logger) *Extractor {
	return &Extractor{
		path:         path,
		lookbackDays: lookbackDays,
		log:          log.With().Str("component", "warehouse").Logger(),
	}
}

// Extract loads all three tables, validating the input contract first.
// Positions and transactions are bounded to the configured lookback from
// the reference time. Contract violations are fatal; malformed field
// values are coerced and counted.
func (e *Extractor) Extract(ref time.Time) (*Extract, error) {
	db, err := e.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	if err := validateContract(db); err != nil {
		return nil, err
	}

	result := &Extract{Stats: Stats{Coercions: make(map[string]int)}}
	cutoff := ref.AddDate(0, 0, -e.lookbackDays)

	if result.Accounts, err = e.extractAccounts(db, &result.Stats); err != nil {
		return nil, err
	}
	if result.Positions, err = e.extractPositions(db, cutoff, &result.Stats); err != nil {
		return nil, err
	}
	if result.Transactions, err = e.extractTransactions(db, cutoff, &result.Stats); err != nil {
		return nil, err
	}

	e.log.Info().
		Int("accounts", result.Stats.AccountRows).
		Int("positions", result.Stats.PositionRows).
		Int("transactions", result.Stats.TransactionRows).
		Int("coerced_fields", totalCoercions(result.Stats.Coercions)).
		Msg("Warehouse extract loaded")

	return result, nil
}

func (e *Extractor) open() (*sql.DB, error) {
	db, err := sql.Open("sqlite", "file:"+e.path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("failed to open warehouse extract: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping warehouse extract at %s: %w", e.path, err)
	}

	return db, nil
}

func (e *Extractor) extractAccounts(db *sql.DB, stats *Stats) ([]domain.Account, error) {
	rows, err := db.Query(`
		SELECT account_id, short_name, account_type, classification, status,
		       open_date, close_date, domicile_country, domicile_state,
		       book_ccy, objective, capital_commitment
		FROM accounts
		ORDER BY account_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		var (
			acc               domain.Account
			shortName         sql.NullString
			accountType       sql.NullString
			classification    sql.NullString
			status            sql.NullString
			openDate          sql.NullString
			closeDate         sql.NullString
			domicileCountry   sql.NullString
			domicileState     sql.NullString
			bookCcy           sql.NullString
			objective         sql.NullString
			capitalCommitment sql.NullString
		)

		err := rows.Scan(
			&acc.ID, &shortName, &accountType, &classification, &status,
			&openDate, &closeDate, &domicileCountry, &domicileState,
			&bookCcy, &objective, &capitalCommitment,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}

		acc.ShortName = shortName.String
		acc.AccountType = accountType.String
		acc.Classification = classification.String
		acc.Status = status.String
		acc.DomicileCountry = domicileCountry.String
		acc.DomicileState = domicileState.String
		acc.BookCurrency = domain.Currency(bookCcy.String)
		acc.Objective = objective.String
		acc.OpenDate = e.coerceDate(openDate, TableAccounts, "open_date", stats)
		if closed := e.coerceDate(closeDate, TableAccounts, "close_date", stats); !closed.IsZero() {
			acc.CloseDate = &closed
		}
		acc.CapitalCommitment = e.coerceFloat(capitalCommitment, TableAccounts, "capital_commitment", stats)

		accounts = append(accounts, acc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}

	stats.AccountRows = len(accounts)
	return accounts, nil
}

func (e *Extractor) extractPositions(db *sql.DB, cutoff time.Time, stats *Stats) ([]domain.PositionSnapshot, error) {
	rows, err := db.Query(`
		SELECT account_id, as_of, asset_class, market_value, unrealized_gl,
		       quantity, unit_cost, price_period_end, original_cost
		FROM position_snapshots
		ORDER BY account_id, as_of
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query position snapshots: %w", err)
	}
	defer rows.Close()

	var positions []domain.PositionSnapshot
	for rows.Next() {
		var (
			pos        domain.PositionSnapshot
			asOf       sql.NullString
			assetClass sql.NullString
			raw        [6]sql.NullString
		)

		err := rows.Scan(&pos.AccountID, &asOf, &assetClass, &raw[0], &raw[1], &raw[2], &raw[3], &raw[4], &raw[5])
		if err != nil {
			return nil, fmt.Errorf("failed to scan position snapshot: %w", err)
		}

		pos.AsOf = e.coerceDate(asOf, TablePositions, "as_of", stats)
		pos.AssetClass = assetClass.String
		pos.MarketValue = e.coerceFloat(raw[0], TablePositions, "market_value", stats)
		pos.UnrealizedGL = e.coerceFloat(raw[1], TablePositions, "unrealized_gl", stats)
		pos.Quantity = e.coerceFloat(raw[2], TablePositions, "quantity", stats)
		pos.UnitCost = e.coerceFloat(raw[3], TablePositions, "unit_cost", stats)
		pos.PricePeriodEnd = e.coerceFloat(raw[4], TablePositions, "price_period_end", stats)
		pos.OriginalCost = e.coerceFloat(raw[5], TablePositions, "original_cost", stats)

		// The lookback bound applies to dated records only; records with a
		// coerced date are retained so ingestion counts stay truthful.
		if !pos.AsOf.IsZero() && pos.AsOf.Before(cutoff) {
			continue
		}

		positions = append(positions, pos)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating position snapshots: %w", err)
	}

	stats.PositionRows = len(positions)
	return positions, nil
}

func (e *Extractor) extractTransactions(db *sql.DB, cutoff time.Time, stats *Stats) ([]domain.Transaction, error) {
	rows, err := db.Query(`
		SELECT account_id, event_date, event_type, asset_class, book_amount,
		       quantity, realized_gain, realized_loss
		FROM transactions
		ORDER BY account_id, event_date
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		var (
			txn        domain.Transaction
			eventDate  sql.NullString
			eventType  sql.NullString
			assetClass sql.NullString
			raw        [4]sql.NullString
		)

		err := rows.Scan(&txn.AccountID, &eventDate, &eventType, &assetClass, &raw[0], &raw[1], &raw[2], &raw[3])
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}

		txn.EventDate = e.coerceDate(eventDate, TableTransactions, "event_date", stats)
		txn.EventType = eventType.String
		txn.AssetClass = assetClass.String
		txn.BookAmount = e.coerceFloat(raw[0], TableTransactions, "book_amount", stats)
		txn.Quantity = e.coerceFloat(raw[1], TableTransactions, "quantity", stats)
		txn.RealizedGain = e.coerceFloat(raw[2], TableTransactions, "realized_gain", stats)
		txn.RealizedLoss = e.coerceFloat(raw[3], TableTransactions, "realized_loss", stats)

		if !txn.EventDate.IsZero() && txn.EventDate.Before(cutoff) {
			continue
		}

		txns = append(txns, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	stats.TransactionRows = len(txns)
	return txns, nil
}

// coerceDate parses a date field, accepting date-only and RFC3339 forms.
// Unparseable values become the zero time and are counted, never dropped.
func (e *Extractor) coerceDate(v sql.NullString, table, column string, stats *Stats) time.Time {
	if !v.Valid || strings.TrimSpace(v.String) == "" {
		return time.Time{}
	}

	s := strings.TrimSpace(v.String)
	for _, layout := range []string{"2006-01-02", time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		}
	}

	stats.Coercions[table+"."+column]++
	return time.Time{}
}

// coerceFloat parses a numeric field. Unparseable values become 0 and are
// counted.
func (e *Extractor) coerceFloat(v sql.NullString, table, column string, stats *Stats) float64 {
	if !v.Valid || strings.TrimSpace(v.String) == "" {
		return 0
	}

	f, err := strconv.ParseFloat(strings.TrimSpace(v.String), 64)
	if err != nil {
		stats.Coercions[table+"."+column]++
		return 0
	}
	return f
}

func totalCoercions(coercions map[string]int) int {
	total := 0
	for _, n := range coercions {
		total += n
	}
	return total
}
