package warehouse

import (
	"database/sql"
	"fmt"
)

// Warehouse extract table names. The extract is produced upstream; this
// package only reads it.
const (
	TableAccounts     = "accounts"
	TablePositions    = "position_snapshots"
	TableTransactions = "transactions"
)

// requiredColumns is the input contract: a missing column fails the run
// immediately rather than letting a rename upstream silently zero out a
// feature.
var requiredColumns = map[string][]string{
	TableAccounts: {
		"account_id", "short_name", "account_type", "classification",
		"status", "open_date", "close_date", "domicile_country",
		"domicile_state", "book_ccy", "objective", "capital_commitment",
	},
	TablePositions: {
		"account_id", "as_of", "asset_class", "market_value",
		"unrealized_gl", "quantity", "unit_cost", "price_period_end",
		"original_cost",
	},
	TableTransactions: {
		"account_id", "event_date", "event_type", "asset_class",
		"book_amount", "quantity", "realized_gain", "realized_loss",
	},
}

// validateContract checks that every required table exists with every
// required column, and that no input table is empty.
func validateContract(db *sql.DB) error {
	for _, table := range []string{TableAccounts, TablePositions, TableTransactions} {
		cols, err := tableColumns(db, table)
		if err != nil {
			return err
		}
		if len(cols) == 0 {
			return fmt.Errorf("input contract violation: table %q not found in warehouse extract", table)
		}

		for _, required := range requiredColumns[table] {
			if _, ok := cols[required]; !ok {
				return fmt.Errorf("input contract violation: table %q is missing column %q", table, required)
			}
		}

		var count int
		if err := db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&count); err != nil {
			return fmt.Errorf("failed to count rows in %s: %w", table, err)
		}
		if count == 0 {
			return fmt.Errorf("input contract violation: table %q is empty", table)
		}
	}
	return nil
}

func tableColumns(db *sql.DB, table string) (map[string]struct{}, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, fmt.Errorf("failed to inspect table %s: %w", table, err)
	}
	defer rows.Close()

	cols := make(map[string]struct{})
	for rows.Next() {
		var (
			cid        int
			name       string
			colType    string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &defaultVal, &pk); err != nil {
			return nil, fmt.Errorf("failed to scan table info for %s: %w", table, err)
		}
		cols[name] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating table info for %s: %w", table, err)
	}

	return cols, nil
}
