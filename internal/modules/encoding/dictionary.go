package encoding

import (
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
)

// MissingCode is assigned to empty category values. Missing is not a
// category and is never persisted to the dictionary.
const MissingCode = -1

// Dictionary assigns stable integer codes to category values, scoped per
// domain (account type, classification, currency and so on). Codes are
// persisted in the results store, so a category keeps its code across
// runs no matter which categories a given extract happens to contain.
type Dictionary struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewDictionary creates a new category dictionary
func NewDictionary(db *sql.DB, log zerolog.Logger) *Dictionary {
	return &Dictionary{
		db:  db,
		log: log.With().Str("component", "dictionary").Logger(),
	}
}

// Encode returns the code for every category in values, assigning and
// persisting codes for categories seen for the first time. New categories
// are assigned in sorted order so a single run is deterministic; once
// assigned, a code never changes.
func (d *Dictionary) Encode(domain string, values []string) (map[string]int, error) {
	codes, err := d.load(domain)
	if err != nil {
		return nil, err
	}

	var unseen []string
	seen := make(map[string]bool)
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := codes[v]; !ok && !seen[v] {
			unseen = append(unseen, v)
			seen[v] = true
		}
	}

	if len(unseen) > 0 {
		sort.Strings(unseen)
		if err := d.assign(domain, unseen, codes); err != nil {
			return nil, err
		}
		d.log.Info().
			Str("domain", domain).
			Int("new_categories", len(unseen)).
			Msg("Dictionary extended")
	}

	return codes, nil
}

// Code returns the stable code for a single category value. Empty values
// map to MissingCode.
func (d *Dictionary) Code(domain, value string) (int, error) {
	if value == "" {
		return MissingCode, nil
	}
	codes, err := d.Encode(domain, []string{value})
	if err != nil {
		return 0, err
	}
	return codes[value], nil
}

func (d *Dictionary) load(domain string) (map[string]int, error) {
	rows, err := d.db.Query(
		`SELECT category, code FROM category_dictionary WHERE domain = ?`,
		domain,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load dictionary for %s: %w", domain, err)
	}
	defer rows.Close()

	codes := make(map[string]int)
	for rows.Next() {
		var (
			category string
			code     int
		)
		if err := rows.Scan(&category, &code); err != nil {
			return nil, fmt.Errorf("failed to scan dictionary entry: %w", err)
		}
		codes[category] = code
	}
	return codes, rows.Err()
}

func (d *Dictionary) assign(domain string, unseen []string, codes map[string]int) error {
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin dictionary transaction: %w", err)
	}
	defer tx.Rollback()

	var maxCode sql.NullInt64
	err = tx.QueryRow(
		`SELECT MAX(code) FROM category_dictionary WHERE domain = ?`,
		domain,
	).Scan(&maxCode)
	if err != nil {
		return fmt.Errorf("failed to read max code for %s: %w", domain, err)
	}

	next := 0
	if maxCode.Valid {
		next = int(maxCode.Int64) + 1
	}

	var version int
	err = tx.QueryRow(
		`SELECT COALESCE(MAX(version), 0) + 1 FROM category_dictionary WHERE domain = ?`,
		domain,
	).Scan(&version)
	if err != nil {
		return fmt.Errorf("failed to read dictionary version for %s: %w", domain, err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO category_dictionary (domain, category, code, version, created_at) VALUES (?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("failed to prepare dictionary insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, category := range unseen {
		if _, err := stmt.Exec(domain, category, next, version, now); err != nil {
			return fmt.Errorf("failed to insert dictionary entry %s/%s: %w", domain, category, err)
		}
		codes[category] = next
		next++
	}

	return tx.Commit()
}
