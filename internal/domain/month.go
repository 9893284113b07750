package domain

import (
	"fmt"
	"time"
)

// MonthKey identifies a calendar month. It is the month half of the
// account-month composite key used across the pipeline.
type MonthKey struct {
	Year  int        `json:"year"`
	Month time.Month `json:"month"`
}

// MonthOf truncates a date to its calendar month.
func MonthOf(t time.Time) MonthKey {
	return MonthKey{Year: t.Year(), Month: t.Month()}
}

// MonthFromIndex reconstructs a MonthKey from a sequential month index
// (counted from year 0, January).
func MonthFromIndex(idx int) MonthKey {
	return MonthKey{Year: idx / 12, Month: time.Month(idx%12 + 1)}
}

// Index returns a sequential month number so month arithmetic is plain
// integer arithmetic.
func (m MonthKey) Index() int {
	return m.Year*12 + int(m.Month) - 1
}

// AddMonths returns the month n months after m (n may be negative).
func (m MonthKey) AddMonths(n int) MonthKey {
	return MonthFromIndex(m.Index() + n)
}

// Before reports whether m is strictly earlier than other.
func (m MonthKey) Before(other MonthKey) bool {
	return m.Index() < other.Index()
}

// End returns the last day of the month at UTC midnight.
func (m MonthKey) End() time.Time {
	firstOfNext := time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	return firstOfNext.AddDate(0, 0, -1)
}

// String renders the month as "2006-01".
func (m MonthKey) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

// IsZero reports whether the key is unset.
func (m MonthKey) IsZero() bool {
	return m.Year == 0 && m.Month == 0
}

// AccountMonth is the composite identity pairing an account with a
// calendar month. It is the join key between the panel and the monthly
// aggregates and must be unique per (account, month) in the output.
type AccountMonth struct {
	AccountID string   `json:"account_id"`
	Month     MonthKey `json:"month"`
}

// String renders the key as "<account>_<yyyy-mm>".
func (k AccountMonth) String() string {
	return k.AccountID + "_" + k.Month.String()
}
