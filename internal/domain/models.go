package domain

import "time"

// Currency represents a currency code
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
)

// Account represents an account master record from the warehouse extract.
// The master is immutable after opening except for CloseDate, which is set
// once when the account is closed.
type Account struct {
	ID                string     `json:"id"`
	ShortName         string     `json:"short_name"`
	AccountType       string     `json:"account_type"`
	Classification    string     `json:"classification"`
	Status            string     `json:"status"`
	OpenDate          time.Time  `json:"open_date"` // zero when missing in the source
	CloseDate         *time.Time `json:"close_date,omitempty"`
	DomicileCountry   string     `json:"domicile_country"`
	DomicileState     string     `json:"domicile_state"`
	BookCurrency      Currency   `json:"book_currency"`
	Objective         string     `json:"objective"`
	CapitalCommitment float64    `json:"capital_commitment"`
}

// Closed reports whether the account has a close date on record.
func (a Account) Closed() bool {
	return a.CloseDate != nil && !a.CloseDate.IsZero()
}

// HasOpenDate reports whether the account has a usable open date.
// Accounts without one cannot anchor a monthly timeline.
func (a Account) HasOpenDate() bool {
	return !a.OpenDate.IsZero()
}

// PositionSnapshot represents a single P&L snapshot row (one position,
// one as-of date). Snapshots are append-only.
type PositionSnapshot struct {
	AccountID      string    `json:"account_id"`
	AsOf           time.Time `json:"as_of"` // zero when the source date failed to parse
	AssetClass     string    `json:"asset_class"`
	MarketValue    float64   `json:"market_value"`
	UnrealizedGL   float64   `json:"unrealized_gl"`
	Quantity       float64   `json:"quantity"`
	UnitCost       float64   `json:"unit_cost"`
	PricePeriodEnd float64   `json:"price_period_end"`
	OriginalCost   float64   `json:"original_cost"`
}

// Transaction represents a single booked transaction. Append-only.
type Transaction struct {
	AccountID    string    `json:"account_id"`
	EventDate    time.Time `json:"event_date"` // zero when the source date failed to parse
	EventType    string    `json:"event_type"`
	AssetClass   string    `json:"asset_class"`
	BookAmount   float64   `json:"book_amount"` // signed: inflows positive, outflows negative
	Quantity     float64   `json:"quantity"`
	RealizedGain float64   `json:"realized_gain"`
	RealizedLoss float64   `json:"realized_loss"`
}
