package aggregation

import (
	"math"
	"sort"

	"github.com/rs/zerolog"

	"github.com/halcyonwealth/churn-pipeline/internal/domain"
	"github.com/halcyonwealth/churn-pipeline/pkg/formulas"
)

// Aggregator reduces event-level records into per-account-per-period
// summary statistics. Partitioning is a single grouped pass; no account's
// output depends on another account's records.
type Aggregator struct {
	log zerolog.Logger
}

// New creates a new aggregator
func New(log zerolog.Logger) *Aggregator {
	return &Aggregator{
		log: log.With().Str("component", "aggregation").Logger(),
	}
}

// MonthlyPnL aggregates position snapshots into one row per account-month.
// Within each partition records are ordered by as-of date, ties keeping
// input order, which fixes the first/last semantics of the start and end
// fields. Snapshots without a usable date are excluded from bucketing.
func (a *Aggregator) MonthlyPnL(snapshots []domain.PositionSnapshot) []PnLMonthly {
	groups := make(map[domain.AccountMonth][]domain.PositionSnapshot)
	for _, snap := range snapshots {
		if snap.AsOf.IsZero() {
			continue
		}
		key := domain.AccountMonth{AccountID: snap.AccountID, Month: domain.MonthOf(snap.AsOf)}
		groups[key] = append(groups[key], snap)
	}

	out := make([]PnLMonthly, 0, len(groups))
	for _, key := range sortedKeys(groups) {
		group := groups[key]
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].AsOf.Before(group[j].AsOf)
		})
		out = append(out, reducePnLMonth(key, group))
	}

	a.log.Debug().Int("account_months", len(out)).Msg("Aggregated monthly P&L")
	return out
}

func reducePnLMonth(key domain.AccountMonth, snaps []domain.PositionSnapshot) PnLMonthly {
	agg := PnLMonthly{AccountID: key.AccountID, Month: key.Month}

	assetClasses := make(map[string]struct{})
	ugls := make([]float64, 0, len(snaps))
	prices := make([]float64, 0, len(snaps))
	costs := make([]float64, 0, len(snaps))

	first := snaps[0]
	last := snaps[len(snaps)-1]

	agg.StartBookUGL = first.UnrealizedGL
	agg.EndBookUGL = last.UnrealizedGL
	agg.MaxBookUGL = first.UnrealizedGL
	agg.FirstQuantity = first.Quantity
	agg.LastQuantity = last.Quantity
	agg.FirstMarketValue = first.MarketValue
	agg.LastMarketValue = last.MarketValue
	agg.MaxMarketValue = first.MarketValue
	agg.MinMarketValue = first.MarketValue
	agg.OriginalInvested = first.OriginalCost

	prevQuantity := math.NaN()
	for _, s := range snaps {
		assetClasses[s.AssetClass] = struct{}{}
		ugls = append(ugls, s.UnrealizedGL)
		prices = append(prices, s.PricePeriodEnd)
		costs = append(costs, s.UnitCost)

		if s.UnrealizedGL > agg.MaxBookUGL {
			agg.MaxBookUGL = s.UnrealizedGL
		}
		if s.UnrealizedGL > 0 {
			agg.GainDays++
		}
		if s.UnrealizedGL < 0 {
			agg.LossDays++
		}
		if s.MarketValue > agg.MaxMarketValue {
			agg.MaxMarketValue = s.MarketValue
		}
		if s.MarketValue < agg.MinMarketValue {
			agg.MinMarketValue = s.MarketValue
		}
		// The first observation counts as a change, matching a
		// shift-and-compare over the ordered series.
		if math.IsNaN(prevQuantity) || s.Quantity != prevQuantity {
			agg.QuantityChangeCount++
		}
		prevQuantity = s.Quantity
	}

	agg.NumberOfPositions = len(assetClasses)
	agg.UGLStd = formulas.StdDev(ugls)
	agg.AvgPricePeriodEnd = formulas.Mean(prices)
	agg.AvgUnitCost = formulas.Mean(costs)

	agg.UGLChangePct = formulas.SafeRatio(agg.EndBookUGL-agg.StartBookUGL, math.Abs(agg.StartBookUGL))
	agg.UGLMaxOpportunityLoss = agg.MaxBookUGL - agg.EndBookUGL
	agg.QuantityNetChange = agg.LastQuantity - agg.FirstQuantity
	agg.QuantityChangePct = formulas.SafeRatio(agg.QuantityNetChange, agg.FirstQuantity)
	agg.MarketValueNetChange = agg.LastMarketValue - agg.FirstMarketValue
	agg.MarketValueChangePct = formulas.SafeRatio(agg.MarketValueNetChange, agg.FirstMarketValue)
	agg.MaxDrawDown = agg.MaxMarketValue - agg.MinMarketValue
	agg.PriceToCostRatio = formulas.SafeRatio(agg.AvgPricePeriodEnd, agg.AvgUnitCost)

	return agg
}

// MonthlyTransactions aggregates transactions into one row per
// account-month. Transactions without a usable date are excluded from
// bucketing.
func (a *Aggregator) MonthlyTransactions(txns []domain.Transaction) []TxnMonthly {
	groups := make(map[domain.AccountMonth][]domain.Transaction)
	for _, txn := range txns {
		if txn.EventDate.IsZero() {
			continue
		}
		key := domain.AccountMonth{AccountID: txn.AccountID, Month: domain.MonthOf(txn.EventDate)}
		groups[key] = append(groups[key], txn)
	}

	out := make([]TxnMonthly, 0, len(groups))
	for _, key := range sortedKeys(groups) {
		group := groups[key]
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].EventDate.Before(group[j].EventDate)
		})
		out = append(out, reduceTxnMonth(key, group))
	}

	a.log.Debug().Int("account_months", len(out)).Msg("Aggregated monthly transactions")
	return out
}

func reduceTxnMonth(key domain.AccountMonth, txns []domain.Transaction) TxnMonthly {
	agg := TxnMonthly{AccountID: key.AccountID, Month: key.Month}

	tradeDays := make(map[string]struct{})
	assetClasses := make(map[string]struct{})
	amounts := make([]float64, 0, len(txns))
	quantities := make([]float64, 0, len(txns))

	for _, t := range txns {
		tradeDays[t.EventDate.Format("2006-01-02")] = struct{}{}
		assetClasses[t.AssetClass] = struct{}{}
		amounts = append(amounts, t.BookAmount)
		quantities = append(quantities, t.Quantity)

		agg.CashFlow += t.BookAmount
		agg.TransactionAmountTotal += math.Abs(t.BookAmount)
		agg.TotalQuantityTraded += t.Quantity
		agg.RealizedGain += t.RealizedGain
		agg.RealizedLoss += t.RealizedLoss
	}

	agg.NumTransactions = len(txns)
	agg.TradeDays = len(tradeDays)
	agg.TradedAssetClasses = len(assetClasses)
	agg.AvgBookAmount = formulas.Mean(amounts)
	agg.AvgQuantityTraded = formulas.Mean(quantities)

	agg.NetRealizedPnL = agg.RealizedGain + agg.RealizedLoss
	agg.NetRealizedPnLPct = formulas.SafeRatio(agg.NetRealizedPnL, agg.TransactionAmountTotal)

	return agg
}

func sortedKeys[V any](groups map[domain.AccountMonth]V) []domain.AccountMonth {
	keys := make([]domain.AccountMonth, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].AccountID != keys[j].AccountID {
			return keys[i].AccountID < keys[j].AccountID
		}
		return keys[i].Month.Index() < keys[j].Month.Index()
	})
	return keys
}
