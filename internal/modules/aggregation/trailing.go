package aggregation

import (
	"math"
	"sort"
	"time"

	"github.com/halcyonwealth/churn-pipeline/internal/domain"
	"github.com/halcyonwealth/churn-pipeline/pkg/formulas"
)

// TrailingPnL computes position statistics over the window
// [ref - windowDays, ref], keyed by account. Windows are measured from
// the reference time, never from each other, so configured windows
// overlap by design. Accounts with no dated snapshots in the window have
// no entry.
func (a *Aggregator) TrailingPnL(snapshots []domain.PositionSnapshot, ref time.Time, windowDays int) map[string]TrailingPnL {
	cutoff := ref.AddDate(0, 0, -windowDays)

	groups := make(map[string][]domain.PositionSnapshot)
	for _, snap := range snapshots {
		if snap.AsOf.IsZero() || snap.AsOf.Before(cutoff) || snap.AsOf.After(ref) {
			continue
		}
		groups[snap.AccountID] = append(groups[snap.AccountID], snap)
	}

	out := make(map[string]TrailingPnL, len(groups))
	for accountID, group := range groups {
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].AsOf.Before(group[j].AsOf)
		})

		agg := TrailingPnL{AccountID: accountID, WindowDays: windowDays, Observations: len(group)}

		values := make([]float64, 0, len(group))
		ugls := make([]float64, 0, len(group))
		agg.MaxMarketValue = group[0].MarketValue
		agg.MinMarketValue = group[0].MarketValue

		for _, s := range group {
			values = append(values, s.MarketValue)
			ugls = append(ugls, s.UnrealizedGL)
			if s.MarketValue > agg.MaxMarketValue {
				agg.MaxMarketValue = s.MarketValue
			}
			if s.MarketValue < agg.MinMarketValue {
				agg.MinMarketValue = s.MarketValue
			}
			agg.TotalUnrealizedPnL += s.UnrealizedGL
		}

		agg.AvgMarketValue = formulas.Mean(values)
		agg.StdMarketValue = formulas.StdDev(values)
		agg.AvgUnrealizedPnL = formulas.Mean(ugls)
		agg.MarketValueTrend = formulas.Slope(values)

		out[accountID] = agg
	}

	return out
}

// TrailingTransactions computes transaction statistics over the window
// [ref - windowDays, ref], keyed by account.
func (a *Aggregator) TrailingTransactions(txns []domain.Transaction, ref time.Time, windowDays int) map[string]TrailingTxn {
	cutoff := ref.AddDate(0, 0, -windowDays)

	groups := make(map[string][]domain.Transaction)
	for _, txn := range txns {
		if txn.EventDate.IsZero() || txn.EventDate.Before(cutoff) || txn.EventDate.After(ref) {
			continue
		}
		groups[txn.AccountID] = append(groups[txn.AccountID], txn)
	}

	out := make(map[string]TrailingTxn, len(groups))
	for accountID, group := range groups {
		agg := TrailingTxn{AccountID: accountID, WindowDays: windowDays, Count: len(group)}

		amounts := make([]float64, 0, len(group))
		for _, t := range group {
			amounts = append(amounts, math.Abs(t.BookAmount))
			agg.Volume += math.Abs(t.BookAmount)
			agg.NetCashFlow += t.BookAmount
		}

		agg.AvgSize = formulas.Mean(amounts)
		agg.Frequency = float64(agg.Count) / float64(windowDays)

		out[accountID] = agg
	}

	return out
}

// DaysSinceLastTransaction returns, per account, the days between the
// account's most recent dated transaction and the reference time. The
// NoRecentTransactions sentinel stands in for accounts appearing only
// with undated records.
func (a *Aggregator) DaysSinceLastTransaction(txns []domain.Transaction, ref time.Time) map[string]int {
	latest := make(map[string]time.Time)
	seen := make(map[string]struct{})

	for _, txn := range txns {
		seen[txn.AccountID] = struct{}{}
		if txn.EventDate.IsZero() {
			continue
		}
		if cur, ok := latest[txn.AccountID]; !ok || txn.EventDate.After(cur) {
			latest[txn.AccountID] = txn.EventDate
		}
	}

	out := make(map[string]int, len(seen))
	for accountID := range seen {
		if last, ok := latest[accountID]; ok {
			out[accountID] = int(ref.Sub(last).Hours() / 24)
		} else {
			out[accountID] = NoRecentTransactions
		}
	}

	return out
}
