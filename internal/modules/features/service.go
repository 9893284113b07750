package features

import (
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/halcyonwealth/churn-pipeline/internal/domain"
	"github.com/halcyonwealth/churn-pipeline/internal/modules/aggregation"
	"github.com/halcyonwealth/churn-pipeline/internal/modules/encoding"
	"github.com/halcyonwealth/churn-pipeline/internal/modules/panel"
	"github.com/halcyonwealth/churn-pipeline/internal/modules/risk"
	"github.com/halcyonwealth/churn-pipeline/pkg/formulas"
)

// US states treated as high-tax for the geography flag.
var highTaxStates = map[string]bool{"CA": true, "NY": true, "NJ": true}

// activityMonths and activityEMAPeriod control the activity decay
// feature: an EMA over the account's monthly transaction counts.
const (
	activityMonths    = 12
	activityEMAPeriod = 3
	varQuantile       = 0.05
)

// RiskWindows selects which trailing windows feed each risk indicator.
// Every selected window must also appear in the service's window list.
type RiskWindows struct {
	VolatilityDays int
	ActivityDays   int
	TrendDays      int
}

// Service builds the account-level feature set.
type Service struct {
	agg          *aggregation.Aggregator
	dict         *encoding.Dictionary
	scorer       *risk.Scorer
	windows      []int
	riskWindows  RiskWindows
	churnLagDays int
	log          zerolog.Logger
}

// NewService creates a new feature service
func NewService(agg *aggregation.Aggregator, dict *encoding.Dictionary, scorer *risk.Scorer, windows []int, riskWindows RiskWindows, churnLagDays int, log zerolog.Logger) *Service {
	return &Service{
		agg:          agg,
		dict:         dict,
		scorer:       scorer,
		windows:      windows,
		riskWindows:  riskWindows,
		churnLagDays: churnLagDays,
		log:          log.With().Str("component", "features").Logger(),
	}
}

// Build returns one feature vector per account, as of ref. Accounts with
// no snapshots or transactions still get a row; their activity features
// fall back to the zero-record defaults.
func (s *Service) Build(accounts []domain.Account, snapshots []domain.PositionSnapshot, txns []domain.Transaction, ref time.Time) ([]AccountFeatures, error) {
	snapsByAccount := make(map[string][]domain.PositionSnapshot)
	for _, snap := range snapshots {
		snapsByAccount[snap.AccountID] = append(snapsByAccount[snap.AccountID], snap)
	}
	txnsByAccount := make(map[string][]domain.Transaction)
	for _, txn := range txns {
		txnsByAccount[txn.AccountID] = append(txnsByAccount[txn.AccountID], txn)
	}

	pnlWindows := make(map[int]map[string]aggregation.TrailingPnL, len(s.windows))
	txnWindows := make(map[int]map[string]aggregation.TrailingTxn, len(s.windows))
	for _, days := range s.windows {
		pnlWindows[days] = s.agg.TrailingPnL(snapshots, ref, days)
		txnWindows[days] = s.agg.TrailingTransactions(txns, ref, days)
	}
	lastTxn := s.agg.DaysSinceLastTransaction(txns, ref)

	typeCodes, err := s.encodeDomain(DomainAccountType, accounts, func(a domain.Account) string { return a.AccountType })
	if err != nil {
		return nil, err
	}
	classCodes, err := s.encodeDomain(DomainClassification, accounts, func(a domain.Account) string { return a.Classification })
	if err != nil {
		return nil, err
	}
	objectiveCodes, err := s.encodeDomain(DomainObjective, accounts, func(a domain.Account) string { return a.Objective })
	if err != nil {
		return nil, err
	}

	out := make([]AccountFeatures, 0, len(accounts))
	for _, acc := range accounts {
		f := AccountFeatures{
			AccountID: acc.ID,
			ShortName: acc.ShortName,
			ChurnFlag: panel.ChurnLagFlag(acc, ref, s.churnLagDays),
		}

		s.fillLifecycle(&f, acc, ref, typeCodes, classCodes, objectiveCodes)
		if err := s.fillPortfolio(&f, snapsByAccount[acc.ID], pnlWindows); err != nil {
			return nil, err
		}
		if err := s.fillTransactions(&f, txnsByAccount[acc.ID], ref, txnWindows, lastTxn); err != nil {
			return nil, err
		}
		s.fillRisk(&f)

		out = append(out, f)
	}

	s.log.Info().
		Int("accounts", len(out)).
		Int("windows", len(s.windows)).
		Msg("Account feature set built")

	return out, nil
}

func (s *Service) fillLifecycle(f *AccountFeatures, acc domain.Account, ref time.Time, typeCodes, classCodes, objectiveCodes map[string]int) {
	if acc.HasOpenDate() {
		f.AccountAgeDays = int(ref.Sub(acc.OpenDate).Hours() / 24)
		f.AccountAgeYears = float64(f.AccountAgeDays) / 365.25
	}

	f.DaysSinceClose = -1
	if acc.Closed() {
		f.IsClosed = 1
		f.DaysSinceClose = int(ref.Sub(*acc.CloseDate).Hours() / 24)
	}

	f.CapitalCommitment = acc.CapitalCommitment
	if acc.CapitalCommitment > 0 {
		f.HasCapitalCommitment = 1
	}
	f.LogCapitalCommitment = math.Log1p(acc.CapitalCommitment)

	if acc.DomicileCountry == "US" {
		f.IsUSAccount = 1
	}
	if highTaxStates[acc.DomicileState] {
		f.IsHighTaxState = 1
	}
	if acc.BookCurrency == domain.CurrencyUSD {
		f.IsUSDAccount = 1
	}

	f.AccountTypeCode = codeOrMissing(typeCodes, acc.AccountType)
	f.ClassificationCode = codeOrMissing(classCodes, acc.Classification)
	f.ObjectiveCode = codeOrMissing(objectiveCodes, acc.Objective)
}

func (s *Service) fillPortfolio(f *AccountFeatures, snaps []domain.PositionSnapshot, pnlWindows map[int]map[string]aggregation.TrailingPnL) error {
	f.PnLWindows = make(map[int]aggregation.TrailingPnL, len(s.windows))
	for _, days := range s.windows {
		if w, ok := pnlWindows[days][f.AccountID]; ok {
			f.PnLWindows[days] = w
		} else {
			f.PnLWindows[days] = aggregation.TrailingPnL{AccountID: f.AccountID, WindowDays: days}
		}
	}

	if len(snaps) == 0 {
		f.PrimaryAssetClass = ""
		f.PrimaryAssetClassCode = encoding.MissingCode
		return nil
	}

	ordered := make([]domain.PositionSnapshot, len(snaps))
	copy(ordered, snaps)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].AsOf.Before(ordered[j].AsOf) })

	latest := ordered[len(ordered)-1]
	f.CurrentMarketValue = latest.MarketValue
	f.CurrentUnrealizedPnL = latest.UnrealizedGL

	classCounts := make(map[string]int)
	values := make([]float64, 0, len(ordered))
	for _, snap := range ordered {
		if snap.AssetClass != "" {
			classCounts[snap.AssetClass]++
		}
		values = append(values, snap.MarketValue)
	}

	f.NumAssetClasses = len(classCounts)
	f.PrimaryAssetClass, f.TopAssetClassConcentration = dominant(classCounts, len(ordered))

	code, err := s.dict.Code(DomainAssetClass, f.PrimaryAssetClass)
	if err != nil {
		return err
	}
	f.PrimaryAssetClassCode = code

	f.MaxDrawdownPct = formulas.MaxDrawdownPct(values)
	f.ValueAtRisk = formulas.ValueAtRisk(values, varQuantile)

	return nil
}

func (s *Service) fillTransactions(f *AccountFeatures, txns []domain.Transaction, ref time.Time, txnWindows map[int]map[string]aggregation.TrailingTxn, lastTxn map[string]int) error {
	f.TxnWindows = make(map[int]aggregation.TrailingTxn, len(s.windows))
	for _, days := range s.windows {
		if w, ok := txnWindows[days][f.AccountID]; ok {
			f.TxnWindows[days] = w
		} else {
			f.TxnWindows[days] = aggregation.TrailingTxn{AccountID: f.AccountID, WindowDays: days}
		}
	}

	f.DaysSinceLastTransaction = aggregation.NoRecentTransactions
	if days, ok := lastTxn[f.AccountID]; ok {
		f.DaysSinceLastTransaction = days
	}

	if len(txns) == 0 {
		f.PrimaryTransactionType = ""
		f.PrimaryTransactionTypeCode = encoding.MissingCode
		return nil
	}

	f.TotalTransactions = len(txns)

	typeCounts := make(map[string]int)
	for _, txn := range txns {
		abs := math.Abs(txn.BookAmount)
		f.TotalTransactionVolume += abs
		if abs > f.MaxTransactionSize {
			f.MaxTransactionSize = abs
		}
		if txn.EventType != "" {
			typeCounts[txn.EventType]++
		}
	}
	f.AvgTransactionSize = f.TotalTransactionVolume / float64(len(txns))

	f.NumTransactionTypes = len(typeCounts)
	f.PrimaryTransactionType, f.PrimaryTransactionTypePct = dominant(typeCounts, len(txns))

	code, err := s.dict.Code(DomainTransactionType, f.PrimaryTransactionType)
	if err != nil {
		return err
	}
	f.PrimaryTransactionTypeCode = code

	f.ConsistencyScore = consistencyScore(txns)
	f.ActivityDecay = activityDecay(txns, ref)

	return nil
}

func (s *Service) fillRisk(f *AccountFeatures) {
	vol := f.PnLWindows[s.riskWindows.VolatilityDays]
	act := f.TxnWindows[s.riskWindows.ActivityDays]
	trend := f.PnLWindows[s.riskWindows.TrendDays]

	f.Risk = s.scorer.Score(risk.Inputs{
		MarketValueStd:       vol.StdMarketValue,
		MarketValueAvg:       vol.AvgMarketValue,
		TransactionFrequency: act.Frequency,
		MarketValueTrend:     trend.MarketValueTrend,
	})
}

func (s *Service) encodeDomain(dictDomain string, accounts []domain.Account, field func(domain.Account) string) (map[string]int, error) {
	values := make([]string, 0, len(accounts))
	for _, acc := range accounts {
		values = append(values, field(acc))
	}
	return s.dict.Encode(dictDomain, values)
}

func codeOrMissing(codes map[string]int, value string) int {
	if code, ok := codes[value]; ok && value != "" {
		return code
	}
	return encoding.MissingCode
}

// dominant returns the most frequent key and its share of total. Ties
// break towards the lexicographically smaller key so runs are
// deterministic.
func dominant(counts map[string]int, total int) (string, float64) {
	best := ""
	bestCount := 0
	for key, count := range counts {
		if count > bestCount || (count == bestCount && best != "" && key < best) {
			best = key
			bestCount = count
		}
	}
	if total == 0 || best == "" {
		return best, 0
	}
	return best, float64(bestCount) / float64(total)
}

// consistencyScore measures how regular an account's trading cadence is,
// from the spread of gaps between consecutive dated transactions. Perfectly
// regular cadence scores 1; irregular cadence decays towards 0. Fewer than
// three dated transactions scores 0.
func consistencyScore(txns []domain.Transaction) float64 {
	var dates []time.Time
	for _, txn := range txns {
		if !txn.EventDate.IsZero() {
			dates = append(dates, txn.EventDate)
		}
	}
	if len(dates) <= 2 {
		return 0
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	intervals := make([]float64, 0, len(dates)-1)
	for i := 1; i < len(dates); i++ {
		intervals = append(intervals, dates[i].Sub(dates[i-1]).Hours()/24)
	}

	std := formulas.StdDev(intervals)
	if math.IsNaN(std) || std == 0 {
		return 1
	}
	return 1 / (1 + std)
}

// activityDecay buckets the account's dated transactions into trailing
// monthly counts and smooths them with an EMA, so recent activity levels
// dominate the signal.
func activityDecay(txns []domain.Transaction, ref time.Time) float64 {
	refMonth := domain.MonthOf(ref)
	startIdx := refMonth.Index() - (activityMonths - 1)

	counts := make([]float64, activityMonths)
	for _, txn := range txns {
		if txn.EventDate.IsZero() {
			continue
		}
		idx := domain.MonthOf(txn.EventDate).Index()
		if idx < startIdx || idx > refMonth.Index() {
			continue
		}
		counts[idx-startIdx]++
	}

	return formulas.DecayedActivity(counts, activityEMAPeriod)
}
