// Package merge builds the suffix-disambiguated comparison frames the
// classifiers consume. It fetches both sides of each dataset family in
// parallel, outer-joins them on their business keys, and computes the
// derived trading columns.
package merge

import (
	"context"

	"nav-validation-service/internal/models"
	"nav-validation-service/internal/table"
	"nav-validation-service/pkg/errors"
	"nav-validation-service/pkg/logger"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// Key column names shared by the dataset tables.
const (
	ColFund          = "fund"
	ColProductName   = "productName"
	ColAssetClass    = "assetClass"
	ColAccountLevel1 = "accountLevel1"
	ColAccountLevel2 = "accountLevel2"
	ColAccountName   = "accountName"
	ColSubType       = "subType"
	ColCategory      = "category"
	ColKind          = "kind"
)

// Value column names.
const (
	ColQuantity      = "quantity"
	ColMarketValue   = "marketValue"
	ColFXRate        = "fxRate"
	ColEndingBalance = "endingBalance"
	ColAmount        = "amount"
)

// Derived columns computed on the merged positions frame.
const (
	ColTradedQuantity   = "tradedQuantity"
	ColFullyTraded      = "fullyTraded"
	ColChangeInValue    = "changeInValue"
	ColValueOfTrades    = "valueOfTrades"
	ColPctChangeInValue = "pctChangeInValue"
)

// DataProvider is the data access layer the engine consumes. Providers
// return the full table for a fund/source/date slice; an empty table is
// a legitimate result the engine converts into a distinct no-data
// condition.
type DataProvider interface {
	TrialBalance(ctx context.Context, fund string, d models.SourceDescriptor) (*table.Table, error)
	Positions(ctx context.Context, fund string, d models.SourceDescriptor) (*table.Table, error)
	Capital(ctx context.Context, fund string, d models.SourceDescriptor) (*table.Table, error)
	ExpenseRevenue(ctx context.Context, fund string, d models.SourceDescriptor) (*table.Table, error)
}

// DatasetResult is the typed outcome of building one merged dataset:
// either a usable table or the error that prevented it. Callers check
// Err to distinguish "no data filed for this period" from a usable
// frame, instead of catching exceptions.
type DatasetResult struct {
	Table *table.Table
	Err   error
}

// OK reports whether the dataset merged successfully
func (r DatasetResult) OK() bool {
	return r.Err == nil && r.Table != nil
}

// ComparisonSet carries every merged frame for one comparison request.
type ComparisonSet struct {
	Fund     string
	SourceA  models.SourceDescriptor
	SourceB  models.SourceDescriptor
	Mode     models.ComparisonMode
	RawPositionsA  *table.Table
	RawPositionsB  *table.Table
	TrialBalance   DatasetResult
	Positions      DatasetResult
	Capital        DatasetResult
	ExpenseRevenue DatasetResult
}

// Engine fetches and merges dataset pairs.
type Engine struct {
	provider DataProvider
	log      logger.Logger
}

// NewEngine creates a merge engine over the given data provider
func NewEngine(provider DataProvider) *Engine {
	return &Engine{
		provider: provider,
		log:      logger.GetGlobalLogger().WithComponent("merge_engine"),
	}
}

// BuildComparison fetches both sides of all dataset families and merges
// them. The descriptor pair must satisfy the comparison invariant;
// violating it is a fatal configuration error. Individual datasets that
// are missing for a period are recorded on the result rather than
// failing the whole build.
func (e *Engine) BuildComparison(ctx context.Context, fund string, a, b models.SourceDescriptor) (*ComparisonSet, error) {
	mode, err := models.ResolveComparisonMode(a, b)
	if err != nil {
		return nil, errors.InvariantViolation(err.Error())
	}

	e.log.WithFields(logger.Fields{
		"fund":     fund,
		"source_a": a.String(),
		"source_b": b.String(),
		"mode":     string(mode),
	}).Debug("Building comparison frames")

	type fetched struct {
		tbA, tbB       *table.Table
		posA, posB     *table.Table
		capA, capB     *table.Table
		expA, expB     *table.Table
	}
	var f fetched

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { f.tbA, err = e.provider.TrialBalance(gctx, fund, a); return })
	g.Go(func() (err error) { f.tbB, err = e.provider.TrialBalance(gctx, fund, b); return })
	g.Go(func() (err error) { f.posA, err = e.provider.Positions(gctx, fund, a); return })
	g.Go(func() (err error) { f.posB, err = e.provider.Positions(gctx, fund, b); return })
	g.Go(func() (err error) { f.capA, err = e.provider.Capital(gctx, fund, a); return })
	g.Go(func() (err error) { f.capB, err = e.provider.Capital(gctx, fund, b); return })
	g.Go(func() (err error) { f.expA, err = e.provider.ExpenseRevenue(gctx, fund, a); return })
	g.Go(func() (err error) { f.expB, err = e.provider.ExpenseRevenue(gctx, fund, b); return })
	if err := g.Wait(); err != nil {
		return nil, errors.WrapIfNeeded(err, errors.CategoryData, errors.CodeMissingDataset, "dataset fetch failed")
	}

	set := &ComparisonSet{
		Fund:          fund,
		SourceA:       a,
		SourceB:       b,
		Mode:          mode,
		RawPositionsA: f.posA,
		RawPositionsB: f.posB,
	}

	set.TrialBalance = e.mergeDataset(models.DatasetTrialBalance, fund, a, b, f.tbA, f.tbB,
		[]string{ColFund, ColAccountLevel1, ColAccountLevel2, ColAccountName})
	set.Capital = e.mergeDataset(models.DatasetCapital, fund, a, b, f.capA, f.capB,
		[]string{ColFund, ColSubType})
	set.ExpenseRevenue = e.mergeDataset(models.DatasetExpenseRevenue, fund, a, b, f.expA, f.expB,
		[]string{ColFund, ColCategory, ColKind})

	set.Positions = e.mergeDataset(models.DatasetPositions, fund, a, b, f.posA, f.posB,
		[]string{ColFund, ColProductName, ColAssetClass})
	if set.Positions.OK() {
		EnrichPositions(set.Positions.Table)
	}

	return set, nil
}

// mergeDataset outer-joins one dataset pair, converting empty sides into
// the typed no-data condition
func (e *Engine) mergeDataset(kind models.DatasetKind, fund string, a, b models.SourceDescriptor, tblA, tblB *table.Table, on []string) DatasetResult {
	if tblA == nil || tblA.IsEmpty() {
		return DatasetResult{Err: errors.DataError(errors.CodeEmptyDataset, string(kind), fund, a.Source, a.DateString())}
	}
	if tblB == nil || tblB.IsEmpty() {
		return DatasetResult{Err: errors.DataError(errors.CodeEmptyDataset, string(kind), fund, b.Source, b.DateString())}
	}

	merged, err := table.OuterJoin(tblA, tblB, on)
	if err != nil {
		return DatasetResult{Err: errors.InternalError(errors.CodeUnexpectedError, "merge_engine", err)}
	}

	e.log.WithFields(logger.Fields{
		"dataset": string(kind),
		"rows_a":  tblA.Len(),
		"rows_b":  tblB.Len(),
		"merged":  merged.Len(),
	}).Debug("Merged dataset pair")

	return DatasetResult{Table: merged}
}

// EnrichPositions computes the derived trading columns on a merged
// positions frame. Quantity aggregates are explicitly zero-filled;
// market values keep their nulls so missing-price detection still sees
// them.
func EnrichPositions(merged *table.Table) {
	merged.AddNumCol(ColTradedQuantity)
	merged.AddNumCol(ColFullyTraded)
	merged.AddNumCol(ColChangeInValue)
	merged.AddNumCol(ColValueOfTrades)
	merged.AddNumCol(ColPctChangeInValue)

	for _, row := range merged.Rows() {
		qtyA := row.Num(ColQuantity + table.SuffixSourceA)
		qtyB := row.Num(ColQuantity + table.SuffixSourceB)
		mvA := row.Num(ColMarketValue + table.SuffixSourceA)
		mvB := row.Num(ColMarketValue + table.SuffixSourceB)

		traded := table.OrZero(qtyB).Sub(table.OrZero(qtyA))
		row.SetNum(ColTradedQuantity, table.Dec(traded))

		fullyTraded := table.IsZeroOrMissing(qtyA) || table.IsZeroOrMissing(qtyB)
		if fullyTraded {
			row.SetNum(ColFullyTraded, table.FromInt(1))
		} else {
			row.SetNum(ColFullyTraded, table.FromInt(0))
		}

		change := table.OrZero(mvB).Sub(table.OrZero(mvA))
		row.SetNum(ColChangeInValue, table.Dec(change))

		// A fully entered position contributes its side-B value, a fully
		// exited one the negated side-A value. Partially traded rows
		// carry no trade value.
		var tradeValue decimal.Decimal
		if fullyTraded {
			if table.IsMissing(mvA) {
				tradeValue = table.OrZero(mvB)
			} else {
				tradeValue = mvA.Decimal.Neg()
			}
		}
		row.SetNum(ColValueOfTrades, table.Dec(tradeValue))

		if table.OrZero(mvA).IsZero() {
			row.SetNum(ColPctChangeInValue, table.Null())
		} else {
			row.SetNum(ColPctChangeInValue, table.Dec(change.Div(mvA.Decimal)))
		}
	}
}

// IsFullyTraded reads the derived fully-traded flag from a merged row
func IsFullyTraded(row *table.Row) bool {
	v := row.Num(ColFullyTraded)
	return v.Valid && !v.Decimal.IsZero()
}

// TrialBalanceTable converts trial balance records to their table form
func TrialBalanceTable(entries []*models.TrialBalanceEntry) *table.Table {
	tbl := table.New(
		[]string{ColFund, ColAccountLevel1, ColAccountLevel2, ColAccountName},
		[]string{ColEndingBalance},
	)
	for _, e := range entries {
		tbl.Append(table.NewRow().
			SetKey(ColFund, e.Fund).
			SetKey(ColAccountLevel1, e.AccountLevel1).
			SetKey(ColAccountLevel2, e.AccountLevel2).
			SetKey(ColAccountName, e.AccountName).
			SetNum(ColEndingBalance, e.EndingBalance))
	}
	return tbl
}

// PositionsTable converts position records to their table form
func PositionsTable(positions []*models.Position) *table.Table {
	tbl := table.New(
		[]string{ColFund, ColProductName, ColAssetClass},
		[]string{ColQuantity, ColMarketValue, ColFXRate},
	)
	for _, p := range positions {
		tbl.Append(table.NewRow().
			SetKey(ColFund, p.Fund).
			SetKey(ColProductName, p.ProductName).
			SetKey(ColAssetClass, p.AssetClass).
			SetNum(ColQuantity, p.Quantity).
			SetNum(ColMarketValue, p.MarketValue).
			SetNum(ColFXRate, p.FXRate))
	}
	return tbl
}

// CapitalTable converts capital activity records to their table form
func CapitalTable(entries []*models.CapitalActivity) *table.Table {
	tbl := table.New([]string{ColFund, ColSubType}, []string{ColAmount})
	for _, c := range entries {
		tbl.Append(table.NewRow().
			SetKey(ColFund, c.Fund).
			SetKey(ColSubType, c.SubType).
			SetNum(ColAmount, c.Amount))
	}
	return tbl
}

// ExpenseRevenueTable converts expense/revenue records to their table form
func ExpenseRevenueTable(entries []*models.ExpenseRevenueEntry) *table.Table {
	tbl := table.New([]string{ColFund, ColCategory, ColKind}, []string{ColAmount})
	for _, e := range entries {
		tbl.Append(table.NewRow().
			SetKey(ColFund, e.Fund).
			SetKey(ColCategory, e.Category).
			SetKey(ColKind, string(e.Kind)).
			SetNum(ColAmount, e.Amount))
	}
	return tbl
}
