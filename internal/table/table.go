// Package table provides an explicit tabular abstraction for the merge
// engine and classifiers: ordered rows with string key columns and
// nullable decimal value columns, plus the outer-join and aggregation
// operations the validations depend on. Null propagation is explicit; a
// missing value never silently becomes zero.
package table

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Column suffixes applied to value columns during a two-source join.
// The separator keeps suffixed names collision-free with natural column
// names.
const (
	SuffixSeparator = "___"
	SuffixSourceA   = SuffixSeparator + "sourceA"
	SuffixSourceB   = SuffixSeparator + "sourceB"
)

// keySeparator joins composite key parts. A unit separator cannot occur
// in business key values.
const keySeparator = "\x1f"

// Null returns a missing value
func Null() decimal.NullDecimal {
	return decimal.NullDecimal{}
}

// Dec wraps a decimal into a present value
func Dec(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

// FromFloat wraps a float into a present value
func FromFloat(f float64) decimal.NullDecimal {
	return Dec(decimal.NewFromFloat(f))
}

// FromInt wraps an int into a present value
func FromInt(i int64) decimal.NullDecimal {
	return Dec(decimal.NewFromInt(i))
}

// IsMissing reports whether a value is null
func IsMissing(v decimal.NullDecimal) bool {
	return !v.Valid
}

// IsZeroOrMissing reports whether a value is null or exactly zero. The
// fully-traded and missing-price checks treat both states the same way.
func IsZeroOrMissing(v decimal.NullDecimal) bool {
	return !v.Valid || v.Decimal.IsZero()
}

// OrZero returns the value with nulls coerced to zero, for aggregate
// columns that explicitly want zero-filled semantics.
func OrZero(v decimal.NullDecimal) decimal.Decimal {
	if !v.Valid {
		return decimal.Zero
	}
	return v.Decimal
}

// Row is one record: string-valued key columns and nullable decimal
// value columns.
type Row struct {
	keys map[string]string
	nums map[string]decimal.NullDecimal
}

// NewRow creates an empty row
func NewRow() *Row {
	return &Row{
		keys: make(map[string]string),
		nums: make(map[string]decimal.NullDecimal),
	}
}

// SetKey sets a key column value
func (r *Row) SetKey(col, value string) *Row {
	r.keys[col] = value
	return r
}

// SetNum sets a value column
func (r *Row) SetNum(col string, value decimal.NullDecimal) *Row {
	r.nums[col] = value
	return r
}

// Key returns a key column value, empty when absent
func (r *Row) Key(col string) string {
	return r.keys[col]
}

// Num returns a value column, null when absent
func (r *Row) Num(col string) decimal.NullDecimal {
	return r.nums[col]
}

// HasNum reports whether a value column is present on the row, even as
// an explicit null
func (r *Row) HasNum(col string) bool {
	_, ok := r.nums[col]
	return ok
}

// Clone returns a deep copy of the row
func (r *Row) Clone() *Row {
	c := NewRow()
	for k, v := range r.keys {
		c.keys[k] = v
	}
	for k, v := range r.nums {
		c.nums[k] = v
	}
	return c
}

// Table is an ordered sequence of rows with a declared schema.
type Table struct {
	KeyCols []string
	NumCols []string
	rows    []*Row
}

// New creates an empty table with the given schema
func New(keyCols, numCols []string) *Table {
	return &Table{
		KeyCols: append([]string(nil), keyCols...),
		NumCols: append([]string(nil), numCols...),
		rows:    make([]*Row, 0),
	}
}

// Append adds a row to the table
func (t *Table) Append(row *Row) {
	t.rows = append(t.rows, row)
}

// Len returns the number of rows
func (t *Table) Len() int {
	return len(t.rows)
}

// IsEmpty reports whether the table has no rows
func (t *Table) IsEmpty() bool {
	return len(t.rows) == 0
}

// Rows returns the underlying row slice in order
func (t *Table) Rows() []*Row {
	return t.rows
}

// HasNumCol reports whether the schema declares the value column
func (t *Table) HasNumCol(col string) bool {
	for _, c := range t.NumCols {
		if c == col {
			return true
		}
	}
	return false
}

// AddNumCol declares an additional value column, for derived columns
// computed after a join
func (t *Table) AddNumCol(col string) {
	if !t.HasNumCol(col) {
		t.NumCols = append(t.NumCols, col)
	}
}

// Filter returns a new table containing rows matching the predicate
func (t *Table) Filter(pred func(*Row) bool) *Table {
	out := New(t.KeyCols, t.NumCols)
	for _, row := range t.rows {
		if pred(row) {
			out.Append(row)
		}
	}
	return out
}

// SumNum sums a value column, skipping nulls
func (t *Table) SumNum(col string) decimal.Decimal {
	sum := decimal.Zero
	for _, row := range t.rows {
		v := row.Num(col)
		if v.Valid {
			sum = sum.Add(v.Decimal)
		}
	}
	return sum
}

// SumNumFilled sums a value column with nulls coerced to zero. The
// result equals SumNum; it exists so call sites that deliberately want
// fillna-zero semantics say so.
func (t *Table) SumNumFilled(col string) decimal.Decimal {
	sum := decimal.Zero
	for _, row := range t.rows {
		sum = sum.Add(OrZero(row.Num(col)))
	}
	return sum
}

// TopNByAbs returns a new table holding the n rows with the largest
// absolute values in the given column. Null values sort last. Ties
// break by original row order, keeping results deterministic.
func (t *Table) TopNByAbs(col string, n int) *Table {
	type indexed struct {
		idx int
		row *Row
	}
	rows := make([]indexed, len(t.rows))
	for i, row := range t.rows {
		rows[i] = indexed{idx: i, row: row}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		vi, vj := rows[i].row.Num(col), rows[j].row.Num(col)
		switch {
		case !vi.Valid && !vj.Valid:
			return rows[i].idx < rows[j].idx
		case !vi.Valid:
			return false
		case !vj.Valid:
			return true
		default:
			return vi.Decimal.Abs().GreaterThan(vj.Decimal.Abs())
		}
	})

	if n > len(rows) {
		n = len(rows)
	}
	out := New(t.KeyCols, t.NumCols)
	for i := 0; i < n; i++ {
		out.Append(rows[i].row)
	}
	return out
}

// GroupRowsByKey buckets rows by the value of one key column, preserving
// row order within each bucket
func (t *Table) GroupRowsByKey(col string) map[string][]*Row {
	groups := make(map[string][]*Row)
	for _, row := range t.rows {
		groups[row.Key(col)] = append(groups[row.Key(col)], row)
	}
	return groups
}

// compositeKey builds the join key for a row over the given columns
func compositeKey(row *Row, on []string) string {
	parts := make([]string, len(on))
	for i, col := range on {
		parts[i] = row.Key(col)
	}
	return strings.Join(parts, keySeparator)
}

// OuterJoin joins two tables on the given key columns. Value columns are
// duplicated with source suffixes; key columns outside the join key are
// coalesced, left side first. Every key present in either input appears
// exactly once: left rows in order, then unmatched right rows in order.
// Rows absent on one side leave that side's value columns null.
func OuterJoin(left, right *Table, on []string) (*Table, error) {
	for _, col := range on {
		if !containsStr(left.KeyCols, col) {
			return nil, fmt.Errorf("join column '%s' not in left table key columns %v", col, left.KeyCols)
		}
		if !containsStr(right.KeyCols, col) {
			return nil, fmt.Errorf("join column '%s' not in right table key columns %v", col, right.KeyCols)
		}
	}

	keyCols := append([]string(nil), on...)
	for _, col := range left.KeyCols {
		if !containsStr(keyCols, col) {
			keyCols = append(keyCols, col)
		}
	}
	for _, col := range right.KeyCols {
		if !containsStr(keyCols, col) {
			keyCols = append(keyCols, col)
		}
	}

	numCols := make([]string, 0, len(left.NumCols)+len(right.NumCols))
	for _, col := range left.NumCols {
		numCols = append(numCols, col+SuffixSourceA)
	}
	for _, col := range right.NumCols {
		numCols = append(numCols, col+SuffixSourceB)
	}

	out := New(keyCols, numCols)

	rightIndex := make(map[string][]*Row, right.Len())
	rightOrder := make([]string, 0, right.Len())
	for _, row := range right.Rows() {
		key := compositeKey(row, on)
		if _, seen := rightIndex[key]; !seen {
			rightOrder = append(rightOrder, key)
		}
		rightIndex[key] = append(rightIndex[key], row)
	}

	matched := make(map[string]bool, len(rightIndex))
	for _, lrow := range left.Rows() {
		key := compositeKey(lrow, on)
		rrows := rightIndex[key]
		if len(rrows) == 0 {
			out.Append(joinedRow(lrow, nil, left, right))
			continue
		}
		matched[key] = true
		for _, rrow := range rrows {
			out.Append(joinedRow(lrow, rrow, left, right))
		}
	}

	for _, key := range rightOrder {
		if matched[key] {
			continue
		}
		for _, rrow := range rightIndex[key] {
			out.Append(joinedRow(nil, rrow, left, right))
		}
	}

	return out, nil
}

func joinedRow(lrow, rrow *Row, left, right *Table) *Row {
	row := NewRow()

	if lrow != nil {
		for _, col := range left.KeyCols {
			row.SetKey(col, lrow.Key(col))
		}
		for _, col := range left.NumCols {
			row.SetNum(col+SuffixSourceA, lrow.Num(col))
		}
	} else {
		for _, col := range left.NumCols {
			row.SetNum(col+SuffixSourceA, Null())
		}
	}

	if rrow != nil {
		for _, col := range right.KeyCols {
			if row.Key(col) == "" {
				row.SetKey(col, rrow.Key(col))
			}
		}
		for _, col := range right.NumCols {
			row.SetNum(col+SuffixSourceB, rrow.Num(col))
		}
	} else {
		for _, col := range right.NumCols {
			row.SetNum(col+SuffixSourceB, Null())
		}
	}

	return row
}

func containsStr(cols []string, col string) bool {
	for _, c := range cols {
		if c == col {
			return true
		}
	}
	return false
}
