package exec

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/example/lstore/internal/logging"
	"github.com/example/lstore/internal/table"
)

// ErrInvalidProjection is returned for a projection mask that is not made of
// zeros and ones.
var ErrInvalidProjection = errors.New("exec: projection entries must be 0 or 1")

// Result describes the outcome of an operation in printable form.
type Result struct {
	Columns      []string
	Rows         [][]string
	RowsAffected int
	Message      string
}

// Executor runs record-level operations against a single table. It mirrors
// the table API with the calling conventions used by tooling: variadic
// values, 0/1 projection masks and nil-for-unchanged updates.
type Executor struct {
	table *table.Table
	log   *slog.Logger
}

// New creates an executor for tbl.
func New(tbl *table.Table) *Executor {
	return &Executor{table: tbl, log: logging.WithTable(tbl.Name()).With("component", "exec")}
}

// Table returns the table the executor operates on.
func (e *Executor) Table() *table.Table { return e.table }

// Insert stores one record.
func (e *Executor) Insert(values ...int64) error {
	_, err := e.table.Insert(values)
	return err
}

// Select returns the latest version of every record whose column equals
// value. projected holds one 0/1 entry per column.
func (e *Executor) Select(value int64, column int, projected []int) ([]table.Record, error) {
	return e.SelectVersion(value, column, projected, 0)
}

// SelectVersion is Select reading relativeVersion versions back (0 latest,
// -1 previous, and so on).
func (e *Executor) SelectVersion(value int64, column int, projected []int, relativeVersion int) ([]table.Record, error) {
	mask, err := e.mask(projected)
	if err != nil {
		return nil, err
	}
	cur, err := e.table.SelectVersion(value, column, mask, relativeVersion)
	if err != nil {
		return nil, err
	}
	return cur.All()
}

// Update writes a new version of the record with primary key key. A nil
// value leaves its column unchanged.
func (e *Executor) Update(key int64, values ...*int64) error {
	return e.table.Update(key, values)
}

// Delete removes the record with primary key key.
func (e *Executor) Delete(key int64) error {
	return e.table.Delete(key)
}

// Sum adds column over the live records with keys in [start, end].
func (e *Executor) Sum(start, end int64, column int) (int64, error) {
	return e.table.Sum(start, end, column)
}

// SumVersion is Sum over the version selected by relativeVersion.
func (e *Executor) SumVersion(start, end int64, column, relativeVersion int) (int64, error) {
	return e.table.SumVersion(start, end, column, relativeVersion)
}

// Increment adds one to column of the record with primary key key.
func (e *Executor) Increment(key int64, column int) error {
	v, err := e.table.Increment(key, column, 1)
	if err != nil {
		return err
	}
	e.log.Debug("incremented", "key", key, "column", column, "value", v)
	return nil
}

// Average returns the exact mean of column over the live records with keys
// in [start, end].
func (e *Executor) Average(start, end int64, column int) (decimal.Decimal, error) {
	values, err := e.table.Values(start, end, column)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if len(values) == 0 {
		return decimal.Decimal{}, fmt.Errorf("%w: no records with keys in [%d, %d]", table.ErrNotFound, start, end)
	}
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(decimal.NewFromInt(v))
	}
	return total.Div(decimal.NewFromInt(int64(len(values)))), nil
}

func (e *Executor) mask(projected []int) ([]bool, error) {
	if projected == nil {
		return nil, nil
	}
	if len(projected) != e.table.NumColumns() {
		return nil, fmt.Errorf("%w: projection has %d entries, want %d", table.ErrColumnCount, len(projected), e.table.NumColumns())
	}
	mask := make([]bool, len(projected))
	for i, p := range projected {
		switch p {
		case 0:
		case 1:
			mask[i] = true
		default:
			return nil, fmt.Errorf("%w: entry %d is %d", ErrInvalidProjection, i, p)
		}
	}
	return mask, nil
}

// FormatRecords renders records as a Result. projected is the mask the
// records were read with; nil means every column.
func FormatRecords(numColumns int, projected []int, records []table.Record) *Result {
	res := &Result{Columns: []string{"rid"}, RowsAffected: len(records)}
	for i := 0; i < numColumns; i++ {
		if projected == nil || projected[i] == 1 {
			res.Columns = append(res.Columns, "c"+strconv.Itoa(i))
		}
	}
	for _, rec := range records {
		row := make([]string, 0, len(rec.Columns)+1)
		row = append(row, strconv.FormatUint(rec.RID, 10))
		for _, v := range rec.Columns {
			row = append(row, strconv.FormatInt(v, 10))
		}
		res.Rows = append(res.Rows, row)
	}
	res.Message = fmt.Sprintf("%d record(s)", len(records))
	return res
}
