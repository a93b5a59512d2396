// Package matrix implements the dense row-major float64 matrix shared by the
// engine's workers.
//
// A Matrix owns (or borrows) one contiguous buffer. Workers never touch the
// Matrix directly; they go through a read-only View or a RowWriter. Neither
// performs any locking: concurrent reads are always safe because views never
// mutate, and concurrent writes are safe only under the scheduler's
// row-disjointness contract (no two in-flight chunks own the same row).
// Bounds violations are programming errors and panic.
package matrix

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	xxhash "github.com/cespare/xxhash/v2"

	"github.com/paveg/divmat/internal/errors"
)

// Matrix is a dense row-major float64 matrix.
type Matrix struct {
	rows int
	cols int
	data []float64
}

// New creates a zeroed rows x cols matrix. Negative dimensions panic.
func New(rows, cols int) *Matrix {
	if rows < 0 || cols < 0 {
		panic(fmt.Sprintf("matrix: invalid dimensions %dx%d", rows, cols))
	}
	return &Matrix{
		rows: rows,
		cols: cols,
		data: make([]float64, rows*cols),
	}
}

// FromSlice wraps an existing row-major buffer without copying. The caller
// keeps ownership of data and must not resize it while the matrix is in use.
func FromSlice(rows, cols int, data []float64) (*Matrix, error) {
	if rows < 0 || cols < 0 {
		return nil, errors.NewInvalidInputError("Matrix", fmt.Sprintf("invalid dimensions %dx%d", rows, cols))
	}
	if len(data) != rows*cols {
		return nil, errors.NewDimensionError("Matrix", rows, cols, len(data))
	}
	return &Matrix{rows: rows, cols: cols, data: data}, nil
}

// FromRows copies row slices into a new matrix. Every row must have the same
// length.
func FromRows(rows [][]float64) (*Matrix, error) {
	if len(rows) == 0 {
		return New(0, 0), nil
	}
	cols := len(rows[0])
	m := New(len(rows), cols)
	for i, row := range rows {
		if len(row) != cols {
			return nil, errors.NewInvalidInputError("Matrix",
				fmt.Sprintf("row %d has %d columns, expected %d", i, len(row), cols))
		}
		copy(m.data[i*cols:(i+1)*cols], row)
	}
	return m, nil
}

// FromRecord builds a matrix from an arrow record whose columns are all
// float64. Column j of the record becomes column j of the matrix. The record
// is not retained; the caller releases it.
func FromRecord(rec arrow.Record) (*Matrix, error) {
	rows := int(rec.NumRows())
	cols := int(rec.NumCols())
	m := New(rows, cols)
	for j := 0; j < cols; j++ {
		col, ok := rec.Column(j).(*array.Float64)
		if !ok {
			return nil, errors.NewInvalidInputError("FromRecord",
				fmt.Sprintf("column %q is %s, expected float64", rec.ColumnName(j), rec.Column(j).DataType()))
		}
		if col.NullN() > 0 {
			return nil, errors.NewInvalidInputError("FromRecord",
				fmt.Sprintf("column %q contains nulls", rec.ColumnName(j)))
		}
		for i := 0; i < rows; i++ {
			m.data[i*cols+j] = col.Value(i)
		}
	}
	return m, nil
}

// ToRecord exports the matrix as an arrow record with float64 columns named
// c0..c{cols-1}, built with mem. The caller releases the record.
func (m *Matrix) ToRecord(mem memory.Allocator) arrow.Record {
	if mem == nil {
		mem = memory.NewGoAllocator()
	}

	fields := make([]arrow.Field, m.cols)
	for j := range fields {
		fields[j] = arrow.Field{Name: fmt.Sprintf("c%d", j), Type: arrow.PrimitiveTypes.Float64}
	}
	schema := arrow.NewSchema(fields, nil)

	columns := make([]arrow.Array, m.cols)
	column := make([]float64, m.rows)
	for j := 0; j < m.cols; j++ {
		for i := 0; i < m.rows; i++ {
			column[i] = m.data[i*m.cols+j]
		}
		builder := array.NewFloat64Builder(mem)
		builder.AppendValues(column, nil)
		columns[j] = builder.NewArray()
		builder.Release()
	}

	rec := array.NewRecord(schema, columns, int64(m.rows))
	for _, col := range columns {
		col.Release()
	}
	return rec
}

// Rows returns the number of rows.
func (m *Matrix) Rows() int { return m.rows }

// Cols returns the number of columns.
func (m *Matrix) Cols() int { return m.cols }

// Row returns row i as a sub-slice of the underlying buffer.
func (m *Matrix) Row(i int) []float64 {
	m.checkRow(i)
	return m.data[i*m.cols : (i+1)*m.cols]
}

// At returns the element at (i, j).
func (m *Matrix) At(i, j int) float64 {
	m.checkRow(i)
	m.checkCol(j)
	return m.data[i*m.cols+j]
}

// Set stores v at (i, j).
func (m *Matrix) Set(i, j int, v float64) {
	m.checkRow(i)
	m.checkCol(j)
	m.data[i*m.cols+j] = v
}

// Data returns the underlying row-major buffer.
func (m *Matrix) Data() []float64 { return m.data }

// View returns a read-only view safe for concurrent use from any number of
// goroutines.
func (m *Matrix) View() View {
	return View{m: m}
}

// RowWriter returns a writer for single-cell stores. Concurrent use is safe
// only while each row index is written by at most one goroutine at a time;
// the writer itself takes no locks.
func (m *Matrix) RowWriter() RowWriter {
	return RowWriter{m: m}
}

// Fingerprint returns an xxhash64 digest of the raw buffer. Two matrices
// with bit-identical contents and equal shape have equal fingerprints.
func (m *Matrix) Fingerprint() uint64 {
	digest := xxhash.New()
	var scratch [8]byte
	binary.LittleEndian.PutUint64(scratch[:], uint64(m.rows))
	_, _ = digest.Write(scratch[:])
	for _, v := range m.data {
		binary.LittleEndian.PutUint64(scratch[:], math.Float64bits(v))
		_, _ = digest.Write(scratch[:])
	}
	return digest.Sum64()
}

func (m *Matrix) checkRow(i int) {
	if i < 0 || i >= m.rows {
		panic(fmt.Sprintf("matrix: row index %d out of range [0, %d)", i, m.rows))
	}
}

func (m *Matrix) checkCol(j int) {
	if j < 0 || j >= m.cols {
		panic(fmt.Sprintf("matrix: column index %d out of range [0, %d)", j, m.cols))
	}
}

// View is a read-only window over a Matrix.
type View struct {
	m *Matrix
}

// Rows returns the number of rows.
func (v View) Rows() int { return v.m.rows }

// Cols returns the number of columns.
func (v View) Cols() int { return v.m.cols }

// Row returns row i as a sub-slice of the underlying buffer. Callers must
// not mutate it.
func (v View) Row(i int) []float64 { return v.m.Row(i) }

// At returns the element at (i, j).
func (v View) At(i, j int) float64 { return v.m.At(i, j) }

// RowWriter grants single-cell write access under the scheduler's
// row-disjointness contract.
type RowWriter struct {
	m *Matrix
}

// Rows returns the number of rows.
func (w RowWriter) Rows() int { return w.m.rows }

// Cols returns the number of columns.
func (w RowWriter) Cols() int { return w.m.cols }

// Set stores v at (i, j).
func (w RowWriter) Set(i, j int, v float64) { w.m.Set(i, j, v) }
