package streetsim

import (
	"math"
	"slices"

	"github.com/pkg/errors"
)

// Number constrains the element types the arithmetic helpers work on.
type Number interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

// SparseMatrix is a dimensioned sparse table over unsigned indexes. Entries
// are keyed by the linearized index i*cols+j and cells never written read as
// the default value. Stored entries are not pruned: an explicit default
// insert, or an arithmetic result that cancels to zero, stays stored.
// A matrix with cols == 1 doubles as a column vector.
type SparseMatrix[T comparable] struct {
	data map[ID]T
	rows ID
	cols ID
}

// NewSparseMatrix returns an empty rows x cols matrix.
func NewSparseMatrix[T comparable](rows, cols ID) *SparseMatrix[T] {
	return &SparseMatrix[T]{data: make(map[ID]T), rows: rows, cols: cols}
}

// NewSparseVector returns an empty rows x 1 column vector.
func NewSparseVector[T comparable](rows ID) *SparseMatrix[T] {
	return NewSparseMatrix[T](rows, 1)
}

func (m *SparseMatrix[T]) Rows() ID { return m.rows }
func (m *SparseMatrix[T]) Cols() ID { return m.cols }

// Len returns the number of stored entries, including stored default values.
func (m *SparseMatrix[T]) Len() int { return len(m.data) }

// MaxLen returns the number of representable cells.
func (m *SparseMatrix[T]) MaxLen() ID { return m.rows * m.cols }

// Keys returns the linear keys of the stored entries in ascending order.
// Iteration over a SparseMatrix must go through Keys or ForEach wherever a
// priority or random decision depends on the order.
func (m *SparseMatrix[T]) Keys() []ID {
	keys := make([]ID, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// ForEach visits the stored entries in ascending key order.
func (m *SparseMatrix[T]) ForEach(fn func(i, j ID, v T)) {
	for _, k := range m.Keys() {
		fn(k/m.cols, k%m.cols, m.data[k])
	}
}

// Insert stores a value at (i, j). An already stored entry is kept untouched.
func (m *SparseMatrix[T]) Insert(i, j ID, v T) error {
	return m.InsertLinear(i*m.cols+j, v)
}

// InsertLinear stores a value at the linearized index k.
func (m *SparseMatrix[T]) InsertLinear(k ID, v T) error {
	if k >= m.rows*m.cols {
		return errors.Wrapf(ErrOutOfRange, "index %d out of range %d", k, m.rows*m.cols)
	}
	if _, ok := m.data[k]; !ok {
		m.data[k] = v
	}
	return nil
}

// InsertOrAssign stores a value at (i, j), overwriting any previous entry.
func (m *SparseMatrix[T]) InsertOrAssign(i, j ID, v T) error {
	return m.InsertOrAssignLinear(i*m.cols+j, v)
}

// InsertOrAssignLinear stores a value at the linearized index k, overwriting
// any previous entry.
func (m *SparseMatrix[T]) InsertOrAssignLinear(k ID, v T) error {
	if k >= m.rows*m.cols {
		return errors.Wrapf(ErrOutOfRange, "index %d out of range %d", k, m.rows*m.cols)
	}
	m.data[k] = v
	return nil
}

// InsertAndExpand grows the matrix until (i, j) is representable, then
// assigns. Both dimensions grow by the same delta; a 1-column vector grows
// rows only.
func (m *SparseMatrix[T]) InsertAndExpand(i, j ID, v T) {
	if i >= m.rows || j >= m.cols {
		delta := max(int64(i)-int64(m.rows), int64(j)-int64(m.cols))
		if m.cols == 1 {
			// Growing a vector by i-rows always lands the new index on the
			// old boundary, so one more row is needed.
			delta++
			m.ReshapeVector(m.rows + ID(delta))
		} else {
			if i >= m.rows+ID(delta) || j >= m.cols+ID(delta) {
				delta++
			}
			m.Reshape(m.rows+ID(delta), m.cols+ID(delta))
		}
	}
	m.data[i*m.cols+j] = v
}

// Erase removes the entry at (i, j).
func (m *SparseMatrix[T]) Erase(i, j ID) error {
	if i >= m.rows || j >= m.cols {
		return errors.Wrapf(ErrOutOfRange, "index (%d, %d) out of range (%d, %d)", i, j, m.rows, m.cols)
	}
	k := i*m.cols + j
	if _, ok := m.data[k]; !ok {
		return errors.Wrapf(ErrNotFound, "no entry at (%d, %d)", i, j)
	}
	delete(m.data, k)
	return nil
}

// EraseRow removes row r and renumbers the rows above it.
func (m *SparseMatrix[T]) EraseRow(r ID) error {
	if r >= m.rows {
		return errors.Wrapf(ErrOutOfRange, "row %d out of range %d", r, m.rows)
	}
	for j := ID(0); j < m.cols; j++ {
		delete(m.data, r*m.cols+j)
	}
	renumbered := make(map[ID]T, len(m.data))
	for k, v := range m.data {
		if k/m.cols < r {
			renumbered[k] = v
		} else {
			renumbered[k-m.cols] = v
		}
	}
	m.data = renumbered
	m.rows--
	return nil
}

// EraseColumn removes column c and renumbers the columns right of it.
func (m *SparseMatrix[T]) EraseColumn(c ID) error {
	if c >= m.cols {
		return errors.Wrapf(ErrOutOfRange, "column %d out of range %d", c, m.cols)
	}
	for i := ID(0); i < m.rows; i++ {
		delete(m.data, i*m.cols+c)
	}
	renumbered := make(map[ID]T, len(m.data))
	for k, v := range m.data {
		if k%m.cols < c {
			renumbered[k-k/m.cols] = v
		} else {
			renumbered[k/m.cols*(m.cols-1)+k%m.cols-1] = v
		}
	}
	m.data = renumbered
	m.cols--
	return nil
}

// EmptyRow drops every entry of row r, keeping the dimensions.
func (m *SparseMatrix[T]) EmptyRow(r ID) error {
	if r >= m.rows {
		return errors.Wrapf(ErrOutOfRange, "row %d out of range %d", r, m.rows)
	}
	for j := ID(0); j < m.cols; j++ {
		delete(m.data, r*m.cols+j)
	}
	return nil
}

// EmptyColumn drops every entry of column c, keeping the dimensions.
func (m *SparseMatrix[T]) EmptyColumn(c ID) error {
	if c >= m.cols {
		return errors.Wrapf(ErrOutOfRange, "column %d out of range %d", c, m.cols)
	}
	for i := ID(0); i < m.rows; i++ {
		delete(m.data, i*m.cols+c)
	}
	return nil
}

// Clear empties the matrix and zeroes its dimensions.
func (m *SparseMatrix[T]) Clear() {
	m.data = make(map[ID]T)
	m.rows = 0
	m.cols = 0
}

// Contains reports whether (i, j) holds a stored entry.
func (m *SparseMatrix[T]) Contains(i, j ID) (bool, error) {
	if i >= m.rows || j >= m.cols {
		return false, errors.Wrapf(ErrOutOfRange, "index (%d, %d) out of range (%d, %d)", i, j, m.rows, m.cols)
	}
	_, ok := m.data[i*m.cols+j]
	return ok, nil
}

// Has is the unguarded form of Contains: out-of-range indexes simply
// report false.
func (m *SparseMatrix[T]) Has(i, j ID) bool {
	if i >= m.rows || j >= m.cols {
		return false
	}
	_, ok := m.data[i*m.cols+j]
	return ok
}

// At returns the entry at (i, j), or the default value when unmapped.
func (m *SparseMatrix[T]) At(i, j ID) (T, error) {
	var zero T
	if i >= m.rows || j >= m.cols {
		return zero, errors.Wrapf(ErrOutOfRange, "index (%d, %d) out of range (%d, %d)", i, j, m.rows, m.cols)
	}
	return m.data[i*m.cols+j], nil
}

// AtLinear returns the entry at the linearized index k.
func (m *SparseMatrix[T]) AtLinear(k ID) (T, error) {
	var zero T
	if k >= m.rows*m.cols {
		return zero, errors.Wrapf(ErrOutOfRange, "index %d out of range %d", k, m.rows*m.cols)
	}
	return m.data[k], nil
}

// Row projects row i. With keepIndex the result keeps the original
// dimensions with only that row populated, otherwise it is a 1 x cols matrix.
func (m *SparseMatrix[T]) Row(i ID, keepIndex bool) (*SparseMatrix[T], error) {
	if i >= m.rows {
		return nil, errors.Wrapf(ErrOutOfRange, "row %d out of range %d", i, m.rows)
	}
	row := NewSparseMatrix[T](1, m.cols)
	if keepIndex {
		row.rows = m.rows
	}
	for k, v := range m.data {
		if k/m.cols == i {
			if keepIndex {
				row.data[k] = v
			} else {
				row.data[k%m.cols] = v
			}
		}
	}
	return row, nil
}

// Col projects column j. With keepIndex the result keeps the original
// dimensions with only that column populated, otherwise it is a rows x 1
// vector.
func (m *SparseMatrix[T]) Col(j ID, keepIndex bool) (*SparseMatrix[T], error) {
	if j >= m.cols {
		return nil, errors.Wrapf(ErrOutOfRange, "column %d out of range %d", j, m.cols)
	}
	col := NewSparseMatrix[T](m.rows, 1)
	if keepIndex {
		col.cols = m.cols
	}
	for k, v := range m.data {
		if k%m.cols == j {
			if keepIndex {
				col.data[k] = v
			} else {
				col.data[k/m.cols] = v
			}
		}
	}
	return col, nil
}

// DegreeVector returns the out-degree of every row of a square matrix.
func (m *SparseMatrix[T]) DegreeVector() (*SparseMatrix[int], error) {
	if m.rows != m.cols {
		return nil, errors.Wrap(ErrDimensionMismatch, "degree vector needs a square matrix")
	}
	deg := NewSparseVector[int](m.rows)
	for k := range m.data {
		deg.data[k/m.cols]++
	}
	return deg, nil
}

// Laplacian returns the graph Laplacian of a square matrix.
func (m *SparseMatrix[T]) Laplacian() (*SparseMatrix[int], error) {
	if m.rows != m.cols {
		return nil, errors.Wrap(ErrDimensionMismatch, "laplacian needs a square matrix")
	}
	lap := NewSparseMatrix[int](m.rows, m.cols)
	for k := range m.data {
		lap.data[k] = -1
	}
	deg, err := m.DegreeVector()
	if err != nil {
		return nil, err
	}
	for i := ID(0); i < m.rows; i++ {
		lap.data[i*m.cols+i] = deg.data[i]
	}
	return lap, nil
}

// Transpose returns the transposed matrix. Transposing twice yields the
// original.
func (m *SparseMatrix[T]) Transpose() *SparseMatrix[T] {
	t := NewSparseMatrix[T](m.cols, m.rows)
	for k, v := range m.data {
		t.data[(k%m.cols)*m.rows+k/m.cols] = v
	}
	return t
}

// Reshape resizes the matrix in place. An entry is kept at its old (i, j)
// position when its old linear key fits the new size and that position lies
// inside the new shape; every other entry is dropped.
func (m *SparseMatrix[T]) Reshape(rows, cols ID) {
	oldCols := m.cols
	m.rows = rows
	m.cols = cols
	old := m.data
	m.data = make(map[ID]T, len(old))
	for k, v := range old {
		if k < rows*cols {
			i, j := k/oldCols, k%oldCols
			if i < rows && j < cols {
				m.data[i*cols+j] = v
			}
		}
	}
}

// ReshapeVector resizes a column vector in place.
func (m *SparseMatrix[T]) ReshapeVector(rows ID) {
	m.rows = rows
	m.cols = 1
	old := m.data
	m.data = make(map[ID]T, len(old))
	for k, v := range old {
		if k < rows {
			m.data[k] = v
		}
	}
}

// Add returns a + b. The operands must have equal shapes.
func Add[T Number](a, b *SparseMatrix[T]) (*SparseMatrix[T], error) {
	if a.rows != b.rows || a.cols != b.cols {
		return nil, errors.Wrapf(ErrDimensionMismatch, "(%d, %d) vs (%d, %d)", a.rows, a.cols, b.rows, b.cols)
	}
	sum := NewSparseMatrix[T](a.rows, a.cols)
	for k, v := range a.data {
		sum.data[k] = v
	}
	for k, v := range b.data {
		sum.data[k] += v
	}
	return sum, nil
}

// Sub returns a - b. The operands must have equal shapes.
func Sub[T Number](a, b *SparseMatrix[T]) (*SparseMatrix[T], error) {
	if a.rows != b.rows || a.cols != b.cols {
		return nil, errors.Wrapf(ErrDimensionMismatch, "(%d, %d) vs (%d, %d)", a.rows, a.cols, b.rows, b.cols)
	}
	diff := NewSparseMatrix[T](a.rows, a.cols)
	for k, v := range a.data {
		diff.data[k] = v
	}
	for k, v := range b.data {
		diff.data[k] -= v
	}
	return diff, nil
}

// AddAssign accumulates b into a.
func AddAssign[T Number](a, b *SparseMatrix[T]) error {
	if a.rows != b.rows || a.cols != b.cols {
		return errors.Wrapf(ErrDimensionMismatch, "(%d, %d) vs (%d, %d)", a.rows, a.cols, b.rows, b.cols)
	}
	for k, v := range b.data {
		a.data[k] += v
	}
	return nil
}

// SubAssign subtracts b from a in place.
func SubAssign[T Number](a, b *SparseMatrix[T]) error {
	if a.rows != b.rows || a.cols != b.cols {
		return errors.Wrapf(ErrDimensionMismatch, "(%d, %d) vs (%d, %d)", a.rows, a.cols, b.rows, b.cols)
	}
	for k, v := range b.data {
		a.data[k] -= v
	}
	return nil
}

// Symmetrize accumulates the transpose into the matrix.
func Symmetrize[T Number](m *SparseMatrix[T]) error {
	return AddAssign(m, m.Transpose())
}

// StrengthVector returns the per-row sum of entry values of a square matrix.
func StrengthVector[T Number](m *SparseMatrix[T]) (*SparseMatrix[float64], error) {
	if m.rows != m.cols {
		return nil, errors.Wrap(ErrDimensionMismatch, "strength vector needs a square matrix")
	}
	strength := NewSparseVector[float64](m.rows)
	for k, v := range m.data {
		strength.data[k/m.cols] += float64(v)
	}
	return strength, nil
}

// NormRows divides every entry by the sum of absolute values of its row.
// Rows summing below machine epsilon are left as they are.
func NormRows[T Number](m *SparseMatrix[T]) *SparseMatrix[float64] {
	norm := NewSparseMatrix[float64](m.rows, m.cols)
	sums := make(map[ID]float64, m.rows)
	for k, v := range m.data {
		sums[k/m.cols] += math.Abs(float64(v))
	}
	for k, v := range m.data {
		sum := sums[k/m.cols]
		if sum < machineEpsilon {
			sum = 1
		}
		norm.data[k] = float64(v) / sum
	}
	return norm
}

// NormCols divides every entry by the sum of absolute values of its column.
// Columns summing below machine epsilon are left as they are.
func NormCols[T Number](m *SparseMatrix[T]) *SparseMatrix[float64] {
	norm := NewSparseMatrix[float64](m.rows, m.cols)
	sums := make(map[ID]float64, m.cols)
	for k, v := range m.data {
		sums[k%m.cols] += math.Abs(float64(v))
	}
	for k, v := range m.data {
		sum := sums[k%m.cols]
		if sum < machineEpsilon {
			sum = 1
		}
		norm.data[k] = float64(v) / sum
	}
	return norm
}

const machineEpsilon = 2.220446049250313e-16
