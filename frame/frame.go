// Package frame holds parsed datasets as typed columnar frames.
package frame

import (
	"fmt"
	"math"
	"strings"

	"github.com/mannetroll/analysis/cluster"
	"github.com/mannetroll/analysis/pkg/errors"
)

var nan = math.NaN()

// ColumnType is the parsed type of a column.
type ColumnType int

const (
	TypeInt ColumnType = iota
	TypeReal
	TypeEnum
)

func (t ColumnType) String() string {
	switch t {
	case TypeInt:
		return "int"
	case TypeReal:
		return "real"
	case TypeEnum:
		return "enum"
	default:
		return "unknown"
	}
}

// Vec is one column. Values are float64; categorical values are indices
// into Domain and NaN marks a missing value.
type Vec struct {
	name   string
	typ    ColumnType
	data   []float64
	domain []string
}

// NewNumericVec builds a numeric column. It is TypeInt when every
// non-missing value is integral.
func NewNumericVec(name string, data []float64) *Vec {
	typ := TypeInt
	for _, v := range data {
		if !math.IsNaN(v) && v != math.Trunc(v) {
			typ = TypeReal
			break
		}
	}
	return &Vec{name: name, typ: typ, data: data}
}

// NewEnumVec builds a categorical column from domain indices.
func NewEnumVec(name string, codes []float64, domain []string) *Vec {
	return &Vec{name: name, typ: TypeEnum, data: codes, domain: domain}
}

func (v *Vec) Name() string        { return v.name }
func (v *Vec) Type() ColumnType    { return v.typ }
func (v *Vec) Len() int            { return len(v.data) }
func (v *Vec) At(i int) float64    { return v.data[i] }
func (v *Vec) IsNA(i int) bool     { return math.IsNaN(v.data[i]) }
func (v *Vec) IsCategorical() bool { return v.typ == TypeEnum }

// Domain returns the category labels of a categorical column, nil otherwise.
func (v *Vec) Domain() []string { return v.domain }

// Values returns the backing slice. Callers must not modify it.
func (v *Vec) Values() []float64 { return v.data }

// NACount returns the number of missing values.
func (v *Vec) NACount() int {
	n := 0
	for _, x := range v.data {
		if math.IsNaN(x) {
			n++
		}
	}
	return n
}

// Mean returns the mean of the non-missing values, NaN when there are none.
func (v *Vec) Mean() float64 {
	var sum float64
	n := 0
	for _, x := range v.data {
		if !math.IsNaN(x) {
			sum += x
			n++
		}
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}

// Frame is a set of equally long named columns.
type Frame struct {
	key   cluster.Key
	names []string
	vecs  []*Vec
	index map[string]int
}

// New builds a frame. Every column must have the same length and a unique
// name.
func New(key cluster.Key, vecs ...*Vec) (*Frame, error) {
	f := &Frame{key: key, index: make(map[string]int, len(vecs))}
	for i, v := range vecs {
		if _, dup := f.index[v.name]; dup {
			return nil, errors.NewValueError("frame.New", fmt.Sprintf("duplicate column name %q", v.name))
		}
		if i > 0 && v.Len() != vecs[0].Len() {
			return nil, errors.NewDimensionError("frame.New", vecs[0].Len(), v.Len(), 0)
		}
		f.index[v.name] = i
		f.names = append(f.names, v.name)
		f.vecs = append(f.vecs, v)
	}
	return f, nil
}

func (f *Frame) Key() cluster.Key { return f.key }

// Names returns the column names in frame order.
func (f *Frame) Names() []string { return append([]string(nil), f.names...) }

func (f *Frame) NumCols() int { return len(f.vecs) }

func (f *Frame) NumRows() int {
	if len(f.vecs) == 0 {
		return 0
	}
	return f.vecs[0].Len()
}

// Vec returns the named column or nil.
func (f *Frame) Vec(name string) *Vec {
	i, ok := f.index[name]
	if !ok {
		return nil
	}
	return f.vecs[i]
}

// Find returns the index of the named column or -1.
func (f *Frame) Find(name string) int {
	if i, ok := f.index[name]; ok {
		return i
	}
	return -1
}

// Vecs returns the columns in frame order.
func (f *Frame) Vecs() []*Vec { return append([]*Vec(nil), f.vecs...) }

// Types returns the column types in frame order.
func (f *Frame) Types() []ColumnType {
	out := make([]ColumnType, len(f.vecs))
	for i, v := range f.vecs {
		out[i] = v.typ
	}
	return out
}

// String summarises the frame as "Frame key (rows x cols) [name:type, ...]".
func (f *Frame) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Frame %s (%d rows x %d cols) [", f.key, f.NumRows(), f.NumCols())
	for i, v := range f.vecs {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s:%s", v.name, v.typ)
	}
	b.WriteString("]")
	return b.String()
}

// Describe implements cluster.Describer.
func (f *Frame) Describe() cluster.Description {
	types := make([]string, len(f.vecs))
	for i, v := range f.vecs {
		types[i] = v.typ.String()
	}
	return cluster.Description{
		Key:  f.key,
		Kind: "frame",
		Summary: map[string]interface{}{
			"rows":    f.NumRows(),
			"columns": f.Names(),
			"types":   types,
		},
	}
}
