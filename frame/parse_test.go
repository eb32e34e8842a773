package frame

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mannetroll/analysis/cluster"
	"github.com/mannetroll/analysis/pkg/errors"
)

const exampleCSV = `Group,EventTime,EventIndex,DTA,TTATA,Fraction,Target,X1,X2
a,1000,1,0.5,12.5,0.1,yes,1.5,3
a,1001,2,0.6,11.0,0.2,no,2.5,NA
b,1002,3,0.7,10.5,0.3,yes,3.5,5
b,1003,4,0.8,9.0,0.4,no,,6
`

func writeCSV(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseCSV(t *testing.T) {
	store := cluster.NewStore()
	path := writeCSV(t, "small.csv", exampleCSV)

	f, err := ParseCSV(context.Background(), store, path)
	if err != nil {
		t.Fatalf("ParseCSV() error = %v", err)
	}
	if f.Key() != "small.csv" {
		t.Errorf("Key() = %q, want the file base name", f.Key())
	}
	if f.NumRows() != 4 || f.NumCols() != 9 {
		t.Errorf("shape = %dx%d, want 4x9", f.NumRows(), f.NumCols())
	}

	stored, err := cluster.Get[*Frame](store, "small.csv")
	if err != nil || stored != f {
		t.Errorf("frame should be stored under its key, err = %v", err)
	}

	tests := []struct {
		column string
		typ    ColumnType
	}{
		{column: "Group", typ: TypeEnum},
		{column: "EventTime", typ: TypeInt},
		{column: "TTATA", typ: TypeReal},
		{column: "Target", typ: TypeEnum},
		{column: "X2", typ: TypeInt},
	}
	for _, tt := range tests {
		if got := f.Vec(tt.column).Type(); got != tt.typ {
			t.Errorf("%s type = %v, want %v", tt.column, got, tt.typ)
		}
	}

	target := f.Vec("Target")
	if d := target.Domain(); len(d) != 2 || d[0] != "no" || d[1] != "yes" {
		t.Errorf("Target domain = %v, want sorted [no yes]", d)
	}
	if target.At(0) != 1 || target.At(1) != 0 {
		t.Errorf("Target codes = %v", target.Values())
	}
	if !f.Vec("X2").IsNA(1) || !f.Vec("X1").IsNA(3) {
		t.Error("NA and empty tokens should be missing")
	}
	if f.Vec("X1").NACount() != 1 {
		t.Errorf("X1 NACount = %d", f.Vec("X1").NACount())
	}
	if math.Abs(f.Vec("X1").Mean()-2.5) > 1e-12 {
		t.Errorf("X1 mean = %v, want 2.5", f.Vec("X1").Mean())
	}
}

func TestParseCSVIngestErrors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		path string
		want errors.IngestKind
	}{
		{name: "missing file", path: filepath.Join(dir, "absent.csv"), want: errors.IngestNotFound},
		{name: "directory", path: dir, want: errors.IngestUnreadable},
		{name: "empty file", path: writeCSV(t, "empty.csv", ""), want: errors.IngestMalformed},
		{name: "ragged rows", path: writeCSV(t, "ragged.csv", "a,b\n1,2\n3\n"), want: errors.IngestMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := cluster.NewStore()
			f, err := ParseCSV(context.Background(), store, tt.path)
			if f != nil {
				t.Error("no frame should be returned on failure")
			}
			var ingestErr *errors.IngestError
			if !errors.As(err, &ingestErr) {
				t.Fatalf("expected IngestError, got %v", err)
			}
			if ingestErr.Kind != tt.want {
				t.Errorf("Kind = %v, want %v", ingestErr.Kind, tt.want)
			}
			if ingestErr.Path != tt.path {
				t.Errorf("Path = %q, want %q", ingestErr.Path, tt.path)
			}
			if store.Size() != 0 {
				t.Error("nothing should be stored on failure")
			}
		})
	}
}

func TestParseReaderSeparators(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "comma", content: "a,b\n1,2\n"},
		{name: "semicolon", content: "a;b\n1;2\n"},
		{name: "tab", content: "a\tb\n1\t2\n"},
		{name: "pipe", content: "a|b\n1|2\n"},
		{name: "quoted header with comma", content: "\"x;y\",b\n1,2\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := ParseReader(context.Background(), "k", strings.NewReader(tt.content))
			if err != nil {
				t.Fatalf("ParseReader() error = %v", err)
			}
			if f.NumCols() != 2 || f.NumRows() != 1 {
				t.Errorf("shape = %dx%d, want 1x2", f.NumRows(), f.NumCols())
			}
		})
	}
}

func TestParseReaderStrayTokensBecomeNA(t *testing.T) {
	var b strings.Builder
	b.WriteString("v\n")
	for i := 0; i < 40; i++ {
		b.WriteString("1.5\n")
	}
	b.WriteString("oops\n")

	var warnings []error
	errors.SetWarningHandler(func(w error) { warnings = append(warnings, w) })
	defer errors.SetWarningHandler(func(error) {})

	f, err := ParseReader(context.Background(), "k", strings.NewReader(b.String()))
	if err != nil {
		t.Fatal(err)
	}
	v := f.Vec("v")
	if v.Type() != TypeReal || !v.IsNA(40) {
		t.Errorf("column should stay numeric with the stray token missing, type = %v", v.Type())
	}
	if len(warnings) != 1 {
		t.Fatalf("expected one DataConversionWarning, got %d", len(warnings))
	}
	var dcw *errors.DataConversionWarning
	if !errors.As(warnings[0], &dcw) {
		t.Errorf("unexpected warning type %T", warnings[0])
	}
}

func TestParseReaderNamesBlankHeaders(t *testing.T) {
	f, err := ParseReader(context.Background(), "k", strings.NewReader("a,,c\n1,2,3\n"))
	if err != nil {
		t.Fatal(err)
	}
	if names := f.Names(); names[1] != "C2" {
		t.Errorf("Names() = %v, want a generated name for the blank header", names)
	}
}

func TestFrameString(t *testing.T) {
	f, err := ParseReader(context.Background(), "small.csv", strings.NewReader("a,b\n1,x\n2,y\n"))
	if err != nil {
		t.Fatal(err)
	}
	want := "Frame small.csv (2 rows x 2 cols) [a:int, b:enum]"
	if got := f.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	if d := f.Describe(); d.Kind != "frame" || d.Summary["rows"] != 2 {
		t.Errorf("Describe() = %+v", d)
	}
}

func TestNewFrameValidation(t *testing.T) {
	a := NewNumericVec("a", []float64{1, 2})
	if _, err := New("k", a, NewNumericVec("a", []float64{3, 4})); err == nil {
		t.Error("duplicate names should be rejected")
	}
	if _, err := New("k", a, NewNumericVec("b", []float64{3})); err == nil {
		t.Error("columns of different length should be rejected")
	}
}
