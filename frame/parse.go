package frame

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"

	"github.com/mannetroll/analysis/cluster"
	"github.com/mannetroll/analysis/pkg/errors"
	"github.com/mannetroll/analysis/pkg/log"
)

// numericShare is the minimum share of numeric tokens for a column with
// stray tokens to stay numeric.
const numericShare = 0.95

var separators = []rune{',', ';', '\t', '|'}

// IsNAToken reports whether a raw token denotes a missing value.
func IsNAToken(tok string) bool {
	switch strings.TrimSpace(tok) {
	case "", "NA", "N/A", "NaN", "nan", "null", "NULL":
		return true
	}
	return false
}

// ParseCSV parses the CSV file at path, stores the frame under a key named
// after the file's base name and returns it. Failures are reported as
// *errors.IngestError.
func ParseCSV(ctx context.Context, store *cluster.Store, path string) (*Frame, error) {
	return ParseCSVInto(ctx, store, KeyForPath(path), path)
}

// KeyForPath is the key ParseCSV stores the file at path under.
func KeyForPath(path string) cluster.Key {
	return cluster.MakeKey(filepath.Base(path))
}

// ParseCSVInto is ParseCSV with an explicit destination key.
func ParseCSVInto(ctx context.Context, store *cluster.Store, key cluster.Key, path string) (*Frame, error) {
	logger := log.GetLoggerWithName("frame.parser")

	info, err := os.Stat(path)
	if err != nil {
		kind := errors.IngestUnreadable
		if os.IsNotExist(err) {
			kind = errors.IngestNotFound
		}
		return nil, errors.NewIngestError(path, kind, err)
	}
	if info.IsDir() {
		return nil, errors.NewIngestError(path, errors.IngestUnreadable, errors.New("path is a directory"))
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, errors.NewIngestError(path, errors.IngestUnreadable, err)
	}
	defer file.Close()

	f, err := ParseReader(ctx, key, file)
	if err != nil {
		var ingestErr *errors.IngestError
		if errors.As(err, &ingestErr) {
			ingestErr.Path = path
		}
		return nil, err
	}

	store.Put(key, f)
	logger.Info("Parsed frame",
		log.OperationKey, log.OperationParse,
		log.PathKey, path,
		log.FrameKeyKey, string(key),
		log.SamplesKey, f.NumRows(),
		log.ColumnsKey, f.NumCols(),
	)
	return f, nil
}

// ParseReader parses CSV content with a header row into a frame with the
// given key. The separator is detected from the header line.
func ParseReader(ctx context.Context, key cluster.Key, r io.Reader) (*Frame, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(4096)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, errors.NewIngestError(string(key), errors.IngestUnreadable, err)
	}

	reader := gocsv.LazyCSVReader(br)
	if cr, ok := reader.(*csv.Reader); ok {
		cr.Comma = detectSeparator(head)
		cr.FieldsPerRecord = -1
	}

	records, err := reader.ReadAll()
	if err != nil {
		return nil, errors.NewIngestError(string(key), errors.IngestMalformed, err)
	}
	if len(records) == 0 {
		return nil, errors.NewIngestError(string(key), errors.IngestMalformed, errors.ErrEmptyData)
	}

	header := records[0]
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
		if header[i] == "" {
			header[i] = "C" + strconv.Itoa(i+1)
		}
	}
	rows := records[1:]
	for i, row := range rows {
		if len(row) != len(header) {
			return nil, errors.NewIngestError(string(key), errors.IngestMalformed,
				errors.Newf("line %d has %d fields, header has %d", i+2, len(row), len(header)))
		}
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, errors.WithStack(err)
			}
		}
	}

	vecs := make([]*Vec, len(header))
	for c, name := range header {
		tokens := make([]string, len(rows))
		for i, row := range rows {
			tokens[i] = row[c]
		}
		vecs[c] = buildVec(name, tokens)
	}

	f, err := New(key, vecs...)
	if err != nil {
		return nil, errors.NewIngestError(string(key), errors.IngestMalformed, err)
	}
	return f, nil
}

// detectSeparator picks the candidate occurring most often on the first
// line outside quotes, defaulting to a comma.
func detectSeparator(head []byte) rune {
	line := string(head)
	if i := strings.IndexAny(line, "\r\n"); i >= 0 {
		line = line[:i]
	}

	counts := make(map[rune]int, len(separators))
	inQuotes := false
	for _, ch := range line {
		if ch == '"' {
			inQuotes = !inQuotes
			continue
		}
		if !inQuotes {
			counts[ch]++
		}
	}

	best, bestCount := ',', 0
	for _, sep := range separators {
		if counts[sep] > bestCount {
			best, bestCount = sep, counts[sep]
		}
	}
	return best
}

func buildVec(name string, tokens []string) *Vec {
	values := make([]float64, len(tokens))
	numeric, present := 0, 0
	var odd []string
	for i, tok := range tokens {
		if IsNAToken(tok) {
			values[i] = nan
			continue
		}
		present++
		v, err := strconv.ParseFloat(strings.TrimSpace(tok), 64)
		if err != nil {
			values[i] = nan
			odd = append(odd, tok)
			continue
		}
		values[i] = v
		numeric++
	}

	if present == 0 || numeric == present {
		return NewNumericVec(name, values)
	}
	if float64(numeric)/float64(present) >= numericShare {
		errors.Warn(errors.NewDataConversionWarning("string", "NA",
			fmt.Sprintf("%d non-numeric tokens in numeric column %s (first %q)", len(odd), name, odd[0])))
		return NewNumericVec(name, values)
	}
	return buildEnum(name, tokens)
}

func buildEnum(name string, tokens []string) *Vec {
	seen := make(map[string]struct{})
	for _, tok := range tokens {
		if !IsNAToken(tok) {
			seen[strings.TrimSpace(tok)] = struct{}{}
		}
	}
	domain := make([]string, 0, len(seen))
	for level := range seen {
		domain = append(domain, level)
	}
	sort.Strings(domain)

	index := make(map[string]int, len(domain))
	for i, level := range domain {
		index[level] = i
	}
	codes := make([]float64, len(tokens))
	for i, tok := range tokens {
		if IsNAToken(tok) {
			codes[i] = nan
			continue
		}
		codes[i] = float64(index[strings.TrimSpace(tok)])
	}
	return NewEnumVec(name, codes, domain)
}
