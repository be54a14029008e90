package table

import (
	"encoding/csv"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/sells-group/district-poi/internal/model"
)

// ReadOptions configures CSV input decoding.
type ReadOptions struct {
	// Charset names a non UTF-8 input encoding, e.g. "windows-1251".
	Charset string
}

// Read decodes POIs from CSV. A leading UTF-8 byte order mark is ignored and
// unknown columns are skipped.
func Read(r io.Reader, opts ReadOptions) ([]model.POI, error) {
	rows, err := ReadRows[Row](r, opts)
	if err != nil {
		return nil, err
	}

	pois := make([]model.POI, 0, len(rows))
	for i, row := range rows {
		p, err := row.POI()
		if err != nil {
			return nil, eris.Wrapf(err, "table: row %d", i+2)
		}
		pois = append(pois, p)
	}
	return pois, nil
}

// ReadFile reads POIs from a CSV file.
func ReadFile(path string, opts ReadOptions) ([]model.POI, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "table: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	return Read(f, opts)
}

// ReadRows decodes any csv-tagged struct type.
func ReadRows[T any](r io.Reader, opts ReadOptions) ([]T, error) {
	cr, err := newReader(r, opts)
	if err != nil {
		return nil, err
	}

	dec, err := csvutil.NewDecoder(cr)
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "table: read header")
	}

	var out []T
	for {
		var v T
		err := dec.Decode(&v)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "table: decode row")
		}
		out = append(out, v)
	}
	return out, nil
}

// ReadRecords reads a table with arbitrary columns. An empty input yields a
// nil header.
func ReadRecords(r io.Reader, opts ReadOptions) ([]string, [][]string, error) {
	cr, err := newReader(r, opts)
	if err != nil {
		return nil, nil, err
	}
	all, err := cr.ReadAll()
	if err != nil {
		return nil, nil, eris.Wrap(err, "table: read records")
	}
	if len(all) == 0 {
		return nil, nil, nil
	}
	return all[0], all[1:], nil
}

// ReadRecordsFile reads a raw table from path.
func ReadRecordsFile(path string, opts ReadOptions) ([]string, [][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "table: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	return ReadRecords(f, opts)
}

func newReader(r io.Reader, opts ReadOptions) (*csv.Reader, error) {
	if cs := strings.TrimSpace(opts.Charset); cs != "" && !strings.EqualFold(cs, "utf-8") && !strings.EqualFold(cs, "utf8") {
		enc, err := htmlindex.Get(cs)
		if err != nil {
			return nil, eris.Wrapf(err, "table: unsupported charset %q", cs)
		}
		r = enc.NewDecoder().Reader(r)
	}
	r = transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	return cr, nil
}

// Write encodes POIs as CSV. With bom set the output starts with a UTF-8 byte
// order mark so spreadsheet tools detect the encoding.
func Write(w io.Writer, pois []model.POI, bom bool) error {
	rows := make([]Row, 0, len(pois))
	for _, p := range pois {
		rows = append(rows, FromPOI(p))
	}
	return WriteRows(w, rows, bom)
}

// WriteFile writes POIs to path, creating parent directories.
func WriteFile(path string, pois []model.POI, bom bool) error {
	return writeFile(path, func(w io.Writer) error { return Write(w, pois, bom) })
}

// WriteRows encodes any csv-tagged struct slice. The header is written even
// when rows is empty.
func WriteRows[T any](w io.Writer, rows []T, bom bool) error {
	var tw *transform.Writer
	if bom {
		tw = transform.NewWriter(w, unicode.UTF8BOM.NewEncoder())
		w = tw
	}

	cw := csv.NewWriter(w)
	enc := csvutil.NewEncoder(cw)
	var zero T
	if err := enc.EncodeHeader(zero); err != nil {
		return eris.Wrap(err, "table: write header")
	}
	for i := range rows {
		if err := enc.Encode(rows[i]); err != nil {
			return eris.Wrap(err, "table: encode row")
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return eris.Wrap(err, "table: flush")
	}
	if tw != nil {
		return eris.Wrap(tw.Close(), "table: close encoder")
	}
	return nil
}

// WriteRecords writes a header and raw records, for tables whose columns are
// only known at run time.
func WriteRecords(w io.Writer, header []string, records [][]string, bom bool) error {
	var tw *transform.Writer
	if bom {
		tw = transform.NewWriter(w, unicode.UTF8BOM.NewEncoder())
		w = tw
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return eris.Wrap(err, "table: write header")
	}
	if err := cw.WriteAll(records); err != nil {
		return eris.Wrap(err, "table: write records")
	}
	if tw != nil {
		return eris.Wrap(tw.Close(), "table: close encoder")
	}
	return nil
}

// WriteRecordsFile writes raw records to path, creating parent directories.
func WriteRecordsFile(path string, header []string, records [][]string, bom bool) error {
	return writeFile(path, func(w io.Writer) error { return WriteRecords(w, header, records, bom) })
}

// WriteRowsFile writes rows to path, creating parent directories.
func WriteRowsFile[T any](path string, rows []T, bom bool) error {
	return writeFile(path, func(w io.Writer) error { return WriteRows(w, rows, bom) })
}

// EnsureDir creates the parent directory of path.
func EnsureDir(path string) error {
	return eris.Wrapf(os.MkdirAll(filepath.Dir(path), 0o755), "table: create dir for %s", path)
}

func writeFile(path string, fn func(io.Writer) error) error {
	if err := EnsureDir(path); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "table: create %s", path)
	}
	if err := fn(f); err != nil {
		f.Close() //nolint:errcheck
		return err
	}
	return eris.Wrapf(f.Close(), "table: close %s", path)
}
