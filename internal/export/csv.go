// Package export writes and reads the tabular activation-radius dataset.
//
// The dataset is CSV with a fixed header and one row per recorded sample,
// grouped by parameter set then ascending time. Floats are written in
// exponent notation at a fixed precision so identical runs produce
// byte-identical files. A ".gz" suffix selects a gzip stream.
package export

import (
	"bufio"
	"compress/gzip"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nvandessel/rbdc/internal/constants"
	"github.com/nvandessel/rbdc/internal/models"
)

// Header is the dataset's column order.
var Header = []string{
	"time",
	"activation_radius",
	"dose",
	"diffusion_coefficient",
	"decay_rate",
	"activation_threshold",
}

// MaxDecompressedSize caps how much a gzip dataset may expand to (512MB).
const MaxDecompressedSize = 512 * 1024 * 1024

// FormatFloat renders a value the way the dataset stores it.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'e', constants.FloatPrecision, 64)
}

// Write encodes records as CSV, header first.
func Write(w io.Writer, records []models.ResultRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	row := make([]string, len(Header))
	for _, r := range records {
		row[0] = FormatFloat(r.Time)
		row[1] = FormatFloat(r.ActivationRadius)
		row[2] = FormatFloat(r.Dose)
		row[3] = FormatFloat(r.DiffusionCoefficient)
		row[4] = FormatFloat(r.DecayRate)
		row[5] = FormatFloat(r.ActivationThreshold)
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFile replaces path with the encoded dataset. The file is written to a
// temporary sibling, synced, then renamed over path, so readers see either
// the previous content or the complete new content. The temporary file is
// removed on every failure.
func WriteFile(path string, records []models.ResultRecord) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return &models.IOError{Op: "create directory", Path: dir, Err: err}
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return &models.IOError{Op: "create", Path: path, Err: err}
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	if err := encode(tmp, path, records); err != nil {
		return &models.IOError{Op: "write", Path: path, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		return &models.IOError{Op: "sync", Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &models.IOError{Op: "close", Path: path, Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		return &models.IOError{Op: "rename", Path: path, Err: err}
	}
	return nil
}

func encode(f *os.File, path string, records []models.ResultRecord) error {
	bw := bufio.NewWriter(f)
	if !isGzip(path) {
		if err := Write(bw, records); err != nil {
			return err
		}
		return bw.Flush()
	}

	gzw, err := gzip.NewWriterLevel(bw, gzip.DefaultCompression)
	if err != nil {
		return fmt.Errorf("creating gzip writer: %w", err)
	}
	if err := Write(gzw, records); err != nil {
		return err
	}
	if err := gzw.Close(); err != nil {
		return fmt.Errorf("closing gzip writer: %w", err)
	}
	return bw.Flush()
}

// Read decodes a CSV dataset. The header must match Header exactly.
func Read(r io.Reader) ([]models.ResultRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Header)
	cr.ReuseRecord = true

	head, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty dataset: missing header")
		}
		return nil, fmt.Errorf("reading header: %w", err)
	}
	if strings.Join(head, ",") != strings.Join(Header, ",") {
		return nil, fmt.Errorf("unexpected header %q", strings.Join(head, ","))
	}

	var records []models.ResultRecord
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return nil, fmt.Errorf("reading row: %w", err)
		}
		var vals [6]float64
		for i, field := range row {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				line, _ := cr.FieldPos(i)
				return nil, fmt.Errorf("line %d column %s: %w", line, Header[i], err)
			}
			vals[i] = v
		}
		records = append(records, models.ResultRecord{
			Time:                 vals[0],
			ActivationRadius:     vals[1],
			Dose:                 vals[2],
			DiffusionCoefficient: vals[3],
			DecayRate:            vals[4],
			ActivationThreshold:  vals[5],
		})
	}
}

// ReadFile loads a dataset written by WriteFile.
func ReadFile(path string) ([]models.ResultRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &models.IOError{Op: "open", Path: path, Err: err}
	}
	defer f.Close()

	var r io.Reader = bufio.NewReader(f)
	if isGzip(path) {
		gzr, err := gzip.NewReader(r)
		if err != nil {
			return nil, &models.IOError{Op: "read", Path: path, Err: fmt.Errorf("creating gzip reader: %w", err)}
		}
		defer gzr.Close()
		r = &limitedReader{r: io.LimitReader(gzr, MaxDecompressedSize+1), n: MaxDecompressedSize}
	}

	records, err := Read(r)
	if err != nil {
		return nil, &models.IOError{Op: "read", Path: path, Err: err}
	}
	return records, nil
}

// limitedReader fails once more than n bytes have been read.
type limitedReader struct {
	r    io.Reader
	n    int64
	read int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	n, err := l.r.Read(p)
	l.read += int64(n)
	if l.read > l.n {
		return n, fmt.Errorf("decompressed dataset exceeds maximum size of %d bytes", l.n)
	}
	return n, err
}

func isGzip(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".gz")
}
