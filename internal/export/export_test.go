package export

import (
	"bytes"
	"compress/gzip"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nvandessel/rbdc/internal/models"
)

func sampleRecords() []models.ResultRecord {
	return []models.ResultRecord{
		{Time: 0, ActivationRadius: 0, Dose: 1, DiffusionCoefficient: 1e-6, DecayRate: 0.1, ActivationThreshold: 0.1},
		{Time: 10000, ActivationRadius: 0.0123, Dose: 1, DiffusionCoefficient: 1e-6, DecayRate: 0.1, ActivationThreshold: 0.1},
		{Time: 0, ActivationRadius: 0, Dose: 2, DiffusionCoefficient: 1e-6, DecayRate: 0.1, ActivationThreshold: 0.1},
		{Time: 10000, ActivationRadius: 0.0456, Dose: 2, DiffusionCoefficient: 1e-6, DecayRate: 0.1, ActivationThreshold: 0.1},
	}
}

func TestWrite_Format(t *testing.T) {
	var buf bytes.Buffer
	records := []models.ResultRecord{
		{Time: 10000, ActivationRadius: 0.0123, Dose: 1, DiffusionCoefficient: 1e-6, DecayRate: 0.1, ActivationThreshold: 0.1},
	}
	if err := Write(&buf, records); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	want := "time,activation_radius,dose,diffusion_coefficient,decay_rate,activation_threshold\n" +
		"1.000000e+04,1.230000e-02,1.000000e+00,1.000000e-06,1.000000e-01,1.000000e-01\n"
	if buf.String() != want {
		t.Errorf("Write() =\n%s\nwant\n%s", buf.String(), want)
	}
}

func TestWrite_EmptyHasHeader(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, nil); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if strings.TrimSpace(buf.String()) != strings.Join(Header, ",") {
		t.Errorf("empty dataset = %q, want header only", buf.String())
	}
}

func TestWriteFile_ReadFile(t *testing.T) {
	for _, name := range []string{"data.csv", "data.csv.gz"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "out", name)
			if err := WriteFile(path, sampleRecords()); err != nil {
				t.Fatalf("WriteFile() error = %v", err)
			}
			got, err := ReadFile(path)
			if err != nil {
				t.Fatalf("ReadFile() error = %v", err)
			}
			want := sampleRecords()
			if len(got) != len(want) {
				t.Fatalf("read %d records, want %d", len(got), len(want))
			}
			for i := range want {
				if got[i] != want[i] {
					t.Errorf("record %d = %+v, want %+v", i, got[i], want[i])
				}
			}

			entries, err := os.ReadDir(filepath.Dir(path))
			if err != nil {
				t.Fatal(err)
			}
			if len(entries) != 1 {
				t.Errorf("directory holds %d entries, want only the dataset", len(entries))
			}
		})
	}
}

func TestWriteFile_GzipIsCompressed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.csv.gz")
	if err := WriteFile(path, sampleRecords()); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := gzip.NewReader(f); err != nil {
		t.Errorf("dataset is not a gzip stream: %v", err)
	}
}

func TestWriteFile_Deterministic(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.csv")
	b := filepath.Join(dir, "b.csv")
	if err := WriteFile(a, sampleRecords()); err != nil {
		t.Fatal(err)
	}
	if err := WriteFile(b, sampleRecords()); err != nil {
		t.Fatal(err)
	}
	da, _ := os.ReadFile(a)
	db, _ := os.ReadFile(b)
	if !bytes.Equal(da, db) {
		t.Error("identical records produced different files")
	}
}

func TestWriteFile_ReplacesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.csv")
	if err := os.WriteFile(path, []byte("stale"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := WriteFile(path, sampleRecords()[:1]); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	got, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if len(got) != 1 {
		t.Errorf("read %d records, want 1", len(got))
	}
}

func TestWriteFile_FailureLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	// A directory in place of the target makes the final rename fail.
	path := filepath.Join(dir, "data.csv")
	if err := os.MkdirAll(filepath.Join(path, "occupied"), 0755); err != nil {
		t.Fatal(err)
	}

	err := WriteFile(path, sampleRecords())
	var ioErr *models.IOError
	if !errors.As(err, &ioErr) {
		t.Fatalf("WriteFile() error = %v, want *IOError", err)
	}
	if ioErr.Path != path {
		t.Errorf("IOError.Path = %q, want %q", ioErr.Path, path)
	}
	if models.Kind(err) != models.KindIO {
		t.Errorf("Kind = %q, want io", models.Kind(err))
	}

	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("temporary file %s left behind", e.Name())
		}
	}
}

func TestRead_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"empty", ""},
		{"wrong header", "t,r,dose,diffusion_coefficient,decay_rate,activation_threshold\n"},
		{"short row", strings.Join(Header, ",") + "\n1,2,3\n"},
		{"not a number", strings.Join(Header, ",") + "\n1,x,1,1,1,1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Read(strings.NewReader(tt.content)); err == nil {
				t.Error("Read() succeeded, want error")
			}
		})
	}
}

func TestReadFile_Missing(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "missing.csv"))
	if !errors.Is(err, models.ErrIO) {
		t.Errorf("ReadFile() error = %v, want io error", err)
	}
}

func TestIndex_Lookup(t *testing.T) {
	d := Index(sampleRecords())
	if d.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", d.Len())
	}
	keys := d.Keys()
	if keys[0].Dose != 1 || keys[1].Dose != 2 {
		t.Errorf("Keys() = %v, want first-seen order", keys)
	}

	p := models.DefaultParameters()
	p.Dose = 2
	series, ok := d.Lookup(KeyOf(p))
	if !ok {
		t.Fatal("Lookup() missed the dose=2 series")
	}
	if len(series) != 2 || series[1].Radius != 0.0456 {
		t.Errorf("Lookup() = %+v", series)
	}

	series[0].Radius = 99
	again, _ := d.Lookup(KeyOf(p))
	if again[0].Radius == 99 {
		t.Error("Lookup() exposed the dataset's storage")
	}

	p.Dose = 3
	if _, ok := d.Lookup(KeyOf(p)); ok {
		t.Error("Lookup() matched a parameter set not in the dataset")
	}
}

func TestIndex_SortsAndMatchesRoundedKeys(t *testing.T) {
	records := []models.ResultRecord{
		{Time: 2, ActivationRadius: 0.2, Dose: 1.23456789, DiffusionCoefficient: 1, DecayRate: 1, ActivationThreshold: 1},
		{Time: 1, ActivationRadius: 0.1, Dose: 1.23456789, DiffusionCoefficient: 1, DecayRate: 1, ActivationThreshold: 1},
	}
	var buf bytes.Buffer
	if err := Write(&buf, records); err != nil {
		t.Fatal(err)
	}
	read, err := Read(&buf)
	if err != nil {
		t.Fatal(err)
	}
	d := Index(read)
	series, ok := d.Lookup(Key{Dose: 1.23456789, DiffusionCoefficient: 1, DecayRate: 1, ActivationThreshold: 1})
	if !ok {
		t.Fatal("Lookup() with unrounded key missed the rounded dataset entry")
	}
	if series[0].Time != 1 || series[1].Time != 2 {
		t.Errorf("series not in ascending time: %+v", series)
	}
}

func TestIndex_AmbiguousKeyNeverMatches(t *testing.T) {
	records := append(sampleRecords(), sampleRecords()[:2]...)
	d := Index(records)
	if _, ok := d.Lookup(Key{Dose: 1, DiffusionCoefficient: 1e-6, DecayRate: 0.1, ActivationThreshold: 0.1}); ok {
		t.Error("Lookup() matched a key recorded by two runs")
	}
	if _, ok := d.Lookup(Key{Dose: 2, DiffusionCoefficient: 1e-6, DecayRate: 0.1, ActivationThreshold: 0.1}); !ok {
		t.Error("Lookup() missed an unambiguous key")
	}
}

func TestNilDataset(t *testing.T) {
	var d *Dataset
	if d.Len() != 0 || d.Keys() != nil {
		t.Error("nil dataset is not empty")
	}
	if _, ok := d.Lookup(Key{}); ok {
		t.Error("nil dataset matched a key")
	}
}
