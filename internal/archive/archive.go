package archive

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	"github.com/dgnsrekt/absgex/internal/gex"
)

// Writer persists fetched chains under {dir}/{date}/{underlying}/chain.json.gz
// so a day's snapshots survive the snapshot feed going stale. Writes go
// through a temp file and an atomic rename; a crashed write never leaves a
// half-written archive behind.
type Writer struct {
	dir    string
	logger *zap.Logger
}

func NewWriter(dir string, logger *zap.Logger) *Writer {
	return &Writer{dir: dir, logger: logger}
}

// Path returns the archive location for one chain.
func (w *Writer) Path(underlying, date string) string {
	return filepath.Join(w.dir, date, underlying, "chain.json.gz")
}

// WriteChain archives the raw records for one (underlying, date) fetch.
func (w *Writer) WriteChain(underlying, date string, records []gex.ContractRecord) error {
	dest := w.Path(underlying, date)
	if err := os.MkdirAll(filepath.Dir(dest), 0750); err != nil {
		return fmt.Errorf("creating archive directory: %w", err)
	}

	tmpPath := dest + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	err = writeGzipJSON(f, records)
	if closeErr := f.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("writing archive: %w", err)
	}

	if err := os.Rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}

	w.logger.Debug("chain archived",
		zap.String("underlying", underlying),
		zap.String("date", date),
		zap.Int("records", len(records)),
	)
	return nil
}

// ReadChain loads a previously archived chain.
func (w *Writer) ReadChain(underlying, date string) ([]gex.ContractRecord, error) {
	f, err := os.Open(w.Path(underlying, date))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("opening gzip stream: %w", err)
	}
	defer gz.Close()

	var records []gex.ContractRecord
	if err := json.NewDecoder(gz).Decode(&records); err != nil {
		return nil, fmt.Errorf("decoding archive: %w", err)
	}
	return records, nil
}

func writeGzipJSON(f *os.File, records []gex.ContractRecord) error {
	gz := gzip.NewWriter(f)
	if err := json.NewEncoder(gz).Encode(records); err != nil {
		_ = gz.Close()
		return err
	}
	return gz.Close()
}
