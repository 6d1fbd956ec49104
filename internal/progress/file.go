package progress

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jakopako/leadsync/internal/types"
)

const progressFilename = "progress.json"

// FileWriter keeps the latest snapshot in progress.json so that other
// processes can poll it.
type FileWriter struct {
	*WriterConfig
	logger *slog.Logger
}

func NewFileWriter(wc *WriterConfig) (*FileWriter, error) {
	if wc.FileDir == "" {
		return nil, errors.New("filedir needs to be specified for the FileWriter")
	}

	if err := os.MkdirAll(wc.FileDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", wc.FileDir, err)
	}

	return &FileWriter{
		WriterConfig: wc,
		logger:       slog.With(slog.String("writer", string(FILE_WRITER_TYPE))),
	}, nil
}

func (w *FileWriter) Write(snapshots <-chan types.SyncProgress) {
	path := filepath.Join(w.FileDir, progressFilename)
	var last types.SyncProgress
	for p := range snapshots {
		if p.Status == types.SyncIdle {
			continue
		}
		if err := writeFileAtomic(path, p); err != nil {
			w.logger.Error(fmt.Sprintf("error while writing progress to file: %v", err))
			continue
		}
		last = p
	}
	if last.Status != "" {
		w.logger.Info(fmt.Sprintf("wrote progress to file %s", path), slog.String("status", string(last.Status)))
	}
}

// writeFileAtomic replaces path so that readers never see a partial file.
func writeFileAtomic(path string, p types.SyncProgress) error {
	b, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling progress: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".progress-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
