package progress

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/jakopako/leadsync/internal/types"
)

// StdoutWriter prints every snapshot as a line of json.
type StdoutWriter struct {
	out    io.Writer
	logger *slog.Logger
}

func NewStdoutWriter(wc *WriterConfig) *StdoutWriter {
	return &StdoutWriter{
		out:    os.Stdout,
		logger: slog.With(slog.String("writer", string(STDOUT_WRITER_TYPE))),
	}
}

func (w *StdoutWriter) Write(snapshots <-chan types.SyncProgress) {
	for p := range snapshots {
		if p.Status == types.SyncIdle {
			continue
		}
		// json.Marshal would escape html characters in keywords and messages
		buffer := &bytes.Buffer{}
		encoder := json.NewEncoder(buffer)
		encoder.SetEscapeHTML(false)
		if err := encoder.Encode(p); err != nil {
			w.logger.Error(fmt.Sprintf("error while encoding progress: %v", err))
			continue
		}
		if _, err := w.out.Write(buffer.Bytes()); err != nil {
			w.logger.Error(fmt.Sprintf("error while writing progress: %v", err))
		}
	}
}
