package progress

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/jakopako/leadsync/internal/types"
)

// APIWriter posts every snapshot to an http endpoint, e.g. the backend's
// sync status endpoint.
type APIWriter struct {
	*WriterConfig
	client *http.Client
	logger *slog.Logger
}

func NewAPIWriter(wc *WriterConfig) (*APIWriter, error) {
	if wc.Uri == "" {
		return nil, errors.New("uri needs to be specified for the APIWriter")
	}
	return &APIWriter{
		WriterConfig: wc,
		client:       &http.Client{Timeout: 60 * time.Second},
		logger:       slog.With(slog.String("writer", string(API_WRITER_TYPE))),
	}, nil
}

func (w *APIWriter) Write(snapshots <-chan types.SyncProgress) {
	for p := range snapshots {
		if p.Status == types.SyncIdle {
			continue
		}
		if err := w.post(p); err != nil {
			w.logger.Error(fmt.Sprintf("error while posting sync progress: %v", err))
			continue
		}
		w.logger.Debug("posted sync progress", slog.String("status", string(p.Status)), slog.Int("keyword", p.CurrentKeywordIndex))
	}
}

func (w *APIWriter) post(p types.SyncProgress) error {
	b, err := json.Marshal(p)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, w.Uri, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if w.Token != "" {
		req.Header.Set("Authorization", "Bearer "+w.Token)
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("error while sending post request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status code %d, response: %s", resp.StatusCode, body)
	}
	return nil
}
