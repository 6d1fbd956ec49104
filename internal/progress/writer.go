package progress

import (
	"fmt"

	"github.com/jakopako/leadsync/internal/types"
)

// Writer consumes snapshots until the channel is closed. Idle snapshots
// carry no information about a run and are skipped by all writers.
type Writer interface {
	Write(snapshots <-chan types.SyncProgress)
}

// WriterConfig defines the parameters of a writer that reports sync
// progress to a specific output, e.g. stdout.
type WriterConfig struct {
	Type    WriterType `yaml:"type" env:"LEADSYNC_PROGRESS_WRITER"`
	Uri     string     `yaml:"uri"`
	Token   string     `yaml:"token" env:"LEADSYNC_PROGRESS_TOKEN"` // we want to be able to pass credentials via env vars
	FileDir string     `yaml:"filedir" env-default:"."`
}

// WriterType encapsulates the type of a writer
// See below constants for possible types
type WriterType string

const (
	STDOUT_WRITER_TYPE WriterType = "stdout"
	FILE_WRITER_TYPE   WriterType = "file"
	API_WRITER_TYPE    WriterType = "api"
)

// NewWriter returns a new writer depending on the writer type
func NewWriter(wc *WriterConfig) (Writer, error) {
	switch wc.Type {
	case STDOUT_WRITER_TYPE:
		return NewStdoutWriter(wc), nil
	case FILE_WRITER_TYPE:
		return NewFileWriter(wc)
	case API_WRITER_TYPE:
		return NewAPIWriter(wc)
	default:
		return nil, fmt.Errorf("writer of type '%s' not implemented", wc.Type)
	}
}
