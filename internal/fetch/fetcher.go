package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"

	"github.com/jakopako/leadsync/internal/log"
	"github.com/jakopako/leadsync/internal/types"
	"github.com/jakopako/leadsync/internal/utils"
	"github.com/yosssi/gohtml"
)

// A Fetcher allows to fetch the content of a web page
type Fetcher interface {
	Fetch(ctx context.Context, url string, opts FetchOpts) (string, error)
	Cancel() // only needed for the dynamic fetcher
}

type FetchOpts struct {
	Interaction []*types.Interaction
}

type MockPage struct {
	URL     string `yaml:"url"`
	Content string `yaml:"content"`
}

type FetcherConfig struct {
	Type           string     `yaml:"type" env:"LEADSYNC_FETCHER" env-default:"static"`
	UserAgent      string     `yaml:"user_agent" env:"LEADSYNC_USER_AGENT" env-default:"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36"`
	PageLoadWaitMS int        `yaml:"page_load_wait_ms" env-default:"2000"`
	TimeoutMS      int        `yaml:"timeout_ms" env-default:"30000"`
	DebugDir       string     `yaml:"debug_dir" env-default:"debug"`
	MockPages      []MockPage `yaml:"mock_pages"`
}

// Error is returned for pages that could not be retrieved.
type Error struct {
	URL        string
	Message    string
	StatusCode int
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("fetch error for %s: %s: %v", e.URL, e.Message, e.Cause)
	}
	return fmt.Sprintf("fetch error for %s: %s", e.URL, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewFetcher returns the fetcher configured by fc.Type.
func NewFetcher(fc *FetcherConfig) (Fetcher, error) {
	switch fc.Type {
	case "", "static":
		return NewStaticFetcher(fc), nil
	case "dynamic":
		return NewDynamicFetcher(fc), nil
	case "mock":
		return NewMockFetcher(fc), nil
	default:
		return nil, fmt.Errorf("fetcher type %q does not exist", fc.Type)
	}
}

func writeHTMLToFile(ctx context.Context, urlStr, content, dir string) {
	logger := log.LoggerFromContext(ctx)
	if dir != "" {
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			logger.Warn("failed to create debug directory", slog.String("err", err.Error()))
			return
		}
	}
	u, err := url.Parse(urlStr)
	if err != nil {
		logger.Warn("failed to parse url for debug file", slog.String("err", err.Error()))
		return
	}
	r, err := utils.RandomString(u.Host)
	if err != nil {
		logger.Warn("failed to create debug file name", slog.String("err", err.Error()))
		return
	}
	filename := path.Join(dir, fmt.Sprintf("%s.html", r))
	logger.Debug(fmt.Sprintf("writing html to file %s", filename), slog.String("url", urlStr))
	if err := os.WriteFile(filename, gohtml.FormatBytes([]byte(content)), 0644); err != nil {
		logger.Warn("failed to write html file", slog.String("filename", filename), slog.String("err", err.Error()))
	}
}
