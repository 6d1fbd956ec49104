package fetch

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/gabriel-vasile/mimetype"
	"github.com/jakopako/leadsync/internal/log"
)

// The StaticFetcher fetches static page content
type StaticFetcher struct {
	*FetcherConfig
	client *http.Client
}

func NewStaticFetcher(fc *FetcherConfig) *StaticFetcher {
	timeout := time.Duration(fc.TimeoutMS) * time.Millisecond
	return &StaticFetcher{
		FetcherConfig: fc,
		// disabling the transport's own compression lets us ask for brotli
		client: &http.Client{
			Timeout:   timeout,
			Transport: &http.Transport{Proxy: http.ProxyFromEnvironment, DisableCompression: true},
		},
	}
}

func (s *StaticFetcher) Fetch(ctx context.Context, url string, opts FetchOpts) (string, error) {
	logger := log.LoggerFromContext(ctx)
	logger.Debug("fetching page", slog.String("fetcher", "static"), slog.String("url", url), slog.String("user-agent", s.UserAgent))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", &Error{URL: url, Message: "invalid request", Cause: err}
	}
	req.Header.Set("User-Agent", s.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,*/*;q=0.8")
	req.Header.Set("Accept-Encoding", "br, gzip")
	res, err := s.client.Do(req)
	if err != nil {
		return "", &Error{URL: url, Message: "request failed", Cause: err}
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return "", &Error{URL: url, StatusCode: res.StatusCode, Message: fmt.Sprintf("status code error: %d %s", res.StatusCode, res.Status)}
	}
	body, err := decodeBody(res)
	if err != nil {
		return "", &Error{URL: url, Message: "failed to read body", Cause: err}
	}
	if mt := mimetype.Detect(body); !mt.Is("text/html") && !strings.HasPrefix(mt.String(), "text/") {
		return "", &Error{URL: url, Message: fmt.Sprintf("unexpected content type %s", mt.String())}
	}
	resString := string(body)
	if log.Debug {
		writeHTMLToFile(ctx, url, resString, s.DebugDir)
	}
	return resString, nil
}

func decodeBody(res *http.Response) ([]byte, error) {
	var r io.Reader = res.Body
	switch strings.ToLower(res.Header.Get("Content-Encoding")) {
	case "br":
		r = brotli.NewReader(res.Body)
	case "gzip":
		gz, err := gzip.NewReader(res.Body)
		if err != nil {
			return nil, fmt.Errorf("reading gzip content: %w", err)
		}
		defer gz.Close()
		r = gz
	}
	return io.ReadAll(r)
}

func (s *StaticFetcher) Cancel() {}
