package fetch

import (
	"context"
	"sync"

	"github.com/jakopako/leadsync/internal/log"
)

// MockFetcher serves pages from memory. Pages can be added or replaced
// while it is in use.
type MockFetcher struct {
	*FetcherConfig
	mu       sync.RWMutex
	pagesMap map[string]string
}

func NewMockFetcher(fc *FetcherConfig) *MockFetcher {
	mf := &MockFetcher{
		FetcherConfig: fc,
		pagesMap:      map[string]string{},
	}
	for _, p := range fc.MockPages {
		mf.pagesMap[p.URL] = p.Content
	}
	return mf
}

// SetPage makes Fetch return content for urlStr.
func (m *MockFetcher) SetPage(urlStr, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pagesMap[urlStr] = content
}

func (m *MockFetcher) Fetch(ctx context.Context, urlStr string, opts FetchOpts) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &Error{URL: urlStr, Message: "cancelled", Cause: err}
	}
	m.mu.RLock()
	p, ok := m.pagesMap[urlStr]
	m.mu.RUnlock()
	if !ok {
		return "", &Error{URL: urlStr, StatusCode: 404, Message: "page not found"}
	}
	if log.Debug {
		writeHTMLToFile(ctx, urlStr, p, m.DebugDir)
	}
	return p, nil
}

// To comply with the Fetcher interface
func (m *MockFetcher) Cancel() {}
