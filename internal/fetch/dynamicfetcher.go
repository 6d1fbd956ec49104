package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/jakopako/leadsync/internal/log"
	"github.com/jakopako/leadsync/internal/types"
	"github.com/jakopako/leadsync/internal/utils"
)

// The DynamicFetcher renders js. Social platforms render their search
// results client side so this is the fetcher used in production.
type DynamicFetcher struct {
	*FetcherConfig
	allocContext context.Context
	cancelAlloc  context.CancelFunc
}

func NewDynamicFetcher(fc *FetcherConfig) *DynamicFetcher {
	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.WindowSize(1920, 1080), // desktop view, mobile layouts lack some of the selectors
	)
	if fc.UserAgent != "" {
		opts = append(opts,
			chromedp.UserAgent(fc.UserAgent))
	}
	allocContext, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	d := &DynamicFetcher{
		FetcherConfig: fc,
		allocContext:  allocContext,
		cancelAlloc:   cancelAlloc,
	}
	if d.PageLoadWaitMS == 0 {
		d.PageLoadWaitMS = 2000
	}
	return d
}

func (d *DynamicFetcher) Cancel() {
	d.cancelAlloc()
}

func (d *DynamicFetcher) Fetch(ctx context.Context, urlStr string, opts FetchOpts) (string, error) {
	logger := log.LoggerFromContext(ctx).With(slog.String("fetcher", "dynamic"), slog.String("url", urlStr))
	logger.Debug("fetching page", slog.String("user-agent", d.UserAgent))
	tabCtx, cancel := chromedp.NewContext(d.allocContext)
	defer cancel()
	// the tab has to go away when the caller gives up
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	actions := []chromedp.Action{}

	if log.Debug {
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			protocolVersion, product, revision, userAgent, jsVersion, err := browser.GetVersion().Do(ctx)
			if err != nil {
				logger.Warn("failed to get chrome version", slog.String("err", err.Error()))
				return nil
			}
			logger.Debug(fmt.Sprintf("chrome version: protocolVersion=%s, product=%s, revision=%s, userAgent=%s, jsVersion=%s",
				protocolVersion, product, revision, userAgent, jsVersion))
			return nil
		}))
	}

	var body string
	sleepTime := time.Duration(d.PageLoadWaitMS) * time.Millisecond
	actions = append(actions,
		chromedp.Navigate(urlStr),
		chromedp.Sleep(sleepTime),
	)
	actions = append(actions, interactionActions(logger, opts.Interaction)...)
	actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
		node, err := dom.GetDocument().Do(ctx)
		if err != nil {
			return err
		}
		body, err = dom.GetOuterHTML().WithNodeID(node.NodeID).Do(ctx)
		return err
	}))

	if log.Debug {
		if d.DebugDir != "" {
			if err := os.MkdirAll(d.DebugDir, os.ModePerm); err != nil {
				return "", fmt.Errorf("failed to create debug directory: %v", err)
			}
		}
		u, _ := url.Parse(urlStr)
		var buf []byte
		r, err := utils.RandomString(u.Host)
		if err != nil {
			return "", err
		}
		filename := path.Join(d.DebugDir, fmt.Sprintf("%s.png", r))
		actions = append(actions, chromedp.CaptureScreenshot(&buf))
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			logger.Debug(fmt.Sprintf("writing screenshot to file %s", filename))
			return os.WriteFile(filename, buf, 0644)
		}))
	}

	if err := chromedp.Run(tabCtx, actions...); err != nil {
		return "", &Error{URL: urlStr, Message: "failed to render page", Cause: err}
	}

	if log.Debug {
		writeHTMLToFile(ctx, urlStr, body, d.DebugDir)
	}
	return body, nil
}

func interactionActions(logger *slog.Logger, interactions []*types.Interaction) []chromedp.Action {
	actions := []chromedp.Action{}
	for j, ia := range interactions {
		logger.Debug(fmt.Sprintf("processing interaction nr %d, type %s", j, ia.Type))
		delay := 500 * time.Millisecond
		if ia.Delay > 0 {
			delay = time.Duration(ia.Delay) * time.Millisecond
		}
		count := 1
		if ia.Count > 0 {
			count = ia.Count
		}
		switch ia.Type {
		case types.InteractionTypeClick:
			for range count {
				actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
					var nodes []*cdp.Node
					if err := chromedp.Nodes(ia.Selector, &nodes, chromedp.AtLeast(0)).Do(ctx); err != nil {
						return err
					}
					if len(nodes) == 0 {
						return nil
					}
					logger.Debug(fmt.Sprintf("clicking on node with selector: %s", ia.Selector))
					return chromedp.MouseClickNode(nodes[0]).Do(ctx)
				}))
				actions = append(actions, chromedp.Sleep(delay))
			}
		case types.InteractionTypeScroll:
			// infinite scrolling result lists load more items each time
			for range count {
				actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
					return chromedp.KeyEvent(kb.End).Do(ctx)
				}))
				actions = append(actions, chromedp.Sleep(delay))
			}
		default:
			logger.Warn(fmt.Sprintf("unknown interaction type %s", ia.Type))
		}
	}
	return actions
}
