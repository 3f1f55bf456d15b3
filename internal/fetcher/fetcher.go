// Package fetcher downloads tag feeds and turns them into feed entries.
package fetcher

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"feed_notifier/internal/model"
)

const maxBodySize = 5 * 1024 * 1024

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// FetchError reports a feed that could not be retrieved or parsed.
type FetchError struct {
	Tag string
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch feed %q from %s: %v", e.Tag, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// SchemaError reports a feed entry that lacks a required element.
type SchemaError struct {
	Tag     string
	Index   int
	Element string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("feed %q: entry %d has no %s", e.Tag, e.Index, e.Element)
}

// Fetcher downloads and parses tag feeds.
type Fetcher struct {
	client  HTTPClient
	feedURL func(tag string) string
	timeout time.Duration
	parser  *gofeed.Parser
}

// New creates a Fetcher. feedURL derives the feed location for a tag.
func New(client HTTPClient, feedURL func(tag string) string) *Fetcher {
	return &Fetcher{
		client:  client,
		feedURL: feedURL,
		parser:  gofeed.NewParser(),
	}
}

// SetTimeout bounds every feed request. Zero disables the bound.
func (f *Fetcher) SetTimeout(d time.Duration) {
	f.timeout = d
}

// FetchAll fetches every tag in order and stops at the first failure.
func (f *Fetcher) FetchAll(ctx context.Context, tags []string) ([]model.TagBucket, error) {
	buckets := make([]model.TagBucket, 0, len(tags))
	for _, tag := range tags {
		b, err := f.Fetch(ctx, tag)
		if err != nil {
			return nil, err
		}
		buckets = append(buckets, b)
	}
	return buckets, nil
}

// Fetch downloads the feed for tag and returns its entries in document order.
func (f *Fetcher) Fetch(ctx context.Context, tag string) (model.TagBucket, error) {
	url := f.feedURL(tag)

	body, err := f.download(ctx, url)
	if err != nil {
		return model.TagBucket{}, &FetchError{Tag: tag, URL: url, Err: err}
	}

	var entries []model.FeedEntry
	switch gofeed.DetectFeedType(bytes.NewReader(body)) {
	case gofeed.FeedTypeAtom:
		entries, err = parseAtom(tag, body)
	case gofeed.FeedTypeRSS, gofeed.FeedTypeJSON:
		entries, err = f.parseGeneric(tag, body)
	default:
		err = fmt.Errorf("unrecognized feed format")
	}
	if err != nil {
		var schemaErr *SchemaError
		if errors.As(err, &schemaErr) {
			return model.TagBucket{}, err
		}
		return model.TagBucket{}, &FetchError{Tag: tag, URL: url, Err: err}
	}

	return model.TagBucket{Tag: tag, Entries: entries}, nil
}

func (f *Fetcher) download(ctx context.Context, url string) ([]byte, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "FeedNotifier/1.0")
	req.Header.Set("Accept", "application/atom+xml, application/rss+xml, application/xml, text/xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

type atomFeed struct {
	Entries []atomEntry `xml:"entry"`
}

// Pointers distinguish an absent element from an empty one.
type atomEntry struct {
	ID      *string `xml:"id"`
	Updated *string `xml:"updated"`
	URL     *string `xml:"url"`
	Title   *string `xml:"title"`
}

func parseAtom(tag string, body []byte) ([]model.FeedEntry, error) {
	var doc atomFeed
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("parse atom: %w", err)
	}

	entries := make([]model.FeedEntry, 0, len(doc.Entries))
	for i, e := range doc.Entries {
		fields := []struct {
			name  string
			value *string
		}{
			{"id", e.ID},
			{"updated", e.Updated},
			{"url", e.URL},
			{"title", e.Title},
		}
		for _, fld := range fields {
			if fld.value == nil || strings.TrimSpace(*fld.value) == "" {
				return nil, &SchemaError{Tag: tag, Index: i, Element: fld.name}
			}
		}

		entries = append(entries, model.FeedEntry{
			ID:      strings.TrimSpace(*e.ID),
			Updated: strings.TrimSpace(*e.Updated),
			URL:     strings.TrimSpace(*e.URL),
			Title:   strings.TrimSpace(*e.Title),
		})
	}
	return entries, nil
}

// parseGeneric maps RSS and JSON feed items onto entries: guid as id,
// the update (or publish) date as version marker.
func (f *Fetcher) parseGeneric(tag string, body []byte) ([]model.FeedEntry, error) {
	feed, err := f.parser.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	entries := make([]model.FeedEntry, 0, len(feed.Items))
	for i, item := range feed.Items {
		updated := item.Updated
		if updated == "" {
			updated = item.Published
		}

		e := model.FeedEntry{
			ID:      strings.TrimSpace(item.GUID),
			Updated: strings.TrimSpace(updated),
			URL:     strings.TrimSpace(item.Link),
			Title:   strings.TrimSpace(item.Title),
		}
		switch {
		case e.ID == "":
			return nil, &SchemaError{Tag: tag, Index: i, Element: "guid"}
		case e.Updated == "":
			return nil, &SchemaError{Tag: tag, Index: i, Element: "pubDate"}
		case e.URL == "":
			return nil, &SchemaError{Tag: tag, Index: i, Element: "link"}
		case e.Title == "":
			return nil, &SchemaError{Tag: tag, Index: i, Element: "title"}
		}
		entries = append(entries, e)
	}
	return entries, nil
}
