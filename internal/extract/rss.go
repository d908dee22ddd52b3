package extract

import (
	"context"
	"encoding/xml"
	"html"
	"net/http"
	"regexp"
	"strings"
	"time"

	"main/internal/model"
	"main/internal/model/enum"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

// RSSConfig configures an RSS feed source.
type RSSConfig struct {
	SourceID string
	FeedURL  string
	Timeout  time.Duration
}

// RSS extracts items from a feed. The cursor is the newest published
// timestamp already loaded; items at or before it are skipped, and GUIDs are
// deduplicated within the fetched document.
type RSS struct {
	cfg    RSSConfig
	guard  Guard
	client *http.Client

	now func() time.Time
}

// NewRSS creates an RSS extractor for one run.
func NewRSS(cfg RSSConfig, guard Guard) *RSS {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultHTTPTimeout
	}
	return &RSS{
		cfg:    cfg,
		guard:  guard,
		client: &http.Client{Timeout: cfg.Timeout},
		now:    time.Now,
	}
}

func (r *RSS) SourceID() string      { return r.cfg.SourceID }
func (r *RSS) Type() enum.SourceType { return enum.SourceTypeRSS }

type rssDocument struct {
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title       string   `xml:"title"`
	Link        string   `xml:"link"`
	Description string   `xml:"description"`
	PubDate     string   `xml:"pubDate"`
	GUID        string   `xml:"guid"`
	Author      string   `xml:"author"`
	Creator     string   `xml:"creator"`
	Categories  []string `xml:"category"`
}

// Extract fetches and parses the feed. Feeds are one page, so a single batch
// covers the whole document.
func (r *RSS) Extract(ctx context.Context, cursor model.Cursor) (*Batch, error) {
	if r == nil {
		return nil, errors.New("nil rss extractor")
	}

	body, err := fetch(ctx, r.client, r.guard, r.cfg.SourceID, r.cfg.FeedURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "fetch feed")
	}

	var doc rssDocument
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, errors.Wrap(err, "parse feed xml")
	}

	since, _ := parseFeedDate(cursor.LastID)
	maxSeen := cursor.LastID

	batch := &Batch{Done: true, Next: cursor}
	seen := make(map[string]struct{}, len(doc.Channel.Items))
	for _, item := range doc.Channel.Items {
		guid := strings.TrimSpace(item.GUID)
		if guid == "" {
			guid = strings.TrimSpace(item.Link)
		}
		if guid == "" {
			logs.Warnf("rss [%s]: item without guid or link dropped", r.cfg.SourceID)
			continue
		}
		if _, dup := seen[guid]; dup {
			continue
		}
		seen[guid] = struct{}{}

		published, ok := parseFeedDate(item.PubDate)
		if ok {
			if !since.IsZero() && !published.After(since) {
				continue
			}
			if ts := published.UTC().Format(time.RFC3339); ts > maxSeen {
				maxSeen = ts
			}
		}

		author := strings.TrimSpace(item.Author)
		if author == "" {
			author = strings.TrimSpace(item.Creator)
		}

		payload := map[string]any{
			"guid":        guid,
			"title":       strings.TrimSpace(item.Title),
			"link":        strings.TrimSpace(item.Link),
			"description": stripHTML(item.Description),
			"pubDate":     strings.TrimSpace(item.PubDate),
			"author":      author,
		}
		if len(item.Categories) > 0 {
			payload["category"] = strings.TrimSpace(item.Categories[0])
		}

		batch.Records = append(batch.Records, model.RawRecord{
			SourceID:       r.cfg.SourceID,
			SourceType:     enum.SourceTypeRSS,
			SourceRecordID: guid,
			Payload:        payload,
			Checksum:       model.ComputeChecksum(payload),
			IngestedAt:     r.now().UTC(),
		})
	}

	if maxSeen > cursor.LastID {
		batch.Next = model.Cursor{LastID: maxSeen}
	}
	return batch, nil
}

var feedDateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseFeedDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range feedDateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

var htmlTagPattern = regexp.MustCompile(`<[^>]+>`)
var whitespacePattern = regexp.MustCompile(`\s+`)

func stripHTML(text string) string {
	text = html.UnescapeString(text)
	text = htmlTagPattern.ReplaceAllString(text, "")
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(text, " "))
}
