// Package feed reads the public events JSON document and turns its entries
// into events.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/MaikZ91/liebefeld/internal/model"
	"github.com/MaikZ91/liebefeld/util"
	"github.com/google/go-querystring/query"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// FeedCategory is assigned to feed entries that carry no category.
const FeedCategory = "Sonstiges"

var (
	ErrNoFeedURL = errors.New("no event feed url configured")

	datePattern  = regexp.MustCompile(`^\s*[\p{L}]{2,}\.?,\s*(\d{1,2})\.(\d{1,2})\.?\s*$`)
	titlePattern = regexp.MustCompile(`^(.*?)\s*\(\s*@\s*([^)]*?)\s*\)\s*$`)

	// feedNamespace scopes the derived event ids.
	feedNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("liebefeld:event-feed"))
)

// Entry is one record of the external feed.
type Entry struct {
	Date     string `json:"date"`
	Event    string `json:"event"`
	Time     string `json:"time,omitempty"`
	Link     string `json:"link,omitempty"`
	Category string `json:"category,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

// Query narrows the feed request.
type Query struct {
	City string `url:"city,omitempty"`
}

type Client struct {
	BaseURL    *url.URL
	City       string
	HTTPClient *http.Client
	now        func() time.Time
}

// NewClient returns a client for feedURL. An empty url yields a client
// whose fetches fail with ErrNoFeedURL.
func NewClient(feedURL, city string) (*Client, error) {
	c := &Client{
		City: city,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				IdleConnTimeout:     30 * time.Second,
				TLSHandshakeTimeout: 5 * time.Second,
			},
		},
		now: time.Now,
	}
	if feedURL == "" {
		return c, nil
	}
	u, err := url.Parse(feedURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse feed url")
	}
	c.BaseURL = u
	return c, nil
}

func (c *Client) buildURL(params interface{}) (string, error) {
	u := *c.BaseURL
	q := u.Query()
	if params != nil {
		v, err := query.Values(params)
		if err != nil {
			return "", errors.Wrap(err, "encode query parameters")
		}
		for k, vals := range v {
			for _, val := range vals {
				q.Add(k, val)
			}
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Fetch downloads the raw feed entries.
func (c *Client) Fetch(ctx context.Context) ([]Entry, error) {
	if c.BaseURL == nil {
		return nil, ErrNoFeedURL
	}
	reqURL, err := c.buildURL(&Query{City: c.City})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	req.Header.Set("Accept", "application/json")

	var entries []Entry
	if err := c.do(req, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// FetchEvents downloads and transforms the feed.
func (c *Client) FetchEvents(ctx context.Context) ([]model.Event, error) {
	entries, err := c.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	return Transform(entries, c.now()), nil
}

func (c *Client) do(req *http.Request, v interface{}) error {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "execute HTTP request")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("feed request failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return errors.Wrap(err, "decode feed")
	}
	return nil
}

// Transform converts entries parsed at now. Entries with an unreadable date
// or without a title are logged and dropped.
func Transform(entries []Entry, now time.Time) []model.Event {
	events := make([]model.Event, 0, len(entries))
	for _, entry := range entries {
		date, err := ParseDate(entry.Date, now)
		if err != nil {
			log.Printf("[Feed]: dropping %q: %v", entry.Event, err)
			continue
		}
		title, location := SplitTitle(entry.Event)
		if title == "" {
			log.Printf("[Feed]: dropping entry on %s without title", date)
			continue
		}

		category := strings.TrimSpace(entry.Category)
		if category == "" {
			category = FeedCategory
		}
		event := model.Event{
			ID:       EventID(date, title, location),
			Title:    title,
			Date:     date,
			Location: location,
			Category: category,
			Link:     util.StringPtr(entry.Link),
			Source:   model.SourceFeed,
		}
		if t := strings.TrimSpace(entry.Time); t != "" {
			if _, err := time.Parse(util.ClockTimeLayout, t); err == nil {
				event.Time = t
			}
		}
		if entry.ImageURL != "" {
			event.ImageURLs = []string{entry.ImageURL}
		}
		events = append(events, event)
	}
	return events
}

// ParseDate reads "Day, dd.mm" as a date in now's year. Months before the
// current month belong to next year.
func ParseDate(s string, now time.Time) (string, error) {
	m := datePattern.FindStringSubmatch(s)
	if m == nil {
		return "", errors.Errorf("unreadable date %q", s)
	}
	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	if month < 1 || month > 12 || day < 1 {
		return "", errors.Errorf("invalid date %q", s)
	}

	year := now.Year()
	if time.Month(month) < now.Month() {
		year++
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || t.Month() != time.Month(month) {
		return "", errors.Errorf("invalid date %q", s)
	}
	return util.CalendarDay(t), nil
}

// SplitTitle splits "Title (@Location)" into its parts.
func SplitTitle(s string) (title, location string) {
	s = strings.TrimSpace(s)
	if m := titlePattern.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1]), m[2]
	}
	return s, ""
}

// EventID derives a stable id so repeated fetches keep the same identity.
func EventID(date, title, location string) string {
	return uuid.NewSHA1(feedNamespace, []byte(date+"|"+title+"|"+location)).String()
}
