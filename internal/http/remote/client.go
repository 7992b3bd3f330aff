// Package remote is the typed HTTP client of the community REST API. It
// backs the event coordinator, the chat synchronizer and profile resolution.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MaikZ91/liebefeld/internal/model"
	"github.com/MaikZ91/liebefeld/util/values"
	"github.com/google/go-querystring/query"
	"github.com/pkg/errors"
)

const defaultSource = "liebefeld-cli"

// Identity supplies the display name sent with every request.
type Identity interface {
	Username() string
}

// Client talks to the REST API under BaseURL.
type Client struct {
	BaseURL    *url.URL
	Source     string
	Identity   Identity
	HTTPClient *http.Client
}

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API request failed with status %d (%s): %s", e.StatusCode, e.Status, e.Message)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type EventQuery struct {
	City string `url:"city,omitempty"`
}

type GroupQuery struct {
	Category string `url:"category,omitempty"`
}

type UploadQuery struct {
	Folder string `url:"folder"`
}

func NewClient(baseURL string, identity Identity) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse api base url")
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return &Client{
		BaseURL:  u,
		Source:   defaultSource,
		Identity: identity,
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				IdleConnTimeout:     30 * time.Second,
				TLSHandshakeTimeout: 5 * time.Second,
			},
		},
	}, nil
}

// buildURL constructs the API URL with query parameters.
func (c *Client) buildURL(endpoint string, queryParams interface{}) (string, error) {
	rel, err := url.Parse(endpoint)
	if err != nil {
		return "", errors.Wrap(err, "parse endpoint")
	}
	u := c.BaseURL.ResolveReference(rel)

	if queryParams != nil {
		v, err := query.Values(queryParams)
		if err != nil {
			return "", errors.Wrap(err, "encode query parameters")
		}
		u.RawQuery = v.Encode()
	}
	return u.String(), nil
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, queryParams, body interface{}) (*http.Request, error) {
	reqURL, err := c.buildURL(endpoint, queryParams)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, "encode request body")
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.setHeaders(req)
	return req, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set(values.HeaderRequestSource, c.Source)
	if c.Identity != nil {
		req.Header.Set(values.HeaderGuestUsername, c.Identity.Username())
	}
}

func (c *Client) do(req *http.Request, v interface{}) error {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "execute HTTP request")
	}
	defer resp.Body.Close()

	var env envelope
	decodeErr := json.NewDecoder(resp.Body).Decode(&env)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Status: env.Status, Message: env.Message}
	}
	if decodeErr != nil {
		return errors.Wrap(decodeErr, "decode response")
	}

	if v != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, v); err != nil {
			return errors.Wrap(err, "decode response data")
		}
	}
	return nil
}

func (c *Client) call(ctx context.Context, method, endpoint string, queryParams, body, v interface{}) error {
	req, err := c.newRequest(ctx, method, endpoint, queryParams, body)
	if err != nil {
		return err
	}
	return c.do(req, v)
}

// ListEvents returns the community events for city, newest date first.
func (c *Client) ListEvents(ctx context.Context, city string) ([]model.Event, error) {
	var events []model.Event
	if err := c.call(ctx, http.MethodGet, "events", &EventQuery{City: city}, nil, &events); err != nil {
		return nil, errors.Wrap(err, "list events")
	}
	return events, nil
}

// FetchEvents returns the external feed as transformed by the server.
func (c *Client) FetchEvents(ctx context.Context) ([]model.Event, error) {
	var events []model.Event
	if err := c.call(ctx, http.MethodGet, "events/feed", nil, nil, &events); err != nil {
		return nil, errors.Wrap(err, "fetch event feed")
	}
	return events, nil
}

func (c *Client) CreateEvent(ctx context.Context, draft model.Event) (model.Event, error) {
	var created model.Event
	if err := c.call(ctx, http.MethodPost, "events", nil, draft, &created); err != nil {
		return model.Event{}, errors.Wrap(err, "create event")
	}
	return created, nil
}

func (c *Client) UpdateLikes(ctx context.Context, id string, likes int, likedBy []model.LikedBy) error {
	body := map[string]interface{}{"likes": likes, "liked_by_users": likedBy}
	return errors.Wrapf(c.call(ctx, http.MethodPut, "events/"+url.PathEscape(id)+"/likes", nil, body, nil), "update likes of %s", id)
}

func (c *Client) UpdateRSVP(ctx context.Context, id string, rsvp model.RSVP, likes int) error {
	body := map[string]interface{}{"rsvp": rsvp, "likes": likes}
	return errors.Wrapf(c.call(ctx, http.MethodPut, "events/"+url.PathEscape(id)+"/rsvp", nil, body, nil), "update rsvp of %s", id)
}

func (c *Client) ListGroups(ctx context.Context, category string) ([]model.ChatGroup, error) {
	var groups []model.ChatGroup
	if err := c.call(ctx, http.MethodGet, "groups", &GroupQuery{Category: category}, nil, &groups); err != nil {
		return nil, errors.Wrap(err, "list groups")
	}
	return groups, nil
}

func (c *Client) ListMessages(ctx context.Context, groupID string) ([]model.ChatMessage, error) {
	var messages []model.ChatMessage
	if err := c.call(ctx, http.MethodGet, "groups/"+url.PathEscape(groupID)+"/messages", nil, nil, &messages); err != nil {
		return nil, errors.Wrapf(err, "list messages of %s", groupID)
	}
	return messages, nil
}

func (c *Client) SendMessage(ctx context.Context, msg model.ChatMessage) (model.ChatMessage, error) {
	body := map[string]interface{}{
		"sender":      msg.Sender,
		"text":        msg.Text,
		"avatar":      msg.Avatar,
		"reply_to_id": msg.ReplyToID,
	}
	var created model.ChatMessage
	if err := c.call(ctx, http.MethodPost, "groups/"+url.PathEscape(msg.GroupID)+"/messages", nil, body, &created); err != nil {
		return model.ChatMessage{}, errors.Wrap(err, "send message")
	}
	return created, nil
}

func (c *Client) UpdateReactions(ctx context.Context, groupID, messageID string, reactions []model.Reaction) error {
	if reactions == nil {
		reactions = []model.Reaction{}
	}
	endpoint := "groups/" + url.PathEscape(groupID) + "/messages/" + url.PathEscape(messageID) + "/reactions"
	body := map[string]interface{}{"reactions": reactions}
	return errors.Wrapf(c.call(ctx, http.MethodPut, endpoint, nil, body, nil), "update reactions of %s", messageID)
}

// GetProfile returns nil, nil when the user has no profile.
func (c *Client) GetProfile(ctx context.Context, username string) (*model.UserProfile, error) {
	var p model.UserProfile
	err := c.call(ctx, http.MethodGet, "profiles/"+url.PathEscape(username), nil, nil, &p)
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get profile %s", username)
	}
	return &p, nil
}

func (c *Client) UpsertProfile(ctx context.Context, p model.UserProfile) (model.UserProfile, error) {
	var saved model.UserProfile
	if err := c.call(ctx, http.MethodPut, "profiles/"+url.PathEscape(p.Username), nil, p, &saved); err != nil {
		return model.UserProfile{}, errors.Wrapf(err, "save profile %s", p.Username)
	}
	return saved, nil
}

// UploadImage sends an image to object storage and returns its public URL.
func (c *Client) UploadImage(ctx context.Context, folder, filename string, file io.Reader) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", errors.Wrap(err, "create form file")
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", errors.Wrap(err, "read image")
	}
	if err := mw.Close(); err != nil {
		return "", errors.Wrap(err, "close form")
	}

	reqURL, err := c.buildURL("uploads", &UploadQuery{Folder: folder})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, &buf)
	if err != nil {
		return "", errors.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	c.setHeaders(req)

	var out struct {
		URL string `json:"url"`
	}
	if err := c.do(req, &out); err != nil {
		return "", errors.Wrap(err, "upload image")
	}
	return out.URL, nil
}
