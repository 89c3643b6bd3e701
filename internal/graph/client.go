package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/RussellLuo/slidingwindow"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/puzpuzpuz/xsync/v4"

	"basegraph.app/pagebot/core/config"
	"basegraph.app/pagebot/internal/domain"
	"basegraph.app/pagebot/internal/metrics"
)

const (
	itemFields      = "id,message,from,created_time,permalink_url"
	containerFields = "id,message,attachments{media_type,title,description,url}"
	timeLayout      = "2006-01-02T15:04:05-0700"
	maxErrorBody    = 4 << 10
)

// Client talks to the Graph API on behalf of any configured page. Reads are
// retried on 429 and 5xx; writes never are, so a timeout cannot double-post.
type Client struct {
	baseURL string
	reader  *retryablehttp.Client
	writer  *retryablehttp.Client
	budget  int64
	windows *xsync.Map[string, *slidingwindow.Limiter]
}

func New(cfg config.GraphConfig) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/") + "/" + strings.Trim(cfg.Version, "/"),
		reader:  newHTTPClient(cfg.RetryMax, cfg.Timeout),
		writer:  newHTTPClient(0, cfg.Timeout),
		budget:  cfg.CallBudgetPerHour,
		windows: xsync.NewMap[string, *slidingwindow.Limiter](),
	}
}

func newHTTPClient(retryMax int, timeout time.Duration) *retryablehttp.Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = retryMax
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 5 * time.Second
	rc.Logger = slog.Default()
	// Hand the last response back so callers see the status code.
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.HTTPClient.Timeout = timeout
	return rc
}

// allow spends one call from the page's hourly budget. A non-positive
// budget disables the check.
func (c *Client) allow(pageID string) bool {
	if c.budget <= 0 {
		return true
	}
	lim, _ := c.windows.LoadOrCompute(pageID, func() (*slidingwindow.Limiter, bool) {
		l, _ := slidingwindow.NewLimiter(time.Hour, c.budget, func() (slidingwindow.Window, slidingwindow.StopFunc) {
			return slidingwindow.NewLocalWindow()
		})
		return l, false
	})
	return lim.Allow()
}

type itemResponse struct {
	ID           string `json:"id"`
	Message      string `json:"message"`
	CreatedTime  string `json:"created_time"`
	PermalinkURL string `json:"permalink_url"`
	From         struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"from"`
}

// FetchItem loads a comment or post.
func (c *Client) FetchItem(ctx context.Context, creds domain.Credentials, itemID string) (domain.Item, error) {
	var resp itemResponse
	if err := c.get(ctx, creds, itemID, itemFields, &resp); err != nil {
		return domain.Item{}, err
	}

	item := domain.Item{
		ID:         resp.ID,
		AuthorID:   resp.From.ID,
		AuthorName: resp.From.Name,
		Text:       resp.Message,
		Permalink:  resp.PermalinkURL,
	}
	if resp.CreatedTime != "" {
		created, err := time.Parse(timeLayout, resp.CreatedTime)
		if err != nil {
			return domain.Item{}, &FetchError{ItemID: itemID, Err: fmt.Errorf("parsing created_time: %w", err)}
		}
		item.CreatedAt = created
	}
	return item, nil
}

type containerResponse struct {
	ID          string `json:"id"`
	Message     string `json:"message"`
	Attachments struct {
		Data []struct {
			MediaType   string `json:"media_type"`
			Title       string `json:"title"`
			Description string `json:"description"`
			URL         string `json:"url"`
		} `json:"data"`
	} `json:"attachments"`
}

// FetchContainer loads the post a comment was left on.
func (c *Client) FetchContainer(ctx context.Context, creds domain.Credentials, postID string) (domain.Container, error) {
	var resp containerResponse
	if err := c.get(ctx, creds, postID, containerFields, &resp); err != nil {
		return domain.Container{}, err
	}

	container := domain.Container{ID: resp.ID, Caption: resp.Message}
	for _, a := range resp.Attachments.Data {
		container.Attachments = append(container.Attachments, domain.Attachment{
			MediaType:   a.MediaType,
			Title:       a.Title,
			Description: a.Description,
			URL:         a.URL,
		})
	}
	return container, nil
}

func (c *Client) get(ctx context.Context, creds domain.Credentials, objectID, fields string, out any) error {
	if !c.allow(creds.PageID) {
		metrics.GraphCalls.WithLabelValues("fetch", "budget").Inc()
		return &FetchError{ItemID: objectID, Err: ErrBudgetExhausted}
	}

	q := url.Values{}
	q.Set("fields", fields)
	q.Set("access_token", creds.AccessToken)
	endpoint := fmt.Sprintf("%s/%s?%s", c.baseURL, url.PathEscape(objectID), q.Encode())

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return &FetchError{ItemID: objectID, Err: err}
	}

	resp, err := c.reader.Do(req)
	if err != nil {
		metrics.GraphCalls.WithLabelValues("fetch", "error").Inc()
		return &FetchError{ItemID: objectID, Err: err}
	}
	defer resp.Body.Close()
	metrics.GraphCalls.WithLabelValues("fetch", strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &FetchError{ItemID: objectID, StatusCode: resp.StatusCode, Message: errorMessage(resp.Body)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &FetchError{ItemID: objectID, StatusCode: resp.StatusCode, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return nil
}

// PostAction performs a task against the platform and returns the id of
// what it created. A like has no id of its own, so the target id is returned.
func (c *Client) PostAction(ctx context.Context, creds domain.Credentials, taskType domain.TaskType, targetID, message string) (string, error) {
	form := url.Values{}
	form.Set("access_token", creds.AccessToken)

	var edge string
	switch taskType {
	case domain.TaskTypeAcknowledge:
		edge = "likes"
	case domain.TaskTypeRespond, domain.TaskTypeSeed:
		if strings.TrimSpace(message) == "" {
			return "", &ActionError{Type: taskType, TargetID: targetID, Err: fmt.Errorf("empty message")}
		}
		edge = "comments"
		form.Set("message", message)
	default:
		return "", &ActionError{Type: taskType, TargetID: targetID, Err: fmt.Errorf("unsupported task type")}
	}

	if !c.allow(creds.PageID) {
		metrics.GraphCalls.WithLabelValues(edge, "budget").Inc()
		return "", &ActionError{Type: taskType, TargetID: targetID, Err: ErrBudgetExhausted}
	}

	endpoint := fmt.Sprintf("%s/%s/%s", c.baseURL, url.PathEscape(targetID), edge)
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", &ActionError{Type: taskType, TargetID: targetID, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.writer.Do(req)
	if err != nil {
		metrics.GraphCalls.WithLabelValues(edge, "error").Inc()
		return "", &ActionError{Type: taskType, TargetID: targetID, Err: err}
	}
	defer resp.Body.Close()
	metrics.GraphCalls.WithLabelValues(edge, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &ActionError{Type: taskType, TargetID: targetID, StatusCode: resp.StatusCode, Message: errorMessage(resp.Body)}
	}

	if taskType == domain.TaskTypeAcknowledge {
		return targetID, nil
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", &ActionError{Type: taskType, TargetID: targetID, StatusCode: resp.StatusCode, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return created.ID, nil
}

func errorMessage(body io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(body, maxErrorBody))
	var envelope apiError
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	return strings.TrimSpace(string(raw))
}
