package propsync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// RemoteAPI is the read/write surface of the remote base. ListRecords and
// GetRecord are read-only; UpdateRecord goes through the bounded-backoff
// retry layer.
type RemoteAPI interface {
	ListRecords(ctx context.Context, tableID string, viewID string) ([]Record, error)
	GetRecord(ctx context.Context, tableID string, recordID string) (*Record, error)
	UpdateRecord(ctx context.Context, tableID string, recordID string, fields map[string]interface{}) error
}

// errRateLimited marks a 429 from the remote; the only retryable write error.
var errRateLimited = errors.New("remote rate limited")

// getRecordTimeout bounds the validation read so a stuck remote cannot hang
// the linker pass indefinitely.
const getRecordTimeout = 10 * time.Second

type airtableClient struct {
	baseURL    string
	apiKey     string
	baseID     string
	http       *http.Client
	limiter    <-chan time.Time
	logger     *logrus.Logger
	maxRecords int
	maxRetries int

	// sleep is swappable for tests; time.Sleep in production.
	sleep func(time.Duration)

	warnOnce sync.Once
}

func newAirtableClient(cfg Config, logger *logrus.Logger) *airtableClient {
	baseURL := strings.TrimSpace(os.Getenv("AIRTABLE_API_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://api.airtable.com"
	}
	rateLimitPerSec := int64(5)
	if v := strings.TrimSpace(os.Getenv("AIRTABLE_RATE_LIMIT_PER_SEC")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			rateLimitPerSec = n
		}
	}
	interval := time.Second / time.Duration(rateLimitPerSec)

	return &airtableClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     strings.TrimSpace(cfg.APIKey),
		baseID:     strings.TrimSpace(cfg.BaseID),
		http:       &http.Client{Timeout: 30 * time.Second},
		limiter:    time.Tick(interval),
		logger:     logger,
		maxRecords: cfg.MaxRecordsPerView,
		maxRetries: cfg.WriteMaxRetries,
		sleep:      time.Sleep,
	}
}

func (c *airtableClient) configured() bool {
	if c.apiKey != "" && c.baseID != "" {
		return true
	}
	c.warnOnce.Do(func() {
		c.logger.WithFields(logrus.Fields{
			"module": "propsync",
		}).Warn("remote credentials missing; every remote call is a no-op")
	})
	return false
}

type listResponse struct {
	Records []Record `json:"records"`
	Offset  string   `json:"offset"`
}

// ListRecords fetches every record visible through the view, following
// offset pagination up to the configured cap. A failed page fails the whole
// call; partial results are never returned.
func (c *airtableClient) ListRecords(ctx context.Context, tableID string, viewID string) ([]Record, error) {
	if !c.configured() {
		return nil, nil
	}

	var records []Record
	offset := ""
	for {
		params := url.Values{}
		if viewID != "" {
			params.Set("view", viewID)
		}
		params.Set("pageSize", "100")
		if c.maxRecords > 0 {
			params.Set("maxRecords", strconv.Itoa(c.maxRecords))
		}
		if offset != "" {
			params.Set("offset", offset)
		}

		var page listResponse
		if err := c.doGet(ctx, c.recordsPath(tableID), params, &page); err != nil {
			return nil, err
		}
		records = append(records, page.Records...)

		if page.Offset == "" {
			return records, nil
		}
		if c.maxRecords > 0 && len(records) >= c.maxRecords {
			return records[:c.maxRecords], nil
		}
		offset = page.Offset
	}
}

// GetRecord is the bounded validation lookup used by the linker.
func (c *airtableClient) GetRecord(ctx context.Context, tableID string, recordID string) (*Record, error) {
	if !c.configured() {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, getRecordTimeout)
	defer cancel()

	var rec Record
	if err := c.doGet(ctx, c.recordsPath(tableID)+"/"+url.PathEscape(recordID), nil, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// UpdateRecord writes fields back to the remote. Keys may be field names or
// opaque field ids; the remote accepts both. Rate limits are retried with
// exponential backoff, everything else fails immediately.
func (c *airtableClient) UpdateRecord(ctx context.Context, tableID string, recordID string, fields map[string]interface{}) error {
	if !c.configured() {
		return nil
	}
	ok := writeWithRetry(c.logger, "UpdateRecord", c.maxRetries, c.sleep, func() error {
		return c.doPatch(ctx, c.recordsPath(tableID)+"/"+url.PathEscape(recordID), fields)
	})
	if !ok {
		return fmt.Errorf("update record %s/%s failed", tableID, recordID)
	}
	return nil
}

func (c *airtableClient) recordsPath(tableID string) string {
	return "/v0/" + url.PathEscape(c.baseID) + "/" + url.PathEscape(tableID)
}

func (c *airtableClient) doGet(ctx context.Context, path string, params url.Values, dest interface{}) error {
	<-c.limiter
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint = endpoint + "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return remoteError(resp.StatusCode, body)
	}
	return json.Unmarshal(body, dest)
}

func (c *airtableClient) doPatch(ctx context.Context, path string, fields map[string]interface{}) error {
	<-c.limiter
	payload, err := json.Marshal(map[string]interface{}{"fields": fields})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return remoteError(resp.StatusCode, body)
	}
	return nil
}

func remoteError(status int, body []byte) error {
	if status == http.StatusTooManyRequests {
		return errRateLimited
	}
	return fmt.Errorf("remote api error %d: %s", status, strings.TrimSpace(string(truncate(body, 500))))
}

// writeWithRetry runs write, sleeping 2^attempt seconds between rate-limited
// attempts, up to maxRetries. Any other error fails immediately. Returns
// false only when retries are exhausted or the error is not retryable.
func writeWithRetry(logger *logrus.Logger, op string, maxRetries int, sleep func(time.Duration), write func() error) bool {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := write()
		if err == nil {
			return true
		}
		if !errors.Is(err, errRateLimited) {
			logger.WithFields(logrus.Fields{
				"module": "propsync",
				"op":     op,
			}).Error(err.Error())
			return false
		}
		if attempt == maxRetries {
			logger.WithFields(logrus.Fields{
				"module":   "propsync",
				"op":       op,
				"attempts": attempt + 1,
			}).Error("rate limit retries exhausted")
			return false
		}
		sleep(backoffDelay(attempt))
	}
	return false
}

func backoffDelay(attempt int) time.Duration {
	return time.Duration(1<<uint(attempt)) * time.Second
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
