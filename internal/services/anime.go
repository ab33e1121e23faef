package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"animetracker/internal/models"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL  = "http://localhost:5123"
	defaultTimeout  = 30 * time.Second
	userAgent       = "AnimeTracker/1.0"
	maxResponseSize = 5 * 1024 * 1024 // 5MB

	filterPath = "/anime/filter"
	animePath  = "/anime"
	uploadPath = "/fileupload/upload"
)

// Operation names used in errors, logs and metrics.
const (
	OpList        = "list"
	OpGet         = "get"
	OpCreate      = "create"
	OpUpdate      = "update"
	OpRemove      = "remove"
	OpUploadImage = "upload_image"
)

// RequestRecorder receives one observation per client call.
type RequestRecorder interface {
	RecordRequest(operation, outcome string, duration time.Duration)
}

// Client talks to the anime catalog REST service. It keeps no state between
// calls apart from its configuration and never retries.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	logger     *logrus.Logger
	userAgent  string
	limiter    *rate.Limiter
	metrics    RequestRecorder
}

type ClientConfig struct {
	BaseURL   string
	Timeout   time.Duration
	RateLimit time.Duration // minimum spacing between requests, 0 disables
	UserAgent string
	Logger    *logrus.Logger
	Metrics   RequestRecorder

	// HTTPClient overrides the client built from Timeout.
	HTTPClient *http.Client
}

func NewClient(baseURL string) (*Client, error) {
	return NewClientWithConfig(&ClientConfig{
		BaseURL:   baseURL,
		Timeout:   defaultTimeout,
		UserAgent: userAgent,
		Logger:    logrus.New(),
	})
}

func NewClientWithConfig(config *ClientConfig) (*Client, error) {
	if config.Logger == nil {
		config.Logger = logrus.New()
	}
	if config.UserAgent == "" {
		config.UserAgent = userAgent
	}

	raw := strings.TrimSpace(config.BaseURL)
	if raw == "" {
		raw = defaultBaseURL
	}
	base, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", config.BaseURL, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: scheme and host are required", config.BaseURL)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: config.Timeout,
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				MaxIdleConns:          100,
				MaxIdleConnsPerHost:   10,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
			},
		}
	}

	client := &Client{
		baseURL:    base,
		httpClient: httpClient,
		logger:     config.Logger,
		userAgent:  config.UserAgent,
		metrics:    config.Metrics,
	}
	if config.RateLimit > 0 {
		client.limiter = rate.NewLimiter(rate.Every(config.RateLimit), 1)
	}
	return client, nil
}

// BaseURL returns the service origin requests are sent to.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// ImageURL resolves a server-relative image reference against the base URL.
func (c *Client) ImageURL(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil || u.IsAbs() {
		return ref
	}
	return c.baseURL.ResolveReference(u).String()
}

// List fetches one page of entries matching filter.
func (c *Client) List(ctx context.Context, filter models.FilterSpec) (*models.ListResult, error) {
	c.logger.WithFields(logrus.Fields{
		"search":    filter.Search,
		"sort_by":   filter.SortBy,
		"sort_desc": filter.SortDescending,
		"page":      filter.Page,
		"page_size": filter.PageSize,
	}).Debug("Listing anime...")

	resp, err := c.do(ctx, OpList, http.MethodGet, c.endpoint(filterPath, filterQuery(filter)), nil, "")
	if err != nil {
		return nil, err
	}

	result, shape, ok := normalizeList(resp.body, filter)
	if !ok {
		c.record(OpList, "malformed", resp.elapsed)
		return nil, malformedError(OpList, resp.status, nil)
	}

	c.logger.WithFields(logrus.Fields{
		"shape":       shape,
		"items":       len(result.Items),
		"total_count": result.Pagination.TotalCount,
	}).Debug("Anime list decoded")

	c.record(OpList, "success", resp.elapsed)
	return result, nil
}

func filterQuery(filter models.FilterSpec) url.Values {
	params := url.Values{}
	if s := strings.TrimSpace(filter.Search); s != "" {
		params.Set("search", s)
	}
	if filter.SortBy != "" {
		params.Set("sortBy", string(filter.SortBy))
	}
	params.Set("sortDescending", strconv.FormatBool(filter.SortDescending))
	if filter.Page > 0 {
		params.Set("page", strconv.Itoa(filter.Page))
	}
	if filter.PageSize > 0 {
		params.Set("pageSize", strconv.Itoa(filter.PageSize))
	}
	return params
}

func (c *Client) GetByID(ctx context.Context, id string) (*models.AnimeEntry, error) {
	resp, err := c.do(ctx, OpGet, http.MethodGet, c.entryEndpoint(id), nil, "")
	if err != nil {
		return nil, err
	}
	return c.decodeEntry(OpGet, resp, "")
}

// entryPayload is the request body shape the service binds on create/update.
type entryPayload struct {
	Title  string   `json:"Title"`
	Status string   `json:"Status"`
	Rating float64  `json:"Rating"`
	Genres []string `json:"Genres"`
	Image  string   `json:"Image"`
}

func payloadFor(d models.Draft) entryPayload {
	genres := d.Genres
	if genres == nil {
		genres = []string{}
	}
	return entryPayload{
		Title:  d.Title,
		Status: string(d.Status),
		Rating: d.Rating,
		Genres: genres,
		Image:  d.Image,
	}
}

// Create posts draft and returns the entry as stored by the server.
func (c *Client) Create(ctx context.Context, draft models.Draft) (*models.AnimeEntry, error) {
	body, err := json.Marshal(payloadFor(draft))
	if err != nil {
		return nil, requestError(OpCreate, fmt.Errorf("failed to marshal anime: %w", err))
	}

	resp, err := c.do(ctx, OpCreate, http.MethodPost, c.endpoint(animePath, nil), bytes.NewReader(body), "application/json")
	if err != nil {
		return nil, err
	}
	return c.decodeEntry(OpCreate, resp, "")
}

// Update replaces every field of entry id with draft. Fields left empty in
// draft are cleared on the server.
func (c *Client) Update(ctx context.Context, id string, draft models.Draft) (*models.AnimeEntry, error) {
	body, err := json.Marshal(payloadFor(draft))
	if err != nil {
		return nil, requestError(OpUpdate, fmt.Errorf("failed to marshal anime: %w", err))
	}

	resp, err := c.do(ctx, OpUpdate, http.MethodPut, c.entryEndpoint(id), bytes.NewReader(body), "application/json")
	if err != nil {
		return nil, err
	}

	if resp.status == http.StatusNoContent {
		c.record(OpUpdate, "success", resp.elapsed)
		p := payloadFor(draft)
		return &models.AnimeEntry{
			ID:     id,
			Title:  p.Title,
			Status: draft.Status,
			Rating: p.Rating,
			Genres: p.Genres,
			Image:  p.Image,
		}, nil
	}
	return c.decodeEntry(OpUpdate, resp, id)
}

func (c *Client) Remove(ctx context.Context, id string) error {
	resp, err := c.do(ctx, OpRemove, http.MethodDelete, c.entryEndpoint(id), nil, "")
	if err != nil {
		return err
	}
	c.record(OpRemove, "success", resp.elapsed)
	return nil
}

// UploadImage sends data as the multipart field "file" and returns the image
// reference the server assigned to it.
func (c *Client) UploadImage(ctx context.Context, data []byte, fileName, mimeType string) (string, error) {
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(fileName)))
	h.Set("Content-Type", mimeType)
	part, err := w.CreatePart(h)
	if err != nil {
		return "", requestError(OpUploadImage, fmt.Errorf("failed to create multipart part: %w", err))
	}
	if _, err := part.Write(data); err != nil {
		return "", requestError(OpUploadImage, fmt.Errorf("failed to write multipart part: %w", err))
	}
	if err := w.Close(); err != nil {
		return "", requestError(OpUploadImage, fmt.Errorf("failed to close multipart writer: %w", err))
	}

	c.logger.WithFields(logrus.Fields{
		"file_name": fileName,
		"mime_type": mimeType,
		"size":      len(data),
	}).Info("Uploading image...")

	resp, err := c.do(ctx, OpUploadImage, http.MethodPost, c.endpoint(uploadPath, nil), &buf, w.FormDataContentType())
	if err != nil {
		return "", err
	}

	ref, ok := extractImageRef(resp.body, resp.contentType)
	if !ok {
		c.record(OpUploadImage, "malformed", resp.elapsed)
		c.logger.WithField("response_size", len(resp.body)).Warn("Upload response carried no image reference")
		return "", malformedError(OpUploadImage, resp.status, nil)
	}

	c.record(OpUploadImage, "success", resp.elapsed)
	return ref, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

// endpoint joins an already escaped path onto the base URL.
func (c *Client) endpoint(path string, query url.Values) string {
	target := strings.TrimRight(c.baseURL.String(), "/") + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	return target
}

func (c *Client) entryEndpoint(id string) string {
	return c.endpoint(animePath+"/"+url.PathEscape(id), nil)
}

type response struct {
	status      int
	contentType string
	body        []byte
	elapsed     time.Duration
}

// do performs one request. It returns a transport error when no response was
// obtained and a decoded remote error for non-2xx statuses.
func (c *Client) do(ctx context.Context, op, method, target string, body io.Reader, contentType string) (*response, error) {
	start := time.Now()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			c.record(op, "transport", time.Since(start))
			return nil, transportError(op, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, requestError(op, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.record(op, "transport", time.Since(start))
		c.logger.WithFields(logrus.Fields{
			"op":     op,
			"method": method,
			"url":    target,
		}).WithError(err).Warn("API request failed")
		return nil, transportError(op, err)
	}
	defer resp.Body.Close()

	data, tooLarge, err := readRespBody(resp)
	elapsed := time.Since(start)
	if err != nil {
		c.record(op, "transport", elapsed)
		return nil, transportError(op, fmt.Errorf("failed to read response body: %w", err))
	}

	fields := logrus.Fields{
		"op":            op,
		"method":        method,
		"url":           target,
		"status":        resp.StatusCode,
		"response_size": len(data),
		"duration_ms":   elapsed.Milliseconds(),
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := decodeErrorBody(op, resp.StatusCode, data)
		c.record(op, outcomeFor(apiErr), elapsed)
		c.logger.WithFields(fields).WithField("error", apiErr.Message).Warn("API returned error status")
		return nil, apiErr
	}

	if tooLarge {
		c.record(op, "malformed", elapsed)
		return nil, malformedError(op, resp.StatusCode, fmt.Errorf("response exceeded %d bytes", maxResponseSize))
	}

	c.logger.WithFields(fields).Debug("API request successful")
	return &response{
		status:      resp.StatusCode,
		contentType: resp.Header.Get("Content-Type"),
		body:        data,
		elapsed:     elapsed,
	}, nil
}

// readRespBody reads at most maxResponseSize bytes and reports whether the
// body was longer than that.
func readRespBody(resp *http.Response) ([]byte, bool, error) {
	if resp.ContentLength > maxResponseSize {
		return nil, true, nil
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
	if err != nil {
		return nil, false, err
	}
	if len(data) > maxResponseSize {
		return data[:maxResponseSize], true, nil
	}
	return data, false, nil
}

// decodeEntry reads a single entry. An entry without an identifier is only
// accepted when the caller already knows it (update).
func (c *Client) decodeEntry(op string, resp *response, knownID string) (*models.AnimeEntry, error) {
	var entry models.AnimeEntry
	if err := json.Unmarshal(resp.body, &entry); err != nil {
		c.record(op, "malformed", resp.elapsed)
		return nil, malformedError(op, resp.status, err)
	}
	if entry.ID == "" {
		if knownID == "" {
			c.record(op, "malformed", resp.elapsed)
			return nil, malformedError(op, resp.status, fmt.Errorf("entry has no id"))
		}
		entry.ID = knownID
	}
	c.record(op, "success", resp.elapsed)
	return &entry, nil
}

func outcomeFor(err *Error) string {
	switch err.Kind {
	case ErrValidation:
		return "validation"
	case ErrNotFound:
		return "not_found"
	default:
		return "remote"
	}
}

func (c *Client) record(op, outcome string, d time.Duration) {
	if c.metrics != nil {
		c.metrics.RecordRequest(op, outcome, d)
	}
}
