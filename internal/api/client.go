// Package api is the HTTP client for the document analysis backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xaenox/finbot/internal/models"
	"github.com/xaenox/finbot/internal/session"
)

const (
	defaultRequestTimeout = 30 * time.Second
	defaultUploadTimeout  = 5 * time.Minute
	defaultChatTimeout    = 2 * time.Minute
)

// Timeouts bound each kind of call. A zero value falls back to the default.
type Timeouts struct {
	Request time.Duration
	Upload  time.Duration
	Chat    time.Duration
}

func (t Timeouts) withDefaults() Timeouts {
	if t.Request <= 0 {
		t.Request = defaultRequestTimeout
	}
	if t.Upload <= 0 {
		t.Upload = defaultUploadTimeout
	}
	if t.Chat <= 0 {
		t.Chat = defaultChatTimeout
	}
	return t
}

// Client issues backend requests on behalf of one session identity.
type Client struct {
	baseURL  string
	identity *session.Identity
	http     *http.Client
	timeouts Timeouts
	logger   *zap.Logger
}

func New(baseURL string, identity *session.Identity, httpClient *http.Client, timeouts Timeouts, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		identity: identity,
		http:     httpClient,
		timeouts: timeouts.withDefaults(),
		logger:   logger.With(zap.String("component", "api"), zap.String("profile", identity.Profile())),
	}
}

func (c *Client) Identity() *session.Identity {
	return c.identity
}

func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.doJSON(ctx, http.MethodGet, "/health", nil, &resp, c.timeouts.Request); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UploadMultiple sends files to the backend for analysis under threadID.
func (c *Client) UploadMultiple(ctx context.Context, threadID string, files []models.FileRef) ([]models.AnalysisResult, error) {
	if len(files) == 0 {
		return nil, errors.New("no files to upload")
	}
	body, contentType, err := buildMultipart(threadID, files)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeouts.Upload)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload-multiple", body)
	if err != nil {
		return nil, err
	}
	for key, values := range c.identity.MultipartHeaders() {
		req.Header[key] = values
	}
	req.Header.Set("Content-Type", contentType)

	var resp UploadResponse
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	c.logger.Debug("Upload completed",
		zap.String("thread_id", threadID),
		zap.Int("files", len(files)),
		zap.Int("results", len(resp.Results)))
	return resp.Results, nil
}

func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	var resp ChatResponse
	if err := c.doJSON(ctx, http.MethodPost, "/chat", req, &resp, c.timeouts.Chat); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) ChatMulti(ctx context.Context, req MultiChatRequest) (*ChatResponse, error) {
	var resp ChatResponse
	if err := c.doJSON(ctx, http.MethodPost, "/chat-multi", req, &resp, c.timeouts.Chat); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) ListThreads(ctx context.Context) ([]models.Thread, error) {
	var resp ThreadsResponse
	if err := c.doJSON(ctx, http.MethodGet, "/threads", nil, &resp, c.timeouts.Request); err != nil {
		return nil, err
	}
	return resp.Threads, nil
}

func (c *Client) CreateThread(ctx context.Context) (string, error) {
	var resp CreateThreadResponse
	if err := c.doJSON(ctx, http.MethodPost, "/threads", struct{}{}, &resp, c.timeouts.Request); err != nil {
		return "", err
	}
	if resp.ThreadID == "" {
		return "", errors.New("backend returned an empty thread id")
	}
	return resp.ThreadID, nil
}

func (c *Client) DeleteThread(ctx context.Context, threadID string) error {
	return c.doJSON(ctx, http.MethodDelete, threadPath(threadID, ""), nil, nil, c.timeouts.Request)
}

func (c *Client) ThreadMessages(ctx context.Context, threadID string) ([]models.Message, error) {
	var resp MessagesResponse
	if err := c.doJSON(ctx, http.MethodGet, threadPath(threadID, "/messages"), nil, &resp, c.timeouts.Request); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

func (c *Client) ThreadDocuments(ctx context.Context, threadID string) ([]models.AnalysisResult, error) {
	var resp DocumentsResponse
	if err := c.doJSON(ctx, http.MethodGet, threadPath(threadID, "/documents"), nil, &resp, c.timeouts.Request); err != nil {
		return nil, err
	}
	return resp.Documents, nil
}

func threadPath(threadID, suffix string) string {
	return "/threads/" + url.PathEscape(strings.TrimSpace(threadID)) + suffix
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any, timeout time.Duration) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(buf)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	for key, values := range c.identity.Headers() {
		req.Header[key] = values
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := decodeError(resp)
		c.logger.Debug("Backend returned error",
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
			zap.Error(apiErr))
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func buildMultipart(threadID string, files []models.FileRef) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	for _, file := range files {
		if err := writeFilePart(writer, file); err != nil {
			return nil, "", err
		}
	}
	if threadID != "" {
		if err := writer.WriteField("thread_id", threadID); err != nil {
			return nil, "", err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return &buf, writer.FormDataContentType(), nil
}

func writeFilePart(writer *multipart.Writer, file models.FileRef) error {
	f, err := os.Open(file.Path)
	if err != nil {
		return fmt.Errorf("open %s: %w", file.Name, err)
	}
	defer f.Close()

	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(file.Name)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename="%s"`, quoteEscaper.Replace(file.Name)))
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("read %s: %w", file.Name, err)
	}
	return nil
}
