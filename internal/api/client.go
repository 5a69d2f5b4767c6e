// Package api provides the HTTP client for the storefront assistant backend.
//
// The client covers three endpoints: the streaming send call (SSE body), the
// single-file multipart upload, and the paginated history fetch. All calls
// attach the current bearer token and honor context cancellation.
package api

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

	"github.com/mercantile/chatkit/internal/log"
)

// Endpoint paths relative to the base URL.
const (
	streamPath  = "/api/assistant/stream"
	uploadPath  = "/api/files/upload"
	historyPath = "/api/assistant/history"
)

// maxErrorBody bounds how much of an error response body is read into an
// error message.
const maxErrorBody = 4 << 10

// TokenProvider returns the current bearer token. It is called per request so
// a refreshed token is picked up without rebuilding the client.
type TokenProvider func() string

// Client is the HTTP client for the assistant backend.
type Client struct {
	baseURL    string
	token      TokenProvider
	httpClient *http.Client
	logger     log.Logger
}

// New creates a new Client.
//
// Parameters:
//   - baseURL: backend base URL without trailing slash
//   - token: bearer token provider (required)
//   - logger: logger for debugging (nil = discard)
func New(baseURL string, token TokenProvider, logger log.Logger) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("api.New: base URL is required")
	}
	if token == nil {
		return nil, fmt.Errorf("api.New: token provider is required")
	}
	if logger == nil {
		logger = log.NewNop()
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{}, // No client timeout: streams are ended by cancellation
		logger:     logger,
	}, nil
}

// OpenStream issues the streaming send call and returns the response body.
//
// The body is a stream of "data: <payload>" framed events terminated by a
// [DONE] payload or transport close. The caller owns the returned
// io.ReadCloser and must close it. Canceling ctx aborts the in-flight read.
func (c *Client) OpenStream(ctx context.Context, sendReq SendRequest) (io.ReadCloser, error) {
	body, err := json.Marshal(sendReq)
	if err != nil {
		return nil, fmt.Errorf("marshal send request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+streamPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create stream request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stream request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, c.statusError(resp)
	}

	c.logger.Debug("stream opened", "message_len", len(sendReq.Message), "attachments", len(sendReq.FileMetadata))
	return resp.Body, nil
}

// UploadFile uploads a single file as a multipart form and returns its
// descriptor. Even when several files are attached to a message, each one is
// submitted through its own UploadFile call.
//
// The progress callback (optional) receives percentages in [0, 100] based on
// bytes consumed from r relative to size; values are monotonically
// non-decreasing.
func (c *Client) UploadFile(ctx context.Context, fileName, contentType string, size int64, r io.Reader, progress func(int)) (FileDescriptor, error) {
	if progress == nil {
		progress = func(int) {}
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	// Write the multipart body from a goroutine so the upload streams instead
	// of buffering the whole file. Errors are propagated through the pipe.
	go func() {
		part, err := createFilePart(mw, fileName, contentType)
		if err != nil {
			pw.CloseWithError(fmt.Errorf("create form file: %w", err))
			return
		}
		if _, err := io.Copy(part, &progressReader{r: r, total: size, report: progress}); err != nil {
			pw.CloseWithError(fmt.Errorf("copy file content: %w", err))
			return
		}
		if err := mw.Close(); err != nil {
			pw.CloseWithError(fmt.Errorf("finalize multipart body: %w", err))
			return
		}
		pw.Close()
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+uploadPath, pr)
	if err != nil {
		return FileDescriptor{}, fmt.Errorf("create upload request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return FileDescriptor{}, fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return FileDescriptor{}, c.statusError(resp)
	}

	var desc FileDescriptor
	if err := json.NewDecoder(resp.Body).Decode(&desc); err != nil {
		return FileDescriptor{}, fmt.Errorf("decode upload response: %w", err)
	}

	c.logger.Debug("file uploaded", "file_name", fileName, "file_id", desc.FileID, "size", size)
	return desc, nil
}

// FetchHistory retrieves one page of message history.
// Pages are requested in decreasing page-number order by the pager; the
// client itself is stateless.
func (c *Client) FetchHistory(ctx context.Context, page, pageSize int) (HistoryPage, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(pageSize))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+historyPath+"?"+q.Encode(), nil)
	if err != nil {
		return HistoryPage{}, fmt.Errorf("create history request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return HistoryPage{}, fmt.Errorf("history request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return HistoryPage{}, c.statusError(resp)
	}

	var hp HistoryPage
	if err := json.NewDecoder(resp.Body).Decode(&hp); err != nil {
		return HistoryPage{}, fmt.Errorf("decode history response: %w", err)
	}

	return hp, nil
}

// setHeaders attaches the bearer token to a request.
func (c *Client) setHeaders(req *http.Request) {
	if tok := c.token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
}

// statusError builds an error from a non-success response, capturing a
// bounded prefix of the body.
func (c *Client) statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return fmt.Errorf("assistant API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
}

// createFilePart adds the file form field with an explicit content type.
// multipart.Writer.CreateFormFile hardcodes application/octet-stream, so the
// header is built by hand when a content type is known.
func createFilePart(mw *multipart.Writer, fileName, contentType string) (io.Writer, error) {
	if contentType == "" {
		return mw.CreateFormFile("file", fileName)
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, fileName))
	h.Set("Content-Type", contentType)
	return mw.CreatePart(h)
}

// progressReader counts bytes read and reports monotonic percentages.
type progressReader struct {
	r      io.Reader
	total  int64
	read   int64
	last   int
	report func(int)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.read += int64(n)
		pct := 100
		if p.total > 0 {
			pct = int(p.read * 100 / p.total)
			if pct > 100 {
				pct = 100
			}
		}
		if pct > p.last {
			p.last = pct
			p.report(pct)
		}
	}
	return n, err
}
