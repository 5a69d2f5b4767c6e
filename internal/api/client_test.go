package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mercantile/chatkit/internal/log"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := New(srv.URL, func() string { return "test-token" }, log.NewNop())
	require.NoError(t, err)
	return client, srv
}

func TestNew(t *testing.T) {
	t.Run("requires base URL", func(t *testing.T) {
		_, err := New("", func() string { return "" }, log.NewNop())
		assert.Error(t, err)
	})

	t.Run("requires token provider", func(t *testing.T) {
		_, err := New("http://localhost", nil, log.NewNop())
		assert.Error(t, err)
	})

	t.Run("trims trailing slash", func(t *testing.T) {
		c, err := New("http://localhost:8080/", func() string { return "" }, nil)
		require.NoError(t, err)
		assert.Equal(t, "http://localhost:8080", c.baseURL)
	})
}

func TestOpenStream(t *testing.T) {
	t.Run("sends bearer token and JSON body", func(t *testing.T) {
		var gotAuth, gotAccept string
		var gotReq SendRequest

		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			gotAccept = r.Header.Get("Accept")
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
			fmt.Fprint(w, "data: [DONE]\n")
		}))

		body, err := client.OpenStream(context.Background(), SendRequest{
			Message: "hello",
			FileMetadata: []FileDescriptor{
				{FileID: "f1", FileName: "receipt.pdf"},
			},
		})
		require.NoError(t, err)
		defer body.Close()

		data, err := io.ReadAll(body)
		require.NoError(t, err)

		assert.Equal(t, "Bearer test-token", gotAuth)
		assert.Equal(t, "text/event-stream", gotAccept)
		assert.Equal(t, "hello", gotReq.Message)
		require.Len(t, gotReq.FileMetadata, 1)
		assert.Equal(t, "f1", gotReq.FileMetadata[0].FileID)
		assert.Equal(t, "data: [DONE]\n", string(data))
	})

	t.Run("non-success status surfaces one error with body", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "quota exceeded", http.StatusTooManyRequests)
		}))

		_, err := client.OpenStream(context.Background(), SendRequest{Message: "hi"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 429")
		assert.Contains(t, err.Error(), "quota exceeded")
	})

	t.Run("canceled context aborts the call", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-r.Context().Done()
		}))

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := client.OpenStream(ctx, SendRequest{Message: "hi"})
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestUploadFile(t *testing.T) {
	t.Run("multipart round trip", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, r.ParseMultipartForm(1<<20))

			file, header, err := r.FormFile("file")
			require.NoError(t, err)
			defer file.Close()

			content, err := io.ReadAll(file)
			require.NoError(t, err)
			assert.Equal(t, "order history csv", string(content))
			assert.Equal(t, "orders.csv", header.Filename)
			assert.Equal(t, "text/csv", header.Header.Get("Content-Type"))

			json.NewEncoder(w).Encode(FileDescriptor{
				FileID:       "file-123",
				FileName:     header.Filename,
				FileType:     "text/csv",
				FileSize:     int64(len(content)),
				StorageURL:   "https://cdn.shop.example/file-123",
				ProviderName: "s3",
			})
		}))

		content := "order history csv"
		var reported []int
		desc, err := client.UploadFile(context.Background(), "orders.csv", "text/csv",
			int64(len(content)), strings.NewReader(content), func(pct int) {
				reported = append(reported, pct)
			})
		require.NoError(t, err)

		assert.Equal(t, "file-123", desc.FileID)
		assert.Equal(t, "orders.csv", desc.FileName)
		assert.Equal(t, int64(len(content)), desc.FileSize)

		// Progress must be monotonically non-decreasing and end at 100.
		require.NotEmpty(t, reported)
		for i := 1; i < len(reported); i++ {
			assert.GreaterOrEqual(t, reported[i], reported[i-1])
		}
		assert.Equal(t, 100, reported[len(reported)-1])
	})

	t.Run("server failure returns error", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.Copy(io.Discard, r.Body)
			http.Error(w, "file too large", http.StatusRequestEntityTooLarge)
		}))

		_, err := client.UploadFile(context.Background(), "big.bin", "", 4,
			strings.NewReader("data"), nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 413")
	})
}

func TestFetchHistory(t *testing.T) {
	t.Run("passes pagination params", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "3", r.URL.Query().Get("page"))
			assert.Equal(t, "20", r.URL.Query().Get("page_size"))
			assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

			json.NewEncoder(w).Encode(HistoryPage{
				Page:     3,
				PageSize: 20,
				Items: []HistoryMessage{
					{ID: "m1", Role: "user", Content: "older question"},
					{ID: "m2", Role: "assistant", Content: "older answer"},
				},
				HasMore: true,
			})
		}))

		page, err := client.FetchHistory(context.Background(), 3, 20)
		require.NoError(t, err)

		assert.Equal(t, 3, page.Page)
		assert.True(t, page.HasMore)
		require.Len(t, page.Items, 2)
		assert.Equal(t, "m1", page.Items[0].ID)
	})

	t.Run("error status", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
		}))

		_, err := client.FetchHistory(context.Background(), 1, 20)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 401")
	})
}

func TestProgressReader(t *testing.T) {
	t.Run("unknown size reports 100 once", func(t *testing.T) {
		var reported []int
		pr := &progressReader{r: strings.NewReader("abc"), total: 0, report: func(p int) {
			reported = append(reported, p)
		}}

		_, err := io.Copy(io.Discard, pr)
		require.NoError(t, err)
		assert.Equal(t, []int{100}, reported)
	})

	t.Run("over-read clamps at 100", func(t *testing.T) {
		var last int
		pr := &progressReader{r: strings.NewReader("abcdef"), total: 3, report: func(p int) {
			last = p
		}}

		_, err := io.Copy(io.Discard, pr)
		require.NoError(t, err)
		assert.Equal(t, 100, last)
	})
}
