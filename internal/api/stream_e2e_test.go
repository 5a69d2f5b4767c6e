package api_test

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mercantile/chatkit/internal/api"
	"github.com/mercantile/chatkit/internal/artifact"
	"github.com/mercantile/chatkit/internal/log"
	"github.com/mercantile/chatkit/internal/stream"
	"github.com/mercantile/chatkit/internal/testutil"
)

// Drives a real HTTP round trip through the client and the dispatcher: the
// server trickles frames chunk by chunk, the client reassembles them in order.
func TestStreamEndToEnd(t *testing.T) {
	srv := httptest.NewServer(testutil.StreamHandler(t,
		`{"type":"message_chunk","content":"Hi"}`,
		`{"type":"message_chunk","content":" there"}`,
		`{"type":"message_chunk","content":"!"}`,
		`{"type":"artifact","artifacts":{"type":"product_search_results","data":[{"id":"p1"}]}}`,
	))
	defer srv.Close()

	client, err := api.New(srv.URL, func() string { return "test-token" }, log.NewNop())
	require.NoError(t, err)

	body, err := client.OpenStream(context.Background(), api.SendRequest{Message: "Hello"})
	require.NoError(t, err)
	defer body.Close()

	var (
		content   string
		artifacts []artifact.Artifact
		completes int
	)
	d := stream.NewDispatcher(stream.Handlers{
		OnContent:  func(text string) { content += text },
		OnArtifact: func(a artifact.Artifact) { artifacts = append(artifacts, a) },
		OnComplete: func() { completes++ },
		OnError:    func(err error) { t.Errorf("unexpected stream error: %v", err) },
	}, log.NewNop())
	d.Run(context.Background(), body)

	assert.Equal(t, "Hi there!", content)
	assert.Equal(t, 1, completes)
	require.Len(t, artifacts, 1)
	assert.Equal(t, artifact.TypeProductSearchResults, artifacts[0].Type)
}
