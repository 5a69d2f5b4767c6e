package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mercantile/chatkit/internal/artifact"
)

func TestClassify(t *testing.T) {
	t.Run("message chunk", func(t *testing.T) {
		e := Classify(`{"type":"message_chunk","content":"Hi there"}`)
		assert.Equal(t, KindContent, e.Kind)
		assert.Equal(t, "Hi there", e.Content)
	})

	t.Run("artifact", func(t *testing.T) {
		e := Classify(`{"type":"artifact","artifacts":{"type":"product_search_results","data":[{"id":"p1"},{"id":"p2"}]}}`)
		require.Equal(t, KindArtifact, e.Kind)
		assert.Equal(t, artifact.TypeProductSearchResults, e.Artifact.Type)
		assert.Len(t, e.Artifact.Data, 2)
	})

	t.Run("missing or empty artifact payload is unknown", func(t *testing.T) {
		assert.Equal(t, KindUnknown, Classify(`{"type":"artifact"}`).Kind)
		assert.Equal(t, KindUnknown, Classify(`{"type":"artifact","artifacts":null}`).Kind)
		assert.Equal(t, KindUnknown, Classify(`{"type":"artifact","artifacts":{"type":"product_search_results","data":[]}}`).Kind)
	})

	t.Run("explicit completion marker", func(t *testing.T) {
		assert.Equal(t, KindDone, Classify(`{"type":"done"}`).Kind)
	})

	t.Run("plain text falls back to content", func(t *testing.T) {
		e := Classify("Thanks for shopping with us")
		assert.Equal(t, KindContent, e.Kind)
		assert.Equal(t, "Thanks for shopping with us", e.Content)
	})

	t.Run("legacy typed-less JSON with content is content", func(t *testing.T) {
		e := Classify(`{"content":"old format"}`)
		assert.Equal(t, KindContent, e.Kind)
		assert.Equal(t, "old format", e.Content)
	})

	t.Run("valid JSON of the wrong shape is unknown", func(t *testing.T) {
		assert.Equal(t, KindUnknown, Classify(`["not","an","object"]`).Kind)
		assert.Equal(t, KindUnknown, Classify(`"bare string"`).Kind)
		assert.Equal(t, KindUnknown, Classify(`42`).Kind)
	})

	t.Run("unknown type is unknown", func(t *testing.T) {
		assert.Equal(t, KindUnknown, Classify(`{"type":"telemetry","content":"x"}`).Kind)
	})

	t.Run("unrecognized object without content is unknown", func(t *testing.T) {
		assert.Equal(t, KindUnknown, Classify(`{"foo":"bar"}`).Kind)
	})
}
