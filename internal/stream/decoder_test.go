package stream

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, ctx context.Context, r io.Reader) ([]string, error) {
	t.Helper()
	var got []string
	err := Decode(ctx, r, func(p string) { got = append(got, p) })
	return got, err
}

func TestDecode(t *testing.T) {
	ctx := context.Background()

	t.Run("emits payloads in order and stops at DONE", func(t *testing.T) {
		body := "data: one\ndata: two\ndata: [DONE]\ndata: after\n"

		got, err := collect(t, ctx, strings.NewReader(body))
		require.NoError(t, err)
		assert.Equal(t, []string{"one", "two"}, got)
	})

	t.Run("clean close without DONE is not an error", func(t *testing.T) {
		got, err := collect(t, ctx, strings.NewReader("data: only\n"))
		require.NoError(t, err)
		assert.Equal(t, []string{"only"}, got)
	})

	t.Run("skips empty payloads and non-prefixed lines", func(t *testing.T) {
		body := strings.Join([]string{
			"data: keep",
			"data: ", // empty payload
			"",
			": comment",
			"event: chunk", // no data prefix
			"data: also",
		}, "\n") + "\n"

		got, err := collect(t, ctx, strings.NewReader(body))
		require.NoError(t, err)
		assert.Equal(t, []string{"keep", "also"}, got)
	})

	t.Run("handles CRLF line endings", func(t *testing.T) {
		got, err := collect(t, ctx, strings.NewReader("data: crlf\r\ndata: [DONE]\r\n"))
		require.NoError(t, err)
		assert.Equal(t, []string{"crlf"}, got)
	})

	t.Run("multi-byte code points survive one-byte reads", func(t *testing.T) {
		// OneByteReader forces every rune to be split across reads; the
		// line buffer must reassemble them without corruption.
		body := "data: 世界 🛒 café\ndata: [DONE]\n"

		got, err := collect(t, ctx, iotest.OneByteReader(strings.NewReader(body)))
		require.NoError(t, err)
		assert.Equal(t, []string{"世界 🛒 café"}, got)
	})

	t.Run("concatenation is boundary independent", func(t *testing.T) {
		chunks := []string{"Hi", " there", "!", " 你好"}
		var body strings.Builder
		for _, c := range chunks {
			body.WriteString(framePrefix + c + "\n")
		}
		body.WriteString("data: [DONE]\n")

		for _, r := range []io.Reader{
			strings.NewReader(body.String()),
			iotest.OneByteReader(strings.NewReader(body.String())),
			iotest.HalfReader(strings.NewReader(body.String())),
		} {
			got, err := collect(t, ctx, r)
			require.NoError(t, err)
			assert.Equal(t, strings.Join(chunks, ""), strings.Join(got, ""))
		}
	})

	t.Run("read failure surfaces exactly one error", func(t *testing.T) {
		boom := errors.New("connection reset")
		r := io.MultiReader(strings.NewReader("data: partial\n"), iotest.ErrReader(boom))

		got, err := collect(t, ctx, r)
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, []string{"partial"}, got, "payloads before the failure are still delivered")
	})

	t.Run("cancellation is silent and stops emission", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		pr, pw := io.Pipe()
		seen := make(chan struct{})

		go func() {
			_, _ = pw.Write([]byte("data: first\n"))
			<-seen
			cancel()
			_, _ = pw.Write([]byte("data: second\n"))
			_ = pw.Close()
		}()

		var got []string
		err := Decode(ctx, pr, func(p string) {
			got = append(got, p)
			close(seen)
		})

		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, []string{"first"}, got, "no callbacks after cancellation")
	})
}
