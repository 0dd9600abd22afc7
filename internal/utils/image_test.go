package utils

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n0000")

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk gone") }

func TestEncodeImage(t *testing.T) {
	t.Run("DeclaredTypeWins", func(t *testing.T) {
		in, err := EncodeImage(bytes.NewReader([]byte("logo")), "image/webp; charset=binary")
		require.NoError(t, err)
		assert.Equal(t, "image/webp", in.MIMEType)
		assert.Equal(t, []byte("logo"), in.Data)
		assert.Equal(t, "bG9nbw==", in.Base64())
	})

	t.Run("SniffsWhenMissing", func(t *testing.T) {
		in, err := EncodeImage(bytes.NewReader(pngHeader), "")
		require.NoError(t, err)
		assert.Equal(t, "image/png", in.MIMEType)
	})

	t.Run("SniffsWhenOctetStream", func(t *testing.T) {
		in, err := EncodeImage(bytes.NewReader(pngHeader), "application/octet-stream")
		require.NoError(t, err)
		assert.Equal(t, "image/png", in.MIMEType)
	})

	t.Run("ReadErrorPropagates", func(t *testing.T) {
		_, err := EncodeImage(failingReader{}, "image/png")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "disk gone")
	})
}

func TestEncodeImageFile(t *testing.T) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="image"; filename="logo.png"`)
	h.Set("Content-Type", "image/png")
	part, err := w.CreatePart(h)
	require.NoError(t, err)
	_, _ = part.Write(pngHeader)
	require.NoError(t, w.Close())

	form, err := multipart.NewReader(&body, w.Boundary()).ReadForm(1 << 20)
	require.NoError(t, err)

	in, err := EncodeImageFile(form.File["image"][0])
	require.NoError(t, err)
	assert.Equal(t, "image/png", in.MIMEType)
	assert.Equal(t, pngHeader, in.Data)
}

func TestParseDataURI(t *testing.T) {
	in, err := ParseDataURI("data:image/png;base64,bG9nbw==")
	require.NoError(t, err)
	assert.Equal(t, "image/png", in.MIMEType)
	assert.Equal(t, []byte("logo"), in.Data)

	_, err = ParseDataURI("https://example.com/a.png")
	assert.ErrorIs(t, err, ErrInvalidDataURI)

	_, err = ParseDataURI("data:image/png,plain")
	assert.ErrorIs(t, err, ErrInvalidDataURI)

	_, err = ParseDataURI("data:image/png;base64,***")
	assert.Error(t, err)
}

func TestLoadImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.png" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "image/gif")
		_, _ = w.Write([]byte("GIF89a"))
	}))
	defer srv.Close()

	ctx := context.Background()

	in, err := LoadImage(ctx, srv.URL+"/photo.gif")
	require.NoError(t, err)
	assert.Equal(t, "image/gif", in.MIMEType)
	assert.Equal(t, []byte("GIF89a"), in.Data)

	_, err = LoadImage(ctx, srv.URL+"/missing.png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status code 404")

	in, err = LoadImage(ctx, "data:image/jpeg;base64,AAEC")
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 1, 2}, in.Data)

	_, err = LoadImage(ctx, "/tmp/file.png")
	assert.Error(t, err)
}

func TestDataURI_RoundTrip(t *testing.T) {
	payload := []byte{0xff, 0xd8, 0xff, 0x00, 0x10}
	uri := DataURI(payload)

	require.True(t, strings.HasPrefix(uri, ResultDataURIPrefix))
	back, err := ParseDataURI(uri)
	require.NoError(t, err)
	assert.Equal(t, payload, back.Data)
	assert.Equal(t, "image/jpeg", back.MIMEType)
}

func TestInferMimeTypeFromURL(t *testing.T) {
	tests := map[string]string{
		"https://x/a.PNG":  "image/png",
		"https://x/a.jpeg": "image/jpeg",
		"https://x/a.gif":  "image/gif",
		"https://x/a.webp": "image/webp",
		"https://x/a":      "image/jpeg",
	}
	for url, want := range tests {
		assert.Equal(t, want, InferMimeTypeFromURL(url), url)
	}
}

func TestGenerateImageKey(t *testing.T) {
	now := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	key := GenerateImageKey(now, "mockup", "image/png")

	assert.True(t, strings.HasPrefix(key, "images/2026-10-17/mockup/"), key)
	assert.True(t, strings.HasSuffix(key, ".png"), key)
	assert.NotEqual(t, key, GenerateImageKey(now, "mockup", "image/png"))
}

func TestTruncateForLog(t *testing.T) {
	assert.Equal(t, "abc", TruncateForLog("abc", 5))
	assert.Equal(t, "ab...", TruncateForLog("abcdefgh", 5))
	assert.Equal(t, "ab", TruncateForLog("abcdefgh", 2))
}
