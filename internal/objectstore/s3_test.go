package objectstore

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtensionFor(t *testing.T) {
	assert.Equal(t, ".jpg", extensionFor("image/jpeg"))
	assert.Equal(t, ".webp", extensionFor("image/webp; q=1"))
	assert.Equal(t, ".png", extensionFor("application/octet-stream"))
	assert.Equal(t, ".png", extensionFor(""))
}

func TestObjectKeyAndPublicURL(t *testing.T) {
	u := &S3Uploader{
		opts: Options{Bucket: "feed", Region: "eu-west-2", KeyPrefix: "FeedSourcing"},
		now:  func() time.Time { return time.UnixMilli(1700000000123) },
	}

	key := u.objectKey("image/jpeg")
	assert.Regexp(t, regexp.MustCompile(`^FeedSourcing/1700000000123-[0-9a-f-]{36}\.jpg$`), key)
	assert.Equal(t, "https://feed.s3.eu-west-2.amazonaws.com/"+key, u.publicURL(key))

	u.opts.PublicBaseURL = "https://cdn.example.com/"
	assert.Equal(t, "https://cdn.example.com/"+key, u.publicURL(key))
}

func TestNewS3Uploader_RequiresBucket(t *testing.T) {
	_, err := NewS3Uploader(context.Background(), Options{Region: "eu-west-2"})
	assert.Error(t, err)
}

func TestUpload_PutsObject(t *testing.T) {
	var mu sync.Mutex
	var gotPath, gotContentType string
	var gotBody []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, http.MethodPut, r.Method)
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	u, err := NewS3Uploader(context.Background(), Options{
		Bucket:          "feed",
		Region:          "eu-west-2",
		AccessKeyID:     "AKIDEXAMPLE",
		SecretAccessKey: "secret",
		Endpoint:        server.URL,
	})
	require.NoError(t, err)

	url, err := u.Upload(context.Background(), []byte("png-bytes"), "image/png")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Regexp(t, `^/feed/FeedSourcing/\d+-[0-9a-f-]{36}\.png$`, gotPath)
	assert.Equal(t, "image/png", gotContentType)
	assert.Equal(t, []byte("png-bytes"), gotBody)
	assert.Equal(t, server.URL+gotPath, url)
}

func TestUpload_RejectsEmpty(t *testing.T) {
	u := &S3Uploader{opts: Options{Bucket: "feed"}, now: time.Now}
	_, err := u.Upload(context.Background(), nil, "image/png")
	assert.Error(t, err)
}
