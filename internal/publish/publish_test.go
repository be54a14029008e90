package publish

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/district-poi/internal/config"
)

type fakeAPI struct {
	mu        sync.Mutex
	exists    bool
	existsErr error
	made      []string
	puts      map[string]minio.PutObjectOptions
	putErr    error
}

func (f *fakeAPI) BucketExists(_ context.Context, _ string) (bool, error) {
	return f.exists, f.existsErr
}

func (f *fakeAPI) MakeBucket(_ context.Context, bucket string, _ minio.MakeBucketOptions) error {
	f.made = append(f.made, bucket)
	return nil
}

func (f *fakeAPI) FPutObject(_ context.Context, bucket, object, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	if f.putErr != nil {
		return minio.UploadInfo{}, f.putErr
	}
	st, err := os.Stat(filePath)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.puts == nil {
		f.puts = make(map[string]minio.PutObjectOptions)
	}
	f.puts[object] = opts
	return minio.UploadInfo{Bucket: bucket, Key: object, Size: st.Size()}, nil
}

func writeTree(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"maps/categories.html":          "<html></html>",
		"exports/cluster_hulls.geojson": `{"type":"FeatureCollection","features":[]}`,
		"reports/cluster_counts.csv":    "cluster,count\n",
	}
	for rel, body := range files {
		p := filepath.Join(dir, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
	return dir
}

func TestPublish(t *testing.T) {
	dir := writeTree(t)
	api := &fakeAPI{exists: true}

	res, err := New(api, "maps", "/district-poi/", WithConcurrency(2)).Publish(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Objects)
	assert.Equal(t, int64(13+42+14), res.Bytes)
	sort.Strings(res.Keys)
	assert.Equal(t, []string{
		"district-poi/exports/cluster_hulls.geojson",
		"district-poi/maps/categories.html",
		"district-poi/reports/cluster_counts.csv",
	}, res.Keys)
	assert.Empty(t, api.made)
	assert.Equal(t, "text/html; charset=utf-8", api.puts["district-poi/maps/categories.html"].ContentType)
	assert.Equal(t, "application/geo+json", api.puts["district-poi/exports/cluster_hulls.geojson"].ContentType)
}

func TestPublish_CreatesBucket(t *testing.T) {
	api := &fakeAPI{}

	res, err := New(api, "maps", "").Publish(context.Background(), writeTree(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"maps"}, api.made)
	assert.Contains(t, res.Keys, "maps/categories.html")
}

func TestPublish_EmptyDir(t *testing.T) {
	_, err := New(&fakeAPI{exists: true}, "maps", "").Publish(context.Background(), t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nothing to upload")
}

func TestPublish_MissingDir(t *testing.T) {
	_, err := New(&fakeAPI{exists: true}, "maps", "").Publish(context.Background(), filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish: walk")
}

func TestPublish_BucketCheckFails(t *testing.T) {
	api := &fakeAPI{existsErr: errors.New("access denied")}

	_, err := New(api, "maps", "").Publish(context.Background(), writeTree(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "check bucket maps")
}

func TestPublish_UploadFails(t *testing.T) {
	api := &fakeAPI{exists: true, putErr: errors.New("connection reset")}

	_, err := New(api, "maps", "").Publish(context.Background(), writeTree(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish: upload")
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "text/csv; charset=utf-8", ContentType("a/b.CSV"))
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", ContentType("summary.xlsx"))
	assert.Equal(t, "application/octet-stream", ContentType("noext"))
}

func TestNewClient(t *testing.T) {
	c, err := NewClient(config.PublishConfig{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "s"})
	require.NoError(t, err)
	assert.Equal(t, "localhost:9000", c.EndpointURL().Host)

	_, err = NewClient(config.PublishConfig{Endpoint: "http://bad host"})
	assert.Error(t, err)
}
