// Package publish uploads a rendered output tree to an S3-compatible bucket.
package publish

import (
	"context"
	"io/fs"
	"mime"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/district-poi/internal/config"
)

// ObjectAPI is the subset of *minio.Client the publisher uses.
type ObjectAPI interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	FPutObject(ctx context.Context, bucketName, objectName, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// NewClient connects to the configured endpoint with static credentials.
func NewClient(cfg config.PublishConfig) (*minio.Client, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "publish: connect %s", cfg.Endpoint)
	}
	return client, nil
}

// Result summarizes an upload.
type Result struct {
	Objects int
	Bytes   int64
	Keys    []string
}

// Publisher mirrors a directory into bucket/prefix.
type Publisher struct {
	api         ObjectAPI
	bucket      string
	prefix      string
	concurrency int
	log         *zap.Logger
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithConcurrency sets the number of parallel uploads.
func WithConcurrency(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// New creates a Publisher.
func New(api ObjectAPI, bucket, prefix string, opts ...Option) *Publisher {
	p := &Publisher{
		api:         api,
		bucket:      bucket,
		prefix:      strings.Trim(prefix, "/"),
		concurrency: 4,
		log:         zap.L().With(zap.String("component", "publish")),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Publish uploads every regular file under dir, creating the bucket when it
// does not exist. Object keys are prefix/relative-path with forward slashes.
func (p *Publisher) Publish(ctx context.Context, dir string) (*Result, error) {
	files, err := collect(dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, eris.Errorf("publish: nothing to upload in %s", dir)
	}

	if err := p.ensureBucket(ctx); err != nil {
		return nil, err
	}

	var (
		mu    sync.Mutex
		res   Result
		bytes atomic.Int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for _, rel := range files {
		g.Go(func() error {
			key := p.key(rel)
			info, err := p.api.FPutObject(gctx, p.bucket, key, filepath.Join(dir, rel), minio.PutObjectOptions{
				ContentType: ContentType(rel),
			})
			if err != nil {
				return eris.Wrapf(err, "publish: upload %s", key)
			}
			bytes.Add(info.Size)
			mu.Lock()
			res.Keys = append(res.Keys, key)
			mu.Unlock()
			p.log.Debug("uploaded", zap.String("key", key), zap.Int64("bytes", info.Size))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res.Objects = len(res.Keys)
	res.Bytes = bytes.Load()
	p.log.Info("publish complete",
		zap.String("bucket", p.bucket),
		zap.String("prefix", p.prefix),
		zap.Int("objects", res.Objects),
		zap.Int64("bytes", res.Bytes),
	)
	return &res, nil
}

func (p *Publisher) ensureBucket(ctx context.Context) error {
	ok, err := p.api.BucketExists(ctx, p.bucket)
	if err != nil {
		return eris.Wrapf(err, "publish: check bucket %s", p.bucket)
	}
	if ok {
		return nil
	}
	if err := p.api.MakeBucket(ctx, p.bucket, minio.MakeBucketOptions{}); err != nil {
		return eris.Wrapf(err, "publish: create bucket %s", p.bucket)
	}
	p.log.Info("bucket created", zap.String("bucket", p.bucket))
	return nil
}

func (p *Publisher) key(rel string) string {
	rel = filepath.ToSlash(rel)
	if p.prefix == "" {
		return rel
	}
	return path.Join(p.prefix, rel)
}

// ContentType guesses the object content type from the file extension.
func ContentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".html":
		return "text/html; charset=utf-8"
	case ".geojson":
		return "application/geo+json"
	case ".csv":
		return "text/csv; charset=utf-8"
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	if t := mime.TypeByExtension(filepath.Ext(name)); t != "" {
		return t
	}
	return "application/octet-stream"
}

// collect returns regular files under dir relative to it, in walk order.
func collect(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "publish: walk %s", dir)
	}
	return files, nil
}
