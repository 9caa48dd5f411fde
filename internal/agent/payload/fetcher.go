// Package payload fetches update payloads. Payloads live either in an
// S3-compatible object store (s3:// URLs) or behind plain HTTP; both paths
// stream to disk, report progress, and verify the payload hash before
// handing the file to the install steps.
package payload

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/updrive-io/updrive/internal/updater"
	"github.com/updrive-io/updrive/pkg/log"
)

const payloadFileName = "payload.bin"

// Config describes where payloads come from and where they land.
type Config struct {
	// Endpoint of the S3-compatible store. Empty disables the S3 path;
	// s3:// payload URLs then fail.
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	Region          string

	// Bucket is the default bucket for s3:// URLs without an explicit one.
	Bucket string

	// DestDir is where the fetched payload is written.
	DestDir string
}

// Fetcher implements updater.Downloader.
type Fetcher struct {
	s3      *minio.Client
	bucket  string
	hc      *http.Client
	destDir string
}

var _ updater.Downloader = (*Fetcher)(nil)

// NewFetcher creates a fetcher from the given config.
func NewFetcher(cfg Config) (*Fetcher, error) {
	if cfg.DestDir == "" {
		return nil, fmt.Errorf("payload destination directory is required")
	}

	var s3 *minio.Client
	if cfg.Endpoint != "" {
		client, err := minio.New(cfg.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
			Secure: cfg.UseSSL,
			Region: cfg.Region,
		})
		if err != nil {
			return nil, fmt.Errorf("create object store client: %w", err)
		}
		s3 = client
	}

	return &Fetcher{
		s3:      s3,
		bucket:  cfg.Bucket,
		hc:      &http.Client{},
		destDir: cfg.DestDir,
	}, nil
}

// PayloadPath returns where Download writes the fetched payload.
func (f *Fetcher) PayloadPath() string {
	return filepath.Join(f.destDir, payloadFileName)
}

// Download implements updater.Downloader.
func (f *Fetcher) Download(ctx context.Context, plan *updater.InstallPlan, progress func(received, total uint64)) error {
	body, size, err := f.open(ctx, plan.DownloadURL)
	if err != nil {
		return err
	}
	defer body.Close()

	total := plan.DownloadSize
	if total == 0 {
		total = size
	}

	if err := os.MkdirAll(f.destDir, 0o755); err != nil {
		return fmt.Errorf("create payload directory: %w", err)
	}
	dest, err := os.OpenFile(f.PayloadPath(), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create payload file: %w", err)
	}
	defer dest.Close()

	hasher := sha256.New()
	reader := &progressReader{
		r:        io.TeeReader(body, hasher),
		total:    total,
		progress: progress,
	}

	log.Info("Fetching update payload", "url", plan.DownloadURL, "size", total)
	if _, err := io.Copy(dest, readerWithContext(ctx, reader)); err != nil {
		return fmt.Errorf("fetch payload: %w", err)
	}
	if err := dest.Sync(); err != nil {
		return fmt.Errorf("sync payload file: %w", err)
	}

	if plan.DownloadHash != "" {
		sum := hex.EncodeToString(hasher.Sum(nil))
		if !strings.EqualFold(sum, plan.DownloadHash) {
			return fmt.Errorf("payload hash mismatch: got %s, want %s", sum, plan.DownloadHash)
		}
	}
	return nil
}

// open resolves the payload URL to a byte stream and its size when known.
func (f *Fetcher) open(ctx context.Context, rawURL string) (io.ReadCloser, uint64, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, 0, fmt.Errorf("parse payload url: %w", err)
	}

	if u.Scheme == "s3" {
		return f.openObject(ctx, u)
	}
	return f.openHTTP(ctx, rawURL)
}

func (f *Fetcher) openObject(ctx context.Context, u *url.URL) (io.ReadCloser, uint64, error) {
	if f.s3 == nil {
		return nil, 0, fmt.Errorf("payload url %s requires an object store endpoint", u)
	}

	bucket := u.Host
	if bucket == "" {
		bucket = f.bucket
	}
	key := strings.TrimPrefix(u.Path, "/")

	obj, err := f.s3.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, 0, fmt.Errorf("open object %s/%s: %w", bucket, key, err)
	}
	stat, err := obj.Stat()
	if err != nil {
		obj.Close()
		return nil, 0, fmt.Errorf("stat object %s/%s: %w", bucket, key, err)
	}
	return obj, uint64(stat.Size), nil
}

func (f *Fetcher) openHTTP(ctx context.Context, rawURL string) (io.ReadCloser, uint64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build payload request: %w", err)
	}
	resp, err := f.hc.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request payload: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, 0, fmt.Errorf("payload server returned %s", resp.Status)
	}

	var size uint64
	if resp.ContentLength > 0 {
		size = uint64(resp.ContentLength)
	}
	return resp.Body, size, nil
}

// progressReader reports cumulative received bytes through the pipeline's
// progress callback.
type progressReader struct {
	r        io.Reader
	received uint64
	total    uint64
	progress func(received, total uint64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.received += uint64(n)
		if p.progress != nil {
			p.progress(p.received, p.total)
		}
	}
	return n, err
}

// readerWithContext aborts the copy when the context is cancelled.
func readerWithContext(ctx context.Context, r io.Reader) io.Reader {
	return readerFunc(func(b []byte) (int, error) {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		return r.Read(b)
	})
}

type readerFunc func([]byte) (int, error)

func (f readerFunc) Read(b []byte) (int, error) { return f(b) }
