// Package media turns stored avatar and portfolio paths into URLs a browser
// can load from the file-storage service.
package media

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"jobhub/internal/errors"
)

type Resolver interface {
	Resolve(ctx context.Context, path string) (string, error)
}

func isAbsolute(path string) bool {
	return strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://")
}

// Static joins relative paths onto a public base URL. With an empty base it
// returns paths unchanged.
type Static struct {
	BaseURL string
}

func (s Static) Resolve(ctx context.Context, path string) (string, error) {
	if path == "" || isAbsolute(path) || s.BaseURL == "" {
		return path, nil
	}
	return strings.TrimRight(s.BaseURL, "/") + "/" + strings.TrimLeft(path, "/"), nil
}

// Presigner signs time-limited GET URLs for objects in a private bucket.
type Presigner struct {
	client *minio.Client
	bucket string
	expiry time.Duration
}

type PresignerConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
	Expiry    time.Duration
}

// NewPresigner builds the minio client. Signing is local; the region is set
// so no bucket-location request is made.
func NewPresigner(cfg PresignerConfig) (*Presigner, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create S3 client")
	}
	if cfg.Expiry <= 0 {
		cfg.Expiry = time.Hour
	}
	return &Presigner{client: client, bucket: cfg.Bucket, expiry: cfg.Expiry}, nil
}

func (p *Presigner) Resolve(ctx context.Context, path string) (string, error) {
	if path == "" || isAbsolute(path) {
		return path, nil
	}
	u, err := p.client.PresignedGetObject(ctx, p.bucket, strings.TrimLeft(path, "/"), p.expiry, url.Values{})
	if err != nil {
		return "", errors.Wrapf(err, "presign %s", path)
	}
	return u.String(), nil
}

// ResolveAll resolves each path, keeping the stored path when resolution fails.
func ResolveAll(ctx context.Context, r Resolver, paths []string) ([]string, error) {
	if len(paths) == 0 {
		return paths, nil
	}
	out := make([]string, len(paths))
	var firstErr error
	for i, p := range paths {
		u, err := r.Resolve(ctx, p)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			u = p
		}
		out[i] = u
	}
	return out, firstErr
}
