package detection

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// ObjectPutter is the slice of the MinIO client the mirror needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, bucket, key string, data []byte, contentType string) error
}

type minioPutter struct {
	client *minio.Client
}

func (p *minioPutter) PutObject(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	_, err := p.client.PutObject(ctx, bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	return err
}

// NewMinIOPutter connects and makes sure the bucket exists.
func NewMinIOPutter(ctx context.Context, cfg MinIOConfig) (ObjectPutter, error) {
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("minio credentials not configured")
	}
	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := cli.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
		exists, errExists := cli.BucketExists(ctx, cfg.Bucket)
		if errExists != nil || !exists {
			return nil, fmt.Errorf("create/verify bucket %s: %w", cfg.Bucket, err)
		}
	}
	log.Printf("[Evidence] mirroring to minio %s, bucket=%s", cfg.Endpoint, cfg.Bucket)
	return &minioPutter{client: cli}, nil
}

// MirroredStore saves locally first, then copies both files to a bucket.
// The local file is the record of truth; mirror failures are only logged.
type MirroredStore struct {
	local  EvidenceStore
	bucket string
	putter ObjectPutter
}

func NewMirroredStore(local EvidenceStore, putter ObjectPutter, bucket string) *MirroredStore {
	return &MirroredStore{local: local, bucket: bucket, putter: putter}
}

func (m *MirroredStore) Save(ctx context.Context, rec Record) (string, error) {
	name, err := m.local.Save(ctx, rec)
	if err != nil {
		return "", err
	}

	key := rec.CameraID + "/" + name
	if err := m.putter.PutObject(ctx, m.bucket, key, rec.Image, "image/jpeg"); err != nil {
		log.Printf("[Evidence] mirror of %s failed: %v", key, err)
		return name, nil
	}
	txtKey := strings.TrimSuffix(key, imageExt) + textExt
	if err := m.putter.PutObject(ctx, m.bucket, txtKey, []byte(rec.RawText), "text/plain"); err != nil {
		log.Printf("[Evidence] mirror of %s failed: %v", txtKey, err)
	}
	return name, nil
}
