package attachment

import (
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/google/uuid"

	"github.com/galynx/galynx-server/internal/config"
)

// Presigner produces time-limited URLs for direct-to-storage transfers. The
// server itself never handles attachment bytes.
type Presigner interface {
	PresignUpload(key string, ttl time.Duration) (string, error)
	PresignDownload(key string, ttl time.Duration) (string, error)
	Bucket() string
	Region() string
}

// s3Presigner signs requests against S3 or an S3-compatible endpoint. Only
// the host is signed on uploads; compatible providers can be strict about
// additional signed headers, and the metadata is validated at presign time
// anyway.
type s3Presigner struct {
	client *s3.S3
	bucket string
	region string
}

// NewS3Presigner builds a presigner from the S3 configuration. It returns an
// error when no bucket is configured.
func NewS3Presigner(cfg *config.Config) (Presigner, error) {
	if !cfg.S3Configured() {
		return nil, fmt.Errorf("s3 presigner requires S3_BUCKET")
	}

	awsCfg := aws.NewConfig().
		WithRegion(cfg.S3Region).
		WithS3ForcePathStyle(cfg.S3ForcePathStyle)
	if cfg.S3Endpoint != "" {
		awsCfg = awsCfg.WithEndpoint(cfg.S3Endpoint)
	}
	if cfg.S3AccessKeyID != "" && cfg.S3SecretAccessKey != "" {
		awsCfg = awsCfg.WithCredentials(credentials.NewStaticCredentials(cfg.S3AccessKeyID, cfg.S3SecretAccessKey, ""))
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("create s3 session: %w", err)
	}

	return &s3Presigner{
		client: s3.New(sess),
		bucket: cfg.S3Bucket,
		region: cfg.S3Region,
	}, nil
}

func (p *s3Presigner) PresignUpload(key string, ttl time.Duration) (string, error) {
	req, _ := p.client.PutObjectRequest(&s3.PutObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	})
	url, err := req.Presign(ttl)
	if err != nil {
		return "", fmt.Errorf("presign upload url: %w", err)
	}
	return url, nil
}

func (p *s3Presigner) PresignDownload(key string, ttl time.Duration) (string, error) {
	req, _ := p.client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	})
	url, err := req.Presign(ttl)
	if err != nil {
		return "", fmt.Errorf("presign download url: %w", err)
	}
	return url, nil
}

func (p *s3Presigner) Bucket() string { return p.bucket }
func (p *s3Presigner) Region() string { return p.region }

// Deployments without object storage fall back to stable local URLs so the
// attachment flow stays exercisable end to end.
const (
	localBucket = "galynx-attachments"
	localRegion = "us-east-1"
)

func localUploadURL(uploadID uuid.UUID) string {
	return fmt.Sprintf("https://storage.galynx.local/upload/%s", uploadID)
}

func localDownloadURL(bucket string, attachmentID uuid.UUID, expiresAt int64) string {
	return fmt.Sprintf("https://storage.galynx.local/download/%s/%s?exp=%d", bucket, attachmentID, expiresAt)
}
