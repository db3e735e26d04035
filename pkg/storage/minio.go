package storage

import (
	"context"
	"fmt"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// Kind mirrors the message kinds that reference an uploaded file
type Kind string

const (
	KindImage Kind = "image"
	KindFile  Kind = "file"
	KindAudio Kind = "audio"
	KindVoice Kind = "voice"
)

// Storage defines the interface for file storage operations
type Storage interface {
	Upload(ctx context.Context, file multipart.File, header *multipart.FileHeader, kind Kind) (*UploadResult, error)
	GetPublicURL(objectName string) string
}

// UploadResult contains the result of a file upload
type UploadResult struct {
	URL      string
	Key      string // object key in storage
	FileName string
	FileSize int64
	MimeType string
	Kind     Kind
}

// MinIOStorage implements Storage interface using MinIO
type MinIOStorage struct {
	client    *minio.Client
	bucket    string
	endpoint  string
	publicURL string // External URL
	useSSL    bool
}

// Config holds MinIO connection configuration
type Config struct {
	Endpoint  string
	PublicURL string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// NewMinIO creates a new MinIO storage client and makes sure the bucket exists
func NewMinIO(ctx context.Context, cfg Config, log *zap.Logger) (*MinIOStorage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MinIO: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}

	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
		log.Info("created bucket", zap.String("bucket", cfg.Bucket))

		// message attachments are linked directly from clients
		if err := client.SetBucketPolicy(ctx, cfg.Bucket, publicReadPolicy(cfg.Bucket)); err != nil {
			log.Warn("failed to set bucket policy", zap.String("bucket", cfg.Bucket), zap.Error(err))
		}
	}

	return &MinIOStorage{
		client:    client,
		bucket:    cfg.Bucket,
		endpoint:  cfg.Endpoint,
		publicURL: cfg.PublicURL,
		useSSL:    cfg.UseSSL,
	}, nil
}

func publicReadPolicy(bucket string) string {
	return `{
		"Version": "2012-10-17",
		"Statement": [{
			"Effect": "Allow",
			"Principal": {"AWS": ["*"]},
			"Action": ["s3:GetObject"],
			"Resource": ["arn:aws:s3:::` + bucket + `/*"]
		}]
	}`
}

// Upload stores a multipart file under a folder chosen by kind.
// An empty kind is inferred from the content type.
func (s *MinIOStorage) Upload(ctx context.Context, file multipart.File, header *multipart.FileHeader, kind Kind) (*UploadResult, error) {
	ext := filepath.Ext(header.Filename)

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = detectContentType(ext)
	}
	if kind == "" {
		kind = KindFor(contentType)
	}

	key := objectKey(kind, ext, time.Now().UTC())
	_, err := s.client.PutObject(ctx, s.bucket, key, file, header.Size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload file: %w", err)
	}

	return &UploadResult{
		URL:      s.GetPublicURL(key),
		Key:      key,
		FileName: header.Filename,
		FileSize: header.Size,
		MimeType: contentType,
		Kind:     kind,
	}, nil
}

// GetPublicURL returns the public URL for an object
func (s *MinIOStorage) GetPublicURL(objectName string) string {
	if s.publicURL != "" {
		return fmt.Sprintf("%s/%s/%s", strings.TrimRight(s.publicURL, "/"), s.bucket, objectName)
	}

	scheme := "http"
	if s.useSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, s.endpoint, s.bucket, objectName)
}

// objectKey builds "<folder>/yyyy/mm/dd/<uuid><ext>"
func objectKey(kind Kind, ext string, now time.Time) string {
	return fmt.Sprintf("%s/%s/%s%s", folderFor(kind), now.Format("2006/01/02"), uuid.New().String(), strings.ToLower(ext))
}

func folderFor(kind Kind) string {
	switch kind {
	case KindImage:
		return "images"
	case KindAudio:
		return "audio"
	case KindVoice:
		return "voice"
	default:
		return "files"
	}
}

// KindFor maps a MIME type to the message kind it is sent as
func KindFor(contentType string) Kind {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return KindImage
	case strings.HasPrefix(contentType, "audio/"):
		return KindAudio
	default:
		return KindFile
	}
}

// detectContentType returns MIME type based on file extension
func detectContentType(ext string) string {
	ext = strings.ToLower(ext)
	switch ext {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".mp3":
		return "audio/mpeg"
	case ".m4a":
		return "audio/mp4"
	case ".ogg", ".oga":
		return "audio/ogg"
	case ".wav":
		return "audio/wav"
	case ".weba":
		return "audio/webm"
	case ".pdf":
		return "application/pdf"
	case ".doc", ".docx":
		return "application/msword"
	case ".ppt", ".pptx":
		return "application/vnd.ms-powerpoint"
	case ".zip":
		return "application/zip"
	default:
		return "application/octet-stream"
	}
}
