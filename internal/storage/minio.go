package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var Client *minio.Client
var BucketName string

var ErrNoStorage = errors.New("object storage not available")

// Init connects to MinIO and makes sure the uploads bucket exists
func Init() error {
	endpoint := os.Getenv("MINIO_ENDPOINT")
	accessKey := os.Getenv("MINIO_ACCESS_KEY")
	secretKey := os.Getenv("MINIO_SECRET_KEY")
	if endpoint == "" || accessKey == "" || secretKey == "" {
		return ErrNoStorage
	}

	BucketName = os.Getenv("MINIO_BUCKET")
	if BucketName == "" {
		BucketName = "einvoice-uploads"
	}

	useSSL := os.Getenv("MINIO_USE_SSL") == "true"

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return fmt.Errorf("failed to create MinIO client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, BucketName)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, BucketName, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", BucketName, err)
		}
	}

	Client = client
	return nil
}

// Available reports whether a MinIO client is configured
func Available() bool {
	return Client != nil
}

// RawStore keeps raw upload payloads in the global MinIO bucket
type RawStore struct{}

// NewRawStore returns a store over the global Client
func NewRawStore() *RawStore {
	return &RawStore{}
}

// PutRaw uploads a raw payload.
// Path format: uploads/YYYY/MM/{uploadID}.{format}
func (s *RawStore) PutRaw(ctx context.Context, uploadID, format string, data []byte) (string, error) {
	if Client == nil {
		return "", ErrNoStorage
	}

	now := time.Now()
	objectName := fmt.Sprintf("uploads/%d/%02d/%s.%s",
		now.Year(),
		now.Month(),
		uploadID,
		format,
	)

	_, err := Client.PutObject(ctx, BucketName, objectName, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: ContentType(format),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload payload: %w", err)
	}

	// Return the full path for storage in DB
	return fmt.Sprintf("%s/%s", BucketName, objectName), nil
}

// GetRaw downloads a payload previously stored with PutRaw
func (s *RawStore) GetRaw(ctx context.Context, objectPath string) ([]byte, error) {
	if Client == nil {
		return nil, ErrNoStorage
	}

	obj, err := Client.GetObject(ctx, BucketName, objectName(objectPath), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get payload: %w", err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to read payload: %w", err)
	}
	return data, nil
}

// DeleteRaw removes a stored payload
func (s *RawStore) DeleteRaw(ctx context.Context, objectPath string) error {
	if Client == nil {
		return ErrNoStorage
	}
	return Client.RemoveObject(ctx, BucketName, objectName(objectPath), minio.RemoveObjectOptions{})
}

// objectName strips the bucket prefix if present
func objectName(objectPath string) string {
	return strings.TrimPrefix(objectPath, BucketName+"/")
}

// ContentType maps an upload format to its MIME type
func ContentType(format string) string {
	switch format {
	case "json":
		return "application/json"
	case "csv":
		return "text/csv"
	default:
		return "application/octet-stream"
	}
}
