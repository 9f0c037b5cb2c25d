// internal/chat/storage.go

package chat

import (
    "bytes"
    "context"
    "fmt"
    "os"
    "path"
    "path/filepath"
    "strings"
    "time"

    "github.com/aws/aws-sdk-go/aws"
    "github.com/aws/aws-sdk-go/aws/session"
    "github.com/aws/aws-sdk-go/service/s3"
)

// StorageService stores attachment blobs outside the message table and
// returns a URL clients fetch them from.
type StorageService interface {
    Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
    Delete(ctx context.Context, mediaURL string) error
}

var allowedAttachmentTypes = []string{
    "image/jpeg", "image/png", "image/gif", "image/webp",
    "video/mp4", "video/quicktime", "video/webm",
    "audio/mpeg", "audio/wav", "audio/ogg",
    "application/pdf", "application/zip",
    "application/octet-stream",
}

func isAllowedType(contentType string) bool {
    for _, t := range allowedAttachmentTypes {
        if strings.HasPrefix(contentType, t) {
            return true
        }
    }
    return false
}

type s3Storage struct {
    client      *s3.S3
    bucketName  string
    cdnURL      string
    maxFileSize int64
}

// NewS3Storage creates an S3-backed attachment store. Uploaded objects are
// addressed as <cdnURL>/<key>.
func NewS3Storage(awsSession *session.Session, bucketName, cdnURL string, maxFileSize int64) StorageService {
    return &s3Storage{
        client:      s3.New(awsSession),
        bucketName:  bucketName,
        cdnURL:      strings.TrimSuffix(cdnURL, "/"),
        maxFileSize: maxFileSize,
    }
}

func (s *s3Storage) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
    if !isAllowedType(contentType) {
        return "", fmt.Errorf("file type %s not allowed", contentType)
    }
    if int64(len(data)) > s.maxFileSize {
        return "", fmt.Errorf("file size %d exceeds maximum allowed size %d", len(data), s.maxFileSize)
    }

    _, err := s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
        Bucket:        aws.String(s.bucketName),
        Key:           aws.String(key),
        Body:          bytes.NewReader(data),
        ContentType:   aws.String(contentType),
        ContentLength: aws.Int64(int64(len(data))),
        ACL:           aws.String("public-read"),
        Metadata: map[string]*string{
            "uploaded-at": aws.String(time.Now().Format(time.RFC3339)),
        },
    })
    if err != nil {
        return "", fmt.Errorf("failed to upload to S3: %v", err)
    }

    return fmt.Sprintf("%s/%s", s.cdnURL, key), nil
}

func (s *s3Storage) Delete(ctx context.Context, mediaURL string) error {
    key := strings.TrimPrefix(mediaURL, s.cdnURL+"/")

    _, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
        Bucket: aws.String(s.bucketName),
        Key:    aws.String(key),
    })
    return err
}

type localStorage struct {
    dir         string
    baseURL     string
    maxFileSize int64
}

// NewLocalStorage writes attachments to a directory on disk. Meant for
// development environments where S3 is not configured.
func NewLocalStorage(dir, baseURL string, maxFileSize int64) (StorageService, error) {
    if err := os.MkdirAll(dir, 0o755); err != nil {
        return nil, fmt.Errorf("create upload dir: %w", err)
    }
    return &localStorage{
        dir:         dir,
        baseURL:     strings.TrimSuffix(baseURL, "/"),
        maxFileSize: maxFileSize,
    }, nil
}

func (l *localStorage) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
    if !isAllowedType(contentType) {
        return "", fmt.Errorf("file type %s not allowed", contentType)
    }
    if int64(len(data)) > l.maxFileSize {
        return "", fmt.Errorf("file size %d exceeds maximum allowed size %d", len(data), l.maxFileSize)
    }

    // Flatten the key so uploads cannot escape the directory
    name := strings.ReplaceAll(path.Clean(key), "/", "_")
    dst := filepath.Join(l.dir, name)
    if err := os.WriteFile(dst, data, 0o644); err != nil {
        return "", fmt.Errorf("write attachment: %w", err)
    }

    return fmt.Sprintf("%s/uploads/%s", l.baseURL, name), nil
}

func (l *localStorage) Delete(ctx context.Context, mediaURL string) error {
    name := path.Base(mediaURL)
    return os.Remove(filepath.Join(l.dir, name))
}
