package services

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"

	"whatsapp-router/config"
	"whatsapp-router/internal/utils"
)

// Uploader stores attachment bytes and returns their public URL.
type Uploader interface {
	Upload(ctx context.Context, data []byte, fileName, contentType string) (string, error)
}

type S3Service struct {
	s3Client s3iface.S3API
	config   *config.S3Config
	now      func() time.Time
}

func NewS3Service(cfg *config.S3Config) (*S3Service, error) {
	awsConfig := &aws.Config{
		Region:           aws.String(cfg.Region),
		S3ForcePathStyle: aws.Bool(cfg.ForcePathStyle),
	}
	if cfg.AccessKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, "")
	}
	if cfg.ServiceURL != "" {
		awsConfig.Endpoint = aws.String(cfg.ServiceURL)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("erro ao criar sessão do S3: %w", err)
	}
	return NewS3ServiceWithClient(s3.New(sess), cfg), nil
}

func NewS3ServiceWithClient(client s3iface.S3API, cfg *config.S3Config) *S3Service {
	return &S3Service{s3Client: client, config: cfg, now: time.Now}
}

// Upload stores data under a unique key derived from fileName.
func (s *S3Service) Upload(ctx context.Context, data []byte, fileName, contentType string) (string, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	key := s.objectKey(fileName, contentType)

	utils.LogInfo("Iniciando upload para S3: %s", key)
	_, err := s.s3Client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.config.BucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	}, request.WithResponseReadTimeout(30*time.Second))
	if err != nil {
		return "", fmt.Errorf("erro ao fazer upload para S3: %w", err)
	}

	fileURL := strings.TrimRight(s.config.BucketURL, "/") + "/" + key
	utils.LogInfo("Upload concluído: %s", fileURL)
	return fileURL, nil
}

func (s *S3Service) objectKey(fileName, contentType string) string {
	ext := path.Ext(fileName)
	if ext == "" {
		ext = "." + utils.GetExtensionFromMime(contentType)
	}
	name := fmt.Sprintf("%d%s", s.now().UnixNano(), ext)
	if s.config.Prefix != "" {
		return strings.Trim(s.config.Prefix, "/") + "/" + name
	}
	return name
}
