// Package archive keeps a copy of every completed import in S3: the source
// spreadsheet as uploaded plus a JSON summary of what the backend accepted.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appconfig "github.com/ignite/eep-importer/internal/config"
	"github.com/ignite/eep-importer/internal/importer"
	"github.com/ignite/eep-importer/internal/pkg/logger"
)

// ObjectPutter is the subset of the S3 client the archive uses.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archive writes completed imports under {prefix}/{yyyy}/{mm}/{dd}/{session}/.
type S3Archive struct {
	client ObjectPutter
	bucket string
	prefix string
}

// summaryDoc is the JSON stored next to the source file.
type summaryDoc struct {
	SessionID    string    `json:"session_id"`
	FileName     string    `json:"file_name"`
	ContentType  string    `json:"content_type"`
	SourceKey    string    `json:"source_key"`
	Requested    requested `json:"requested"`
	CreatedCount int       `json:"created_count"`
	UpdatedCount int       `json:"updated_count"`
	SkippedCount int       `json:"skipped_count"`
	Errors       []string  `json:"errors"`
	CompletedAt  time.Time `json:"completed_at"`
}

type requested struct {
	Create int `json:"create"`
	Update int `json:"update"`
}

// NewS3Client loads AWS config for the archive bucket. Static keys take
// precedence over the shared profile; with neither the default credential
// chain is used.
func NewS3Client(ctx context.Context, cfg appconfig.ArchiveConfig) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.AWSRegion)}
	switch {
	case cfg.AccessKey != "" && cfg.SecretKey != "":
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	case cfg.GetAWSProfile() != "":
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.GetAWSProfile()))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config for import archive: %w", err)
	}
	return s3.NewFromConfig(awsCfg), nil
}

// NewWithClient builds an archive on an existing S3 client.
func NewWithClient(client ObjectPutter, bucket, prefix string) *S3Archive {
	return &S3Archive{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}
}

func (a *S3Archive) dir(s importer.Summary) string {
	return path.Join(a.prefix, s.CompletedAt.UTC().Format("2006/01/02"), s.SessionID)
}

// Store uploads the source file (when present) and the summary document.
func (a *S3Archive) Store(ctx context.Context, s importer.Summary) error {
	dir := a.dir(s)
	var sourceKey string
	if len(s.Source) > 0 {
		sourceKey = path.Join(dir, "source"+strings.ToLower(filepath.Ext(s.FileName)))
		contentType := s.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		if err := a.put(ctx, sourceKey, contentType, s.Source); err != nil {
			return err
		}
	}

	doc := summaryDoc{
		SessionID:    s.SessionID,
		FileName:     s.FileName,
		ContentType:  s.ContentType,
		SourceKey:    sourceKey,
		Requested:    requested{Create: s.Created, Update: s.Updated},
		CreatedCount: s.Result.CreatedCount,
		UpdatedCount: s.Result.UpdatedCount,
		SkippedCount: s.Result.SkippedCount,
		Errors:       s.Result.Errors,
		CompletedAt:  s.CompletedAt.UTC(),
	}
	if doc.Errors == nil {
		doc.Errors = []string{}
	}
	body, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling import summary: %w", err)
	}
	if err := a.put(ctx, path.Join(dir, "summary.json"), "application/json", body); err != nil {
		return err
	}

	logger.Info("import archived",
		"component", "archive",
		"session_id", s.SessionID,
		"bucket", a.bucket,
		"prefix", dir,
		"source_bytes", len(s.Source))
	return nil
}

func (a *S3Archive) put(ctx context.Context, key, contentType string, body []byte) error {
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("S3 PutObject %s/%s: %w", a.bucket, key, err)
	}
	return nil
}
