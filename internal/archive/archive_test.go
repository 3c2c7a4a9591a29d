package archive

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/eep-importer/internal/domain"
	"github.com/ignite/eep-importer/internal/importer"
)

type putCall struct {
	bucket, key, contentType string
	body                     []byte
}

type fakeS3 struct {
	calls []putCall
	err   error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, _ := io.ReadAll(in.Body)
	f.calls = append(f.calls, putCall{
		bucket:      aws.ToString(in.Bucket),
		key:         aws.ToString(in.Key),
		contentType: aws.ToString(in.ContentType),
		body:        body,
	})
	return &s3.PutObjectOutput{}, nil
}

func testSummary() importer.Summary {
	return importer.Summary{
		SessionID:   "6f1c0d2e",
		FileName:    "Term2 Roster.XLSX",
		ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		Source:      []byte("PK\x03\x04"),
		Created:     2,
		Updated:     1,
		Result: domain.ImportResult{
			CreatedCount: 1,
			UpdatedCount: 1,
			SkippedCount: 1,
			Errors:       []string{"EEP-9: Student ID already exists"},
		},
		CompletedAt: time.Date(2026, 3, 14, 22, 30, 0, 0, time.FixedZone("EAT", 3*3600)),
	}
}

func TestStore_WritesSourceAndSummary(t *testing.T) {
	fake := &fakeS3{}
	a := NewWithClient(fake, "eep-imports", "/imports/")

	require.NoError(t, a.Store(context.Background(), testSummary()))
	require.Len(t, fake.calls, 2)

	src := fake.calls[0]
	assert.Equal(t, "eep-imports", src.bucket)
	assert.Equal(t, "imports/2026/03/14/6f1c0d2e/source.xlsx", src.key)
	assert.Equal(t, "PK\x03\x04", string(src.body))

	sum := fake.calls[1]
	assert.Equal(t, "imports/2026/03/14/6f1c0d2e/summary.json", sum.key)
	assert.Equal(t, "application/json", sum.contentType)

	var doc summaryDoc
	require.NoError(t, json.Unmarshal(sum.body, &doc))
	assert.Equal(t, src.key, doc.SourceKey)
	assert.Equal(t, 2, doc.Requested.Create)
	assert.Equal(t, 1, doc.SkippedCount)
	assert.Equal(t, []string{"EEP-9: Student ID already exists"}, doc.Errors)
}

func TestStore_NoSource(t *testing.T) {
	fake := &fakeS3{}
	s := testSummary()
	s.Source = nil
	s.Result.Errors = nil

	require.NoError(t, NewWithClient(fake, "b", "").Store(context.Background(), s))
	require.Len(t, fake.calls, 1)
	assert.Equal(t, "2026/03/14/6f1c0d2e/summary.json", fake.calls[0].key)
	assert.Contains(t, string(fake.calls[0].body), `"errors": []`)
}

func TestStore_PutError(t *testing.T) {
	fake := &fakeS3{err: errors.New("AccessDenied")}
	err := NewWithClient(fake, "eep-imports", "imports").Store(context.Background(), testSummary())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "S3 PutObject eep-imports/imports/2026/03/14/6f1c0d2e/source.xlsx")
	assert.Contains(t, err.Error(), "AccessDenied")
}
