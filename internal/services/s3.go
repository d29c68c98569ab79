package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"toshima-parking-finder/internal/models"
)

// S3API is the subset of *s3.Client used by S3Client
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Object keys
const (
	LatestFacilitiesKey = "facilities/latest.json"
	facilityBackupDir   = "facilities/backups"
	scrapingRunDir      = "scraping-runs"
	rawHTMLDir          = "raw"

	timestampKeyFormat = "2006-01-02T15-04-05Z"
)

// S3Client publishes facility data and scrape artifacts to the data bucket
type S3Client struct {
	client     S3API
	bucketName string
	region     string
}

// S3UploadResult represents the result of an S3 upload operation
type S3UploadResult struct {
	Key         string    `json:"key"`
	ETag        string    `json:"etag"`
	Size        int64     `json:"size"`
	UploadedAt  time.Time `json:"uploaded_at"`
	ContentType string    `json:"content_type"`
	PublicURL   string    `json:"public_url"`
}

// NewS3Client creates a client for bucketName
func NewS3Client(client S3API, bucketName, region string) *S3Client {
	return &S3Client{
		client:     client,
		bucketName: bucketName,
		region:     region,
	}
}

// UploadFacilities uploads the facility data set as JSON under key
func (s *S3Client) UploadFacilities(ctx context.Context, output models.FacilitiesOutput, key string) (*S3UploadResult, error) {
	jsonData, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal facilities to JSON: %w", err)
	}

	return s.upload(ctx, jsonData, key, "application/json; charset=utf-8")
}

// PublishFacilities uploads the data set as latest.json and as a timestamped backup
func (s *S3Client) PublishFacilities(ctx context.Context, output models.FacilitiesOutput, at time.Time) ([]*S3UploadResult, error) {
	latest, err := s.UploadFacilities(ctx, output, LatestFacilitiesKey)
	if err != nil {
		return nil, err
	}

	backupKey := fmt.Sprintf("%s/%s.json", facilityBackupDir, at.UTC().Format(timestampKeyFormat))
	backup, err := s.UploadFacilities(ctx, output, backupKey)
	if err != nil {
		return []*S3UploadResult{latest}, err
	}

	return []*S3UploadResult{latest, backup}, nil
}

// UploadScrapingRun uploads scraping run results to S3
func (s *S3Client) UploadScrapingRun(ctx context.Context, run *models.ScrapingRun) (*S3UploadResult, error) {
	jsonData, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal scraping run to JSON: %w", err)
	}

	key := fmt.Sprintf("%s/%s.json", scrapingRunDir, run.StartedAt.UTC().Format(timestampKeyFormat))
	return s.upload(ctx, jsonData, key, "application/json; charset=utf-8")
}

// ArchiveRawHTML stores the fetched page of a station under the run's prefix
func (s *S3Client) ArchiveRawHTML(ctx context.Context, runID, pageURL string, body []byte) (*S3UploadResult, error) {
	key := RawHTMLKey(runID, pageURL)
	return s.upload(ctx, body, key, "text/html; charset=utf-8")
}

// RawHTMLKey returns raw/<run>/<page file name>
func RawHTMLKey(runID, pageURL string) string {
	name := pageURL
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if name == "" {
		name = "index.html"
	}
	return fmt.Sprintf("%s/%s/%s", rawHTMLDir, runID, name)
}

// DownloadFacilities reads a published data set
func (s *S3Client) DownloadFacilities(ctx context.Context, key string) (*models.FacilitiesOutput, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(strings.TrimPrefix(key, "/")),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download from S3: %w", err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read S3 object: %w", err)
	}

	var output models.FacilitiesOutput
	if err := json.Unmarshal(data, &output); err != nil {
		return nil, fmt.Errorf("failed to unmarshal facilities JSON: %w", err)
	}
	return &output, nil
}

// upload is a helper method to upload data to S3
func (s *S3Client) upload(ctx context.Context, data []byte, key, contentType string) (*S3UploadResult, error) {
	// Ensure key doesn't start with /
	key = strings.TrimPrefix(key, "/")

	uploadInput := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		// Set cache control for frontend consumption
		CacheControl: aws.String("public, max-age=300"),
		Metadata: map[string]string{
			"uploaded-by": "toshima-parking-finder",
			"upload-time": time.Now().UTC().Format(time.RFC3339),
		},
	}

	result, err := s.client.PutObject(ctx, uploadInput)
	if err != nil {
		return nil, fmt.Errorf("failed to upload %s to S3: %w", key, err)
	}

	etag := ""
	if result.ETag != nil {
		etag = strings.Trim(*result.ETag, `"`)
	}

	return &S3UploadResult{
		Key:         key,
		ETag:        etag,
		Size:        int64(len(data)),
		UploadedAt:  time.Now(),
		ContentType: contentType,
		PublicURL:   s.GetPublicURL(key),
	}, nil
}

// GetBucketName returns the configured bucket
func (s *S3Client) GetBucketName() string {
	return s.bucketName
}

// GetPublicURL generates the public URL for an S3 object
func (s *S3Client) GetPublicURL(key string) string {
	key = strings.TrimPrefix(key, "/")
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucketName, s.region, key)
}
