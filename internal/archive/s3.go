// Package archive writes aged terminal events and jobs to S3 as
// indented JSON objects, one per day-bucket, for the cleanup CLI's
// --task=archive target (SPEC_FULL §4.12, grounded on the teacher's
// internal/storage/aws.go SaveToS3).
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Archiver writes archive objects to one S3 bucket.
type Archiver struct {
	client *s3.Client
	bucket string
}

// New constructs an Archiver. Empty bucket disables archival entirely —
// callers should check Enabled() before calling Put (spec.md §1
// archival being optional infrastructure, per SPEC_FULL §4.12).
func New(ctx context.Context, bucket, region, profile string) (*Archiver, error) {
	if bucket == "" {
		return &Archiver{}, nil
	}

	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	if profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	return &Archiver{client: s3.NewFromConfig(cfg), bucket: bucket}, nil
}

// Enabled reports whether this Archiver is backed by a real bucket.
func (a *Archiver) Enabled() bool { return a.bucket != "" }

// Put marshals data as indented JSON and writes it to key.
func (a *Archiver) Put(ctx context.Context, key string, data any) error {
	if !a.Enabled() {
		return nil
	}

	body, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling archive payload: %w", err)
	}

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("putting archive object %s: %w", key, err)
	}
	return nil
}
