package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"path"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/client"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"

	"github.com/kiro-usage/usage-reporter/pkg/engagement"
)

// NewS3Store returns a Store writing under the given bucket and prefix.
func NewS3Store(p client.ConfigProvider, bucket, prefix string) S3Store {
	return S3Store{
		Bucket: bucket,
		Prefix: prefix,
		s3:     s3.New(p),
	}
}

// S3Store is a implementation of an S3 backed Store.
type S3Store struct {
	Bucket string
	Prefix string
	s3     s3iface.S3API
}

var _ Store = S3Store{}

func (s S3Store) key(generatedAt time.Time) string {
	return path.Join(s.Prefix, Name(generatedAt))
}

func (s S3Store) Write(ctx context.Context, report *engagement.Report) (string, error) {
	data, err := json.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("could not encode report: %v", err)
	}
	key := s.key(report.GeneratedAt)
	_, err = s.s3.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to write report to 's3://%s/%s': %v", s.Bucket, key, err)
	}
	return fmt.Sprintf("s3://%s/%s", s.Bucket, key), nil
}

func (s S3Store) Read(ctx context.Context, generatedAt time.Time) (*engagement.Report, error) {
	key := s.key(generatedAt)
	out, err := s.s3.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve 's3://%s/%s': %v", s.Bucket, key, err)
	}
	defer out.Body.Close()

	data, err := ioutil.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read body from S3 response for 's3://%s/%s': %v", s.Bucket, key, err)
	}
	return decode(data, fmt.Sprintf("s3://%s/%s", s.Bucket, key))
}

func (s S3Store) List(ctx context.Context) ([]time.Time, error) {
	prefix := s.Prefix
	if prefix != "" {
		prefix = path.Clean(prefix) + "/"
	}
	var names []string
	err := s.s3.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.Bucket),
		Prefix: aws.String(prefix),
	}, func(out *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range out.Contents {
			names = append(names, aws.StringValue(obj.Key))
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list S3 for 's3://%s/%s': %v", s.Bucket, prefix, err)
	}
	return times(names), nil
}
