package aws

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/client"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"

	"github.com/kiro-usage/usage-reporter/pkg/usage"
)

const (
	// CSVSuffix is the extension of the user activity report objects.
	CSVSuffix = ".csv"

	// maxS3Keys is the maximum amount of keys to be returned by a single S3
	// list objects API response
	maxS3Keys = 200
)

// CSVObjectRetriever reads the raw user activity report CSVs that the
// product delivers to S3.
type CSVObjectRetriever interface {
	RetrieveRows(ctx context.Context) ([]usage.Row, error)
}

type csvObjectRetriever struct {
	s3API          s3iface.S3API
	bucket, prefix string
}

func NewCSVObjectRetriever(p client.ConfigProvider, bucket, prefix string) CSVObjectRetriever {
	return newCSVObjectRetriever(s3.New(p), bucket, prefix)
}

func newCSVObjectRetriever(api s3iface.S3API, bucket, prefix string) *csvObjectRetriever {
	return &csvObjectRetriever{
		s3API:  api,
		bucket: bucket,
		prefix: prefix,
	}
}

// RetrieveRows downloads every CSV object under the prefix, in key order,
// and returns their rows concatenated.
func (r *csvObjectRetriever) RetrieveRows(ctx context.Context) ([]usage.Row, error) {
	prefix := r.prefix
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	var keys []string
	err := r.s3API.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(r.bucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int64(maxS3Keys),
	}, func(out *s3.ListObjectsV2Output, lastPage bool) bool {
		keys = append(keys, filterObjects(out.Contents)...)
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("could not list usage reports in 's3://%s/%s': %v", r.bucket, prefix, err)
	}
	sort.Strings(keys)

	var rows []usage.Row
	for _, key := range keys {
		objRows, err := r.retrieveObject(ctx, key)
		if err != nil {
			return nil, err
		}
		rows = append(rows, objRows...)
	}
	return rows, nil
}

func (r *csvObjectRetriever) retrieveObject(ctx context.Context, key string) ([]usage.Row, error) {
	obj, err := r.s3API.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve 's3://%s/%s': %v", r.bucket, key, err)
	}
	defer obj.Body.Close()

	rows, err := usage.ReadCSV(obj.Body)
	if err != nil {
		return nil, fmt.Errorf("could not read usage report 's3://%s/%s': %v", r.bucket, key, err)
	}
	return rows, nil
}

// filterObjects keeps CSV objects and skips folder markers and anything
// Athena wrote next to them (query results, metadata).
func filterObjects(objects []*s3.Object) []string {
	var keys []string
	for _, obj := range objects {
		key := aws.StringValue(obj.Key)
		if !strings.EqualFold(path.Ext(key), CSVSuffix) {
			continue
		}
		keys = append(keys, key)
	}
	return keys
}
