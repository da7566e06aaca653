package mock

import (
	"bytes"
	"fmt"
	"io/ioutil"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

func NewS3() *S3 {
	return &S3{
		buckets: map[string]map[string][]byte{},
	}
}

// S3 mimics an S3 blob store for testing. PageSize bounds how many keys a
// single list page returns.
type S3 struct {
	sync.RWMutex
	buckets  map[string]map[string][]byte
	PageSize int
	s3iface.S3API
}

func (m *S3) NewBucket(name string) {
	m.Lock()
	defer m.Unlock()
	m.buckets[name] = map[string][]byte{}
}

// Object returns the stored data of an object.
func (m *S3) Object(bucket, key string) ([]byte, bool) {
	m.RLock()
	defer m.RUnlock()
	data, ok := m.buckets[bucket][key]
	return data, ok
}

func (m *S3) PutObject(in *s3.PutObjectInput) (*s3.PutObjectOutput, error) {
	data, err := ioutil.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}

	m.Lock()
	defer m.Unlock()

	bucket, ok := m.buckets[*in.Bucket]
	if !ok {
		bucket = map[string][]byte{}
		m.buckets[*in.Bucket] = bucket
	}

	bucket[*in.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (m *S3) PutObjectWithContext(_ aws.Context, in *s3.PutObjectInput, _ ...request.Option) (*s3.PutObjectOutput, error) {
	return m.PutObject(in)
}

func (m *S3) GetObject(in *s3.GetObjectInput) (*s3.GetObjectOutput, error) {
	m.RLock()
	defer m.RUnlock()

	bucket, ok := m.buckets[*in.Bucket]
	if !ok {
		return nil, fmt.Errorf("bucket '%s' does not exist", *in.Bucket)
	}

	data, ok := bucket[*in.Key]
	if !ok {
		return nil, fmt.Errorf("key '%s' does not exist in bucket '%s'", *in.Key, *in.Bucket)
	}

	return &s3.GetObjectOutput{
		Body: ioutil.NopCloser(bytes.NewBuffer(data)),
	}, nil
}

func (m *S3) GetObjectWithContext(_ aws.Context, in *s3.GetObjectInput, _ ...request.Option) (*s3.GetObjectOutput, error) {
	return m.GetObject(in)
}

func (m *S3) keys(bucketName, prefix string) ([]string, error) {
	m.RLock()
	defer m.RUnlock()

	bucket, ok := m.buckets[bucketName]
	if !ok {
		return nil, fmt.Errorf("bucket '%s' does not exist", bucketName)
	}
	var keys []string
	for key := range bucket {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *S3) ListObjectsV2PagesWithContext(_ aws.Context, in *s3.ListObjectsV2Input, fn func(*s3.ListObjectsV2Output, bool) bool, _ ...request.Option) error {
	keys, err := m.keys(aws.StringValue(in.Bucket), aws.StringValue(in.Prefix))
	if err != nil {
		return err
	}
	size := m.PageSize
	if size <= 0 {
		size = len(keys) + 1
	}
	for start := 0; start == 0 || start < len(keys); start += size {
		end := start + size
		if end > len(keys) {
			end = len(keys)
		}
		var objects []*s3.Object
		for _, key := range keys[start:end] {
			objects = append(objects, &s3.Object{Key: aws.String(key)})
		}
		out := new(s3.ListObjectsV2Output)
		out.SetContents(objects)
		if !fn(out, end == len(keys)) {
			return nil
		}
	}
	return nil
}
