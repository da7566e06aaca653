package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws/client"

	"github.com/kiro-usage/usage-reporter/pkg/engagement"
)

const (
	// millisecond resolution keeps refreshes within the same second apart
	nameLayout = "20060102T150405.000Z"
	nameSuffix = ".json"
)

// Store keeps the reports of past refreshes.
type Store interface {
	// Write persists the report and returns where it was written.
	Write(ctx context.Context, report *engagement.Report) (string, error)
	// Read retrieves the report generated at the given time.
	Read(ctx context.Context, generatedAt time.Time) (*engagement.Report, error)
	// List returns the generation times of every stored report, oldest
	// first.
	List(ctx context.Context) ([]time.Time, error)
}

// Name is the object or file name of a report.
func Name(generatedAt time.Time) string {
	return generatedAt.UTC().Format(nameLayout) + nameSuffix
}

// ParseName is the inverse of Name.
func ParseName(name string) (time.Time, bool) {
	base := path.Base(name)
	if !strings.HasSuffix(base, nameSuffix) {
		return time.Time{}, false
	}
	t, err := time.Parse(nameLayout, strings.TrimSuffix(base, nameSuffix))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

var (
	// FileStorePerms are the permissions exported reports are created with.
	FileStorePerms os.FileMode = 0644
	dirPerms       os.FileMode = 0755
)

// NewFileStore creates a store which writes reports to the given directory.
func NewFileStore(dir string) (FileStore, error) {
	dir = filepath.Clean(dir)
	if file, err := os.Stat(dir); err != nil {
		// don't throw error if just doesn't exist
		if !os.IsNotExist(err) {
			return FileStore{}, fmt.Errorf("could not access path '%s': %v", dir, err)
		}
		if err = os.MkdirAll(dir, dirPerms); err != nil {
			return FileStore{}, fmt.Errorf("could not create directory '%s': %v", dir, err)
		}
	} else if !file.IsDir() {
		return FileStore{}, fmt.Errorf("the path '%s' is a file", dir)
	}
	return FileStore{directory: dir}, nil
}

// FileStore writes each report as a JSON file.
type FileStore struct {
	directory string
}

var _ Store = FileStore{}

func (f FileStore) Write(_ context.Context, report *engagement.Report) (string, error) {
	data, err := json.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("could not encode report: %v", err)
	}
	reportPath := filepath.Join(f.directory, Name(report.GeneratedAt))
	if err = ioutil.WriteFile(reportPath, data, FileStorePerms); err != nil {
		return "", fmt.Errorf("failed to write report to '%s': %v", reportPath, err)
	}
	return reportPath, nil
}

func (f FileStore) Read(_ context.Context, generatedAt time.Time) (*engagement.Report, error) {
	reportPath := filepath.Join(f.directory, Name(generatedAt))
	data, err := ioutil.ReadFile(reportPath)
	if err != nil {
		return nil, fmt.Errorf("could not read report '%s': %v", reportPath, err)
	}
	return decode(data, reportPath)
}

func (f FileStore) List(_ context.Context) ([]time.Time, error) {
	entries, err := ioutil.ReadDir(f.directory)
	if err != nil {
		return nil, fmt.Errorf("could not list '%s': %v", f.directory, err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return times(names), nil
}

func decode(data []byte, location string) (*engagement.Report, error) {
	var report engagement.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("could not decode report '%s': %v", location, err)
	}
	return &report, nil
}

func times(names []string) []time.Time {
	var out []time.Time
	for _, name := range names {
		if t, ok := ParseName(name); ok {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// NewStoreFromURL configures a store from a file:// or s3:// URL.
func NewStoreFromURL(in string, p client.ConfigProvider) (Store, error) {
	u, err := url.Parse(in)
	if err != nil {
		return nil, fmt.Errorf("a valid path with scheme (s3:// or file://) must be given: %v", err)
	}

	switch u.Scheme {
	case "file", "":
		store, err := NewFileStore(u.Path)
		if err != nil {
			return nil, fmt.Errorf("store for path '%v' could not be created: %v", u.Path, err)
		}
		return store, nil
	case "s3":
		if u.Host == "" {
			return nil, fmt.Errorf("an s3 export URL must name a bucket: s3://<bucket>[/<prefix>]")
		}
		return NewS3Store(p, u.Host, strings.TrimPrefix(u.Path, "/")), nil
	default:
		return nil, fmt.Errorf("unknown scheme '%s' given, please provide either s3:// or file://", u.Scheme)
	}
}
