package roster

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io/ioutil"
	"strings"

	"github.com/kiro-usage/usage-reporter/pkg/usage"
	"github.com/kiro-usage/usage-reporter/pkg/util/slice"
)

// Roster lists every user that should be counted, active or not.
type Roster interface {
	ListUserIDs(ctx context.Context) ([]string, error)
}

// File reads user ids from a file. The file is either a CSV with a userid
// column or one id per line; blank lines and lines starting with # are
// skipped.
type File struct {
	Path string
}

var _ Roster = File{}

func (f File) ListUserIDs(ctx context.Context) ([]string, error) {
	data, err := ioutil.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("could not read roster %s: %v", f.Path, err)
	}
	ids, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("could not parse roster %s: %v", f.Path, err)
	}
	return ids, nil
}

// Parse extracts the unique user ids of a roster file in file order.
func Parse(data []byte) ([]string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	firstLine := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		firstLine = data[:i]
	}

	var ids []string
	if isCSVHeader(string(firstLine)) {
		rows, err := usage.ReadCSV(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			ids = append(ids, strings.Trim(strings.TrimSpace(row[usage.ColumnUserID]), `"'`))
		}
	} else {
		scanner := bufio.NewScanner(bytes.NewReader(data))
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if strings.HasPrefix(line, "#") {
				continue
			}
			ids = append(ids, line)
		}
		if err := scanner.Err(); err != nil {
			return nil, err
		}
	}
	return slice.UniqueStrings(ids), nil
}

func isCSVHeader(line string) bool {
	for _, col := range strings.Split(line, ",") {
		if usage.NormalizeColumn(strings.Trim(col, `"`)) == usage.ColumnUserID {
			return true
		}
	}
	return false
}
