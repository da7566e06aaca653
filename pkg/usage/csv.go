package usage

import (
	"encoding/csv"
	"fmt"
	"io"
)

// ReadCSV reads a report CSV with a header line into rows.
func ReadCSV(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not read CSV header: %v", err)
	}
	// strip a UTF-8 byte order mark from the first column
	if len(header) > 0 && len(header[0]) >= 3 && header[0][:3] == "\xef\xbb\xbf" {
		header[0] = header[0][3:]
	}

	var rows []Row
	for line := 2; ; line++ {
		values, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("could not read CSV line %d: %v", line, err)
		}
		rows = append(rows, NewRow(header, values))
	}
	return rows, nil
}
