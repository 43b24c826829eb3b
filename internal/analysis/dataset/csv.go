package dataset

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
)

// Summary reports the shape of a validated dataset.
type Summary struct {
	Rows    int
	Columns int
}

// Validate performs the pre-upload sanity check on serialized CSV bytes: a
// parseable header, at least one data row, and consistent column counts.
// The dataset is otherwise treated as an opaque blob.
func Validate(data []byte) (Summary, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Summary{}, fmt.Errorf("dataset is empty")
	}

	r := csv.NewReader(bytes.NewReader(data))
	header, err := r.Read()
	if err != nil {
		return Summary{}, fmt.Errorf("read header: %w", err)
	}

	rows := 0
	for {
		_, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Summary{}, fmt.Errorf("read row %d: %w", rows+1, err)
		}
		rows++
	}
	if rows == 0 {
		return Summary{}, fmt.Errorf("dataset has no data rows")
	}

	return Summary{Rows: rows, Columns: len(header)}, nil
}
