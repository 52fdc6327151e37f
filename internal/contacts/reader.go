package contacts

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// ValidationError indicates the contacts file cannot be processed at all.
// It is fatal for the whole run.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// LoadFile reads recipient records from a CSV file
func LoadFile(path string) ([]*Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open contacts file: %w", err)
	}
	defer f.Close()

	records, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("contacts file %s: %w", path, err)
	}
	return records, nil
}

// Read parses recipient records from CSV data. The first row is the header
// and must contain the legal-name and first candidate-address columns.
// Rows with a blank legal name are skipped. A later row with an identity
// already seen replaces the earlier one.
func Read(r io.Reader) ([]*Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, &ValidationError{Message: fmt.Sprintf("failed to read header: %v", err)}
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	colIndex := make(map[string]int, len(header))
	for i, name := range header {
		colIndex[name] = i
	}
	for _, required := range []string{ColLegalName, ColEmail1} {
		if _, ok := colIndex[required]; !ok {
			return nil, &ValidationError{Message: fmt.Sprintf("required column %q not found", required)}
		}
	}

	var order []string
	byIdentity := make(map[string]*Record)

	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &ValidationError{Message: fmt.Sprintf("failed to read row: %v", err)}
		}

		attrs := make(map[string]string, len(header))
		for i, name := range header {
			if i < len(row) {
				attrs[name] = strings.TrimSpace(row[i])
			}
		}

		identity := attrs[ColLegalName]
		if identity == "" {
			continue
		}

		rec := &Record{
			Identity:  identity,
			TradeName: attrs[ColTradeName],
			Candidates: []string{
				attrs[ColEmail1],
				attrs[ColEmail2],
				attrs[ColEmail3],
			},
			Attributes: attrs,
		}

		if _, seen := byIdentity[identity]; !seen {
			order = append(order, identity)
		}
		byIdentity[identity] = rec
	}

	records := make([]*Record, 0, len(order))
	for _, identity := range order {
		records = append(records, byIdentity[identity])
	}
	return records, nil
}
