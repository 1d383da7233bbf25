package parser

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// csvBatchSize is how many data rows go into one block.
const csvBatchSize = 20

// CSVParser renders each batch of rows as "header: value" lines.
type CSVParser struct{}

func (p *CSVParser) Parse(r io.Reader, name string) (*Page, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}

	page := &Page{Title: titleFromName(name)}
	if len(records) == 0 {
		return page, nil
	}

	headers := records[0]
	rows := records[1:]
	for start := 0; start < len(rows); start += csvBatchSize {
		end := min(start+csvBatchSize, len(rows))

		var b strings.Builder
		for _, row := range rows[start:end] {
			cells := make([]string, len(row))
			for j, cell := range row {
				if j < len(headers) && headers[j] != "" {
					cells[j] = headers[j] + ": " + cell
				} else {
					cells[j] = cell
				}
			}
			b.WriteString(strings.Join(cells, ", "))
			b.WriteByte('\n')
		}
		page.add(b.String())
	}

	return page, nil
}
