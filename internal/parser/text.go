package parser

import (
	"bufio"
	"io"
	"strings"
)

// TextParser handles plain text, one block per blank-line separated paragraph.
type TextParser struct{}

func (p *TextParser) Parse(r io.Reader, name string) (*Page, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	page := &Page{Title: titleFromName(name)}
	var current strings.Builder

	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			page.add(current.String())
			current.Reset()
			continue
		}
		if current.Len() > 0 {
			current.WriteString("\n")
		}
		current.WriteString(line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	page.add(current.String())

	return page, nil
}
