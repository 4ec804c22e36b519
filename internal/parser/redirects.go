package parser

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"docsync/internal/docsync"
)

// CSVRedirectParser reads "source,target" rows. A leading "source,target"
// header, blank lines and lines starting with '#' are skipped.
type CSVRedirectParser struct{}

func NewCSVRedirectParser() *CSVRedirectParser { return &CSVRedirectParser{} }

// ParseRedirects parses line by line so that one malformed row cannot hide
// the rows after it.
func (CSVRedirectParser) ParseRedirects(r io.Reader) ([]docsync.RedirectRule, []error, error) {
	var (
		rules   []docsync.RedirectRule
		skipped []error
	)

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		row := csv.NewReader(strings.NewReader(line))
		row.TrimLeadingSpace = true
		fields, err := row.Read()
		if err != nil {
			skipped = append(skipped, fmt.Errorf("line %d: %w", lineNo, err))
			continue
		}
		if len(rules) == 0 && len(skipped) == 0 && isHeader(fields) {
			continue
		}
		if len(fields) != 2 {
			skipped = append(skipped, fmt.Errorf("line %d: want 2 fields, got %d", lineNo, len(fields)))
			continue
		}

		source, target := strings.TrimSpace(fields[0]), strings.TrimSpace(fields[1])
		switch {
		case source == "" || target == "":
			skipped = append(skipped, fmt.Errorf("line %d: empty source or target", lineNo))
		case source == target:
			skipped = append(skipped, fmt.Errorf("line %d: %s redirects to itself", lineNo, source))
		default:
			rules = append(rules, docsync.RedirectRule{Source: source, Target: target})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("reading redirects: %w", err)
	}
	return rules, skipped, nil
}

func isHeader(fields []string) bool {
	return len(fields) == 2 &&
		strings.EqualFold(strings.TrimSpace(fields[0]), "source") &&
		strings.EqualFold(strings.TrimSpace(fields[1]), "target")
}

var _ docsync.RedirectParser = CSVRedirectParser{}
