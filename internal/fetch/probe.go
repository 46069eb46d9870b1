package fetch

import (
	"bytes"
	"fmt"

	pdf "github.com/ledongthuc/pdf"
)

// Probe confirms the fetched bytes parse as a PDF and reports the page count.
// An unparseable document is a fetch-level failure: the pipeline cannot do
// anything with it, so the whole request fails before rasterization starts.
func Probe(source string, data []byte) (pageCount int, err error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, &Error{Source: source, Err: fmt.Errorf("not a readable pdf: %w", err)}
	}
	n := reader.NumPage()
	if n <= 0 {
		return 0, &Error{Source: source, Err: fmt.Errorf("document has no pages")}
	}
	return n, nil
}
