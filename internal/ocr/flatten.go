package ocr

import "strings"

// lineKind is the only element kind whose text survives flattening.
const lineKind = "line"

// Flatten reduces OCR elements to a single text blob: text-bearing "line"
// elements concatenated in document order with single-space separators.
// Elements of any other kind (tables, cells, selection marks) are dropped.
func Flatten(elements []Element) string {
	var parts []string
	for _, el := range elements {
		if el.Kind != lineKind || el.Text == "" {
			continue
		}
		parts = append(parts, el.Text)
	}
	return strings.Join(parts, " ")
}
