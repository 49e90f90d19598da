package doccheck

import (
	"encoding/json"
	"fmt"
	"io"
)

// WriteText prints findings one per line in file:line: [rule] message form.
func WriteText(w io.Writer, findings []Finding) error {
	for _, finding := range findings {
		if _, err := fmt.Fprintln(w, finding); err != nil {
			return err
		}
	}
	return nil
}

// WriteJSON prints findings as a JSON array, for CI to consume.
func WriteJSON(w io.Writer, findings []Finding) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(findings)
}
