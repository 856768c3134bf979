package main

import (
	"encoding/json"
	"fmt"
	"io"
)

func writeJSON(w io.Writer, payload any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(payload); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
