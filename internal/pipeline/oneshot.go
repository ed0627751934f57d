package pipeline

import (
	"os"
	"path/filepath"

	"shadeqc/internal"
)

// LoadRowsFromInput reads a local file. An empty or "auto" inputType detects
// the type from the file name; compression is always taken from the name.
func LoadRowsFromInput(inputType string, input string) ([]internal.RawRow, error) {
	blob, err := os.ReadFile(input)
	if err != nil {
		return nil, err
	}
	if inputType == "" || inputType == "auto" {
		return ParseFile(filepath.Base(input), blob)
	}
	plain, _, err := Decompress(filepath.Base(input), blob)
	if err != nil {
		return nil, err
	}
	return ParseRows(inputType, plain)
}

func LoadRecordsFromInput(inputType string, input string, n Normalizer) ([]internal.InspectionRecord, error) {
	rows, err := LoadRowsFromInput(inputType, input)
	if err != nil {
		return nil, err
	}
	return n.Normalize(rows), nil
}
