package colour

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Sample is one measured roll.
type Sample struct {
	Roll string `json:"roll" yaml:"roll"`
	Lab  Lab    `json:"lab" yaml:"lab"`
}

// ReadSamples reads a CSV with L, a and b columns and an optional roll
// column. Header names are matched case-insensitively except that "a" and
// "b" may also be written as "a*" and "b*".
func ReadSamples(r io.Reader) ([]Sample, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("samples header: %w", err)
	}
	cols := map[string]int{"roll": -1, "l": -1, "a": -1, "b": -1}
	for i, h := range header {
		key := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\uFEFF"))), "*")
		if strings.Contains(key, "roll") {
			key = "roll"
		}
		if c, ok := cols[key]; ok && c < 0 {
			cols[key] = i
		}
	}
	for _, k := range []string{"l", "a", "b"} {
		if cols[k] < 0 {
			return nil, fmt.Errorf("samples: missing %q column", k)
		}
	}

	out := []Sample{}
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("samples line %d: %w", line, err)
		}
		s := Sample{Roll: cell(rec, cols["roll"])}
		for _, p := range []struct {
			key string
			dst *float64
		}{{"l", &s.Lab.L}, {"a", &s.Lab.A}, {"b", &s.Lab.B}} {
			v, err := strconv.ParseFloat(strings.Replace(cell(rec, cols[p.key]), ",", ".", 1), 64)
			if err != nil {
				return nil, fmt.Errorf("samples line %d: bad %s value: %w", line, p.key, err)
			}
			*p.dst = v
		}
		if s.Roll == "" {
			s.Roll = fmt.Sprintf("UNK-%d", len(out))
		}
		out = append(out, s)
	}
}

func cell(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}
