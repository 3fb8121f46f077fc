package split

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Kind tags a split specification value as an absolute amount or a
// percentage of the total. The two are mutually exclusive per entry.
type Kind int

const (
	Amount Kind = iota
	Percentage
)

// SpecEntry is one user-authored share: a name key (with "me"/"I" aliasing
// the current user) and a tagged value.
type SpecEntry struct {
	Name  string
	Kind  Kind
	Value float64
}

// ParseSpecJSON decodes a split_map JSON object into entries, preserving the
// key order of the object text. Matching rules downstream depend on entry
// order, so a plain map decode would make them nondeterministic.
func ParseSpecJSON(raw json.RawMessage) ([]SpecEntry, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("invalid split_map: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("split_map must be an object")
	}

	var entries []SpecEntry
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("invalid split_map: %w", err)
		}
		key := keyTok.(string)

		valTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("invalid split_map: %w", err)
		}

		entry, err := parseEntry(key, valTok)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func parseEntry(key string, val interface{}) (SpecEntry, error) {
	switch v := val.(type) {
	case string:
		kind, value, err := ParseValue(v)
		if err != nil {
			return SpecEntry{}, fmt.Errorf("split_map[%q]: %w", key, err)
		}
		return SpecEntry{Name: key, Kind: kind, Value: value}, nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return SpecEntry{}, fmt.Errorf("split_map[%q]: %w", key, err)
		}
		return SpecEntry{Name: key, Kind: Amount, Value: f}, nil
	default:
		return SpecEntry{}, fmt.Errorf("split_map[%q]: value must be an amount or percentage string", key)
	}
}

// ParseValue interprets a user-authored share value. A trailing "%" marks a
// percentage; anything else must parse as a plain number.
func ParseValue(s string) (Kind, float64, error) {
	trimmed := strings.TrimSpace(s)
	if strings.HasSuffix(trimmed, "%") {
		pct, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(trimmed, "%")), 64)
		if err != nil {
			return Percentage, 0, fmt.Errorf("invalid percentage %q", s)
		}
		return Percentage, pct, nil
	}
	f, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return Amount, 0, fmt.Errorf("invalid amount %q", s)
	}
	return Amount, f, nil
}
