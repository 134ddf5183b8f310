package cooldown

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidName is returned when a process name cannot be represented by
// the flat format.
var ErrInvalidName = errors.New("process name not encodable")

const (
	FormatFlat = "flat"
	FormatJSON = "json"
)

// Codec converts Entries to and from their stored form.
type Codec interface {
	Name() string
	Encode(e Entries) ([]byte, error)
	Decode(data []byte) (Entries, error)
	// ValidateName reports whether Encode can store the process name.
	ValidateName(name string) error
}

// normalizeFormat lowercases and trims a format name; empty means flat.
func normalizeFormat(format string) string {
	f := strings.ToLower(strings.TrimSpace(format))
	if f == "" {
		return FormatFlat
	}
	return f
}

// NewCodec returns the codec for a format name. Empty means flat.
func NewCodec(format string) (Codec, error) {
	switch normalizeFormat(format) {
	case FormatFlat:
		return FlatCodec{}, nil
	case FormatJSON:
		return JSONCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown cooldown format %q", format)
	}
}

// FlatCodec is the legacy "name:epoch,name:epoch" line. Names are not
// escaped, so they may not contain ':' or ','.
type FlatCodec struct{}

func (FlatCodec) Name() string { return FormatFlat }

// validateFlatName reports whether name can be stored by FlatCodec.
func validateFlatName(name string) error {
	if name == "" || strings.ContainsAny(name, ":,") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

func (FlatCodec) ValidateName(name string) error { return validateFlatName(name) }

func (FlatCodec) Encode(e Entries) ([]byte, error) {
	parts := make([]string, 0, len(e))
	for _, name := range e.Names() {
		if err := validateFlatName(name); err != nil {
			return nil, err
		}
		parts = append(parts, name+":"+strconv.FormatInt(e[name], 10))
	}
	return []byte(strings.Join(parts, ",")), nil
}

func (FlatCodec) Decode(data []byte) (Entries, error) {
	out := Entries{}
	s := strings.TrimSpace(string(data))
	if s == "" {
		return out, nil
	}
	for _, item := range strings.Split(s, ",") {
		if strings.Count(item, ":") != 1 {
			return Entries{}, fmt.Errorf("%w: bad item %q", ErrCorrupt, item)
		}
		name, ts, _ := strings.Cut(item, ":")
		name = strings.TrimSpace(name)
		if name == "" {
			return Entries{}, fmt.Errorf("%w: empty name in %q", ErrCorrupt, item)
		}
		v, err := strconv.ParseInt(strings.TrimSpace(ts), 10, 64)
		if err != nil {
			return Entries{}, fmt.Errorf("%w: bad timestamp in %q", ErrCorrupt, item)
		}
		out[name] = v
	}
	return out, nil
}

// JSONVersion is the only record version JSONCodec understands.
const JSONVersion = 1

type jsonRecord struct {
	Version int     `json:"version"`
	Entries Entries `json:"entries"`
}

// JSONCodec stores a versioned JSON document and allows any process name.
type JSONCodec struct{}

func (JSONCodec) Name() string { return FormatJSON }

func (JSONCodec) ValidateName(string) error { return nil }

func (JSONCodec) Encode(e Entries) ([]byte, error) {
	if e == nil {
		e = Entries{}
	}
	return json.Marshal(jsonRecord{Version: JSONVersion, Entries: e})
}

func (JSONCodec) Decode(data []byte) (Entries, error) {
	if strings.TrimSpace(string(data)) == "" {
		return Entries{}, nil
	}
	var rec jsonRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return Entries{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if rec.Version != JSONVersion {
		return Entries{}, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, rec.Version)
	}
	if rec.Entries == nil {
		rec.Entries = Entries{}
	}
	return rec.Entries, nil
}
