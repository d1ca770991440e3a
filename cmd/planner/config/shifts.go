package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/HatiCode/shiftcast/pkg/shifts"
)

// ShiftCatalog is the on-disk shape of the shift template catalog:
//
//	shifts:
//	  - name: early
//	    start: "06:00"
//	    duration: 8h
//	  - name: night
//	    start: "22:00"
//	    duration: 8h30m
type ShiftCatalog struct {
	Shifts []ShiftEntry `yaml:"shifts"`
}

// ShiftEntry is one template in a ShiftCatalog.
type ShiftEntry struct {
	Name     string `yaml:"name" json:"name"`
	Start    string `yaml:"start" json:"start"`
	Duration string `yaml:"duration" json:"duration"`
}

// LoadShifts reads and validates the catalog at path.
func LoadShifts(path string) ([]shifts.Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read shift catalog: %w", err)
	}
	templates, err := ParseShifts(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return templates, nil
}

// ParseShifts decodes a YAML catalog. Unknown keys, duplicate names and
// invalid templates are errors; an empty catalog is allowed.
func ParseShifts(data []byte) ([]shifts.Template, error) {
	var catalog ShiftCatalog
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&catalog); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode shift catalog: %w", err)
	}

	templates := make([]shifts.Template, 0, len(catalog.Shifts))
	seen := make(map[string]bool, len(catalog.Shifts))
	for i, e := range catalog.Shifts {
		t, err := e.Template()
		if err != nil {
			return nil, fmt.Errorf("shifts[%d]: %w", i, err)
		}
		if seen[t.Name] {
			return nil, fmt.Errorf("shifts[%d]: duplicate name %q", i, t.Name)
		}
		seen[t.Name] = true
		templates = append(templates, t)
	}
	return templates, nil
}

// Template converts the entry. Duration accepts Go durations ("8h30m") or
// clock notation ("08:30").
func (e ShiftEntry) Template() (shifts.Template, error) {
	start, err := shifts.ParseClock(e.Start)
	if err != nil {
		return shifts.Template{}, fmt.Errorf("start: %w", err)
	}

	dur, err := time.ParseDuration(e.Duration)
	if err != nil {
		clock, cerr := shifts.ParseClock(e.Duration)
		if cerr != nil {
			return shifts.Template{}, fmt.Errorf("duration %q: %w", e.Duration, err)
		}
		dur = clock
	}

	t := shifts.Template{Name: e.Name, Start: start, Duration: dur}
	if err := t.Validate(shifts.DayLength); err != nil {
		return shifts.Template{}, err
	}
	return t, nil
}
