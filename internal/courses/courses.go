// Package courses parses course reference data (par and distance per
// hole) from YAML seed files.
package courses

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/robalobadob/golftrack/apps/go-server/internal/golf"
)

type seedFile struct {
	Courses []golf.Course `yaml:"courses"`
}

// Parse reads a seed document and validates every course in it.
// Holes are returned sorted by number.
func Parse(r io.Reader) ([]golf.Course, error) {
	var f seedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("courses: decode: %w", err)
	}
	seen := make(map[string]bool, len(f.Courses))
	for i := range f.Courses {
		c := &f.Courses[i]
		if c.ID == "" {
			return nil, fmt.Errorf("courses: course %d: missing id", i)
		}
		if seen[c.ID] {
			return nil, fmt.Errorf("courses: duplicate course id %q", c.ID)
		}
		seen[c.ID] = true
		if err := validateHoles(c); err != nil {
			return nil, err
		}
	}
	return f.Courses, nil
}

func validateHoles(c *golf.Course) error {
	numbers := make(map[int]bool, len(c.Holes))
	for _, h := range c.Holes {
		if h.Number < 1 || h.Number > int(golf.Eighteen) {
			return fmt.Errorf("courses: %s: hole %d out of range", c.ID, h.Number)
		}
		if numbers[h.Number] {
			return fmt.Errorf("courses: %s: duplicate hole %d", c.ID, h.Number)
		}
		numbers[h.Number] = true
		if h.Par < 3 || h.Par > 5 {
			return fmt.Errorf("courses: %s: hole %d: par %d not in 3..5", c.ID, h.Number, h.Par)
		}
		if h.Distance < 0 {
			return fmt.Errorf("courses: %s: hole %d: negative distance", c.ID, h.Number)
		}
	}
	sort.Slice(c.Holes, func(i, j int) bool { return c.Holes[i].Number < c.Holes[j].Number })
	return nil
}
