package courses

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robalobadob/golftrack/apps/go-server/assets"
)

func TestParseEmbeddedDefault(t *testing.T) {
	raw, err := assets.DefaultCourses()
	require.NoError(t, err)

	cs, err := Parse(bytes.NewReader(raw))
	require.NoError(t, err)
	require.Len(t, cs, 2)
	assert.Len(t, cs[0].Holes, 9)
	assert.Len(t, cs[1].Holes, 18)
}

func TestParseSortsHoles(t *testing.T) {
	cs, err := Parse(strings.NewReader(`
courses:
  - id: c1
    name: One
    holes:
      - { hole: 2, par: 3, distance: 140 }
      - { hole: 1, par: 5, distance: 500 }
`))
	require.NoError(t, err)
	require.Len(t, cs, 1)
	assert.Equal(t, 1, cs[0].Holes[0].Number)
	assert.Equal(t, 5, cs[0].Holes[0].Par)
}

func TestParseRejects(t *testing.T) {
	tests := map[string]string{
		"missing id":   "courses:\n  - name: x\n",
		"duplicate id": "courses:\n  - id: a\n  - id: a\n",
		"bad par":      "courses:\n  - id: a\n    holes:\n      - { hole: 1, par: 7 }\n",
		"dup hole":     "courses:\n  - id: a\n    holes:\n      - { hole: 1, par: 4 }\n      - { hole: 1, par: 4 }\n",
		"hole 19":      "courses:\n  - id: a\n    holes:\n      - { hole: 19, par: 4 }\n",
		"unknown key":  "courses:\n  - id: a\n    slope: 113\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(doc))
			assert.Error(t, err)
		})
	}
}

func TestParseEmptyDocument(t *testing.T) {
	cs, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, cs)
}
