package output

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTest(mode OutputMode, tty bool) (*Renderer, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	return NewRendererWithTTY(&out, &errOut, tty, mode), &out, &errOut
}

func TestMode(t *testing.T) {
	tests := map[string]OutputMode{
		"":         ModeAuto,
		"auto":     ModeAuto,
		"TEXT":     ModeText,
		"md":       ModeMarkdown,
		"markdown": ModeMarkdown,
		" json ":   ModeJSON,
		"yaml":     ModeAuto,
	}
	for in, want := range tests {
		assert.Equal(t, want, Mode(in), "input %q", in)
	}
}

func TestEffectiveMode(t *testing.T) {
	tests := []struct {
		mode OutputMode
		tty  bool
		want OutputMode
	}{
		{ModeAuto, true, ModeText},
		{ModeAuto, false, ModeMarkdown},
		{ModeJSON, true, ModeJSON},
		{ModeText, false, ModeText},
	}
	for _, tt := range tests {
		r, _, _ := newTest(tt.mode, tt.tty)
		assert.Equal(t, tt.want, r.EffectiveMode())
	}
}

func TestRenderer_Markdown(t *testing.T) {
	r, out, errOut := newTest(ModeAuto, false)

	r.Header(1, "Rules")
	r.StatusLine("negative amounts", "FAILED", "2 violating records")
	r.Warning("lock expires soon")
	r.Table([]string{"ID", "Name"}, [][]string{{"1", "negative amounts"}})

	got := out.String()
	assert.Contains(t, got, "# Rules\n")
	assert.Contains(t, got, "- **negative amounts** `FAILED` 2 violating records")
	assert.Contains(t, got, "| ID | Name |")
	assert.Contains(t, got, "| 1 | negative amounts |")
	assert.NotContains(t, got, "\x1b[")
	assert.Equal(t, "> **Warning:** lock expires soon\n", errOut.String())
}

func TestRenderer_Text(t *testing.T) {
	r, out, _ := newTest(ModeText, false)

	r.StatusLine("flag large", "SKIPPED", "")
	r.Table([]string{"ID"}, nil)
	r.Table([]string{"ID", "Name"}, [][]string{{"7", "flag large"}})

	got := out.String()
	assert.Contains(t, got, "- flag large")
	assert.Contains(t, got, "(none)")
	assert.Contains(t, got, "flag large")
	assert.Contains(t, got, "┌")
}

func TestRenderer_JSON(t *testing.T) {
	r, out, _ := newTest(ModeJSON, false)
	require.NoError(t, r.JSON(map[string]int{"passed": 2}))

	var got map[string]int
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, 2, got["passed"])
}

func TestFormatHelpers(t *testing.T) {
	assert.Equal(t, "## Impact", FormatHeader(2, "Impact"))
	assert.Equal(t, "# x", FormatHeader(0, "x"))
	assert.Equal(t, "- **Run**: abc", FormatKeyValue("Run", "abc"))
	assert.Equal(t, "```sql\nSELECT 1\n```", FormatCodeBlock("sql", "SELECT 1\n"))
}
