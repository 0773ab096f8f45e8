package sqlref

import (
	"fmt"
	"strings"
)

// ParseError reports SQL text that is not a single recognisable statement.
type ParseError struct {
	Fragment string   // source text at the point of failure
	Pos      Position // where the failure was detected
	Message  string
}

func (e *ParseError) Error() string {
	if e.Fragment == "" {
		return fmt.Sprintf("sql parse error at %s: %s", e.Pos, e.Message)
	}
	return fmt.Sprintf("sql parse error at %s: %s near %q", e.Pos, e.Message, e.Fragment)
}

const fragmentLen = 40

// fragmentAt returns up to fragmentLen bytes of input starting at offset,
// cut at the first newline.
func fragmentAt(input string, offset int) string {
	if offset < 0 || offset >= len(input) {
		return ""
	}
	frag := input[offset:]
	if i := strings.IndexByte(frag, '\n'); i >= 0 {
		frag = frag[:i]
	}
	if len(frag) > fragmentLen {
		frag = frag[:fragmentLen]
	}
	return strings.TrimSpace(frag)
}
