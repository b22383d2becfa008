// errors_test.go
package eve

import (
	"errors"
	"strings"
	"testing"
)

func Test_Errors_Caret_Snippet(t *testing.T) {
	src := "match\n[#person\nbind"
	err := WrapErrorWithSource(&ParseError{Line: 2, Col: 8, Msg: "expected a closing ]"}, src)
	out := err.Error()
	for _, want := range []string{"PARSE ERROR at 2:9", "   1 | match", "   2 | [#person", "   3 | bind", "^"} {
		if !strings.Contains(out, want) {
			t.Fatalf("snippet missing %q:\n%s", want, out)
		}
	}
	caretLine := ""
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "^") {
			caretLine = line
		}
	}
	if idx := strings.Index(caretLine, "^"); idx != len("     | ")+8 {
		t.Fatalf("caret misplaced at %d:\n%s", idx, out)
	}
}

func Test_Errors_Named_Header(t *testing.T) {
	err := WrapErrorWithName(&LexError{Line: 1, Col: 0, Msg: "bad"}, "demo.eve", "x")
	if !strings.Contains(err.Error(), "LEXICAL ERROR in demo.eve at 1:1") {
		t.Fatalf("unexpected header: %s", err)
	}
}

func Test_Errors_Clamping(t *testing.T) {
	err := WrapErrorWithSource(&ParseError{Line: 99, Col: 500, Msg: "far away"}, "short")
	if !strings.Contains(err.Error(), "far away") {
		t.Fatalf("clamped rendering failed: %s", err)
	}
}

func Test_Errors_Other_Errors_Pass_Through(t *testing.T) {
	sentinel := errors.New("unrelated")
	if WrapErrorWithSource(sentinel, "src") != sentinel {
		t.Fatal("non-diagnostic errors must pass through unchanged")
	}
}

func Test_Errors_Invariant_Rendering(t *testing.T) {
	err := WrapErrorWithSource(&InvariantError{Line: 1, Col: 0, Msg: "walker pop mismatch"}, "a")
	if !strings.Contains(err.Error(), "INVARIANT VIOLATION") {
		t.Fatalf("unexpected rendering: %s", err)
	}
}
