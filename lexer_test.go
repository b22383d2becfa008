// lexer_test.go
package eve

import (
	"reflect"
	"strings"
	"testing"
)

func toks(t *testing.T, src string, mode Mode) []Token {
	t.Helper()
	l := NewLexer(src, mode)
	ts, err := l.Scan()
	if err != nil {
		t.Fatalf("Scan error: %v", err)
	}
	return ts
}

func typesWithoutEOF(tokens []Token) []TokenType {
	if len(tokens) == 0 {
		return nil
	}
	end := len(tokens)
	if tokens[end-1].Type == EOF {
		end--
	}
	out := make([]TokenType, 0, end)
	for i := 0; i < end; i++ {
		out = append(out, tokens[i].Type)
	}
	return out
}

func wantTypes(t *testing.T, src string, mode Mode, want []TokenType) []Token {
	t.Helper()
	got := toks(t, src, mode)
	gotTypes := typesWithoutEOF(got)
	if !reflect.DeepEqual(gotTypes, want) {
		t.Fatalf("\nsource:\n%s\nwant types:\n%v\ngot types:\n%v\n", src, want, gotTypes)
	}
	return got
}

func Test_Lexer_Code_Record(t *testing.T) {
	wantTypes(t, `person = [#person name: "alice"]`, ModeCode, []TokenType{
		ID, EQUALITY, OPENBRACKET, TAG, ID, ID, EQUALITY,
		STRINGOPEN, STRINGCHARS, STRINGCLOSE, CLOSEBRACKET,
	})
}

func Test_Lexer_Keywords_Defer_To_Longer_Identifiers(t *testing.T) {
	got := wantTypes(t, "ifx if matches match notably not", ModeCode, []TokenType{
		ID, IF, ID, MATCH, ID, NOT,
	})
	if got[0].Image != "ifx" || got[2].Image != "matches" || got[4].Image != "notably" {
		t.Fatalf("unexpected images: %q %q %q", got[0].Image, got[2].Image, got[4].Image)
	}
}

func Test_Lexer_Numbers_And_Dashed_Identifiers(t *testing.T) {
	got := wantTypes(t, "-30 3.5 a - 1 a-b", ModeCode, []TokenType{
		NUM, NUM, ID, ADDINFIX, NUM, ID,
	})
	if got[0].Image != "-30" || got[1].Image != "3.5" || got[5].Image != "a-b" {
		t.Fatalf("unexpected images: %q %q %q", got[0].Image, got[1].Image, got[5].Image)
	}
}

func Test_Lexer_Operators(t *testing.T) {
	wantTypes(t, ":= <- += -= >= <= != > < : = + * . |", ModeCode, []TokenType{
		SET, MERGE, MUTATE, MUTATE, COMPARISON, COMPARISON, COMPARISON,
		COMPARISON, COMPARISON, EQUALITY, EQUALITY, ADDINFIX, MULTINFIX, DOT, PIPE,
	})
}

func Test_Lexer_Commas_Are_Skipped(t *testing.T) {
	wantTypes(t, "is(x > 0, y < 10)", ModeCode, []TokenType{
		IS, OPENPAREN, ID, COMPARISON, NUM, ID, COMPARISON, NUM, CLOSEPAREN,
	})
}

func Test_Lexer_String_Embeds_Round_Trip_Modes(t *testing.T) {
	got := wantTypes(t, `"a {{ x + 1 }} b"`, ModeCode, []TokenType{
		STRINGOPEN, STRINGCHARS, EMBEDOPEN, ID, ADDINFIX, NUM, EMBEDCLOSE, STRINGCHARS, STRINGCLOSE,
	})
	if got[1].Image != "a " || got[7].Image != " b" {
		t.Fatalf("unexpected string chars: %q %q", got[1].Image, got[7].Image)
	}
}

func Test_Lexer_String_Single_Brace_Is_Literal(t *testing.T) {
	got := wantTypes(t, `"a {b}"`, ModeCode, []TokenType{
		STRINGOPEN, STRINGCHARS, STRINGCLOSE,
	})
	if got[1].Image != "a {b}" {
		t.Fatalf("unexpected string chars: %q", got[1].Image)
	}
}

func Test_Lexer_Comment_And_Uuid(t *testing.T) {
	got := wantTypes(t, "// note\n⦑deadbeef⦒", ModeCode, []TokenType{COMMENT, UUID})
	if !strings.HasPrefix(got[0].Image, "//") {
		t.Fatalf("comment image: %q", got[0].Image)
	}
	if got[1].Image != "⦑deadbeef⦒" {
		t.Fatalf("uuid image: %q", got[1].Image)
	}
}

func Test_Lexer_Doc_Mode_Fences(t *testing.T) {
	src := "# Title\n```\nmatch\n```\nmore prose"
	got := wantTypes(t, src, ModeDoc, []TokenType{
		DOCCONTENT, FENCE, MATCH, CLOSEFENCE, DOCCONTENT,
	})
	if got[0].Image != "# Title" || got[4].Image != "more prose" {
		t.Fatalf("unexpected content images: %q %q", got[0].Image, got[4].Image)
	}
}

func Test_Lexer_Positions_And_Offsets(t *testing.T) {
	got := toks(t, "match\n[#a]", ModeCode)
	// match at 1:0 offset 0, [ at 2:0 offset 6, # at 2:1, a at 2:2
	if got[0].Line != 1 || got[0].Col != 0 || got[0].Offset != 0 {
		t.Fatalf("match position: %+v", got[0])
	}
	if got[1].Line != 2 || got[1].Col != 0 || got[1].Offset != 6 {
		t.Fatalf("[ position: %+v", got[1])
	}
	if got[3].Image != "a" || got[3].Offset != 8 {
		t.Fatalf("a position: %+v", got[3])
	}
}

func Test_Lexer_Error_On_Unmatchable_Input(t *testing.T) {
	l := NewLexer("match {", ModeCode)
	_, err := l.Scan()
	if err == nil {
		t.Fatal("expected a lex error for a lone {")
	}
	if _, ok := err.(*LexError); !ok {
		t.Fatalf("expected *LexError, got %T", err)
	}
}

func Test_Lexer_Error_On_Unterminated_Uuid(t *testing.T) {
	l := NewLexer("⦑abc", ModeCode)
	if _, err := l.Scan(); err == nil {
		t.Fatal("expected a lex error for an unterminated uuid")
	}
}
