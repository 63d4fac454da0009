package symbols

// Mapping pairs a spoken phrase with the literal glyph it stands for.
type Mapping struct {
	Spoken string
	Glyph  string
}

// DefaultTable returns the built-in spoken-phrase table. Declaration order is
// the tie-break for equal-length phrases, so related variants are grouped
// together.
func DefaultTable() []Mapping {
	return []Mapping{
		// Line and paragraph breaks.
		{"new line", "\n"},
		{"newline", "\n"},
		{"line break", "\n"},
		{"next line", "\n"},
		{"enter", "\n"},
		{"new paragraph", "\n\n"},
		{"paragraph break", "\n\n"},

		// Dashes.
		{"em dash", "—"},
		{"emdash", "—"},
		{"m-dash", "—"},
		{"m dash", "—"},
		{"en dash", "–"},
		{"endash", "–"},
		{"n-dash", "–"},
		{"n dash", "–"},
		{"dash", "-"},
		{"hyphen", "-"},

		// Sentence punctuation.
		{"full stop", "."},
		{"period", "."},
		{"dot", "."},
		{"comma", ","},
		{"colon", ":"},
		{"semicolon", ";"},
		{"semi colon", ";"},
		{"question mark", "?"},
		{"exclamation mark", "!"},
		{"exclamation point", "!"},
		{"ellipsis", "..."},
		{"triple dot", "..."},

		// Quotes and brackets.
		{"open quote", "\""},
		{"close quote", "\""},
		{"open single quote", "'"},
		{"close single quote", "'"},
		{"open paren", "("},
		{"close paren", ")"},
		{"open parenthesis", "("},
		{"close parenthesis", ")"},
		{"open parentheses", "("},
		{"close parentheses", ")"},
		{"open bracket", "["},
		{"close bracket", "]"},
		{"open brace", "{"},
		{"close brace", "}"},
		{"open curly", "{"},
		{"close curly", "}"},

		// Math and keyboard symbols.
		{"plus sign", "+"},
		{"plus", "+"},
		{"minus sign", "-"},
		{"minus", "-"},
		{"equals sign", "="},
		{"equals", "="},
		{"equal sign", "="},
		{"equal", "="},
		{"asterisk", "*"},
		{"star", "*"},
		{"forward slash", "/"},
		{"slash", "/"},
		{"backslash", "\\"},
		{"back slash", "\\"},
		{"percent sign", "%"},
		{"percent", "%"},
		{"ampersand", "&"},
		{"and sign", "&"},
		{"at sign", "@"},
		{"at symbol", "@"},
		{"hashtag", "#"},
		{"hash", "#"},
		{"pound sign", "#"},
		{"dollar sign", "$"},
		{"dollar", "$"},
		{"caret", "^"},
		{"underscore", "_"},
		{"pipe", "|"},
		{"vertical bar", "|"},
		{"tilde", "~"},
		{"backtick", "`"},
		{"grave accent", "`"},

		// Comparison operators.
		{"less than", "<"},
		{"greater than", ">"},
		{"less than or equal", "<="},
		{"greater than or equal", ">="},
		{"not equal", "!="},

		// Arrows.
		{"right arrow", "→"},
		{"left arrow", "←"},
		{"up arrow", "↑"},
		{"down arrow", "↓"},

		// Typographic extras.
		{"bullet point", "•"},
		{"bullet", "•"},
		{"degree sign", "°"},
		{"degree", "°"},
		{"copyright", "©"},
		{"registered", "®"},
		{"trademark", "™"},
	}
}
