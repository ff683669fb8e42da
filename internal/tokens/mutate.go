package tokens

// Mutate rewrites one body token of type typ, the one at occurrence index, setting
// its state and merging extra. Extra pairs with an empty value or a key outside
// the grammar are ignored, so an empty value never clears a property. Existing
// keys keep their position, new keys are appended in order (state first). The
// rewritten token keeps every property of the original, including those past
// the scanner's property ceiling. Every other byte of text is left untouched.
//
// An index out of range returns text unchanged: the content may have been
// rewritten since the caller read it.
func Mutate(text, typ string, index int, state string, extra ...Pair) string {
	return Scanner{}.Mutate(text, typ, index, state, extra...)
}

func (s Scanner) Mutate(text, typ string, index int, state string, extra ...Pair) string {
	if index < 0 {
		return text
	}

	for _, tok := range s.Parse(text) {
		if tok.Type != typ || tok.Index != index {
			continue
		}

		// Re-read the properties without a ceiling so none are lost on rewrite.
		props := parseProps(tokenPattern.FindStringSubmatch(tok.Raw)[2], typ, -1)
		if state != "" {
			props.Set(StateKey, state)
		}
		for _, kv := range extra {
			if kv.Value == "" || !keyPattern.MatchString(kv.Key) {
				continue
			}
			props.Set(kv.Key, kv.Value)
		}

		return text[:tok.Start] + Encode(typ, props) + text[tok.End:]
	}
	return text
}

// Encode renders a token in wire syntax.
func Encode(typ string, props *Props) string {
	return "[" + typ + ":" + props.Encode() + "]"
}
