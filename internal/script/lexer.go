package script

import "strings"

type tokenKind int

const (
	tokWord tokenKind = iota
	tokString
	tokPunct
)

// token is one lexeme of a single script line. pos and end are byte offsets
// into the line so raw text can be sliced back out for TYPE, LOG and the
// inline THEN/ELSE actions.
type token struct {
	kind tokenKind
	text string
	pos  int
	end  int
}

func (t token) is(word string) bool {
	return t.kind == tokWord && strings.EqualFold(t.text, word)
}

func (t token) isPunct(p string) bool {
	return t.kind == tokPunct && t.text == p
}

const punctuation = "(),="

func isSpace(c byte) bool {
	return c == ' ' || c == '\t'
}

func isQuote(c byte) bool {
	return c == '\'' || c == '"'
}

// tokenize splits a line into words, quoted strings and the punctuation
// "(),=". A quote with no closing partner becomes a one-character word so
// free text such as "LOG don't" still lexes.
func tokenize(line string) []token {
	var toks []token
	i := 0
	for i < len(line) {
		c := line[i]
		switch {
		case isSpace(c):
			i++
		case strings.IndexByte(punctuation, c) >= 0:
			toks = append(toks, token{kind: tokPunct, text: string(c), pos: i, end: i + 1})
			i++
		case isQuote(c):
			closing := strings.IndexByte(line[i+1:], c)
			if closing < 0 {
				toks = append(toks, token{kind: tokWord, text: string(c), pos: i, end: i + 1})
				i++
				continue
			}
			end := i + 1 + closing + 1
			toks = append(toks, token{kind: tokString, text: line[i+1 : end-1], pos: i, end: end})
			i = end
		default:
			start := i
			for i < len(line) && !isSpace(line[i]) && !isQuote(line[i]) && strings.IndexByte(punctuation, line[i]) < 0 {
				i++
			}
			toks = append(toks, token{kind: tokWord, text: line[start:i], pos: start, end: i})
		}
	}
	return toks
}

// unquote strips one pair of matching surrounding quotes.
func unquote(s string) string {
	if len(s) >= 2 && isQuote(s[0]) && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}
