package automation

import (
	"strconv"
	"strings"
	"unicode"
)

var namedKeys = map[string]string{
	"ENTER":       "enter",
	"RETURN":      "enter",
	"SPACE":       "space",
	"TAB":         "tab",
	"ESC":         "esc",
	"ESCAPE":      "esc",
	"SHIFT":       "shift",
	"CTRL":        "ctrl",
	"CONTROL":     "ctrl",
	"ALT":         "alt",
	"BACKSPACE":   "backspace",
	"DELETE":      "delete",
	"HOME":        "home",
	"END":         "end",
	"PAGEUP":      "pageup",
	"PAGEDOWN":    "pagedown",
	"UP":          "up",
	"DOWN":        "down",
	"LEFT":        "left",
	"RIGHT":       "right",
	"INSERT":      "insert",
	"CAPSLOCK":    "capslock",
	"PAUSE":       "pause",
	"PRINTSCREEN": "printscreen",
}

// keyStroke is one character of typed text.
type keyStroke struct {
	key   string
	shift bool
}

var punctuation = map[rune]keyStroke{
	' ':  {key: "space"},
	',':  {key: ","},
	'.':  {key: "."},
	'-':  {key: "-"},
	'_':  {key: "-", shift: true},
	'\\': {key: "\\"},
	'/':  {key: "/"},
	';':  {key: ";"},
	':':  {key: ";", shift: true},
	'\'': {key: "'"},
	'"':  {key: "'", shift: true},
	'[':  {key: "["},
	']':  {key: "]"},
}

// ResolveKey maps a human readable key name to its canonical name. Names are
// case-insensitive and may be wrapped in braces, as in {F9}.
func ResolveKey(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	trimmed = strings.TrimSuffix(strings.TrimPrefix(trimmed, "{"), "}")
	if trimmed == "" {
		return "", &UnknownKeyError{Key: name}
	}
	upper := strings.ToUpper(trimmed)
	if key, ok := namedKeys[upper]; ok {
		return key, nil
	}
	if len(upper) > 1 && upper[0] == 'F' {
		if n, err := strconv.Atoi(upper[1:]); err == nil && n >= 1 && n <= 24 {
			return "f" + strconv.Itoa(n), nil
		}
	}
	runes := []rune(trimmed)
	if len(runes) == 1 {
		if stroke, ok := strokeFor(runes[0]); ok {
			return stroke.key, nil
		}
	}
	return "", &UnknownKeyError{Key: name}
}

func strokeFor(r rune) (keyStroke, bool) {
	switch {
	case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		return keyStroke{key: string(r)}, true
	case r >= 'A' && r <= 'Z':
		return keyStroke{key: string(unicode.ToLower(r)), shift: true}, true
	}
	stroke, ok := punctuation[r]
	return stroke, ok
}
