package script

import (
	"errors"
	"fmt"
	"image"
	"slices"
	"strconv"
	"strings"

	"colorbot/internal/pixel"
)

type terminator int

const (
	termNone terminator = iota
	termEndLoop
	termEnd
)

// Parse builds the instruction tree for src. Lines that fail to parse become
// OpInvalid nodes in place, so a Program is always returned; the error is
// the first of them in execution order.
func Parse(src string) (*Program, error) {
	p := &parser{lines: splitLines(src)}
	body, _ := p.sequence(termNone)
	prog := &Program{Instructions: body}
	return prog, prog.Err()
}

func splitLines(src string) []string {
	src = strings.ReplaceAll(src, "\r\n", "\n")
	src = strings.ReplaceAll(src, "\r", "\n")
	return strings.Split(src, "\n")
}

type parser struct {
	lines []string
	next  int
	open  []terminator // terminators wanted by the enclosing blocks
}

// sequence parses lines until the wanted terminator. A terminator wanted by
// an enclosing block is left unconsumed and ends the sequence unclosed, so
// the unclosed opener is reported at its own line. Any other terminator is
// reported as stray where it stands.
func (p *parser) sequence(want terminator) ([]*Instruction, bool) {
	enclosing := p.open
	if want != termNone {
		p.open = append(p.open, want)
		defer func() { p.open = enclosing }()
	}

	var out []*Instruction
	for p.next < len(p.lines) {
		line := p.next + 1
		src := strings.TrimSpace(p.lines[p.next])
		p.next++
		if src == "" || strings.HasPrefix(src, "#") || strings.HasPrefix(src, "//") {
			continue
		}

		toks := tokenize(src)
		if t := terminatorOf(toks); t != termNone {
			if t == want {
				return out, true
			}
			if slices.Contains(enclosing, t) {
				p.next--
				return out, false
			}
			out = append(out, strayTerminator(line, src, t))
			continue
		}
		if op := blockOp(toks); op != OpInvalid {
			out = append(out, p.block(line, src, toks, op))
			continue
		}
		out = append(out, parseAction(line, src))
	}
	return out, want == termNone
}

func (p *parser) block(line int, src string, toks []token, op Op) *Instruction {
	in := parseOpener(line, src, toks, op)

	want := termEnd
	if op == OpLoop {
		want = termEndLoop
	}
	body, closed := p.sequence(want)
	if !closed {
		return invalid(line, src, missingTerminator(op, line))
	}
	if in.Op != OpInvalid {
		in.Body = body
	}
	return in
}

func terminatorOf(toks []token) terminator {
	if len(toks) != 1 {
		return termNone
	}
	switch {
	case toks[0].is("END_LOOP"):
		return termEndLoop
	case toks[0].is("END"):
		return termEnd
	}
	return termNone
}

func strayTerminator(line int, src string, t terminator) *Instruction {
	if t == termEndLoop {
		return invalid(line, src, fmt.Sprintf("END_LOOP without matching LOOP at line %d", line))
	}
	return invalid(line, src, fmt.Sprintf("END without matching BEGIN at line %d", line))
}

func missingTerminator(op Op, line int) string {
	switch op {
	case OpLoop:
		return fmt.Sprintf("LOOP at line %d missing END_LOOP", line)
	case OpMacroLoop:
		return fmt.Sprintf("MACRO.LOOP missing END after line %d", line)
	default:
		return fmt.Sprintf("IF COLOR block missing END after line %d", line)
	}
}

// blockOp recognizes block openers. The begin-style openers only count when
// the line ends in "begin".
func blockOp(toks []token) Op {
	if len(toks) == 0 {
		return OpInvalid
	}
	last := toks[len(toks)-1]
	switch {
	case toks[0].is("LOOP"):
		return OpLoop
	case toks[0].is("Macro.Loop") && last.is("begin"):
		return OpMacroLoop
	case len(toks) > 1 && toks[0].is("If") && toks[1].is("Color.At") && last.is("begin"):
		return OpIfColorBlock
	}
	return OpInvalid
}

func invalid(line int, src, reason string) *Instruction {
	return &Instruction{
		Op:     OpInvalid,
		Line:   line,
		Source: src,
		Err:    &ParseError{Line: line, Reason: reason},
	}
}

func build(in *Instruction, err error) *Instruction {
	if err != nil {
		return invalid(in.Line, in.Source, err.Error())
	}
	return in
}

func parseOpener(line int, src string, toks []token, op Op) *Instruction {
	in := &Instruction{Op: op, Line: line, Source: src}
	c := &cursor{toks: toks[1:]}
	switch op {
	case OpLoop:
		return build(in, parseLoop(in, c))
	case OpMacroLoop:
		return build(in, parseMacroLoop(in, c))
	default:
		return build(in, parseColorBlock(in, c))
	}
}

func parseLoop(in *Instruction, c *cursor) error {
	v, ok := c.value()
	if !ok || !c.done() {
		return errors.New("LOOP expects a repeat count")
	}
	n, err := count(v)
	if err != nil {
		return fmt.Errorf("LOOP count must be a non-negative integer: %q", v)
	}
	in.Count = n
	return nil
}

func parseMacroLoop(in *Instruction, c *cursor) error {
	v, ok := c.call()
	if !ok || !c.word("begin") || !c.done() {
		return errors.New("expected Macro.Loop('<count>') begin")
	}
	n, err := count(v)
	if err != nil {
		return fmt.Errorf("Macro.Loop count must be a non-negative integer: %q", v)
	}
	in.Count = n
	return nil
}

const colorBlockForm = "expected If Color.At coordinate is [not] (RGB 'r','g','b','x','y') begin"

func parseColorBlock(in *Instruction, c *cursor) error {
	if !c.word("Color.At") || !c.word("coordinate") || !c.word("is") {
		return errors.New(colorBlockForm)
	}
	in.Negate = c.word("not")
	if !c.punct("(") || !c.word("RGB") {
		return errors.New(colorBlockForm)
	}
	var vals [5]string
	for i := range vals {
		if i > 0 {
			c.punct(",")
		}
		v, ok := c.value()
		if !ok {
			return errors.New(colorBlockForm)
		}
		vals[i] = v
	}
	if !c.punct(")") || !c.word("begin") || !c.done() {
		return errors.New(colorBlockForm)
	}

	var channels [3]uint8
	for i := range channels {
		ch, err := pixel.ParseChannel(vals[i])
		if err != nil {
			return err
		}
		channels[i] = ch
	}
	x, err := strconv.Atoi(vals[3])
	if err != nil {
		return fmt.Errorf("x must be an integer: %q", vals[3])
	}
	y, err := strconv.Atoi(vals[4])
	if err != nil {
		return fmt.Errorf("y must be an integer: %q", vals[4])
	}
	in.Color = pixel.RGB{R: channels[0], G: channels[1], B: channels[2]}
	in.Point = image.Pt(x, y)
	return nil
}

// parseAction parses one primitive or inline conditional. It is used for
// whole lines and for the actions after THEN and ELSE.
func parseAction(line int, src string) *Instruction {
	in := &Instruction{Line: line, Source: src}
	toks := tokenize(src)
	if len(toks) == 0 {
		return invalid(line, src, "missing instruction")
	}
	head := toks[0]
	c := &cursor{toks: toks[1:]}
	rest := strings.TrimSpace(src[head.end:])

	switch {
	case head.is("WAIT"):
		in.Op = OpWait
		return build(in, parseWait(in, c))
	case head.is("PRESS"):
		in.Op = OpPress
		return build(in, parseKey(in, c, "PRESS"))
	case head.is("HOLD"):
		in.Op = OpHold
		return build(in, parseKey(in, c, "HOLD"))
	case head.is("RELEASE"):
		in.Op = OpRelease
		return build(in, parseKey(in, c, "RELEASE"))
	case head.is("TYPE"):
		in.Op = OpType
		if rest == "" {
			return invalid(line, src, "TYPE expects text")
		}
		in.Text = unquote(rest)
		return in
	case head.is("MOVE"):
		in.Op = OpMove
		return build(in, parseMove(in, c))
	case head.is("CLICK"):
		in.Op = OpClick
		return build(in, noArgs(c, "CLICK"))
	case head.is("CAPTURE_TARGET"):
		in.Op = OpCaptureTarget
		return build(in, noArgs(c, "CAPTURE_TARGET"))
	case head.is("LOG"):
		in.Op = OpLog
		if rest == "" {
			return invalid(line, src, "LOG expects text")
		}
		in.Text = rest
		return in
	case head.is("IF_TARGET_VISIBLE"):
		in.Op = OpIfTargetVisible
		return build(in, parseBranches(in, src, toks, 1))
	case head.is("IF_COLOR"):
		in.Op = OpIfColor
		return build(in, parseIfColor(in, src, toks))
	case head.is("SET"):
		in.Op = OpSet
		return build(in, parseSet(in, c))
	case head.is("IF_COOLDOWN"):
		in.Op = OpIfCooldown
		return build(in, parseIfCooldown(in, src, toks))
	case head.is("Macro.Pause"):
		in.Op = OpWait
		return build(in, parsePause(in, c))
	case head.is("Keyboard.Press"):
		in.Op = OpPress
		return build(in, parseKeyboard(in, c, "Keyboard.Press"))
	case head.is("Keyboard.Hold"):
		in.Op = OpHold
		return build(in, parseKeyboard(in, c, "Keyboard.Hold"))
	case head.is("Keyboard.Release"):
		in.Op = OpRelease
		return build(in, parseKeyboard(in, c, "Keyboard.Release"))
	}
	return invalid(line, src, "Unknown instruction: "+src)
}

func parseWait(in *Instruction, c *cursor) error {
	v, ok := c.value()
	if !ok || !c.done() {
		return errors.New("WAIT expects a duration in ms")
	}
	ms, err := millis(v)
	if err != nil {
		return fmt.Errorf("WAIT duration must be a non-negative integer: %q", v)
	}
	in.Millis = ms
	return nil
}

func parsePause(in *Instruction, c *cursor) error {
	v, ok := c.call()
	if !ok || !c.done() {
		return errors.New("expected Macro.Pause('<ms>')")
	}
	ms, err := millis(v)
	if err != nil {
		return fmt.Errorf("Macro.Pause duration must be a non-negative integer: %q", v)
	}
	in.Millis = ms
	return nil
}

func parseKey(in *Instruction, c *cursor, name string) error {
	t, ok := c.next()
	if !ok || !c.done() {
		return fmt.Errorf("%s expects one key name", name)
	}
	in.Key = t.text
	return nil
}

func parseKeyboard(in *Instruction, c *cursor, name string) error {
	if !c.word("keys") && !c.word("key") {
		return fmt.Errorf("expected %s keys('<key>')", name)
	}
	v, ok := c.call()
	if !ok || !c.done() || v == "" {
		return fmt.Errorf("expected %s keys('<key>')", name)
	}
	in.Key = v
	return nil
}

func parseMove(in *Instruction, c *cursor) error {
	xs, okx := c.value()
	ys, oky := c.value()
	if !okx || !oky || !c.done() {
		return errors.New("MOVE expects x and y")
	}
	x, errx := strconv.Atoi(xs)
	y, erry := strconv.Atoi(ys)
	if errx != nil || erry != nil {
		return fmt.Errorf("MOVE coordinates must be integers: %q %q", xs, ys)
	}
	in.Point = image.Pt(x, y)
	return nil
}

func noArgs(c *cursor, name string) error {
	if !c.done() {
		return fmt.Errorf("%s takes no arguments", name)
	}
	return nil
}

func parseIfColor(in *Instruction, src string, toks []token) error {
	if len(toks) < 5 {
		return errors.New("IF_COLOR expects x y #RRGGBB THEN <action>")
	}
	x, errx := strconv.Atoi(toks[1].text)
	y, erry := strconv.Atoi(toks[2].text)
	if errx != nil || erry != nil {
		return fmt.Errorf("IF_COLOR coordinates must be integers: %q %q", toks[1].text, toks[2].text)
	}
	color, err := pixel.ParseHex(toks[3].text)
	if err != nil {
		return err
	}
	in.Point = image.Pt(x, y)
	in.Color = color
	return parseBranches(in, src, toks, 4)
}

func parseSet(in *Instruction, c *cursor) error {
	name, ok := c.next()
	if !ok || name.kind == tokPunct {
		return errors.New("SET expects a cooldown name")
	}
	c.punct("=")
	v, ok := c.value()
	if !ok || !c.done() {
		return errors.New("SET expects <name> = <value|TIMER>")
	}
	in.Name = name.text
	if strings.EqualFold(v, "TIMER") {
		in.Timer = true
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fmt.Errorf("SET value must be an integer or TIMER: %q", v)
	}
	in.Value = n
	return nil
}

func parseIfCooldown(in *Instruction, src string, toks []token) error {
	if len(toks) < 4 || toks[1].kind == tokPunct || toks[2].kind == tokPunct {
		return errors.New("IF_COOLDOWN expects <name> <duration> THEN <action>")
	}
	in.Name = toks[1].text
	if n, err := strconv.ParseInt(toks[2].text, 10, 64); err == nil {
		in.Value = n
	} else {
		in.DurationName = toks[2].text
	}
	return parseBranches(in, src, toks, 3)
}

// parseBranches splits an inline conditional at THEN and the first ELSE that
// is not inside quotes. A nested inline conditional therefore cannot carry
// its own ELSE.
func parseBranches(in *Instruction, src string, toks []token, thenIdx int) error {
	keyword := toks[0].text
	if thenIdx >= len(toks) || !toks[thenIdx].is("THEN") {
		return fmt.Errorf("%s expects THEN <action>", strings.ToUpper(keyword))
	}
	elseIdx := -1
	for i := thenIdx + 1; i < len(toks); i++ {
		if toks[i].is("ELSE") {
			elseIdx = i
			break
		}
	}

	thenEnd := len(src)
	if elseIdx >= 0 {
		thenEnd = toks[elseIdx].pos
	}
	thenSrc := strings.TrimSpace(src[toks[thenIdx].end:thenEnd])
	if thenSrc == "" {
		return errors.New("missing action after THEN")
	}
	in.Then = parseAction(in.Line, thenSrc)

	if elseIdx >= 0 {
		elseSrc := strings.TrimSpace(src[toks[elseIdx].end:])
		if elseSrc == "" {
			return errors.New("missing action after ELSE")
		}
		in.Else = parseAction(in.Line, elseSrc)
	}
	return nil
}

func count(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, errors.New("invalid count")
	}
	return n, nil
}

func millis(s string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, errors.New("invalid duration")
	}
	return n, nil
}

// cursor walks the tokens of one line.
type cursor struct {
	toks []token
	i    int
}

func (c *cursor) done() bool {
	return c.i >= len(c.toks)
}

func (c *cursor) next() (token, bool) {
	if c.done() {
		return token{}, false
	}
	t := c.toks[c.i]
	c.i++
	return t, true
}

// word consumes the next token if it is the keyword w.
func (c *cursor) word(w string) bool {
	if c.done() || !c.toks[c.i].is(w) {
		return false
	}
	c.i++
	return true
}

func (c *cursor) punct(p string) bool {
	if c.done() || !c.toks[c.i].isPunct(p) {
		return false
	}
	c.i++
	return true
}

// value consumes a bare word or a quoted string.
func (c *cursor) value() (string, bool) {
	if c.done() || c.toks[c.i].kind == tokPunct {
		return "", false
	}
	t := c.toks[c.i]
	c.i++
	return t.text, true
}

// call consumes "(" value ")".
func (c *cursor) call() (string, bool) {
	if !c.punct("(") {
		return "", false
	}
	v, ok := c.value()
	if !ok || !c.punct(")") {
		return "", false
	}
	return v, true
}
