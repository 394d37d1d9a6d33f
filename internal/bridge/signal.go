package bridge

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/egoavara/modmgr/internal/errs"
)

// Marker opens and separates the header fields of a callback signal.
const Marker = "$$$"

// OptionsSegment is an argument name whose value is never treated as data.
const OptionsSegment = "options"

var (
	// ErrNotSignal is returned for lines that do not carry a signal header.
	ErrNotSignal = errors.New("not a callback signal")
	// ErrMalformedSignal is returned when the header is present but the call is not.
	ErrMalformedSignal = fmt.Errorf("%w: malformed callback signal", errs.ErrInvalidInput)
)

// Signal is one parsed callback request:
//
//	$$$<token>$$$<pluginId>$$$<namespace>.<method>(<key=value,...>)
type Signal struct {
	Token     string
	PluginID  string
	Namespace string
	Method    string
	Args      map[string]any
}

// Key returns "namespace.method".
func (s Signal) Key() string {
	return s.Namespace + "." + s.Method
}

// Header is the part of a signal line before the call.
type Header struct {
	Token    string
	PluginID string
	Call     string
}

// ParseHeader splits a line into token, plugin id and call text. Lines without
// the three-marker shape return ErrNotSignal.
func ParseHeader(line string) (Header, error) {
	line = strings.TrimRight(line, "\r\n")
	rest, ok := strings.CutPrefix(line, Marker)
	if !ok {
		return Header{}, ErrNotSignal
	}
	token, rest, ok := strings.Cut(rest, Marker)
	if !ok || token == "" {
		return Header{}, ErrNotSignal
	}
	plugin, call, ok := strings.Cut(rest, Marker)
	if !ok || plugin == "" {
		return Header{}, ErrNotSignal
	}
	return Header{Token: token, PluginID: plugin, Call: call}, nil
}

// ParseSignal parses a full signal line. When only the call is malformed the
// returned Signal still carries the token and plugin id.
func ParseSignal(line string) (Signal, error) {
	h, err := ParseHeader(line)
	if err != nil {
		return Signal{}, err
	}
	ns, method, args, err := ParseCall(h.Call)
	if err != nil {
		return Signal{Token: h.Token, PluginID: h.PluginID}, err
	}
	return Signal{Token: h.Token, PluginID: h.PluginID, Namespace: ns, Method: method, Args: args}, nil
}

// ParseCall parses "<namespace>.<method>(<args>)".
func ParseCall(src string) (namespace, method string, args map[string]any, err error) {
	p := &parser{src: strings.TrimSpace(src)}

	namespace = p.ident()
	if namespace == "" || !p.accept('.') {
		return "", "", nil, p.fail("expected namespace.method")
	}
	method = p.ident()
	if method == "" {
		return "", "", nil, p.fail("expected method name")
	}
	if !p.accept('(') {
		return "", "", nil, p.fail("expected '('")
	}
	args, err = p.kwargs(')')
	if err != nil {
		return "", "", nil, err
	}
	p.skipSpace()
	if !p.eof() {
		return "", "", nil, p.fail("trailing input")
	}
	return namespace, method, args, nil
}

type parser struct {
	src string
	pos int
}

func (p *parser) eof() bool { return p.pos >= len(p.src) }

func (p *parser) peek() byte {
	if p.eof() {
		return 0
	}
	return p.src[p.pos]
}

func (p *parser) skipSpace() {
	for !p.eof() && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t') {
		p.pos++
	}
}

func (p *parser) accept(c byte) bool {
	p.skipSpace()
	if p.peek() == c {
		p.pos++
		return true
	}
	return false
}

func (p *parser) fail(msg string) error {
	return fmt.Errorf("%w: %s at offset %d", ErrMalformedSignal, msg, p.pos)
}

func (p *parser) ident() string {
	p.skipSpace()
	start := p.pos
	for !p.eof() {
		r := rune(p.src[p.pos])
		if r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			break
		}
		p.pos++
	}
	return p.src[start:p.pos]
}

// kwargs reads key=value pairs up to and including close.
func (p *parser) kwargs(close byte) (map[string]any, error) {
	args := make(map[string]any)
	if p.accept(close) {
		return args, nil
	}
	for {
		key := p.ident()
		if key == "" {
			return nil, p.fail("expected argument name")
		}
		if !p.accept('=') {
			return nil, p.fail("expected '=' after " + key)
		}
		v, err := p.value(close)
		if err != nil {
			return nil, err
		}
		if key != OptionsSegment {
			args[key] = v
		}
		if p.accept(',') {
			continue
		}
		if p.accept(close) {
			return args, nil
		}
		return nil, p.fail("expected ',' or closing bracket")
	}
}

// value reads one argument value. close is the bracket ending the enclosing list.
func (p *parser) value(close byte) (any, error) {
	p.skipSpace()
	switch c := p.peek(); c {
	case '"', '\'':
		return p.quoted(c)
	case '(':
		p.pos++
		return p.kwargs(')')
	case '{':
		p.pos++
		return p.kwargs('}')
	case '[':
		p.pos++
		return p.list()
	}
	raw := p.bare(close)
	if raw == "" {
		return nil, p.fail("expected value")
	}
	return coerce(raw), nil
}

func (p *parser) list() ([]any, error) {
	out := []any{}
	if p.accept(']') {
		return out, nil
	}
	for {
		v, err := p.value(']')
		if err != nil {
			return nil, err
		}
		out = append(out, v)
		if p.accept(',') {
			continue
		}
		if p.accept(']') {
			return out, nil
		}
		return nil, p.fail("expected ',' or ']'")
	}
}

func (p *parser) quoted(q byte) (string, error) {
	p.pos++
	var b strings.Builder
	for !p.eof() {
		c := p.src[p.pos]
		p.pos++
		switch {
		case c == '\\' && !p.eof():
			next := p.src[p.pos]
			p.pos++
			switch next {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			default:
				b.WriteByte(next)
			}
		case c == q:
			return b.String(), nil
		default:
			b.WriteByte(c)
		}
	}
	return "", p.fail("unterminated string")
}

// bare reads an unquoted value up to a separator or close.
func (p *parser) bare(close byte) string {
	start := p.pos
	for !p.eof() {
		c := p.src[p.pos]
		if c == ',' || c == close {
			break
		}
		p.pos++
	}
	return strings.TrimSpace(p.src[start:p.pos])
}

// coerce converts an unquoted value: numeric, then boolean, then null, then
// the raw text.
func coerce(raw string) any {
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		return f
	}
	switch raw {
	case "True", "true":
		return true
	case "False", "false":
		return false
	case "None", "null":
		return nil
	}
	return raw
}
