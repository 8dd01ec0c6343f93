package memorymodel

import (
	"fmt"
	"strconv"
	"strings"
)

// ParsePath parses the textual path notation used by diagnostics tools and
// tests:
//
//	$a['x'][?]->f      variable a, index x, any index, field f
//	$$                 any variable
//	${a|b}[1|2]        multi-target names
//	@ctl->{f|g}        control variable with candidate fields
//	global:$g          global frame regardless of level
//
// Local paths resolve in the frame at level.
func ParsePath(text string, level int) (MemoryPath, error) {
	p := &pathParser{src: text}
	global := false
	if strings.HasPrefix(p.src, "global:") {
		global = true
		p.pos = len("global:")
	}

	var segs []PathSegment
	root, err := p.parseRoot()
	if err != nil {
		return MemoryPath{}, err
	}
	segs = append(segs, root)
	for !p.eof() {
		seg, err := p.parseSegment()
		if err != nil {
			return MemoryPath{}, err
		}
		segs = append(segs, seg)
	}
	return NewMemoryPath(level, global, segs...)
}

// MustParsePath is like ParsePath but panics on malformed input.
func MustParsePath(text string, level int) MemoryPath {
	p, err := ParsePath(text, level)
	if err != nil {
		panic(err)
	}
	return p
}

type pathParser struct {
	src string
	pos int
}

func (p *pathParser) eof() bool {
	return p.pos >= len(p.src)
}

func (p *pathParser) peek() byte {
	if p.eof() {
		return 0
	}
	return p.src[p.pos]
}

func (p *pathParser) errorf(format string, args ...any) error {
	return fmt.Errorf("%w: %q at offset %d: %s", ErrMalformedPath, p.src, p.pos, fmt.Sprintf(format, args...))
}

func (p *pathParser) parseRoot() (PathSegment, error) {
	var kind SegmentKind
	switch p.peek() {
	case '$':
		kind = SegmentVariable
	case '@':
		kind = SegmentControl
	default:
		return PathSegment{}, p.errorf("expected '$' or '@'")
	}
	p.pos++
	if p.peek() == kind.sigil() {
		p.pos++
		return PathSegment{Kind: kind, Any: true}, nil
	}
	return p.parseNames(kind)
}

func (k SegmentKind) sigil() byte {
	if k == SegmentControl {
		return '@'
	}
	return '$'
}

func (p *pathParser) parseSegment() (PathSegment, error) {
	switch {
	case p.peek() == '[':
		p.pos++
		seg, err := p.parseIndexNames()
		if err != nil {
			return PathSegment{}, err
		}
		if p.peek() != ']' {
			return PathSegment{}, p.errorf("expected ']'")
		}
		p.pos++
		return seg, nil
	case strings.HasPrefix(p.src[p.pos:], "->"):
		p.pos += 2
		return p.parseNames(SegmentField)
	case p.peek() == '$' || p.peek() == '@':
		return PathSegment{}, p.errorf("duplicate root segment")
	}
	return PathSegment{}, p.errorf("unexpected character %q", p.peek())
}

// parseNames reads "?", an identifier, or "{a|b|c}".
func (p *pathParser) parseNames(kind SegmentKind) (PathSegment, error) {
	switch p.peek() {
	case '?':
		p.pos++
		return PathSegment{Kind: kind, Any: true}, nil
	case '{':
		p.pos++
		var names []string
		for {
			name := p.ident()
			if name == "" {
				return PathSegment{}, p.errorf("expected name")
			}
			names = append(names, name)
			if p.peek() == '|' {
				p.pos++
				continue
			}
			break
		}
		if p.peek() != '}' {
			return PathSegment{}, p.errorf("expected '}'")
		}
		p.pos++
		return PathSegment{Kind: kind, Names: names}, nil
	}
	name := p.ident()
	if name == "" {
		return PathSegment{}, p.errorf("expected name")
	}
	return PathSegment{Kind: kind, Names: []string{name}}, nil
}

func (p *pathParser) ident() string {
	start := p.pos
	for !p.eof() {
		c := p.peek()
		if c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= 0x80 {
			p.pos++
			continue
		}
		break
	}
	return p.src[start:p.pos]
}

// parseIndexNames reads the inside of [...]: "?" or items separated by '|',
// each quoted ('x' or "x") or bare.
func (p *pathParser) parseIndexNames() (PathSegment, error) {
	if p.peek() == '?' {
		p.pos++
		return PathSegment{Kind: SegmentIndex, Any: true}, nil
	}
	var names []string
	for {
		name, err := p.indexItem()
		if err != nil {
			return PathSegment{}, err
		}
		names = append(names, name)
		if p.peek() != '|' {
			break
		}
		p.pos++
	}
	return PathSegment{Kind: SegmentIndex, Names: names}, nil
}

func (p *pathParser) indexItem() (string, error) {
	switch q := p.peek(); q {
	case '\'', '"':
		end := strings.IndexByte(p.src[p.pos+1:], q)
		if end < 0 {
			return "", p.errorf("unterminated quote")
		}
		raw := p.src[p.pos : p.pos+end+2]
		p.pos += end + 2
		if q == '"' {
			return strconv.Unquote(raw)
		}
		return raw[1 : len(raw)-1], nil
	}
	start := p.pos
	for !p.eof() && p.peek() != ']' && p.peek() != '|' {
		p.pos++
	}
	if start == p.pos {
		return "", p.errorf("empty index name")
	}
	return p.src[start:p.pos], nil
}
