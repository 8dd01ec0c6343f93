// Package dump prints memory model snapshots for debugging: aligned text
// tables, YAML documents and OpenAPI schemas describing entries.
package dump

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/speakeasy-api/heapmodel/memorymodel"
)

// Options controls text dumps.
type Options struct {
	// Color wraps headers and index names in ANSI escapes.
	Color bool
	// MaxValues truncates entries to this many values (0 = all).
	MaxValues int
}

const (
	ansiBold  = "\x1b[1m"
	ansiCyan  = "\x1b[36m"
	ansiGray  = "\x1b[90m"
	ansiReset = "\x1b[0m"
)

// Text writes a table of every index of sn with its value, info and alias
// partners, followed by arrays, objects and declarations.
func Text(w io.Writer, sn *memorymodel.Snapshot, opts Options) error {
	bw := bufio.NewWriter(w)
	p := &printer{w: bw, color: opts.Color}

	p.header(fmt.Sprintf("%s level=%d mode=%s", sn, sn.CallLevel(), sn.Mode()))
	st := sn.Structure()

	var stack []string
	for level, name := range st.CallStack() {
		stack = append(stack, fmt.Sprintf("%d=%s", level, name))
	}
	if len(stack) > 0 {
		p.line("call stack: " + strings.Join(stack, " "))
	}

	rows := [][]string{{"INDEX", "VALUES", "INFO", "ALIASES"}}
	for idx := range st.Indexes() {
		info := ""
		if e, ok := sn.Infos().Lookup(idx); ok && !e.IsEmpty() {
			info = EntryString(e, opts.MaxValues)
		}
		rows = append(rows, []string{
			idx.String(),
			EntryString(sn.Data().Get(idx), opts.MaxValues),
			info,
			aliasString(st, idx),
		})
	}
	p.table(rows)

	if arrays := arrayRows(st); len(arrays) > 1 {
		p.header("arrays")
		p.table(arrays)
	}
	if objects := objectRows(st); len(objects) > 1 {
		p.header("objects")
		p.table(objects)
	}
	for _, kind := range []bool{false, true} {
		rows := [][]string{{"NAME", "SOURCE"}}
		for d := range st.Declarations(kind) {
			rows = append(rows, []string{d.Name, d.Source})
		}
		if len(rows) == 1 {
			continue
		}
		if kind {
			p.header("types")
		} else {
			p.header("functions")
		}
		p.table(rows)
	}
	return bw.Flush()
}

// EntryString renders e like Entry.String but keeps at most limit values.
func EntryString(e memorymodel.Entry, limit int) string {
	vals := e.Values()
	parts := make([]string, 0, len(vals))
	for i, v := range vals {
		if limit > 0 && i == limit {
			parts = append(parts, fmt.Sprintf("+%d", len(vals)-limit))
			break
		}
		parts = append(parts, v.String())
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func aliasString(st memorymodel.Structure, idx memorymodel.MemoryIndex) string {
	a, ok := st.Aliases(idx)
	if !ok {
		return ""
	}
	var parts []string
	if !a.Must.IsEmpty() {
		parts = append(parts, "must="+indexList(a.Must.Slice()))
	}
	if !a.May.IsEmpty() {
		parts = append(parts, "may="+indexList(a.May.Slice()))
	}
	return strings.Join(parts, " ")
}

func indexList(idxs []memorymodel.MemoryIndex) string {
	parts := make([]string, len(idxs))
	for i, idx := range idxs {
		parts[i] = idx.String()
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func arrayRows(st memorymodel.Structure) [][]string {
	rows := [][]string{{"ARRAY", "PARENT", "ELEMENTS"}}
	for arr, d := range st.Arrays() {
		parent := "-"
		if d.IsOwned() {
			parent = d.Parent().String()
		}
		var names []string
		for name := range d.Indexes() {
			names = append(names, name)
		}
		rows = append(rows, []string{arr.String(), parent, strings.Join(names, ",")})
	}
	return rows
}

func objectRows(st memorymodel.Structure) [][]string {
	rows := [][]string{{"OBJECT", "FIELDS"}}
	for obj, d := range st.Objects() {
		var names []string
		for name := range d.Fields() {
			names = append(names, name)
		}
		rows = append(rows, []string{obj.String(), strings.Join(names, ",")})
	}
	return rows
}

type printer struct {
	w     *bufio.Writer
	color bool
}

func (p *printer) paint(code, s string) string {
	if !p.color || s == "" {
		return s
	}
	return code + s + ansiReset
}

func (p *printer) header(s string) {
	p.line(p.paint(ansiBold, s))
}

func (p *printer) line(s string) {
	p.w.WriteString(s)
	p.w.WriteByte('\n')
}

// table pads every column to its widest cell. The first row is the
// heading; the first column holds index names.
func (p *printer) table(rows [][]string) {
	if len(rows) == 0 {
		return
	}
	widths := make([]int, len(rows[0]))
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], runewidth.StringWidth(cell))
		}
	}
	for r, row := range rows {
		last := len(row) - 1
		for last > 0 && row[last] == "" {
			last--
		}
		var b strings.Builder
		b.WriteString("  ")
		for i := 0; i <= last; i++ {
			cell := row[i]
			if i < last {
				cell = runewidth.FillRight(cell, widths[i]+2)
			}
			switch {
			case r == 0:
				cell = p.paint(ansiGray, cell)
			case i == 0:
				cell = p.paint(ansiCyan, cell)
			}
			b.WriteString(cell)
		}
		p.line(b.String())
	}
}
