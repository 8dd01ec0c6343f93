package memorymodel

import (
	"cmp"
	"crypto/sha256"
	"fmt"
	"iter"
	"strconv"
)

// Fingerprint returns a deterministic hex digest of the snapshot state.
// Snapshots that compare equal after a commit have the same fingerprint,
// which lets a flow engine key its worklist on states.
func (s *Snapshot) Fingerprint() string {
	w := newCanonWriter()
	encodeSnapshot(s, w)
	sum := sha256.Sum256(w.Bytes())
	return fmt.Sprintf("%x", sum[:])
}

func encodeSnapshot(s *Snapshot, w *canonWriter) {
	st := s.structure
	w.writeString("level=")
	w.writeString(strconv.Itoa(s.level))
	w.writeByte('\n')

	for idx, def := range st.Indexes() {
		w.writeString(idx.key)
		if def.HasArray() {
			w.writeString(" owns=")
			w.writeString(def.Array.String())
		}
		if e := s.data.Get(idx); !e.Equal(s.data.fallback) {
			w.writeString(" data=")
			w.writeString(e.String())
		}
		if e := s.infos.Get(idx); !e.Equal(s.infos.fallback) {
			w.writeString(" info=")
			w.writeString(e.String())
		}
		w.writeByte('\n')
	}

	for level := range st.Frames() {
		for _, kind := range []IndexKind{VariableIndex, ControlIndex} {
			cont, _ := st.container(kind, level)
			w.writeString(kind.String())
			w.writeByte('@')
			w.writeString(strconv.Itoa(level))
			encodeNames(w, cont.Names())
		}
	}
	for arr, d := range st.Arrays() {
		w.writeString(arr.String())
		w.writeString(" parent=")
		w.writeString(d.parent.key)
		encodeNames(w, d.Indexes())
	}
	for obj, d := range st.Objects() {
		w.writeString(obj.String())
		encodeNames(w, d.Fields())
	}
	for idx, a := range st.AliasEntries() {
		w.writeString("alias ")
		w.writeString(idx.key)
		w.writeString(" must=")
		encodeSet(w, a.Must)
		w.writeString(" may=")
		encodeSet(w, a.May)
		w.writeByte('\n')
	}
	encodeDeclarations(w, "function", st.functions)
	encodeDeclarations(w, "type", st.types)
	for level, name := range st.CallStack() {
		w.writeString("call@")
		w.writeString(strconv.Itoa(level))
		w.writeByte('=')
		w.writeString(strconv.Quote(name))
		w.writeByte('\n')
	}
}

func encodeNames(w *canonWriter, names iter.Seq2[string, MemoryIndex]) {
	w.writeByte('{')
	first := true
	for name, idx := range names {
		if !first {
			w.writeByte(',')
		}
		first = false
		w.writeString(strconv.Quote(name))
		w.writeByte(':')
		w.writeString(idx.key)
	}
	w.writeString("}\n")
}

func encodeSet(w *canonWriter, set IndexSet) {
	w.writeByte('[')
	for i, idx := range set.Slice() {
		if i > 0 {
			w.writeByte(',')
		}
		w.writeString(idx.key)
	}
	w.writeByte(']')
}

func encodeDeclarations(w *canonWriter, label string, table declarationTable) {
	for _, key := range sortedKeys(table, cmp.Compare[string]) {
		decls, _ := table.Get(key)
		for _, d := range decls {
			w.writeString(label)
			w.writeByte(' ')
			w.writeString(strconv.Quote(d.Name))
			w.writeByte(' ')
			w.writeString(strconv.Quote(d.Source))
			w.writeByte('\n')
		}
	}
}

type canonWriter struct {
	buf []byte
}

func newCanonWriter() *canonWriter {
	return &canonWriter{buf: make([]byte, 0, 1024)}
}

func (w *canonWriter) writeByte(b byte) {
	w.buf = append(w.buf, b)
}

func (w *canonWriter) writeString(s string) {
	w.buf = append(w.buf, s...)
}

func (w *canonWriter) Bytes() []byte {
	return w.buf
}
