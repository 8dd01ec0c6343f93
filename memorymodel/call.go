package memorymodel

// CallTarget names the function a call enters. Shared marks functions
// whose frame is reused by recursive calls: when the function is already
// on the call stack its level is entered again instead of a new one.
type CallTarget struct {
	Name   string
	Shared bool
}

// Argument binds one parameter. With Reference set the parameter becomes
// an alias of that caller location; otherwise it receives a copy of Value.
type Argument struct {
	Name      string
	Value     Entry
	Reference *MemoryPath
}

// thisVariable is the parameter receiving the object of a method call.
const thisVariable = "this"

// ExtendAsCall enters callee from caller: the snapshot adopts the caller
// state, opens the callee frame and binds this (when non-nil) and args. A
// reused recursive frame binds everything weakly, since the earlier
// activation may still be live.
func (s *Snapshot) ExtendAsCall(caller *Snapshot, callee CallTarget, this *Entry, args []Argument) (err error) {
	defer recoverInvariant(&err)
	s.requireTransaction("ExtendAsCall")
	s.extend(caller)

	level, reused := caller.level+1, false
	if callee.Shared {
		if l, ok := s.structure.findCallee(callee.Name); ok && l > 0 {
			level, reused = l, true
		}
	}
	s.structure = s.structure.withFrame(level).withCallee(level, callee.Name).withLevel(level)
	s.level = level

	if this != nil {
		s.writePath(VariablePath(level, thisVariable), *this, true, reused)
	}
	for _, arg := range args {
		param := VariablePath(level, arg.Name)
		if arg.Reference != nil {
			s.setAlias(param, *arg.Reference, reused)
			continue
		}
		s.writePath(param, arg.Value, true, reused)
	}
	s.log.Debugf("call %s level=%d reused=%t args=%d", callee.Name, level, reused, len(args))
	s.checkLevel("ExtendAsCall")
	return nil
}

// MergeWithCallLevel returns from a call: the callee outputs are merged,
// every frame above the caller's is released and the caller's level is
// restored. Only effects reachable from the caller frame, globals, objects
// and aliased parameters remain. Without outputs the caller state is
// adopted unchanged.
func (s *Snapshot) MergeWithCallLevel(callerPoint *Snapshot, outputs ...*Snapshot) (err error) {
	defer recoverInvariant(&err)
	s.requireTransaction("MergeWithCallLevel")
	if len(outputs) == 0 {
		s.extend(callerPoint)
		s.checkLevel("MergeWithCallLevel")
		return nil
	}

	// outputs may have returned from different depths
	base := make([]*Snapshot, len(outputs))
	for i, out := range outputs {
		base[i] = out.atLevel(callerPoint.level)
	}
	s.merge(base)
	s.structure = s.structure.withLevel(callerPoint.level)
	s.level = callerPoint.level
	s.log.Debugf("return to level %d outputs=%d", s.level, len(outputs))
	s.checkLevel("MergeWithCallLevel")
	return nil
}

// atLevel returns a copy of s with every frame above level released.
func (s *Snapshot) atLevel(level int) *Snapshot {
	out := *s
	var drop []int
	for l := range out.structure.Frames() {
		if l > level {
			drop = append(drop, l)
		}
	}
	for i := len(drop) - 1; i >= 0; i-- {
		out.releaseFrame(drop[i])
	}
	out.structure = out.structure.withLevel(level)
	out.level = level
	return &out
}

// releaseFrame drops every variable, control variable and temporary of the
// frame at level.
func (s *Snapshot) releaseFrame(level int) {
	for _, kind := range []IndexKind{VariableIndex, ControlIndex} {
		cont, ok := s.structure.container(kind, level)
		if !ok {
			continue
		}
		for _, idx := range cont.Names() {
			s.releaseIndex(idx)
		}
		s.releaseIndex(cont.unknown)
	}
	for idx := range each(s.structure.indexes) {
		if idx.kind == TemporaryIndex && idx.Len() == 0 && idx.level == level {
			s.releaseIndex(idx)
		}
	}
	s.structure = s.structure.withoutFrame(level)
}
