package memorymodel

// Session owns the state shared by every snapshot of one analysis: the
// options, the logger and the id counters. A Session is not safe for
// concurrent use; the analysis drives it from one goroutine.
type Session struct {
	opts Options
	log  Logger

	nextSnapshot  uint64
	nextTemporary uint64
	nextArray     uint64
	nextObject    uint64

	// sites maps allocation sites to their object.
	sites map[string]Value
	// arrays maps an owner index key to the id of the array it owns.
	arrays map[string]uint64
}

// NewSession creates a session. Without options DefaultOptions is used.
// Unset settings without a usable zero value take their defaults, and
// options that fail Validate are replaced by DefaultOptions with a warning.
func NewSession(opts ...Options) *Session {
	opt := DefaultOptions()
	if len(opts) > 0 {
		opt = opts[0].withDefaults()
	}
	log := opt.Logger
	if log == nil {
		log = NewLogger(ParseLogLevel(opt.LogLevel), nil)
	}
	if err := opt.Validate(); err != nil {
		log.Warnf("invalid options, using defaults: %v", err)
		def := DefaultOptions()
		def.Logger = opt.Logger
		opt = def
	}
	return &Session{
		opts:   opt,
		log:    log,
		sites:  make(map[string]Value),
		arrays: make(map[string]uint64),
	}
}

func (s *Session) Options() Options { return s.opts }
func (s *Session) Logger() Logger   { return s.log }

// NewSnapshot returns an empty snapshot at the global level with no open
// transaction.
func (s *Session) NewSnapshot() *Snapshot {
	s.nextSnapshot++
	id := s.nextSnapshot
	return &Snapshot{
		session:   s,
		id:        id,
		structure: newStructure(),
		data:      newData(),
		infos:     newInfoData(),
		log:       s.log.With(map[string]any{"snapshot": id}),
	}
}

func (s *Session) newTemporary(level int) MemoryIndex {
	s.nextTemporary++
	return newTemporaryIndex(s.nextTemporary, level)
}

// newArray allocates a fresh array value that no index owns yet.
func (s *Session) newArray() Value {
	s.nextArray++
	return arrayValue(s.nextArray)
}

// arrayFor returns the array owned by owner. Every index owns at most one
// array and always the same one, so repeated assignments and merges of one
// location agree on the array id.
func (s *Session) arrayFor(owner MemoryIndex) Value {
	if id, ok := s.arrays[owner.key]; ok {
		return arrayValue(id)
	}
	s.nextArray++
	s.arrays[owner.key] = s.nextArray
	return arrayValue(s.nextArray)
}

func (s *Session) newObject(typeName string) Value {
	s.nextObject++
	return objectValue(s.nextObject, typeName)
}

// siteObject returns the object allocated at site, creating it on first
// use. Loops that allocate at one site reuse one abstract object.
func (s *Session) siteObject(site, typeName string) Value {
	key := site + "\x00" + typeName
	if obj, ok := s.sites[key]; ok {
		return obj
	}
	obj := s.newObject(typeName)
	s.sites[key] = obj
	return obj
}
