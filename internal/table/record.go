package table

// RefValue is the content a reference record points at: either a primary
// hash value, or a symbolic pointer to another reference name. Exactly one
// of Hash or Symref is set, unless the record is a tombstone.
type RefValue struct {
	Hash   []byte
	Symref string
}

// RefRecord is a single reference update. Deleted marks a tombstone, which
// shadows the same name in older tables without itself carrying a value.
type RefRecord struct {
	Name        string
	UpdateIndex uint64
	Value       RefValue
	Deleted     bool
}

// LogRecord is a single per-reference change-log entry.
type LogRecord struct {
	Name        string
	UpdateIndex uint64
	Time        uint64
	Message     string
	Deleted     bool
}
