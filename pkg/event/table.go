package event

import "sort"

// Table maps event names to records for one object.
//
// A Table does no locking of its own; the owning object's lock guards it.
// The zero value is ready to use.
type Table struct {
	records map[string]*Record
}

// Register inserts rec, replacing any record with the same name. It returns
// the replaced record, or nil.
func (t *Table) Register(rec *Record) *Record {
	if t.records == nil {
		t.records = make(map[string]*Record)
	}
	old := t.records[rec.name]
	t.records[rec.name] = rec
	return old
}

// Unregister removes the record for name and returns it, or nil if absent.
func (t *Table) Unregister(name string) *Record {
	rec, ok := t.records[name]
	if !ok {
		return nil
	}
	delete(t.records, name)
	return rec
}

// Find returns the record for name, or nil.
func (t *Table) Find(name string) *Record {
	return t.records[name]
}

// Len returns the number of records.
func (t *Table) Len() int { return len(t.records) }

// Names returns the registered names in sorted order.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.records))
	for name := range t.records {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clear removes every record and returns them.
func (t *Table) Clear() []*Record {
	out := make([]*Record, 0, len(t.records))
	for _, name := range t.Names() {
		out = append(out, t.records[name])
	}
	t.records = nil
	return out
}
