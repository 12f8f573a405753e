package table

// Record is one row returned by a read. Columns holds the projected column
// values in schema order; columns left out of the projection are absent.
type Record struct {
	RID     uint64
	Key     int64
	Columns []int64
}

// Cursor is a lazy, single-pass sequence of records. Each step resolves the
// next RID through the page directory at that moment, so records deleted or
// re-keyed after the query started are skipped. A Cursor cannot be rewound.
type Cursor struct {
	t         *Table
	rids      []uint64
	pos       int
	column    int
	value     int64
	projected []bool
	version   int

	cur Record
	err error
}

// Next advances to the next live record. It returns false when the sequence
// is exhausted or an error occurred.
func (c *Cursor) Next() bool {
	if c.err != nil || c.t == nil {
		return false
	}
	for c.pos < len(c.rids) {
		rid := c.rids[c.pos]
		c.pos++
		rec, ok, err := c.t.readMatching(rid, c.column, c.value, c.projected, c.version)
		if err != nil {
			c.err = err
			return false
		}
		if ok {
			c.cur = rec
			return true
		}
	}
	return false
}

// Record returns the record the cursor is positioned on.
func (c *Cursor) Record() Record {
	return c.cur
}

// Err returns the error that stopped iteration, if any.
func (c *Cursor) Err() error {
	return c.err
}

// Close releases the cursor. Further calls to Next return false.
func (c *Cursor) Close() {
	c.t = nil
	c.rids = nil
}

// All drains the cursor into a slice.
func (c *Cursor) All() ([]Record, error) {
	defer c.Close()
	var out []Record
	for c.Next() {
		out = append(out, c.Record())
	}
	return out, c.Err()
}
