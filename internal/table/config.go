package table

// Config tunes page range sizing, merging and caching for a table.
type Config struct {
	// BaseSetsPerRange bounds how many base page-sets (512 records each) a
	// page range holds before it is sealed.
	BaseSetsPerRange int
	// MergeThreshold is the number of pending tail records in a range that
	// triggers a merge right after an update. Zero disables the trigger;
	// Merge and MergeAll still work.
	MergeThreshold int
	// CacheSize is the number of decoded physical records kept in the
	// record cache. Zero disables the cache.
	CacheSize int64
}

// DefaultConfig returns the settings used when none are supplied.
func DefaultConfig() Config {
	return Config{
		BaseSetsPerRange: 16,
		MergeThreshold:   2048,
		CacheSize:        1 << 14,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.BaseSetsPerRange <= 0 {
		c.BaseSetsPerRange = def.BaseSetsPerRange
	}
	if c.MergeThreshold < 0 {
		c.MergeThreshold = 0
	}
	if c.CacheSize < 0 {
		c.CacheSize = 0
	}
	return c
}
