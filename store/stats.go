package store

// MemoryStats summarizes a user's memory footprint across tiers.
type MemoryStats struct {
	UserID            string
	ChatCount         int64
	ShortTermCount    int64
	LongTermCount     int64
	CountsByCategory  map[string]int64
	AverageImportance float64
	// StorageBytes approximates the text payload stored across all tiers,
	// the figure the storage quota is enforced against.
	StorageBytes int64
}

// PoolStatus reports connection pool health for relational backends.
// Document backends report zero values with Backend set.
type PoolStatus struct {
	Backend        string
	OpenConns      int
	InUse          int
	Idle           int
	WaitCount      int64
	MaxOpenConns   int
}
