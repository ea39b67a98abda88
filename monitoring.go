package flatshelf

type Stats struct {
	Mappings      int // including the root
	Leaves        int
	EmptyMappings int

	// SnapshotBytes is the size of the index snapshot written by the last
	// Sync, or 0 if none happened yet.
	SnapshotBytes int
}

// FlatEntries is the number of flat entries the index accounts for.
func (st Stats) FlatEntries() int {
	return st.Leaves + st.EmptyMappings
}

func (s *Store) Stats() Stats {
	c := s.idx.counts()
	return Stats{
		Mappings:      c.Interiors,
		Leaves:        c.Leaves,
		EmptyMappings: c.Placeholders,
		SnapshotBytes: s.lastSnapshotSize,
	}
}
