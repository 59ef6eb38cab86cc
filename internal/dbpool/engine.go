package dbpool

// IndexHandle is a single open handle onto a shard's index. The real
// full-text index engine is out of scope (§1); this is the seam the
// pool depends on to open, use and close one.
type IndexHandle interface {
	Close() error
}

// IndexEngine opens index handles for a shard path. Production wiring
// plugs in the real storage engine; tests use a fake recorded in
// engine_test.go, the way the teacher's worker tests stub execution.
type IndexEngine interface {
	Open(path string, writable bool) (IndexHandle, error)
}
