package analysis

// Fingerprint is a cheap content digest used purely for change detection.
// It is not collision proof: two different bodies hashing equal would reuse
// a stale verdict. Accepted trade-off, same as the rest of the cache design.
type Fingerprint uint32

// Hash is FNV-1a over the unit text. Deterministic within a process run,
// O(len) and allocation free, which is all the cache needs.
func Hash(text string) Fingerprint {
	const (
		offset32 = 2166136261
		prime32  = 16777619
	)
	h := uint32(offset32)
	for i := 0; i < len(text); i++ {
		h ^= uint32(text[i])
		h *= prime32
	}
	return Fingerprint(h)
}
