package domain

// Clock provides device identity and the logical clock used to order writes
// across devices. Implementations must persist the device ID and Lamport
// counter so both survive restarts, and NextLamport must be safe under
// rapid sequential calls within one process.
type Clock interface {
	// NewID returns a cryptographically random identifier. Never reused.
	NewID() string
	// DeviceID returns the stable identifier of this installation.
	DeviceID() string
	// NextLamport returns max(last+1, wall clock millis) and persists it,
	// so values are strictly increasing per device even under clock skew
	// while loosely tracking wall time for cross-device comparison.
	NextLamport() int64
}

// CompareSyncOrder orders two stamped writes for reconciliation: Lamport
// timestamp first, then lexicographic device ID as the deterministic
// tie-break. Returns -1, 0, or 1. The assumed remote policy is
// last-write-wins, so the write that compares greater wins a conflict.
func CompareSyncOrder(aLamport int64, aDevice string, bLamport int64, bDevice string) int {
	switch {
	case aLamport < bLamport:
		return -1
	case aLamport > bLamport:
		return 1
	case aDevice < bDevice:
		return -1
	case aDevice > bDevice:
		return 1
	default:
		return 0
	}
}
