package campaign

// Dial capacity constants. TotalCapacity is the user's full concurrent-call
// allowance; BatchCap is the most any single batch may consume.
const (
	TotalCapacity = 20
	BatchCap      = 5
)

// MaxConcurrency computes the dial concurrency usable by a batch given the
// amount the user reserved for other call traffic (e.g. inbound).
//
// The result is advisory capacity information passed to the executor, not an
// admission-control mechanism; the executor is responsible for not exceeding
// it.
func MaxConcurrency(reserved int) int {
	free := TotalCapacity - reserved
	if free < 0 {
		free = 0
	}
	if free > BatchCap {
		return BatchCap
	}
	return free
}

// ValidReservedConcurrency reports whether a reservation is in range.
func ValidReservedConcurrency(reserved int) bool {
	return reserved >= 0 && reserved <= TotalCapacity
}
