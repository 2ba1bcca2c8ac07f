package store

// ChunkRange invokes fn over consecutive [start, end) slices of a range
// of total elements, at most chunkSize per call. A chunkSize of zero or
// less means one call covering the whole range.
func ChunkRange(total, chunkSize int, fn func(start, end int) error) error {
	if total <= 0 {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = total
	}
	for start := 0; start < total; start += chunkSize {
		end := min(start+chunkSize, total)
		if err := fn(start, end); err != nil {
			return err
		}
	}
	return nil
}
