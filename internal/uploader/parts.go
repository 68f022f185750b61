package uploader

// partRange is one byte range [Start, End) of a multi-part transfer.
type partRange struct {
	Number int
	Start  int64
	End    int64
}

// splitParts partitions [0, size) into count ranges of equal size, the last
// part absorbing the remainder. The union of all ranges is exactly [0, size)
// with no gaps or overlaps.
func splitParts(size int64, count int) []partRange {
	if count <= 0 || size <= 0 {
		return nil
	}
	per := (size + int64(count) - 1) / int64(count)
	out := make([]partRange, 0, count)
	for i := 1; i <= count; i++ {
		start := int64(i-1) * per
		end := start + per
		if end > size {
			end = size
		}
		if start >= size {
			break
		}
		out = append(out, partRange{Number: i, Start: start, End: end})
	}
	return out
}
