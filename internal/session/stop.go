package session

import "strings"

// stopDetector implements §4.8's stop-sequence scan: it accumulates
// decoded text incrementally (relying on the tokenizer's incremental
// decode guarantee, §4.6) and reports, for each newly appended chunk,
// the portion of that chunk safe to emit and whether a stop sequence
// was completed. Once matched, the emitted text never contains the
// stop string as a substring (P8): the chunk is truncated to end
// exactly at the match start.
type stopDetector struct {
	stops []string
	full  strings.Builder
}

func newStopDetector(stops []string) *stopDetector {
	return &stopDetector{stops: stops}
}

// Feed appends chunk (the bytes decoded from one newly sampled token)
// and returns the prefix of chunk safe to emit plus whether generation
// must stop now. On a match, safe may be shorter than chunk (even
// empty) if the match starts at or before the chunk's first byte.
func (d *stopDetector) Feed(chunk string) (safe string, matched bool) {
	if len(d.stops) == 0 {
		d.full.WriteString(chunk)
		return chunk, false
	}
	prevLen := d.full.Len()
	d.full.WriteString(chunk)
	full := d.full.String()

	matchIdx := -1
	for _, stop := range d.stops {
		if stop == "" {
			continue
		}
		if idx := strings.Index(full, stop); idx != -1 {
			if matchIdx == -1 || idx < matchIdx {
				matchIdx = idx
			}
		}
	}
	if matchIdx == -1 {
		return chunk, false
	}
	if matchIdx >= prevLen {
		return chunk[:matchIdx-prevLen], true
	}
	// A match starting before this chunk should have been caught on an
	// earlier Feed call; defensively stop emitting anything new.
	return "", true
}
