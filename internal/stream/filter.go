// Package stream filters tag-delimited spans out of a live token stream.
package stream

import "strings"

// TagPair is one open/close tag pair whose span is hidden from output.
type TagPair struct {
	Open  string
	Close string
}

// DefaultPairs hides tool-call markup and thinking spans.
func DefaultPairs() []TagPair {
	return []TagPair{
		{Open: "<tool_call>", Close: "</tool_call>"},
		{Open: "<thinking>", Close: "</thinking>"},
	}
}

// Filter consumes text chunks and forwards only the human-visible
// remainder. The filtered output is identical for any chunking of the
// same input.
type Filter struct {
	pairs  []TagPair
	buf    string
	inside int // index into pairs, -1 when outside any hidden span
}

// NewFilter creates a filter for the given tag pairs.
func NewFilter(pairs []TagPair) *Filter {
	return &Filter{pairs: pairs, inside: -1}
}

// Feed consumes one chunk and returns the visible text it releases.
func (f *Filter) Feed(chunk string) string {
	f.buf += chunk
	var out strings.Builder
	for {
		if f.inside >= 0 {
			closing := f.pairs[f.inside].Close
			if i := strings.Index(f.buf, closing); i >= 0 {
				f.buf = f.buf[i+len(closing):]
				f.inside = -1
				continue
			}
			// Hidden content is discarded anyway; keep only enough
			// tail to recognize a close tag split across chunks.
			if keep := len(closing) - 1; len(f.buf) > keep {
				f.buf = f.buf[len(f.buf)-keep:]
			}
			return out.String()
		}

		earliest, pair := -1, -1
		for pi, p := range f.pairs {
			if i := strings.Index(f.buf, p.Open); i >= 0 && (earliest < 0 || i < earliest) {
				earliest, pair = i, pi
			}
		}
		if earliest >= 0 {
			out.WriteString(f.buf[:earliest])
			f.buf = f.buf[earliest+len(f.pairs[pair].Open):]
			f.inside = pair
			continue
		}

		// No opening tag: emit everything except a trailing suffix that
		// could still be the prefix of a tag split across chunks.
		hold := f.holdback()
		if emit := len(f.buf) - hold; emit > 0 {
			out.WriteString(f.buf[:emit])
			f.buf = f.buf[emit:]
		}
		return out.String()
	}
}

// Flush ends the stream. A still-open hidden span is treated as a
// truncated exclusion and discarded; otherwise the held buffer is
// emitted verbatim.
func (f *Filter) Flush() string {
	defer func() {
		f.buf = ""
		f.inside = -1
	}()
	if f.inside >= 0 {
		return ""
	}
	return f.buf
}

// holdback returns the length of the longest buffer suffix that is a
// proper prefix of any configured tag string.
func (f *Filter) holdback() int {
	longest := 0
	for _, p := range f.pairs {
		for _, tag := range []string{p.Open, p.Close} {
			max := len(tag) - 1
			if max > len(f.buf) {
				max = len(f.buf)
			}
			for l := max; l > longest; l-- {
				if strings.HasPrefix(tag, f.buf[len(f.buf)-l:]) {
					longest = l
					break
				}
			}
		}
	}
	return longest
}
