package extract

import "strings"

// Header terminators in upper-case hex.
const (
	terminatorCRLF = "0D0A0D0A"
	terminatorLF   = "0A0A"
)

// LocateBoundary finds the header/body split inside an upper-case hex string.
//
// The returned position is 1-based and points at the blank line that closes
// the header block: the header is hexStr[:p-1] and keeps its last line ending.
// CRLFCRLF is preferred; bare LFLF is the fallback. A match only counts when
// it starts on a byte boundary (even 0-based offset); matches that straddle
// two bytes' nibbles are skipped and the scan continues after them.
func LocateBoundary(hexStr string) (int, bool) {
	if i, ok := alignedIndex(hexStr, terminatorCRLF); ok {
		return i + len(terminatorCRLF)/2 + 1, true
	}
	if i, ok := alignedIndex(hexStr, terminatorLF); ok {
		return i + len(terminatorLF)/2 + 1, true
	}
	return 0, false
}

// alignedIndex returns the 0-based offset of the first byte-aligned occurrence of pattern.
func alignedIndex(s, pattern string) (int, bool) {
	from := 0
	for from <= len(s)-len(pattern) {
		i := strings.Index(s[from:], pattern)
		if i < 0 {
			return 0, false
		}
		i += from
		if i%2 == 0 {
			return i, true
		}
		from = i + 1
	}
	return 0, false
}
