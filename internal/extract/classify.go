package extract

import (
	"strconv"

	"firestige.xyz/flowanalyzer/internal/core"
)

// Classify derives the record type and its uri_or_code column.
// Response beats request beats data.
func Classify(code core.Field[int], uri core.Field[string]) (core.RecordType, string) {
	if c, ok := code.Get(); ok {
		return core.RecordResponse, strconv.Itoa(c)
	}
	if u, ok := uri.Get(); ok {
		return core.RecordRequest, u
	}
	return core.RecordData, ""
}
