package extract

import "firestige.xyz/flowanalyzer/internal/core"

// BodyHex renders the complete file-data field. It is never capped and no
// boundary search runs over it.
func BodyHex(fs *core.FieldSet) string {
	if b, ok := fs.FileData.Get(); ok {
		return Hex(b)
	}
	return ""
}
