// Package extract implements the per-packet HTTP header/body extraction stage.
package extract

const upperHex = "0123456789ABCDEF"

// Hex renders b as upper-case hexadecimal, two characters per byte.
func Hex(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = upperHex[c>>4]
		out[i*2+1] = upperHex[c&0x0F]
	}
	return string(out)
}
