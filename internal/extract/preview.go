package extract

// PreviewCap is the number of source bytes scanned for the header terminator.
const PreviewCap = 2048

// HeaderPreview renders at most PreviewCap bytes from the start of b and cuts
// the result at the header boundary. Without a boundary inside the window the
// whole preview is the header; a terminator straddling the cap is not seen.
func HeaderPreview(b []byte) string {
	n := len(b)
	if n > PreviewCap {
		n = PreviewCap
	}
	preview := Hex(b[:n])
	if p, ok := LocateBoundary(preview); ok {
		return preview[:p-1]
	}
	return preview
}
