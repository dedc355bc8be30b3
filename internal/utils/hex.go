// Package utils holds allocation-light formatting helpers usable from the
// TinyGo firmware, where pulling in fmt for every log attribute is costly.
package utils

const hexDigits = "0123456789ABCDEF"

// Hex4 formats a company or pin identifier as 4 upper-case hex digits.
func Hex4(v uint16) string {
	return string([]byte{
		hexDigits[(v>>12)&0xF],
		hexDigits[(v>>8)&0xF],
		hexDigits[(v>>4)&0xF],
		hexDigits[v&0xF],
	})
}

// BytesToHex renders advertisement bytes without separators.
func BytesToHex(b []byte) string {
	out := make([]byte, 0, len(b)*2)
	for _, x := range b {
		out = append(out, hexDigits[x>>4], hexDigits[x&0x0F])
	}
	return string(out)
}

// PrintableID returns id as text when every byte is printable ASCII (the
// "MANU-EPSG-GTI-3A" style identifiers), otherwise as hex.
func PrintableID(id [16]byte) string {
	for _, c := range id {
		if c < 0x20 || c > 0x7E {
			return BytesToHex(id[:])
		}
	}
	return string(id[:])
}
