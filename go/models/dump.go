package models

import (
	"encoding/hex"
	"fmt"
	"strings"
)

func printable(p []byte) string {
	o := make([]byte, len(p))
	for i, c := range p {
		if c >= 0x20 && c <= 0x7e {
			o[i] = c
		} else {
			o[i] = '.'
		}
	}
	return string(o)
}

// HexDump formats mem as lines of hex words followed by their printable
// characters. Addresses start at base and are printed at the width of bits;
// words are bits/8 bytes in memory order.
func HexDump(base uint64, mem []byte, bits int) []string {
	word := bits / 8
	if word < 1 {
		word = 1
	}
	addrFmt := fmt.Sprintf("0x%%0%dx:", word*2)
	// fit an 80 column terminal: address, then three quarters of the rest
	// for hex, the remainder for the printable column
	perLine := ((80 - (word*2 + 4)) * 3 / 4) / ((word + 1) * 2)
	if perLine < 1 {
		perLine = 1
	}
	lineSize := perLine * word

	var out []string
	hexCol := make([]string, perLine)
	textCol := make([]string, perLine)
	for i := 0; i < len(mem); i += lineSize {
		line := mem[i:]
		for j := 0; j < perLine; j++ {
			start, end := j*word, (j+1)*word
			if start >= len(line) {
				hexCol[j] = strings.Repeat(" ", word*2)
				textCol[j] = strings.Repeat(" ", word)
				continue
			}
			pad := 0
			if end > len(line) {
				pad = end - len(line)
				end = len(line)
			}
			hexCol[j] = hex.EncodeToString(line[start:end]) + strings.Repeat("  ", pad)
			textCol[j] = printable(line[start:end]) + strings.Repeat(" ", pad)
		}
		out = append(out, fmt.Sprintf(addrFmt+" %s [%s]", base+uint64(i), strings.Join(hexCol, " "), strings.Join(textCol, " ")))
	}
	return out
}

// Repr quotes p with non-printable bytes escaped, truncating to strsize
// characters when strsize > 0.
func Repr(p []byte, strsize int) string {
	parts := make([]string, len(p))
	for i, b := range p {
		if b >= 0x20 && b <= 0x7e && b != '"' && b != '\\' {
			parts[i] = string(b)
		} else {
			parts[i] = fmt.Sprintf("\\x%02x", b)
		}
	}
	out := strings.Join(parts, "")
	if strsize > 0 && len(out) > strsize {
		n := len(parts)
		for n > 0 && len(out) > strsize-3 {
			n--
			out = strings.Join(parts[:n], "")
		}
		return "\"" + out + "\"..."
	}
	return "\"" + out + "\""
}
