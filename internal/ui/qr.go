package ui

import (
	"fmt"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

// RenderQR draws content as a QR code out of half-block characters, two modules per text row.
// Dark modules are drawn as spaces so the code scans on dark terminals.
func RenderQR(content string) (string, error) {
	if content == "" {
		return "", fmt.Errorf("empty QR content")
	}

	q, err := qrcode.New(content, qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("failed to encode QR code: %w", err)
	}
	return halfBlocks(q.Bitmap()), nil
}

// halfBlocks packs two bitmap rows into one line of text.
func halfBlocks(bitmap [][]bool) string {
	var b strings.Builder
	for y := 0; y < len(bitmap); y += 2 {
		for x := range bitmap[y] {
			top := bitmap[y][x]
			bottom := y+1 < len(bitmap) && bitmap[y+1][x]
			switch {
			case top && bottom:
				b.WriteRune(' ')
			case top:
				b.WriteRune('▄')
			case bottom:
				b.WriteRune('▀')
			default:
				b.WriteRune('█')
			}
		}
		if y+2 < len(bitmap) {
			b.WriteRune('\n')
		}
	}
	return b.String()
}
