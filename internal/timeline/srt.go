package timeline

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/keagan/cutforge/pkg/util"
)

// WriteSRT renders segments as SubRip cues. The translated line follows the
// primary one when bilingual is set.
func WriteSRT(w io.Writer, segments []SubtitleSegment, bilingual bool) error {
	bw := bufio.NewWriter(w)
	for i, seg := range segments {
		fmt.Fprintf(bw, "%d\n", i+1)
		fmt.Fprintf(bw, "%s --> %s\n", util.FormatSRTTimestamp(seg.StartMs), util.FormatSRTTimestamp(seg.EndMs))
		bw.WriteString(strings.TrimSpace(seg.Text))
		bw.WriteString("\n")
		if bilingual && strings.TrimSpace(seg.TranslatedText) != "" {
			bw.WriteString(strings.TrimSpace(seg.TranslatedText))
			bw.WriteString("\n")
		}
		bw.WriteString("\n")
	}
	return bw.Flush()
}

// WriteSRTFile writes segments to path.
func WriteSRTFile(path string, segments []SubtitleSegment, bilingual bool) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create caption file: %w", err)
	}
	if err := WriteSRT(f, segments, bilingual); err != nil {
		f.Close()
		return fmt.Errorf("failed to write caption file: %w", err)
	}
	return f.Close()
}
