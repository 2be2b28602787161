package jobs

import (
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"os"

	"github.com/nfnt/resize"
)

// shrinkJPEG re-encodes src as a JPEG no wider than width.
func shrinkJPEG(src, dst string, width int) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	img, _, err := image.Decode(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("failed to decode %s: %w", src, err)
	}

	if img.Bounds().Dx() > width {
		img = resize.Resize(uint(width), 0, img, resize.Lanczos3)
	}

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if err := jpeg.Encode(out, img, &jpeg.Options{Quality: 85}); err != nil {
		out.Close()
		return fmt.Errorf("failed to encode %s: %w", dst, err)
	}
	return out.Close()
}
