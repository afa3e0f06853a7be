package renderer

import (
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
)

// CaptureToFile reads back the device's colour target and writes it
// to path. The extension picks the encoding: .png writes PNG,
// anything else writes BMP. The directory is created if missing.
func CaptureToFile(device Device, path string) error {
	img, err := device.CaptureColour()
	if err != nil {
		return fmt.Errorf("capture colour target: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create capture directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create capture file: %w", err)
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".png") {
		err = png.Encode(f, img)
	} else {
		err = bmp.Encode(f, img)
	}
	if err != nil {
		return fmt.Errorf("encode capture: %w", err)
	}
	return nil
}
