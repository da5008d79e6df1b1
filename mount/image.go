package mount

import (
	"fmt"
	"os"
	"path/filepath"
)

// saveImage writes a captured frame as a binary PGM file for offline
// inspection. An empty dir selects the system temp directory.
func saveImage(dir string, img Image) error {
	if dir == "" {
		dir = os.TempDir()
	}
	maxval := 255
	if img.BitDepth > 8 {
		maxval = 65535
	}
	name := filepath.Join(dir, "capture-"+img.TakenAt.UTC().Format("20060102T150405.000")+".pgm")
	header := fmt.Sprintf("P5\n%d %d\n%d\n", img.Width, img.Height, maxval)
	return os.WriteFile(name, append([]byte(header), img.Pix...), 0644)
}
