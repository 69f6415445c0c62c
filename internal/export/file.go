package export

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/san-kum/phytosim/internal/sim"
)

// WriteFile writes tr to path in the format named by its extension, .csv
// or .json, creating parent directories as needed.
func WriteFile(path string, info RunInfo, tr *sim.Trajectory) error {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".csv" && ext != ".json" {
		return fmt.Errorf("export: unsupported extension %q (want .csv or .json)", ext)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	if ext == ".csv" {
		err = WriteCSV(w, tr)
	} else {
		err = WriteJSON(w, info, tr)
	}
	if err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return file.Close()
}
