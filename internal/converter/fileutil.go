package converter

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ah-its-andy/docconv/internal/domain"
)

func errToolMissing(tool string) error {
	return domain.Unavailable(fmt.Sprintf("required tool not found: %s", tool), nil)
}

// moveFile moves src to dst, replacing dst. Rename is tried first; across
// devices it falls back to copy and remove.
func moveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	// write next to dst and rename so readers never see a partial file
	tmp := dst + ".part"
	if err := copyFile(src, tmp); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to copy output to destination: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to move output into place: %w", err)
	}
	return os.Remove(src)
}

// copyFile copies a file from src to dst
func copyFile(src, dst string) error {
	sourceFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer sourceFile.Close()

	destFile, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer destFile.Close()

	if _, err := io.Copy(destFile, sourceFile); err != nil {
		return err
	}

	// Sync to ensure data is written to disk
	return destFile.Sync()
}

// findOutput locates the file a tool wrote into dir when the tool picks the
// name itself (soffice, docling). It prefers <stem>.<ext>, then any file with
// the extension.
func findOutput(dir, stem, ext string) (string, error) {
	want := filepath.Join(dir, stem+"."+ext)
	if _, err := os.Stat(want); err == nil {
		return want, nil
	}
	matches, _ := filepath.Glob(filepath.Join(dir, "*."+ext))
	if len(matches) > 0 {
		return matches[0], nil
	}
	return "", domain.Failed(fmt.Sprintf("no %s output produced", ext), nil)
}

func stemOf(path string) string {
	base := filepath.Base(path)
	return base[:len(base)-len(filepath.Ext(base))]
}
