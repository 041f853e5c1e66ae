// Package archive extracts downloaded release archives.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Extractor unpacks an archive file into a destination directory.
type Extractor interface {
	Extract(archivePath, destDir string) error
}

type zipExtractor struct{}

var _ Extractor = (*zipExtractor)(nil)

// NewZipExtractor returns an Extractor for zip archives, the format GitHub
// uses for source archives.
func NewZipExtractor() Extractor {
	return &zipExtractor{}
}

func (e *zipExtractor) Extract(archivePath, destDir string) error {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer reader.Close()

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return fmt.Errorf("create dest dir: %w", err)
	}

	for _, file := range reader.File {
		if err := e.extractFile(file, destDir); err != nil {
			return err
		}
	}

	return nil
}

func (e *zipExtractor) extractFile(file *zip.File, destDir string) error {
	target := filepath.Join(destDir, file.Name)

	// Security check: prevent path traversal
	if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
		return fmt.Errorf("illegal file path: %s", file.Name)
	}

	if file.FileInfo().IsDir() {
		if err := os.MkdirAll(target, 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", target, err)
		}
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("create parent dir for %s: %w", target, err)
	}

	mode := file.Mode().Perm()
	if mode == 0 {
		mode = 0644
	}

	outFile, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("create file %s: %w", target, err)
	}

	rc, err := file.Open()
	if err != nil {
		outFile.Close()
		return fmt.Errorf("open archive entry %s: %w", file.Name, err)
	}

	if _, err := io.Copy(outFile, rc); err != nil {
		rc.Close()
		outFile.Close()
		return fmt.Errorf("write file %s: %w", target, err)
	}

	rc.Close()
	return outFile.Close()
}
