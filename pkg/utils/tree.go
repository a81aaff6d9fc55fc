package utils

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	indentPrefix    = "    "
	entryPrefix     = "├── "
	lastEntryPrefix = "└── "
	verticalLine    = "│   "
)

// DefaultTreeFileLimit is how many files per directory are listed before the rest are summarized
const DefaultTreeFileLimit = 20

// GenerateAndSaveTreeStructure walks targetDir and writes a text tree of it to outputFilePath.
// Directories with more than fileLimit files list the first fileLimit and a "... N more" line,
// since books/ and images/ hold thousands of entries after a full run. fileLimit <= 0 lists everything.
func GenerateAndSaveTreeStructure(targetDir, outputFilePath string, fileLimit int, log *logrus.Entry) error {
	if _, err := os.Stat(targetDir); os.IsNotExist(err) {
		return fmt.Errorf("target directory '%s' does not exist: %w", targetDir, err)
	} else if err != nil {
		return fmt.Errorf("error checking target directory '%s': %w", targetDir, err)
	}

	file, err := os.Create(outputFilePath)
	if err != nil {
		return fmt.Errorf("%w: creating tree file '%s': %w", ErrFilesystem, outputFilePath, err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	if err := WriteTree(writer, targetDir, fileLimit, log); err != nil {
		return err
	}
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("%w: flushing tree file '%s': %w", ErrFilesystem, outputFilePath, err)
	}
	log.Debugf("Wrote output tree for %s to %s", targetDir, outputFilePath)
	return nil
}

// WriteTree writes the tree of targetDir to w.
func WriteTree(w io.Writer, targetDir string, fileLimit int, log *logrus.Entry) error {
	if _, err := fmt.Fprintf(w, "%s/\n", filepath.Base(filepath.Clean(targetDir))); err != nil {
		return err
	}
	if err := walkDirRecursive(w, targetDir, "", fileLimit, log); err != nil {
		log.Errorf("Error occurred during recursive walk for '%s': %v", targetDir, err)
		return fmt.Errorf("error generating tree structure for '%s': %w", targetDir, err)
	}
	return nil
}

// walkDirRecursive performs the recursive directory walk and writes entries
func walkDirRecursive(w io.Writer, dirPath string, currentIndent string, fileLimit int, log *logrus.Entry) error {
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		log.Warnf("Failed to read directory '%s': %v", dirPath, err)
		return fmt.Errorf("failed to read directory '%s': %w", dirPath, err)
	}

	// Directories first, then alphabetically
	slices.SortFunc(entries, func(a, b os.DirEntry) int {
		if a.IsDir() && !b.IsDir() {
			return -1
		}
		if !a.IsDir() && b.IsDir() {
			return 1
		}
		return strings.Compare(strings.ToLower(a.Name()), strings.ToLower(b.Name()))
	})

	shown := entries
	hidden := 0
	if fileLimit > 0 {
		shown = shown[:0:0]
		files := 0
		for _, entry := range entries {
			if !entry.IsDir() {
				files++
				if files > fileLimit {
					hidden++
					continue
				}
			}
			shown = append(shown, entry)
		}
	}

	for i, entry := range shown {
		isLast := i == len(shown)-1 && hidden == 0

		connector := entryPrefix
		if isLast {
			connector = lastEntryPrefix
		}

		name := entry.Name()
		if entry.IsDir() {
			name += "/"
		}
		if _, writeErr := fmt.Fprintf(w, "%s%s%s\n", currentIndent, connector, name); writeErr != nil {
			return writeErr
		}

		if entry.IsDir() {
			nextIndent := currentIndent + verticalLine
			if isLast {
				nextIndent = currentIndent + indentPrefix
			}
			if err := walkDirRecursive(w, filepath.Join(dirPath, entry.Name()), nextIndent, fileLimit, log); err != nil {
				return err
			}
		}
	}

	if hidden > 0 {
		if _, err := fmt.Fprintf(w, "%s%s... %d more files\n", currentIndent, lastEntryPrefix, hidden); err != nil {
			return err
		}
	}
	return nil
}
