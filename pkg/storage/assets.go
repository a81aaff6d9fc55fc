package storage

import (
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"tululu-scraper/pkg/utils"
)

// AssetStore writes downloaded files under a fixed root directory
type AssetStore struct {
	root string
	log  *logrus.Entry
}

// NewAssetStore creates an AssetStore rooted at root
func NewAssetStore(root string, log *logrus.Entry) *AssetStore {
	if root == "" {
		root = "."
	}
	return &AssetStore{root: root, log: log}
}

// Root returns the directory all assets are written under
func (s *AssetStore) Root() string {
	return s.root
}

// Path returns where relPath would be written, after sanitizing each component.
// The result always stays under Root.
func (s *AssetStore) Path(relPath string) string {
	return filepath.Join(s.root, utils.SanitizeRelPath(relPath))
}

// Save writes data to relPath under the root, creating parent directories and
// overwriting any existing file. Returns the path actually written.
func (s *AssetStore) Save(data []byte, relPath string) (string, error) {
	path := s.Path(relPath)
	if err := writeFileAtomic(path, data, 0644); err != nil {
		return "", err
	}
	s.log.WithFields(logrus.Fields{"path": path, "bytes": len(data)}).Debug("Saved asset")
	return path, nil
}

// SaveLines writes each line followed by a newline
func (s *AssetStore) SaveLines(lines []string, relPath string) (string, error) {
	var b strings.Builder
	for _, line := range lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return s.Save([]byte(b.String()), relPath)
}
