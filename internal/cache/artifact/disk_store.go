package artifact

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	artifactrepo "variantforge/internal/repository/artifact"
)

// DiskStore is a local-filesystem artifact origin for development runs
// without object storage. URLs use the file scheme so a browser on the same
// host can open the stored HTML directly.
type DiskStore struct {
	root string
}

func NewDiskStore(root string) *DiskStore {
	return &DiskStore{root: strings.TrimSpace(root)}
}

func (s *DiskStore) Put(_ context.Context, path string, content []byte) (string, error) {
	fullPath, err := s.pathFor(path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(fullPath, content, 0o644); err != nil {
		return "", err
	}
	return "file://" + fullPath, nil
}

func (s *DiskStore) Get(_ context.Context, path string) ([]byte, error) {
	fullPath, err := s.pathFor(strings.TrimPrefix(path, "file://"))
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, artifactrepo.ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

func (s *DiskStore) GetURL(_ context.Context, path string) (string, error) {
	fullPath, err := s.pathFor(path)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(fullPath); err != nil {
		if os.IsNotExist(err) {
			return "", artifactrepo.ErrNotFound
		}
		return "", err
	}
	return "file://" + fullPath, nil
}

func (s *DiskStore) pathFor(path string) (string, error) {
	root := strings.TrimSpace(s.root)
	if root == "" {
		return "", fmt.Errorf("root is required")
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return "", fmt.Errorf("path is required")
	}
	if strings.Contains(path, "..") || filepath.IsAbs(path) {
		return "", fmt.Errorf("invalid path: %s", path)
	}
	return filepath.Join(root, filepath.FromSlash(path)), nil
}
