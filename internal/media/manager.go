// Package media stores and deletes the per-vehicle image files referenced by
// vehicle records and served under /media/.
package media

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const defaultExtension = ".jpg"

// UploadFile is a single uploaded image: the client-supplied name (used only
// for its extension) and the content reader.
type UploadFile struct {
	Filename string
	Content  io.Reader
}

// Manager writes image files below a media root, one directory per
// normalized registration.
type Manager struct {
	root   string
	logger *slog.Logger
}

// NewManager ensures the media root exists and returns a manager rooted
// there.
func NewManager(root string, logger *slog.Logger) (*Manager, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("media root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create media root: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{root: root, logger: logger}, nil
}

// Root reports the directory the manager writes beneath, for static serving.
func (m *Manager) Root() string {
	return m.root
}

// Store writes files into {root}/{reg}/, naming each one by its ordinal
// index and a random token while keeping the original extension (default
// .jpg). It returns public relative URLs in input order. The first failed
// write aborts the operation; files already written are left for the caller
// to clean up via Remove.
func (m *Manager) Store(reg string, files []UploadFile) ([]string, error) {
	dir, err := m.vehicleDir(reg)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create media directory: %w", err)
	}

	urls := make([]string, 0, len(files))
	for idx, file := range files {
		name := fmt.Sprintf("%03d_%s%s", idx, randomToken(), extensionOf(file.Filename))
		if err := writeFile(filepath.Join(dir, name), file.Content); err != nil {
			return nil, fmt.Errorf("store image %d: %w", idx, err)
		}
		urls = append(urls, "/media/"+reg+"/"+name)
	}
	return urls, nil
}

// Remove deletes the entire media directory for the registration. A missing
// directory is not an error.
func (m *Manager) Remove(reg string) error {
	dir, err := m.vehicleDir(reg)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove media directory: %w", err)
	}
	return nil
}

// vehicleDir resolves the per-registration directory, rejecting values that
// would escape the media root.
func (m *Manager) vehicleDir(reg string) (string, error) {
	if reg == "" {
		return "", fmt.Errorf("registration is required")
	}
	if strings.ContainsAny(reg, `/\`) || strings.Contains(reg, "..") {
		return "", fmt.Errorf("invalid registration %q", reg)
	}
	return filepath.Join(m.root, reg), nil
}

func writeFile(path string, content io.Reader) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, content); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func extensionOf(filename string) string {
	ext := filepath.Ext(filepath.Base(filename))
	if ext == "" || ext == "." {
		return defaultExtension
	}
	return strings.ToLower(ext)
}

func randomToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
