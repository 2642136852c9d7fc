package media

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	manager, err := NewManager(t.TempDir(), nil)
	require.NoError(t, err)
	return manager
}

func TestStoreNamesAndOrder(t *testing.T) {
	manager := newTestManager(t)

	urls, err := manager.Store("MH12AB1234", []UploadFile{
		{Filename: "front.png", Content: strings.NewReader("front")},
		{Filename: "noext", Content: strings.NewReader("side")},
		{Filename: "rear.JPEG", Content: strings.NewReader("rear")},
	})
	require.NoError(t, err)
	require.Len(t, urls, 3)

	pattern := regexp.MustCompile(`^/media/MH12AB1234/(\d{3})_[0-9a-f]{32}(\.[a-z]+)$`)
	wantExt := []string{".png", ".jpg", ".jpeg"}
	for i, url := range urls {
		match := pattern.FindStringSubmatch(url)
		require.NotNil(t, match, "url %q does not match naming scheme", url)
		assert.Equal(t, i, atoi(t, match[1]), "urls must preserve input order")
		assert.Equal(t, wantExt[i], match[2])

		path := filepath.Join(manager.Root(), strings.TrimPrefix(url, "/media/"))
		_, err := os.Stat(path)
		assert.NoError(t, err, "file behind %q must exist", url)
	}
}

func TestStoreNoFiles(t *testing.T) {
	manager := newTestManager(t)

	urls, err := manager.Store("MH12AB1234", nil)
	require.NoError(t, err)
	assert.Empty(t, urls)

	_, err = os.Stat(filepath.Join(manager.Root(), "MH12AB1234"))
	assert.True(t, os.IsNotExist(err), "no directory should be created without files")
}

func TestRemoveIdempotent(t *testing.T) {
	manager := newTestManager(t)

	_, err := manager.Store("MH12AB1234", []UploadFile{
		{Filename: "a.jpg", Content: strings.NewReader("a")},
	})
	require.NoError(t, err)

	require.NoError(t, manager.Remove("MH12AB1234"))
	_, err = os.Stat(filepath.Join(manager.Root(), "MH12AB1234"))
	assert.True(t, os.IsNotExist(err))

	assert.NoError(t, manager.Remove("MH12AB1234"), "removing a missing directory is not an error")
}

func TestRejectsPathEscapes(t *testing.T) {
	manager := newTestManager(t)

	for _, reg := range []string{"", "../up", `a\b`, "a/b", "a..b"} {
		_, err := manager.Store(reg, []UploadFile{{Filename: "a.jpg", Content: strings.NewReader("a")}})
		assert.Error(t, err, "reg=%q", reg)
	}
}

func atoi(t *testing.T, s string) int {
	t.Helper()
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return n
}
