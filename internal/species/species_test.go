package species

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeManifest(t *testing.T, lines string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "labels.txt")
	require.NoError(t, os.WriteFile(path, []byte(lines), 0o600))
	return path
}

func TestLoadIndex(t *testing.T) {
	t.Parallel()

	path := writeManifest(t,
		"uuid-dog;mammalia;carnivora;canidae;canis;familiaris;domestic dog\n"+
			"uuid-cat;mammalia;carnivora;felidae;felis;catus;domestic cat\n")

	idx, err := LoadIndex(path)
	require.NoError(t, err)
	assert.Equal(t, 2, idx.Len())

	dog := idx.Get(0)
	assert.Equal(t, "uuid-dog", dog.UUID)
	assert.Equal(t, "Canis familiaris", dog.ScientificName())
	assert.Equal(t, "Domestic Dog", dog.DisplayName())

	cat := idx.FindByUUID("uuid-cat")
	require.NotNil(t, cat)
	assert.Equal(t, 1, cat.Index)
}

func TestLoadIndex_IncompleteColumns(t *testing.T) {
	t.Parallel()

	path := writeManifest(t, "uuid-x;mammalia\n")
	idx, err := LoadIndex(path)
	require.NoError(t, err)

	label := idx.Get(0)
	assert.Equal(t, "uuid-x", label.UUID)
	assert.Empty(t, label.CommonName)
}

func TestGet_UnknownIndexReturnsPlaceholder(t *testing.T) {
	t.Parallel()

	path := writeManifest(t, "uuid-dog;;;;canis;familiaris;dog\n")
	idx, err := LoadIndex(path)
	require.NoError(t, err)

	label := idx.Get(42)
	assert.Equal(t, "unknown-42", label.UUID)
	assert.Contains(t, label.CommonName, "unknown class")
}

func TestLoadIndex_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := LoadIndex(filepath.Join(t.TempDir(), "absent.txt"))
	assert.Error(t, err)
}

func TestSearch(t *testing.T) {
	t.Parallel()

	path := writeManifest(t,
		"uuid-dog;;;;canis;familiaris;domestic dog\n"+
			"uuid-fox;;;;vulpes;vulpes;red fox\n"+
			"uuid-cat;;;;felis;catus;domestic cat\n")
	idx, err := LoadIndex(path)
	require.NoError(t, err)

	matches := idx.Search("domestic", 10)
	assert.Len(t, matches, 2)

	limited := idx.Search("domestic", 1)
	assert.Len(t, limited, 1)
}
