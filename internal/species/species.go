// Package species loads and queries the classifier label manifest.
// Each line of the manifest describes one class in semicolon-separated
// columns: uuid;class;order;family;genus;species;common_name. The class
// index is the zero-based line number.
package species

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/zdex/zdex-go/internal/errors"
)

// Label represents a single class entry from the label manifest.
type Label struct {
	Index        int
	UUID         string
	KingdomClass string
	Order        string
	Family       string
	Genus        string
	Species      string
	CommonName   string
}

// ScientificName returns the binomial name when genus and species are known,
// falling back to whichever part is available.
func (l *Label) ScientificName() string {
	genus := strings.TrimSpace(l.Genus)
	sp := strings.TrimSpace(l.Species)
	switch {
	case genus != "" && sp != "":
		return capitalize(genus) + " " + sp
	case genus != "":
		return capitalize(genus)
	case sp != "":
		return sp
	default:
		return l.CommonName
	}
}

// DisplayName returns a friendly name for UI display.
func (l *Label) DisplayName() string {
	if l.CommonName != "" {
		return strings.Title(l.CommonName) //nolint:staticcheck // labels are plain ASCII species names
	}
	return l.ScientificName()
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}

// Index provides lookup over the loaded label manifest.
type Index struct {
	labels []Label
	byUUID map[string]*Label
}

// LoadIndex reads the label manifest from the given path.
func LoadIndex(path string) (*Index, error) {
	file, err := os.Open(path) //nolint:gosec // G304: path comes from settings
	if err != nil {
		return nil, errors.New(fmt.Errorf("opening label file %s: %w", path, err)).
			Component("species").
			Category(errors.CategoryLabelLoad).
			Build()
	}
	defer file.Close() //nolint:errcheck // read-only file

	idx := &Index{byUUID: make(map[string]*Label)}
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.Split(line, ";")
		// Pad to 7 columns so incomplete entries do not shift fields.
		for len(parts) < 7 {
			parts = append(parts, "")
		}
		label := Label{
			Index:        len(idx.labels),
			UUID:         parts[0],
			KingdomClass: parts[1],
			Order:        parts[2],
			Family:       parts[3],
			Genus:        parts[4],
			Species:      parts[5],
			CommonName:   parts[6],
		}
		idx.labels = append(idx.labels, label)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.New(fmt.Errorf("reading label file %s: %w", path, err)).
			Component("species").
			Category(errors.CategoryLabelLoad).
			Build()
	}

	// Build the UUID index only once the slice has stopped growing, so the
	// pointers stay valid.
	idx.byUUID = make(map[string]*Label, len(idx.labels))
	for i := range idx.labels {
		idx.byUUID[idx.labels[i].UUID] = &idx.labels[i]
	}
	return idx, nil
}

// Len returns the number of labels in the index.
func (idx *Index) Len() int {
	return len(idx.labels)
}

// Get returns the label for a class index. Unknown indexes produce a
// placeholder label so a misbehaving classifier cannot panic the pipeline.
func (idx *Index) Get(classIndex int) Label {
	if classIndex < 0 || classIndex >= len(idx.labels) {
		return Label{
			Index:      classIndex,
			UUID:       fmt.Sprintf("unknown-%d", classIndex),
			CommonName: fmt.Sprintf("unknown class %d", classIndex),
		}
	}
	return idx.labels[classIndex]
}

// FindByUUID returns the label with the given UUID, or nil.
func (idx *Index) FindByUUID(uuid string) *Label {
	return idx.byUUID[uuid]
}

// Search returns up to limit labels whose display name contains the query,
// case-insensitively.
func (idx *Index) Search(query string, limit int) []Label {
	query = strings.ToLower(query)
	var matches []Label
	for i := range idx.labels {
		if strings.Contains(strings.ToLower(idx.labels[i].DisplayName()), query) {
			matches = append(matches, idx.labels[i])
			if len(matches) >= limit {
				break
			}
		}
	}
	return matches
}
