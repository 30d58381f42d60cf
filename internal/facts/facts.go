// Package facts implements the cross-translation-unit fact exchange: one
// TAB-separated record per symbol, merged by integer-width rank during the
// reduce phase.
package facts

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
)

// ErrNotFound signals an absent fact file; callers treat it as an empty,
// pre-convergence state rather than a failure.
var ErrNotFound = errors.New("fact file not found")

// SymbolFact is one resolved-type record keyed by USR.
type SymbolFact struct {
	USR       string
	TypeName  string
	IsField   bool
	IsTypedef bool
}

// Equal is whole-record equality, the basis of the convergence check.
func (f SymbolFact) Equal(other SymbolFact) bool {
	return f == other
}

// Write serializes facts one per line, sorted by USR for stable diffs.
func Write(path string, m map[string]SymbolFact) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to open fact file for write: %w", err)
	}
	defer f.Close()

	usrs := make([]string, 0, len(m))
	for usr := range m {
		usrs = append(usrs, usr)
	}
	sort.Strings(usrs)

	w := bufio.NewWriter(f)
	for _, usr := range usrs {
		fact := m[usr]
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			fact.USR, fact.TypeName, bit(fact.IsField), bit(fact.IsTypedef))
	}
	return w.Flush()
}

func bit(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// Read parses a fact file. Blank lines and '#' comments are skipped, as are
// records with fewer than three fields. Three-field records are legacy and
// default IsTypedef to false.
func Read(path string) ([]SymbolFact, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to open fact file: %w", err)
	}
	defer f.Close()

	var out []SymbolFact
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, "\t")
		if len(parts) < 3 {
			continue
		}
		fact := SymbolFact{
			USR:      parts[0],
			TypeName: parts[1],
			IsField:  parts[2] == "1",
		}
		if len(parts) >= 4 {
			fact.IsTypedef = parts[3] == "1"
		}
		out = append(out, fact)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read fact file: %w", err)
	}
	return out, nil
}

// typeRank is the fallback width ranking used where no type oracle is
// available (merging spellings from other translation units). size_t and
// ptrdiff_t share rank 5, which is correct on LP64 targets only.
func typeRank(t string) int {
	switch strings.TrimSpace(t) {
	case "char", "unsigned char", "signed char":
		return 1
	case "short", "unsigned short":
		return 2
	case "int", "unsigned int", "unsigned":
		return 3
	case "long", "unsigned long":
		return 4
	case "size_t", "std::size_t", "ptrdiff_t", "std::ptrdiff_t":
		return 5
	case "long long", "unsigned long long":
		return 6
	}
	return 0
}

// Merge conflict-resolves raw facts by USR: the wider rank wins, ties keep
// the first write, and IsTypedef is sticky across inputs.
func Merge(raw []SymbolFact) map[string]SymbolFact {
	merged := make(map[string]SymbolFact, len(raw))
	for _, fact := range raw {
		existing, ok := merged[fact.USR]
		if !ok {
			merged[fact.USR] = fact
			continue
		}
		if typeRank(fact.TypeName) > typeRank(existing.TypeName) {
			existing.TypeName = fact.TypeName
		}
		if fact.IsTypedef {
			existing.IsTypedef = true
		}
		if fact.IsField {
			existing.IsField = true
		}
		merged[fact.USR] = existing
	}
	return merged
}

// IsConverged reports whether the on-disk global fact file already equals
// the newly merged map. An absent file means pre-convergence.
func IsConverged(globalPath string, newFacts map[string]SymbolFact) bool {
	onDisk, err := Read(globalPath)
	if err != nil {
		return false
	}
	if len(onDisk) != len(newFacts) {
		return false
	}
	for _, fact := range onDisk {
		other, ok := newFacts[fact.USR]
		if !ok || !fact.Equal(other) {
			return false
		}
	}
	return true
}
