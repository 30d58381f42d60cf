package frontend

import (
	"bufio"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

var includeRe = regexp.MustCompile(`^\s*#\s*include\s*(?:"([^"]+)"|<([^>]+)>)`)

// IncludeGraph records who included whom, starting from a main file. The
// boundary analyzer walks it upward: a header pulled in by a fixed file is
// itself fixed.
type IncludeGraph struct {
	main     string
	includer map[string]string
	system   map[string]bool
}

// Main returns the root translation-unit file.
func (g *IncludeGraph) Main() string { return g.main }

// IncluderOf returns the file that first included path.
func (g *IncludeGraph) IncluderOf(path string) (string, bool) {
	inc, ok := g.includer[path]
	return inc, ok
}

// IsSystem reports whether the path was pulled in via the <...> form or
// never resolved to a real file.
func (g *IncludeGraph) IsSystem(path string) bool {
	return g.system[path]
}

// All returns every resolved included file, sorted. Unresolved system
// headers are not listed; they have no path to return.
func (g *IncludeGraph) All() []string {
	out := make([]string, 0, len(g.includer))
	for p := range g.includer {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Known reports whether the graph has any record of the path.
func (g *IncludeGraph) Known(path string) bool {
	if path == g.main {
		return true
	}
	if _, ok := g.includer[path]; ok {
		return true
	}
	return g.system[path]
}

const maxIncludeDepth = 64

// ScanIncludes builds the inclusion graph for a main file by line-scanning
// `#include` directives, resolving the quoted form against the including
// file's directory and then the -I search path. The first includer of a
// file wins; include cycles terminate on the visited set.
func ScanIncludes(mainPath string, includeDirs []string) *IncludeGraph {
	g := &IncludeGraph{
		main:     mainPath,
		includer: make(map[string]string),
		system:   make(map[string]bool),
	}
	visited := map[string]bool{mainPath: true}
	g.scan(mainPath, includeDirs, visited, 0)
	return g
}

func (g *IncludeGraph) scan(path string, includeDirs []string, visited map[string]bool, depth int) {
	if depth >= maxIncludeDepth {
		return
	}
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		m := includeRe.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		quoted, angled := m[1], m[2]
		target := quoted
		system := false
		if target == "" {
			target = angled
			system = true
		}

		resolved := resolveInclude(target, filepath.Dir(path), includeDirs, system)
		if resolved == "" {
			// Unresolvable headers are treated as system provenance; the
			// boundary analyzer must not touch what it cannot see.
			g.system[target] = true
			continue
		}
		if system && !insideAny(resolved, includeDirs) {
			g.system[resolved] = true
		}
		if _, seen := g.includer[resolved]; !seen && resolved != g.main {
			g.includer[resolved] = path
		}
		if !visited[resolved] {
			visited[resolved] = true
			g.scan(resolved, includeDirs, visited, depth+1)
		}
	}
}

func resolveInclude(target, fromDir string, includeDirs []string, system bool) string {
	var candidates []string
	if !system {
		candidates = append(candidates, filepath.Join(fromDir, target))
	}
	for _, dir := range includeDirs {
		candidates = append(candidates, filepath.Join(dir, target))
	}
	for _, c := range candidates {
		if st, err := os.Stat(c); err == nil && !st.IsDir() {
			abs, err := filepath.Abs(c)
			if err != nil {
				return c
			}
			return abs
		}
	}
	return ""
}

func insideAny(path string, dirs []string) bool {
	for _, d := range dirs {
		abs, err := filepath.Abs(d)
		if err != nil {
			continue
		}
		if strings.HasPrefix(path, abs+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
