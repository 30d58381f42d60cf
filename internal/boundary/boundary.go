// Package boundary decides which files, and therefore which declarations,
// the rewriter is allowed to touch. Classification combines system-header
// knowledge from the include scan, path heuristics, a CMake dependency walk,
// and viral propagation through the inclusion graph: a header pulled in by
// fixed code must keep the layout that code sees.
package boundary

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"intcorrect/internal/frontend"
)

// Status is the ternary classification of one file.
type Status int

const (
	Unknown Status = iota
	Modifiable
	Fixed
)

func (s Status) String() string {
	switch s {
	case Modifiable:
		return "modifiable"
	case Fixed:
		return "fixed"
	}
	return "unknown"
}

// externalPatterns are substrings that mark a path as third-party or
// system-owned, checked before any filesystem work.
var externalPatterns = []string{
	"/usr/", "/opt/",
	"node_modules", "bower_components",
	"third_party", "external",
	"build/_deps", "CMake/Modules",
}

var cmakeExternalRe = regexp.MustCompile(`(?i)(FetchContent|ExternalProject_Add|vendor|third_party)`)

// Analyzer owns the per-session caches. One instance per translation unit.
type Analyzer struct {
	allowABIChanges bool
	forceRewrite    bool
	projectRoot     string
	excludeRe       *regexp.Regexp

	includes *frontend.IncludeGraph

	fileCache  map[string]Status
	cmakeCache map[string]bool

	truncationUnsafe map[int]bool
	analyzedPairs    map[[2]int]bool
}

// Options configures an Analyzer.
type Options struct {
	AllowABIChanges bool
	ForceRewrite    bool
	// ProjectRoot, when set, marks every file outside it as fixed.
	ProjectRoot string
	// Exclude is a compiled user regex; matching files are fixed.
	Exclude *regexp.Regexp
}

// NewAnalyzer builds an analyzer bound to one unit's include graph.
func NewAnalyzer(opts Options, includes *frontend.IncludeGraph) *Analyzer {
	root := opts.ProjectRoot
	if root != "" {
		if abs, err := filepath.Abs(root); err == nil {
			root = abs
		}
	}
	return &Analyzer{
		allowABIChanges:  opts.AllowABIChanges,
		forceRewrite:     opts.ForceRewrite,
		projectRoot:      root,
		excludeRe:        opts.Exclude,
		includes:         includes,
		fileCache:        make(map[string]Status),
		cmakeCache:       make(map[string]bool),
		truncationUnsafe: make(map[int]bool),
		analyzedPairs:    make(map[[2]int]bool),
	}
}

// IsBoundaryFixed is the single gate consulted by the collector and the
// rewriter. Missing information always answers "fixed".
func (a *Analyzer) IsBoundaryFixed(d *frontend.Decl) bool {
	if d == nil {
		return true
	}
	if d.FromMacroDecl {
		// A declaration recovered from a macro body has no rewritable
		// location of its own.
		return true
	}
	if d.File == "" || d.Line <= 0 {
		return true
	}
	if a.excludeRe != nil && a.excludeRe.MatchString(d.File) {
		return true
	}
	return a.ClassifyFile(d.File) == Fixed
}

// CanRewriteField layers the ABI and structural gates on top of the
// boundary check.
func (a *Analyzer) CanRewriteField(d *frontend.Decl) bool {
	if d == nil || d.Kind != frontend.KindField {
		return false
	}
	if a.IsBoundaryFixed(d) {
		return false
	}
	if !a.allowABIChanges {
		return false
	}
	if d.IsBitfield {
		return false
	}
	if d.Record != nil && (d.Record.IsUnion || d.Record.Packed) {
		return false
	}
	if a.truncationUnsafe[d.ID] {
		return false
	}
	return true
}

// CanRewriteTypedef gates the punt-to-typedef strategy: only a user-owned
// typedef may have its underlying type changed.
func (a *Analyzer) CanRewriteTypedef(d *frontend.Decl) bool {
	if d == nil || d.Kind != frontend.KindTypedef {
		return false
	}
	return !a.IsBoundaryFixed(d)
}

// ClassifyFile resolves the boundary status of one file identity, caching
// the result for the session.
func (a *Analyzer) ClassifyFile(path string) Status {
	if st, ok := a.fileCache[path]; ok && st != Unknown {
		return st
	}
	st := a.classify(path, make(map[string]bool))
	a.fileCache[path] = st
	return st
}

func (a *Analyzer) classify(path string, walking map[string]bool) Status {
	if walking[path] {
		return Modifiable // include cycle; do not let it poison the walk
	}
	walking[path] = true

	if st, ok := a.fileCache[path]; ok && st != Unknown {
		return st
	}

	st := a.classifyUncached(path, walking)
	a.fileCache[path] = st
	return st
}

func (a *Analyzer) classifyUncached(path string, walking map[string]bool) Status {
	// The main file is always modifiable; synthetic test buffers have no
	// on-disk entry but must still be editable.
	if a.includes != nil && path == a.includes.Main() {
		return Modifiable
	}
	if a.includes != nil {
		if a.includes.IsSystem(path) {
			return Fixed
		}
		if !a.includes.Known(path) {
			// Unknown provenance (memory buffer, builtin): conservative.
			return Fixed
		}
	}
	if a.isExternalPath(path) {
		return Fixed
	}
	// Viral fixedness: inherit from whoever included us.
	if a.includes != nil {
		if includer, ok := a.includes.IncluderOf(path); ok && includer != path {
			if a.classify(includer, walking) == Fixed {
				return Fixed
			}
		}
	}
	return Modifiable
}

func (a *Analyzer) isExternalPath(path string) bool {
	if a.forceRewrite {
		return false
	}
	for _, pat := range externalPatterns {
		if strings.Contains(path, pat) {
			return true
		}
	}
	if a.projectRoot != "" {
		abs, err := filepath.Abs(path)
		if err == nil && !strings.HasPrefix(abs, a.projectRoot) {
			return true
		}
	}
	return a.analyzeCMakeDependency(filepath.Dir(path))
}

// analyzeCMakeDependency walks from dir toward the filesystem root looking
// for a build file that declares vendored or fetched content. Results are
// cached per directory. An unreadable build file is no signal; the walk
// continues upward.
func (a *Analyzer) analyzeCMakeDependency(dir string) bool {
	if dir == "" {
		return false
	}
	if cached, ok := a.cmakeCache[dir]; ok {
		return cached
	}
	if dir == "/" || dir == "." {
		a.cmakeCache[dir] = false
		return false
	}

	cmakePath := filepath.Join(dir, "CMakeLists.txt")
	external := false

	if _, err := os.Stat(cmakePath); err == nil {
		// Reaching the project root's own build file means user code,
		// regardless of content.
		if a.projectRoot != "" {
			absCMake, err1 := filepath.Abs(cmakePath)
			rootCMake := filepath.Join(a.projectRoot, "CMakeLists.txt")
			if err1 == nil && absCMake == rootCMake {
				a.cmakeCache[dir] = false
				return false
			}
		}
		content, err := os.ReadFile(cmakePath)
		if err == nil && cmakeExternalRe.Match(content) {
			external = true
		}
	}

	if !external {
		parent := filepath.Dir(dir)
		if parent != dir {
			if a.projectRoot != "" {
				absParent, err := filepath.Abs(parent)
				if err == nil && !strings.HasPrefix(absParent, a.projectRoot) {
					// Walked past the project root without a verdict. Files
					// outside the root are caught by the prefix check before
					// this walk ever starts.
					a.cmakeCache[dir] = false
					return false
				}
			}
			external = a.analyzeCMakeDependency(parent)
		}
	}

	a.cmakeCache[dir] = external
	return external
}
