// Package gitdiff parses rename-aware git change reports into a
// path-level change map together with the ancestor closure of every
// changed path's directory.
package gitdiff

import (
	"fmt"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Action classifies what happened to a path between two revisions.
type Action string

const (
	Added    Action = "added"
	Modified Action = "modified"
	Renamed  Action = "renamed"
	Deleted  Action = "deleted"
	Copied   Action = "copied"
)

var actions = map[byte]Action{
	'A': Added,
	'M': Modified,
	'R': Renamed,
	'D': Deleted,
	'C': Copied,
}

// ChangeRecord is one entry of a change report. SimilarityScore and
// SourcePath are only set for renames and copies.
type ChangeRecord struct {
	Action          Action
	SimilarityScore int
	SourcePath      string
}

// ParseError reports a change-report line that does not match the
// expected grammar.
type ParseError struct {
	Line string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed change-report line: %q", e.Line)
}

// lineRe matches one line of `git diff --name-status` output with
// rename/copy detection enabled: an action letter, an optional
// similarity score, the path, and a second path for renames/copies.
var lineRe = regexp.MustCompile(`^([AMDRC])(\d+)?\s+(\S+)(\s+(\S+))?$`)

// Diff is the parsed change set between two revisions. It is built once
// and read-only afterwards.
type Diff struct {
	From string
	To   string

	changes     map[string]ChangeRecord
	directories map[string]struct{}
}

// Parse builds a Diff from the raw change report between from and to.
// The whole report is rejected on the first malformed line.
func Parse(from, to, report string) (*Diff, error) {
	d := &Diff{
		From:        from,
		To:          to,
		changes:     make(map[string]ChangeRecord),
		directories: make(map[string]struct{}),
	}

	for _, line := range strings.Split(report, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}

		m := lineRe.FindStringSubmatch(line)
		if m == nil {
			return nil, &ParseError{Line: line}
		}

		action := actions[m[1][0]]
		rec := ChangeRecord{Action: action}
		target := m[3]

		switch action {
		case Renamed, Copied:
			// Second path is the resulting path, first is where it
			// came from.
			if m[5] == "" {
				return nil, &ParseError{Line: line}
			}
			if m[2] != "" {
				rec.SimilarityScore, _ = strconv.Atoi(m[2])
			}
			rec.SourcePath = m[3]
			target = m[5]
		default:
			if m[5] != "" {
				return nil, &ParseError{Line: line}
			}
		}

		d.changes[target] = rec
		d.addAncestors(target)
	}

	return d, nil
}

// addAncestors walks from the path's containing directory up to the
// root, inserting every directory. The walk stops early when it hits a
// directory that is already present, which also bounds the work for
// deep trees.
func (d *Diff) addAncestors(p string) {
	for dir := path.Dir(p); ; dir = path.Dir(dir) {
		if _, ok := d.directories[dir]; ok {
			return
		}
		d.directories[dir] = struct{}{}
		if dir == path.Dir(dir) {
			return
		}
	}
}

// HasFile reports whether the given path changed between the two
// revisions.
func (d *Diff) HasFile(p string) bool {
	_, ok := d.changes[p]
	return ok
}

// HasDirectory reports whether the given directory contains a changed
// path, directly or transitively.
func (d *Diff) HasDirectory(p string) bool {
	_, ok := d.directories[p]
	return ok
}

// Change returns the record for a changed path.
func (d *Diff) Change(p string) (ChangeRecord, bool) {
	rec, ok := d.changes[p]
	return rec, ok
}

// Files returns the changed paths in sorted order.
func (d *Diff) Files() []string {
	files := make([]string, 0, len(d.changes))
	for p := range d.changes {
		files = append(files, p)
	}
	sort.Strings(files)
	return files
}

// Directories returns the ancestor closure in sorted order.
func (d *Diff) Directories() []string {
	dirs := make([]string, 0, len(d.directories))
	for p := range d.directories {
		dirs = append(dirs, p)
	}
	sort.Strings(dirs)
	return dirs
}

// Len returns the number of changed paths.
func (d *Diff) Len() int {
	return len(d.changes)
}
