// Package rsync builds rsync invocations and parses their itemized
// change output into a categorized summary.
package rsync

import (
	"fmt"
	"log/slog"
	"strings"
)

// codeWidth is the fixed width of the itemized change field that
// precedes the path on every output line.
const codeWidth = 11

// Reason names an attribute difference detected on an otherwise
// unchanged file.
type Reason string

const (
	ReasonChecksum   Reason = "checksum"
	ReasonSize       Reason = "size"
	ReasonTime       Reason = "time"
	ReasonPermission Reason = "permission"
)

// Attribute pairs a path with the reasons its attributes differ.
type Attribute struct {
	Path    string
	Reasons []Reason
}

// ParseError reports an itemized output line with an unrecognized
// change code.
type ParseError struct {
	Line string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unrecognized itemized change line: %q", e.Line)
}

// Summary is the categorized outcome of one synchronization run.
// Only file entries are tracked; directories, symlinks and device
// nodes are skipped.
type Summary struct {
	Deleted          []string
	SentNew          []string
	SentModified     []string
	ReceivedNew      []string
	ReceivedModified []string
	Modified         []Attribute
}

// Empty reports whether the run touched no files at all.
func (s *Summary) Empty() bool {
	return len(s.Deleted) == 0 &&
		len(s.SentNew) == 0 &&
		len(s.SentModified) == 0 &&
		len(s.ReceivedNew) == 0 &&
		len(s.ReceivedModified) == 0 &&
		len(s.Modified) == 0
}

// LogValue renders the summary with empty categories dropped, so log
// output only lists what actually changed.
func (s *Summary) LogValue() slog.Value {
	attrs := make([]slog.Attr, 0, 6)
	if len(s.Deleted) > 0 {
		attrs = append(attrs, slog.Any("deleted", s.Deleted))
	}
	if len(s.SentNew) > 0 {
		attrs = append(attrs, slog.Any("sent_new", s.SentNew))
	}
	if len(s.SentModified) > 0 {
		attrs = append(attrs, slog.Any("sent_modified", s.SentModified))
	}
	if len(s.ReceivedNew) > 0 {
		attrs = append(attrs, slog.Any("received_new", s.ReceivedNew))
	}
	if len(s.ReceivedModified) > 0 {
		attrs = append(attrs, slog.Any("received_modified", s.ReceivedModified))
	}
	if len(s.Modified) > 0 {
		modified := make([]string, len(s.Modified))
		for i, attr := range s.Modified {
			reasons := make([]string, len(attr.Reasons))
			for j, r := range attr.Reasons {
				reasons[j] = string(r)
			}
			modified[i] = fmt.Sprintf("%s (%s)", attr.Path, strings.Join(reasons, ","))
		}
		attrs = append(attrs, slog.Any("modified", modified))
	}
	return slog.GroupValue(attrs...)
}

// ParseItemized parses the itemized change report of one rsync run.
// Each line carries an 11-character change code, a space and the path.
// A line whose leading code character is not one of the known kinds
// fails the whole parse.
func ParseItemized(report string) (*Summary, error) {
	s := &Summary{}

	for _, line := range strings.Split(report, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if len(line) < codeWidth+2 || line[codeWidth] != ' ' {
			return nil, &ParseError{Line: line}
		}

		code := line[:codeWidth]
		path := line[codeWidth+1:]

		switch code[0] {
		case '<', '>':
			if code[1] != 'f' {
				// Directory, symlink or device transfer: not tracked.
				continue
			}
			sent := code[0] == '<'
			switch code[2] {
			case '+':
				if sent {
					s.SentNew = append(s.SentNew, path)
				} else {
					s.ReceivedNew = append(s.ReceivedNew, path)
				}
			case 'c':
				if sent {
					s.SentModified = append(s.SentModified, path)
				} else {
					s.ReceivedModified = append(s.ReceivedModified, path)
				}
			}
		case '*':
			if strings.Contains(code, "deleting") {
				s.Deleted = append(s.Deleted, path)
			}
		case '.':
			attr := Attribute{Path: path}
			if code[2] == 'c' {
				attr.Reasons = append(attr.Reasons, ReasonChecksum)
			}
			if code[3] == 's' {
				attr.Reasons = append(attr.Reasons, ReasonSize)
			}
			if code[4] == 't' {
				attr.Reasons = append(attr.Reasons, ReasonTime)
			}
			if code[5] == 'p' {
				attr.Reasons = append(attr.Reasons, ReasonPermission)
			}
			s.Modified = append(s.Modified, attr)
		case 'c':
			// Local change/creation marker, e.g. directories being
			// created on the receiver. Nothing to report.
		default:
			return nil, &ParseError{Line: line}
		}
	}

	return s, nil
}
