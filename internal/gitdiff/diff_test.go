package gitdiff

import (
	"errors"
	"reflect"
	"testing"
)

func TestParse_SingleAddition(t *testing.T) {
	diff, err := Parse("abc123", "def456", "A\tfoo/bar.txt")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}

	rec, ok := diff.Change("foo/bar.txt")
	if !ok {
		t.Fatal("Expected foo/bar.txt in changes")
	}
	if rec.Action != Added {
		t.Errorf("Expected action %q, got %q", Added, rec.Action)
	}

	for _, dir := range []string{"foo", "."} {
		if !diff.HasDirectory(dir) {
			t.Errorf("Expected directory %q in ancestor closure", dir)
		}
	}
}

func TestParse_Rename(t *testing.T) {
	diff, err := Parse("abc123", "def456", "R90\told/name.txt\tnew/name.txt")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}

	rec, ok := diff.Change("new/name.txt")
	if !ok {
		t.Fatal("Expected new/name.txt in changes")
	}
	if rec.Action != Renamed {
		t.Errorf("Expected action %q, got %q", Renamed, rec.Action)
	}
	if rec.SimilarityScore != 90 {
		t.Errorf("Expected similarity score 90, got %d", rec.SimilarityScore)
	}
	if rec.SourcePath != "old/name.txt" {
		t.Errorf("Expected source path old/name.txt, got %q", rec.SourcePath)
	}

	if diff.HasFile("old/name.txt") {
		t.Error("Source path of a rename must not appear as a changed file")
	}
}

func TestParse_Report(t *testing.T) {
	report := "A\tsrc/app/main.py\n" +
		"M\tREADME.md\n" +
		"D\tsrc/legacy/old.py\n" +
		"C75\tdocs/a.md\tdocs/copies/b.md\n" +
		"\n"

	diff, err := Parse("abc123", "def456", report)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}

	if diff.Len() != 4 {
		t.Errorf("Expected 4 changes, got %d", diff.Len())
	}

	expectedDirs := []string{".", "docs", "docs/copies", "src", "src/app", "src/legacy"}
	if got := diff.Directories(); !reflect.DeepEqual(got, expectedDirs) {
		t.Errorf("Directories() = %v, expected %v", got, expectedDirs)
	}
}

func TestParse_AncestorClosure(t *testing.T) {
	diff, err := Parse("a", "b", "A\ta/b/c/d/e.txt\nM\ta/b/x.txt")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}

	for _, dir := range []string{".", "a", "a/b", "a/b/c", "a/b/c/d"} {
		if !diff.HasDirectory(dir) {
			t.Errorf("Expected ancestor directory %q", dir)
		}
	}

	if diff.HasDirectory("a/b/c/d/e.txt") {
		t.Error("Changed file must not appear in directory set")
	}
}

func TestParse_MalformedLines(t *testing.T) {
	testCases := []struct {
		name   string
		report string
	}{
		{"unknown action", "X\tfoo.txt"},
		{"missing path", "A"},
		{"rename without target", "R90\told.txt"},
		{"extra path on addition", "A\tfoo.txt\tbar.txt"},
		{"lowercase action", "a\tfoo.txt"},
		{"garbage", "not a diff line at all?"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse("a", "b", tc.report)
			if err == nil {
				t.Fatalf("Expected Parse(%q) to fail", tc.report)
			}

			var parseErr *ParseError
			if !errors.As(err, &parseErr) {
				t.Fatalf("Expected ParseError, got %T", err)
			}
		})
	}
}

func TestParse_EmptyReport(t *testing.T) {
	diff, err := Parse("a", "b", "\n\n")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if diff.Len() != 0 {
		t.Errorf("Expected empty diff, got %d changes", diff.Len())
	}
	if len(diff.Directories()) != 0 {
		t.Errorf("Expected empty directory set, got %v", diff.Directories())
	}
}

func TestDiff_Accessors(t *testing.T) {
	diff, err := Parse("a", "b", "M\tapp/config.yaml")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}

	if !diff.HasFile("app/config.yaml") {
		t.Error("HasFile should report the changed path")
	}
	if diff.HasFile("app/other.yaml") {
		t.Error("HasFile should not report unrelated paths")
	}
	if !diff.HasDirectory("app") {
		t.Error("HasDirectory should report the containing directory")
	}

	files := diff.Files()
	if !reflect.DeepEqual(files, []string{"app/config.yaml"}) {
		t.Errorf("Files() = %v", files)
	}
}
