// Package testsupport holds fixture, golden file and database helpers shared by
// package tests.
package testsupport

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

// UpdateGoldenEnv, when non-empty, makes AssertGolden rewrite golden files
// instead of comparing against them.
const UpdateGoldenEnv = "UPDATE_GOLDEN"

// FixturePath returns the path of a fixture under the package testdata directory.
func FixturePath(filename string) string {
	return filepath.Join("testdata", filename)
}

// GoldenPath returns the path of a golden file under testdata/golden.
func GoldenPath(filename string) string {
	return filepath.Join("testdata", "golden", filename)
}

// LoadFixtureJSON decodes the JSON fixture at path into dest. Unknown fields fail
// the test so fixtures stay in step with the types they describe.
func LoadFixtureJSON(t testing.TB, path string, dest any) {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to load fixture %s: %v", path, err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		t.Fatalf("failed to decode fixture %s: %v", path, err)
	}
}

// AssertGolden compares actual with the golden file at path byte for byte.
// With UPDATE_GOLDEN set the file is rewritten and the comparison skipped.
func AssertGolden(t testing.TB, path string, actual []byte) {
	t.Helper()

	if os.Getenv(UpdateGoldenEnv) != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("failed to create %s: %v", filepath.Dir(path), err)
		}
		if err := os.WriteFile(path, actual, 0o644); err != nil {
			t.Fatalf("failed to write golden file %s: %v", path, err)
		}
		return
	}

	expected, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read golden file %s (run with %s=1 to create it): %v", path, UpdateGoldenEnv, err)
	}

	if !bytes.Equal(actual, expected) {
		t.Errorf("output does not match %s:\nwant:\n%s\ngot:\n%s", path, expected, actual)
	}
}
