package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type sample struct {
	Name  string `yaml:"name"`
	Limit int    `yaml:"limit"`
}

var errEmptyName = errors.New("name is empty")

func (s *sample) Validate() error {
	if s.Name == "" {
		return errEmptyName
	}
	return nil
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("SAMPLE_NAME", "docs")
	p := writeFile(t, "name: ${SAMPLE_NAME}\nlimit: 3\n")

	var s sample
	if err := Load(p, &s); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Name != "docs" || s.Limit != 3 {
		t.Fatalf("got %+v", s)
	}
}

func TestLoadValidates(t *testing.T) {
	p := writeFile(t, "limit: 3\n")
	var s sample
	err := Load(p, &s)
	if !errors.Is(err, errEmptyName) {
		t.Fatalf("err = %v, want %v", err, errEmptyName)
	}
}

func TestLoadOptionalMissingKeepsDefaults(t *testing.T) {
	s := sample{Name: "default", Limit: 7}
	if err := LoadOptional(filepath.Join(t.TempDir(), "absent.yaml"), &s); err != nil {
		t.Fatalf("LoadOptional: %v", err)
	}
	if s.Name != "default" || s.Limit != 7 {
		t.Fatalf("got %+v", s)
	}
}

func TestLoadOptionalOverlaysFile(t *testing.T) {
	p := writeFile(t, "limit: 9\n")
	s := sample{Name: "default", Limit: 7}
	if err := LoadOptional(p, &s); err != nil {
		t.Fatalf("LoadOptional: %v", err)
	}
	if s.Name != "default" || s.Limit != 9 {
		t.Fatalf("got %+v", s)
	}
}

func TestLoadOptionalStillValidates(t *testing.T) {
	var s sample
	if err := LoadOptional("", &s); !errors.Is(err, errEmptyName) {
		t.Fatalf("err = %v, want %v", err, errEmptyName)
	}
}

func TestLoadBadYAML(t *testing.T) {
	p := writeFile(t, "name: [unclosed\n")
	var s sample
	if err := Load(p, &s); err == nil {
		t.Fatal("expected parse error")
	}
}
