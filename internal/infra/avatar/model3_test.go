//go:build !integration

package avatar

import (
	"os"
	"path/filepath"
	"testing"
)

const hiyori = `{
  "Version": 3,
  "FileReferences": {
    "Moc": "hiyori.moc3",
    "Textures": ["hiyori.2048/texture_00.png"],
    "Motions": {
      "Idle": [{"File": "motions/idle_01.motion3.json"}, {"File": "motions/idle_02.motion3.json"}],
      "TapBody": [{"File": "motions/tap_01.motion3.json"}]
    },
    "Expressions": [{"Name": "happy", "File": "exp/happy.exp3.json"}, {"Name": "sad", "File": "exp/sad.exp3.json"}]
  }
}`

func TestLoadModel3(t *testing.T) {
	public := t.TempDir()
	dir := filepath.Join(public, "models", "hiyori")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	p := filepath.Join(dir, "hiyori.model3.json")
	if err := os.WriteFile(p, []byte(hiyori), 0o644); err != nil {
		t.Fatal(err)
	}

	m, err := LoadModel3(p, public)
	if err != nil {
		t.Fatal(err)
	}
	if m.Name != "hiyori" || m.ModelURL != "/models/hiyori/hiyori.model3.json" {
		t.Errorf("unexpected name/url: %q %q", m.Name, m.ModelURL)
	}
	if n, ok := m.MotionCount("Idle"); !ok || n != 2 {
		t.Errorf("Idle count = %d", n)
	}
	if !m.HasExpression("sad") || m.HasExpression("neutral") {
		t.Errorf("unexpected expressions %v", m.Expressions)
	}
}

func TestLoadModel3_DefaultsAndErrors(t *testing.T) {
	p := filepath.Join(t.TempDir(), "bare.model3.json")
	_ = os.WriteFile(p, []byte(`{"FileReferences":{"Moc":"x.moc3"}}`), 0o644)
	m, err := LoadModel3(p, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Expressions) != 5 || len(m.Motions) != 0 || m.ModelURL != "" {
		t.Errorf("unexpected defaults %+v", m)
	}

	if _, err := LoadModel3(filepath.Join(t.TempDir(), "missing.json"), ""); err == nil {
		t.Error("expected error for missing file")
	}
	_ = os.WriteFile(p, []byte(`{`), 0o644)
	if _, err := LoadModel3(p, ""); err == nil {
		t.Error("expected parse error")
	}
}
