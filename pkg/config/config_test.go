package config

import (
	"os"
	"path/filepath"
	"testing"

	"world-study/pkg/worlddata"
)

// TestLoadReadsEnvFile layers a .env file under the process environment.
func TestLoadReadsEnvFile(t *testing.T) {
	dir := t.TempDir()
	env := filepath.Join(dir, "test.env")
	if err := os.WriteFile(env, []byte("WORLD_STUDY_PORT=9000\nWORLD_STUDY_DB_TYPE=sqlite\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("WORLD_STUDY_PORT", "")
	os.Unsetenv("WORLD_STUDY_PORT")
	t.Setenv("WORLD_STUDY_DB_TYPE", "")
	os.Unsetenv("WORLD_STUDY_DB_TYPE")
	t.Setenv("WORLD_STUDY_LOG_LEVEL", "debug")

	s, err := Load(env, filepath.Join(dir, "missing.env"))
	if err != nil {
		t.Fatal(err)
	}
	if s.Port != 9000 || s.DBType != "sqlite" || s.LogLevel != "debug" || s.DBName != "world_study" {
		t.Fatalf("settings = %+v", s)
	}
}

// TestOverridesApply merges scale factors and replaces the other fields.
func TestOverridesApply(t *testing.T) {
	t.Parallel()

	o, err := ParseOverrides([]byte(`{
		# magnify a few more microstates
		scale: { li: 4, VA: 0 }
		exclude: []
		tolerance: 0.01
		flip_y: true
	}`))
	if err != nil {
		t.Fatal(err)
	}
	opt, err := o.Apply(worlddata.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if opt.ScaleOverrides["LI"] != 4 || opt.ScaleOverrides["SM"] != 2 {
		t.Errorf("scale = %v", opt.ScaleOverrides)
	}
	if _, ok := opt.ScaleOverrides["VA"]; ok {
		t.Error("VA scale not removed")
	}
	if len(opt.Exclude) != 0 || opt.Tolerance != 0.01 || !opt.FlipY || opt.CapitalRadius != 0.025 {
		t.Errorf("options = %+v", opt)
	}
	if def := worlddata.DefaultOptions(); def.ScaleOverrides["VA"] != 115 {
		t.Error("defaults mutated")
	}
}

// TestOverridesRejects covers malformed documents and bad values.
func TestOverridesRejects(t *testing.T) {
	t.Parallel()

	if _, err := ParseOverrides([]byte(`{ scale: `)); err == nil {
		t.Error("truncated document accepted")
	}
	o, err := ParseOverrides([]byte(`{ tolerance: -1 }`))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := o.Apply(worlddata.DefaultOptions()); err == nil {
		t.Error("negative tolerance accepted")
	}
	if _, err := LoadOverrides(filepath.Join(t.TempDir(), "nope.hjson")); err == nil {
		t.Error("missing file accepted")
	}
}
