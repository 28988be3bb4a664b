package setup

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Fullex26/framecore/internal/config"
)

func newWizard(input string, interactive bool) *wizard {
	return &wizard{
		r:           bufio.NewReader(strings.NewReader(input)),
		out:         io.Discard,
		interactive: interactive,
	}
}

func TestReadBool(t *testing.T) {
	tests := []struct {
		input      string
		defaultVal bool
		want       bool
	}{
		{"y\n", false, true},
		{"yes\n", false, true},
		{"Y\n", false, true},
		{"YES\n", false, true},
		{"n\n", true, false},
		{"no\n", true, false},
		{"\n", true, true},   // empty uses default
		{"\n", false, false}, // empty uses default
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			w := newWizard(tt.input, true)
			if got := w.readBool(tt.defaultVal); got != tt.want {
				t.Errorf("readBool(%q, %v) = %v, want %v", tt.input, tt.defaultVal, got, tt.want)
			}
		})
	}
}

func TestReadLine(t *testing.T) {
	w := newWizard("hello world\r\n", true)
	if got := w.readLine(); got != "hello world" {
		t.Errorf("readLine() = %q, want %q", got, "hello world")
	}
}

func TestReadNumbers_KeepDefaultOnGarbage(t *testing.T) {
	w := newWizard("abc\n\n42\n1.5\n", true)
	if got := w.readInt("n", 7); got != 7 {
		t.Errorf("readInt(garbage) = %d, want 7", got)
	}
	if got := w.readInt("n", 7); got != 7 {
		t.Errorf("readInt(empty) = %d, want 7", got)
	}
	if got := w.readInt("n", 7); got != 42 {
		t.Errorf("readInt(42) = %d, want 42", got)
	}
	if got := w.readFloat("f", 1); got != 1.5 {
		t.Errorf("readFloat(1.5) = %v, want 1.5", got)
	}
}

func TestRun_NonInteractiveWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subdir", "config.yaml")

	if err := newWizard("", false).run(path); err != nil {
		t.Fatalf("run: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := config.DefaultConfig()
	if cfg.Loop.TickRate != want.Loop.TickRate || cfg.Subsystems.Journal.Path != want.Subsystems.Journal.Path {
		t.Errorf("written config differs from defaults: %+v", cfg)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("permissions = %o, want 0600", perm)
	}
}

func TestRun_SimpleMode(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	journal := filepath.Join(dir, "journal.db")

	input := strings.Join([]string{
		"1",     // mode
		"120",   // tick rate
		"4",     // workers
		"y",     // journal
		journal, // journal path
		"n",     // probe
	}, "\n") + "\n"

	if err := newWizard(input, true).run(path); err != nil {
		t.Fatalf("run: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Loop.TickRate != 120 {
		t.Errorf("TickRate = %v, want 120", cfg.Loop.TickRate)
	}
	if cfg.Pool.Workers != 4 {
		t.Errorf("Workers = %d, want 4", cfg.Pool.Workers)
	}
	if cfg.Subsystems.Journal.Path != journal {
		t.Errorf("Journal.Path = %q, want %q", cfg.Subsystems.Journal.Path, journal)
	}
	if cfg.Subsystems.Probe.Enabled {
		t.Error("probe should be disabled")
	}
}

func TestRun_KeepsExistingAnswers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("pool:\n  shutdown: drain\n  workers: 3\n"), 0600); err != nil {
		t.Fatal(err)
	}

	// Accept every default
	if err := newWizard("\n\n\n\n\n\n", true).run(path); err != nil {
		t.Fatalf("run: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Pool.Shutdown != "drain" || cfg.Pool.Workers != 3 {
		t.Errorf("existing answers lost: %+v", cfg.Pool)
	}
}

func TestRun_RejectsInvalidAnswers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	input := "1\n-5\n\n\n\n\n"

	err := newWizard(input, true).run(path)
	if err == nil {
		t.Fatal("expected error for negative tick rate")
	}
	if !strings.Contains(err.Error(), "invalid settings") {
		t.Errorf("error = %q, want it to contain %q", err.Error(), "invalid settings")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("nothing should be written for invalid settings")
	}
}

func TestRun_BrokenExistingConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	os.WriteFile(path, []byte("{{{{not yaml"), 0600)

	if err := newWizard("", false).run(path); err == nil {
		t.Fatal("expected error for unparsable existing config")
	}
}
