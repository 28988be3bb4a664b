// Package setup implements the interactive framecore setup wizard.
package setup

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/Fullex26/framecore/internal/config"
)

const configHeader = `# framecore configuration
# Written by 'framecore setup'. Environment variables (${VAR}) are expanded on load.

`

// Run is the entry point for the setup wizard. When stdin is not a terminal
// it writes the defaults without prompting.
func Run(configPath string) error {
	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	w := &wizard{
		r:           bufio.NewReader(os.Stdin),
		out:         os.Stdout,
		interactive: interactive,
	}
	if err := w.run(configPath); err != nil {
		return err
	}
	if interactive {
		fmt.Fprint(w.out, "  Enable and start framecore service? [y/N]: ")
		if w.readBool(false) {
			if err := startService(); err != nil {
				fmt.Fprintf(w.out, "  ⚠️  %v\n", err)
				fmt.Fprintln(w.out, "  Start manually: sudo systemctl enable --now framecore")
			} else {
				fmt.Fprintln(w.out, "  ✅ Service enabled and started!")
			}
		}
	}
	return nil
}

type wizard struct {
	r           *bufio.Reader
	out         io.Writer
	interactive bool
}

func (w *wizard) run(configPath string) error {
	fmt.Fprintln(w.out)
	fmt.Fprintln(w.out, "⏱  framecore setup")
	fmt.Fprintln(w.out, "──────────────────")
	fmt.Fprintln(w.out)

	cfg, err := loadOrDefault(configPath)
	if err != nil {
		return err
	}

	if w.interactive {
		fmt.Fprintln(w.out, "  Choose setup mode:")
		fmt.Fprintln(w.out, "    [1] Simple   — loop rate, workers and journal  (recommended)")
		fmt.Fprintln(w.out, "    [2] Advanced — configure every option")
		fmt.Fprintln(w.out)
		fmt.Fprint(w.out, "  Selection [1]: ")
		advanced := w.readLine() == "2"
		fmt.Fprintln(w.out)

		w.collectSimple(cfg)
		if advanced {
			w.collectAdvanced(cfg)
		}
		fmt.Fprintln(w.out)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	if err := writeConfig(configPath, cfg); err != nil {
		return err
	}
	fmt.Fprintf(w.out, "  ✅ Config written: %s\n", configPath)

	// Read it back through the loader the daemon uses
	if _, err := config.Load(configPath); err != nil {
		return fmt.Errorf("verifying written config: %w", err)
	}

	fmt.Fprintln(w.out)
	fmt.Fprintln(w.out, "✅ Setup complete!")
	fmt.Fprintln(w.out, "   Run 'framecore check' to review the schedule, then 'framecore run'.")
	fmt.Fprintln(w.out)
	return nil
}

// collectSimple prompts for the settings most installs change
func (w *wizard) collectSimple(cfg *config.Config) {
	cfg.Loop.TickRate = w.readFloat("Simulation tick rate Hz", cfg.Loop.TickRate)
	cfg.Pool.Workers = w.readInt("Worker goroutines (0 = one per CPU)", cfg.Pool.Workers)

	fmt.Fprintf(w.out, "  Journal events to SQLite? [%s]: ", yn(cfg.Subsystems.Journal.Enabled))
	cfg.Subsystems.Journal.Enabled = w.readBool(cfg.Subsystems.Journal.Enabled)
	if cfg.Subsystems.Journal.Enabled {
		cfg.Subsystems.Journal.Path = w.readString("Journal path", cfg.Subsystems.Journal.Path)
	}

	fmt.Fprintf(w.out, "  Sample host load? [%s]: ", yn(cfg.Subsystems.Probe.Enabled))
	cfg.Subsystems.Probe.Enabled = w.readBool(cfg.Subsystems.Probe.Enabled)
}

// collectAdvanced prompts for everything else
func (w *wizard) collectAdvanced(cfg *config.Config) {
	fmt.Fprintln(w.out)
	fmt.Fprintln(w.out, "  ── Advanced Settings ──────────────────────────────────────")
	fmt.Fprintln(w.out, "  (Press Enter to keep the default shown in brackets)")
	fmt.Fprintln(w.out)

	cfg.Log.Level = w.readString("Log level [debug/info/warn/error]", cfg.Log.Level)
	cfg.Log.Format = w.readString("Log format [text/json]", cfg.Log.Format)
	cfg.Loop.MaxFPS = w.readFloat("Max frames per second", cfg.Loop.MaxFPS)
	cfg.Loop.MaxSubsteps = w.readInt("Max substeps per frame (0 = unbounded)", cfg.Loop.MaxSubsteps)
	cfg.Pool.Backoff = w.readString("Idle worker backoff (max 1s)", cfg.Pool.Backoff)
	cfg.Pool.Shutdown = w.readString("Queued tasks at shutdown [abandon/drain]", cfg.Pool.Shutdown)
	cfg.Pool.QueueWarn = w.readInt("Warn when queued tasks exceed", cfg.Pool.QueueWarn)
	cfg.Subsystems.Workers.Hz = w.readFloat("Workers update Hz", cfg.Subsystems.Workers.Hz)
	if cfg.Subsystems.Probe.Enabled {
		cfg.Subsystems.Probe.Hz = w.readFloat("Probe Hz", cfg.Subsystems.Probe.Hz)
		cfg.Subsystems.Probe.Path = w.readString("Probe disk path", cfg.Subsystems.Probe.Path)
	}
	if cfg.Subsystems.Journal.Enabled {
		cfg.Subsystems.Journal.Hz = w.readFloat("Journal flush Hz", cfg.Subsystems.Journal.Hz)
		cfg.Subsystems.Journal.RetentionDays = w.readInt("Journal retention days (0 = keep)", cfg.Subsystems.Journal.RetentionDays)
	}
	fmt.Fprintf(w.out, "  Log periodic stats? [%s]: ", yn(cfg.Subsystems.Monitor.Enabled))
	cfg.Subsystems.Monitor.Enabled = w.readBool(cfg.Subsystems.Monitor.Enabled)
	if cfg.Subsystems.Monitor.Enabled {
		cfg.Subsystems.Monitor.Hz = w.readFloat("Monitor Hz", cfg.Subsystems.Monitor.Hz)
	}
}

// loadOrDefault starts from the existing config so re-running setup keeps
// earlier answers as defaults
func loadOrDefault(path string) (*config.Config, error) {
	if _, err := os.Stat(path); err != nil {
		return config.DefaultConfig(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("existing config: %w", err)
	}
	return cfg, nil
}

func writeConfig(path string, cfg *config.Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, append([]byte(configHeader), data...), 0600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// startService enables and starts the framecore systemd service.
func startService() error {
	out, err := exec.Command("systemctl", "enable", "--now", "framecore").CombinedOutput()
	if err != nil {
		return fmt.Errorf("systemctl: %s", strings.TrimSpace(string(out)))
	}
	return nil
}

// readLine reads one line, stripping the trailing newline.
func (w *wizard) readLine() string {
	line, _ := w.r.ReadString('\n')
	return strings.TrimRight(line, "\r\n")
}

// readBool parses a y/n response; returns defaultVal on empty input.
func (w *wizard) readBool(defaultVal bool) bool {
	line := strings.ToLower(strings.TrimSpace(w.readLine()))
	if line == "" {
		return defaultVal
	}
	return line == "y" || line == "yes"
}

func (w *wizard) readString(prompt, def string) string {
	fmt.Fprintf(w.out, "  %s (default: %s): ", prompt, def)
	if v := strings.TrimSpace(w.readLine()); v != "" {
		return v
	}
	return def
}

// readInt keeps def when the answer is empty or not a number
func (w *wizard) readInt(prompt string, def int) int {
	fmt.Fprintf(w.out, "  %s (default: %d): ", prompt, def)
	v := strings.TrimSpace(w.readLine())
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		fmt.Fprintf(w.out, "  ⚠️  %q is not a number, keeping %d\n", v, def)
		return def
	}
	return n
}

func (w *wizard) readFloat(prompt string, def float64) float64 {
	fmt.Fprintf(w.out, "  %s (default: %g): ", prompt, def)
	v := strings.TrimSpace(w.readLine())
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		fmt.Fprintf(w.out, "  ⚠️  %q is not a number, keeping %g\n", v, def)
		return def
	}
	return f
}

func yn(b bool) string {
	if b {
		return "Y/n"
	}
	return "y/N"
}
