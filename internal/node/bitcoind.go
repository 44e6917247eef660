package node

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
)

// ---------------------------------------------------------------
//  Bitcoin Core Node Management
// ---------------------------------------------------------------

// ManagerConfig configures a managed regtest bitcoind.
type ManagerConfig struct {
	// Script is the path to the bitcoind manager script. When empty the
	// manager walks up from the working directory looking for go.mod and
	// uses scripts/bitcoind_manager.sh under the project root.
	Script string

	// DataDir is the node's data directory, exported to the script as
	// BITCOIND_DATADIR. Empty means the script's own default.
	DataDir string

	// ExtraArgs are appended to the bitcoind command line by the script
	// through BITCOIND_EXTRA_ARGS.
	ExtraArgs []string
}

// Manager starts and stops a local Bitcoin Core regtest node through the
// bitcoind manager script. All methods are mutex-guarded so concurrent
// callers cannot race the underlying process.
//
// Example:
//
//	mgr, err := node.NewManager(node.ManagerConfig{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := mgr.Start(); err != nil {
//	    log.Fatalf("failed to start bitcoind: %v", err)
//	}
//	defer mgr.Stop() // Always clean up
type Manager struct {
	mu        sync.Mutex
	script    string
	dataDir   string
	extraArgs []string
}

// NewManager resolves the manager script path and returns a Manager. A
// missing script is only reported when a lifecycle method actually runs it.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	script := cfg.Script
	if script == "" {
		script = discoverScript()
	}

	return &Manager{
		script:    script,
		dataDir:   cfg.DataDir,
		extraArgs: cfg.ExtraArgs,
	}, nil
}

// discoverScript finds the project root by walking up the directory tree
// looking for go.mod, then points at scripts/bitcoind_manager.sh beneath it.
func discoverScript() string {
	workDir, _ := os.Getwd()

	for {
		if _, err := os.Stat(filepath.Join(workDir, "go.mod")); err == nil {
			break
		}
		parent := filepath.Dir(workDir)
		if parent == workDir {
			// Reached root, fallback to current directory
			break
		}
		workDir = parent
	}

	return filepath.Join(workDir, "scripts", "bitcoind_manager.sh")
}

// Start launches the regtest node via the manager script.
//
// The started node will:
//   - Run on the regtest network with txindex enabled
//   - Be accessible via RPC on the configured port
//   - Create its data directory if needed
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := os.Stat(m.script); os.IsNotExist(err) {
		return fmt.Errorf("bitcoind manager script not found at: %s", m.script)
	}

	output, err := m.run("start")
	if err != nil {
		return fmt.Errorf("failed to start bitcoind (script: %s): %s", m.script, output)
	}

	return nil
}

// Stop shuts the node down gracefully. Recommended in a defer right after a
// successful Start, so the node does not outlive the run.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	output, err := m.run("stop")
	if err != nil {
		return fmt.Errorf("failed to stop bitcoind: %s", output)
	}

	return nil
}

// IsRunning reports whether the managed node is currently up, by asking the
// script for its status and parsing the output.
func (m *Manager) IsRunning() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	output, err := m.run("status")
	if err != nil {
		return false, fmt.Errorf("failed to check bitcoind status: %s", output)
	}

	return strings.Contains(output, "is running"), nil
}

func (m *Manager) run(command string) (string, error) {
	cmd := exec.Command("bash", m.script, command)
	cmd.Env = os.Environ()
	if m.dataDir != "" {
		cmd.Env = append(cmd.Env, "BITCOIND_DATADIR="+m.dataDir)
	}
	if len(m.extraArgs) > 0 {
		cmd.Env = append(cmd.Env, "BITCOIND_EXTRA_ARGS="+strings.Join(m.extraArgs, " "))
	}

	output, err := cmd.CombinedOutput()
	return string(output), err
}
