package export

import (
	"fmt"
	"os"
	"path/filepath"
)

// EnvDataDir overrides the base data directory when no flag is given.
const EnvDataDir = "PSARANK_DATA_DIR"

// Dirs is the on-disk layout for one invocation: checkpoints, logs and
// exported rankings all live under a single base directory.
type Dirs struct {
	Base        string
	Checkpoints string
	Logs        string
	Output      string
}

// ResolveDirs picks the base data directory and creates the layout under
// it. An explicit directory wins, then PSARANK_DATA_DIR, then the working
// directory.
func ResolveDirs(explicit string) (*Dirs, error) {
	base := explicit
	if base == "" {
		base = os.Getenv(EnvDataDir)
	}
	if base == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to determine working directory: %w", err)
		}
		base = wd
	}

	d := &Dirs{
		Base:        base,
		Checkpoints: filepath.Join(base, "checkpoints"),
		Logs:        filepath.Join(base, "logs"),
		Output:      filepath.Join(base, "output"),
	}

	for _, dir := range []string{d.Checkpoints, d.Logs, d.Output} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return d, nil
}
