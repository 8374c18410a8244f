package cli

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// EnvFileOverride names a .env file that wins over the --env flag.
const EnvFileOverride = "GROUPER_ENV_FILE"

// ErrNoEnvFile is returned when none of the candidate files exist. Commands
// treat it as a warning since every setting can come from the process
// environment.
var ErrNoEnvFile = errors.New("no env file found")

// EnvLoader loads .env files with a predictable override order.
type EnvLoader struct {
	value       *string
	defaultPath string
}

// AddEnvFlag registers an --env flag and returns an EnvLoader.
func AddEnvFlag(fset *flag.FlagSet, defaultPath, description string) *EnvLoader {
	if fset == nil {
		fset = flag.CommandLine
	}
	if defaultPath == "" {
		defaultPath = ".env"
	}
	if description == "" {
		description = "Path to the .env file"
	}

	return &EnvLoader{
		value:       fset.String("env", defaultPath, description),
		defaultPath: defaultPath,
	}
}

// Load overlays the first readable candidate onto the process environment:
// $GROUPER_ENV_FILE, then the --env value, its basename, then the default.
func (l *EnvLoader) Load() (string, error) {
	if l == nil {
		return "", fmt.Errorf("env loader is nil")
	}

	log.SetOutput(os.Stderr)

	if custom := strings.TrimSpace(os.Getenv(EnvFileOverride)); custom != "" {
		if err := godotenv.Overload(custom); err == nil {
			log.Printf("Loaded environment from %s: %s", EnvFileOverride, custom)
			return custom, nil
		}
		log.Printf("Warning: failed to load %s=%s", EnvFileOverride, custom)
	}

	var candidates []string
	requested := ""
	if l.value != nil {
		requested = strings.TrimSpace(*l.value)
	}
	if requested == "" {
		requested = l.defaultPath
	}
	candidates = append(candidates, requested)
	if base := filepath.Base(requested); base != "" && base != requested {
		candidates = append(candidates, base)
	}
	if requested != l.defaultPath {
		candidates = append(candidates, l.defaultPath)
	}

	missing := 0
	for _, path := range candidates {
		err := godotenv.Overload(path)
		if err == nil {
			log.Printf("Loaded environment from: %s", path)
			return path, nil
		}
		if errors.Is(err, fs.ErrNotExist) {
			missing++
			continue
		}
		return "", fmt.Errorf("load env file %s: %w", path, err)
	}
	if missing == len(candidates) {
		return "", fmt.Errorf("%w: %s", ErrNoEnvFile, requested)
	}
	return "", fmt.Errorf("failed to load env file from %s", requested)
}
