package common

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// LoadEnvFile loads KEY=VALUE pairs from a dotenv-style file. A missing file
// is a no-op. Variables already present in the environment win over file
// values, and lines without '=' or starting with '#' are skipped.
func LoadEnvFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open env file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("read env file: %w", err)
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		value = strings.TrimSpace(value)
		value = strings.Trim(value, `"'`)
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		_ = os.Setenv(key, value)
	}
	return nil
}

// PrintCIResult emits one machine-readable line per detail plus a final
// PASS/FAIL marker, for non-interactive tool runs.
func PrintCIResult(ok bool, name string, details []string, err error) {
	for _, d := range details {
		fmt.Printf("%s: %s\n", name, d)
	}
	if ok {
		fmt.Printf("%s: PASS\n", name)
		return
	}
	fmt.Printf("%s: FAIL: %v\n", name, err)
}
