package keypool

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LoadDir loads key files from dir into the manager. File names follow
// "<provider>_<tier>.env" with tier "free" or "paid"; each line is one key,
// blank lines and '#' comments are skipped. Free-tier keys are queued before
// paid so cheaper credentials drain first. Unrecognized files are ignored.
func (m *Manager) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("keypool: reading key directory: %w", err)
	}

	type tierFile struct {
		provider string
		path     string
	}
	var free, paid []tierFile

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		provider, tier, ok := parseKeyFileName(entry.Name())
		if !ok {
			continue
		}
		tf := tierFile{provider: provider, path: filepath.Join(dir, entry.Name())}
		switch tier {
		case TierFree:
			free = append(free, tf)
		case TierPaid:
			paid = append(paid, tf)
		}
	}

	for _, tf := range append(free, paid...) {
		keys, err := readKeyFile(tf.path)
		if err != nil {
			return err
		}
		m.AddKeys(tf.provider, keys)
	}
	return nil
}

// parseKeyFileName splits "<provider>_<tier>.env" into its parts. Provider
// names may themselves contain underscores; the tier is the last segment.
func parseKeyFileName(name string) (provider, tier string, ok bool) {
	base, found := strings.CutSuffix(name, ".env")
	if !found {
		return "", "", false
	}
	idx := strings.LastIndex(base, "_")
	if idx <= 0 {
		return "", "", false
	}
	provider, tier = base[:idx], base[idx+1:]
	if tier != TierFree && tier != TierPaid {
		return "", "", false
	}
	return provider, tier, true
}

func readKeyFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("keypool: opening key file: %w", err)
	}
	defer f.Close()

	var keys []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		keys = append(keys, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("keypool: reading %s: %w", filepath.Base(path), err)
	}
	return keys, nil
}
