package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// Secrets holds credentials read from a TOML secrets file.
//
//	CHAT_TOKEN_SECRET = "..."
type Secrets struct {
	ChatTokenSecret string `toml:"CHAT_TOKEN_SECRET"`
}

// LoadSecrets reads a secrets file. An empty path returns empty secrets.
// Unknown keys are rejected so a misspelled key does not silently disable auth.
func LoadSecrets(path string) (Secrets, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Secrets{}, nil
	}
	var secrets Secrets
	meta, err := toml.DecodeFile(path, &secrets)
	if err != nil {
		return Secrets{}, fmt.Errorf("read secrets %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		sort.Strings(keys)
		return Secrets{}, fmt.Errorf("read secrets %s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	return secrets, nil
}

// FirstNonEmpty returns the first value that is not blank.
func FirstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
