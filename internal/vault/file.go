package vault

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Ext is the file extension for exported vault envelopes.
const Ext = ".pgvault"

// WriteFile persists the envelope as an indented JSON file, appending the
// .pgvault extension when missing. The file is created owner-readable only.
func WriteFile(path string, env *Envelope) (string, error) {
	if !strings.HasSuffix(strings.ToLower(path), Ext) {
		path += Ext
	}

	b, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding envelope: %w", err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return path, nil
}

// ReadFile loads an envelope previously written by WriteFile.
func ReadFile(path string) (*Envelope, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	env := &Envelope{}
	if err := json.Unmarshal(b, env); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return env, nil
}
