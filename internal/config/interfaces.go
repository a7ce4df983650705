package config

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// SecretProvider resolves secret references to plaintext. The loader hands it
// the values of every *_FILE variable whose target is not already set.
type SecretProvider interface {
	// ReadSecrets returns reference -> plaintext for every resolvable
	// reference. Unresolvable references are omitted from the map.
	ReadSecrets(ctx context.Context, refs []string) (map[string]string, error)
}

// FileSecretProvider reads secrets from mounted files (Docker or Kubernetes
// secrets). Trailing newlines written by most secret tooling are trimmed.
type FileSecretProvider struct {
	readFile func(string) ([]byte, error)
}

// NewFileSecretProvider creates a provider backed by the local filesystem.
func NewFileSecretProvider() *FileSecretProvider {
	return &FileSecretProvider{readFile: os.ReadFile}
}

// ReadSecrets reads each path. A missing file is reported as an error since a
// dangling *_FILE reference is always a deployment mistake.
func (p *FileSecretProvider) ReadSecrets(ctx context.Context, refs []string) (map[string]string, error) {
	out := make(map[string]string, len(refs))
	for _, path := range refs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		b, err := p.readFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading secret file %s: %w", path, err)
		}
		out[path] = strings.TrimRight(string(b), "\r\n")
	}
	return out, nil
}
