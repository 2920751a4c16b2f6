// Package ollama resolves model references such as "llama3:8b" to the GGUF
// blob inside a local ollama model store.
package ollama

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	DefaultTag       = "latest"
	DefaultRegistry  = "registry.ollama.ai"
	DefaultNamespace = "library"
	MediaTypeModel   = "application/vnd.ollama.image.model"
)

var ErrModelNotFound = errors.New("model not found in ollama store")

type Manifest struct {
	SchemaVersion int     `json:"schemaVersion"`
	Layers        []Layer `json:"layers"`
}

type Layer struct {
	MediaType string `json:"mediaType"`
	Digest    string `json:"digest"`
	Size      int64  `json:"size"`
}

// Reference is a parsed [registry/][namespace/]name[:tag].
type Reference struct {
	Registry  string
	Namespace string
	Name      string
	Tag       string
}

func ParseReference(ref string) (Reference, error) {
	r := Reference{Registry: DefaultRegistry, Namespace: DefaultNamespace, Tag: DefaultTag}
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return r, errors.New("empty model reference")
	}

	if i := strings.LastIndex(ref, ":"); i > strings.LastIndex(ref, "/") {
		r.Tag = ref[i+1:]
		ref = ref[:i]
	}
	parts := strings.Split(ref, "/")
	switch len(parts) {
	case 1:
		r.Name = parts[0]
	case 2:
		r.Namespace, r.Name = parts[0], parts[1]
	case 3:
		r.Registry, r.Namespace, r.Name = parts[0], parts[1], parts[2]
	default:
		return r, fmt.Errorf("invalid model reference %q", ref)
	}
	if r.Name == "" || r.Tag == "" {
		return r, fmt.Errorf("invalid model reference %q", ref)
	}
	return r, nil
}

func (r Reference) String() string {
	return fmt.Sprintf("%s/%s/%s:%s", r.Registry, r.Namespace, r.Name, r.Tag)
}

// Resolver looks models up under BaseDir, laid out as
// manifests/<registry>/<namespace>/<name>/<tag> and blobs/sha256-<hash>.
type Resolver struct {
	BaseDir string
}

// NewResolver uses $OLLAMA_MODELS, falling back to ~/.ollama/models.
func NewResolver() (*Resolver, error) {
	if env := os.Getenv("OLLAMA_MODELS"); env != "" {
		return &Resolver{BaseDir: env}, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return &Resolver{BaseDir: filepath.Join(home, ".ollama", "models")}, nil
}

// Resolve returns the path of the model blob for ref.
func (r *Resolver) Resolve(ref string) (string, error) {
	parsed, err := ParseReference(ref)
	if err != nil {
		return "", err
	}

	manifestPath := filepath.Join(r.BaseDir, "manifests", parsed.Registry, parsed.Namespace, parsed.Name, parsed.Tag)
	data, err := os.ReadFile(manifestPath)
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%w: no manifest at %s", ErrModelNotFound, manifestPath)
	}
	if err != nil {
		return "", err
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return "", fmt.Errorf("decode manifest %s: %w", manifestPath, err)
	}

	var digest string
	for _, l := range m.Layers {
		if l.MediaType == MediaTypeModel {
			digest = l.Digest
			break
		}
	}
	if digest == "" {
		return "", fmt.Errorf("%w: manifest %s has no model layer", ErrModelNotFound, manifestPath)
	}

	// digest "sha256:<hash>" is stored as blobs/sha256-<hash>
	blobPath := filepath.Join(r.BaseDir, "blobs", strings.Replace(digest, ":", "-", 1))
	if _, err := os.Stat(blobPath); err != nil {
		return "", fmt.Errorf("%w: blob %s: %v", ErrModelNotFound, blobPath, err)
	}
	return blobPath, nil
}

// Locate returns arg itself when it names an existing file and otherwise
// resolves it as an ollama reference.
func (r *Resolver) Locate(arg string) (string, error) {
	if st, err := os.Stat(arg); err == nil && !st.IsDir() {
		return arg, nil
	}
	return r.Resolve(arg)
}
