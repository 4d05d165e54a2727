package flatlake

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/pkg/errors"
)

// Registry hands out schema contracts by version. Implementations must
// return contracts that are already compiled and must treat published
// versions as immutable.
type Registry interface {
	Load(version string) (*Contract, error)
}

// DirRegistry loads contracts from a directory of JSON documents, one per
// version, named "<version>.json". Loaded contracts are cached - a
// version is read and compiled at most once per process.
type DirRegistry struct {
	dir string

	mu    sync.RWMutex
	cache map[string]*Contract
}

// NewDirRegistry returns a registry reading from dir.
func NewDirRegistry(dir string) *DirRegistry {
	return &DirRegistry{
		dir:   dir,
		cache: make(map[string]*Contract),
	}
}

// Load implements Registry. An unknown version fails with
// ErrSchemaNotFound; a structurally invalid contract fails with
// ErrUnsupportedShape before it is ever cached.
func (r *DirRegistry) Load(version string) (*Contract, error) {
	if version == "" || strings.ContainsAny(version, `/\`) {
		return nil, newError(ErrSchemaNotFound, "", "invalid schema version %q", version)
	}

	r.mu.RLock()
	c, ok := r.cache[version]
	r.mu.RUnlock()
	if ok {
		return c, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.cache[version]; ok {
		return c, nil
	}

	b, err := os.ReadFile(filepath.Join(r.dir, version+".json"))
	if os.IsNotExist(err) {
		e := newError(ErrSchemaNotFound, "", "no contract file for version %q", version)
		e.Version = version
		return nil, e
	} else if err != nil {
		return nil, errors.Wrapf(err, "reading contract %s", version)
	}

	c = &Contract{}
	if err := json.Unmarshal(b, c); err != nil {
		return nil, errors.Wrapf(err, "decoding contract %s", version)
	}
	if c.Version != version {
		return nil, newError(ErrUnsupportedShape, "",
			"contract file %s.json declares version %q", version, c.Version)
	}
	if err := c.Compile(); err != nil {
		return nil, err
	}

	r.cache[version] = c
	return c, nil
}

// Versions lists the contract versions available in the directory, sorted
// by filename. Mostly useful for the check subcommand and tests.
func (r *DirRegistry) Versions() ([]string, error) {
	ents, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, errors.Wrap(err, "reading contract dir")
	}
	var versions []string
	for _, ent := range ents {
		name := ent.Name()
		if ent.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		versions = append(versions, strings.TrimSuffix(name, ".json"))
	}
	return versions, nil
}
