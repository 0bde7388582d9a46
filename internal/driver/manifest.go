package driver

import (
	"bytes"
	_ "embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

// ManifestFile is the file name drivers are discovered by (case-insensitive).
const ManifestFile = "driver.yaml"

//go:embed manifest.cue
var manifestSchema string

// Manifest describes an external driver program.
//
//	name: voice
//	execution:
//	  exe: voice.py
//	  args: [--format, jsonl, null]
//
// A null argument is replaced by the data path; without one the path is
// appended.
type Manifest struct {
	Name        string    `yaml:"name"`
	Description string    `yaml:"description"`
	Streams     []string  `yaml:"streams"`
	Execution   Execution `yaml:"execution"`

	// Dir is the directory holding the manifest; Exe is relative to it.
	Dir string `yaml:"-"`
}

// Execution is the command line of a driver.
type Execution struct {
	Exe  string    `yaml:"exe"`
	Args []*string `yaml:"args"`
}

// ParseManifest validates data against the manifest schema and decodes it.
func ParseManifest(data []byte, dir string) (*Manifest, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(manifestSchema, cue.Filename("manifest.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile manifest schema: %w", err)
	}
	v := schema.LookupPath(cue.ParsePath("#Manifest")).Unify(ctx.Encode(raw))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}

	var m Manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	if n := m.placeholders(); n > 1 {
		return nil, fmt.Errorf("%w: driver %s has %d data path placeholders, want at most 1",
			ErrInvalidManifest, m.Name, n)
	}
	m.Dir = dir
	return &m, nil
}

// LoadManifest reads and parses the manifest at path.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	m, err := ParseManifest(data, filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Discover walks root for driver manifests, sorted by driver name. Two
// manifests with the same name are an error.
func Discover(root string) ([]*Manifest, error) {
	var manifests []*Manifest
	seen := make(map[string]string)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(d.Name(), ManifestFile) {
			return nil
		}
		m, err := LoadManifest(path)
		if err != nil {
			return err
		}
		if prev, ok := seen[m.Name]; ok {
			return fmt.Errorf("%w: driver %q defined in both %s and %s", ErrInvalidManifest, m.Name, prev, path)
		}
		seen[m.Name] = path
		manifests = append(manifests, m)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discover drivers: %w", err)
	}

	slices.SortFunc(manifests, func(a, b *Manifest) int {
		return strings.Compare(a.Name, b.Name)
	})
	return manifests, nil
}

// Command returns the argv that runs the driver on dataPath.
func (m *Manifest) Command(dataPath string) []string {
	exe := m.Execution.Exe
	if !filepath.IsAbs(exe) {
		exe = filepath.Join(m.Dir, exe)
	}

	argv := []string{exe}
	substituted := false
	for _, arg := range m.Execution.Args {
		if arg == nil {
			argv = append(argv, dataPath)
			substituted = true
			continue
		}
		argv = append(argv, *arg)
	}
	if !substituted {
		argv = append(argv, dataPath)
	}
	return argv
}

func (m *Manifest) placeholders() int {
	n := 0
	for _, arg := range m.Execution.Args {
		if arg == nil {
			n++
		}
	}
	return n
}
