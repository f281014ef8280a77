package plugin

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"git.home.luguber.info/inful/dispatchbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/dispatchbuilder/internal/logfields"
)

// Descriptor identifies a loadable plugin. It is created during discovery and not modified afterwards.
type Descriptor struct {
	// Name is the unique plugin identifier.
	Name string

	// Category is the declared category, as written in the descriptor.
	Category string

	// Module is the module reference resolved through the ModuleTable.
	Module string

	// ConfigFile is the plugin configuration path, resolved against the
	// descriptor's directory. Empty when the descriptor declares none.
	ConfigFile string

	// Path is the descriptor file the plugin was discovered from.
	Path string

	Documentation Documentation
}

// Documentation carries optional human-readable descriptor fields.
type Documentation struct {
	Author      string `toml:"Author"`
	Version     string `toml:"Version"`
	Website     string `toml:"Website"`
	Description string `toml:"Description"`
}

// String returns a human-readable representation of the descriptor.
func (d Descriptor) String() string {
	return fmt.Sprintf("%s (%s, %s)", d.Name, d.Category, d.Module)
}

type descriptorFile struct {
	Category string `toml:"Category"`
	Core     struct {
		Name       string `toml:"Name"`
		Module     string `toml:"Module"`
		ConfigFile string `toml:"ConfigFile"`
	} `toml:"Core"`
	Documentation Documentation `toml:"Documentation"`
}

// ParseDescriptor reads a descriptor file. Core.Name, Core.Module and Category are required.
func ParseDescriptor(path string) (Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Descriptor{}, errors.WrapError(err, errors.CategoryFileSystem, "failed to read plugin descriptor").
			WithContext("path", path).
			Build()
	}

	var raw descriptorFile
	if err := toml.Unmarshal(data, &raw); err != nil {
		return Descriptor{}, errors.WrapError(err, errors.CategoryValidation, "failed to parse plugin descriptor").
			WithContext("path", path).
			Build()
	}

	var missing []string
	if strings.TrimSpace(raw.Core.Name) == "" {
		missing = append(missing, "Core.Name")
	}
	if strings.TrimSpace(raw.Core.Module) == "" {
		missing = append(missing, "Core.Module")
	}
	if strings.TrimSpace(raw.Category) == "" {
		missing = append(missing, "Category")
	}
	if len(missing) > 0 {
		return Descriptor{}, errors.NewError(errors.CategoryValidation, "plugin descriptor is missing required fields").
			WithContext("path", path).
			WithContext("fields", strings.Join(missing, ",")).
			Build()
	}

	d := Descriptor{
		Name:          strings.TrimSpace(raw.Core.Name),
		Category:      strings.TrimSpace(raw.Category),
		Module:        strings.TrimSpace(raw.Core.Module),
		Path:          path,
		Documentation: raw.Documentation,
	}
	if cf := strings.TrimSpace(raw.Core.ConfigFile); cf != "" {
		if !filepath.IsAbs(cf) {
			cf = filepath.Join(filepath.Dir(path), cf)
		}
		d.ConfigFile = cf
	}
	return d, nil
}

// Discover scans dir and its immediate sub-directories for files ending in ext
// and parses each as a descriptor. Invalid descriptors are logged and skipped.
// A missing directory yields no descriptors. The result is sorted by path.
func Discover(dir, ext string, logger *slog.Logger) ([]Descriptor, error) {
	if logger == nil {
		logger = slog.Default()
	}

	paths, err := descriptorPaths(dir, ext, logger)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Warn("Plugin directory does not exist", logfields.Path(dir))
			return nil, nil
		}
		return nil, errors.WrapError(err, errors.CategoryFileSystem, "failed to scan plugin directory").
			WithContext("path", dir).
			Build()
	}

	descriptors := make([]Descriptor, 0, len(paths))
	for _, path := range paths {
		d, err := ParseDescriptor(path)
		if err != nil {
			logger.Warn("Skipping invalid plugin descriptor", logfields.Path(path), logfields.Error(err))
			continue
		}
		logger.Debug("Discovered plugin", logfields.Plugin(d.Name), logfields.Category(d.Category), logfields.Path(path))
		descriptors = append(descriptors, d)
	}
	return descriptors, nil
}

// readDir is replaced in tests to simulate unreadable bundle directories.
var readDir = os.ReadDir

// descriptorPaths lists descriptor files in dir and its direct sub-directories.
// Only an unreadable dir is an error; an unreadable sub-directory is logged and skipped.
func descriptorPaths(dir, ext string, logger *slog.Logger) ([]string, error) {
	entries, err := readDir(dir)
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, entry := range entries {
		full := filepath.Join(dir, entry.Name())
		if !entry.IsDir() {
			if strings.HasSuffix(entry.Name(), ext) {
				paths = append(paths, full)
			}
			continue
		}
		sub, err := readDir(full)
		if err != nil {
			logger.Warn("Skipping unreadable plugin bundle directory", logfields.Path(full), logfields.Error(err))
			continue
		}
		for _, s := range sub {
			if !s.IsDir() && strings.HasSuffix(s.Name(), ext) {
				paths = append(paths, filepath.Join(full, s.Name()))
			}
		}
	}
	sort.Strings(paths)
	return paths, nil
}
