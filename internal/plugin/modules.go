package plugin

import (
	"sort"

	"git.home.luguber.info/inful/dispatchbuilder/internal/foundation/errors"
)

// Factory creates a fresh plugin instance.
type Factory func() Plugin

// ModuleTable maps module references, as written in descriptor files, to factories.
// Modules are compiled in and registered at init time instead of being loaded at runtime.
type ModuleTable struct {
	factories map[string]Factory
}

// NewModuleTable creates an empty module table.
func NewModuleTable() *ModuleTable {
	return &ModuleTable{factories: make(map[string]Factory)}
}

// Register adds a factory under module.
// Returns an error if the module reference is empty or already registered.
func (t *ModuleTable) Register(module string, factory Factory) error {
	if module == "" {
		return errors.ValidationError("module reference is required").Build()
	}
	if factory == nil {
		return errors.ValidationError("module factory is required").
			WithContext("module", module).
			Build()
	}
	if _, exists := t.factories[module]; exists {
		return errors.NewError(errors.CategoryValidation, "module already registered").
			WithContext("module", module).
			Build()
	}
	t.factories[module] = factory
	return nil
}

// MustRegister is Register for package init functions.
func (t *ModuleTable) MustRegister(module string, factory Factory) {
	if err := t.Register(module, factory); err != nil {
		panic(err)
	}
}

// Instantiate creates a plugin from the factory registered under module.
func (t *ModuleTable) Instantiate(module string) (Plugin, error) {
	factory, ok := t.factories[module]
	if !ok {
		return nil, errors.NotFound("plugin module not found").
			WithContext("module", module).
			Build()
	}
	p := factory()
	if p == nil {
		return nil, errors.PluginError("plugin factory returned nil").
			WithContext("module", module).
			Build()
	}
	return p, nil
}

// Has reports whether module is registered.
func (t *ModuleTable) Has(module string) bool {
	_, ok := t.factories[module]
	return ok
}

// Modules returns the registered module references, sorted.
func (t *ModuleTable) Modules() []string {
	result := make([]string, 0, len(t.factories))
	for module := range t.factories {
		result = append(result, module)
	}
	sort.Strings(result)
	return result
}

// defaultModules is the module table used by registries created without WithModules.
var defaultModules = NewModuleTable()

// DefaultModules returns the global module table.
func DefaultModules() *ModuleTable {
	return defaultModules
}

// RegisterModule adds a factory to the global module table.
func RegisterModule(module string, factory Factory) error {
	return defaultModules.Register(module, factory)
}
