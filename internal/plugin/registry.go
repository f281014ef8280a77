package plugin

import (
	"context"
	"log/slog"
	"sort"

	"git.home.luguber.info/inful/dispatchbuilder/internal/config"
	"git.home.luguber.info/inful/dispatchbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/dispatchbuilder/internal/foundation/normalization"
	"git.home.luguber.info/inful/dispatchbuilder/internal/logfields"
	"git.home.luguber.info/inful/dispatchbuilder/internal/metrics"
)

type registryState int

const (
	stateEmpty registryState = iota
	stateDiscovered
	stateActivated
)

func (s registryState) String() string {
	switch s {
	case stateEmpty:
		return "empty"
	case stateDiscovered:
		return "discovered"
	case stateActivated:
		return "activated"
	default:
		return "unknown"
	}
}

// SkipReason explains why a plugin was activated without configuration.
type SkipReason string

const (
	// SkipNoConfigFile means the descriptor declares no Core.ConfigFile.
	SkipNoConfigFile SkipReason = "no_config_file"
	// SkipLoadFailed means the declared config file could not be loaded.
	SkipLoadFailed SkipReason = "load_failed"
)

// ConfigSkip records a plugin that stayed active without bound configuration.
type ConfigSkip struct {
	Plugin string
	Reason SkipReason
	Err    error
}

// Instance is an activated plugin bound under its category.
type Instance struct {
	Descriptor Descriptor
	Category   Category
	Plugin     Plugin
	// Config is nil when no configuration was bound.
	Config config.Tree
}

// Name returns the plugin name from the descriptor.
func (i *Instance) Name() string {
	return i.Descriptor.Name
}

// Registry discovers, activates and indexes plugins by category.
type Registry struct {
	logger     *slog.Logger
	modules    *ModuleTable
	recorder   metrics.Recorder
	specs      map[Category]CategorySpec
	order      []Category
	normalizer *normalization.Normalizer[Category]

	state       registryState
	descriptors []Descriptor
	byCategory  map[Category][]*Instance
	byName      map[string]*Instance
	activated   []*Instance
	configs     map[string]config.Tree
	skips       []ConfigSkip
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for discovery and activation messages.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithModules sets the module table used to instantiate plugins.
func WithModules(modules *ModuleTable) Option {
	return func(r *Registry) {
		if modules != nil {
			r.modules = modules
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(recorder metrics.Recorder) Option {
	return func(r *Registry) {
		if recorder != nil {
			r.recorder = recorder
		}
	}
}

// WithCategories replaces the default category table.
func WithCategories(specs ...CategorySpec) Option {
	return func(r *Registry) {
		r.specs = make(map[Category]CategorySpec, len(specs))
		r.order = nil
		for _, spec := range specs {
			r.addCategory(spec)
		}
	}
}

// NewRegistry creates an empty registry using DefaultCategories and DefaultModules.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		logger:     slog.Default(),
		modules:    DefaultModules(),
		recorder:   metrics.NoopRecorder{},
		specs:      make(map[Category]CategorySpec),
		byCategory: make(map[Category][]*Instance),
		byName:     make(map[string]*Instance),
		configs:    make(map[string]config.Tree),
	}
	for _, spec := range DefaultCategories() {
		r.addCategory(spec)
	}
	for _, opt := range opts {
		opt(r)
	}
	r.rebuildNormalizer()
	return r
}

func (r *Registry) addCategory(spec CategorySpec) {
	if _, exists := r.specs[spec.Name]; !exists {
		r.order = append(r.order, spec.Name)
	}
	r.specs[spec.Name] = spec
}

func (r *Registry) rebuildNormalizer() {
	values := make(map[string]Category, len(r.order))
	for _, name := range r.order {
		values[string(name)] = name
	}
	r.normalizer = normalization.NewNormalizer(values, Category(""))
}

// RegisterCategory adds a category to the table. Only allowed before activation.
func (r *Registry) RegisterCategory(spec CategorySpec) error {
	if r.state == stateActivated {
		return r.stateError("register category")
	}
	if spec.Name == "" || spec.Implements == nil {
		return errors.ValidationError("category name and capability check are required").Build()
	}
	r.addCategory(spec)
	r.rebuildNormalizer()
	return nil
}

// Categories returns the registered category names in registration order.
func (r *Registry) Categories() []Category {
	out := make([]Category, len(r.order))
	copy(out, r.order)
	return out
}

// ResolveCategory maps a category name, compared case-insensitively, onto a registered category.
func (r *Registry) ResolveCategory(name string) (Category, error) {
	category, ok := r.normalizer.Lookup(name)
	if !ok {
		return "", errors.InvalidCategory("unknown plugin category").
			WithContext("category", name).
			WithContext("valid", r.normalizer.ValidKeys()).
			Build()
	}
	return category, nil
}

// Discover scans dir for descriptor files ending in ext and adds them to the registry.
// It may be called several times before activation to combine directories.
func (r *Registry) Discover(dir, ext string) ([]Descriptor, error) {
	if r.state == stateActivated {
		return nil, r.stateError("discover")
	}
	found, err := Discover(dir, ext, r.logger)
	if err != nil {
		return nil, err
	}
	r.descriptors = append(r.descriptors, found...)
	r.state = stateDiscovered
	return found, nil
}

// AddDescriptors adds already parsed descriptors, in order, as if they had been discovered.
func (r *Registry) AddDescriptors(descriptors ...Descriptor) error {
	if r.state == stateActivated {
		return r.stateError("add descriptors")
	}
	r.descriptors = append(r.descriptors, descriptors...)
	r.state = stateDiscovered
	return nil
}

// Descriptors returns the discovered descriptors in discovery order.
func (r *Registry) Descriptors() []Descriptor {
	out := make([]Descriptor, len(r.descriptors))
	copy(out, r.descriptors)
	return out
}

// LoadAndActivate instantiates every discovered plugin, binds it under its category
// and loads its configuration. Plugins whose module is not registered are logged and
// skipped. A descriptor naming an unknown category, or an instance that does not
// implement its category, fails with CategoryInvalidCategory. Configuration failures
// never fail activation; they are recorded in ConfigSkips. On failure every plugin
// activated so far is deactivated again and the registry stays in the discovered state.
//
// It returns plugin name -> configuration for every plugin whose config loaded.
func (r *Registry) LoadAndActivate(ctx context.Context) (map[string]config.Tree, error) {
	if r.state == stateActivated {
		return nil, r.stateError("activate")
	}

	if err := r.activateAll(ctx); err != nil {
		r.rollback()
		return nil, err
	}

	r.state = stateActivated
	r.logger.Info("Loaded all plugins", logfields.Count(len(r.activated)))

	out := make(map[string]config.Tree, len(r.configs))
	for name, cfg := range r.configs {
		out[name] = cfg
	}
	return out, nil
}

func (r *Registry) activateAll(ctx context.Context) error {
	for _, d := range r.descriptors {
		if err := ctx.Err(); err != nil {
			return err
		}

		category, err := r.ResolveCategory(d.Category)
		if err != nil {
			return errors.WrapError(err, errors.CategoryInvalidCategory, "plugin declares an unknown category").
				Fatal().
				WithContext("plugin", d.Name).
				WithContext("path", d.Path).
				Build()
		}

		p, err := r.modules.Instantiate(d.Module)
		if err != nil {
			r.logger.Error("Failed to load plugin module",
				logfields.Plugin(d.Name), logfields.Module(d.Module), logfields.Error(err))
			continue
		}

		if !r.specs[category].Implements(p) {
			return errors.InvalidCategory("plugin does not implement its category").
				WithContext("plugin", d.Name).
				WithContext("category", string(category)).
				WithContext("module", d.Module).
				Build()
		}

		if err := p.Activate(); err != nil {
			return errors.WrapError(err, errors.CategoryPlugin, "plugin activation failed").
				WithContext("plugin", d.Name).
				Build()
		}

		inst := &Instance{Descriptor: d, Category: category, Plugin: p}
		r.bind(inst)
		r.recorder.IncPluginActivated(string(category))
		r.bindConfig(inst)
	}

	return nil
}

// rollback deactivates every plugin bound by a failed LoadAndActivate, in reverse
// order, and clears the indexes so activation can be attempted again.
func (r *Registry) rollback() {
	for i := len(r.activated) - 1; i >= 0; i-- {
		inst := r.activated[i]
		if err := inst.Plugin.Deactivate(); err != nil {
			r.logger.Warn("Failed to deactivate plugin after activation error",
				logfields.Plugin(inst.Name()), logfields.Error(err))
		}
	}
	r.activated = nil
	r.byName = make(map[string]*Instance)
	r.byCategory = make(map[Category][]*Instance)
	r.configs = make(map[string]config.Tree)
	r.skips = nil
}

// bind adds inst to the indexes. A previous plugin with the same name is replaced.
func (r *Registry) bind(inst *Instance) {
	name := inst.Name()
	if prev, exists := r.byName[name]; exists {
		r.logger.Warn("Duplicate plugin name, replacing earlier plugin",
			logfields.Plugin(name),
			slog.String("previous_path", prev.Descriptor.Path),
			logfields.Path(inst.Descriptor.Path))
		r.unbind(prev)
	}

	r.byName[name] = inst
	r.byCategory[inst.Category] = append(r.byCategory[inst.Category], inst)
	r.activated = append(r.activated, inst)
	r.logger.Debug("Activated plugin", logfields.Plugin(name), logfields.Category(string(inst.Category)))
}

func (r *Registry) unbind(inst *Instance) {
	r.byCategory[inst.Category] = removeInstance(r.byCategory[inst.Category], inst)
	r.activated = removeInstance(r.activated, inst)
	delete(r.configs, inst.Name())
	kept := r.skips[:0]
	for _, s := range r.skips {
		if s.Plugin != inst.Name() {
			kept = append(kept, s)
		}
	}
	r.skips = kept

	if err := inst.Plugin.Deactivate(); err != nil {
		r.logger.Warn("Failed to deactivate replaced plugin", logfields.Plugin(inst.Name()), logfields.Error(err))
	}
}

func removeInstance(list []*Instance, target *Instance) []*Instance {
	out := list[:0]
	for _, inst := range list {
		if inst != target {
			out = append(out, inst)
		}
	}
	return out
}

func (r *Registry) bindConfig(inst *Instance) {
	d := inst.Descriptor
	if d.ConfigFile == "" {
		r.skipConfig(ConfigSkip{Plugin: d.Name, Reason: SkipNoConfigFile})
		return
	}

	tree, err := config.LoadTree(d.ConfigFile)
	if err == nil {
		if v, ok := inst.Plugin.(ConfigValidator); ok {
			err = v.ValidateConfig(tree)
		}
	}
	if err != nil {
		r.skipConfig(ConfigSkip{
			Plugin: d.Name,
			Reason: SkipLoadFailed,
			Err: errors.WrapError(err, errors.CategoryConfigLoad, "failed to load plugin config").
				Warning().
				WithContext("plugin", d.Name).
				WithContext("path", d.ConfigFile).
				Build(),
		})
		return
	}

	inst.Config = tree
	if c, ok := inst.Plugin.(Configurable); ok {
		c.BindConfig(tree)
	}
	r.configs[d.Name] = tree
	r.logger.Debug("Loaded plugin config", logfields.Plugin(d.Name), logfields.Path(d.ConfigFile))
}

func (r *Registry) skipConfig(skip ConfigSkip) {
	r.skips = append(r.skips, skip)
	r.recorder.IncPluginConfigSkipped(string(skip.Reason))
	r.logger.Debug("Plugin activated without config",
		logfields.Plugin(skip.Plugin), logfields.Reason(string(skip.Reason)), logfields.Error(skip.Err))
}

// GetByCategory returns the activated plugins of category in activation order.
func (r *Registry) GetByCategory(category string) ([]*Instance, error) {
	resolved, err := r.ResolveCategory(category)
	if err != nil {
		return nil, err
	}
	if r.state != stateActivated {
		return nil, r.stateError("get plugins by category")
	}
	list := r.byCategory[resolved]
	out := make([]*Instance, len(list))
	copy(out, list)
	return out, nil
}

// Lookup returns the activated plugin called name.
func (r *Registry) Lookup(name string) (*Instance, bool) {
	inst, ok := r.byName[name]
	return inst, ok
}

// All returns every activated plugin in activation order.
func (r *Registry) All() []*Instance {
	out := make([]*Instance, len(r.activated))
	copy(out, r.activated)
	return out
}

// ConfigSkips returns the plugins activated without configuration, sorted by name.
func (r *Registry) ConfigSkips() []ConfigSkip {
	out := make([]ConfigSkip, len(r.skips))
	copy(out, r.skips)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Plugin < out[j].Plugin })
	return out
}

// Deactivate calls Deactivate on every activated plugin in reverse activation order.
// All plugins are deactivated even if some fail; the first error is returned.
func (r *Registry) Deactivate() error {
	var first error
	for i := len(r.activated) - 1; i >= 0; i-- {
		inst := r.activated[i]
		if err := inst.Plugin.Deactivate(); err != nil {
			r.logger.Warn("Failed to deactivate plugin", logfields.Plugin(inst.Name()), logfields.Error(err))
			if first == nil {
				first = errors.WrapError(err, errors.CategoryPlugin, "plugin deactivation failed").
					WithContext("plugin", inst.Name()).
					Build()
			}
		}
	}
	return first
}

func (r *Registry) stateError(op string) error {
	return errors.RuntimeError("invalid plugin registry state").
		WithContext("operation", op).
		WithContext("state", r.state.String()).
		Build()
}
