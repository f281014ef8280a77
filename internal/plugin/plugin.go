// Package plugin discovers plugin descriptor files, instantiates the modules they
// reference from a static module table, and binds each instance into a category
// registry (Collector, Stat, View, Service) together with its optional configuration.
//
// A Registry moves through three states: empty, discovered and activated. Read
// operations such as GetByCategory are only available once activation completed.
package plugin

import (
	"git.home.luguber.info/inful/dispatchbuilder/internal/config"
)

// Plugin is the lifecycle contract every plugin instance implements.
// Category capabilities are layered on top (see Collector, Stat, View, Service).
type Plugin interface {
	// Activate is called once after the instance was bound into the registry.
	Activate() error

	// Deactivate is called once at the end of the run, in reverse activation order.
	Deactivate() error
}

// Configurable is implemented by plugins that accept a configuration tree.
// BindConfig is only called when the plugin's config file loaded successfully.
type Configurable interface {
	BindConfig(cfg config.Tree)
}

// ConfigValidator is implemented by plugins that require keys in their
// configuration. A tree that fails validation is not bound and the plugin
// stays active without configuration.
type ConfigValidator interface {
	ValidateConfig(cfg config.Tree) error
}

// BasePlugin provides default implementations for the lifecycle and configuration hooks.
// Plugins can embed this to avoid implementing optional methods.
type BasePlugin struct {
	cfg config.Tree
}

// Activate is a no-op default implementation.
func (b *BasePlugin) Activate() error {
	return nil
}

// Deactivate is a no-op default implementation.
func (b *BasePlugin) Deactivate() error {
	return nil
}

// BindConfig stores the plugin configuration.
func (b *BasePlugin) BindConfig(cfg config.Tree) {
	b.cfg = cfg
}

// Config returns the bound configuration, or nil when none was bound.
func (b *BasePlugin) Config() config.Tree {
	return b.cfg
}
