package plugin

import (
	"context"

	"git.home.luguber.info/inful/dispatchbuilder/internal/params"
)

// Category identifies the role of a plugin.
type Category string

const (
	// CategoryCollector gathers raw data.
	CategoryCollector Category = "Collector"

	// CategoryStat derives statistics from collected data and other statistics.
	CategoryStat Category = "Stat"

	// CategoryView renders statistics into an output.
	CategoryView Category = "View"

	// CategoryService provides shared resources (sessions, API clients) to collectors.
	CategoryService Category = "Service"
)

// String returns the string representation of the category.
func (c Category) String() string {
	return string(c)
}

// Collector gathers data. services exposes the values provided by Service plugins,
// keyed by plugin name.
type Collector interface {
	Plugin
	Gather(ctx context.Context, services *params.Param[string, any]) (any, error)
}

// Stat computes a value from collector output. collected misses are permanent;
// computed misses report NotYetExist so the stat can be retried once other
// stats have produced their result.
type Stat interface {
	Plugin
	Compute(ctx context.Context, collected, computed *params.Param[string, any]) (any, error)
}

// View renders computed statistics.
type View interface {
	Plugin
	Render(ctx context.Context, stats *params.Param[string, any]) error
}

// Service provides a shared value to collectors.
type Service interface {
	Plugin
	Provide(ctx context.Context) (any, error)
}

// CategorySpec registers a category name together with the capability check
// an instance must pass to be bound under it.
type CategorySpec struct {
	Name       Category
	Implements func(Plugin) bool
}

// CollectorSpec, StatSpec, ViewSpec and ServiceSpec are the built-in category registrations.
var (
	CollectorSpec = CategorySpec{Name: CategoryCollector, Implements: func(p Plugin) bool { _, ok := p.(Collector); return ok }}
	StatSpec      = CategorySpec{Name: CategoryStat, Implements: func(p Plugin) bool { _, ok := p.(Stat); return ok }}
	ViewSpec      = CategorySpec{Name: CategoryView, Implements: func(p Plugin) bool { _, ok := p.(View); return ok }}
	ServiceSpec   = CategorySpec{Name: CategoryService, Implements: func(p Plugin) bool { _, ok := p.(Service); return ok }}
)

// DefaultCategories returns the category table used by NewRegistry.
// Service is an optional extension; a registry built WithCategories may omit it.
func DefaultCategories() []CategorySpec {
	return []CategorySpec{ServiceSpec, CollectorSpec, StatSpec, ViewSpec}
}
