// Package builtin provides the plugin modules compiled into dispatchbuilder.
// Importing the package registers them in the default module table under the
// "builtin/" prefix.
package builtin

import (
	"git.home.luguber.info/inful/dispatchbuilder/internal/plugin"
)

// Module references accepted in descriptor files.
const (
	ModuleStatic   = "builtin/static"
	ModuleConstant = "builtin/constant"
	ModuleSelect   = "builtin/select"
	ModuleReport   = "builtin/report"
)

func init() {
	Register(plugin.DefaultModules())
}

// Register adds the builtin modules to table. Modules already present are left untouched.
func Register(table *plugin.ModuleTable) {
	factories := map[string]plugin.Factory{
		ModuleStatic:   func() plugin.Plugin { return &Static{} },
		ModuleConstant: func() plugin.Plugin { return &Constant{} },
		ModuleSelect:   func() plugin.Plugin { return &Select{} },
		ModuleReport:   func() plugin.Plugin { return &Report{} },
	}
	for module, factory := range factories {
		if table.Has(module) {
			continue
		}
		table.MustRegister(module, factory)
	}
}
