package dispatch

import (
	"reflect"
	"sort"
	"strings"
	"text/template"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"git.home.luguber.info/inful/dispatchbuilder/internal/foundation/errors"
)

// reservedFunc is always bound by the publisher and cannot be registered.
const reservedFunc = "dispatchID"

// FuncTable maps template function names to implementations compiled into the binary.
// Configuration selects which of them a publisher exposes to dispatch templates.
type FuncTable struct {
	funcs map[string]any
}

// NewFuncTable creates an empty function table.
func NewFuncTable() *FuncTable {
	return &FuncTable{funcs: make(map[string]any)}
}

// Register adds fn under name. fn must be a function usable by text/template.
func (t *FuncTable) Register(name string, fn any) error {
	if name == "" || name == reservedFunc {
		return errors.ValidationError("invalid template function name").
			WithContext("name", name).
			Build()
	}
	if fn == nil || reflect.TypeOf(fn).Kind() != reflect.Func {
		return errors.ValidationError("template function must be a func").
			WithContext("name", name).
			Build()
	}
	if _, exists := t.funcs[name]; exists {
		return errors.NewError(errors.CategoryValidation, "template function already registered").
			WithContext("name", name).
			Build()
	}
	t.funcs[name] = fn
	return nil
}

// MustRegister is Register for package init functions.
func (t *FuncTable) MustRegister(name string, fn any) {
	if err := t.Register(name, fn); err != nil {
		panic(err)
	}
}

// Select returns the functions called names. An unknown name fails with CategoryNotFound.
func (t *FuncTable) Select(names []string) (template.FuncMap, error) {
	out := make(template.FuncMap, len(names))
	for _, name := range names {
		fn, ok := t.funcs[name]
		if !ok {
			return nil, errors.NotFound("template function not found").
				WithContext("name", name).
				WithContext("available", strings.Join(t.Names(), ",")).
				Build()
		}
		out[name] = fn
	}
	return out, nil
}

// Names returns the registered function names, sorted.
func (t *FuncTable) Names() []string {
	out := make([]string, 0, len(t.funcs))
	for name := range t.funcs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

var defaultFuncs = NewFuncTable()

// DefaultFuncs returns the global function table.
func DefaultFuncs() *FuncTable {
	return defaultFuncs
}

// RegisterFunc adds a function to the global table.
func RegisterFunc(name string, fn any) error {
	return defaultFuncs.Register(name, fn)
}

func init() {
	defaultFuncs.MustRegister("title", func(s string) string {
		return cases.Title(language.English).String(s)
	})
	defaultFuncs.MustRegister("upper", func(s string) string {
		return cases.Upper(language.Und).String(s)
	})
	defaultFuncs.MustRegister("lower", func(s string) string {
		return cases.Lower(language.Und).String(s)
	})
	defaultFuncs.MustRegister("join", func(sep string, items []string) string {
		return strings.Join(items, sep)
	})
	defaultFuncs.MustRegister("default", func(fallback, value any) any {
		if value == nil {
			return fallback
		}
		if s, ok := value.(string); ok && s == "" {
			return fallback
		}
		return value
	})
	// number groups digits the English way: 1234567 -> 1,234,567.
	defaultFuncs.MustRegister("number", func(value any) string {
		return message.NewPrinter(language.English).Sprintf("%v", value)
	})
}
