// Package controller builds CRUD route sets for declared models.
package controller

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"EasyAPI/internal/cache"
	"EasyAPI/internal/logger"
	"EasyAPI/internal/model"
	"EasyAPI/internal/options"
	"EasyAPI/internal/serializer"
	"EasyAPI/internal/store"

	"github.com/go-chi/chi/v5"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Service is the data access used by handlers. *store.Store implements it.
type Service interface {
	Get(ctx context.Context, m *model.Model, id any, opts store.LoadOptions) (*store.Record, error)
	List(ctx context.Context, m *model.Model, q store.ListQuery, opts store.LoadOptions) ([]*store.Record, int64, error)
	Create(ctx context.Context, m *model.Model, payload map[string]any) (any, error)
	Update(ctx context.Context, m *model.Model, id any, payload map[string]any) (bool, error)
	Delete(ctx context.Context, m *model.Model, id any) (bool, error)
}

// Deps are shared by every controller of an application.
type Deps struct {
	Options      *options.Registry
	Service      Service
	Cache        cache.Cache
	DefaultLimit uint64
	MaxLimit     uint64
}

func (d Deps) withDefaults() Deps {
	if d.Options == nil {
		d.Options = options.NewRegistry()
	}
	if d.Cache == nil {
		d.Cache = cache.Nop{}
	}
	if d.DefaultLimit == 0 {
		d.DefaultLimit = 100
	}
	if d.MaxLimit == 0 {
		d.MaxLimit = 1000
	}
	if d.DefaultLimit > d.MaxLimit {
		d.DefaultLimit = d.MaxLimit
	}
	return d
}

type Route struct {
	Method  string
	Pattern string
	Summary string
	Handler http.HandlerFunc
}

var errNilModel = errors.New("controller: nil model")

type Controller struct {
	Name   string
	Tag    string
	Path   string
	Model  *model.Model
	Config options.Config
	Routes []Route

	deps    Deps
	configs options.Source
	ser     *serializer.Serializer
}

// Build resolves decl, publishes it and returns the CRUD routes of m,
// mounted at /<app>/<model>.
func Build(m *model.Model, decl *options.Declaration, deps Deps) (*Controller, error) {
	if m == nil {
		return nil, errNilModel
	}
	return build(m, decl, deps, "", "/"+m.App+"/"+strings.ToLower(m.Name))
}

func build(m *model.Model, decl *options.Declaration, deps Deps, prefix, path string) (*Controller, error) {
	if m == nil {
		return nil, errNilModel
	}
	deps = deps.withDefaults()
	if deps.Service == nil {
		return nil, errors.New("controller: nil service")
	}
	cfg := options.Resolve(decl)

	var src options.Source = deps.Options
	if err := deps.Options.Publish(m.Name, cfg); err != nil {
		if !errors.Is(err, options.ErrAlreadyPublished) {
			return nil, err
		}
		// keep the published config for everyone else
		src = options.Override{Source: deps.Options, Model: m.Name, Config: cfg}
		logger.Debug("options_override", map[string]any{"model": m.Name, "path": path})
	}

	display := displayName(m.Name)
	c := &Controller{
		Name:    display + prefix + "APIController",
		Tag:     display + " " + prefix + "API",
		Path:    path,
		Model:   m,
		Config:  cfg,
		deps:    deps,
		configs: src,
		ser:     serializer.New(src),
	}
	if cfg.GenerateCRUD {
		c.Routes = []Route{
			{Method: http.MethodGet, Pattern: "/{id}", Summary: "Get a single object", Handler: c.getObj},
			{Method: http.MethodDelete, Pattern: "/{id}", Summary: "Delete a single object", Handler: c.delObj},
			{Method: http.MethodGet, Pattern: "/", Summary: "Get multiple objects", Handler: c.getObjs},
			{Method: http.MethodPatch, Pattern: "/{id}", Summary: "Patch a single object", Handler: c.patchObj},
			{Method: http.MethodPut, Pattern: "/", Summary: "Create", Handler: c.addObj},
		}
	}
	logger.Info("controller_built", map[string]any{
		"controller": c.Name,
		"path":       c.Path,
		"routes":     len(c.Routes),
	})
	return c, nil
}

// FromRegistry builds a controller for every model that declares meta.
func FromRegistry(models *model.Registry, deps Deps) ([]*Controller, error) {
	deps = deps.withDefaults()
	var out []*Controller
	for _, m := range models.Models() {
		if m.Meta == nil {
			continue
		}
		c, err := Build(m, m.Meta, deps)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// AdminConfig selects the apps that get admin controllers.
type AdminConfig struct {
	EnabledAllApps bool
	IncludeApps    []string
	ExcludeApps    []string
}

// AutoAdmin builds default-config controllers at /admin/<app>/<model>.
// Declared sensitive fields stay hidden there.
func AutoAdmin(models *model.Registry, deps Deps, cfg AdminConfig) ([]*Controller, error) {
	deps = deps.withDefaults()
	var out []*Controller
	for _, app := range models.Apps() {
		if contains(cfg.ExcludeApps, app) {
			continue
		}
		if !cfg.EnabledAllApps && !contains(cfg.IncludeApps, app) {
			continue
		}
		for _, m := range models.Models() {
			if m.App != app {
				continue
			}
			c, err := build(m, adminDeclaration(m), deps, "Admin", "/admin/"+app+"/"+strings.ToLower(m.Name))
			if err != nil {
				return nil, err
			}
			out = append(out, c)
		}
	}
	return out, nil
}

// adminDeclaration keeps the default options but still hides the fields
// the model declares sensitive.
func adminDeclaration(m *model.Model) *options.Declaration {
	if m.Meta == nil || len(m.Meta.SensitiveFields) == 0 {
		return nil
	}
	return &options.Declaration{SensitiveFields: m.Meta.SensitiveFields}
}

// Mount registers controllers on r under their paths.
func Mount(r chi.Router, controllers ...*Controller) {
	for _, c := range controllers {
		if len(c.Routes) == 0 {
			continue
		}
		r.Route(c.Path, func(sub chi.Router) {
			for _, rt := range c.Routes {
				sub.MethodFunc(rt.Method, rt.Pattern, rt.Handler)
			}
		})
	}
}

var titleCaser = cases.Title(language.English)

// displayName turns "event_type" into "EventType".
func displayName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool { return r == '_' || r == '-' })
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(titleCaser.String(p))
	}
	return b.String()
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
