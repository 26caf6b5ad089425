// Package app wires the model registry, store, cache and controllers into
// one HTTP handler.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"EasyAPI/internal/cache"
	"EasyAPI/internal/config"
	"EasyAPI/internal/controller"
	"EasyAPI/internal/db"
	"EasyAPI/internal/logger"
	"EasyAPI/internal/model"
	"EasyAPI/internal/options"
	"EasyAPI/internal/router"
	"EasyAPI/internal/store"

	"github.com/Masterminds/squirrel"
	"github.com/redis/go-redis/v9"
)

// Backends are the connections the application runs on.
type Backends struct {
	DB *sql.DB
	// Redis is optional; nil disables the response cache.
	Redis       *redis.Client
	Placeholder squirrel.PlaceholderFormat
}

type App struct {
	Models      *model.Registry
	Options     *options.Registry
	Store       *store.Store
	Controllers []*controller.Controller
	Handler     http.Handler
}

// New builds controllers for every model with a meta block, then the
// admin controllers, and mounts them under cfg.APIPrefix.
func New(cfg *config.Config, b Backends) (*App, error) {
	if b.DB == nil {
		return nil, fmt.Errorf("app: nil database")
	}
	models, err := model.InitRegistry(cfg.ModelsDir)
	if err != nil {
		return nil, fmt.Errorf("load models: %w", err)
	}
	logger.Info("models_initialized", map[string]any{"count": len(models.Names()), "dir": cfg.ModelsDir})

	st := store.New(b.DB, models, store.Options{
		Placeholder: b.Placeholder,
		MediaRoot:   cfg.Media.Root,
		MediaURL:    cfg.Media.URL,
	})

	var responses cache.Cache = cache.Nop{}
	if b.Redis != nil {
		responses = cache.NewRedisCache(b.Redis, cfg.Cache.Prefix, time.Duration(cfg.Cache.TTLSec)*time.Second)
	}

	opts := options.NewRegistry()
	deps := controller.Deps{
		Options:      opts,
		Service:      st,
		Cache:        responses,
		DefaultLimit: positive(cfg.List.DefaultLimit),
		MaxLimit:     positive(cfg.List.MaxLimit),
	}

	controllers, err := controller.FromRegistry(models, deps)
	if err != nil {
		return nil, err
	}
	if cfg.Admin.Enabled {
		admin, err := controller.AutoAdmin(models, deps, controller.AdminConfig{
			EnabledAllApps: cfg.Admin.EnabledAllApps,
			IncludeApps:    cfg.Admin.IncludeApps,
			ExcludeApps:    cfg.Admin.ExcludeApps,
		})
		if err != nil {
			return nil, err
		}
		controllers = append(controllers, admin...)
	}

	handler := router.New(router.Options{
		Prefix:           cfg.APIPrefix,
		AllowOrigin:      cfg.CORS.AllowOrigin,
		AllowCredentials: cfg.CORS.AllowCredentials,
		Controllers:      controllers,
		Health: func(ctx context.Context) error {
			if err := b.DB.PingContext(ctx); err != nil {
				return fmt.Errorf("database: %w", err)
			}
			if b.Redis != nil {
				if err := db.PingRedis(ctx, b.Redis); err != nil {
					return fmt.Errorf("redis: %w", err)
				}
			}
			return nil
		},
	})

	return &App{
		Models:      models,
		Options:     opts,
		Store:       st,
		Controllers: controllers,
		Handler:     handler,
	}, nil
}

// ModelView is the resolved configuration of one model.
type ModelView struct {
	App     string         `yaml:"app"`
	Table   string         `yaml:"table"`
	Path    string         `yaml:"path,omitempty"`
	Options options.Config `yaml:"options"`
}

// Describe resolves every model's meta block without touching a database.
func Describe(models *model.Registry) map[string]ModelView {
	out := make(map[string]ModelView, len(models.Names()))
	for _, m := range models.Models() {
		view := ModelView{App: m.App, Table: m.Table, Options: options.Resolve(m.Meta)}
		if m.Meta != nil && view.Options.GenerateCRUD {
			view.Path = "/" + m.App + "/" + strings.ToLower(m.Name)
		}
		out[m.Name] = view
	}
	return out
}

// Routes lists "METHOD path" for every mounted handler, sorted.
func (a *App) Routes(prefix string) []string {
	prefix = strings.TrimSuffix("/"+strings.Trim(prefix, "/"), "/")
	var out []string
	for _, c := range a.Controllers {
		for _, rt := range c.Routes {
			out = append(out, rt.Method+" "+prefix+c.Path+strings.TrimSuffix(rt.Pattern, "/"))
		}
	}
	sort.Strings(out)
	return out
}

func positive(n int64) uint64 {
	if n <= 0 {
		return 0
	}
	return uint64(n)
}
