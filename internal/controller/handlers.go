package controller

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"EasyAPI/internal/cache"
	"EasyAPI/internal/logger"
	"EasyAPI/internal/model"
	"EasyAPI/internal/options"
	"EasyAPI/internal/response"
	"EasyAPI/internal/store"

	"github.com/go-chi/chi/v5"
)

const maxBodyBytes = 1 << 20

func (c *Controller) loadOptions() store.LoadOptions {
	var prefetch []string
	for _, f := range c.Model.Relations(model.KindToMany) {
		if c.Config.ShowField(f.Name) {
			prefetch = append(prefetch, f.Name)
		}
	}
	return store.LoadOptions{
		Prefetch: prefetch,
		Expand: func(name string) bool {
			return options.ConfigFor(c.configs, name).Recursive
		},
	}
}

func (c *Controller) parseID(w http.ResponseWriter, r *http.Request) (any, bool) {
	id, err := c.Model.ParseKey(chi.URLParam(r, "id"))
	if err != nil {
		response.Write(w, response.New(err.Error(), http.StatusBadRequest, "Invalid Id"))
		return nil, false
	}
	return id, true
}

func (c *Controller) getObj(w http.ResponseWriter, r *http.Request) {
	id, ok := c.parseID(w, r)
	if !ok {
		return
	}
	key := c.cacheKey(r)
	if c.serveCached(w, r, key) {
		return
	}

	rec, err := c.deps.Service.Get(r.Context(), c.Model, id, c.loadOptions())
	if err != nil {
		logger.Error("get_failed", map[string]any{"model": c.Model.Name, "id": id, "error": err.Error()})
		response.Write(w, response.New(err.Error(), http.StatusInternalServerError, "Get Failed"))
		return
	}
	if rec == nil {
		response.Write(w, response.New(nil, http.StatusNotFound, "Not Found"))
		return
	}
	c.writeAndCache(w, r, key, response.OK(c.ser.Serialize(rec)))
}

func (c *Controller) getObjs(w http.ResponseWriter, r *http.Request) {
	q, err := c.parseListQuery(r)
	if err != nil {
		response.Write(w, response.New(err.Error(), http.StatusBadRequest, "Invalid Query"))
		return
	}
	key := c.cacheKey(r)
	if c.serveCached(w, r, key) {
		return
	}

	if err := c.checkFilters(q.Filters); err != nil {
		response.Write(w, response.New(err.Error(), http.StatusBadRequest, "Invalid Filters"))
		return
	}
	recs, total, err := c.deps.Service.List(r.Context(), c.Model, q, c.loadOptions())
	if err != nil {
		if errors.Is(err, store.ErrInvalidFilter) {
			response.Write(w, response.New(err.Error(), http.StatusBadRequest, "Invalid Filters"))
			return
		}
		logger.Error("list_failed", map[string]any{"model": c.Model.Name, "error": err.Error()})
		response.Write(w, response.New(err.Error(), http.StatusInternalServerError, "List Failed"))
		return
	}
	data := map[string]any{
		"items": c.ser.SerializeAll(store.Entities(recs)),
		"count": total,
	}
	c.writeAndCache(w, r, key, response.OK(data))
}

func (c *Controller) addObj(w http.ResponseWriter, r *http.Request) {
	payload, err := decodePayload(r)
	if err != nil {
		response.Write(w, response.New(err.Error(), http.StatusBadRequest, "Invalid Body"))
		return
	}
	id, err := c.deps.Service.Create(r.Context(), c.Model, c.writable(payload))
	if err != nil {
		c.writeFailed(w, "create_failed", nil, err, "Create Failed")
		return
	}
	c.flush(r)
	response.Write(w, response.New(map[string]any{"id": id}, http.StatusCreated, "Created."))
}

func (c *Controller) patchObj(w http.ResponseWriter, r *http.Request) {
	id, ok := c.parseID(w, r)
	if !ok {
		return
	}
	payload, err := decodePayload(r)
	if err != nil {
		response.Write(w, response.New(err.Error(), http.StatusBadRequest, "Invalid Body"))
		return
	}
	updated, err := c.deps.Service.Update(r.Context(), c.Model, id, c.writable(payload))
	if err != nil {
		c.writeFailed(w, "update_failed", id, err, "Updated Failed")
		return
	}
	if !updated {
		response.Write(w, response.New(nil, http.StatusBadRequest, "Updated Failed"))
		return
	}
	c.flush(r)
	response.Write(w, response.New(nil, response.CodeSuccess, "Updated."))
}

func (c *Controller) delObj(w http.ResponseWriter, r *http.Request) {
	id, ok := c.parseID(w, r)
	if !ok {
		return
	}
	deleted, err := c.deps.Service.Delete(r.Context(), c.Model, id)
	if err != nil {
		logger.Error("delete_failed", map[string]any{"model": c.Model.Name, "id": id, "error": err.Error()})
		response.Write(w, response.New(err.Error(), http.StatusInternalServerError, "Delete Failed"))
		return
	}
	if !deleted {
		response.Write(w, response.New("Not Found.", http.StatusNotFound, ""))
		return
	}
	c.flush(r)
	response.Write(w, response.New("Deleted.", http.StatusNoContent, ""))
}

// writeFailed maps store validation errors to 400, everything else to 500.
func (c *Controller) writeFailed(w http.ResponseWriter, event string, id any, err error, message string) {
	status := http.StatusInternalServerError
	if errors.Is(err, store.ErrUnknownField) || errors.Is(err, store.ErrNotWritable) || errors.Is(err, store.ErrInvalidValue) {
		status = http.StatusBadRequest
	}
	fields := map[string]any{"model": c.Model.Name, "error": err.Error()}
	if id != nil {
		fields["id"] = id
	}
	if status == http.StatusBadRequest {
		logger.Warn(event, fields)
	} else {
		logger.Error(event, fields)
	}
	response.Write(w, response.New(err.Error(), status, message))
}

func (c *Controller) parseListQuery(r *http.Request) (store.ListQuery, error) {
	q := store.ListQuery{Limit: c.deps.DefaultLimit}
	values := r.URL.Query()

	if raw := values.Get("filters"); raw != "" {
		dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
		dec.UseNumber()
		if err := dec.Decode(&q.Filters); err != nil {
			return q, fmt.Errorf("filters must be a JSON object: %w", err)
		}
	}
	if raw := values.Get("limit"); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || n == 0 {
			return q, fmt.Errorf("invalid limit %q", raw)
		}
		q.Limit = min(n, c.deps.MaxLimit)
	}
	if raw := values.Get("offset"); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return q, fmt.Errorf("invalid offset %q", raw)
		}
		q.Offset = n
	}
	return q, nil
}

// checkFilters rejects filters on fields the config hides. Unknown names
// are left to the store.
func (c *Controller) checkFilters(filters map[string]any) error {
	for key := range filters {
		name := key
		if i := strings.Index(key, "__"); i > 0 {
			name = key[:i]
		}
		f := c.Model.Field(name)
		if f == nil {
			f = c.belongsToByFK(name)
		}
		if f != nil && !c.Config.ShowField(f.Name) {
			return fmt.Errorf("%w: field %q is not visible", store.ErrInvalidFilter, name)
		}
	}
	return nil
}

func decodePayload(r *http.Request) (map[string]any, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	var payload map[string]any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("body must be a JSON object: %w", err)
	}
	return payload, nil
}

// writable keeps the keys the write schema accepts. Unknown keys, the
// primary key and to-many reverse relations are dropped.
func (c *Controller) writable(payload map[string]any) map[string]any {
	out := make(map[string]any, len(payload))
	for key, val := range payload {
		f := c.Model.Field(key)
		if f == nil {
			f = c.belongsToByFK(key)
		}
		if f == nil || !c.canWrite(f) {
			continue
		}
		out[key] = val
	}
	return out
}

func (c *Controller) belongsToByFK(key string) *model.Field {
	for _, f := range c.Model.Fields {
		if f.Relation == model.BelongsTo && f.FK == key {
			return f
		}
	}
	return nil
}

func (c *Controller) canWrite(f *model.Field) bool {
	if f.Relation == model.HasOne || f.Relation == model.HasMany {
		return false
	}
	if contains(c.Config.Excluded, f.Name) {
		return false
	}
	if c.Config.Included.All {
		return f.Name != c.Model.PrimaryKey
	}
	return c.Config.Included.Contains(f.Name)
}

// cacheKey is read before the store so a write that lands mid-request moves
// later readers to a new key. An empty key disables caching for the request.
func (c *Controller) cacheKey(r *http.Request) string {
	gen, err := c.deps.Cache.Generation(r.Context(), c.Model.Name)
	if err != nil {
		logger.Warn("cache_generation_failed", map[string]any{"model": c.Model.Name, "error": err.Error()})
		return ""
	}
	return cache.Key(c.Model.Name, strconv.FormatInt(gen, 10), c.Path, r.URL.RequestURI())
}

func (c *Controller) serveCached(w http.ResponseWriter, r *http.Request, key string) bool {
	if key == "" {
		return false
	}
	entry, ok, err := c.deps.Cache.Get(r.Context(), key)
	if err != nil {
		logger.Warn("cache_get_failed", map[string]any{"key": key, "error": err.Error()})
		return false
	}
	if !ok {
		return false
	}
	w.Header().Set("X-Cache", "HIT")
	response.WriteRaw(w, entry.Status, entry.Body)
	return true
}

func (c *Controller) writeAndCache(w http.ResponseWriter, r *http.Request, key string, e response.Envelope) {
	body, err := e.Encode()
	if err != nil {
		response.Write(w, e)
		return
	}
	if key != "" && e.Status() == http.StatusOK {
		entry := cache.Entry{Status: http.StatusOK, Body: body, StoredAt: time.Now().UTC()}
		if err := c.deps.Cache.Set(r.Context(), key, entry); err != nil {
			logger.Warn("cache_set_failed", map[string]any{"key": key, "error": err.Error()})
		}
	}
	response.WriteRaw(w, e.Status(), body)
}

// flush drops cached responses of every published model.
func (c *Controller) flush(r *http.Request) {
	models := append(c.deps.Options.Models(), c.Model.Name)
	for _, name := range models {
		if err := c.deps.Cache.Flush(r.Context(), name); err != nil {
			logger.Warn("cache_flush_failed", map[string]any{"model": name, "error": err.Error()})
		}
	}
}
