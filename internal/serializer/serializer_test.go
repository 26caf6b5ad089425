package serializer

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"EasyAPI/internal/logger"
	"EasyAPI/internal/model"
	"EasyAPI/internal/options"

	"github.com/google/go-cmp/cmp"
)

type fakeEntity struct {
	m       *model.Model
	values  map[string]any
	toOne   map[string]*fakeEntity
	toMany  map[string][]*fakeEntity
	errs    map[string]error
	touched map[string]int
}

func (f *fakeEntity) ModelName() string      { return f.m.Name }
func (f *fakeEntity) PrimaryKey() any        { return f.values[f.m.PrimaryKey] }
func (f *fakeEntity) Fields() []*model.Field { return f.m.Fields }

func (f *fakeEntity) Value(name string) (any, error) {
	if err := f.errs[name]; err != nil {
		return nil, err
	}
	return f.values[name], nil
}

func (f *fakeEntity) ToOne(name string) (Entity, error) {
	if err := f.errs[name]; err != nil {
		return nil, err
	}
	related := f.toOne[name]
	if related == nil {
		return nil, nil
	}
	return related, nil
}

func (f *fakeEntity) ToMany(name string) ([]Entity, bool, error) {
	if f.touched != nil {
		f.touched[name]++
	}
	if err := f.errs[name]; err != nil {
		return nil, true, err
	}
	items, ok := f.toMany[name]
	if !ok {
		return nil, false, nil
	}
	out := make([]Entity, len(items))
	for i, item := range items {
		out[i] = item
	}
	return out, true, nil
}

type fixture struct {
	event, category, client *model.Model
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	reg, err := model.NewRegistry(
		&model.Model{Name: "event", Fields: []*model.Field{
			{Name: "id", Type: "int"},
			{Name: "title"},
			{Name: "password"},
			{Name: "category", Relation: model.BelongsTo, Model: "category"},
			{Name: "clients", Relation: model.ManyToMany, Model: "client"},
		}},
		&model.Model{Name: "category", Fields: []*model.Field{
			{Name: "id", Type: "int"},
			{Name: "title"},
			{Name: "featured", Relation: model.BelongsTo, Model: "event"},
			{Name: "events", Relation: model.HasMany, Model: "event"},
		}},
		&model.Model{Name: "client", Fields: []*model.Field{
			{Name: "id", Type: "int"},
			{Name: "name"},
			{Name: "token"},
			{Name: "friends", Relation: model.ManyToMany, Model: "client"},
		}},
	)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	fx := fixture{}
	fx.event, _ = reg.Get("event")
	fx.category, _ = reg.Get("category")
	fx.client, _ = reg.Get("client")
	return fx
}

func entity(m *model.Model, values map[string]any) *fakeEntity {
	return &fakeEntity{
		m:      m,
		values: values,
		toOne:  map[string]*fakeEntity{},
		toMany: map[string][]*fakeEntity{},
		errs:   map[string]error{},
	}
}

func publish(t *testing.T, configs map[string]*options.Declaration) *options.Registry {
	t.Helper()
	reg := options.NewRegistry()
	for name, decl := range configs {
		if err := reg.Publish(name, options.Resolve(decl)); err != nil {
			t.Fatalf("publish %s: %v", name, err)
		}
	}
	return reg
}

func flag(v bool) *bool { return &v }

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	logger.UseWriter(&buf)
	t.Cleanup(func() { logger.UseWriter(&bytes.Buffer{}) })
	return &buf
}

func TestSerializeEntity_CollapsesToOneAndRedacts(t *testing.T) {
	fx := newFixture(t)
	category := entity(fx.category, map[string]any{"id": 2, "title": "Y"})
	event := entity(fx.event, map[string]any{"id": 1, "title": "X", "password": "secret"})
	event.toOne["category"] = category

	s := New(publish(t, nil))
	got := s.SerializeEntity(event, ReferrerChain{})
	want := map[string]any{"id": 1, "title": "X", "category": 2}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestSerializeEntity_RecursiveExpandsToOne(t *testing.T) {
	fx := newFixture(t)
	category := entity(fx.category, map[string]any{"id": 2, "title": "Y"})
	event := entity(fx.event, map[string]any{"id": 1, "title": "X", "password": "secret"})
	event.toOne["category"] = category

	s := New(publish(t, map[string]*options.Declaration{"event": {ModelRecursive: flag(true)}}))
	got := s.SerializeEntity(event, ReferrerChain{})
	want := map[string]any{
		"id":       1,
		"title":    "X",
		"category": map[string]any{"id": 2, "title": "Y", "featured": nil},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestSerializeEntity_CycleOmitsBackReference(t *testing.T) {
	fx := newFixture(t)
	category := entity(fx.category, map[string]any{"id": 2, "title": "Y"})
	event := entity(fx.event, map[string]any{"id": 1, "title": "X"})
	event.toOne["category"] = category
	category.toOne["featured"] = event

	s := New(publish(t, map[string]*options.Declaration{
		"event":    {ModelRecursive: flag(true)},
		"category": {ModelRecursive: flag(true)},
	}))
	got := s.SerializeEntity(event, ReferrerChain{})
	want := map[string]any{
		"id":       1,
		"title":    "X",
		"category": map[string]any{"id": 2, "title": "Y"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestSerializeEntity_SensitiveHiddenEvenWhenListed(t *testing.T) {
	fx := newFixture(t)
	client := entity(fx.client, map[string]any{"id": 5, "name": "Ann", "token": "t0k"})
	s := New(publish(t, map[string]*options.Declaration{
		"client": {
			ModelFields:     &options.FieldList{Names: []string{"id", "name", "token"}},
			SensitiveFields: options.StringList{"name"},
		},
	}))
	got := s.SerializeEntity(client, ReferrerChain{})
	if diff := cmp.Diff(map[string]any{"id": 5}, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestSerializeToMany_JoinAndOrder(t *testing.T) {
	fx := newFixture(t)
	x := entity(fx.client, map[string]any{"id": 10, "name": "x"})
	y := entity(fx.client, map[string]any{"id": 11, "name": "y"})

	cases := []struct {
		name string
		join bool
		want any
	}{
		{"join", true, []any{
			map[string]any{"id": 10, "name": "x"},
			map[string]any{"id": 11, "name": "y"},
		}},
		{"pk_list", false, []any{10, 11}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			event := entity(fx.event, map[string]any{"id": 1, "title": "X"})
			event.toMany["clients"] = []*fakeEntity{x, y}
			s := New(publish(t, map[string]*options.Declaration{"event": {ModelJoin: flag(tc.join)}}))
			got := s.SerializeEntity(event, ReferrerChain{})
			if diff := cmp.Diff(tc.want, got["clients"]); diff != "" {
				t.Fatalf("clients mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSerializeToMany_UnloadedAbsentEmptyIsList(t *testing.T) {
	fx := newFixture(t)
	category := entity(fx.category, map[string]any{"id": 2, "title": "Y"})
	s := New(publish(t, nil))

	got := s.SerializeEntity(category, ReferrerChain{})
	if _, ok := got["events"]; ok {
		t.Fatalf("unloaded to-many must be absent, got %#v", got["events"])
	}

	category.toMany["events"] = nil
	got = s.SerializeEntity(category, ReferrerChain{})
	if diff := cmp.Diff([]any{}, got["events"]); diff != "" {
		t.Fatalf("empty to-many mismatch (-want +got):\n%s", diff)
	}
}

func TestSerializeToMany_JoinCollapsesMembersOnChain(t *testing.T) {
	fx := newFixture(t)
	ann := entity(fx.client, map[string]any{"id": 1, "name": "Ann"})
	bob := entity(fx.client, map[string]any{"id": 2, "name": "Bob"})
	ann.toMany["friends"] = []*fakeEntity{bob}
	bob.toMany["friends"] = []*fakeEntity{ann, bob}

	s := New(publish(t, map[string]*options.Declaration{"client": {ModelJoin: flag(true)}}))
	got := s.SerializeEntity(ann, ReferrerChain{})
	want := map[string]any{
		"id":   1,
		"name": "Ann",
		"friends": []any{
			map[string]any{"id": 2, "name": "Bob", "friends": []any{1, 2}},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestSerializeEntity_RelationErrorsAreLocal(t *testing.T) {
	buf := captureLog(t)
	fx := newFixture(t)
	event := entity(fx.event, map[string]any{"id": 7, "title": "X"})
	event.errs["category"] = errors.New("dangling category_id=99")
	event.errs["clients"] = errors.New("prefetch failed")
	event.errs["title"] = errors.New("unreadable")

	s := New(publish(t, nil))
	got := s.SerializeEntity(event, ReferrerChain{})
	want := map[string]any{"id": 7, "title": "", "category": nil}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}

	logs := buf.String()
	for _, event := range []string{"serialize_to_one_failed", "serialize_to_many_failed", "serialize_value_failed"} {
		if !strings.Contains(logs, event) {
			t.Fatalf("log missing %s: %s", event, logs)
		}
	}
	if !strings.Contains(logs, `"field":"category"`) || !strings.Contains(logs, `"pk":7`) {
		t.Fatalf("log should name the entity and field: %s", logs)
	}
}

func TestSerialize_Dispatch(t *testing.T) {
	fx := newFixture(t)
	a := entity(fx.category, map[string]any{"id": 1, "title": "A"})
	b := entity(fx.category, map[string]any{"id": 2, "title": "B"})
	s := New(publish(t, nil))

	want := []map[string]any{{"id": 1, "title": "A", "featured": nil}, {"id": 2, "title": "B", "featured": nil}}
	if diff := cmp.Diff(want, s.Serialize([]Entity{a, b})); diff != "" {
		t.Fatalf("collection mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, s.Serialize([]*fakeEntity{a, b})); diff != "" {
		t.Fatalf("typed collection mismatch (-want +got):\n%s", diff)
	}
	page := map[string]any{"items": []Entity{a, b}, "count": 2}
	if diff := cmp.Diff(want, s.Serialize(page)); diff != "" {
		t.Fatalf("page mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want[0], s.Serialize(a)); diff != "" {
		t.Fatalf("entity mismatch (-want +got):\n%s", diff)
	}

	var missing *fakeEntity
	if got := s.Serialize(Entity(missing)); got != nil {
		t.Fatalf("typed nil entity should serialize to nil, got %#v", got)
	}
	if got := s.Serialize("plain"); got != "plain" {
		t.Fatalf("passthrough broken: %#v", got)
	}
}

func TestSerialize_PlainDataIsIdempotent(t *testing.T) {
	fx := newFixture(t)
	event := entity(fx.event, map[string]any{"id": 1, "title": "X", "password": "p"})
	s := New(publish(t, nil))

	once := s.Serialize(event)
	twice := s.Serialize(once)
	if diff := cmp.Diff(once, twice); diff != "" {
		t.Fatalf("re-serializing plain data changed it (-once +twice):\n%s", diff)
	}
	if _, err := json.Marshal(twice); err != nil {
		t.Fatalf("output not JSON encodable: %v", err)
	}
}

func TestSerializer_DoesNotFetchHiddenRelations(t *testing.T) {
	fx := newFixture(t)
	category := entity(fx.category, map[string]any{"id": 2, "title": "Y"})
	category.touched = map[string]int{}
	s := New(publish(t, map[string]*options.Declaration{"category": {ModelExclude: options.StringList{"events"}}}))
	s.SerializeEntity(category, ReferrerChain{})
	if category.touched["events"] != 0 {
		t.Fatalf("hidden relation was read %d times", category.touched["events"])
	}
}

func TestSerializer_ConcurrentUse(t *testing.T) {
	fx := newFixture(t)
	s := New(publish(t, map[string]*options.Declaration{"event": {ModelRecursive: flag(true)}}))
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			category := entity(fx.category, map[string]any{"id": id, "title": "c"})
			event := entity(fx.event, map[string]any{"id": id, "title": "e"})
			event.toOne["category"] = category
			got := s.SerializeEntity(event, ReferrerChain{})
			nested, ok := got["category"].(map[string]any)
			if !ok || nested["id"] != id {
				t.Errorf("unexpected nested category: %#v", got["category"])
			}
		}(i)
	}
	wg.Wait()
}

func TestReferrerChain_WithDoesNotShareBacking(t *testing.T) {
	fx := newFixture(t)
	root := ReferrerChain{}.With(entity(fx.event, map[string]any{"id": 1}))
	left := root.With(entity(fx.client, map[string]any{"id": 1}))
	right := root.With(entity(fx.client, map[string]any{"id": 2}))

	if root.Len() != 1 || left.Len() != 2 || right.Len() != 2 {
		t.Fatalf("unexpected lengths %d %d %d", root.Len(), left.Len(), right.Len())
	}
	if left.Contains(entity(fx.client, map[string]any{"id": 2})) {
		t.Fatalf("sibling branches share state")
	}
	if !right.Contains(entity(fx.event, map[string]any{"id": 1})) {
		t.Fatalf("ancestor missing from chain")
	}
}
