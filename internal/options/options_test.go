package options

import (
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"
)

func boolPtr(v bool) *bool { return &v }

func TestResolve_NilDeclarationIsDefault(t *testing.T) {
	got := Resolve(nil)
	want := Config{
		GenerateCRUD: true,
		Included:     FieldList{All: true},
		Excluded:     []string{},
		Sensitive:    []string{"password", "token"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("defaults mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, Resolve(&Declaration{})); diff != "" {
		t.Fatalf("empty declaration mismatch (-want +got):\n%s", diff)
	}
}

func TestResolve_SensitiveFloorAlwaysUnioned(t *testing.T) {
	got := Resolve(&Declaration{SensitiveFields: StringList{"secret", "token"}})
	want := []string{"password", "secret", "token"}
	if diff := cmp.Diff(want, got.Sensitive); diff != "" {
		t.Fatalf("sensitive mismatch (-want +got):\n%s", diff)
	}

	// even a config built by hand cannot drop the floor
	cfg := Config{Included: AllFields()}
	if cfg.ShowField("password") || cfg.ShowField("token") {
		t.Fatalf("floor fields must stay hidden")
	}
}

func TestResolve_ExcludeWinsOverFields(t *testing.T) {
	decl := &Declaration{
		ModelFields:  &FieldList{Names: []string{"id", "title"}},
		ModelExclude: StringList{"title"},
	}
	cfg := Resolve(decl)
	if !cfg.Included.All {
		t.Fatalf("exclusion should reset the allow-list, got %+v", cfg.Included)
	}
	cases := map[string]bool{"id": true, "title": false, "status": true, "password": false}
	for field, want := range cases {
		if got := cfg.ShowField(field); got != want {
			t.Fatalf("ShowField(%q) = %v, want %v", field, got, want)
		}
	}
}

func TestShowField_AllowList(t *testing.T) {
	cfg := Resolve(&Declaration{ModelFields: &FieldList{Names: []string{"id", "password"}}})
	if !cfg.ShowField("id") {
		t.Fatalf("id should be visible")
	}
	if cfg.ShowField("title") {
		t.Fatalf("title is not in the allow-list")
	}
	if cfg.ShowField("password") {
		t.Fatalf("sensitive field visible through allow-list")
	}
}

func TestShowField_EmptyAllowListHidesEverything(t *testing.T) {
	cfg := Resolve(&Declaration{ModelFields: &FieldList{Names: []string{}}})
	if cfg.ShowField("id") {
		t.Fatalf("empty allow-list must hide every field")
	}
}

func TestEffectiveExcluded_RecomputedEachCall(t *testing.T) {
	cfg := Resolve(&Declaration{ModelExclude: StringList{"notes"}})
	if diff := cmp.Diff([]string{"notes", "password", "token"}, cfg.EffectiveExcluded()); diff != "" {
		t.Fatalf("effective excluded mismatch (-want +got):\n%s", diff)
	}
	cfg.Excluded = append(cfg.Excluded, "internal")
	cfg.Sensitive = nil
	if diff := cmp.Diff([]string{"internal", "notes", "password", "token"}, cfg.EffectiveExcluded()); diff != "" {
		t.Fatalf("effective excluded after edit mismatch (-want +got):\n%s", diff)
	}
}

func TestResolve_FlagsFromYAML(t *testing.T) {
	src := []byte(`
model: event
generate_crud: false
model_fields: id, title , category
model_recursive: true
model_join: true
sensitive_fields: [api_key]
`)
	var decl Declaration
	if err := yaml.Unmarshal(src, &decl); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	cfg := Resolve(&decl)
	want := Config{
		GenerateCRUD: false,
		Included:     FieldList{Names: []string{"category", "id", "title"}},
		Excluded:     []string{},
		Sensitive:    []string{"api_key", "password", "token"},
		Recursive:    true,
		Join:         true,
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
	if decl.Model != "event" {
		t.Fatalf("model = %q", decl.Model)
	}
}

func TestFieldList_AllSentinel(t *testing.T) {
	var decl Declaration
	if err := yaml.Unmarshal([]byte(`model_fields: __all__`), &decl); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decl.ModelFields == nil || !decl.ModelFields.All {
		t.Fatalf("expected all sentinel, got %#v", decl.ModelFields)
	}
	out, err := yaml.Marshal(Resolve(&decl))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back map[string]any
	if err := yaml.Unmarshal(out, &back); err != nil {
		t.Fatalf("unmarshal back: %v", err)
	}
	if back["model_fields"] != AllSentinel {
		t.Fatalf("model_fields rendered as %#v", back["model_fields"])
	}
}

func TestStringList_CommaSeparatedScalar(t *testing.T) {
	var cfg struct {
		Exclude StringList `yaml:"exclude"`
	}
	if err := yaml.Unmarshal([]byte("exclude: notes, internal_code"), &cfg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if diff := cmp.Diff(StringList{"notes", "internal_code"}, cfg.Exclude); diff != "" {
		t.Fatalf("exclude parsed wrong (-want +got):\n%s", diff)
	}
}

func TestRegistry_FirstPublishWins(t *testing.T) {
	reg := NewRegistry()
	first := Resolve(&Declaration{ModelRecursive: boolPtr(true)})
	if err := reg.Publish("event", first); err != nil {
		t.Fatalf("publish: %v", err)
	}
	err := reg.Publish("event", Default())
	if !errors.Is(err, ErrAlreadyPublished) {
		t.Fatalf("expected ErrAlreadyPublished, got %v", err)
	}
	got, ok := reg.Lookup("event")
	if !ok || !got.Recursive {
		t.Fatalf("first config should stay published, got %+v", got)
	}
}

func TestRegistry_ConcurrentLookup(t *testing.T) {
	reg := NewRegistry()
	_ = reg.Publish("category", Default())
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := reg.Lookup("category"); !ok {
				t.Errorf("lookup failed")
			}
		}()
	}
	wg.Wait()
	if diff := cmp.Diff([]string{"category"}, reg.Models()); diff != "" {
		t.Fatalf("models mismatch (-want +got):\n%s", diff)
	}
}

func TestOverrideAndConfigFor(t *testing.T) {
	reg := NewRegistry()
	_ = reg.Publish("category", Resolve(&Declaration{ModelJoin: boolPtr(true)}))
	custom := Resolve(&Declaration{ModelRecursive: boolPtr(true)})
	src := Override{Source: reg, Model: "event", Config: custom}

	if !ConfigFor(src, "event").Recursive {
		t.Fatalf("override not applied")
	}
	if !ConfigFor(src, "category").Join {
		t.Fatalf("registry config not used for other models")
	}
	if diff := cmp.Diff(Default(), ConfigFor(src, "client")); diff != "" {
		t.Fatalf("unknown model should get defaults (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(Default(), ConfigFor(nil, "client")); diff != "" {
		t.Fatalf("nil source should give defaults (-want +got):\n%s", diff)
	}
}
