package itests

import (
	"net/http"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func Test_Admin_UsesDefaultOptions(t *testing.T) {
	cat := create(t, "/api/main/category/", map[string]any{"title": "Theatre"})
	client := create(t, "/api/crm/client/", map[string]any{"name": "Eve"})
	ev := create(t, "/api/admin/main/event/", map[string]any{
		"title":       "Hamlet",
		"password":    "p",
		"secret_note": "front row",
		"category":    cat,
		"clients":     []int64{client},
	})

	status, env := doJSON(t, http.MethodGet, "/api/admin/main/event/"+itoa(ev), nil)
	if status != http.StatusOK {
		t.Fatalf("admin get: status=%d env=%+v", status, env)
	}
	want := map[string]any{
		"id":        float64(ev),
		"title":     "Hamlet",
		"published": false,
		"poster":    "",
		"category":  float64(cat),
		"clients":   []any{float64(client)},
	}
	if diff := cmp.Diff(want, env.Data); diff != "" {
		t.Fatalf("admin event mismatch (-want +got):\n%s", diff)
	}
	// hidden, yet still written
	n, err := CountRows(testDB, "events", "id = ? AND secret_note = ?", ev, "front row")
	if err != nil || n != 1 {
		t.Fatalf("admin write of secret_note: n=%d err=%v", n, err)
	}

	// the declared controller still serves its own options
	_, env = doJSON(t, http.MethodGet, "/api/main/event/"+itoa(ev), nil)
	got := dataMap(t, env)
	if _, ok := got["secret_note"]; ok {
		t.Fatalf("declared sensitive field leaked: %#v", got)
	}
}

func Test_Admin_RootNotRecursive(t *testing.T) {
	parent := create(t, "/api/main/category/", map[string]any{"title": "Arts"})
	child := create(t, "/api/main/category/", map[string]any{"title": "Opera", "parent": parent})

	_, env := doJSON(t, http.MethodGet, "/api/admin/main/category/"+itoa(child), nil)
	if got := dataMap(t, env)["parent"]; got != float64(parent) {
		t.Fatalf("admin parent should collapse to its key, got %#v", got)
	}
}

func Test_Admin_AppSelectionAndGenerateCRUD(t *testing.T) {
	cases := []struct {
		path string
		want int
	}{
		{"/api/admin/crm/client/", http.StatusNotFound},
		{"/api/admin/main/note/", http.StatusOK},
		{"/api/main/note/", http.StatusNotFound},
		{"/api/crm/client/", http.StatusOK},
		{"/healthz", http.StatusOK},
	}
	for _, tc := range cases {
		if got := rawStatus(t, tc.path); got != tc.want {
			t.Fatalf("GET %s = %d, want %d", tc.path, got, tc.want)
		}
	}
}
