package itests

import (
	"net/http"
	"strconv"
	"testing"
)

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}

// rawStatus issues a GET without decoding the body.
func rawStatus(t *testing.T, path string) int {
	t.Helper()
	resp, err := http.Get(testBaseURL + path)
	if err != nil {
		t.Fatalf("GET %s failed: %v", path, err)
	}
	defer resp.Body.Close()
	return resp.StatusCode
}
