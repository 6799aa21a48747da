package load

import (
	"archive/zip"
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
)

func TestParseJSONShapes(t *testing.T) {
	obj, err := ParseJSON([]byte(`{"a": 1, "b": [true, null]}`))
	if err != nil {
		t.Fatal(err)
	}
	m := obj.(map[string]any)
	if m["a"] != int64(1) {
		t.Errorf("integer decoded as %T", m["a"])
	}

	arr, err := ParseJSON([]byte(`[1, 2.5]`))
	if err != nil {
		t.Fatal(err)
	}
	list := arr.([]any)
	if list[0] != int64(1) || list[1] != 2.5 {
		t.Errorf("array = %v", list)
	}

	// JSONL
	lines, err := ParseJSON([]byte("{\"i\": 1}\n{\"i\": 2}\n"))
	if err != nil {
		t.Fatal(err)
	}
	if rows := lines.([]any); len(rows) != 2 {
		t.Errorf("jsonl rows = %v", rows)
	}

	if _, err := ParseJSON([]byte("{nope")); err == nil {
		t.Error("malformed input should error")
	}
}

func TestFetchLocalAndFileURL(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.json")
	os.WriteFile(path, []byte(`{"ok": true}`), 0o644)

	for _, source := range []string{path, "file://" + path} {
		data, err := Fetch(source, DefaultOptions())
		if err != nil {
			t.Errorf("Fetch(%q): %v", source, err)
			continue
		}
		if string(data) != `{"ok": true}` {
			t.Errorf("Fetch(%q) = %q", source, data)
		}
	}
}

func TestFetchGzipByExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.json.gz")
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	w.Write([]byte(`[1]`))
	w.Close()
	os.WriteFile(path, buf.Bytes(), 0o644)

	arr, err := JSONArray(path, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if len(arr) != 1 || arr[0] != int64(1) {
		t.Errorf("gz array = %v", arr)
	}
}

func TestFetchZipMember(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bundle.zip")
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	f1, _ := zw.Create("first.json")
	f1.Write([]byte(`{"which": "first"}`))
	f2, _ := zw.Create("second.json")
	f2.Write([]byte(`{"which": "second"}`))
	zw.Close()
	os.WriteFile(path, buf.Bytes(), 0o644)

	v, err := JSON(path+"!second.json", DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if v.(map[string]any)["which"] != "second" {
		t.Errorf("zip member = %v", v)
	}

	// default member is the first entry
	v, err = JSON(path, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if v.(map[string]any)["which"] != "first" {
		t.Errorf("default zip member = %v", v)
	}

	if _, err := JSON(path+"!missing.json", DefaultOptions()); err == nil {
		t.Error("missing member should error")
	}
}

func TestHTTPOptionsAndRetry(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if r.Header.Get("X-Token") != "secret" {
			t.Errorf("missing header")
		}
		if user, pass, _ := r.BasicAuth(); user != "u" || pass != "p" {
			t.Errorf("basic auth = %s:%s", user, pass)
		}
		if attempts == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"done": true}`))
	}))
	defer server.Close()

	opts, err := ParseOptions(map[string]any{
		"method":  "POST",
		"payload": `{"q": 1}`,
		"retry":   int64(2),
		"headers": map[string]any{"X-Token": "secret"},
		"auth":    "u:p",
	})
	if err != nil {
		t.Fatal(err)
	}
	v, err := JSON(server.URL, opts)
	if err != nil {
		t.Fatal(err)
	}
	if v.(map[string]any)["done"] != true {
		t.Errorf("response = %v", v)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d", attempts)
	}
}

func TestFailOnErrorFalseSwallowsHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	opts := DefaultOptions()
	opts.FailOnError = false
	v, err := JSON(server.URL, opts)
	if err != nil {
		t.Fatalf("failOnError=false returned %v", err)
	}
	if v != nil {
		t.Errorf("value = %v, want nil", v)
	}
}

func TestGetCacheUsesCacheDir(t *testing.T) {
	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte(`{"n": 1}`))
	}))
	defer server.Close()

	t.Setenv(CacheDirEnv, t.TempDir())
	opts := DefaultOptions()
	if _, err := JSON(server.URL, opts); err != nil {
		t.Fatal(err)
	}
	if _, err := JSON(server.URL, opts); err != nil {
		t.Fatal(err)
	}
	if hits != 1 {
		t.Errorf("server hits = %d, want 1 (second request cached)", hits)
	}

	// requests with headers bypass the cache
	withHeaders := opts
	withHeaders.Headers = map[string]string{"X": "y"}
	if _, err := JSON(server.URL, withHeaders); err != nil {
		t.Fatal(err)
	}
	if hits != 2 {
		t.Errorf("server hits = %d, want 2 (headers bypass cache)", hits)
	}
}

func TestParseXMLAndHTML(t *testing.T) {
	v, err := ParseXML([]byte(`<root attr="1"><child>text</child></root>`))
	if err != nil {
		t.Fatal(err)
	}
	root := v.(map[string]any)
	if root["_type"] != "root" {
		t.Errorf("root = %v", root)
	}
	attrs := root["_attributes"].(map[string]any)
	if attrs["attr"] != "1" {
		t.Errorf("attrs = %v", attrs)
	}
	children := root["_children"].([]any)
	child := children[0].(map[string]any)
	if child["_text"] != "text" {
		t.Errorf("child = %v", child)
	}

	dir := t.TempDir()
	page := filepath.Join(dir, "page.html")
	os.WriteFile(page, []byte(`<html><head><title>T</title><script>junk()</script></head>
		<body><a href="/x">link</a>Hello</body></html>`), 0o644)
	out, err := HTML(page, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if out["title"] != "T" {
		t.Errorf("title = %v", out["title"])
	}
	links := out["links"].([]any)
	if len(links) != 1 || links[0] != "/x" {
		t.Errorf("links = %v", links)
	}
}

func TestParseOptionsRejectsUnknownKeys(t *testing.T) {
	if _, err := ParseOptions(map[string]any{"bogus": 1}); err == nil {
		t.Error("unknown option should error")
	}
	if _, err := ParseOptions(map[string]any{"timeout": "soon"}); err == nil {
		t.Error("non-numeric timeout should error")
	}
}
