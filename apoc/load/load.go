// Package load provides the APOC data loading procedures' transport and
// parsing layer: apoc.load.json / jsonArray / jsonParams / xml / html.
//
// Sources are local paths, file:// URLs, or HTTP(S) URLs. Compressed
// payloads are detected by extension (.gz, .bz2, .xz, .zip, .zst); a zip
// member is addressed as `archive.zip!member.json`. Pure GET responses are
// cached on disk when GRAFITO_APOC_CACHE_DIR points at a directory.
package load

import (
	"archive/zip"
	"bytes"
	"compress/bzip2"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// CacheDirEnv names the directory for the GET response cache.
const CacheDirEnv = "GRAFITO_APOC_CACHE_DIR"

// Options mirror the documented apoc.load.* configuration map.
type Options struct {
	Method      string
	Payload     string
	Timeout     time.Duration
	Retry       int
	FailOnError bool
	Headers     map[string]string
	// Auth is "user:password" for basic auth.
	Auth string
	// Compression forces a codec instead of extension sniffing.
	Compression string
}

// DefaultOptions is a plain GET that fails on HTTP errors.
func DefaultOptions() Options {
	return Options{Method: http.MethodGet, Timeout: 30 * time.Second, FailOnError: true}
}

// ParseOptions reads an options map (as passed from Cypher) into Options.
func ParseOptions(m map[string]any) (Options, error) {
	opts := DefaultOptions()
	for key, raw := range m {
		switch strings.ToLower(key) {
		case "method":
			s, ok := raw.(string)
			if !ok {
				return opts, fmt.Errorf("option method must be a string")
			}
			opts.Method = strings.ToUpper(s)
		case "payload":
			s, ok := raw.(string)
			if !ok {
				return opts, fmt.Errorf("option payload must be a string")
			}
			opts.Payload = s
		case "timeout":
			switch v := raw.(type) {
			case int64:
				opts.Timeout = time.Duration(v) * time.Millisecond
			case float64:
				opts.Timeout = time.Duration(v) * time.Millisecond
			default:
				return opts, fmt.Errorf("option timeout must be milliseconds")
			}
		case "retry":
			switch v := raw.(type) {
			case int64:
				opts.Retry = int(v)
			case float64:
				opts.Retry = int(v)
			default:
				return opts, fmt.Errorf("option retry must be a number")
			}
		case "failonerror":
			b, ok := raw.(bool)
			if !ok {
				return opts, fmt.Errorf("option failOnError must be a boolean")
			}
			opts.FailOnError = b
		case "headers":
			hm, ok := raw.(map[string]any)
			if !ok {
				return opts, fmt.Errorf("option headers must be a map")
			}
			opts.Headers = map[string]string{}
			for hk, hv := range hm {
				opts.Headers[hk] = fmt.Sprint(hv)
			}
		case "auth":
			s, ok := raw.(string)
			if !ok {
				return opts, fmt.Errorf("option auth must be a string")
			}
			opts.Auth = s
		case "compression":
			s, ok := raw.(string)
			if !ok {
				return opts, fmt.Errorf("option compression must be a string")
			}
			opts.Compression = strings.ToLower(s)
		default:
			return opts, fmt.Errorf("unknown load option %q", key)
		}
	}
	return opts, nil
}

// Fetch retrieves and decompresses the source, returning the raw bytes.
func Fetch(source string, opts Options) ([]byte, error) {
	source, member := splitZipMember(source)
	var data []byte
	var err error
	switch {
	case strings.HasPrefix(source, "http://"), strings.HasPrefix(source, "https://"):
		data, err = fetchHTTP(source, opts)
	case strings.HasPrefix(source, "file://"):
		u, perr := url.Parse(source)
		if perr != nil {
			return nil, perr
		}
		data, err = os.ReadFile(u.Path)
	default:
		data, err = os.ReadFile(source)
	}
	if err != nil {
		return nil, err
	}
	return decompress(source, member, data, opts.Compression)
}

func splitZipMember(source string) (string, string) {
	if i := strings.Index(source, "!"); i > 0 {
		return source[:i], source[i+1:]
	}
	return source, ""
}

func fetchHTTP(source string, opts Options) ([]byte, error) {
	cacheable := opts.Method == http.MethodGet && opts.Payload == "" &&
		len(opts.Headers) == 0 && opts.Auth == ""
	if cacheable {
		if data, ok := cacheGet(source); ok {
			return data, nil
		}
	}
	client := &http.Client{Timeout: opts.Timeout}
	attempts := opts.Retry + 1
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		var body io.Reader
		if opts.Payload != "" {
			body = strings.NewReader(opts.Payload)
		}
		req, err := http.NewRequest(opts.Method, source, body)
		if err != nil {
			return nil, err
		}
		for k, v := range opts.Headers {
			req.Header.Set(k, v)
		}
		if opts.Auth != "" {
			user, pass, _ := strings.Cut(opts.Auth, ":")
			req.SetBasicAuth(user, pass)
		}
		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode >= 400 {
			lastErr = fmt.Errorf("HTTP %d from %s", resp.StatusCode, source)
			if !opts.FailOnError {
				return nil, nil
			}
			continue
		}
		if cacheable {
			cachePut(source, data)
		}
		return data, nil
	}
	if !opts.FailOnError {
		return nil, nil
	}
	return nil, lastErr
}

func cachePath(source string) (string, bool) {
	dir := os.Getenv(CacheDirEnv)
	if dir == "" {
		return "", false
	}
	sum := sha256.Sum256([]byte(source))
	return filepath.Join(dir, hex.EncodeToString(sum[:])), true
}

func cacheGet(source string) ([]byte, bool) {
	path, ok := cachePath(source)
	if !ok {
		return nil, false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	return data, true
}

func cachePut(source string, data []byte) {
	path, ok := cachePath(source)
	if !ok {
		return
	}
	// Best effort; a failed cache write never fails the load.
	_ = os.WriteFile(path, data, 0o644)
}

func decompress(source, member string, data []byte, forced string) ([]byte, error) {
	codec := forced
	if codec == "" {
		switch strings.ToLower(filepath.Ext(strings.TrimSuffix(source, "!"+member))) {
		case ".gz":
			codec = "gzip"
		case ".bz2":
			codec = "bzip2"
		case ".xz":
			codec = "xz"
		case ".zip":
			codec = "zip"
		case ".zst":
			codec = "zstd"
		default:
			codec = "none"
		}
	}
	switch codec {
	case "none":
		return data, nil
	case "gzip":
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	case "bzip2":
		return io.ReadAll(bzip2.NewReader(bytes.NewReader(data)))
	case "xz":
		r, err := xz.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		return io.ReadAll(r)
	case "zstd":
		r, err := zstd.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	case "zip":
		return readZipMember(data, member)
	default:
		return nil, fmt.Errorf("unknown compression codec %q", codec)
	}
}

func readZipMember(data []byte, member string) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	if len(zr.File) == 0 {
		return nil, fmt.Errorf("empty zip archive")
	}
	target := zr.File[0]
	if member != "" {
		target = nil
		for _, f := range zr.File {
			if f.Name == member {
				target = f
				break
			}
		}
		if target == nil {
			return nil, fmt.Errorf("zip member %q not found", member)
		}
	}
	rc, err := target.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// JSON loads and parses a JSON document. JSONL input becomes a list of
// objects.
func JSON(source string, opts Options) (any, error) {
	data, err := Fetch(source, opts)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}
	return ParseJSON(data)
}

// ParseJSON decodes a JSON or JSONL payload into the evaluator's value
// domain (int64 for integral numbers).
func ParseJSON(data []byte) (any, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if v, err := decodeJSON(trimmed); err == nil {
		return v, nil
	}
	// JSONL: one object per line.
	var out []any
	for i, line := range bytes.Split(trimmed, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		v, err := decodeJSON(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		out = append(out, v)
	}
	if out == nil {
		return nil, fmt.Errorf("invalid JSON input")
	}
	return out, nil
}

func decodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("trailing JSON content")
	}
	return convertNumbers(v), nil
}

func convertNumbers(v any) any {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		f, _ := val.Float64()
		return f
	case []any:
		for i, item := range val {
			val[i] = convertNumbers(item)
		}
		return val
	case map[string]any:
		for k, item := range val {
			val[k] = convertNumbers(item)
		}
		return val
	default:
		return v
	}
}

// JSONArray loads a JSON document that must be an array.
func JSONArray(source string, opts Options) ([]any, error) {
	v, err := JSON(source, opts)
	if err != nil {
		return nil, err
	}
	if arr, ok := v.([]any); ok {
		return arr, nil
	}
	return nil, fmt.Errorf("document at %s is not a JSON array", source)
}
