// Package util provides APOC utility functions.
//
// This package implements apoc.util.* helpers: hashing and stream
// compression. Compression codecs are gzip and zstd via klauspost/compress.
package util

import (
	"bytes"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// MD5 returns the hex MD5 of the text.
func MD5(text string) string {
	sum := md5.Sum([]byte(text))
	return hex.EncodeToString(sum[:])
}

// SHA1 returns the hex SHA-1 of the text.
func SHA1(text string) string {
	sum := sha1.Sum([]byte(text))
	return hex.EncodeToString(sum[:])
}

// SHA256 returns the hex SHA-256 of the text.
func SHA256(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Compress compresses text with the named codec ("gzip" default, "zstd").
//
// Example:
//
//	apoc.util.compress('hello', {compression: 'gzip'})
func Compress(text string, codec string) ([]byte, error) {
	var buf bytes.Buffer
	switch strings.ToLower(codec) {
	case "", "gzip":
		w := gzip.NewWriter(&buf)
		if _, err := w.Write([]byte(text)); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	case "zstd":
		w, err := zstd.NewWriter(&buf)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write([]byte(text)); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown compression codec %q", codec)
	}
	return buf.Bytes(), nil
}

// Decompress reverses Compress for the named codec.
func Decompress(data []byte, codec string) (string, error) {
	switch strings.ToLower(codec) {
	case "", "gzip":
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return "", err
		}
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			return "", err
		}
		return string(out), nil
	case "zstd":
		r, err := zstd.NewReader(bytes.NewReader(data))
		if err != nil {
			return "", err
		}
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			return "", err
		}
		return string(out), nil
	default:
		return "", fmt.Errorf("unknown compression codec %q", codec)
	}
}
