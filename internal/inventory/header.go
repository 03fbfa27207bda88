package inventory

import (
	"bufio"
	"bytes"
	"io"
	"os"
	"strings"
)

// headerReadLimit bounds how much of each file is searched for headers.
const headerReadLimit = 8 * 1024

// Header field names recognised in a plugin's main file.
const (
	FieldPluginName = "Plugin Name"
	FieldVersion    = "Version"
)

// ReadHeaders returns the requested header fields from the top of path.
// Missing fields map to "".
func ReadHeaders(path string, fields ...string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, headerReadLimit))
	if err != nil {
		return nil, err
	}
	return ParseHeaders(data, fields...), nil
}

// ParseHeaders extracts "Name: value" header fields from a file comment
// block. The first occurrence of each field wins.
func ParseHeaders(data []byte, fields ...string) map[string]string {
	out := make(map[string]string, len(fields))
	for _, field := range fields {
		out[field] = ""
	}

	data = bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
	data = bytes.ReplaceAll(data, []byte("\r"), []byte("\n"))

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, headerReadLimit), headerReadLimit+1)
	for scanner.Scan() {
		line := stripCommentLead(scanner.Text())
		for _, field := range fields {
			if out[field] != "" {
				continue
			}
			if value, ok := matchField(line, field); ok {
				out[field] = value
			}
		}
	}

	return out
}

func stripCommentLead(line string) string {
	line = strings.TrimLeft(line, " \t")
	line = strings.TrimPrefix(line, "<?php")
	return strings.TrimLeft(line, " \t/*#@")
}

func matchField(line, field string) (string, bool) {
	prefix := field + ":"
	if len(line) < len(prefix) || !strings.EqualFold(line[:len(prefix)], prefix) {
		return "", false
	}
	return cleanHeaderValue(line[len(prefix):]), true
}

// cleanHeaderValue drops a trailing comment or PHP close tag.
func cleanHeaderValue(v string) string {
	if i := strings.Index(v, "*/"); i >= 0 {
		v = v[:i]
	}
	if i := strings.Index(v, "?>"); i >= 0 {
		v = v[:i]
	}
	return strings.TrimSpace(v)
}
