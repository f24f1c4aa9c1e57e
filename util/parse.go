package util

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ParseKeyValueFile parses a /proc style file of "key: value" or
// "key value" lines.
func ParseKeyValueFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseKeyValue(f)
}

// ParseKeyValue reads "key: value" or "key value" lines from r.
func ParseKeyValue(r io.Reader) (map[string]string, error) {
	m := make(map[string]string)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if key, val, ok := splitKeyValue(sc.Text()); ok {
			m[key] = val
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return m, nil
}

func splitKeyValue(line string) (key, val string, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", "", false
	}
	if k, v, found := strings.Cut(line, ":"); found {
		key, val = strings.TrimSpace(k), strings.TrimSpace(v)
	} else {
		fields := strings.Fields(line)
		key, val = fields[0], strings.Join(fields[1:], " ")
	}
	return key, val, key != ""
}

// ParseKB parses a /proc style "123 kB" value into bytes.
func ParseKB(s string) (uint64, error) {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "kB"))
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse kB value %q: %w", s, err)
	}
	return v * 1024, nil
}
