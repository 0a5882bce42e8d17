// Package utils provides small helpers shared by the server, the snapshot
// client and the scripts: size parsing, origin matching, IP extraction and
// JSON responses.
package utils

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"snapreport/pkg/logger"
)

// sizeRegex accepts an integer or decimal number and an optional unit,
// e.g. "5242880", "5MB", "1.5 GB".
var sizeRegex = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*([A-Z]*)$`)

// Binary prefixes: 1KB = 1024 bytes.
var unitMultipliers = map[string]float64{
	"":   1,
	"B":  1,
	"KB": 1 << 10,
	"MB": 1 << 20,
	"GB": 1 << 30,
	"TB": 1 << 40,
}

// ParseSize converts a human-readable size into bytes.
func ParseSize(sizeStr string) (int64, error) {
	raw := strings.ToUpper(strings.TrimSpace(sizeStr))
	if raw == "" {
		return 0, fmt.Errorf("empty size")
	}

	m := sizeRegex.FindStringSubmatch(raw)
	if len(m) != 3 {
		return 0, fmt.Errorf("invalid size format %q", sizeStr)
	}

	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil || value <= 0 {
		return 0, fmt.Errorf("invalid size value %q", sizeStr)
	}

	mult, ok := unitMultipliers[m[2]]
	if !ok {
		return 0, fmt.Errorf("unsupported unit %q in %q", m[2], sizeStr)
	}

	return int64(value * mult), nil
}

// SizeToBytes is ParseSize with a fallback. Parse failures are logged and
// defaultValue is returned.
func SizeToBytes(sizeStr string, defaultValue int64) int64 {
	if strings.TrimSpace(sizeStr) == "" {
		return defaultValue
	}
	n, err := ParseSize(sizeStr)
	if err != nil {
		logger.LogWarn("Utils: %v, using default %s.", err, FormatBytes(defaultValue))
		return defaultValue
	}
	return n
}

// ParseInt parses value and clamps it into [min, max].
// An empty or non-numeric value yields def.
func ParseInt(value string, def int, min int, max int) int {
	if value == "" {
		return def
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	if i < min {
		return min
	}
	if i > max {
		return max
	}
	return i
}
