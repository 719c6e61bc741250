package util

import (
	"fmt"
	"strconv"
	"strings"
)

// sizeUnits is ordered so that longer suffixes are tried first.
var sizeUnits = []struct {
	suffix     string
	multiplier int64
}{
	{"KIB", 1 << 10}, {"MIB", 1 << 20}, {"GIB", 1 << 30}, {"TIB", 1 << 40},
	{"KB", 1 << 10}, {"MB", 1 << 20}, {"GB", 1 << 30}, {"TB", 1 << 40},
	{"B", 1},
}

// ParseSize parses a human-readable size string (e.g., "10MB", "1.5GB") into bytes
func ParseSize(sizeStr string) (int64, error) {
	sizeStr = strings.TrimSpace(strings.ToUpper(sizeStr))
	if sizeStr == "" {
		return 0, fmt.Errorf("empty size string")
	}

	for _, unit := range sizeUnits {
		if !strings.HasSuffix(sizeStr, unit.suffix) {
			continue
		}
		numberPart := strings.TrimSpace(strings.TrimSuffix(sizeStr, unit.suffix))
		number, err := strconv.ParseFloat(numberPart, 64)
		if err != nil || number < 0 {
			return 0, fmt.Errorf("invalid size number: %s", numberPart)
		}
		return int64(number * float64(unit.multiplier)), nil
	}

	// No unit means bytes
	n, err := strconv.ParseInt(sizeStr, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid size format: %s", sizeStr)
	}
	return n, nil
}

// FormatSize formats a size in bytes to a human-readable string
func FormatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}

	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
