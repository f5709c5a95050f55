package config

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseStages parses the compact stage syntax used on the command line:
// comma-separated "duration:target" pairs, e.g. "10s:10,20s:50,10s:0".
func ParseStages(s string) ([]StageConfig, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("no stages given")
	}

	var stages []StageConfig
	for i, part := range strings.Split(s, ",") {
		durStr, targetStr, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok {
			return nil, fmt.Errorf("stage %d: expected duration:target, got %q", i+1, part)
		}

		dur, err := ParseDurationString(durStr)
		if err != nil {
			return nil, fmt.Errorf("stage %d: %w", i+1, err)
		}
		if dur < 0 {
			return nil, fmt.Errorf("stage %d: duration cannot be negative", i+1)
		}

		target, err := strconv.Atoi(strings.TrimSpace(targetStr))
		if err != nil {
			return nil, fmt.Errorf("stage %d: invalid target %q", i+1, targetStr)
		}
		if target < 0 {
			return nil, fmt.Errorf("stage %d: target cannot be negative", i+1)
		}

		stages = append(stages, StageConfig{Duration: Duration(dur), Target: target})
	}
	return stages, nil
}

// FormatStages renders stages in the syntax ParseStages accepts.
func FormatStages(stages []StageConfig) string {
	parts := make([]string, len(stages))
	for i, st := range stages {
		parts[i] = fmt.Sprintf("%s:%d", st.Duration, st.Target)
	}
	return strings.Join(parts, ",")
}
