package audit

import (
	"gopkg.in/yaml.v3"
)

// ToolSummary aggregates tool_call entries by tool name, grounded on the
// original audit_log.py's get_tool_summary/export_summary.
type ToolSummary struct {
	TotalCalls        int                    `yaml:"total_calls"`
	Successful        int                    `yaml:"successful"`
	Failed            int                    `yaml:"failed"`
	TotalDurationSec  float64                `yaml:"total_duration_sec"`
	ByTool            map[string]*toolStats  `yaml:"by_tool"`
}

type toolStats struct {
	Calls            int     `yaml:"calls"`
	Successful       int     `yaml:"successful"`
	Failed           int     `yaml:"failed"`
	TotalDurationSec float64 `yaml:"total_duration_sec"`
}

// Summarize computes a ToolSummary from a slice of log entries.
func Summarize(entries []Entry) ToolSummary {
	s := ToolSummary{ByTool: map[string]*toolStats{}}
	for _, e := range entries {
		if e.EventType != "tool_call" {
			continue
		}
		s.TotalCalls++
		s.TotalDurationSec += e.DurationSec
		if e.Success {
			s.Successful++
		} else {
			s.Failed++
		}
		ts, ok := s.ByTool[e.ToolName]
		if !ok {
			ts = &toolStats{}
			s.ByTool[e.ToolName] = ts
		}
		ts.Calls++
		ts.TotalDurationSec += e.DurationSec
		if e.Success {
			ts.Successful++
		} else {
			ts.Failed++
		}
	}
	return s
}

// ExportYAML renders a ToolSummary as human-readable YAML, per
// SPEC_FULL.md's "toolagent audit export --format yaml" supplement.
func ExportYAML(entries []Entry) (string, error) {
	summary := Summarize(entries)
	out, err := yaml.Marshal(summary)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
