package config

import (
	"fmt"
	"strings"
)

// Severity classifies a validation issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one validation finding, addressed by its config path.
type Issue struct {
	Severity Severity
	Path     string
	Message  string
}

// knownKinds are the storage backends linked into the binary.
var knownKinds = map[string]bool{"postgres": true, "sqlite": true, "mssql": true}

// Validate checks cfg and returns every issue found. Errors must stop a run;
// warnings are informational.
func Validate(cfg Config) []Issue {
	var out []Issue
	add := func(sev Severity, path, format string, args ...any) {
		out = append(out, Issue{Severity: sev, Path: path, Message: fmt.Sprintf(format, args...)})
	}

	for _, s := range []struct {
		path string
		cfg  StoreConfig
	}{{"source", cfg.Source}, {"sink", cfg.Sink}} {
		kind := strings.TrimSpace(s.cfg.Kind)
		switch {
		case kind == "":
			add(SeverityError, s.path+".kind", "is required")
		case !knownKinds[kind]:
			add(SeverityError, s.path+".kind", "unsupported kind %q (want postgres, sqlite or mssql)", kind)
		}
		if strings.TrimSpace(s.cfg.DSN) == "" {
			add(SeverityError, s.path+".dsn", "is required")
		}
		if len(s.cfg.Attach) > 0 && kind != "sqlite" {
			add(SeverityWarning, s.path+".attach", "ignored for kind %q", kind)
		}
	}
	if strings.TrimSpace(cfg.Sink.Schema) == "" {
		add(SeverityWarning, "sink.schema", "empty; warehouse tables are resolved unqualified")
	}

	if start, end, err := cfg.Dates.Range(); err != nil {
		add(SeverityError, "dates", "%v", err)
	} else if end.Before(start) {
		add(SeverityError, "dates", "end %s is before start %s", cfg.Dates.End, cfg.Dates.Start)
	}

	if cfg.Sales.BatchSize <= 0 {
		add(SeverityError, "sales.batch_size", "must be > 0, got %d", cfg.Sales.BatchSize)
	}

	if !cfg.Purchases.Truncate {
		add(SeverityWarning, "purchases.truncate", "false; rerunning the purchases step appends duplicate rows")
	}

	switch b := strings.TrimSpace(cfg.Metrics.Backend); b {
	case "", "none", "datadog":
	default:
		add(SeverityError, "metrics.backend", "unsupported backend %q (want none or datadog)", b)
	}
	if d, err := cfg.Metrics.FlushInterval(); err != nil {
		add(SeverityError, "metrics.flush_every", "%v", err)
	} else if d < 0 {
		add(SeverityError, "metrics.flush_every", "must not be negative")
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Log.Level)) {
	case "", "debug", "info", "warn", "error":
	default:
		add(SeverityError, "log.level", "unsupported level %q", cfg.Log.Level)
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Log.Format)) {
	case "", "json", "console":
	default:
		add(SeverityError, "log.format", "unsupported format %q (want json or console)", cfg.Log.Format)
	}

	return out
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}
