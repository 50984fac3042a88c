package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix environment-variable overrides must carry:
// RUNTIME_FOO__BAR=1 maps to {foo:{bar:1}}.
const EnvPrefix = "RUNTIME_"

// Sources names the four file tiers, lowest first, that Load merges
// into one raw map before decoding into a Config.
type Sources struct {
	Enterprise    string
	UserHome      string
	Project       string
	ProjectLocal  string
}

// Load builds the merged Config, lowest precedence first: built-in
// defaults -> enterprise -> user home -> project -> project local
// overrides -> RUNTIME_ environment variables. Any path left empty
// is skipped rather than erroring; a missing file is not an error either,
// since most deployments only populate a subset of the tiers.
func Load(sources Sources, environ []string) (*Config, error) {
	raw, err := toRawMap(Defaults())
	if err != nil {
		return nil, fmt.Errorf("config: encode defaults: %w", err)
	}

	for _, path := range []string{sources.Enterprise, sources.UserHome, sources.Project, sources.ProjectLocal} {
		if strings.TrimSpace(path) == "" {
			continue
		}
		layer, err := loadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("config: load %s: %w", path, err)
		}
		raw = mergeMaps(raw, layer)
	}

	raw = mergeMaps(raw, envOverlay(environ))

	cfg := &Config{}
	if err := fromRawMap(raw, cfg); err != nil {
		return nil, fmt.Errorf("config: decode merged config: %w", err)
	}
	return cfg, nil
}

// loadFile reads one JSON or YAML config file into a raw map, selecting
// the decoder by file extension (.json -> JSON, everything else
// -> YAML).
func loadFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	expanded := os.ExpandEnv(string(data))

	ext := strings.ToLower(filepath.Ext(path))
	var raw map[string]any
	if ext == ".json" {
		if err := json.Unmarshal([]byte(expanded), &raw); err != nil {
			return nil, err
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
			return nil, err
		}
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

// mergeMaps deep-merges src into dst: nested maps recurse, leaves (and
// type mismatches) are replaced outright. dst is mutated and returned.
func mergeMaps(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = map[string]any{}
	}
	for key, value := range src {
		if valueMap, ok := value.(map[string]any); ok {
			if existing, ok := dst[key].(map[string]any); ok {
				dst[key] = mergeMaps(existing, valueMap)
				continue
			}
		}
		dst[key] = value
	}
	return dst
}

// envOverlay turns every RUNTIME_-prefixed environment variable into a
// nested map entry: RUNTIME_AGENT__TOKEN_LIMIT=500 becomes
// {agent: {token_limit: 500}}. A double underscore is the nesting
// separator; a single underscore is left as part of the key segment.
func envOverlay(environ []string) map[string]any {
	out := map[string]any{}
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, EnvPrefix) {
			continue
		}
		path := strings.Split(strings.ToLower(strings.TrimPrefix(key, EnvPrefix)), "__")
		setNested(out, path, coerceScalar(value))
	}
	return out
}

func setNested(m map[string]any, path []string, value any) {
	if len(path) == 0 {
		return
	}
	if len(path) == 1 {
		m[path[0]] = value
		return
	}
	child, ok := m[path[0]].(map[string]any)
	if !ok {
		child = map[string]any{}
		m[path[0]] = child
	}
	setNested(child, path[1:], value)
}

// coerceScalar converts an environment-variable string into bool, int,
// float, or string, in that preference order, so RUNTIME_ overrides of
// numeric/boolean fields decode correctly without quoting.
func coerceScalar(s string) any {
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

// toRawMap round-trips v through JSON to get a plain map[string]any,
// used to seed the merge with Defaults() in the same shape file-sourced
// layers arrive in.
func toRawMap(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// fromRawMap decodes a merged raw map back into a *Config. Durations are
// stored as nanosecond counts by json.Marshal, which json.Unmarshal
// restores transparently via time.Duration's underlying int64, so no
// special-casing is needed here.
func fromRawMap(raw map[string]any, cfg *Config) error {
	data, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, cfg)
}
