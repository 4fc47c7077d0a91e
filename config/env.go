package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// env reads typed variables and remembers every malformed value so a
// typo fails startup instead of silently falling back to a default.
type env struct {
	errs []error
}

func (e *env) str(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func (e *env) int(key string, def int) int {
	return parse(e, key, def, strconv.Atoi)
}

func (e *env) bool(key string, def bool) bool {
	return parse(e, key, def, strconv.ParseBool)
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	return parse(e, key, def, time.ParseDuration)
}

// list splits a comma separated value, dropping blank items
func (e *env) list(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// port honours PORT, as set by most platforms, before SERVER_PORT
func (e *env) port() int {
	if os.Getenv("PORT") != "" {
		return e.int("PORT", 8080)
	}
	return e.int("SERVER_PORT", 8080)
}

func (e *env) err() error {
	return errors.Join(e.errs...)
}

func parse[T any](e *env, key string, def T, fn func(string) (T, error)) T {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := fn(raw)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s=%q: %w", key, raw, err))
		return def
	}
	return v
}
