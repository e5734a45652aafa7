// Package args implements the permissive flag grammar shared by every
// command: a token starting with "--" is a key, and the following token is
// its value unless it is itself a key, in which case the flag is true.
package args

import (
	"strconv"
	"strings"
)

const flagPrefix = "--"

// Options maps flag names (without dashes) to the values given for them, in
// command-line order.
type Options map[string][]string

// Parse reads tokens using the permissive grammar. Tokens that are neither a
// key nor a key's value are ignored.
func Parse(tokens []string) Options {
	opts := Options{}
	for i, token := range tokens {
		if !strings.HasPrefix(token, flagPrefix) {
			continue
		}
		key := strings.TrimPrefix(token, flagPrefix)
		if key == "" {
			continue
		}
		value := "true"
		if i+1 < len(tokens) && tokens[i+1] != "" && !strings.HasPrefix(tokens[i+1], flagPrefix) {
			value = tokens[i+1]
		}
		opts[key] = append(opts[key], value)
	}
	return opts
}

// Has reports whether key was given.
func (o Options) Has(key string) bool {
	_, ok := o[key]
	return ok
}

// String returns the last value given for key, or def.
func (o Options) String(key, def string) string {
	values := o[key]
	if len(values) == 0 {
		return def
	}
	return values[len(values)-1]
}

// Strings returns every value given for key.
func (o Options) Strings(key string) []string {
	return append([]string(nil), o[key]...)
}

// Bool interprets key as a boolean flag. Unparseable values count as true,
// since "--flag anything" always sets the flag.
func (o Options) Bool(key string) bool {
	if !o.Has(key) {
		return false
	}
	value, err := strconv.ParseBool(o.String(key, "true"))
	if err != nil {
		return true
	}
	return value
}

// Int returns key parsed as an integer, or def.
func (o Options) Int(key string, def int) int {
	value, err := strconv.Atoi(o.String(key, ""))
	if err != nil {
		return def
	}
	return value
}

// Depot folds the deprecated --marketplace alias into --depot.
func (o Options) Depot() bool {
	if o.Has("depot") {
		return o.Bool("depot")
	}
	return o.Bool("marketplace")
}
