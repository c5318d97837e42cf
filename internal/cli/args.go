// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"strconv"
	"strings"
)

// =============================================================================
// ARG PARSER
// =============================================================================

// ArgParser splits command arguments into positionals, string flags and
// boolean flags.
//
// Supported flag formats:
//
//	--flag value     long flag with a value
//	--flag=value     long flag with equals sign
//	-f value         short flag with a value
//	--flag           boolean flag
//
// A flag followed by another flag, or by nothing, is boolean. Names listed
// in boolNames never consume the next argument, so "--json show" keeps
// "show" positional.
type ArgParser struct {
	flags      map[string]string
	boolFlags  map[string]bool
	positional []string
	raw        []string
}

// NewArgParser parses raw. boolNames are flags that never take a value.
func NewArgParser(raw []string, boolNames ...string) *ArgParser {
	p := &ArgParser{
		flags:     make(map[string]string),
		boolFlags: make(map[string]bool),
		raw:       raw,
	}
	isBool := make(map[string]bool, len(boolNames))
	for _, n := range boolNames {
		isBool[n] = true
	}

	for i := 0; i < len(raw); i++ {
		arg := raw[i]

		if arg == "--" {
			p.positional = append(p.positional, raw[i+1:]...)
			break
		}
		if !strings.HasPrefix(arg, "-") || arg == "-" {
			p.positional = append(p.positional, arg)
			continue
		}

		name := strings.TrimLeft(arg, "-")
		if k, v, ok := strings.Cut(name, "="); ok {
			if v == "true" || v == "false" {
				p.boolFlags[k] = v == "true"
			} else {
				p.flags[k] = v
			}
			continue
		}

		if !isBool[name] && i+1 < len(raw) && !strings.HasPrefix(raw[i+1], "-") {
			p.flags[name] = raw[i+1]
			i++
			continue
		}
		p.boolFlags[name] = true
	}
	return p
}

// Subcommand returns the first positional argument.
func (p *ArgParser) Subcommand() string {
	return p.Positional(0)
}

// Flag returns a string flag's value, or "".
func (p *ArgParser) Flag(name string) string {
	return p.flags[name]
}

// FlagOrDefault returns a string flag's value or def when absent.
func (p *ArgParser) FlagOrDefault(name, def string) string {
	if v, ok := p.flags[name]; ok {
		return v
	}
	return def
}

// FlagInt parses a flag as an integer. ok is false when the flag is absent.
func (p *ArgParser) FlagInt(name string) (n int, ok bool, err error) {
	v, present := p.flags[name]
	if !present {
		return 0, false, nil
	}
	n, err = strconv.Atoi(v)
	if err != nil {
		return 0, true, &ValidationError{Field: name, Value: v, Reason: "must be a whole number"}
	}
	return n, true, nil
}

// BoolFlag reports whether a boolean flag is set.
func (p *ArgParser) BoolFlag(name string) bool {
	return p.boolFlags[name]
}

// HasFlag reports whether a flag was given in either form.
func (p *ArgParser) HasFlag(name string) bool {
	_, s := p.flags[name]
	_, b := p.boolFlags[name]
	return s || b
}

// Positional returns the positional argument at index, or "".
func (p *ArgParser) Positional(index int) string {
	if index < 0 || index >= len(p.positional) {
		return ""
	}
	return p.positional[index]
}

// PositionalCount returns how many positionals were given.
func (p *ArgParser) PositionalCount() int {
	return len(p.positional)
}

// Raw returns the unparsed arguments.
func (p *ArgParser) Raw() []string {
	return p.raw
}

// ParseBoolString accepts the usual spellings of a boolean.
func ParseBoolString(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "on", "1", "enabled":
		return true, nil
	case "false", "no", "off", "0", "disabled":
		return false, nil
	}
	return false, &ValidationError{Field: "value", Value: s, Reason: "expected on or off"}
}
