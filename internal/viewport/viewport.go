// Package viewport parses the content attribute of a viewport meta tag the
// way browsers do: forgiving about separators and trailing junk, strict
// about which properties and keywords exist.
package viewport

import (
	"strconv"
	"strings"
)

// Meta is the parsed form of a viewport declaration. Properties holds the
// translated values of recognized properties: float64 for numbers, string
// for keywords kept symbolic (device-width, cover). Anything the parser
// rejected lands in UnknownProperties or InvalidValues with its raw text.
type Meta struct {
	Properties        map[string]any
	UnknownProperties map[string]string
	InvalidValues     map[string]string
}

// IsMobileOptimized reports whether the declaration configures the layout
// viewport for small screens: width pinned to the device or an explicit
// initial scale of at least 1.
func (m *Meta) IsMobileOptimized() bool {
	if w, ok := m.Properties["width"]; ok && w == "device-width" {
		return true
	}
	if s, ok := m.Properties["initial-scale"].(float64); ok && s >= 1 {
		return true
	}
	return false
}

const (
	minScale  = 0.1
	maxScale  = 10
	minLength = 1
	maxLength = 10000
)

// Parse parses a viewport content attribute. It never fails; malformed
// input just produces entries in UnknownProperties and InvalidValues.
func Parse(content string) *Meta {
	m := &Meta{
		Properties:        map[string]any{},
		UnknownProperties: map[string]string{},
		InvalidValues:     map[string]string{},
	}
	for _, pair := range splitPairs(content) {
		name, value, found := strings.Cut(pair, "=")
		name = strings.ToLower(strings.TrimSpace(name))
		value = strings.TrimSpace(value)
		if name == "" {
			continue
		}
		if !found {
			m.InvalidValues[name] = ""
			continue
		}
		translate, known := translators[name]
		if !known {
			m.UnknownProperties[name] = value
			continue
		}
		translated, ok := translate(value)
		if !ok {
			m.InvalidValues[name] = value
			continue
		}
		if _, dup := m.Properties[name]; !dup {
			m.Properties[name] = translated
		}
	}
	return m
}

// Browsers accept commas and semicolons interchangeably as separators.
func splitPairs(content string) []string {
	return strings.FieldsFunc(content, func(r rune) bool {
		return r == ',' || r == ';'
	})
}

type translator func(value string) (any, bool)

var translators = map[string]translator{}

func init() {
	translators["width"] = translateLength
	translators["height"] = translateLength
	translators["initial-scale"] = translateScale
	translators["minimum-scale"] = translateScale
	translators["maximum-scale"] = translateScale
	translators["user-scalable"] = translateUserScalable
	translators["viewport-fit"] = translateViewportFit
	translators["shrink-to-fit"] = translateYesNo
}

func translateLength(value string) (any, bool) {
	switch strings.ToLower(value) {
	case "device-width", "device-height":
		return strings.ToLower(value), true
	}
	n, ok := leadingNumber(value)
	if !ok || n <= 0 {
		return nil, false
	}
	return clamp(n, minLength, maxLength), true
}

func translateScale(value string) (any, bool) {
	switch strings.ToLower(value) {
	case "yes":
		return 1.0, true
	case "no":
		return 0.0, true
	case "device-width", "device-height":
		return float64(maxScale), true
	}
	n, ok := leadingNumber(value)
	if !ok || n < 0 {
		return nil, false
	}
	return clamp(n, minScale, maxScale), true
}

func translateUserScalable(value string) (any, bool) {
	switch strings.ToLower(value) {
	case "yes", "1":
		return 1.0, true
	case "no", "0":
		return 0.0, true
	}
	return nil, false
}

func translateViewportFit(value string) (any, bool) {
	switch strings.ToLower(value) {
	case "auto", "contain", "cover":
		return strings.ToLower(value), true
	}
	return nil, false
}

func translateYesNo(value string) (any, bool) {
	switch strings.ToLower(value) {
	case "yes":
		return 1.0, true
	case "no":
		return 0.0, true
	}
	return nil, false
}

// leadingNumber parses the longest numeric prefix, so "480px" reads as 480.
// This mirrors how browsers consume viewport numbers.
func leadingNumber(value string) (float64, bool) {
	end := 0
	seenDigit := false
	seenDot := false
	for end < len(value) {
		c := value[end]
		switch {
		case c >= '0' && c <= '9':
			seenDigit = true
		case c == '.' && !seenDot:
			seenDot = true
		case (c == '+' || c == '-') && end == 0:
		default:
			goto done
		}
		end++
	}
done:
	if !seenDigit {
		return 0, false
	}
	n, err := strconv.ParseFloat(strings.TrimPrefix(value[:end], "+"), 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func clamp(n, lo, hi float64) float64 {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
