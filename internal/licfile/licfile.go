// Package licfile parses license records stored in INI form. Each product
// licensed by a file owns one section, keyed by the product name.
package licfile

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"
)

// ErrFormat is returned when content is not a recognizable license file.
var ErrFormat = errors.New("license file format not recognized")

// loadOptions keep names and values exactly as written: no inline comments,
// surrounding quotes stay part of the value and a trailing backslash does not
// continue the value on the next line.
var loadOptions = ini.LoadOptions{
	Insensitive:             false,
	IgnoreInlineComment:     true,
	PreserveSurroundedQuote: true,
	IgnoreContinuation:      true,
	KeyValueDelimiters:      "=",
}

// Document is a parsed license file.
type Document struct {
	file *ini.File
}

// Load parses license text.
func Load(text string) (*Document, error) {
	f, err := ini.LoadSources(loadOptions, []byte(protectQuotedValues(text)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	return &Document{file: f}, nil
}

// protectQuotedValues wraps values that open with a backquote or """ in one
// more pair of backquotes. ini unquotes those forms regardless of options;
// its raw-string reading of the added pair returns the original value.
func protectQuotedValues(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.ContainsRune("#;[", rune(trimmed[0])) {
			continue
		}
		eq := strings.IndexByte(line, '=')
		if eq < 0 {
			continue
		}
		value := strings.TrimSpace(line[eq+1:])
		if strings.HasPrefix(value, "`") || strings.HasPrefix(value, `"""`) {
			lines[i] = line[:eq+1] + " `" + value + "`"
		}
	}
	return strings.Join(lines, "\n")
}

// SectionSize returns the number of keys in the product section, or 0 when
// the section does not exist.
func (d *Document) SectionSize(product string) int {
	sec, err := d.file.GetSection(product)
	if err != nil {
		return 0
	}
	return len(sec.Keys())
}

// Value returns the raw value of key in the product section.
func (d *Document) Value(product, key string) (string, bool) {
	k := d.key(product, key)
	if k == nil {
		return "", false
	}
	return k.Value(), true
}

// LongValue returns key as an integer, or def when the key is missing or
// does not hold one. Only optionally signed decimal and 0x hexadecimal
// forms are integers.
func (d *Document) LongValue(product, key string, def int64) int64 {
	k := d.key(product, key)
	if k == nil {
		return def
	}
	v, ok := parseLong(strings.TrimSpace(k.String()))
	if !ok {
		return def
	}
	return v
}

func parseLong(s string) (int64, bool) {
	neg := false
	switch {
	case strings.HasPrefix(s, "-"):
		neg = true
		s = s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}

	base := 10
	if len(s) > 2 && (s[:2] == "0x" || s[:2] == "0X") {
		base = 16
		s = s[2:]
	}
	if s == "" || strings.ContainsAny(s, "+-_") {
		return 0, false
	}
	v, err := strconv.ParseInt(s, base, 64)
	if err != nil {
		return 0, false
	}
	if neg {
		v = -v
	}
	return v, true
}

// Keys returns the key names of the product section in file order.
func (d *Document) Keys(product string) []string {
	sec, err := d.file.GetSection(product)
	if err != nil {
		return nil
	}
	return sec.KeyStrings()
}

// key finds a key among the section's own keys. Section.GetKey is avoided
// because it falls back to parent sections for dotted names.
func (d *Document) key(product, name string) *ini.Key {
	sec, err := d.file.GetSection(product)
	if err != nil {
		return nil
	}
	for _, k := range sec.Keys() {
		if k.Name() == name {
			return k
		}
	}
	return nil
}
