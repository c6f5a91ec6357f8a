// Package keys builds Redis keys for cached export payloads.
package keys

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"

	"github.com/mohammed-shakir/overture-extract/internal/core/model"
)

const prefix = "artifact"

// Artifact keys a payload by everything that decides its content: release,
// type, encoding, the exact region and the planned files. View zoom and
// center only affect the artifact name, so they are left out.
func Artifact(version, typ, encoding string, region model.BBox, files []string) string {
	d := xxhash.New()
	_, _ = d.WriteString(canonicalRegion(region))
	for _, f := range files {
		_, _ = d.WriteString("\x00")
		_, _ = d.WriteString(f)
	}
	return fmt.Sprintf("%s:%s:%s:%s:h=%016x",
		prefix,
		sanitize(strings.TrimSpace(version)),
		sanitize(strings.TrimSpace(typ)),
		sanitize(strings.ToLower(strings.TrimSpace(encoding))),
		d.Sum64())
}

// ReleasePattern matches every artifact key of one release.
func ReleasePattern(version string) string {
	return prefix + ":" + sanitize(strings.TrimSpace(version)) + ":*"
}

func canonicalRegion(b model.BBox) string {
	var sb strings.Builder
	for i, v := range b.Array() {
		if i > 0 {
			sb.WriteByte(',')
		}
		// -0 and 0 select the same partitions and rows
		if v == 0 {
			v = 0
		}
		sb.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	}
	return sb.String()
}

func sanitize(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))
	var prev rune
	for _, r := range s {
		out := rune(0)
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f':
			out = '_'
		case isAlphaNum(r) || r == '.' || r == '_' || r == '-':
			out = r
		default:
			// ':' included, so segments never bleed into each other
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r < unicode.MaxASCII && unicode.IsDigit(r))
}
