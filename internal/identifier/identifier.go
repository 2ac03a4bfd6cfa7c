// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package identifier canonicalizes DOI, ORCID and ROR strings.
package identifier

import (
	"regexp"
	"strings"
)

// doiPattern matches bare DOIs: "10.1145/1234567.1234568".
var doiPattern = regexp.MustCompile(`^10\.\d{4,9}/\S+$`)

// orcidPattern matches the 16-character ORCID form with or without hyphens.
var orcidPattern = regexp.MustCompile(`^(\d{4})-?(\d{4})-?(\d{4})-?(\d{3}[\dX])$`)

// rorPattern matches a bare ROR id: 0 followed by 6 base32 chars and 2 digits.
var rorPattern = regexp.MustCompile(`^0[a-hj-km-np-tv-z0-9]{6}\d{2}$`)

// arxivDOIPattern matches identifiers like "arXiv:2301.07041".
var arxivDOIPattern = regexp.MustCompile(`(?i)arxiv:(\d{4}\.\d{4,5}(?:v\d+)?)`)

var doiPrefixes = []string{
	"https://doi.org/",
	"http://doi.org/",
	"https://dx.doi.org/",
	"http://dx.doi.org/",
	"doi.org/",
	"doi:",
}

// NormalizeDOI strips resolver prefixes and whitespace and lowercases the
// DOI (DOIs are case-insensitive). It reports false when the result is not
// a DOI.
func NormalizeDOI(s string) (string, bool) {
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)
	for _, p := range doiPrefixes {
		if strings.HasPrefix(lower, p) {
			s = s[len(p):]
			break
		}
	}
	s = strings.ToLower(strings.TrimSpace(s))
	if !doiPattern.MatchString(s) {
		return s, false
	}
	return s, true
}

// ArxivDOI rewrites a Web of Science style "arXiv:NNNN.NNNNN" identifier to
// the DataCite arXiv DOI. Other values are returned unchanged.
func ArxivDOI(s string) string {
	if m := arxivDOIPattern.FindStringSubmatch(s); m != nil {
		return "10.48550/arXiv." + m[1]
	}
	return s
}

// NormalizeORCID returns the hyphenated ORCID form, stripping any
// orcid.org URL prefix. It reports false when the value is malformed or
// its check digit is wrong.
func NormalizeORCID(s string) (string, bool) {
	s = strings.TrimSpace(s)
	for _, p := range []string{"https://orcid.org/", "http://orcid.org/", "orcid.org/"} {
		if strings.HasPrefix(strings.ToLower(s), p) {
			s = s[len(p):]
			break
		}
	}
	m := orcidPattern.FindStringSubmatch(strings.ToUpper(s))
	if m == nil {
		return s, false
	}
	id := m[1] + "-" + m[2] + "-" + m[3] + "-" + m[4]
	return id, orcidChecksumValid(m[1] + m[2] + m[3] + m[4])
}

// orcidChecksumValid verifies the ISO 7064 MOD 11-2 check character.
func orcidChecksumValid(digits string) bool {
	total := 0
	for _, r := range digits[:15] {
		total = (total + int(r-'0')) * 2
	}
	result := (12 - total%11) % 11
	want := byte('0' + result)
	if result == 10 {
		want = 'X'
	}
	return digits[15] == want
}

// BareROR strips the https://ror.org/ prefix. It reports false when the
// remaining value is not a ROR id.
func BareROR(s string) (string, bool) {
	s = strings.TrimSpace(s)
	for _, p := range []string{"https://ror.org/", "http://ror.org/", "ror.org/"} {
		s = strings.TrimPrefix(s, p)
	}
	s = strings.ToLower(s)
	return s, rorPattern.MatchString(s)
}

// Slug returns a filesystem-safe stem for a DOI.
func Slug(doi string) string {
	return strings.NewReplacer("/", "-", ":", "-", "\\", "-").Replace(doi)
}
