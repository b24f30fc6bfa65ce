package proof

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// AllowList decides which locators may be fetched. Empty fields impose no
// constraint.
type AllowList struct {
	// Schemes lists accepted URL schemes.
	Schemes []string
	// HostSuffixes: the host must end with one of them.
	HostSuffixes []string
	// HostSubstrings: the host must contain every one of them.
	HostSubstrings []string
	// PathSuffixes: the path as written in the locator must end with one of
	// them.
	PathSuffixes []string
	// PathSubstrings: the path as written in the locator must contain one of
	// them.
	PathSubstrings []string
	// Patterns: the full locator must match one of them.
	Patterns []*regexp.Regexp
}

var amazonDomains = []string{
	"amazonaws.com.au", "amazonaws.com.be", "amazonaws.com.br", "amazonaws.ca",
	"amazonaws.cn", "amazonaws.eg", "amazonaws.fr", "amazonaws.de",
	"amazonaws.in", "amazonaws.it", "amazonaws.co.jp", "amazonaws.com.mx",
	"amazonaws.nl", "amazonaws.pl", "amazonaws.sa", "amazonaws.sg",
	"amazonaws.es", "amazonaws.se", "amazonaws.com.tr", "amazonaws.ae",
	"amazonaws.co.uk", "amazonaws.com", "amazonaws.co", "amazonaws.com.cn",
	"amazonaws.com.sg",
}

// AmazonExportPolicy accepts pre-signed S3 links to Amazon "request my data"
// exports.
func AmazonExportPolicy() *AllowList {
	return &AllowList{
		Schemes:        []string{"https"},
		HostSuffixes:   append([]string(nil), amazonDomains...),
		HostSubstrings: []string{".s3."},
		PathSuffixes:   []string{".zip"},
		PathSubstrings: []string{"All%20Data%20Categories", "Your%20Orders"},
	}
}

// CompilePatterns compiles expressions for AllowList.Patterns.
func CompilePatterns(exprs []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, expr := range exprs {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("proof: locator pattern %q: %w", expr, err)
		}
		out = append(out, re)
	}
	return out, nil
}

// Validate returns an *InvalidLocatorError when locator is not allowed.
func (a *AllowList) Validate(locator string) error {
	reject := func(format string, args ...any) error {
		return &InvalidLocatorError{Locator: locator, Reason: fmt.Sprintf(format, args...)}
	}
	if strings.TrimSpace(locator) == "" {
		return reject("empty")
	}
	u, err := url.Parse(locator)
	if err != nil {
		return reject("unparseable: %v", err)
	}
	if a == nil {
		return nil
	}
	if len(a.Schemes) > 0 && !anyEqual(a.Schemes, u.Scheme) {
		return reject("scheme %q not allowed", u.Scheme)
	}
	host := u.Host
	if len(a.HostSuffixes) > 0 && !anyMatch(a.HostSuffixes, host, strings.HasSuffix) {
		return reject("host %q not allowed", host)
	}
	for _, sub := range a.HostSubstrings {
		if !strings.Contains(host, sub) {
			return reject("host %q must contain %q", host, sub)
		}
	}
	path := rawPath(locator)
	if len(a.PathSuffixes) > 0 && !anyMatch(a.PathSuffixes, path, strings.HasSuffix) {
		return reject("path %q has no allowed suffix", path)
	}
	if len(a.PathSubstrings) > 0 && !anyMatch(a.PathSubstrings, path, strings.Contains) {
		return reject("path %q does not name an allowed resource", path)
	}
	if len(a.Patterns) > 0 {
		matched := false
		for _, re := range a.Patterns {
			if re.MatchString(locator) {
				matched = true
				break
			}
		}
		if !matched {
			return reject("no pattern matched")
		}
	}
	return nil
}

// rawPath returns the path of locator exactly as the caller spelled it.
// url.URL re-escapes characters such as spaces, which would let two spellings
// of one resource pass the same checks under different keys.
func rawPath(locator string) string {
	rest := locator
	if i := strings.Index(rest, "://"); i >= 0 {
		rest = rest[i+3:]
		i = strings.IndexByte(rest, '/')
		if i < 0 {
			return ""
		}
		rest = rest[i:]
	}
	if i := strings.IndexAny(rest, "?#"); i >= 0 {
		rest = rest[:i]
	}
	return rest
}

func anyEqual(candidates []string, v string) bool {
	for _, c := range candidates {
		if strings.EqualFold(c, v) {
			return true
		}
	}
	return false
}

func anyMatch(candidates []string, v string, match func(s, sub string) bool) bool {
	for _, c := range candidates {
		if match(v, c) {
			return true
		}
	}
	return false
}
