package postings

import (
	"crypto/md5"
	"encoding/hex"
	"net/url"
	"strings"
)

// Key is the identity of a stored posting: board plus normalized URL (see NormalizeURL).
type Key string

// Key returns the posting's identity. Postings without a URL fall back to the job id.
func (p JobPosting) Key() Key {
	ref := NormalizeURL(p.URL)
	if ref == "" {
		ref = "id:" + p.EnsureJobID()
	}
	return Key(string(p.Board) + "|" + ref)
}

// EnsureJobID returns JobID, deriving it when empty.
func (p JobPosting) EnsureJobID() string {
	if p.JobID != "" {
		return p.JobID
	}
	return JobID(p.Title, p.Company, p.URL)
}

// JobID derives a short stable id from title, company and url.
func JobID(title, company, rawURL string) string {
	sum := md5.Sum([]byte(title + "|" + company + "|" + rawURL))
	return hex.EncodeToString(sum[:])[:12]
}

// identifyingParams are query parameters that name the job itself. Indeed result links such
// as /rc/clk?jk=<id> share a path and differ only by these.
var identifyingParams = map[string]struct{}{
	"jk":           {},
	"vjk":          {},
	"currentjobid": {},
	"jl":           {},
	"joblistingid": {},
}

// NormalizeURL keeps scheme, host, path and any job-identifying query parameters.
// Tracking parameters, the fragment and the trailing slash are dropped.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return strings.TrimRight(strings.SplitN(raw, "?", 2)[0], "/")
	}
	base := strings.TrimRight(u.Path, "/")
	if u.Host != "" {
		scheme := strings.ToLower(u.Scheme)
		if scheme == "" {
			scheme = "https"
		}
		base = scheme + "://" + strings.ToLower(u.Host) + base
	}
	if q := identifyingQuery(u.Query()); q != "" {
		return base + "?" + q
	}
	return base
}

func identifyingQuery(q url.Values) string {
	keep := url.Values{}
	for name, vals := range q {
		lower := strings.ToLower(name)
		if _, ok := identifyingParams[lower]; !ok {
			continue
		}
		for _, v := range vals {
			if v = strings.TrimSpace(v); v != "" {
				keep.Add(lower, v)
			}
		}
	}
	return keep.Encode()
}

// IsNative reports whether rawURL is served by the board itself rather than an external careers site.
func IsNative(board Board, rawURL string) bool {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	domain := board.Domain()
	return host == domain || strings.HasSuffix(host, "."+domain)
}

// Dedupe keeps the first posting per identity key, preserving order.
func Dedupe(items []JobPosting) []JobPosting {
	seen := make(map[Key]struct{}, len(items))
	out := make([]JobPosting, 0, len(items))
	for _, p := range items {
		k := p.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, p)
	}
	return out
}
