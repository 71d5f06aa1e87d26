package qpack

import "strings"

// Header names whose encoding is restricted for security or caching
// reasons. HTTP/3 header names are always lowercase on the wire;
// comparisons are case-insensitive since callers may hand us mixed case.
var (
	doNotHuffman = newNameSet(
		"Authorization", "Content-MD5", "Proxy-Authenticate", "Proxy-Authorization",
	)

	doNotIndex = newNameSet(
		"Authorization", "Content-MD5", "Content-Range", "ETag",
		"If-Modified-Since", "If-Unmodified-Since", "If-None-Match", "If-Range", "If-Match",
		"Location", "Range", "Retry-After", "Last-Modified", "Set-Cookie", "Set-Cookie2",
	)

	neverIndex = newNameSet(
		"Authorization", "Set-Cookie", "Set-Cookie2",
	)
)

func newNameSet(names ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(names))
	for _, n := range names {
		m[strings.ToLower(n)] = struct{}{}
	}
	return m
}

func (e *Encoder) shouldIndex(f HeaderField) bool {
	_, no := doNotIndex[strings.ToLower(f.Name)]
	return !no
}

func (e *Encoder) shouldHuffmanEncode(f HeaderField) bool {
	_, no := doNotHuffman[strings.ToLower(f.Name)]
	return !no
}

// neverIndexed reports whether f must never be added to the dynamic
// table even opportunistically (sensitive values such as cookies and
// credentials), the strictest of the three policy sets.
func neverIndexed(f HeaderField) bool {
	_, yes := neverIndex[strings.ToLower(f.Name)]
	return yes
}
