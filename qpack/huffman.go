package qpack

import "golang.org/x/net/http2/hpack"

// QPACK reuses RFC 7541's Huffman code verbatim, so this package
// delegates to the same routines HTTP/2's hpack package already
// exports, rather than re-deriving a Huffman table.

// huffmanEncodedLen returns the length s would occupy if Huffman-encoded.
func huffmanEncodedLen(s string) uint64 {
	return hpack.HuffmanEncodeLength(s)
}

// appendHuffman Huffman-encodes s and appends it to buf.
func appendHuffman(buf []byte, s string) []byte {
	return hpack.AppendHuffmanString(buf, s)
}

// huffmanDecode decodes a Huffman-encoded byte string.
func huffmanDecode(data []byte) (string, error) {
	return hpack.HuffmanDecodeToString(data)
}

// appendString appends a string literal in RFC 9204 §4.1.2 form: an
// H-flagged prefixed length, then either the Huffman-encoded or raw
// bytes, whichever is shorter. hBit is the bit position of the Huffman
// flag within the first byte (so callers can share the same first byte
// with other flag bits).
func appendString(buf []byte, prefixLen uint, firstByteBits byte, hBit byte, s string, huffman bool) []byte {
	if huffman {
		encLen := huffmanEncodedLen(s)
		if encLen < uint64(len(s)) {
			buf = appendVarint(buf, prefixLen, firstByteBits|hBit, encLen)
			return appendHuffman(buf, s)
		}
	}
	buf = appendVarint(buf, prefixLen, firstByteBits, uint64(len(s)))
	return append(buf, s...)
}
