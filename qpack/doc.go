// Package qpack implements the RFC 9204 QPACK encoder: a dynamic header
// table, encoder-stream instruction emission, field-section serialization
// with insert-count/base prefixes, blocked-stream budget enforcement, and
// decoder-stream acknowledgement processing.
//
// The static header table, Huffman coding, and the HTTP/3 frame layer are
// treated as external collaborators; only the pieces needed to drive this
// encoder are reproduced here.
package qpack
