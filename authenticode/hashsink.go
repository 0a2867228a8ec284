// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package authenticode computes Microsoft Authenticode digests and page-hash
// sequences over Portable Executable images.
package authenticode

import (
	"crypto/sha1"
	"crypto/sha256"
	"errors"
	"hash"
)

// Algorithm identifies the digest algorithm used for an Authenticode
// computation. It also determines the catalogue's on-disk version
// (§3: v1 uses SHA1, v2 uses SHA256).
type Algorithm int

const (
	// SHA1 selects the legacy version-1 catalogue digest algorithm.
	SHA1 Algorithm = iota

	// SHA256 selects the version-2 catalogue digest algorithm.
	SHA256
)

// ErrUnknownAlgorithm is returned when an Algorithm value outside SHA1/SHA256
// is supplied.
var ErrUnknownAlgorithm = errors.New("authenticode: unknown digest algorithm")

// String returns the algorithm's canonical name, as used in the CLI's
// progress log.
func (a Algorithm) String() string {
	switch a {
	case SHA1:
		return "sha1"
	case SHA256:
		return "sha256"
	default:
		return "unknown"
	}
}

// Size returns the digest size in bytes for the algorithm.
func (a Algorithm) Size() int {
	switch a {
	case SHA1:
		return sha1.Size
	case SHA256:
		return sha256.Size
	default:
		return 0
	}
}

// Hash returns the one-shot digest of data under the algorithm — the
// "streaming hash of the raw file bytes in order" §4.5 step 3 calls for
// on non-PE entries, and the method used to compute a v2 catalogue's SHA-1
// compatibility digest for a non-PE entry.
func (a Algorithm) Hash(data []byte) ([]byte, error) {
	h, err := a.newHash()
	if err != nil {
		return nil, err
	}
	h.Write(data)
	return h.Sum(nil), nil
}

// newHash constructs a fresh hash.Hash for the algorithm.
func (a Algorithm) newHash() (hash.Hash, error) {
	switch a {
	case SHA1:
		return sha1.New(), nil
	case SHA256:
		return sha256.New(), nil
	default:
		return nil, ErrUnknownAlgorithm
	}
}

// hashSink wraps a hash.Hash. It is the single place the Authenticode
// digester and the page-hash enumerator funnel bytes through, so both
// algorithms share identical zero-padding.
type hashSink struct {
	h hash.Hash
}

func newHashSink(alg Algorithm) (*hashSink, error) {
	h, err := alg.newHash()
	if err != nil {
		return nil, err
	}
	return &hashSink{h: h}, nil
}

// write feeds b through the sink. hash.Hash.Write never returns an error
// per its documented contract, so the return value is ignored like the
// standard library's own callers do.
func (s *hashSink) write(b []byte) {
	s.h.Write(b)
}

// zeroPad writes n zero bytes through the sink, the idiom §4.2 needs to
// round a short final page (or a too-small SizeOfHeaders) up to a full
// page_size/SectionAlignment boundary.
func (s *hashSink) zeroPad(n uint32) {
	const chunk = 4096
	var buf [chunk]byte
	for n > 0 {
		c := uint32(chunk)
		if n < c {
			c = n
		}
		s.h.Write(buf[:c])
		n -= c
	}
}

// sum finalizes the sink and returns the digest bytes.
func (s *hashSink) sum() []byte {
	return s.h.Sum(nil)
}
