// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package authenticode_test

import (
	"bytes"
	"testing"

	"github.com/maharmstone/nyan/authenticode"
	"github.com/maharmstone/nyan/pe"
)

func openFixture(t *testing.T, data []byte) *pe.File {
	t.Helper()
	file, err := pe.OpenBytes(data, nil)
	if err != nil {
		t.Fatalf("OpenBytes failed: %v", err)
	}
	t.Cleanup(func() { file.Close() })
	return file
}

// TestDigestStability exercises property 1: mutating CheckSum or the
// certificate trailer must not change the digest.
func TestDigestStability(t *testing.T) {
	data := buildPE(t, 0x1000, 0x600, 0x40, []fixtureSection{
		{name: ".text", pointerToRawData: 0x200, sizeOfRawData: 0x200, data: []byte{1, 2, 3, 4}},
	})

	base := openFixture(t, append([]byte(nil), data...))
	baseDigest, err := authenticode.Digest(base, authenticode.SHA256)
	if err != nil {
		t.Fatalf("Digest failed: %v", err)
	}

	mutated := append([]byte(nil), data...)
	checkSumOffset := base.CheckSumOffset()
	mutated[checkSumOffset] ^= 0xff
	mutated[checkSumOffset+1] ^= 0xff
	// Flip bytes inside the declared certificate trailer too.
	for i := uint32(0); i < 0x40; i++ {
		mutated[0x600+i] ^= 0xff
	}

	mutatedFile := openFixture(t, mutated)
	mutatedDigest, err := authenticode.Digest(mutatedFile, authenticode.SHA256)
	if err != nil {
		t.Fatalf("Digest on mutated image failed: %v", err)
	}

	if !bytes.Equal(baseDigest, mutatedDigest) {
		t.Errorf("digest changed after mutating CheckSum/certificate trailer:\n got  %x\n want %x",
			mutatedDigest, baseDigest)
	}
}

// TestDigestSectionOrderInvariance exercises property 2: permuting the
// section table while leaving raw data intact must not change the digest.
func TestDigestSectionOrderInvariance(t *testing.T) {
	forward := buildPE(t, 0x1000, 0, 0, []fixtureSection{
		{name: ".text", pointerToRawData: 0x200, sizeOfRawData: 0x200, data: bytes.Repeat([]byte{0xaa}, 0x200)},
		{name: ".data", pointerToRawData: 0x400, sizeOfRawData: 0x200, data: bytes.Repeat([]byte{0xbb}, 0x200)},
	})
	reversed := buildPE(t, 0x1000, 0, 0, []fixtureSection{
		{name: ".data", pointerToRawData: 0x400, sizeOfRawData: 0x200, data: bytes.Repeat([]byte{0xbb}, 0x200)},
		{name: ".text", pointerToRawData: 0x200, sizeOfRawData: 0x200, data: bytes.Repeat([]byte{0xaa}, 0x200)},
	})

	fd, err := authenticode.Digest(openFixture(t, forward), authenticode.SHA256)
	if err != nil {
		t.Fatalf("Digest(forward) failed: %v", err)
	}
	rd, err := authenticode.Digest(openFixture(t, reversed), authenticode.SHA256)
	if err != nil {
		t.Fatalf("Digest(reversed) failed: %v", err)
	}

	if !bytes.Equal(fd, rd) {
		t.Errorf("digest changed after permuting section table order:\n got  %x\n want %x", rd, fd)
	}
}

func TestDigestSkipsEmptySections(t *testing.T) {
	data := buildPE(t, 0x1000, 0, 0, []fixtureSection{
		{name: ".text", pointerToRawData: 0x200, sizeOfRawData: 0x200, data: bytes.Repeat([]byte{0xaa}, 0x200)},
		{name: ".bss", pointerToRawData: 0, sizeOfRawData: 0},
	})

	file := openFixture(t, data)
	if _, err := authenticode.Digest(file, authenticode.SHA1); err != nil {
		t.Errorf("Digest failed on image with an empty section: %v", err)
	}
}
