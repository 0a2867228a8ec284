// Copyright 2022 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pe

import (
	"encoding/binary"
	"testing"
)

func TestParseDOSHeader(t *testing.T) {
	data := newMinimalPE(t, false, []sectionSpec{
		{name: ".text", pointerToRawData: 0x200, sizeOfRawData: 0x200, virtualAddress: 0x1000, virtualSize: 0x200},
	})

	file, err := OpenBytes(data, nil)
	if err != nil {
		t.Fatalf("OpenBytes failed, reason: %v", err)
	}
	defer file.Close()

	if file.DOSHeader.Magic != ImageDOSSignature {
		t.Errorf("DOS magic got %#x, want %#x", file.DOSHeader.Magic, ImageDOSSignature)
	}
	const dosHeaderSize = 64
	if file.DOSHeader.AddressOfNewEXEHeader != dosHeaderSize {
		t.Errorf("e_lfanew got %#x, want %#x", file.DOSHeader.AddressOfNewEXEHeader, dosHeaderSize)
	}
	if !file.HasDOSHdr {
		t.Errorf("HasDOSHdr not set after a successful parse")
	}
}

func TestParseDOSHeaderBadMagic(t *testing.T) {
	data := newMinimalPE(t, false, nil)
	data[0] = 0xff
	data[1] = 0xff

	_, err := OpenBytes(data, nil)
	if err != ErrDOSMagicNotFound {
		t.Errorf("got %v, want %v", err, ErrDOSMagicNotFound)
	}
}

func TestParseDOSHeaderInvalidElfanew(t *testing.T) {
	data := newMinimalPE(t, false, nil)
	// e_lfanew sits at offset 0x3c and must be >= 4 and within the file.
	binary.LittleEndian.PutUint32(data[0x3c:], uint32(len(data))+1)

	_, err := OpenBytes(data, nil)
	if err != ErrInvalidElfanewValue {
		t.Errorf("got %v, want %v", err, ErrInvalidElfanewValue)
	}
}
