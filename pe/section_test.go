// Copyright 2022 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pe

import "testing"

func TestParseSectionHeaders(t *testing.T) {
	data := newMinimalPE(t, false, []sectionSpec{
		{name: ".text", pointerToRawData: 0x200, sizeOfRawData: 0x400, virtualAddress: 0x1000, virtualSize: 0x3a0},
		{name: ".rdata", pointerToRawData: 0x600, sizeOfRawData: 0x200, virtualAddress: 0x2000, virtualSize: 0x150},
	})

	file, err := OpenBytes(data, nil)
	if err != nil {
		t.Fatalf("OpenBytes failed, reason: %v", err)
	}
	defer file.Close()

	if len(file.Sections) != 2 {
		t.Fatalf("section count got %d, want 2", len(file.Sections))
	}

	if got := file.Sections[0].String(); got != ".text" {
		t.Errorf("section[0] name got %q, want %q", got, ".text")
	}
	if got := file.Sections[1].String(); got != ".rdata" {
		t.Errorf("section[1] name got %q, want %q", got, ".rdata")
	}
	if !file.HasSections {
		t.Errorf("HasSections not set after a successful parse")
	}
}

func TestParseSectionHeaderOutOfBounds(t *testing.T) {
	data := newMinimalPE(t, false, []sectionSpec{
		{name: ".text", pointerToRawData: 0x200, sizeOfRawData: 0x400, virtualAddress: 0x1000, virtualSize: 0x3a0},
	})
	// Corrupt SizeOfRawData of the lone section to push it past EOF. The
	// section table immediately follows the optional header.
	sectionTableOffset := 64 + 4 + 20 + 224
	sizeOfRawDataOffset := sectionTableOffset + 8 + 4 + 4 // Name + VirtualSize + VirtualAddress
	for i := 0; i < 4; i++ {
		data[sizeOfRawDataOffset+i] = 0xff
	}

	_, err := OpenBytes(data, nil)
	if err != ErrSectionOutOfBounds {
		t.Errorf("got %v, want %v", err, ErrSectionOutOfBounds)
	}
}

func TestSectionDataAndSort(t *testing.T) {
	data := newMinimalPE(t, false, []sectionSpec{
		// Declared out of PointerToRawData order to exercise the defensive
		// sort Authenticode digesting requires before hashing.
		{name: ".rdata", pointerToRawData: 0x600, sizeOfRawData: 4, data: []byte{0xde, 0xad, 0xbe, 0xef}},
		{name: ".text", pointerToRawData: 0x200, sizeOfRawData: 4, data: []byte{1, 2, 3, 4}},
	})

	file, err := OpenBytes(data, nil)
	if err != nil {
		t.Fatalf("OpenBytes failed, reason: %v", err)
	}
	defer file.Close()

	sorted := file.SortedSections()
	if sorted[0].String() != ".text" || sorted[1].String() != ".rdata" {
		t.Fatalf("SortedSections not ascending by PointerToRawData: got %q, %q",
			sorted[0].String(), sorted[1].String())
	}

	got := sorted[0].Data(0, 0, file)
	want := []byte{1, 2, 3, 4}
	if string(got) != string(want) {
		t.Errorf("section data got %v, want %v", got, want)
	}
}
