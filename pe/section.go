// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pe

import (
	"encoding/binary"
	"sort"
	"strings"
)

// ImageSectionHeader is part of the section table , in fact section table is an
// array of Image Section Header each contains information about one section of
// the whole file such as attribute,virtual offset. the array size is the number
// of sections in the file.
// Binary Spec : each struct is 40 byte and there is no padding .
type ImageSectionHeader struct {

	//  An 8-byte, null-padded UTF-8 encoded string. If the string is exactly 8
	// characters long, there is no terminating null. For longer names, this
	// field contains a slash (/) that is followed by an ASCII representation of
	// a decimal number that is an offset into the string table. Executable
	// images do not use a string table and do not support section names longer
	// than 8 characters.
	Name [8]uint8

	// The total size of the section when loaded into memory. If this value is
	// greater than SizeOfRawData, the section is zero-padded.
	VirtualSize uint32

	// For executable images, the address of the first byte of the section
	// relative to the image base when the section is loaded into memory.
	VirtualAddress uint32

	// The size of the section (for object files) or the size of the initialized
	// data on disk (for image files).
	SizeOfRawData uint32

	// The file pointer to the first page of the section within the file.
	PointerToRawData uint32

	// The file pointer to the beginning of relocation entries for the section.
	PointerToRelocations uint32

	// The file pointer to the beginning of line-number entries for the section.
	PointerToLineNumbers uint32

	// The number of relocation entries for the section.
	NumberOfRelocations uint16

	// The number of line-number entries for the section.
	NumberOfLineNumbers uint16

	// The flags that describe the characteristics of the section.
	Characteristics uint32
}

// Section represents a PE section header and its raw data range.
type Section struct {
	Header ImageSectionHeader
}

// String stringifies the section name.
func (section *Section) String() string {
	return strings.Replace(string(section.Header.Name[:]), "\x00", "", -1)
}

// Data returns the raw on-disk bytes of a section, bounds-checked against
// the underlying image. start/length of zero means "the whole section".
func (section *Section) Data(start, length uint32, pe *File) []byte {
	offset := section.Header.PointerToRawData
	if start != 0 {
		offset = start
	}

	if offset > pe.size {
		return nil
	}

	end := offset + section.Header.SizeOfRawData
	if length != 0 {
		end = offset + length
	}

	if end > pe.size {
		end = pe.size
	}
	if end < offset {
		return nil
	}

	return pe.data[offset:end]
}

// ParseSectionHeader parses the PE section headers. Each row of the section
// table is, in effect, a section header. It must immediately follow the PE
// header. Sections are kept in on-disk (table) order; callers that need the
// Authenticode hashing order must sort a copy with byPointerToRawData.
func (pe *File) ParseSectionHeader() (err error) {

	// Get the first section offset.
	optionalHeaderOffset := pe.DOSHeader.AddressOfNewEXEHeader + 4 +
		uint32(binary.Size(pe.NtHeader.FileHeader))
	offset := optionalHeaderOffset +
		uint32(pe.NtHeader.FileHeader.SizeOfOptionalHeader)

	secHeader := ImageSectionHeader{}
	numberOfSections := pe.NtHeader.FileHeader.NumberOfSections
	secHeaderSize := uint32(binary.Size(secHeader))

	// The section header indexing in the table is one-based, with the order of
	// the sections defined by the linker. The sections follow one another
	// contiguously in the order defined by the section header table, with
	// starting RVAs aligned by the value of the SectionAlignment field of the
	// PE header.
	for i := uint16(0); i < numberOfSections; i++ {
		if err := pe.structUnpack(&secHeader, offset, secHeaderSize); err != nil {
			return err
		}

		if secHeader.PointerToRawData+secHeader.SizeOfRawData > pe.size {
			return ErrSectionOutOfBounds
		}

		pe.Sections = append(pe.Sections, Section{Header: secHeader})
		offset += secHeaderSize
	}

	pe.HasSections = true
	return nil
}

// byPointerToRawData sorts sections ascending by PointerToRawData, the
// order Authenticode digesting is required to hash them in regardless of
// their order in the section table.
type byPointerToRawData []Section

func (s byPointerToRawData) Len() int      { return len(s) }
func (s byPointerToRawData) Swap(i, j int) { s[i], s[j] = s[j], s[i] }
func (s byPointerToRawData) Less(i, j int) bool {
	return s[i].Header.PointerToRawData < s[j].Header.PointerToRawData
}

// SortedSections returns a copy of the section table sorted by
// PointerToRawData, the order the Authenticode digest (§4.1 step 7) walks
// sections in. The page-hash enumerator does not use it: it walks
// Sections in table order.
func (pe *File) SortedSections() []Section {
	sorted := make([]Section, len(pe.Sections))
	copy(sorted, pe.Sections)
	sort.Sort(byPointerToRawData(sorted))
	return sorted
}
