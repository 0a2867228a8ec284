// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package catalog

import (
	"encoding/asn1"
	"os"
	"sort"
	"sync"
	"time"

	mmap "github.com/edsrzf/mmap-go"

	"github.com/maharmstone/nyan/authenticode"
	"github.com/maharmstone/nyan/pe"
)

// defaultWorkers bounds how many entries Build digests concurrently.
const defaultWorkers = 8

// Extension is one {name, flags, value} attribute, attached either to a
// single Entry or to the catalogue as a whole (§3).
type Extension struct {
	Name  string
	Flags uint32
	Value string
}

// Entry describes one file to be enumerated in the catalogue (§3).
type Entry struct {
	Path       string
	Extensions []Extension
}

// Catalogue is the full set of inputs to Build (§3, §4.5).
type Catalogue struct {
	// Identifier is the opaque CTL identifier, 16 bytes by convention
	// (§9: deterministic builds may content-address this; it is carried
	// opaquely).
	Identifier []byte
	Timestamp  time.Time
	Algorithm  authenticode.Algorithm
	PageHashes bool
	Entries    []Entry
	Extensions []Extension

	// PEOptions carries a custom logger through to the pe package for
	// every entry it parses. Nil uses pe's default warn-level logger.
	PEOptions *pe.Options
}

// IoError reports an open/stat/map failure for a catalogue entry's file.
type IoError struct {
	Path  string
	Cause error
}

func (e *IoError) Error() string { return "catalog: " + e.Path + ": " + e.Cause.Error() }
func (e *IoError) Unwrap() error { return e.Cause }

// MalformedPeError reports a PE parsing or digesting failure for a
// catalogue entry.
type MalformedPeError struct {
	Path   string
	Reason error
}

func (e *MalformedPeError) Error() string { return "catalog: " + e.Path + ": " + e.Reason.Error() }
func (e *MalformedPeError) Unwrap() error { return e.Reason }

// entryExtensionOmitFlag is the 0x01000000 bit: per §9's resolved open
// question, entry extensions carrying it are omitted from the SHA-1
// compatibility CatalogInfo a v2 catalogue duplicates for each file.
const entryExtensionOmitFlag = 0x01000000

// Build assembles the PKCS#7 SignedData envelope for cat (§4.5): it mmaps
// and digests every entry, constructs the CTL tree, sorts it, and DER-
// encodes the result.
func Build(cat Catalogue) ([]byte, error) {
	if cat.Algorithm != authenticode.SHA1 && cat.Algorithm != authenticode.SHA256 {
		return nil, authenticode.ErrUnknownAlgorithm
	}
	isV2 := cat.Algorithm == authenticode.SHA256

	infos, err := buildEntries(cat.Entries, cat.Algorithm, cat.PageHashes, cat.PEOptions)
	if err != nil {
		return nil, err
	}

	// Global step 1: sort all CatalogInfo entries by lexicographic byte
	// order of their digest field.
	sort.SliceStable(infos, func(i, j int) bool {
		return string(infos[i].Digest) < string(infos[j].Digest)
	})

	versionOID := oidCatalogListMember
	if isV2 {
		versionOID = oidCatalogListMember2
	}

	ctl := msCtlContentStruct{
		Type:       spcAttributeTypeAndOptionalValue{Type: oidCatalogList},
		Identifier: cat.Identifier,
		Time:       cat.Timestamp,
		Version: spcAttributeTypeAndOptionalValue{
			Type:  versionOID,
			Value: asn1.NullRawValue,
		},
		HeaderAttributes: infos,
		Extensions:       explicitTag(mustMarshal(certExtensions(cat.Extensions)), asn1.ClassContextSpecific, 0),
	}

	ctlDER := mustMarshal(ctl)
	return mustMarshal(signedData(ctlDER)), nil
}

// certExtensions builds the SEQUENCE OF CertExtension for the
// catalogue-level extensions, in input order (§4.5 global step 2). Entry
// extensions are built by extensionAttrs instead.
func certExtensions(exts []Extension) []certExtensionStruct {
	out := make([]certExtensionStruct, len(exts))
	for i, e := range exts {
		out[i] = certExtensionStruct{
			Type: oidCatNameValue,
			Blob: mustMarshal(catNameValueStruct{
				Tag:   bmpString(e.Name),
				Flags: int(e.Flags),
				Value: utf16LENulTerminated(e.Value),
			}),
		}
	}
	return out
}

// buildEntries digests every entry, fanning out across a small worker pool:
// each entry's mmap/digest work is independent of every other entry's
// (§5's embarrassingly-parallel note), the same wg/jobs-channel idiom as
// the teacher's cmd/dump.go directory walker, repurposed from "walk
// directories" to "digest a fixed list of files".
func buildEntries(entries []Entry, alg authenticode.Algorithm, doPageHashes bool, opts *pe.Options) ([]catalogInfoStruct, error) {
	type result struct {
		infos []catalogInfoStruct
		err   error
	}
	results := make([]result, len(entries))

	jobs := make(chan int)
	var wg sync.WaitGroup

	workers := defaultWorkers
	if workers > len(entries) {
		workers = len(entries)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				infos, err := buildEntry(entries[i], alg, doPageHashes, opts)
				results[i] = result{infos: infos, err: err}
			}
		}()
	}
	for i := range entries {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	var all []catalogInfoStruct
	for _, r := range results {
		if r.err != nil {
			return nil, r.err
		}
		all = append(all, r.infos...)
	}
	return all, nil
}

// buildEntry processes one Entry per §4.5's per-entry steps, returning one
// CatalogInfo (v1) or two (v2: a primary SHA-256 CatalogInfo plus a reduced
// SHA-1 compatibility CatalogInfo, §4.5 step 7).
func buildEntry(e Entry, alg authenticode.Algorithm, doPageHashes bool, opts *pe.Options) ([]catalogInfoStruct, error) {
	f, err := os.Open(e.Path)
	if err != nil {
		return nil, &IoError{Path: e.Path, Cause: err}
	}
	defer f.Close()

	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, &IoError{Path: e.Path, Cause: err}
	}
	defer data.Unmap()

	isPE := len(data) >= 2 && data[0] == 'M' && data[1] == 'Z'

	var peFile *pe.File
	if isPE {
		peFile, err = pe.OpenBytes(data, opts)
		if err != nil {
			return nil, &MalformedPeError{Path: e.Path, Reason: err}
		}
	}

	primaryHash, err := digestEntry(peFile, []byte(data), isPE, alg)
	if err != nil {
		return nil, &MalformedPeError{Path: e.Path, Reason: err}
	}

	var compatHash []byte
	if alg == authenticode.SHA256 {
		compatHash, err = digestEntry(peFile, []byte(data), isPE, authenticode.SHA1)
		if err != nil {
			return nil, &MalformedPeError{Path: e.Path, Reason: err}
		}
	}

	var pageHashBytes []byte
	if doPageHashes && isPE {
		hashes, err := authenticode.PageHashes(peFile, alg)
		if err != nil {
			return nil, &MalformedPeError{Path: e.Path, Reason: err}
		}
		pageHashBytes = serializePageHashes(hashes)
	}

	primary := catalogInfo(alg, isPE, primaryHash, pageHashBytes, e.Extensions)
	infos := []catalogInfoStruct{primary}

	if alg == authenticode.SHA256 {
		compatExtensions := filterCompatExtensions(e.Extensions)
		compat := compatCatalogInfo(isPE, compatHash, compatExtensions)
		infos = append(infos, compat)
	}

	return infos, nil
}

// digestEntry computes the primary (or, for v2, compatibility) digest for
// one entry: the Authenticode digest for a PE, a flat streaming hash
// otherwise (§4.5 step 3-4).
func digestEntry(peFile *pe.File, raw []byte, isPE bool, alg authenticode.Algorithm) ([]byte, error) {
	if isPE {
		return authenticode.Digest(peFile, alg)
	}
	return alg.Hash(raw)
}

// filterCompatExtensions drops extensions carrying entryExtensionOmitFlag
// before they are duplicated into a v2 catalogue's SHA-1 compatibility
// entry (§9's resolved open question).
func filterCompatExtensions(exts []Extension) []Extension {
	out := make([]Extension, 0, len(exts))
	for _, e := range exts {
		if e.Flags&entryExtensionOmitFlag != 0 {
			continue
		}
		out = append(out, e)
	}
	return out
}

// digestForm encodes digest as a CatalogInfo.digest field: the v1
// uppercase-hex UTF-16LE text plus NUL-pair terminator, or the v2 raw
// binary bytes unchanged (§3, §4.5 step 6, §9).
func digestForm(alg authenticode.Algorithm, digest []byte) []byte {
	if alg == authenticode.SHA256 {
		return digest
	}

	const hexDigits = "0123456789ABCDEF"
	out := make([]byte, 0, len(digest)*4+2)
	for _, b := range digest {
		out = append(out, hexDigits[b>>4], 0, hexDigits[b&0xf], 0)
	}
	out = append(out, 0, 0)
	return out
}

// extensionAttrs builds one CatNameValue CatalogAuthAttr per extension, in
// input order (§4.5 step 6).
func extensionAttrs(extensions []Extension) []catalogAuthAttrStruct {
	var attrs []catalogAuthAttrStruct
	for _, e := range extensions {
		attrs = append(attrs, catalogAuthAttrStruct{
			Type: oidCatNameValue,
			Contents: []asn1.RawValue{{FullBytes: mustMarshal(catNameValueStruct{
				Tag:   bmpString(e.Name),
				Flags: int(e.Flags),
				Value: utf16LENulTerminated(e.Value),
			})}},
		})
	}
	return attrs
}

// catalogInfo builds one CatalogInfo for a file keyed by digest, per §4.5
// step 6: member info, SPC indirect data and (for v1) the hex digest form.
func catalogInfo(alg authenticode.Algorithm, isPE bool, digest, pageHashBytes []byte, extensions []Extension) catalogInfoStruct {
	attrs := extensionAttrs(extensions)
	attrs = append(attrs, memberInfoAttr(alg, isPE))
	attrs = append(attrs, indirectDataAttr(alg, isPE, digest, pageHashBytes))

	return catalogInfoStruct{
		Digest:     digestForm(alg, digest),
		Attributes: attrs,
	}
}

// compatCatalogInfo builds the SHA-1 compatibility CatalogInfo a v2
// catalogue duplicates alongside each entry's primary SHA-256 CatalogInfo
// (§4.5 step 7, cat.cpp:695-708): a raw (non-hex) SHA-1 digest, a
// CatMemberInfo2 attribute (not CatMemberInfo — unlike a v1 catalogue, this
// entry is still part of a v2 catalogue) and the filtered extensions, with
// no SPC indirect-data attribute.
func compatCatalogInfo(isPE bool, digest []byte, extensions []Extension) catalogInfoStruct {
	attrs := extensionAttrs(extensions)
	attrs = append(attrs, memberInfoAttr(authenticode.SHA256, isPE))

	return catalogInfoStruct{
		Digest:     digest,
		Attributes: attrs,
	}
}

// memberInfoAttr builds the member-info CatalogAuthAttr (§4.5 step 6): a
// version-1 catalogue carries a CatMemberInfo keyed by a well-known GUID
// string; a version-2 catalogue carries a CatMemberInfo2 CHOICE tag.
func memberInfoAttr(alg authenticode.Algorithm, isPE bool) catalogAuthAttrStruct {
	if alg == authenticode.SHA256 {
		return catalogAuthAttrStruct{
			Type:     oidCatMemberInfo2,
			Contents: []asn1.RawValue{catMemberInfo2(isPE)},
		}
	}

	guid := v1MemberInfoGUIDFlat
	if isPE {
		guid = v1MemberInfoGUIDPe
	}
	return catalogAuthAttrStruct{
		Type: oidCatMemberInfo,
		Contents: []asn1.RawValue{{FullBytes: mustMarshal(catMemberInfoStruct{
			Guid:        bmpString(guid),
			CertVersion: 512,
		})}},
	}
}

// indirectDataAttr builds the SPC indirect-data CatalogAuthAttr (§4.5 step
// 6): a PE entry carries an SpcPeImageData (with an SpcLink file or
// page-hashes moniker); a non-PE entry carries a bare SpcLink under
// SpcCabData.
func indirectDataAttr(alg authenticode.Algorithm, isPE bool, digest, pageHashBytes []byte) catalogAuthAttrStruct {
	var digestAlgOID asn1.ObjectIdentifier
	if alg == authenticode.SHA256 {
		digestAlgOID = oidNISTSHA256
	} else {
		digestAlgOID = oidOIWSecSHA1
	}

	var data spcAttributeTypeAndOptionalValue
	if isPE {
		var link asn1.RawValue
		if pageHashBytes != nil {
			pageHashesOID := oidPageHashesV1
			if alg == authenticode.SHA256 {
				pageHashesOID = oidPageHashesV2
			}
			link = spcLinkMoniker(pageHashesGUID, pageHashesSerializedData(pageHashesOID, pageHashBytes))
		} else {
			link = spcLinkFile("")
		}

		fileField := explicitTag(mustMarshal(link), asn1.ClassContextSpecific, 0)
		data = spcAttributeTypeAndOptionalValue{
			Type: oidSpcPeImageData,
			Value: asn1.RawValue{FullBytes: mustMarshal(spcPeImageDataStruct{
				Flags: spcPeImageDataFlags,
				File:  fileField,
			})},
		}
	} else {
		data = spcAttributeTypeAndOptionalValue{
			Type:  oidSpcCabData,
			Value: asn1.RawValue{FullBytes: mustMarshal(spcLinkFile(""))},
		}
	}

	content := spcIndirectDataContent{
		Data: data,
		Digest: spcDigest{
			Algorithm: spcAttributeTypeAndOptionalValue{Type: digestAlgOID, Value: asn1.NullRawValue},
			Hash:      digest,
		},
	}

	return catalogAuthAttrStruct{
		Type:     oidSpcIndirectData,
		Contents: []asn1.RawValue{{FullBytes: mustMarshal(content)}},
	}
}

// serializePageHashes concatenates a page-hash sequence into the flat byte
// form §4.4's OpenSSL-compatibility wrapping expects: each entry as a
// little-endian u32 offset followed by its digest bytes, in sequence
// order (header entry, then pages, then terminator).
func serializePageHashes(hashes []authenticode.PageHash) []byte {
	if len(hashes) == 0 {
		return nil
	}
	entrySize := 4 + len(hashes[0].Digest)
	out := make([]byte, 0, entrySize*len(hashes))
	for _, h := range hashes {
		out = append(out,
			byte(h.Offset), byte(h.Offset>>8), byte(h.Offset>>16), byte(h.Offset>>24))
		out = append(out, h.Digest...)
	}
	return out
}

// signedDataStruct is PKCS#7 `SignedData ::= SEQUENCE { version INTEGER,
// digestAlgorithms SET OF AlgorithmIdentifier, contentInfo ContentInfo,
// certificates [0] IMPLICIT ... OPTIONAL, crls [1] IMPLICIT ... OPTIONAL,
// signerInfos SET OF SignerInfo }`. Build emits it detached and unsigned
// (§4.5 global step 4): empty digest-algorithm and signer-info sets,
// certificates/crls entirely absent. Signing, if any, is a separate tool's
// job (§1's non-goals).
type signedDataStruct struct {
	Version          int
	DigestAlgorithms []asn1.RawValue `asn1:"set"`
	ContentInfo      contentInfoStruct
	// Certificates is never populated by Build, so its zero value is
	// always omitted by the "optional" tag. tag:0 matches the field's
	// [0] IMPLICIT tag so that decoding skips it when absent instead of
	// taking the signerInfos SET in its place; a RawValue field's own
	// Class/Tag would still need setting by hand were it ever non-zero
	// (see contentInfoStruct's comment).
	Certificates asn1.RawValue   `asn1:"optional,tag:0"`
	CRLs         []asn1.RawValue `asn1:"optional,set,tag:1"`
	SignerInfos  []asn1.RawValue `asn1:"set"`
}

// contentInfoStruct is PKCS#7 `ContentInfo ::= SEQUENCE { contentType OID,
// content [0] EXPLICIT ANY OPTIONAL }` — used both for the outer envelope
// (contentType=SignedData) and SignedData's own contentInfo
// (contentType=CTL, content=the DER-encoded MsCtlContent). Content is
// always built via explicitTag rather than a struct tag: encoding/asn1's
// RawValue marshaling short-circuits on FullBytes before field-level
// explicit/tag parameters are ever consulted, so the tagging has to be
// baked into the RawValue itself.
type contentInfoStruct struct {
	ContentType asn1.ObjectIdentifier
	Content     asn1.RawValue
}

func signedData(ctlDER []byte) contentInfoStruct {
	inner := signedDataStruct{
		Version: 1,
		ContentInfo: contentInfoStruct{
			ContentType: oidCTL,
			Content:     explicitTag(ctlDER, asn1.ClassContextSpecific, 0),
		},
	}
	return contentInfoStruct{
		ContentType: oidSignedData,
		Content:     explicitTag(mustMarshal(inner), asn1.ClassContextSpecific, 0),
	}
}
