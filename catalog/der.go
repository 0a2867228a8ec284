// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package catalog

import (
	"encoding/asn1"
	"time"
	"unicode/utf16"
)

// The types below are a field-for-field translation of the ASN.1 grammar in
// §4.4: a CatalogAuthAttr's CatAttr CHOICE is untagged (cat_name_value,
// cat_member_info and spc_indirect_data_content all keep their own natural
// SEQUENCE tag; cat_member_info2 is itself a CHOICE of IMPLICIT-tagged
// NULLs), so each alternative is built as a fully self-tagged asn1.RawValue
// rather than a Go-level sum type — encoding/asn1 has no CHOICE primitive.
//
// BMPString has no native encoding/asn1 support (the package can only
// *parse* it), so tag/flags/value-carrying fields that need it are built
// by hand into a RawValue with Class/Tag/Bytes set directly; encoding/asn1
// happily marshals a RawValue field exactly as constructed as long as its
// FullBytes is left empty.

// spcAttributeTypeAndOptionalValue is `SpcAttributeTypeAndOptionalValue ::=
// SEQUENCE { type OID, value ANY OPTIONAL }`.
type spcAttributeTypeAndOptionalValue struct {
	Type  asn1.ObjectIdentifier
	Value asn1.RawValue `asn1:"optional"`
}

// spcDigest is `SpcDigest ::= SEQUENCE { algorithm
// SpcAttributeTypeAndOptionalValue, hash OCTET STRING }`.
type spcDigest struct {
	Algorithm spcAttributeTypeAndOptionalValue
	Hash      []byte
}

// spcIndirectDataContent is `SpcIndirectDataContent ::= SEQUENCE { data
// SpcAttributeTypeAndOptionalValue, digest SpcDigest }`.
type spcIndirectDataContent struct {
	Data   spcAttributeTypeAndOptionalValue
	Digest spcDigest
}

// spcSerializedObject is `SpcSerializedObject ::= SEQUENCE { classId OCTET
// STRING, serializedData OCTET STRING }`.
type spcSerializedObject struct {
	ClassID        []byte
	SerializedData []byte
}

// spcPeImageDataStruct is `SpcPeImageData ::= SEQUENCE { flags BIT STRING,
// [0] EXPLICIT SpcLink OPTIONAL }`.
type spcPeImageDataStruct struct {
	Flags asn1.BitString
	File  asn1.RawValue `asn1:"optional"`
}

// spcPeImageDataFlags is the fixed BIT STRING {1,0,1} (bits 0 and 2 set)
// every SpcPeImageData in a catalogue carries (§4.5).
var spcPeImageDataFlags = asn1.BitString{Bytes: []byte{0xA0}, BitLength: 3}

// catNameValueStruct is `CatNameValue ::= SEQUENCE { tag BMPString, flags
// INTEGER(u32), value OCTET STRING }`.
type catNameValueStruct struct {
	Tag   asn1.RawValue
	Flags int
	Value []byte
}

// catMemberInfoStruct is `CatMemberInfo ::= SEQUENCE { guid BMPString,
// certVersion INTEGER(u32) }`.
type catMemberInfoStruct struct {
	Guid        asn1.RawValue
	CertVersion int
}

// certExtensionStruct is `CertExtension ::= SEQUENCE { type OID, blob
// OCTET STRING }`; blob is the DER of a CatNameValue.
type certExtensionStruct struct {
	Type asn1.ObjectIdentifier
	Blob []byte
}

// catalogAuthAttrStruct is `CatalogAuthAttr ::= SEQUENCE { type OID,
// contents SET OF CatAttr }`.
type catalogAuthAttrStruct struct {
	Type     asn1.ObjectIdentifier
	Contents []asn1.RawValue `asn1:"set"`
}

// catalogInfoStruct is `CatalogInfo ::= SEQUENCE { digest OCTET STRING,
// attributes SET OF CatalogAuthAttr }`.
type catalogInfoStruct struct {
	Digest     []byte
	Attributes []catalogAuthAttrStruct `asn1:"set"`
}

// msCtlContentStruct is `MsCtlContent ::= SEQUENCE { type
// SpcAttributeTypeAndOptionalValue, identifier OCTET STRING, time UTCTime,
// version SpcAttributeTypeAndOptionalValue, headerAttributes SEQUENCE OF
// CatalogInfo, [0] EXPLICIT extensions SEQUENCE OF CertExtension }`.
type msCtlContentStruct struct {
	Type             spcAttributeTypeAndOptionalValue
	Identifier       []byte
	Time             time.Time
	Version          spcAttributeTypeAndOptionalValue
	HeaderAttributes []catalogInfoStruct
	Extensions       asn1.RawValue
}

// mustMarshal panics on an encoding/asn1 Marshal error. Every type in this
// file is a closed, statically-known shape, so a Marshal failure here can
// only mean a programming error (mismatched field type), not bad input —
// §7's DerEncodeError is a fatal/programmer-error class for exactly this
// reason.
func mustMarshal(v interface{}) []byte {
	b, err := asn1.Marshal(v)
	if err != nil {
		panic(&DerEncodeError{err})
	}
	return b
}

// DerEncodeError wraps an unexpected encoding/asn1 failure. §7 classifies
// this as a programmer error: every value this package hands to
// encoding/asn1 has a shape fixed at compile time.
type DerEncodeError struct {
	Err error
}

func (e *DerEncodeError) Error() string { return "catalog: DER encode failed: " + e.Err.Error() }
func (e *DerEncodeError) Unwrap() error { return e.Err }

// bmpString builds a BMPString RawValue: UTF-16BE code units, no BOM, no
// trailing NUL (§4.4).
func bmpString(s string) asn1.RawValue {
	units := utf16.Encode([]rune(s))
	b := make([]byte, len(units)*2)
	for i, u := range units {
		b[2*i] = byte(u >> 8)
		b[2*i+1] = byte(u)
	}
	return asn1.RawValue{Class: asn1.ClassUniversal, Tag: asn1.TagBMPString, Bytes: b}
}

// utf16LENulTerminated encodes s as UTF-16LE with a trailing 16-bit NUL —
// the payload of a CatNameValue.value OCTET STRING, which uses the
// opposite endianness and NUL convention from BMPString fields (§4.4, §9).
func utf16LENulTerminated(s string) []byte {
	units := utf16.Encode([]rune(s))
	b := make([]byte, len(units)*2+2)
	for i, u := range units {
		b[2*i] = byte(u)
		b[2*i+1] = byte(u >> 8)
	}
	return b
}

// implicitTag re-tags an already-DER-encoded value der, replacing its outer
// tag with [class tag], keeping only its content bytes — the encoding/asn1
// idiom for an IMPLICIT CHOICE/field tag.
func implicitTag(der []byte, class, tag int, compound bool) asn1.RawValue {
	var raw asn1.RawValue
	if _, err := asn1.Unmarshal(der, &raw); err != nil {
		panic(&DerEncodeError{err})
	}
	return asn1.RawValue{Class: class, Tag: tag, IsCompound: compound, Bytes: raw.Bytes}
}

// explicitTag wraps an already-DER-encoded value der inside a new
// constructed [class tag], keeping der's own tag intact as the content —
// the encoding/asn1 idiom for an EXPLICIT CHOICE/field tag.
func explicitTag(der []byte, class, tag int) asn1.RawValue {
	return asn1.RawValue{Class: class, Tag: tag, IsCompound: true, Bytes: der}
}

// catMemberInfo2 builds `CatMemberInfo2 ::= CHOICE { [0] NULL (pe) | [2]
// NULL (flat) }` (the [1] "unknown1" alternative is never constructed by
// this package; see §4.4's CHOICE list).
func catMemberInfo2(isPE bool) asn1.RawValue {
	tag := 2
	if isPE {
		tag = 0
	}
	return asn1.RawValue{Class: asn1.ClassContextSpecific, Tag: tag}
}

// spcLinkFile builds the `[2] EXPLICIT SpcString (file)` alternative of
// SpcLink with an SpcString{[0] BMPString unicode} holding s.
func spcLinkFile(s string) asn1.RawValue {
	unicode := implicitValue(bmpString(s), asn1.ClassContextSpecific, 0, false)
	return explicitTag(mustMarshal(unicode), asn1.ClassContextSpecific, 2)
}

// spcLinkMoniker builds the `[1] SpcSerializedObject (moniker)`
// alternative of SpcLink, IMPLICIT-tagged per §4.4's CHOICE.
func spcLinkMoniker(classID, serializedData []byte) asn1.RawValue {
	der := mustMarshal(spcSerializedObject{ClassID: classID, SerializedData: serializedData})
	return implicitTag(der, asn1.ClassContextSpecific, 1, true)
}

// implicitValue re-tags an already-built RawValue (rather than a DER blob)
// without a round trip through Marshal/Unmarshal — used when the value's
// content bytes are already in hand.
func implicitValue(v asn1.RawValue, class, tag int, compound bool) asn1.RawValue {
	return asn1.RawValue{Class: class, Tag: tag, IsCompound: compound, Bytes: v.Bytes}
}

// pageHashesSerializedData builds the OpenSSL-compatible double-SET-wrapped
// serializedData blob for a page-hashes moniker (§4.4's "OpenSSL-
// compatibility wrapping").
func pageHashesSerializedData(pageHashesOID asn1.ObjectIdentifier, pageBytes []byte) []byte {
	octetString := mustMarshal(pageBytes)
	innerSet := asn1.RawValue{Class: asn1.ClassUniversal, Tag: asn1.TagSet, IsCompound: true, Bytes: octetString}

	inner := mustMarshal(spcAttributeTypeAndOptionalValue{Type: pageHashesOID, Value: innerSet})

	outerSequence := asn1.RawValue{Class: asn1.ClassUniversal, Tag: asn1.TagSequence, IsCompound: true, Bytes: inner}
	outerSet := asn1.RawValue{Class: asn1.ClassUniversal, Tag: asn1.TagSet, IsCompound: true, Bytes: mustMarshal(outerSequence)}

	return mustMarshal(outerSet)
}
