package core

import (
	"fmt"
	"strconv"
	"strings"
)

// This file centralizes constants related to file formats, magic numbers,
// and other protocol-level identifiers used across the database engine.

// --- Magic Numbers ---
const (
	// WALMagicNumber identifies a Write-Ahead Log segment file.
	WALMagicNumber uint32 = 0xBAADF00D
	// WALMagic is the FileHeader magic used by wal segment files.
	WALMagic = WALMagicNumber
	// StringStoreMagicNumber identifies a string-to-id mapping file. The
	// registry keeps its system/FoI tables in pagedmaps and does not use it.
	StringStoreMagicNumber uint32 = 0x57524E47 // "STRG"
	// SeriesStoreMagicNumber identifies the series-to-id mapping file.
	SeriesStoreMagicNumber uint32 = 0x53455249 // "SERI"
	// SSTableMagicNumber identifies an SSTable file.
	SSTableMagicNumber uint32 = 0x53535442 // "SSTB"
	// SSTableMagic is the FileHeader magic used by sstable.NewSSTableWriter/reader.
	SSTableMagic = SSTableMagicNumber
)

// --- Magic Strings ---
const (
	// SSTableMagicString is a unique identifier placed at the end of an SSTable file.
	SSTableMagicString    = "LSMT-SSTABLE-V1"
	SSTableMagicStringLen = len(SSTableMagicString)
)

// --- File Names & Prefixes ---
const (
	// WALFileSuffix is the suffix for WAL segment files.
	WALFileSuffix = ".wal"

	// SeriesMappingLogName names a seriesId assignment log. The registry
	// keeps its tables in pagedmaps and writes no such file.
	SeriesMappingLogName = "series_mapping.log"

	// StringMappingLogName names a system/FoI UID assignment log. The
	// registry keeps its tables in pagedmaps and writes no such file.
	StringMappingLogName = "string_mapping.log"
)

// --- Protocol & Format Versions ---
const (
	// FormatVersion is the current version for all persistent file formats.
	FormatVersion uint8 = 2
)

// --- Default Sizes & Limits ---
const (
	// WALMaxSegmentSize is the default maximum size for a WAL segment file.
	WALMaxSegmentSize = 128 * 1024 * 1024 // 128 MB
)

func FormatTempFilename(prefix, postfix string) string {
	return fmt.Sprintf("%s.%s", prefix, postfix)
}

// FormatSegmentFileName creates a segment file name from its index.
func FormatSegmentFileName(index uint64) string {
	return fmt.Sprintf("%08d%s", index, WALFileSuffix)
}

// ParseSegmentFileName extracts the index from a segment file name.
func ParseSegmentFileName(name string) (uint64, error) {
	if !strings.HasSuffix(name, WALFileSuffix) {
		return 0, fmt.Errorf("file %s is not a WAL segment file", name)
	}
	name = strings.TrimSuffix(name, WALFileSuffix)
	return strconv.ParseUint(name, 10, 64)
}
