package model

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// ParseLogIndex extracts the log index from an indexed-event id. Two forms
// are accepted, and every ingestion path goes through this function:
//
//	<anything>-<decimal>     suffix after the last '-'
//	0x<32-byte hash><int32>  hash concatenated with a little-endian int32
//
// Any other form is an error; callers must never default to 0.
func ParseLogIndex(id string) (int, error) {
	id = strings.TrimSpace(id)
	if i := strings.LastIndexByte(id, '-'); i >= 0 {
		n, err := strconv.Atoi(id[i+1:])
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid log index suffix in id %q", id)
		}
		return n, nil
	}

	hexPart := strings.TrimPrefix(strings.ToLower(id), "0x")
	if len(hexPart) != 2*(32+4) {
		return 0, fmt.Errorf("unrecognized event id %q", id)
	}
	raw, err := hex.DecodeString(hexPart)
	if err != nil {
		return 0, fmt.Errorf("decode event id %q: %w", id, err)
	}
	n := int32(binary.LittleEndian.Uint32(raw[32:]))
	if n < 0 {
		return 0, fmt.Errorf("negative log index in id %q", id)
	}
	return int(n), nil
}
