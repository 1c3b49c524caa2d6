package frame

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"time"

	"usher/internal/access"
)

// minFrameLen is the smallest structurally meaningful frame: header (5),
// empty item id, and the 12-byte timestamp/checksum trailer would push this
// higher, but the wire contract only rejects below 13 bytes.
const minFrameLen = 13

const trailerLen = 12 // timestamp (8) + checksum (4)

var (
	ErrFrameTooShort    = errors.New("frame: too short")
	ErrUnknownVersion   = errors.New("frame: unknown protocol version")
	ErrBadReadiness     = errors.New("frame: unknown readiness code")
	ErrSectionTruncated = errors.New("frame: declared section exceeds frame length")
	ErrBadPayload       = errors.New("frame: malformed payload section")
)

// Encode serializes the frame to its binary wire form. Section flags are
// derived from the attached payloads; IsDelta, IsCompressed and RequiresAuth
// are carried through from f.Flags. The checksum covers every byte that
// precedes it.
func Encode(f *Frame) ([]byte, error) {
	if f == nil {
		return nil, errors.New("frame: nil frame")
	}
	itemID := []byte(f.ItemID)
	if len(itemID) > 0xFFFF {
		return nil, fmt.Errorf("frame: item id too long (%d bytes)", len(itemID))
	}
	if !f.Readiness.Known() {
		return nil, fmt.Errorf("%w: %d", ErrBadReadiness, f.Readiness)
	}

	flags := f.Flags &^ (FlagHasAccess | FlagHasFallback | FlagHasHeaders)
	var accessJSON, fallbackJSON, headersJSON []byte
	var err error
	if f.Access != nil {
		if accessJSON, err = json.Marshal(f.Access); err != nil {
			return nil, fmt.Errorf("frame: marshal access payload: %w", err)
		}
		flags |= FlagHasAccess
	}
	if f.Fallback != nil {
		if fallbackJSON, err = json.Marshal(f.Fallback); err != nil {
			return nil, fmt.Errorf("frame: marshal fallback payload: %w", err)
		}
		flags |= FlagHasFallback
	}
	if len(f.Headers) > 0 {
		if headersJSON, err = json.Marshal(f.Headers); err != nil {
			return nil, fmt.Errorf("frame: marshal headers: %w", err)
		}
		flags |= FlagHasHeaders
	}

	version := f.Version
	if version == 0 {
		version = Version
	}

	size := 5 + len(itemID) + trailerLen
	for _, section := range [][]byte{accessJSON, fallbackJSON, headersJSON} {
		if section != nil {
			size += 4 + len(section)
		}
	}

	buf := make([]byte, 0, size)
	buf = append(buf, version, byte(flags))
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(itemID)))
	buf = append(buf, f.Readiness.Code())
	buf = append(buf, itemID...)
	for _, section := range [][]byte{accessJSON, fallbackJSON, headersJSON} {
		if section == nil {
			continue
		}
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(section)))
		buf = append(buf, section...)
	}

	timestamp := f.Timestamp
	if timestamp == 0 {
		// Match EncodeCompact: a zero-value frame stamps encode time rather
		// than serializing an epoch that is instantly expired.
		timestamp = time.Now().UnixMilli()
	}
	ts := uint64(timestamp)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(ts&0xFFFFFFFF))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(ts>>32))
	buf = binary.LittleEndian.AppendUint32(buf, crc32.ChecksumIEEE(buf))
	return buf, nil
}

// Decode parses a binary frame. It returns an error (and no frame) for
// structurally unusable input. A frame whose checksum does not match is
// returned with Valid == false so callers can log and discard it.
//
// A frame that ends cleanly after its declared sections, before the
// timestamp/checksum trailer, is accepted with the current time and
// Valid == true. Legacy emitters omit the trailer; keep this leniency until
// the protocol drops version 1.
func Decode(data []byte) (*Frame, error) {
	if len(data) < minFrameLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooShort, len(data))
	}
	version := data[0]
	if version != Version {
		return nil, fmt.Errorf("%w: %d", ErrUnknownVersion, version)
	}
	flags := Flags(data[1])
	itemIDLen := int(binary.LittleEndian.Uint16(data[2:4]))
	readiness, ok := access.ReadinessFromCode(data[4])
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrBadReadiness, data[4])
	}

	offset := 5
	if offset+itemIDLen > len(data) {
		return nil, fmt.Errorf("%w: item id", ErrSectionTruncated)
	}
	itemID := string(data[offset : offset+itemIDLen])
	offset += itemIDLen

	f := &Frame{
		Version:   version,
		Flags:     flags,
		ItemID:    itemID,
		Readiness: readiness,
	}

	readSection := func(name string) ([]byte, error) {
		if offset+4 > len(data) {
			return nil, fmt.Errorf("%w: %s length", ErrSectionTruncated, name)
		}
		length := int(binary.LittleEndian.Uint32(data[offset : offset+4]))
		offset += 4
		if offset+length > len(data) {
			return nil, fmt.Errorf("%w: %s body", ErrSectionTruncated, name)
		}
		section := data[offset : offset+length]
		offset += length
		return section, nil
	}

	if flags.Has(FlagHasAccess) {
		section, err := readSection("access")
		if err != nil {
			return nil, err
		}
		payload := new(access.Payload)
		if err := json.Unmarshal(section, payload); err != nil {
			return nil, fmt.Errorf("%w: access: %w", ErrBadPayload, err)
		}
		f.Access = payload
	}
	if flags.Has(FlagHasFallback) {
		section, err := readSection("fallback")
		if err != nil {
			return nil, err
		}
		payload := new(access.Payload)
		if err := json.Unmarshal(section, payload); err != nil {
			return nil, fmt.Errorf("%w: fallback: %w", ErrBadPayload, err)
		}
		f.Fallback = payload
	}
	if flags.Has(FlagHasHeaders) {
		section, err := readSection("headers")
		if err != nil {
			return nil, err
		}
		headers := map[string]string{}
		if err := json.Unmarshal(section, &headers); err != nil {
			return nil, fmt.Errorf("%w: headers: %w", ErrBadPayload, err)
		}
		f.Headers = headers
	}

	remaining := len(data) - offset
	switch {
	case remaining == 0:
		// Truncated before the trailer: legacy leniency.
		f.Timestamp = time.Now().UnixMilli()
		f.Valid = true
	case remaining == trailerLen:
		low := binary.LittleEndian.Uint32(data[offset : offset+4])
		high := binary.LittleEndian.Uint32(data[offset+4 : offset+8])
		f.Timestamp = int64(uint64(high)<<32 | uint64(low))
		f.Checksum = binary.LittleEndian.Uint32(data[offset+8 : offset+12])
		f.Valid = crc32.ChecksumIEEE(data[:offset+8]) == f.Checksum
	default:
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrSectionTruncated, remaining)
	}
	return f, nil
}
