// Package rdb reads the binary snapshot file format.
//
// A snapshot is a 5-byte magic marker, a 4-ASCII-digit version, and a
// flat stream of opcode-tagged records terminated by an end-of-file
// opcode. Only reading is implemented; writing snapshots is out of
// scope, as is decoding any value type other than strings.
package rdb

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cardinalkv/cardinal/internal/core/domain"
)

// Record opcodes.
const (
	opAux       = 0xFA // auxiliary metadata field
	opResizeDB  = 0xFB // hash table resize hint, read and discarded
	opExpireMS  = 0xFC // key with millisecond expiry
	opExpireSec = 0xFD // key with second expiry
	opSelectDB  = 0xFE // select database
	opEOF       = 0xFF // end of file, followed by an 8-byte checksum
)

var magic = []byte("REDIS")

var (
	// ErrNotRedisDatabase is returned when the magic marker is missing.
	ErrNotRedisDatabase = errors.New("rdb: file is not a redis database")

	// ErrInvalidLengthEncoding is returned when a length byte cannot
	// be classified.
	ErrInvalidLengthEncoding = errors.New("rdb: invalid length encoding")

	// ErrSpecialFormatInt is returned when the special string-encoding
	// format appears where a plain length is required.
	ErrSpecialFormatInt = errors.New("rdb: special format is invalid for a length-encoded integer")

	// ErrInvalidExpiryFlag is returned for an unexpected byte where an
	// expiry-flag byte was expected.
	ErrInvalidExpiryFlag = errors.New("rdb: invalid expiry timestamp flag")

	// ErrNoDatabaseSelected is returned when a key record appears
	// before any select-database opcode.
	ErrNoDatabaseSelected = errors.New("rdb: attempted to read key without a database selected")

	// ErrUnsupportedValueType is returned for value-type tags other
	// than strings. Non-string values are not decoded.
	ErrUnsupportedValueType = errors.New("rdb: unsupported value type")

	// ErrCompressedString is returned for LZF-compressed strings, which
	// are not implemented.
	ErrCompressedString = errors.New("rdb: compressed string encoding not supported")
)

// File is the parsed content of one snapshot. It is constructed once
// per load, merged into the store, and discarded.
type File struct {
	Version   uint16
	Metadata  map[string]string
	Databases map[int]map[string]domain.Value

	// Expiries is a side table of per-database absolute expirations,
	// built from records preceded by an expiry opcode. It is merged
	// with Databases into store entries at load time.
	Expiries map[int]map[string]time.Time
}

// ReadFile parses the snapshot at path.
func ReadFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}

// Read parses a snapshot from r. Accepting any reader lets tests feed
// in-memory fixtures through the same decoding path as real files.
func Read(r io.Reader) (*File, error) {
	d := &decoder{br: bufio.NewReader(r)}

	header := make([]byte, len(magic))
	if _, err := io.ReadFull(d.br, header); err != nil {
		return nil, fmt.Errorf("rdb: read magic: %w", err)
	}
	if string(header) != string(magic) {
		return nil, ErrNotRedisDatabase
	}

	version, err := d.readVersion()
	if err != nil {
		return nil, err
	}

	f := &File{
		Version:   version,
		Metadata:  make(map[string]string),
		Databases: make(map[int]map[string]domain.Value),
		Expiries:  make(map[int]map[string]time.Time),
	}

	currentDB := -1
	for {
		opcode, err := d.br.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("rdb: read opcode: %w", err)
		}

		switch opcode {
		case opAux:
			key, err := d.readString()
			if err != nil {
				return nil, err
			}
			value, err := d.readString()
			if err != nil {
				return nil, err
			}
			f.Metadata[key] = value

		case opResizeDB:
			// Key-count and expiry-count hints, unused here.
			if _, err := d.readLength(); err != nil {
				return nil, err
			}
			if _, err := d.readLength(); err != nil {
				return nil, err
			}

		case opExpireMS, opExpireSec:
			if currentDB < 0 {
				return nil, ErrNoDatabaseSelected
			}
			expiry, err := d.readExpiry(opcode)
			if err != nil {
				return nil, err
			}
			valueType, err := d.br.ReadByte()
			if err != nil {
				return nil, fmt.Errorf("rdb: read value type: %w", err)
			}
			key, value, err := d.readKeyValue(valueType)
			if err != nil {
				return nil, err
			}
			f.database(currentDB)[key] = value
			f.expiries(currentDB)[key] = expiry

		case opSelectDB:
			index, err := d.br.ReadByte()
			if err != nil {
				return nil, fmt.Errorf("rdb: read database index: %w", err)
			}
			currentDB = int(index)

		case opEOF:
			// The trailing CRC-64 is read but not verified.
			var checksum [8]byte
			if _, err := io.ReadFull(d.br, checksum[:]); err != nil {
				return nil, fmt.Errorf("rdb: read checksum: %w", err)
			}
			return f, nil

		default:
			// Any other byte is the value-type tag of a key/value
			// record with no expiry.
			if currentDB < 0 {
				return nil, ErrNoDatabaseSelected
			}
			key, value, err := d.readKeyValue(opcode)
			if err != nil {
				return nil, err
			}
			f.database(currentDB)[key] = value
		}
	}
}

func (f *File) database(id int) map[string]domain.Value {
	db, ok := f.Databases[id]
	if !ok {
		db = make(map[string]domain.Value)
		f.Databases[id] = db
	}
	return db
}

func (f *File) expiries(id int) map[string]time.Time {
	exp, ok := f.Expiries[id]
	if !ok {
		exp = make(map[string]time.Time)
		f.Expiries[id] = exp
	}
	return exp
}

// decoder reads the typed primitives of the format off a byte source.
type decoder struct {
	br *bufio.Reader
}

func (d *decoder) readVersion() (uint16, error) {
	var digits [4]byte
	if _, err := io.ReadFull(d.br, digits[:]); err != nil {
		return 0, fmt.Errorf("rdb: read version: %w", err)
	}
	version, err := strconv.ParseUint(string(digits[:]), 10, 16)
	if err != nil {
		return 0, fmt.Errorf("rdb: parse version %q: %w", string(digits[:]), err)
	}
	return uint16(version), nil
}

// lengthEncoding selects how the 6 low bits of a length byte are
// interpreted, per the byte's top 2 bits.
type lengthEncoding byte

const (
	encLen6Bit   lengthEncoding = iota // length is the remaining 6 bits
	encLen14Bit                        // remaining 6 bits shifted left 8, OR next byte
	encLen32Bit                        // remaining bits discarded; next 4 bytes little-endian
	encSpecial                         // remaining bits select an integer encoding, strings only
)

func (d *decoder) readLengthEncoding() (lengthEncoding, int, error) {
	b, err := d.br.ReadByte()
	if err != nil {
		return 0, 0, fmt.Errorf("rdb: read length byte: %w", err)
	}
	remaining := int(b & 0x3F)
	switch b >> 6 {
	case 0b00:
		return encLen6Bit, remaining, nil
	case 0b01:
		return encLen14Bit, remaining, nil
	case 0b10:
		return encLen32Bit, 0, nil
	case 0b11:
		return encSpecial, remaining, nil
	}
	return 0, 0, fmt.Errorf("%w: %#08b", ErrInvalidLengthEncoding, b)
}

// resolveLength turns an encoding and its embedded bits into a length,
// reading any additional bytes the scheme requires.
func (d *decoder) resolveLength(enc lengthEncoding, remaining int) (int, error) {
	switch enc {
	case encLen6Bit:
		return remaining, nil
	case encLen14Bit:
		next, err := d.br.ReadByte()
		if err != nil {
			return 0, fmt.Errorf("rdb: read length byte: %w", err)
		}
		return remaining<<8 | int(next), nil
	case encLen32Bit:
		var buf [4]byte
		if _, err := io.ReadFull(d.br, buf[:]); err != nil {
			return 0, fmt.Errorf("rdb: read length word: %w", err)
		}
		return int(binary.LittleEndian.Uint32(buf[:])), nil
	case encSpecial:
		return 0, ErrSpecialFormatInt
	}
	return 0, fmt.Errorf("%w: %d", ErrInvalidLengthEncoding, enc)
}

// readLength reads a length-encoded integer. The special format is not
// valid here.
func (d *decoder) readLength() (int, error) {
	enc, remaining, err := d.readLengthEncoding()
	if err != nil {
		return 0, err
	}
	return d.resolveLength(enc, remaining)
}

// readString reads a length-prefixed string. Under the special format
// the "length" bits select an integer width instead, and the integer is
// returned stringified in base 10. Malformed UTF-8 is replaced, not
// fatal.
func (d *decoder) readString() (string, error) {
	enc, remaining, err := d.readLengthEncoding()
	if err != nil {
		return "", err
	}

	if enc == encSpecial {
		var value uint32
		switch remaining {
		case 0:
			b, err := d.br.ReadByte()
			if err != nil {
				return "", fmt.Errorf("rdb: read int8 string: %w", err)
			}
			value = uint32(b)
		case 1:
			var buf [2]byte
			if _, err := io.ReadFull(d.br, buf[:]); err != nil {
				return "", fmt.Errorf("rdb: read int16 string: %w", err)
			}
			value = uint32(binary.LittleEndian.Uint16(buf[:]))
		case 2:
			var buf [4]byte
			if _, err := io.ReadFull(d.br, buf[:]); err != nil {
				return "", fmt.Errorf("rdb: read int32 string: %w", err)
			}
			value = binary.LittleEndian.Uint32(buf[:])
		case 3:
			return "", ErrCompressedString
		default:
			return "", fmt.Errorf("%w: special string encoding %d", ErrInvalidLengthEncoding, remaining)
		}
		return strconv.FormatUint(uint64(value), 10), nil
	}

	length, err := d.resolveLength(enc, remaining)
	if err != nil {
		return "", err
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(d.br, buf); err != nil {
		return "", fmt.Errorf("rdb: read string payload: %w", err)
	}
	return strings.ToValidUTF8(string(buf), string(utf8.RuneError)), nil
}

// readExpiry reads the timestamp payload of an expiry opcode. The
// opcode selects the width: 8-byte little-endian milliseconds for
// opExpireMS, 4-byte little-endian seconds for opExpireSec.
func (d *decoder) readExpiry(opcode byte) (time.Time, error) {
	switch opcode {
	case opExpireMS:
		var buf [8]byte
		if _, err := io.ReadFull(d.br, buf[:]); err != nil {
			return time.Time{}, fmt.Errorf("rdb: read expiry: %w", err)
		}
		return time.UnixMilli(int64(binary.LittleEndian.Uint64(buf[:]))), nil
	case opExpireSec:
		var buf [4]byte
		if _, err := io.ReadFull(d.br, buf[:]); err != nil {
			return time.Time{}, fmt.Errorf("rdb: read expiry: %w", err)
		}
		return time.Unix(int64(binary.LittleEndian.Uint32(buf[:])), 0), nil
	}
	return time.Time{}, fmt.Errorf("%w: %#02x", ErrInvalidExpiryFlag, opcode)
}

// readKeyValue reads one key/value record: the length-encoded key, then
// the value per the type tag. Only string values are decoded.
func (d *decoder) readKeyValue(valueType byte) (string, domain.Value, error) {
	key, err := d.readString()
	if err != nil {
		return "", domain.Value{}, err
	}

	switch valueType {
	case 0:
		s, err := d.readString()
		if err != nil {
			return "", domain.Value{}, err
		}
		return key, domain.String(s), nil
	default:
		return "", domain.Value{}, fmt.Errorf("%w: %#02x", ErrUnsupportedValueType, valueType)
	}
}
