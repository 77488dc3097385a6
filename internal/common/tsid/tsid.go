// Package tsid generates time-sorted identifiers: 42 bits of
// millisecond timestamp over a 2020-01-01 epoch plus 22 random bits,
// rendered as 13 characters of Crockford Base32. IDs created later
// sort lexicographically after IDs created earlier, which makes them
// useful as broker deduplication keys and log correlation IDs.
package tsid

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"sync"
	"time"
)

const (
	// Milliseconds between the Unix epoch and 2020-01-01T00:00:00Z
	epochOffset = 1577836800000

	randomBits = 22

	alphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"
	idLength = 13
)

// ErrInvalidCharacter is returned when decoding a string that is not
// valid Crockford Base32
var ErrInvalidCharacter = errors.New("tsid: invalid character")

// decodeTable maps ASCII bytes to their Crockford Base32 value, with
// the usual aliases (O reads as 0, I and L read as 1) and -1 for
// everything else
var decodeTable [256]int8

func init() {
	for i := range decodeTable {
		decodeTable[i] = -1
	}
	for i := 0; i < len(alphabet); i++ {
		c := alphabet[i]
		decodeTable[c] = int8(i)
		if c >= 'A' && c <= 'Z' {
			decodeTable[c+'a'-'A'] = int8(i)
		}
	}
	for _, alias := range []struct {
		chars string
		value int8
	}{
		{"Oo", 0},
		{"IiLl", 1},
		{"Uu", 27},
	} {
		for i := 0; i < len(alias.chars); i++ {
			decodeTable[alias.chars[i]] = alias.value
		}
	}
}

// Generator produces TSIDs. The zero value is not usable; create one
// with NewGenerator or use the package-level Generate.
type Generator struct {
	mu       sync.Mutex
	lastTime int64
	counter  uint32
}

// NewGenerator creates a new TSID generator
func NewGenerator() *Generator {
	return &Generator{}
}

var defaultGenerator = NewGenerator()

// Generate returns a new TSID from the shared generator
func Generate() string {
	return defaultGenerator.Generate()
}

// Generate returns a new TSID as a Crockford Base32 string
func (g *Generator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now().UnixMilli() - epochOffset

	var buf [4]byte
	rand.Read(buf[:])
	random := binary.BigEndian.Uint32(buf[:]) & ((1 << randomBits) - 1)

	// Within one millisecond a counter replaces the low random bits so
	// bursts cannot collide
	if now == g.lastTime {
		g.counter++
		random = (random &^ 0xFFFF) | (g.counter & 0xFFFF)
	} else {
		g.lastTime = now
		g.counter = 0
	}

	return encode((uint64(now) << randomBits) | uint64(random))
}

// encode renders a 64-bit value as 13 Crockford Base32 characters
func encode(value uint64) string {
	var out [idLength]byte
	for i := idLength - 1; i >= 0; i-- {
		out[i] = alphabet[value&0x1F]
		value >>= 5
	}
	return string(out[:])
}

// decode parses a Crockford Base32 string into its 64-bit value
func decode(s string) (uint64, error) {
	var value uint64
	for i := 0; i < len(s); i++ {
		v := decodeTable[s[i]]
		if v < 0 {
			return 0, ErrInvalidCharacter
		}
		value = value<<5 | uint64(v)
	}
	return value, nil
}

// ToLong converts a TSID string to its int64 representation
func ToLong(id string) (int64, error) {
	value, err := decode(id)
	if err != nil {
		return 0, err
	}
	return int64(value), nil
}

// ToString converts an int64 TSID to its Crockford Base32 representation
func ToString(value int64) string {
	return encode(uint64(value))
}

// GetTimestamp extracts the creation time from a TSID string
func GetTimestamp(id string) (time.Time, error) {
	value, err := decode(id)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(int64(value>>randomBits) + epochOffset), nil
}
