package jam

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// serializeUint64 implements the general natural encoding: one prefix byte
// whose leading ones give the number of trailing little-endian bytes.
func serializeUint64(x uint64) []byte {
	var l uint8
	for l = 0; l < 8; l++ {
		if x < (1 << (7 * (l + 1))) {
			break
		}
	}
	bytes := make([]byte, 0, l+1)
	if l < 8 {
		prefix := uint8((256 - (1 << (8 - l))) + (x>>(8*l))&math.MaxUint8)
		bytes = append(bytes, prefix)
	} else {
		bytes = append(bytes, math.MaxUint8)
	}
	for i := 0; i < int(l); i++ {
		bytes = append(bytes, uint8((x>>(8*i))&math.MaxUint8))
	}
	return bytes
}

// deserializeUint64WithLength reverses serializeUint64 given the number of
// trailing bytes l taken from the prefix.
func deserializeUint64WithLength(serialized []byte, l uint8, u *uint64) error {
	*u = 0

	n := len(serialized)
	if n == 0 {
		return nil
	}

	if n > 8 {
		if serialized[0] != math.MaxUint8 {
			return errFirstByteNineByteSerialization
		}
		*u = binary.LittleEndian.Uint64(serialized[1:9])
		return nil
	}

	for i := uint8(0); i < l; i++ {
		*u |= uint64(serialized[i+1]) << (8 * i)
	}
	*u |= uint64(serialized[0]&(math.MaxUint8>>l)) << (8 * l)

	return nil
}

// serializeTrivialNatural writes the low l bytes of x in little-endian order.
func serializeTrivialNatural(x uint64, l uint) []byte {
	bytes := make([]byte, l)
	for i := uint(0); i < l; i++ {
		bytes[i] = byte(x >> (8 * i))
	}
	return bytes
}

func deserializeTrivialNatural(serialized []byte) uint64 {
	var u uint64
	for i := 0; i < len(serialized); i++ {
		u |= uint64(serialized[i]) << (8 * i)
	}
	return u
}

func intLength(in any) (uint, error) {
	switch in.(type) {
	case uint8:
		return 1, nil
	case uint16:
		return 2, nil
	case uint32:
		return 4, nil
	case uint64:
		return 8, nil
	default:
		return 0, fmt.Errorf(ErrUnsupportedType, in)
	}
}

func parseTag(tag string) map[string]string {
	result := make(map[string]string)
	for _, pair := range strings.Split(tag, ",") {
		kv := strings.Split(pair, "=")
		if len(kv) == 2 {
			result[kv[0]] = kv[1]
		}
	}
	return result
}
