package jam

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"math/bits"
	"reflect"
)

// Unmarshaler is implemented by types that decode themselves.
type Unmarshaler interface {
	UnmarshalJAM(reader io.Reader) error
}

// Unmarshal decodes data into dst, which must be a non-nil pointer. The whole
// input must be consumed.
func Unmarshal(data []byte, dst interface{}) error {
	dstv := reflect.ValueOf(dst)
	if dstv.Kind() != reflect.Ptr || dstv.IsNil() {
		return fmt.Errorf(ErrUnsupportedType, dst)
	}

	buf := bytes.NewReader(data)
	ds := byteReader{Reader: buf}
	if err := ds.unmarshal(dstv.Elem()); err != nil {
		return err
	}
	if buf.Len() != 0 {
		return ErrTrailingBytes
	}
	return nil
}

func NewDecoder(reader io.Reader) *Decoder {
	return &Decoder{
		byteReader{reader},
	}
}

type Decoder struct {
	byteReader
}

func (d *Decoder) Decode(dst any) error {
	dstv := reflect.ValueOf(dst)
	if dstv.Kind() != reflect.Ptr || dstv.IsNil() {
		return fmt.Errorf(ErrUnsupportedType, dst)
	}

	return d.unmarshal(dstv.Elem())
}

type byteReader struct {
	io.Reader
}

func (br *byteReader) unmarshal(value reflect.Value) error {
	if value.CanAddr() {
		if u, ok := value.Addr().Interface().(Unmarshaler); ok {
			return u.UnmarshalJAM(br.Reader)
		}
	}

	switch value.Kind() {
	case reflect.Uint:
		return br.decodeUint(value)
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return br.decodeFixedWidth(value, uint(value.Type().Size()))
	case reflect.Bool:
		return br.decodeBool(value)
	case reflect.String:
		b, err := br.readBytes()
		if err != nil {
			return err
		}
		value.SetString(string(b))
		return nil
	case reflect.Ptr:
		return br.decodePointer(value)
	case reflect.Struct:
		return br.decodeStruct(value)
	case reflect.Array:
		return br.decodeArray(value)
	case reflect.Slice:
		if value.Type().Elem().Kind() == reflect.Uint8 {
			return br.decodeBytes(value)
		}
		return br.decodeSlice(value)
	case reflect.Map:
		return br.decodeMap(value)
	default:
		return fmt.Errorf(ErrUnsupportedType, value.Type())
	}
}

func (br *byteReader) ReadOctet() (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(br.Reader, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func (br *byteReader) decodePointer(value reflect.Value) error {
	isNil, err := br.readPointerMarker()
	if err != nil {
		return err
	}

	if isNil {
		if !value.IsNil() {
			value.Set(reflect.Zero(value.Type()))
		}
		return nil
	}

	if value.IsNil() {
		value.Set(reflect.New(value.Type().Elem()))
	}
	return br.unmarshal(value.Elem())
}

func (br *byteReader) decodeSlice(value reflect.Value) error {
	l, err := br.decodeLength()
	if err != nil {
		return err
	}
	out := reflect.MakeSlice(value.Type(), 0, 0)
	for i := uint(0); i < l; i++ {
		elem := reflect.New(value.Type().Elem()).Elem()
		if err := br.unmarshal(elem); err != nil {
			return err
		}
		out = reflect.Append(out, elem)
	}
	value.Set(out)
	return nil
}

func (br *byteReader) decodeArray(value reflect.Value) error {
	if value.Type().Elem().Kind() == reflect.Uint8 {
		b := make([]byte, value.Len())
		if _, err := io.ReadFull(br.Reader, b); err != nil {
			return fmt.Errorf(ErrReadingBytes, err)
		}
		reflect.Copy(value, reflect.ValueOf(b))
		return nil
	}
	for i := 0; i < value.Len(); i++ {
		if err := br.unmarshal(value.Index(i)); err != nil {
			return err
		}
	}
	return nil
}

func (br *byteReader) decodeMap(value reflect.Value) error {
	mapType := value.Type()

	length, err := br.decodeLength()
	if err != nil {
		return fmt.Errorf(ErrDecodingMapLength, err)
	}

	tempMap := reflect.MakeMapWithSize(mapType, int(length))
	for i := uint(0); i < length; i++ {
		key := reflect.New(mapType.Key()).Elem()
		if err := br.unmarshal(key); err != nil {
			return fmt.Errorf(ErrDecodingMapKey, err)
		}
		elem := reflect.New(mapType.Elem()).Elem()
		if err := br.unmarshal(elem); err != nil {
			return fmt.Errorf(ErrDecodingMapValue, err)
		}
		tempMap.SetMapIndex(key, elem)
	}
	value.Set(tempMap)

	return nil
}

func (br *byteReader) decodeStruct(value reflect.Value) error {
	t := value.Type()

	for i := 0; i < value.NumField(); i++ {
		field := value.Field(i)
		fieldType := t.Field(i)

		// Skip unexported fields
		if !field.CanSet() {
			continue
		}
		if tag, ok := fieldType.Tag.Lookup("jam"); ok {
			if tag == "-" {
				continue
			}
			if parseTag(tag)["encoding"] == "compact" {
				if err := br.decodeUint(field); err != nil {
					return fmt.Errorf(ErrDecodingStructField, fieldType.Name, err)
				}
				continue
			}
		}

		if err := br.unmarshal(field); err != nil {
			return fmt.Errorf(ErrDecodingStructField, fieldType.Name, err)
		}
	}

	return nil
}

func (br *byteReader) decodeBool(value reflect.Value) error {
	rb, err := br.ReadOctet()
	if err != nil {
		return err
	}

	switch rb {
	case 0x00:
		value.SetBool(false)
	case 0x01:
		value.SetBool(true)
	default:
		return ErrDecodingBool
	}

	return nil
}

// decodeUint reads a general natural into any unsigned integer value.
func (br *byteReader) decodeUint(value reflect.Value) error {
	prefix, err := br.ReadOctet()
	if err != nil {
		return fmt.Errorf(ErrReadingByte, err)
	}

	// Leading ones of the prefix give the number of trailing bytes.
	l := uint8(bits.LeadingZeros8(^prefix))

	serialized := make([]byte, int(l)+1)
	serialized[0] = prefix
	if _, err := io.ReadFull(br.Reader, serialized[1:]); err != nil {
		return fmt.Errorf(ErrReadingBytes, err)
	}

	var v uint64
	if err := deserializeUint64WithLength(serialized, l, &v); err != nil {
		return fmt.Errorf(ErrDecodingUint, err)
	}

	switch value.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if value.OverflowUint(v) {
			return fmt.Errorf(ErrDecodingUint, fmt.Errorf("value %d overflows %v", v, value.Type()))
		}
		value.SetUint(v)
		return nil
	default:
		return fmt.Errorf(ErrUnsupportedType, value.Type())
	}
}

func (br *byteReader) decodeLength() (uint, error) {
	var l uint
	if err := br.decodeUint(reflect.ValueOf(&l).Elem()); err != nil {
		return 0, err
	}
	return l, nil
}

func (br *byteReader) readBytes() ([]byte, error) {
	length, err := br.decodeLength()
	if err != nil {
		return nil, err
	}
	if length > math.MaxUint32 {
		return nil, ErrExceedingByteArrayLimit
	}
	b := make([]byte, length)
	if _, err := io.ReadFull(br.Reader, b); err != nil {
		return nil, fmt.Errorf(ErrReadingBytes, err)
	}
	return b, nil
}

func (br *byteReader) decodeBytes(dstv reflect.Value) error {
	b, err := br.readBytes()
	if err != nil {
		return err
	}
	dstv.Set(reflect.ValueOf(b).Convert(dstv.Type()))
	return nil
}

func (br *byteReader) decodeFixedWidth(dstv reflect.Value, length uint) error {
	buf := make([]byte, length)
	if _, err := io.ReadFull(br.Reader, buf); err != nil {
		return fmt.Errorf(ErrReadingByte, err)
	}
	dstv.SetUint(deserializeTrivialNatural(buf))
	return nil
}

func (br *byteReader) readPointerMarker() (bool, error) {
	marker, err := br.ReadOctet()
	if err != nil {
		return false, err
	}

	switch marker {
	case 0x00:
		return true, nil
	case 0x01:
		return false, nil
	default:
		return false, ErrInvalidPointer
	}
}
