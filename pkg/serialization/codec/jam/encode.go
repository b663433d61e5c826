package jam

import (
	"bytes"
	"fmt"
	"io"
	"reflect"
	"sort"
)

// Marshaler is the interface implemented by types that can marshal themselves
// into valid JAM encoded data.
type Marshaler interface {
	MarshalJAM() ([]byte, error)
}

func Marshal(v interface{}) ([]byte, error) {
	buffer := bytes.NewBuffer(nil)
	es := byteWriter{
		Writer: buffer,
	}
	if err := es.marshal(v); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

type byteWriter struct {
	io.Writer
}

func (bw *byteWriter) marshal(in interface{}) error {
	if marshaler, ok := in.(Marshaler); ok {
		b, err := marshaler.MarshalJAM()
		if err != nil {
			return err
		}
		_, err = bw.Write(b)
		return err
	}

	switch v := in.(type) {
	case int:
		if v < 0 {
			return fmt.Errorf(ErrUnsupportedType, in)
		}
		return bw.encodeCompact(uint64(v))
	case uint:
		return bw.encodeCompact(uint64(v))
	case uint8, uint16, uint32, uint64:
		l, err := intLength(v)
		if err != nil {
			return err
		}
		return bw.encodeFixedWidth(v, l)
	case []byte:
		return bw.encodeBytes(v)
	case string:
		return bw.encodeBytes([]byte(v))
	case bool:
		return bw.encodeBool(v)
	default:
		return bw.handleReflectTypes(v)
	}
}

func (bw *byteWriter) handleReflectTypes(in interface{}) error {
	val := reflect.ValueOf(in)
	switch val.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return bw.encodeCustomPrimitive(val)
	case reflect.Ptr:
		if err := bw.writePointerMarker(val.IsNil()); err != nil {
			return err
		}
		if val.IsNil() {
			return nil
		}
		return bw.marshal(val.Elem().Interface())
	case reflect.Struct:
		return bw.encodeStruct(val)
	case reflect.Array:
		return bw.encodeArray(val)
	case reflect.Slice:
		if val.Type().Elem().Kind() == reflect.Uint8 {
			return bw.encodeBytes(val.Bytes())
		}
		return bw.encodeSlice(val)
	case reflect.Map:
		return bw.encodeMap(val)
	default:
		return fmt.Errorf(ErrUnsupportedType, in)
	}
}

// encodeCustomPrimitive handles named types such as `type Status uint8`.
func (bw *byteWriter) encodeCustomPrimitive(val reflect.Value) error {
	switch val.Kind() {
	case reflect.Bool:
		return bw.marshal(val.Bool())
	case reflect.String:
		return bw.marshal(val.String())
	case reflect.Uint:
		return bw.marshal(uint(val.Uint()))
	case reflect.Uint8:
		return bw.marshal(uint8(val.Uint()))
	case reflect.Uint16:
		return bw.marshal(uint16(val.Uint()))
	case reflect.Uint32:
		return bw.marshal(uint32(val.Uint()))
	case reflect.Uint64:
		return bw.marshal(val.Uint())
	default:
		return fmt.Errorf(ErrUnsupportedType, val.Interface())
	}
}

func (bw *byteWriter) encodeSlice(v reflect.Value) error {
	if err := bw.encodeLength(v.Len()); err != nil {
		return err
	}
	for i := 0; i < v.Len(); i++ {
		if err := bw.marshal(v.Index(i).Interface()); err != nil {
			return err
		}
	}
	return nil
}

func (bw *byteWriter) encodeArray(v reflect.Value) error {
	if v.Type().Elem().Kind() == reflect.Uint8 {
		b := make([]byte, v.Len())
		reflect.Copy(reflect.ValueOf(b), v)
		_, err := bw.Write(b)
		return err
	}
	for i := 0; i < v.Len(); i++ {
		if err := bw.marshal(v.Index(i).Interface()); err != nil {
			return err
		}
	}
	return nil
}

// encodeMap writes the entry count followed by entries in ascending key order.
func (bw *byteWriter) encodeMap(v reflect.Value) error {
	keys := v.MapKeys()
	if err := sortMapKeys(keys); err != nil {
		return err
	}
	if err := bw.encodeLength(len(keys)); err != nil {
		return err
	}
	for _, key := range keys {
		if err := bw.marshal(key.Interface()); err != nil {
			return err
		}
		if err := bw.marshal(v.MapIndex(key).Interface()); err != nil {
			return err
		}
	}
	return nil
}

func sortMapKeys(keys []reflect.Value) error {
	if len(keys) == 0 {
		return nil
	}
	switch keys[0].Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		sort.Slice(keys, func(i, j int) bool {
			return keys[i].Uint() < keys[j].Uint()
		})
	case reflect.String:
		sort.Slice(keys, func(i, j int) bool {
			return keys[i].String() < keys[j].String()
		})
	default:
		return fmt.Errorf(ErrEncodingMapFieldKeyType, keys[0].Kind())
	}
	return nil
}

func (bw *byteWriter) encodeBool(b bool) error {
	var err error
	if b {
		_, err = bw.Write([]byte{0x01})
	} else {
		_, err = bw.Write([]byte{0x00})
	}
	return err
}

func (bw *byteWriter) encodeBytes(b []byte) error {
	if err := bw.encodeLength(len(b)); err != nil {
		return err
	}
	_, err := bw.Write(b)
	return err
}

func (bw *byteWriter) encodeFixedWidth(i interface{}, l uint) error {
	val := reflect.ValueOf(i)
	switch val.Kind() {
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uint:
		_, err := bw.Write(serializeTrivialNatural(val.Uint(), l))
		return err
	default:
		return fmt.Errorf(ErrUnsupportedType, i)
	}
}

func (bw *byteWriter) writePointerMarker(isNil bool) error {
	marker := byte(0x00)
	if !isNil {
		marker = byte(0x01)
	}
	_, err := bw.Write([]byte{marker})
	return err
}

func (bw *byteWriter) encodeStruct(v reflect.Value) error {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		// Skip unexported fields
		if !field.CanInterface() {
			continue
		}
		if tag, ok := fieldType.Tag.Lookup("jam"); ok {
			if tag == "-" {
				continue
			}
			if parseTag(tag)["encoding"] == "compact" {
				switch field.Kind() {
				case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
					if err := bw.encodeCompact(field.Uint()); err != nil {
						return fmt.Errorf(ErrEncodingStructField, fieldType.Name, err)
					}
					continue
				default:
					return fmt.Errorf(ErrUnSuportedFieldForCompactEncoding, field.Kind())
				}
			}
		}

		if err := bw.marshal(field.Interface()); err != nil {
			return fmt.Errorf(ErrEncodingStructField, fieldType.Name, err)
		}
	}
	return nil
}

func (bw *byteWriter) encodeLength(l int) error {
	return bw.encodeCompact(uint64(l))
}

// encodeCompact writes i as a general natural: 1 to 9 bytes depending on
// magnitude.
func (bw *byteWriter) encodeCompact(i uint64) error {
	_, err := bw.Write(serializeUint64(i))
	return err
}
