// Copyright 2019, Chef.  All rights reserved.
// https://github.com/q191201771/lalrelay
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package rtmp

// amf0.go
// @pure
// 提供amf0格式的编码与解码的操作

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/q191201771/lalrelay/pkg/base"
	"github.com/q191201771/naza/pkg/bele"
)

const (
	Amf0TypeMarkerNumber      = uint8(0x00)
	Amf0TypeMarkerBoolean     = uint8(0x01)
	Amf0TypeMarkerString      = uint8(0x02)
	Amf0TypeMarkerObject      = uint8(0x03)
	Amf0TypeMarkerNull        = uint8(0x05)
	Amf0TypeMarkerUndefined   = uint8(0x06)
	Amf0TypeMarkerEcmaArray   = uint8(0x08)
	Amf0TypeMarkerObjectEnd   = uint8(0x09)
	Amf0TypeMarkerStrictArray = uint8(0x0a)
	Amf0TypeMarkerDate        = uint8(0x0b)
	Amf0TypeMarkerLongString  = uint8(0x0c)

	// 不支持的类型
	Amf0TypeMarkerMovieclip   = uint8(0x04)
	Amf0TypeMarkerReference   = uint8(0x07)
	Amf0TypeMarkerUnsupported = uint8(0x0d)
	Amf0TypeMarkerRecordset   = uint8(0x0e)
	Amf0TypeMarkerXmlDocument = uint8(0x0f)
	Amf0TypeMarkerTypedObject = uint8(0x10)
)

var Amf0TypeMarkerObjectEndBytes = []byte{0, 0, Amf0TypeMarkerObjectEnd}

// amf0MaxDepth object，ecma array以及strict array最多嵌套的层数
const amf0MaxDepth = 64

// ---------------------------------------------------------------------------------------------------------------------

// ObjectPair amf0 object或ecma array中的一个kv对
//
// Value的类型可能是: float64, bool, string, LongString, nil, Undefined, Date, ObjectPairArray, EcmaArray, StrictArray
type ObjectPair struct {
	Key   string
	Value interface{}
}

// ObjectPairArray 有序的kv对，对应amf0 object，保证编解码后字节一致
type ObjectPairArray []ObjectPair

// EcmaArray 对应amf0 ecma array
type EcmaArray []ObjectPair

// StrictArray 对应amf0 strict array
type StrictArray []interface{}

// LongString 对应amf0 long string。长度不超过65535时也保持long string的类型标志，保证编解码后字节一致
type LongString string

// Undefined 对应amf0 undefined
type Undefined struct{}

// Date 对应amf0 date
type Date struct {
	Ms       float64
	TimeZone int16
}

func (o ObjectPairArray) Find(key string) interface{} {
	for _, op := range o {
		if op.Key == key {
			return op.Value
		}
	}
	return nil
}

func (o ObjectPairArray) FindString(key string) (string, error) {
	for _, op := range o {
		if op.Key == key {
			if s, ok := amf0StringValue(op.Value); ok {
				return s, nil
			}
			return "", fmt.Errorf("%w. key=%s, value=%v", base.ErrAmfInvalidType, key, op.Value)
		}
	}
	return "", fmt.Errorf("%w. key=%s", base.ErrAmfNotExist, key)
}

func (o ObjectPairArray) FindNumber(key string) (float64, error) {
	for _, op := range o {
		if op.Key == key {
			if n, ok := op.Value.(float64); ok {
				return n, nil
			}
			return 0, fmt.Errorf("%w. key=%s, value=%v", base.ErrAmfInvalidType, key, op.Value)
		}
	}
	return 0, fmt.Errorf("%w. key=%s", base.ErrAmfNotExist, key)
}

func (o ObjectPairArray) FindBool(key string) (bool, error) {
	for _, op := range o {
		if op.Key == key {
			if b, ok := op.Value.(bool); ok {
				return b, nil
			}
			return false, fmt.Errorf("%w. key=%s, value=%v", base.ErrAmfInvalidType, key, op.Value)
		}
	}
	return false, fmt.Errorf("%w. key=%s", base.ErrAmfNotExist, key)
}

func amf0StringValue(v interface{}) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case LongString:
		return string(s), true
	}
	return "", false
}

// ---------------------------------------------------------------------------------------------------------------------

// Amf0Error 解码失败时返回，Offset为出错位置相对于解码起始位置的偏移
type Amf0Error struct {
	Offset int
	Marker uint8
	Err    error
}

func (e *Amf0Error) Error() string {
	return fmt.Sprintf("%s. offset=%d, marker=0x%02x", e.Err.Error(), e.Offset, e.Marker)
}

func (e *Amf0Error) Unwrap() error {
	return e.Err
}

func newAmf0TooShortError(b []byte) error {
	var marker uint8
	if len(b) > 0 {
		marker = b[0]
	}
	return &Amf0Error{Marker: marker, Err: base.ErrAmfTooShort}
}

func newAmf0InvalidTypeError(marker uint8) error {
	return &Amf0Error{Marker: marker, Err: base.ErrAmfInvalidType}
}

func newAmf0TooDeepError(marker uint8) error {
	return &Amf0Error{Marker: marker, Err: base.ErrAmfTooDeep}
}

// shiftAmf0Error 嵌套解码时，将内层错误的偏移转换为外层的偏移
func shiftAmf0Error(err error, n int) error {
	var e *Amf0Error
	if errors.As(err, &e) {
		return &Amf0Error{Offset: e.Offset + n, Marker: e.Marker, Err: e.Err}
	}
	return err
}

// ---------------------------------------------------------------------------------------------------------------------

type amf0 struct{}

var Amf0 amf0

func (amf0) WriteNumber(writer io.Writer, val float64) error {
	var b [9]byte
	b[0] = Amf0TypeMarkerNumber
	bele.BePutUint64(b[1:], math.Float64bits(val))
	_, err := writer.Write(b[:])
	return err
}

func (amf0) WriteBoolean(writer io.Writer, b bool) error {
	buf := []byte{Amf0TypeMarkerBoolean, 0}
	if b {
		buf[1] = 1
	}
	_, err := writer.Write(buf)
	return err
}

func (amf0) WriteString(writer io.Writer, val string) error {
	var b []byte
	if len(val) < 65536 {
		b = make([]byte, 3+len(val))
		b[0] = Amf0TypeMarkerString
		bele.BePutUint16(b[1:], uint16(len(val)))
		copy(b[3:], val)
	} else {
		b = make([]byte, 5+len(val))
		b[0] = Amf0TypeMarkerLongString
		bele.BePutUint32(b[1:], uint32(len(val)))
		copy(b[5:], val)
	}
	_, err := writer.Write(b)
	return err
}

// WriteLongString 总是使用long string的类型标志
func (amf0) WriteLongString(writer io.Writer, val string) error {
	b := make([]byte, 5+len(val))
	b[0] = Amf0TypeMarkerLongString
	bele.BePutUint32(b[1:], uint32(len(val)))
	copy(b[5:], val)
	_, err := writer.Write(b)
	return err
}

func (amf0) WriteNull(writer io.Writer) error {
	_, err := writer.Write([]byte{Amf0TypeMarkerNull})
	return err
}

func (amf0) WriteUndefined(writer io.Writer) error {
	_, err := writer.Write([]byte{Amf0TypeMarkerUndefined})
	return err
}

func (amf0) WriteDate(writer io.Writer, d Date) error {
	var b [11]byte
	b[0] = Amf0TypeMarkerDate
	bele.BePutUint64(b[1:], math.Float64bits(d.Ms))
	bele.BePutUint16(b[9:], uint16(d.TimeZone))
	_, err := writer.Write(b[:])
	return err
}

func (amf0) WriteObject(writer io.Writer, opa ObjectPairArray) error {
	if _, err := writer.Write([]byte{Amf0TypeMarkerObject}); err != nil {
		return err
	}
	if err := Amf0.writeObjectPairs(writer, opa); err != nil {
		return err
	}
	_, err := writer.Write(Amf0TypeMarkerObjectEndBytes)
	return err
}

func (amf0) WriteEcmaArray(writer io.Writer, opa EcmaArray) error {
	var b [5]byte
	b[0] = Amf0TypeMarkerEcmaArray
	bele.BePutUint32(b[1:], uint32(len(opa)))
	if _, err := writer.Write(b[:]); err != nil {
		return err
	}
	if err := Amf0.writeObjectPairs(writer, ObjectPairArray(opa)); err != nil {
		return err
	}
	_, err := writer.Write(Amf0TypeMarkerObjectEndBytes)
	return err
}

func (amf0) WriteStrictArray(writer io.Writer, arr StrictArray) error {
	var b [5]byte
	b[0] = Amf0TypeMarkerStrictArray
	bele.BePutUint32(b[1:], uint32(len(arr)))
	if _, err := writer.Write(b[:]); err != nil {
		return err
	}
	for _, v := range arr {
		if err := Amf0.WriteAny(writer, v); err != nil {
			return err
		}
	}
	return nil
}

// WriteAny 根据`val`的类型选择对应的amf0类型
func (amf0) WriteAny(writer io.Writer, val interface{}) error {
	switch v := val.(type) {
	case nil:
		return Amf0.WriteNull(writer)
	case float64:
		return Amf0.WriteNumber(writer, v)
	case int:
		return Amf0.WriteNumber(writer, float64(v))
	case uint32:
		return Amf0.WriteNumber(writer, float64(v))
	case int64:
		return Amf0.WriteNumber(writer, float64(v))
	case bool:
		return Amf0.WriteBoolean(writer, v)
	case string:
		return Amf0.WriteString(writer, v)
	case LongString:
		return Amf0.WriteLongString(writer, string(v))
	case ObjectPairArray:
		return Amf0.WriteObject(writer, v)
	case EcmaArray:
		return Amf0.WriteEcmaArray(writer, v)
	case StrictArray:
		return Amf0.WriteStrictArray(writer, v)
	case Undefined:
		return Amf0.WriteUndefined(writer)
	case Date:
		return Amf0.WriteDate(writer, v)
	}
	return fmt.Errorf("%w. value type=%T", base.ErrAmfInvalidType, val)
}

func (amf0) writeObjectPairs(writer io.Writer, opa ObjectPairArray) error {
	for i := 0; i < len(opa); i++ {
		var b [2]byte
		bele.BePutUint16(b[:], uint16(len(opa[i].Key)))
		if _, err := writer.Write(b[:]); err != nil {
			return err
		}
		if _, err := writer.Write([]byte(opa[i].Key)); err != nil {
			return err
		}
		if err := Amf0.WriteAny(writer, opa[i].Value); err != nil {
			return err
		}
	}
	return nil
}

// ---------------------------------------------------------------------------------------------------------------------

// read类型的方法集合
//
// 从输入参数<b>切片中读取函数名所指定的amf类型数据
// 注意，方法内部不会修改输入参数<b>切片的内容
//
// 返回值如无特殊说明，则
// 第1个参数为读取出的所指定类型的数据
// 第2个参数为读取时从<b>消耗的字节大小
// 第3个参数error，如果不等于nil，表示读取失败，类型为*Amf0Error

func (amf0) ReadStringWithoutType(b []byte) (string, int, error) {
	if len(b) < 2 {
		return "", 0, newAmf0TooShortError(nil)
	}
	l := int(bele.BeUint16(b))
	if l > len(b)-2 {
		return "", 0, newAmf0TooShortError(nil)
	}
	return string(b[2 : 2+l]), 2 + l, nil
}

func (amf0) ReadLongStringWithoutType(b []byte) (string, int, error) {
	if len(b) < 4 {
		return "", 0, newAmf0TooShortError(nil)
	}
	l := int(bele.BeUint32(b))
	if l > len(b)-4 {
		return "", 0, newAmf0TooShortError(nil)
	}
	return string(b[4 : 4+l]), 4 + l, nil
}

func (amf0) ReadString(b []byte) (val string, l int, err error) {
	if len(b) < 1 {
		return "", 0, newAmf0TooShortError(b)
	}
	switch b[0] {
	case Amf0TypeMarkerString:
		val, l, err = Amf0.ReadStringWithoutType(b[1:])
	case Amf0TypeMarkerLongString:
		val, l, err = Amf0.ReadLongStringWithoutType(b[1:])
	default:
		return "", 0, newAmf0InvalidTypeError(b[0])
	}
	if err != nil {
		return "", 0, &Amf0Error{Marker: b[0], Err: base.ErrAmfTooShort}
	}
	return val, l + 1, nil
}

func (amf0) ReadNumber(b []byte) (float64, int, error) {
	if len(b) < 1 {
		return 0, 0, newAmf0TooShortError(b)
	}
	if b[0] != Amf0TypeMarkerNumber {
		return 0, 0, newAmf0InvalidTypeError(b[0])
	}
	if len(b) < 9 {
		return 0, 0, newAmf0TooShortError(b)
	}
	return bele.BeFloat64(b[1:]), 9, nil
}

func (amf0) ReadBoolean(b []byte) (bool, int, error) {
	if len(b) < 1 {
		return false, 0, newAmf0TooShortError(b)
	}
	if b[0] != Amf0TypeMarkerBoolean {
		return false, 0, newAmf0InvalidTypeError(b[0])
	}
	if len(b) < 2 {
		return false, 0, newAmf0TooShortError(b)
	}
	return b[1] != 0x0, 2, nil
}

func (amf0) ReadNull(b []byte) (int, error) {
	if len(b) < 1 {
		return 0, newAmf0TooShortError(b)
	}
	if b[0] != Amf0TypeMarkerNull {
		return 0, newAmf0InvalidTypeError(b[0])
	}
	return 1, nil
}

func (amf0) ReadDate(b []byte) (Date, int, error) {
	if len(b) < 1 {
		return Date{}, 0, newAmf0TooShortError(b)
	}
	if b[0] != Amf0TypeMarkerDate {
		return Date{}, 0, newAmf0InvalidTypeError(b[0])
	}
	if len(b) < 11 {
		return Date{}, 0, newAmf0TooShortError(b)
	}
	return Date{Ms: bele.BeFloat64(b[1:]), TimeZone: int16(bele.BeUint16(b[9:]))}, 11, nil
}

func (amf0) ReadObject(b []byte) (ObjectPairArray, int, error) {
	return Amf0.readObject(b, 0)
}

// ReadEcmaArray 注意，不依赖头部的元素个数字段，以object end标志为准
func (amf0) ReadEcmaArray(b []byte) (EcmaArray, int, error) {
	return Amf0.readEcmaArray(b, 0)
}

func (amf0) ReadStrictArray(b []byte) (StrictArray, int, error) {
	return Amf0.readStrictArray(b, 0)
}

// ReadObjectOrArray 读取object或ecma array，统一返回ObjectPairArray，一般用于metadata
func (amf0) ReadObjectOrArray(b []byte) (ObjectPairArray, int, error) {
	if len(b) < 1 {
		return nil, 0, newAmf0TooShortError(b)
	}
	switch b[0] {
	case Amf0TypeMarkerObject:
		return Amf0.ReadObject(b)
	case Amf0TypeMarkerEcmaArray:
		arr, l, err := Amf0.ReadEcmaArray(b)
		return ObjectPairArray(arr), l, err
	}
	return nil, 0, newAmf0InvalidTypeError(b[0])
}

// ReadAny 根据类型标志读取任意支持的类型
//
// 返回值类型见 ObjectPair.Value 的说明。不支持的类型返回错误，不会跳过
func (amf0) ReadAny(b []byte) (interface{}, int, error) {
	return Amf0.readAny(b, 0)
}

// ----- 嵌套读取，depth为外层容器的层数 ----------------------------------------------------------------------------------------

func (amf0) readAny(b []byte, depth int) (interface{}, int, error) {
	if len(b) < 1 {
		return nil, 0, newAmf0TooShortError(b)
	}
	switch b[0] {
	case Amf0TypeMarkerNumber:
		return Amf0.ReadNumber(b)
	case Amf0TypeMarkerBoolean:
		return Amf0.ReadBoolean(b)
	case Amf0TypeMarkerString:
		return Amf0.ReadString(b)
	case Amf0TypeMarkerLongString:
		v, l, err := Amf0.ReadString(b)
		return LongString(v), l, err
	case Amf0TypeMarkerObject:
		return Amf0.readObject(b, depth)
	case Amf0TypeMarkerNull:
		l, err := Amf0.ReadNull(b)
		return nil, l, err
	case Amf0TypeMarkerUndefined:
		return Undefined{}, 1, nil
	case Amf0TypeMarkerEcmaArray:
		return Amf0.readEcmaArray(b, depth)
	case Amf0TypeMarkerStrictArray:
		return Amf0.readStrictArray(b, depth)
	case Amf0TypeMarkerDate:
		return Amf0.ReadDate(b)
	}
	return nil, 0, newAmf0InvalidTypeError(b[0])
}

func (amf0) readObject(b []byte, depth int) (ObjectPairArray, int, error) {
	if len(b) < 1 {
		return nil, 0, newAmf0TooShortError(b)
	}
	if b[0] != Amf0TypeMarkerObject {
		return nil, 0, newAmf0InvalidTypeError(b[0])
	}
	if depth >= amf0MaxDepth {
		return nil, 0, newAmf0TooDeepError(b[0])
	}
	opa, l, err := Amf0.readObjectPairs(b[1:], depth+1)
	if err != nil {
		return nil, 0, shiftAmf0Error(err, 1)
	}
	return opa, 1 + l, nil
}

func (amf0) readEcmaArray(b []byte, depth int) (EcmaArray, int, error) {
	if len(b) < 1 {
		return nil, 0, newAmf0TooShortError(b)
	}
	if b[0] != Amf0TypeMarkerEcmaArray {
		return nil, 0, newAmf0InvalidTypeError(b[0])
	}
	if len(b) < 5 {
		return nil, 0, newAmf0TooShortError(b)
	}
	if depth >= amf0MaxDepth {
		return nil, 0, newAmf0TooDeepError(b[0])
	}
	opa, l, err := Amf0.readObjectPairs(b[5:], depth+1)
	if err != nil {
		return nil, 0, shiftAmf0Error(err, 5)
	}
	return EcmaArray(opa), 5 + l, nil
}

func (amf0) readStrictArray(b []byte, depth int) (StrictArray, int, error) {
	if len(b) < 1 {
		return nil, 0, newAmf0TooShortError(b)
	}
	if b[0] != Amf0TypeMarkerStrictArray {
		return nil, 0, newAmf0InvalidTypeError(b[0])
	}
	if len(b) < 5 {
		return nil, 0, newAmf0TooShortError(b)
	}
	if depth >= amf0MaxDepth {
		return nil, 0, newAmf0TooDeepError(b[0])
	}
	count := int(bele.BeUint32(b[1:]))
	index := 5
	arr := make(StrictArray, 0)
	for i := 0; i < count; i++ {
		v, l, err := Amf0.readAny(b[index:], depth+1)
		if err != nil {
			return nil, 0, shiftAmf0Error(err, index)
		}
		arr = append(arr, v)
		index += l
	}
	return arr, index, nil
}

// readObjectPairs 读取kv对直到object end标志
func (amf0) readObjectPairs(b []byte, depth int) (ObjectPairArray, int, error) {
	index := 0
	opa := make(ObjectPairArray, 0)
	for {
		if len(b)-index >= 3 && bytes.Equal(b[index:index+3], Amf0TypeMarkerObjectEndBytes) {
			return opa, index + 3, nil
		}

		k, l, err := Amf0.ReadStringWithoutType(b[index:])
		if err != nil {
			return nil, 0, shiftAmf0Error(err, index)
		}
		index += l
		v, l, err := Amf0.readAny(b[index:], depth)
		if err != nil {
			return nil, 0, shiftAmf0Error(err, index)
		}
		opa = append(opa, ObjectPair{Key: k, Value: v})
		index += l
	}
}
