// Copyright 2020, Chef.  All rights reserved.
// https://github.com/q191201771/lalrelay
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package rtmp

import (
	"bytes"
	"fmt"
	"io"

	"github.com/q191201771/lalrelay/pkg/base"
)

// Amf0Command rtmp command message(type id 20)的payload
//
// 格式为: name(string) | transaction id(number) | command object(any) | args(any)...
// command object为amf0 null时，CommandObject为nil
type Amf0Command struct {
	Name          string
	TransactionId float64
	CommandObject interface{}
	Args          []interface{}

	// NoCommandObject 为true并且没有Args时，只编码name和transaction id
	NoCommandObject bool

	longName bool // name使用的是long string类型标志
}

// DecodeAmf0Command 解码失败时返回的error类型为*Amf0Error
func DecodeAmf0Command(b []byte) (cmd Amf0Command, err error) {
	var l int
	index := 0
	if cmd.Name, l, err = Amf0.ReadString(b); err != nil {
		return cmd, err
	}
	cmd.longName = b[0] == Amf0TypeMarkerLongString
	index += l
	if cmd.TransactionId, l, err = Amf0.ReadNumber(b[index:]); err != nil {
		return cmd, shiftAmf0Error(err, index)
	}
	index += l
	if index == len(b) {
		cmd.NoCommandObject = true
		return cmd, nil
	}
	if cmd.CommandObject, l, err = Amf0.ReadAny(b[index:]); err != nil {
		return cmd, shiftAmf0Error(err, index)
	}
	index += l
	for index < len(b) {
		v, l, err := Amf0.ReadAny(b[index:])
		if err != nil {
			return cmd, shiftAmf0Error(err, index)
		}
		cmd.Args = append(cmd.Args, v)
		index += l
	}
	return cmd, nil
}

// Encode
//
// CommandObject为nil时写入amf0 null。NoCommandObject为true并且没有Args时，不写入command object
func (cmd *Amf0Command) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := writeAmf0Name(&buf, cmd.Name, cmd.longName); err != nil {
		return nil, err
	}
	if err := Amf0.WriteNumber(&buf, cmd.TransactionId); err != nil {
		return nil, err
	}
	if cmd.NoCommandObject && len(cmd.Args) == 0 {
		return buf.Bytes(), nil
	}
	if err := Amf0.WriteAny(&buf, cmd.CommandObject); err != nil {
		return nil, err
	}
	for _, arg := range cmd.Args {
		if err := Amf0.WriteAny(&buf, arg); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// ObjectPairs command object不是object类型时返回nil
func (cmd *Amf0Command) ObjectPairs() ObjectPairArray {
	switch v := cmd.CommandObject.(type) {
	case ObjectPairArray:
		return v
	case EcmaArray:
		return ObjectPairArray(v)
	}
	return nil
}

func (cmd *Amf0Command) ArgString(i int) (string, error) {
	if i >= len(cmd.Args) {
		return "", fmt.Errorf("%w. cmd=%s, index=%d", base.ErrAmfNotExist, cmd.Name, i)
	}
	s, ok := amf0StringValue(cmd.Args[i])
	if !ok {
		return "", fmt.Errorf("%w. cmd=%s, index=%d, arg=%v", base.ErrAmfInvalidType, cmd.Name, i, cmd.Args[i])
	}
	return s, nil
}

func (cmd *Amf0Command) ArgNumber(i int) (float64, error) {
	if i >= len(cmd.Args) {
		return 0, fmt.Errorf("%w. cmd=%s, index=%d", base.ErrAmfNotExist, cmd.Name, i)
	}
	n, ok := cmd.Args[i].(float64)
	if !ok {
		return 0, fmt.Errorf("%w. cmd=%s, index=%d, arg=%v", base.ErrAmfInvalidType, cmd.Name, i, cmd.Args[i])
	}
	return n, nil
}

func (cmd *Amf0Command) ArgBool(i int) (bool, error) {
	if i >= len(cmd.Args) {
		return false, fmt.Errorf("%w. cmd=%s, index=%d", base.ErrAmfNotExist, cmd.Name, i)
	}
	b, ok := cmd.Args[i].(bool)
	if !ok {
		return false, fmt.Errorf("%w. cmd=%s, index=%d, arg=%v", base.ErrAmfInvalidType, cmd.Name, i, cmd.Args[i])
	}
	return b, nil
}

// ---------------------------------------------------------------------------------------------------------------------

// Amf0Data rtmp data message(type id 18)的payload
//
// 格式为: name(string) | values(any)...
type Amf0Data struct {
	Name   string
	Values []interface{}

	longName bool
}

func DecodeAmf0Data(b []byte) (data Amf0Data, err error) {
	var l int
	if data.Name, l, err = Amf0.ReadString(b); err != nil {
		return data, err
	}
	data.longName = b[0] == Amf0TypeMarkerLongString
	index := l
	for index < len(b) {
		v, l, err := Amf0.ReadAny(b[index:])
		if err != nil {
			return data, shiftAmf0Error(err, index)
		}
		data.Values = append(data.Values, v)
		index += l
	}
	return data, nil
}

func (data *Amf0Data) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := writeAmf0Name(&buf, data.Name, data.longName); err != nil {
		return nil, err
	}
	for _, v := range data.Values {
		if err := Amf0.WriteAny(&buf, v); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func writeAmf0Name(writer io.Writer, name string, long bool) error {
	if long {
		return Amf0.WriteLongString(writer, name)
	}
	return Amf0.WriteString(writer, name)
}
