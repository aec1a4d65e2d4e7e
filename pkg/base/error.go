// Copyright 2021, Chef.  All rights reserved.
// https://github.com/q191201771/lalrelay
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base

import (
	"errors"
	"fmt"
)

// ----- 通用的 ---------------------------------------------------------------------------------------------------------

var (
	ErrShortBuffer       = errors.New("lal: buffer too short")
	ErrSessionNotStarted = errors.New("lal: session has not been started yet")
	ErrDisposed          = errors.New("lal: session disposed")
)

func NewErrShortBuffer(need, actual int) error {
	return fmt.Errorf("%w. need=%d, actual=%d", ErrShortBuffer, need, actual)
}

// ----- pkg/aac -------------------------------------------------------------------------------------------------------

var ErrSamplingFrequencyIndex = errors.New("lal.aac: invalid sampling frequency index")

func NewErrSamplingFrequencyIndex(index uint8) error {
	return fmt.Errorf("%w. index=%d", ErrSamplingFrequencyIndex, index)
}

// ----- pkg/avc -------------------------------------------------------------------------------------------------------

var ErrAvc = errors.New("lal.avc: fxxk")

// ----- pkg/hevc ------------------------------------------------------------------------------------------------------

var ErrHevc = errors.New("lal.hevc: fxxk")

// ----- pkg/av1 -------------------------------------------------------------------------------------------------------

var ErrAv1 = errors.New("lal.av1: fxxk")

// ----- pkg/rtmp ------------------------------------------------------------------------------------------------------

var (
	ErrAmfInvalidType = errors.New("lal.rtmp: invalid amf0 type")
	ErrAmfTooShort    = errors.New("lal.rtmp: too short to unmarshal amf0 data")
	ErrAmfNotExist    = errors.New("lal.rtmp: not exist")
	ErrAmfTooDeep     = errors.New("lal.rtmp: amf0 nesting too deep")

	ErrRtmpShortBuffer      = errors.New("lal.rtmp: buffer too short")
	ErrRtmpUnexpectedMsg    = errors.New("lal.rtmp: unexpected msg")
	ErrRtmpHandshakeVersion = errors.New("lal.rtmp: unsupported handshake version")
	ErrRtmpMsgTypeId        = errors.New("lal.rtmp: invalid message type id")
	ErrRtmpChunkSize        = errors.New("lal.rtmp: invalid chunk size")
	ErrRtmpRejected         = errors.New("lal.rtmp: session rejected")
)

func NewErrAmfInvalidType(b byte) error {
	return fmt.Errorf("%w. b=%d", ErrAmfInvalidType, b)
}

func NewErrRtmpShortBuffer(need, actual int, msg string) error {
	return fmt.Errorf("%w. need=%d, actual=%d, msg=%s", ErrRtmpShortBuffer, need, actual, msg)
}

func NewErrRtmpRejected(code string, reason error) error {
	return fmt.Errorf("%w. code=%s, reason=%v", ErrRtmpRejected, code, reason)
}

func NewErrRtmpMsgTypeId(typeId uint8) error {
	return fmt.Errorf("%w. type id=%d", ErrRtmpMsgTypeId, typeId)
}

// ----- pkg/rtmp stream store -----------------------------------------------------------------------------------------

var (
	ErrStreamNotFound     = errors.New("lal.store: stream not found")
	ErrStreamExist        = errors.New("lal.store: stream already exist")
	ErrStreamUnauthorized = errors.New("lal.store: token mismatch")
	ErrStreamName         = errors.New("lal.store: invalid stream name")
)

// ----- pkg/logic -----------------------------------------------------------------------------------------------------

var (
	ErrConfigFormat            = errors.New("lal.logic: unsupported config file format")
	ErrSimpleAuthParamNotFound = errors.New("lal.logic: simple auth failed since url param token not found")
)
