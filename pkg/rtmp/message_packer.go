// Copyright 2019, Chef.  All rights reserved.
// https://github.com/q191201771/lalrelay
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package rtmp

// message_packer.go
// @pure
// 打包并发送 rtmp 信令

import (
	"bytes"
	"io"

	"github.com/q191201771/lalrelay/pkg/base"
	"github.com/q191201771/naza/pkg/bele"
)

// MessagePacker
//
// 注意，非协程安全
type MessagePacker struct {
	// 1. 增加一层缓冲，payload先写入b，再切分成chunk
	// 2. 因为 bytes.Buffer.Write 返回的 error 永远为 nil，所以本文件中所有对 b 的写操作都不判断返回值
	b         *bytes.Buffer
	chunkSize int
}

func NewMessagePacker() *MessagePacker {
	return &MessagePacker{
		b:         &bytes.Buffer{},
		chunkSize: defaultChunkSize,
	}
}

// SetChunkSize 设置发送时切分chunk的大小，注意，需要在发送SetChunkSize信令后调用
func (packer *MessagePacker) SetChunkSize(chunkSize int) {
	packer.chunkSize = chunkSize
}

func (packer *MessagePacker) ChunkSize() int {
	return packer.chunkSize
}

func (packer *MessagePacker) WriteChunkSize(writer io.Writer, val int) error {
	return packer.writeProtocolControlMessage(writer, base.RtmpTypeIdSetChunkSize, val)
}

func (packer *MessagePacker) WriteWinAckSize(writer io.Writer, val int) error {
	return packer.writeProtocolControlMessage(writer, base.RtmpTypeIdWinAckSize, val)
}

func (packer *MessagePacker) WriteAcknowledgement(writer io.Writer, val int) error {
	return packer.writeProtocolControlMessage(writer, base.RtmpTypeIdAck, val)
}

func (packer *MessagePacker) WritePeerBandwidth(writer io.Writer, val int, limitType uint8) error {
	packer.b.Reset()
	_ = bele.WriteBe(packer.b, uint32(val))
	_ = packer.b.WriteByte(limitType)
	return packer.flush(writer, csidProtocolControl, base.RtmpTypeIdBandwidth, 0, 0)
}

func (packer *MessagePacker) WriteStreamBegin(writer io.Writer, streamId int) error {
	return packer.writeUserControlMessage(writer, base.RtmpUserControlStreamBegin, uint32(streamId))
}

func (packer *MessagePacker) WriteStreamEof(writer io.Writer, streamId int) error {
	return packer.writeUserControlMessage(writer, base.RtmpUserControlStreamEof, uint32(streamId))
}

// WritePingRequest
//
// @param timestamp: 单位毫秒，同时写入message header的时间戳和ping的payload中
func (packer *MessagePacker) WritePingRequest(writer io.Writer, timestamp uint32) error {
	packer.b.Reset()
	_ = bele.WriteBe(packer.b, uint16(base.RtmpUserControlPingRequest))
	_ = bele.WriteBe(packer.b, timestamp)
	return packer.flush(writer, csidProtocolControl, base.RtmpTypeIdUserControl, 0, timestamp)
}

func (packer *MessagePacker) WriteConnectResult(writer io.Writer, tid float64, objectEncoding float64) error {
	packer.b.Reset()
	_ = Amf0.WriteString(packer.b, "_result")
	_ = Amf0.WriteNumber(packer.b, tid)
	_ = Amf0.WriteObject(packer.b, ObjectPairArray{
		{Key: "fmsVer", Value: "FMS/3,0,1,123"},
		{Key: "capabilities", Value: 31},
	})
	_ = Amf0.WriteObject(packer.b, ObjectPairArray{
		{Key: "level", Value: StatusLevelStatus},
		{Key: "code", Value: NetConnectionConnectSuccess},
		{Key: "description", Value: "Connection succeeded."},
		{Key: "objectEncoding", Value: objectEncoding},
		{Key: "version", Value: base.LalRtmpConnectResultVersion},
	})
	return packer.flush(writer, csidOverConnection, base.RtmpTypeIdCommandMessageAmf0, 0, 0)
}

func (packer *MessagePacker) WriteCreateStreamResult(writer io.Writer, tid float64, streamId int) error {
	packer.b.Reset()
	_ = Amf0.WriteString(packer.b, "_result")
	_ = Amf0.WriteNumber(packer.b, tid)
	_ = Amf0.WriteNull(packer.b)
	_ = Amf0.WriteNumber(packer.b, float64(streamId))
	return packer.flush(writer, csidOverConnection, base.RtmpTypeIdCommandMessageAmf0, 0, 0)
}

// WriteOnStatus onStatus信令，transaction id固定为0，command object为null
func (packer *MessagePacker) WriteOnStatus(writer io.Writer, streamId int, level, code, description string) error {
	packer.b.Reset()
	_ = Amf0.WriteString(packer.b, "onStatus")
	_ = Amf0.WriteNumber(packer.b, 0)
	_ = Amf0.WriteNull(packer.b)
	_ = Amf0.WriteObject(packer.b, ObjectPairArray{
		{Key: "level", Value: level},
		{Key: "code", Value: code},
		{Key: "description", Value: description},
	})
	return packer.flush(writer, csidOverConnection, base.RtmpTypeIdCommandMessageAmf0, streamId, 0)
}

func (packer *MessagePacker) WriteSampleAccess(writer io.Writer, streamId int) error {
	packer.b.Reset()
	_ = Amf0.WriteString(packer.b, "|RtmpSampleAccess")
	_ = Amf0.WriteBoolean(packer.b, false)
	_ = Amf0.WriteBoolean(packer.b, false)
	return packer.flush(writer, csidData, base.RtmpTypeIdMetadata, streamId, 0)
}

// ---------------------------------------------------------------------------------------------------------------------

func (packer *MessagePacker) writeProtocolControlMessage(writer io.Writer, typeId uint8, val int) error {
	packer.b.Reset()
	_ = bele.WriteBe(packer.b, uint32(val))
	return packer.flush(writer, csidProtocolControl, typeId, 0, 0)
}

func (packer *MessagePacker) writeUserControlMessage(writer io.Writer, event uint8, val uint32) error {
	packer.b.Reset()
	_ = bele.WriteBe(packer.b, uint16(event))
	_ = bele.WriteBe(packer.b, val)
	return packer.flush(writer, csidProtocolControl, base.RtmpTypeIdUserControl, 0, 0)
}

func (packer *MessagePacker) flush(writer io.Writer, csid int, typeId uint8, streamId int, timestamp uint32) error {
	h := base.RtmpHeader{
		Csid:         csid,
		MsgLen:       uint32(packer.b.Len()),
		MsgTypeId:    typeId,
		MsgStreamId:  streamId,
		TimestampAbs: timestamp,
	}
	chunks := Message2Chunks(packer.b.Bytes(), &h, packer.chunkSize)
	packer.b.Reset()
	_, err := writer.Write(chunks)
	return err
}
