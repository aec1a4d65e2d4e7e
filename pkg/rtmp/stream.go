// Copyright 2019, Chef.  All rights reserved.
// https://github.com/q191201771/lalrelay
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package rtmp

import (
	"encoding/hex"
	"fmt"

	"github.com/q191201771/lalrelay/pkg/base"
	"github.com/q191201771/naza/pkg/nazabytes"
)

const initMsgLen = 4096

// StreamMsg 可复用的message内存块
//
// 容量按需成倍增长，增长后保持，不随message结束释放
type StreamMsg struct {
	buf []byte
	n   uint32 // 已写入的字节数
}

// Grow 保证容量不小于`size`。注意，只在message第一个chunk到来时调用，此时没有需要保留的数据
func (m *StreamMsg) Grow(size uint32) {
	if uint32(cap(m.buf)) >= size {
		m.buf = m.buf[:cap(m.buf)]
		return
	}
	newCap := uint32(cap(m.buf)) * 2
	if newCap < initMsgLen {
		newCap = initMsgLen
	}
	for newCap < size {
		newCap *= 2
	}
	m.buf = make([]byte, newCap)
}

func (m *StreamMsg) Cap() int {
	return cap(m.buf)
}

func (m *StreamMsg) Len() uint32 {
	return m.n
}

func (m *StreamMsg) Bytes() []byte {
	return m.buf[:m.n]
}

func (m *StreamMsg) write(b []byte) {
	copy(m.buf[m.n:], b)
	m.n += uint32(len(b))
}

func (m *StreamMsg) Reset() {
	m.n = 0
}

// Stream 一个csid上正在接收的message
type Stream struct {
	header base.RtmpHeader
	msg    StreamMsg

	// 注意，是rtmp chunk协议header中的时间戳字段，可能是绝对的，也可能是相对的，等于0xFFFFFF时表示有扩展时间戳
	// 上层不应该使用这个字段，而应该使用clock
	timestamp uint32

	// 累加后的绝对时间戳，超过32位时message被丢弃
	clock int64
}

func NewStream() *Stream {
	return &Stream{}
}

// 序列化成可读字符串，一般用于发生错误时打印日志
func (stream *Stream) toDebugString() string {
	return fmt.Sprintf("header=%+v, clock=%d, len=%d, hex=%s",
		stream.header, stream.clock, stream.msg.Len(), hex.Dump(nazabytes.Prefix(stream.msg.Bytes(), 32)))
}

// toRtmpMsg
//
// 注意，Payload引用的是Stream内部的内存块，会被复用
func (stream *Stream) toRtmpMsg() base.RtmpMsg {
	h := stream.header
	h.TimestampAbs = uint32(stream.clock)
	return base.RtmpMsg{
		Header:  h,
		Payload: stream.msg.Bytes(),
	}
}
