// Copyright 2019, Chef.  All rights reserved.
// https://github.com/q191201771/lalrelay
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package rtmp

import (
	"fmt"

	"github.com/q191201771/lalrelay/pkg/base"
	"github.com/q191201771/naza/pkg/bele"
	"github.com/q191201771/naza/pkg/nazalog"
)

type composerState uint8

const (
	composerStateInit composerState = iota
	composerStateBasicHeader
	composerStateMessageHeader
	composerStateExtendedTimestamp
	composerStatePayload
)

// ChunkComposer
//
// 读取chunk，并合并chunk，生成message返回给上层
//
// 以推的方式驱动：调用方每次读到数据后调用 Feed，数据可以在任意字节处被切分
type ChunkComposer struct {
	peerChunkSize uint32

	state     composerState
	header    [maxHeaderSize]byte
	headerLen int // header中已收集的字节数
	basicLen  int
	fmt       uint8
	csid      int
	stream    *Stream

	csid2stream map[int]*Stream
}

type OnCompleteMessage func(msg base.RtmpMsg) error

func NewChunkComposer() *ChunkComposer {
	return &ChunkComposer{
		peerChunkSize: defaultChunkSize,
		csid2stream:   make(map[int]*Stream),
	}
}

func (c *ChunkComposer) SetPeerChunkSize(val uint32) {
	c.peerChunkSize = val
}

func (c *ChunkComposer) PeerChunkSize() uint32 {
	return c.peerChunkSize
}

// Feed
//
// @param cb:
//
//	注意，回调结束后，`msg.Payload`的内存块会被`ChunkComposer`重复使用。
//	如果业务方需要在回调结束后，依然持有`msg`，那么需要对`msg`进行拷贝。
//	只在回调中使用`msg`，则不需要拷贝。
//	如果cb返回的error不为nil，则`Feed`立即返回这个错误，剩余的数据不再处理。
//
// @return 协议错误，比如message type id非法。返回错误后不应该再调用Feed
func (c *ChunkComposer) Feed(b []byte, cb OnCompleteMessage) error {
	for {
		switch c.state {
		case composerStateInit:
			if len(b) == 0 {
				return nil
			}
			// 5.3.1.1. Chunk Basic Header
			c.header[0] = b[0]
			b = b[1:]
			c.headerLen = 1
			c.fmt = (c.header[0] >> 6) & 0x03
			switch c.header[0] & 0x3F {
			case 0:
				c.basicLen = 2
			case 1:
				c.basicLen = 3
			default:
				c.basicLen = 1
			}
			c.state = composerStateBasicHeader
		case composerStateBasicHeader:
			b = c.collect(b, c.basicLen)
			if c.headerLen < c.basicLen {
				return nil
			}
			// csid可能是变长的
			switch c.basicLen {
			case 2:
				c.csid = 64 + int(c.header[1])
			case 3:
				c.csid = 64 + int(c.header[1]) + int(c.header[2])*256
			default:
				c.csid = int(c.header[0] & 0x3F)
			}
			c.state = composerStateMessageHeader
		case composerStateMessageHeader:
			// 5.3.1.2. Chunk Message Header
			need := c.basicLen + messageHeaderSize[c.fmt]
			b = c.collect(b, need)
			if c.headerLen < need {
				return nil
			}
			if err := c.parseMessageHeader(); err != nil {
				return err
			}
			c.state = composerStateExtendedTimestamp
		case composerStateExtendedTimestamp:
			// 5.3.1.3 Extended Timestamp
			// 注意，header中的时间戳为0xFFFFFF时，fmt3的chunk中也存在ext ts字段
			need := c.basicLen + messageHeaderSize[c.fmt]
			hasExt := c.stream.timestamp == maxTimestampInMessageHeader
			if hasExt {
				need += 4
			}
			b = c.collect(b, need)
			if c.headerLen < need {
				return nil
			}
			delta := c.stream.timestamp
			if hasExt {
				delta = bele.BeUint32(c.header[need-4:])
			}
			// message的第一个chunk，计算时间戳，准备内存
			if c.stream.msg.Len() == 0 {
				if c.fmt == 0 {
					c.stream.clock = int64(delta)
				} else {
					c.stream.clock += int64(delta)
				}
				c.stream.msg.Grow(c.stream.header.MsgLen)
			}
			if Log.GetOption().Level == nazalog.LevelTrace {
				Log.Tracef("[%p] RTMP_READ chunk. fmt=%d, csid=%d, header=%+v, timestamp=%d, clock=%d",
					c, c.fmt, c.csid, c.stream.header, c.stream.timestamp, c.stream.clock)
			}
			c.state = composerStatePayload
		case composerStatePayload:
			stream := c.stream
			remain := stream.header.MsgLen - stream.msg.Len()
			if inChunk := c.peerChunkSize - stream.msg.Len()%c.peerChunkSize; inChunk < remain {
				remain = inChunk
			}
			if remain > 0 {
				if len(b) == 0 {
					return nil
				}
				size := remain
				if uint32(len(b)) < size {
					size = uint32(len(b))
				}
				stream.msg.write(b[:size])
				b = b[size:]
			}

			if stream.msg.Len() >= stream.header.MsgLen {
				c.state = composerStateInit
				if err := c.complete(stream, cb); err != nil {
					return err
				}
			} else if stream.msg.Len()%c.peerChunkSize == 0 {
				c.state = composerStateInit
			}
		}
	}
}

func (c *ChunkComposer) collect(b []byte, need int) []byte {
	n := copy(c.header[c.headerLen:need], b)
	c.headerLen += n
	return b[n:]
}

func (c *ChunkComposer) parseMessageHeader() error {
	stream := c.getOrCreateStream(c.csid)
	c.stream = stream

	if c.fmt != 3 && stream.msg.Len() != 0 {
		Log.Warnf("[%p] new message header while previous message incomplete, drop it. csid=%d, fmt=%d, %s",
			c, c.csid, c.fmt, stream.toDebugString())
		stream.msg.Reset()
	}

	h := c.header[c.basicLen:]
	switch c.fmt {
	case 0:
		// 包头中为绝对时间戳
		stream.timestamp = bele.BeUint24(h)
		stream.header.MsgLen = bele.BeUint24(h[3:])
		stream.header.MsgTypeId = h[6]
		stream.header.MsgStreamId = int(bele.LeUint32(h[7:]))
	case 1:
		// 包头中为相对时间戳
		stream.timestamp = bele.BeUint24(h)
		stream.header.MsgLen = bele.BeUint24(h[3:])
		stream.header.MsgTypeId = h[6]
	case 2:
		stream.timestamp = bele.BeUint24(h)
	case 3:
		// noop
	}
	stream.header.Csid = c.csid

	if stream.header.MsgTypeId > base.RtmpTypeIdMax {
		Log.Errorf("[%p] invalid msg type id. %s", c, stream.toDebugString())
		return base.NewErrRtmpMsgTypeId(stream.header.MsgTypeId)
	}
	return nil
}

func (c *ChunkComposer) complete(stream *Stream, cb OnCompleteMessage) error {
	defer stream.msg.Reset()

	if stream.clock > maxClock {
		Log.Warnf("[%p] timestamp overflow, drop message. %s", c, stream.toDebugString())
		return nil
	}

	payload := stream.msg.Bytes()
	switch stream.header.MsgTypeId {
	case base.RtmpTypeIdSetChunkSize:
		// 对端设置了chunk size
		if len(payload) < 4 {
			return base.NewErrRtmpShortBuffer(4, len(payload), "set chunk size")
		}
		val := bele.BeUint32(payload) & 0x7FFFFFFF
		if val == 0 || val > maxChunkSize {
			return fmt.Errorf("%w. val=%d", base.ErrRtmpChunkSize, val)
		}
		c.SetPeerChunkSize(val)
	case base.RtmpTypeIdAbort:
		if len(payload) < 4 {
			return base.NewErrRtmpShortBuffer(4, len(payload), "abort")
		}
		if s, ok := c.csid2stream[int(bele.BeUint32(payload))]; ok && s != stream {
			s.msg.Reset()
		}
	}

	return cb(stream.toRtmpMsg())
}

func (c *ChunkComposer) getOrCreateStream(csid int) *Stream {
	stream, exist := c.csid2stream[csid]
	if !exist {
		stream = NewStream()
		c.csid2stream[csid] = stream
	}
	return stream
}
