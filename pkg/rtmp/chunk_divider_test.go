// Copyright 2023, Chef.  All rights reserved.
// https://github.com/q191201771/lalrelay
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package rtmp

import (
	"testing"

	"github.com/q191201771/lalrelay/pkg/base"
	"github.com/q191201771/naza/pkg/assert"
)

func TestMessage2Chunks(t *testing.T) {
	goldBuf := make([]byte, 4096*3)
	for i := range goldBuf {
		goldBuf[i] = byte(i % 256)
	}

	// 07    00 00 7b   00 00 01  09      01 00 00 00  00
	// csid  timestamp  len       typeid  streamid     v
	h := base.RtmpHeader{
		Csid:         7,
		MsgTypeId:    base.RtmpTypeIdVideo,
		MsgStreamId:  1,
		TimestampAbs: 123,
	}
	out := Message2Chunks(goldBuf[:1], &h, 128)
	assert.Equal(t, []byte{7, 0, 0, 0x7b, 0, 0, 1, 9, 1, 0, 0, 0, 0}, out)

	// 刚好整除时，没有多余的空chunk
	out = Message2Chunks(goldBuf[:256], &h, 128)
	assert.Equal(t, 12+128+1+128, len(out))
	assert.Equal(t, uint8(0xC7), out[12+128])

	// 空payload
	out = Message2Chunks(nil, &h, 128)
	assert.Equal(t, []byte{7, 0, 0, 0x7b, 0, 0, 0, 9, 1, 0, 0, 0}, out)
}

// 序列化后再解析，得到相同的header和payload
func TestMessage2ChunksRoundTrip(t *testing.T) {
	goldBuf := make([]byte, 4096*3)
	for i := range goldBuf {
		goldBuf[i] = byte(i % 251)
	}

	for _, chunkSize := range []int{1, 128, 4096} {
		for _, l := range []int{1, chunkSize - 1, chunkSize, chunkSize + 1, chunkSize * 2, chunkSize*2 + 7} {
			if l <= 0 {
				continue
			}
			for _, ts := range []uint32{0, 0xFFFFFE, 0xFFFFFF, 0x12345678} {
				for _, csid := range []int{csidAudio, 63, 64, 319, 320, 65599} {
					h := base.RtmpHeader{
						Csid:         csid,
						MsgTypeId:    base.RtmpTypeIdAudio,
						MsgStreamId:  1,
						TimestampAbs: ts,
					}
					chunks := Message2Chunks(goldBuf[:l], &h, chunkSize)

					var mc msgCollector
					c := NewChunkComposer()
					c.SetPeerChunkSize(uint32(chunkSize))
					assert.Equal(t, nil, c.Feed(chunks, mc.onMsg))
					assert.Equal(t, 1, len(mc.msgs))
					h.MsgLen = uint32(l)
					assert.Equal(t, h, mc.msgs[0].Header)
					assert.Equal(t, goldBuf[:l], mc.msgs[0].Payload)
				}
			}
		}
	}
}

func TestMessage2ChunksExtTimestamp(t *testing.T) {
	h := base.RtmpHeader{
		Csid:         csidVideo,
		MsgTypeId:    base.RtmpTypeIdVideo,
		MsgStreamId:  1,
		TimestampAbs: 0x01020304,
	}
	out := Message2Chunks(make([]byte, 3), &h, 2)
	assert.Equal(t, []byte{
		5, 0xFF, 0xFF, 0xFF, 0, 0, 3, 9, 1, 0, 0, 0, 1, 2, 3, 4, 0, 0,
		0xC5, 1, 2, 3, 4, 0,
	}, out)
}
