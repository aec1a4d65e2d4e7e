// Copyright 2023, Chef.  All rights reserved.
// https://github.com/q191201771/lalrelay
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package rtmp

import (
	"errors"
	"testing"

	"github.com/q191201771/lalrelay/pkg/base"
	"github.com/q191201771/naza/pkg/assert"
)

// 收集回调的message，payload做拷贝
type msgCollector struct {
	msgs []base.RtmpMsg
}

func (mc *msgCollector) onMsg(msg base.RtmpMsg) error {
	mc.msgs = append(mc.msgs, msg.Clone())
	return nil
}

func TestChunkComposer(t *testing.T) {
	// case: 音视频交错发送
	//
	// video payload 50, audio payload 15, chunk size = 20

	// fmt = 0
	videoChunk1 := append([]byte{6, 0, 3, 232, 0, 0, 50, 9, 1, 0, 0, 0}, make([]byte, 20)...)
	// fmt = 3
	videoChunk2 := append([]byte{0xC6}, make([]byte, 20)...)
	videoChunk3 := append([]byte{0xC6}, make([]byte, 10)...)
	// fmt = 0
	audioChunk1 := append([]byte{5, 0, 3, 232, 0, 0, 15, 8, 1, 0, 0, 0}, make([]byte, 15)...)
	// fmt = 1, delta 40
	audioChunk2 := append([]byte{0x45, 0, 0, 40, 0, 0, 15, 8}, make([]byte, 15)...)
	// fmt = 2, delta 40
	audioChunk3 := append([]byte{0x85, 0, 0, 40}, make([]byte, 15)...)
	// fmt = 3, 新的message，沿用delta
	audioChunk4 := append([]byte{0xC5}, make([]byte, 15)...)

	var in []byte
	for _, b := range [][]byte{videoChunk1, audioChunk1, videoChunk2, audioChunk2, videoChunk3, audioChunk3, audioChunk4} {
		in = append(in, b...)
	}

	var mc msgCollector
	c := NewChunkComposer()
	c.SetPeerChunkSize(20)
	err := c.Feed(in, mc.onMsg)
	assert.Equal(t, nil, err)

	assert.Equal(t, 5, len(mc.msgs))
	expectedTs := []uint32{1000, 1040, 1000, 1080, 1120}
	expectedType := []uint8{base.RtmpTypeIdAudio, base.RtmpTypeIdAudio, base.RtmpTypeIdVideo, base.RtmpTypeIdAudio, base.RtmpTypeIdAudio}
	for i, msg := range mc.msgs {
		assert.Equal(t, expectedTs[i], msg.Header.TimestampAbs)
		assert.Equal(t, expectedType[i], msg.Header.MsgTypeId)
		assert.Equal(t, 1, msg.Header.MsgStreamId)
	}
	assert.Equal(t, 50, len(mc.msgs[2].Payload))
	assert.Equal(t, uint32(50), mc.msgs[2].Header.MsgLen)
	assert.Equal(t, 6, mc.msgs[2].Header.Csid)
}

// 任意切分输入数据，结果与一次性输入相同
func TestChunkComposerFragmentation(t *testing.T) {
	var in []byte
	var golden []base.RtmpMsg
	for i, l := range []int{0, 1, 127, 128, 129, 300, 4096} {
		payload := make([]byte, l)
		for j := range payload {
			payload[j] = byte(i + j)
		}
		h := base.RtmpHeader{
			Csid:         csidVideo + i%2,
			MsgTypeId:    base.RtmpTypeIdVideo,
			MsgStreamId:  1,
			TimestampAbs: uint32(i * 40),
		}
		if i == 5 {
			h.TimestampAbs = 0x1000000 // 扩展时间戳
		}
		in = append(in, Message2Chunks(payload, &h, 128)...)
		h.MsgLen = uint32(l)
		golden = append(golden, base.RtmpMsg{Header: h, Payload: payload})
	}

	var whole msgCollector
	assert.Equal(t, nil, NewChunkComposer().Feed(in, whole.onMsg))
	assert.Equal(t, len(golden), len(whole.msgs))
	for i := range golden {
		assert.Equal(t, golden[i].Header, whole.msgs[i].Header)
		assert.Equal(t, len(golden[i].Payload), len(whole.msgs[i].Payload))
		if len(golden[i].Payload) > 0 {
			assert.Equal(t, golden[i].Payload, whole.msgs[i].Payload)
		}
	}

	for _, step := range []int{1, 2, 3, 7, 11, 13, 128, 1000} {
		var split msgCollector
		c := NewChunkComposer()
		for i := 0; i < len(in); i += step {
			end := i + step
			if end > len(in) {
				end = len(in)
			}
			assert.Equal(t, nil, c.Feed(in[i:end], split.onMsg))
		}
		assert.Equal(t, len(whole.msgs), len(split.msgs))
		for i := range whole.msgs {
			assert.Equal(t, whole.msgs[i].Header, split.msgs[i].Header)
			assert.Equal(t, len(whole.msgs[i].Payload), len(split.msgs[i].Payload))
			if len(whole.msgs[i].Payload) > 0 {
				assert.Equal(t, whole.msgs[i].Payload, split.msgs[i].Payload)
			}
		}
	}
}

func TestChunkComposerSetChunkSize(t *testing.T) {
	var in []byte
	in = append(in, Message2Chunks([]byte{0, 0, 0x10, 0}, &base.RtmpHeader{Csid: csidProtocolControl, MsgTypeId: base.RtmpTypeIdSetChunkSize}, 128)...)
	payload := make([]byte, 5000)
	in = append(in, Message2Chunks(payload, &base.RtmpHeader{Csid: csidVideo, MsgTypeId: base.RtmpTypeIdVideo, MsgStreamId: 1}, 4096)...)

	var mc msgCollector
	c := NewChunkComposer()
	assert.Equal(t, nil, c.Feed(in, mc.onMsg))
	assert.Equal(t, uint32(4096), c.PeerChunkSize())
	assert.Equal(t, 2, len(mc.msgs))
	assert.Equal(t, 5000, len(mc.msgs[1].Payload))

	// 非法的chunk size
	in = Message2Chunks([]byte{0, 0, 0, 0}, &base.RtmpHeader{Csid: csidProtocolControl, MsgTypeId: base.RtmpTypeIdSetChunkSize}, 128)
	err := NewChunkComposer().Feed(in, mc.onMsg)
	assert.Equal(t, true, errors.Is(err, base.ErrRtmpChunkSize))
}

func TestChunkComposerAbort(t *testing.T) {
	payload := make([]byte, 200)
	chunks := Message2Chunks(payload, &base.RtmpHeader{Csid: csidVideo, MsgTypeId: base.RtmpTypeIdVideo, MsgStreamId: 1}, 128)

	var in []byte
	// 只发送第一个chunk，然后abort
	in = append(in, chunks[:12+128]...)
	in = append(in, Message2Chunks([]byte{0, 0, 0, csidVideo}, &base.RtmpHeader{Csid: csidProtocolControl, MsgTypeId: base.RtmpTypeIdAbort}, 128)...)
	// 完整的message
	in = append(in, chunks...)

	var mc msgCollector
	assert.Equal(t, nil, NewChunkComposer().Feed(in, mc.onMsg))
	assert.Equal(t, 2, len(mc.msgs))
	assert.Equal(t, base.RtmpTypeIdAbort, mc.msgs[0].Header.MsgTypeId)
	assert.Equal(t, 200, len(mc.msgs[1].Payload))
}

func TestChunkComposerInvalidMsgTypeId(t *testing.T) {
	in := Message2Chunks([]byte{1, 2, 3}, &base.RtmpHeader{Csid: csidVideo, MsgTypeId: base.RtmpTypeIdAggregateMessage, MsgStreamId: 1}, 128)
	var mc msgCollector
	err := NewChunkComposer().Feed(in, mc.onMsg)
	assert.Equal(t, true, errors.Is(err, base.ErrRtmpMsgTypeId))
	assert.Equal(t, 0, len(mc.msgs))
}

func TestChunkComposerClockOverflow(t *testing.T) {
	var in []byte
	// fmt0, ts 0xFFFFFFF0
	in = append(in, Message2Chunks([]byte{1}, &base.RtmpHeader{Csid: csidAudio, MsgTypeId: base.RtmpTypeIdAudio, MsgStreamId: 1, TimestampAbs: 0xFFFFFFF0}, 128)...)
	// fmt2, delta 0x20，超过32位，丢弃
	in = append(in, 0x80|csidAudio, 0, 0, 0x20, 2)
	// fmt0, 重置
	in = append(in, Message2Chunks([]byte{3}, &base.RtmpHeader{Csid: csidAudio, MsgTypeId: base.RtmpTypeIdAudio, MsgStreamId: 1, TimestampAbs: 10}, 128)...)

	var mc msgCollector
	assert.Equal(t, nil, NewChunkComposer().Feed(in, mc.onMsg))
	assert.Equal(t, 2, len(mc.msgs))
	assert.Equal(t, uint32(0xFFFFFFF0), mc.msgs[0].Header.TimestampAbs)
	assert.Equal(t, []byte{1}, mc.msgs[0].Payload)
	assert.Equal(t, uint32(10), mc.msgs[1].Header.TimestampAbs)
	assert.Equal(t, []byte{3}, mc.msgs[1].Payload)
}

func TestStreamMsgGrow(t *testing.T) {
	var m StreamMsg
	m.Grow(10)
	assert.Equal(t, initMsgLen, m.Cap())
	m.Grow(initMsgLen + 1)
	assert.Equal(t, initMsgLen*2, m.Cap())
	// 容量保持
	m.Grow(10)
	assert.Equal(t, initMsgLen*2, m.Cap())
	m.Grow(initMsgLen * 5)
	assert.Equal(t, initMsgLen*8, m.Cap())
}
