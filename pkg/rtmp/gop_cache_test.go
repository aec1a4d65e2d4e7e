// Copyright 2019, Chef.  All rights reserved.
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

func newTestMsg(typeId uint8, payload ...byte) base.RtmpMsg {
	return base.RtmpMsg{
		Header:  base.RtmpHeader{MsgTypeId: typeId, MsgLen: uint32(len(payload))},
		Payload: payload,
	}
}

func TestGopCache(t *testing.T) {
	gc := NewGopCache("test")
	feed := func(msg base.RtmpMsg) {
		gc.Feed(msg, func() []byte {
			return append([]byte{}, msg.Payload...)
		})
	}

	audioSeqHeader := newTestMsg(base.RtmpTypeIdAudio, 0xaf, 0x00, 0x12, 0x10)
	audio := newTestMsg(base.RtmpTypeIdAudio, 0xaf, 0x01, 0x21)
	videoSeqHeader := newTestMsg(base.RtmpTypeIdVideo, 0x17, 0x00, 0x00, 0x00, 0x00)
	keyFrame := newTestMsg(base.RtmpTypeIdVideo, 0x17, 0x01, 0x00, 0x00, 0x00, 0x65)
	interFrame := newTestMsg(base.RtmpTypeIdVideo, 0x27, 0x01, 0x00, 0x00, 0x00, 0x41)
	metadata := newTestMsg(base.RtmpTypeIdMetadata, 0x02, 0x00)

	feed(audioSeqHeader)
	feed(videoSeqHeader)
	feed(metadata)
	assert.Equal(t, 0, gc.Len())

	feed(audio)
	assert.Equal(t, 1, gc.Len())

	feed(keyFrame)
	assert.Equal(t, 1, gc.Len())
	feed(audio)
	feed(interFrame)
	assert.Equal(t, 3, gc.Len())
	assert.Equal(t, len(keyFrame.Payload)+len(audio.Payload)+len(interFrame.Payload), gc.Size())
	data := gc.Data()
	assert.Equal(t, keyFrame.Payload, data[0])
	assert.Equal(t, interFrame.Payload, data[2])

	// 新的关键帧清空之前的gop
	feed(keyFrame)
	assert.Equal(t, 1, gc.Len())
	// 关键帧类型的sequence header也会清空
	feed(interFrame)
	feed(videoSeqHeader)
	assert.Equal(t, 0, gc.Len())

	feed(keyFrame)
	gc.Clear()
	assert.Equal(t, 0, gc.Len())
	assert.Equal(t, 0, gc.Size())
}

func TestGopCache_MaxNum(t *testing.T) {
	old := gopCacheMaxNum
	gopCacheMaxNum = 4
	defer func() { gopCacheMaxNum = old }()

	gc := NewGopCache("test")
	for i := 0; i < 6; i++ {
		msg := newTestMsg(base.RtmpTypeIdAudio, 0x2f, byte(i))
		gc.Feed(msg, func() []byte { return msg.Payload })
	}
	assert.Equal(t, 4, gc.Len())
	assert.Equal(t, []byte{0x2f, 2}, gc.Data()[0])
	assert.Equal(t, 8, gc.Size())
}

func TestGopCache_MaxNumWithVideo(t *testing.T) {
	old := gopCacheMaxNum
	gopCacheMaxNum = 4
	defer func() { gopCacheMaxNum = old }()

	gc := NewGopCache("test")
	feed := func(msg base.RtmpMsg) {
		gc.Feed(msg, func() []byte { return msg.Payload })
	}
	keyFrame := newTestMsg(base.RtmpTypeIdVideo, 0x17, 0x01, 0x65)
	interFrame := newTestMsg(base.RtmpTypeIdVideo, 0x27, 0x01, 0x41)
	audio := newTestMsg(base.RtmpTypeIdAudio, 0xaf, 0x01, 0x21)

	feed(keyFrame)
	for i := 0; i < 3; i++ {
		feed(interFrame)
	}
	assert.Equal(t, 4, gc.Len())
	assert.Equal(t, keyFrame.Payload, gc.Data()[0])

	// 超过上限时不保留不完整的gop
	feed(interFrame)
	assert.Equal(t, 0, gc.Len())
	assert.Equal(t, 0, gc.Size())
	feed(interFrame)
	feed(audio)
	assert.Equal(t, 0, gc.Len())

	// 下一个关键帧重新开始缓存
	feed(keyFrame)
	feed(audio)
	assert.Equal(t, 2, gc.Len())
	data := gc.Data()
	assert.Equal(t, true, data[0][0]>>4 == base.RtmpFrameTypeKey)
}

func TestLazyChunkDivider(t *testing.T) {
	var lcd LazyChunkDivider
	h := base.RtmpHeader{Csid: csidAudio, MsgTypeId: base.RtmpTypeIdAudio, MsgStreamId: 1, TimestampAbs: 10}
	payload := []byte{0xaf, 0x01, 0x01, 0x02}
	lcd.Init(payload, &h, defaultChunkSize)
	chunks := lcd.Get()
	assert.Equal(t, Message2Chunks(payload, &h, defaultChunkSize), chunks)
	// 多次获取返回同一块内存
	assert.Equal(t, &chunks[0], &lcd.Get()[0])
}
