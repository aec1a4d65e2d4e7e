// Copyright 2019, Chef.  All rights reserved.
// https://github.com/q191201771/lalrelay
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package rtmp

import (
	"github.com/q191201771/lalrelay/pkg/base"
)

// 考虑以下两种场景：
// - 只有上行，没有下行，并且没有开启gop缓存，没有必要做rtmp chunk切片的操作
// - 有多个下行，只需要做一次rtmp chunk切片
// 所以这一步做了懒处理
type LazyChunkDivider struct {
	message   []byte
	header    *base.RtmpHeader
	chunkSize int

	chunks []byte
}

func (lcd *LazyChunkDivider) Init(message []byte, header *base.RtmpHeader, chunkSize int) {
	lcd.message = message
	lcd.header = header
	lcd.chunkSize = chunkSize
	lcd.chunks = nil
}

// Get 返回的内存块为新申请的独立内存块，调用方可以持有
func (lcd *LazyChunkDivider) Get() []byte {
	if lcd.chunks == nil {
		lcd.chunks = Message2Chunks(lcd.message, lcd.header, lcd.chunkSize)
	}
	return lcd.chunks
}

type LazyGet func() []byte

// gop缓存的chunk块个数上限，纯音频流没有关键帧，避免无限增长
var gopCacheMaxNum = 8192

// GopCache 缓存最近一个gop的rtmp chunk，用于新加入的播放者秒开
//
// 视频关键帧到来时清空缓存，sequence header不缓存
//
// 缓存满时，有视频的流清空缓存并等待下一个关键帧，保证缓存总是从关键帧开始；纯音频流丢弃最老的
//
// 注意，非协程安全，由调用方加锁
type GopCache struct {
	uniqueKey    string
	data         [][]byte
	size         int
	hasVideo     bool
	waitKeyFrame bool
}

func NewGopCache(uniqueKey string) *GopCache {
	return &GopCache{
		uniqueKey: uniqueKey,
	}
}

func (gc *GopCache) Feed(msg base.RtmpMsg, lg LazyGet) {
	switch msg.Header.MsgTypeId {
	case base.RtmpTypeIdVideo:
		if msg.IsVideoKeyFrame() {
			gc.Clear()
		}
		if msg.IsVideoKeySeqHeader() {
			return
		}
		gc.hasVideo = true
	case base.RtmpTypeIdAudio:
		if msg.IsAudioSeqHeader() {
			return
		}
	default:
		return
	}

	if gc.waitKeyFrame {
		return
	}
	if len(gc.data) >= gopCacheMaxNum {
		if gc.hasVideo {
			Log.Warnf("[%s] gop cache full, clear and wait next key frame. num=%d, size=%d", gc.uniqueKey, len(gc.data), gc.size)
			gc.Clear()
			gc.waitKeyFrame = true
			return
		}
		Log.Warnf("[%s] gop cache full, drop oldest. num=%d, size=%d", gc.uniqueKey, len(gc.data), gc.size)
		gc.size -= len(gc.data[0])
		gc.data[0] = nil
		gc.data = gc.data[1:]
	}
	b := lg()
	gc.data = append(gc.data, b)
	gc.size += len(b)
}

// Data 返回缓存的chunk块列表，注意，调用方不能修改内存块内容
func (gc *GopCache) Data() [][]byte {
	out := make([][]byte, len(gc.data))
	copy(out, gc.data)
	return out
}

func (gc *GopCache) Len() int {
	return len(gc.data)
}

func (gc *GopCache) Size() int {
	return gc.size
}

func (gc *GopCache) Clear() {
	gc.data = nil
	gc.size = 0
	gc.waitKeyFrame = false
}
