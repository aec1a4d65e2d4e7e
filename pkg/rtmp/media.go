// Copyright 2023, Chef.  All rights reserved.
// https://github.com/q191201771/lalrelay
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package rtmp

// media.go
// @pure
// 解析音视频message的头部，维护编码信息，以及enhanced-rtmp到普通格式的转换

import (
	"bytes"
	"math"
	"time"

	"github.com/q191201771/lalrelay/pkg/aac"
	"github.com/q191201771/lalrelay/pkg/av1"
	"github.com/q191201771/lalrelay/pkg/avc"
	"github.com/q191201771/lalrelay/pkg/base"
	"github.com/q191201771/lalrelay/pkg/hevc"
)

// soundHeader 音频message第1个字节
type soundHeader struct {
	Format uint8 // UB[4]
	Rate   uint8 // UB[2]
	Size   uint8 // UB[1]
	Type   uint8 // UB[1] 0 mono 1 stereo
}

func parseSoundHeader(b uint8) soundHeader {
	return soundHeader{
		Format: b >> 4,
		Rate:   (b >> 2) & 0x03,
		Size:   (b >> 1) & 0x01,
		Type:   b & 0x01,
	}
}

// updateAudioInfo 使用音频message更新编码信息
//
// 第一个音频message决定编码类型，sequence header会覆盖采样率和声道数
//
// @return isSeqHeader: 是否为AAC或OPUS的sequence header，需要缓存
func updateAudioInfo(info *base.StatAudio, payload []byte) (isSeqHeader bool) {
	if len(payload) == 0 {
		return false
	}
	sh := parseSoundHeader(payload[0])

	if info.Codec == 0 {
		info.Codec = sh.Format
		info.CodecName = audioCodecName[sh.Format]
		info.SampleRate = audioSoundRate[sh.Rate]
		info.Channels = int(sh.Type) + 1

		switch sh.Format {
		case 4: // Nellymoser 16 kHz
			info.SampleRate = 16000
		case 5, 7, 8: // Nellymoser 8 kHz | G.711 A-law | G.711 mu-law
			info.SampleRate = 8000
		case 11: // Speex
			info.SampleRate = 16000
		case 14: // MP3 8 kHz
			info.SampleRate = 8000
		}
	}

	if !base.IsRtmpAudioCodecWithSeqHeader(sh.Format) || len(payload) < 2 || payload[1] != base.RtmpAacPacketTypeSeqHeader {
		return false
	}

	if sh.Format == base.RtmpSoundFormatAac {
		ascCtx, err := aac.NewAscContextFromRtmpSeqHeader(payload)
		if err != nil {
			Log.Warnf("parse aac seq header failed. err=%+v", err)
			return true
		}
		info.Profile = ascCtx.GetProfileName()
		if sr, err := ascCtx.GetSamplingFrequency(); err == nil {
			info.SampleRate = sr
		}
		info.Channels = int(ascCtx.ChannelConfiguration)
	} else {
		// opus的OpusHead中声道数在第10个字节，加上2字节rtmp头
		info.SampleRate = 48000
		if len(payload) > 11 {
			info.Channels = int(payload[11])
		}
	}
	return true
}

// ---------------------------------------------------------------------------------------------------------------------

// remapEnhancedVideo 将enhanced-rtmp格式的视频message转换为普通格式
//
// 转换在`payload`上原地进行，返回的切片可能是`payload`的子切片
//
//	hevc SequenceStart -> 0x1c 0x00 0x00 0x00 0x00 hvcC
//	hevc CodedFrames   -> 0x?c 0x01 cts(3) nalus
//	hevc CodedFramesX  -> 0x?c 0x01 0x00 0x00 0x00 nalus
//	av1  SequenceStart -> 0x1d 0x00 0x00 0x00 0x00 av1C
//	av1  CodedFrames   -> 0x?d 0x01 0x00 0x00 0x00 obus
//
// @return ok: false表示不支持的FourCC或者packet type，该message应被丢弃
func remapEnhancedVideo(payload []byte) (out []byte, ok bool) {
	if len(payload) < 5 {
		return nil, false
	}
	frameType := (payload[0] >> 4) & 0x07
	packetType := payload[0] & 0x0F
	fourCc := payload[1:5]

	switch {
	case bytes.Equal(fourCc, base.FourCcHevc):
		switch packetType {
		case base.RtmpExPacketTypeSequenceStart:
			payload[0] = base.RtmpFrameTypeKey<<4 | base.RtmpCodecIdHevc
			payload[1], payload[2], payload[3], payload[4] = base.RtmpAvcPacketTypeSeqHeader, 0, 0, 0
			return payload, true
		case base.RtmpExPacketTypeCodedFrames:
			if len(payload) < 8 {
				return nil, false
			}
			payload = payload[3:]
			payload[0] = frameType<<4 | base.RtmpCodecIdHevc
			payload[1] = base.RtmpAvcPacketTypeNalu
			return payload, true
		case base.RtmpExPacketTypeCodedFramesX:
			payload[0] = frameType<<4 | base.RtmpCodecIdHevc
			payload[1], payload[2], payload[3], payload[4] = base.RtmpAvcPacketTypeNalu, 0, 0, 0
			return payload, true
		}
	case bytes.Equal(fourCc, base.FourCcAv1):
		switch packetType {
		case base.RtmpExPacketTypeSequenceStart:
			payload[0] = base.RtmpFrameTypeKey<<4 | base.RtmpCodecIdAv1
			payload[1], payload[2], payload[3], payload[4] = base.RtmpAvcPacketTypeSeqHeader, 0, 0, 0
			return payload, true
		case base.RtmpExPacketTypeCodedFrames:
			payload[0] = frameType<<4 | base.RtmpCodecIdAv1
			payload[1], payload[2], payload[3], payload[4] = base.RtmpAvcPacketTypeNalu, 0, 0, 0
			return payload, true
		}
	default:
		Log.Warnf("unsupported enhanced rtmp fourcc. fourcc=%q", fourCc)
		return nil, false
	}

	Log.Debugf("enhanced rtmp packet type not relayed. fourcc=%s, packet type=%d", fourCc, packetType)
	return nil, false
}

// updateVideoInfoFromSeqHeader 解析视频sequence header，更新宽高，profile，level
//
// @param payload: 普通格式(或已经经过 remapEnhancedVideo 转换)的视频sequence header
func updateVideoInfoFromSeqHeader(info *base.StatVideo, payload []byte) {
	switch payload[0] & 0x0F {
	case base.RtmpCodecIdAvc:
		ctx, err := avc.ParseSeqHeader(payload)
		if err != nil {
			Log.Warnf("parse avc seq header failed. err=%+v", err)
			return
		}
		info.Width, info.Height = int(ctx.Width), int(ctx.Height)
		info.Profile = avc.ProfileName(ctx.Profile)
		info.Level = float64(ctx.Level) / 10
	case base.RtmpCodecIdHevc:
		ctx, err := hevc.ParseSeqHeader(payload)
		if err != nil {
			Log.Warnf("parse hevc seq header failed. err=%+v", err)
			return
		}
		info.Width, info.Height = int(ctx.Width), int(ctx.Height)
		info.Profile = hevc.ProfileName(ctx.Profile)
		info.Level = float64(ctx.Level) / 30
	case base.RtmpCodecIdAv1:
		ctx, err := av1.ParseSeqHeader(payload)
		if err != nil {
			Log.Warnf("parse av1 seq header failed. err=%+v", err)
			return
		}
		info.Width, info.Height = int(ctx.Width), int(ctx.Height)
		info.Profile = av1.ProfileName(ctx.Profile)
		info.Level = float64(2+(ctx.Level>>2)) + float64(ctx.Level&3)/10
	}
}

// ---------------------------------------------------------------------------------------------------------------------

// fpsEstimator 使用最开始一段时间内的视频帧数估算帧率
type fpsEstimator struct {
	duration time.Duration
	start    time.Time
	count    int
	fps      float64
}

func newFpsEstimator(duration time.Duration) *fpsEstimator {
	return &fpsEstimator{duration: duration}
}

// Feed 每个视频帧调用一次
//
// @return 估算结束后返回帧率，之前返回0
func (e *fpsEstimator) Feed(now time.Time) float64 {
	if e.fps != 0 {
		return e.fps
	}
	if e.count == 0 {
		e.start = now
	}
	e.count++
	if elapsed := now.Sub(e.start); elapsed >= e.duration {
		e.fps = math.Ceil(float64(e.count-1) / e.duration.Seconds())
	}
	return e.fps
}
