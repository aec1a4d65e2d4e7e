// Copyright 2020, Chef.  All rights reserved.
// https://github.com/q191201771/lalrelay
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base

import "github.com/q191201771/naza/pkg/bele"

const (
	// RtmpTypeIdAudio spec-rtmp_specification_1.0.pdf
	// 7.1. Types of Messages
	RtmpTypeIdSetChunkSize       uint8 = 1
	RtmpTypeIdAbort              uint8 = 2
	RtmpTypeIdAck                uint8 = 3
	RtmpTypeIdUserControl        uint8 = 4
	RtmpTypeIdWinAckSize         uint8 = 5
	RtmpTypeIdBandwidth          uint8 = 6
	RtmpTypeIdAudio              uint8 = 8
	RtmpTypeIdVideo              uint8 = 9
	RtmpTypeIdDataMessageAmf3    uint8 = 15
	RtmpTypeIdSharedObjectAmf3   uint8 = 16
	RtmpTypeIdCommandMessageAmf3 uint8 = 17
	RtmpTypeIdMetadata           uint8 = 18 // RtmpTypeIdDataMessageAmf0
	RtmpTypeIdSharedObjectAmf0   uint8 = 19
	RtmpTypeIdCommandMessageAmf0 uint8 = 20
	RtmpTypeIdAggregateMessage   uint8 = 22

	// RtmpTypeIdMax 大于该值的message type id被视为协议错误
	RtmpTypeIdMax = RtmpTypeIdCommandMessageAmf0

	// RtmpUserControlStreamBegin RtmpUserControlXxx...
	//
	// user control message type
	//
	RtmpUserControlStreamBegin  uint8 = 0
	RtmpUserControlStreamEof    uint8 = 1
	RtmpUserControlRecorded     uint8 = 4
	RtmpUserControlPingRequest  uint8 = 6
	RtmpUserControlPingResponse uint8 = 7

	// RtmpFrameTypeKey spec-video_file_format_spec_v10.pdf
	// Video tags
	//   VIDEODATA
	//     FrameType UB[4]
	//     CodecId   UB[4]
	//   AVCVIDEOPACKET
	//     AVCPacketType   UI8
	//     CompositionTime SI24
	//     Data            UI8[n]
	RtmpFrameTypeKey   uint8 = 1
	RtmpFrameTypeInter uint8 = 2

	RtmpCodecIdAvc  uint8 = 7
	RtmpCodecIdHevc uint8 = 12
	RtmpCodecIdAv1  uint8 = 13

	// RtmpAvcPacketTypeSeqHeader RtmpAvcPacketTypeNalu
	// 注意，按照标准文档上描述，PacketType还有可能为2：
	// 2: AVC end of sequence (lower level NALU sequence ender is not required or supported)
	//
	RtmpAvcPacketTypeSeqHeader uint8 = 0
	RtmpAvcPacketTypeNalu      uint8 = 1

	// RtmpSoundFormatAac spec-video_file_format_spec_v10.pdf
	// Audio tags
	//   AUDIODATA
	//     SoundFormat UB[4]
	//     SoundRate   UB[2]
	//     SoundSize   UB[1]
	//     SoundType   UB[1]
	//   AACAUDIODATA
	//     AACPacketType UI8
	//     Data          UI8[n]
	RtmpSoundFormatAac         uint8 = 10 // 注意，视频的CodecId是后4位，音频是前4位
	RtmpSoundFormatOpus        uint8 = 13
	RtmpAacPacketTypeSeqHeader       = 0
	RtmpAacPacketTypeRaw             = 1
)

// enhanced-rtmp
//
// https://github.com/veovera/enhanced-rtmp
//
//	ExVideoTagHeader
//	  IsExHeader UB[1]
//	  FrameType  UB[3]
//	  PacketType UB[4]
//	  FourCC     UI32
const (
	RtmpExPacketTypeSequenceStart        uint8 = 0
	RtmpExPacketTypeCodedFrames          uint8 = 1
	RtmpExPacketTypeSequenceEnd          uint8 = 2
	RtmpExPacketTypeCodedFramesX         uint8 = 3
	RtmpExPacketTypeMetadata             uint8 = 4
	RtmpExPacketTypeMpeg2TsSequenceStart uint8 = 5
)

var (
	FourCcHevc = []byte("hvc1")
	FourCcAv1  = []byte("av01")
	FourCcVp9  = []byte("vp09")
)

type RtmpHeader struct {
	Csid         int
	MsgLen       uint32 // 不包含header的大小
	MsgTypeId    uint8  // 8 audio 9 video 18 metadata
	MsgStreamId  int
	TimestampAbs uint32 // dts, 经过计算得到的流上的绝对时间戳，单位毫秒
}

type RtmpMsg struct {
	Header  RtmpHeader
	Payload []byte // Payload不包含Header内容。如果需要将RtmpMsg序列化成RTMP chunk，可调用rtmp.Message2Chunks
}

// IsEnhanced 视频tag是否使用了enhanced-rtmp的扩展头
func (msg RtmpMsg) IsEnhanced() bool {
	return msg.Header.MsgTypeId == RtmpTypeIdVideo && len(msg.Payload) > 0 && (msg.Payload[0]>>4)&0x8 != 0
}

// IsVideoKeySeqHeader 注意，只对非enhanced格式，或者已经被转换为legacy格式的tag有效
func (msg RtmpMsg) IsVideoKeySeqHeader() bool {
	if msg.Header.MsgTypeId != RtmpTypeIdVideo || len(msg.Payload) < 2 {
		return false
	}
	return msg.Payload[0]>>4 == RtmpFrameTypeKey && IsRtmpVideoCodecWithSeqHeader(msg.VideoCodecId()) &&
		msg.Payload[1] == RtmpAvcPacketTypeSeqHeader
}

func (msg RtmpMsg) IsVideoKeyFrame() bool {
	return msg.Header.MsgTypeId == RtmpTypeIdVideo && len(msg.Payload) > 0 && (msg.Payload[0]>>4)&0x7 == RtmpFrameTypeKey
}

func (msg RtmpMsg) IsAudioSeqHeader() bool {
	if msg.Header.MsgTypeId != RtmpTypeIdAudio || len(msg.Payload) < 2 {
		return false
	}
	f := msg.Payload[0] >> 4
	return (f == RtmpSoundFormatAac || f == RtmpSoundFormatOpus) && msg.Payload[1] == RtmpAacPacketTypeSeqHeader
}

func (msg RtmpMsg) VideoCodecId() uint8 {
	return msg.Payload[0] & 0xF
}

func (msg RtmpMsg) AudioCodecId() uint8 {
	return msg.Payload[0] >> 4
}

func (msg RtmpMsg) Clone() (ret RtmpMsg) {
	ret.Header = msg.Header
	ret.Payload = make([]byte, len(msg.Payload))
	copy(ret.Payload, msg.Payload)
	return
}

func (msg RtmpMsg) Dts() uint32 {
	return msg.Header.TimestampAbs
}

// Pts
//
// 注意，只有视频才能调用该函数获取pts，音频的dts和pts都直接使用 RtmpMsg.Header.TimestampAbs
func (msg RtmpMsg) Pts() uint32 {
	return msg.Header.TimestampAbs + bele.BeUint24(msg.Payload[2:])
}

// IsRtmpVideoCodecWithSeqHeader avc hevc av1 都有需要缓存的sequence header
func IsRtmpVideoCodecWithSeqHeader(codecId uint8) bool {
	return codecId == RtmpCodecIdAvc || codecId == RtmpCodecIdHevc || codecId == RtmpCodecIdAv1
}

func IsRtmpAudioCodecWithSeqHeader(soundFormat uint8) bool {
	return soundFormat == RtmpSoundFormatAac || soundFormat == RtmpSoundFormatOpus
}
