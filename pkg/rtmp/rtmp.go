// Copyright 2019, Chef.  All rights reserved.
// https://github.com/q191201771/lalrelay
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package rtmp

import "github.com/q191201771/lalrelay/pkg/base"

const (
	csidProtocolControl = 2
	csidOverConnection  = 3
	csidAudio           = 4
	csidVideo           = 5
	csidData            = 6
)

// basic header 3 | message header 11 | extended ts 4
const maxHeaderSize = 18

// rtmp头中3字节时间戳的最大值
const maxTimestampInMessageHeader uint32 = 0xFFFFFF

// 时间戳累加后超过该值的message被丢弃
const maxClock = int64(0xFFFFFFFF)

const defaultChunkSize = 128 // 未收到对端设置chunk size时的默认值

// 不接受对端设置的超过该值的chunk size
const maxChunkSize = 0xFFFFFF

// ack计数超过该值时归零
const ackSizeWrapThreshold uint32 = 0xF0000000

const (
	peerBandwidthLimitTypeHard    = uint8(0)
	peerBandwidthLimitTypeSoft    = uint8(1)
	peerBandwidthLimitTypeDynamic = uint8(2)
)

var messageHeaderSize = [4]int{11, 7, 3, 0}

// 中继时在fmt0 chunk中写入stream id的位置。要求csid小于64，即basic header只有1字节
const relayStreamIdOffset = 8

const (
	// 一次cork最多合并的写次数
	corkMaxCount = 10
)

const (
	StatusLevelStatus = "status"
	StatusLevelError  = "error"
)

const (
	NetConnectionConnectSuccess  = "NetConnection.Connect.Success"
	NetConnectionConnectRejected = "NetConnection.Connect.Rejected"

	NetStreamPublishStart         = "NetStream.Publish.Start"
	NetStreamPublishBadName       = "NetStream.Publish.BadName"
	NetStreamPublishUnauthorized  = "NetStream.Publish.Unauthorized"
	NetStreamPublishBadConnection = "NetStream.Publish.BadConnection"
	NetStreamPublishFailed        = "NetStream.Publish.Failed"
	NetStreamUnpublishSuccess     = "NetStream.Unpublish.Success"

	NetStreamPlayStart           = "NetStream.Play.Start"
	NetStreamPlayReset           = "NetStream.Play.Reset"
	NetStreamPlayStop            = "NetStream.Play.Stop"
	NetStreamPlayBadName         = "NetStream.Play.BadName"
	NetStreamPlayUnauthorized    = "NetStream.Play.Unauthorized"
	NetStreamPlayBadConnection   = "NetStream.Play.BadConnection"
	NetStreamPlayFailed          = "NetStream.Play.Failed"
	NetStreamPlayUnpublishNotify = "NetStream.Play.UnpublishNotify"
	NetStreamPauseNotify         = "NetStream.Pause.Notify"
	NetStreamUnpauseNotify       = "NetStream.Unpause.Notify"
)

// 音频sound rate字段对应的采样率
var audioSoundRate = [4]int{5512, 11025, 22050, 44100}

var audioCodecName = map[uint8]string{
	0:  "",
	1:  "ADPCM",
	2:  "MP3",
	3:  "LinearLE",
	4:  "Nellymoser16",
	5:  "Nellymoser8",
	6:  "Nellymoser",
	7:  "G711A",
	8:  "G711U",
	10: "AAC",
	11: "Speex",
	13: "OPUS",
	14: "MP3-8K",
	15: "DeviceSpecific",
}

var videoCodecName = map[uint8]string{
	0:                    "",
	1:                    "Jpeg",
	2:                    "Sorenson-H263",
	3:                    "ScreenVideo",
	4:                    "On2-VP6",
	5:                    "On2-VP6-Alpha",
	6:                    "ScreenVideo2",
	base.RtmpCodecIdAvc:  "H264",
	8:                    "RealH263",
	9:                    "MPEG4",
	base.RtmpCodecIdHevc: "H265",
	base.RtmpCodecIdAv1:  "AV1",
}
