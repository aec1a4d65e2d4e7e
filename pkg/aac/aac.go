// Copyright 2019, Chef.  All rights reserved.
// https://github.com/q191201771/lalrelay
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package aac

import (
	"github.com/q191201771/lalrelay/pkg/base"
	"github.com/q191201771/naza/pkg/nazabits"
)

// AudioSpecificConfig(asc)
// keywords: Seq Header,
// e.g.  rtmp, flv
//

const (
	AscSamplingFrequencyIndex48000 = 3
	AscSamplingFrequencyIndex44100 = 4
)

const (
	minAscLength = 2

	// rtmp audio tag中，asc之前的2字节头部
	rtmpAacSeqHeaderPrefixLength = 2
)

var samplingFrequencyTable = []int{
	96000, 88200, 64000, 48000, 44100, 32000, 24000, 22050, 16000, 12000, 11025, 8000, 7350,
}

// <ISO_IEC_14496-3.pdf>
// <1.6.2.1 AudioSpecificConfig>, <page 33/110>
// <1.5.1.1 Audio Object type definition>, <page 23/110>
// <1.6.3.3 samplingFrequencyIndex>, <page 35/110>
// <1.6.3.4 channelConfiguration>
// --------------------------------------------------------
// audio object type      [5b] 1=AAC MAIN  2=AAC LC
// samplingFrequencyIndex [4b] 3=48000  4=44100  6=24000  5=32000  11=11025
// channelConfiguration   [4b] 1=center front speaker  2=left, right front speakers
type AscContext struct {
	AudioObjectType        uint8 // [5b]
	SamplingFrequencyIndex uint8 // [4b]
	SamplingFrequency      int   // 仅当 SamplingFrequencyIndex 为 0xf 时，由asc中的24位显式给出
	ChannelConfiguration   uint8 // [4b]
}

func NewAscContext(asc []byte) (*AscContext, error) {
	var ascCtx AscContext
	if err := ascCtx.Unpack(asc); err != nil {
		return nil, err
	}
	return &ascCtx, nil
}

// NewAscContextFromRtmpSeqHeader
//
// @param payload: rtmp audio message的完整payload，包含前2字节的头部
func NewAscContextFromRtmpSeqHeader(payload []byte) (*AscContext, error) {
	if len(payload) < rtmpAacSeqHeaderPrefixLength+minAscLength {
		return nil, base.NewErrShortBuffer(rtmpAacSeqHeaderPrefixLength+minAscLength, len(payload))
	}
	return NewAscContext(payload[rtmpAacSeqHeaderPrefixLength:])
}

// Unpack
//
// @param asc: AAC Audio Specifc Config
//
//	注意，如果是rtmp/flv的message/tag，应去除Seq Header头部的2个字节
//	函数调用结束后，内部不持有该内存块
func (ascCtx *AscContext) Unpack(asc []byte) error {
	if len(asc) < minAscLength {
		return base.NewErrShortBuffer(minAscLength, len(asc))
	}

	br := nazabits.NewBitReader(asc)
	ascCtx.AudioObjectType, _ = br.ReadBits8(5)
	if ascCtx.AudioObjectType == 31 {
		ext, err := br.ReadBits8(6)
		if err != nil {
			return err
		}
		ascCtx.AudioObjectType = 32 + ext
	}
	var err error
	if ascCtx.SamplingFrequencyIndex, err = br.ReadBits8(4); err != nil {
		return err
	}
	if ascCtx.SamplingFrequencyIndex == 0xf {
		freq, err := br.ReadBits32(24)
		if err != nil {
			return err
		}
		ascCtx.SamplingFrequency = int(freq)
	}
	if ascCtx.ChannelConfiguration, err = br.ReadBits8(4); err != nil {
		return err
	}
	return nil
}

func (ascCtx *AscContext) GetSamplingFrequency() (int, error) {
	if ascCtx.SamplingFrequencyIndex == 0xf {
		return ascCtx.SamplingFrequency, nil
	}
	if int(ascCtx.SamplingFrequencyIndex) >= len(samplingFrequencyTable) {
		return -1, base.NewErrSamplingFrequencyIndex(ascCtx.SamplingFrequencyIndex)
	}
	return samplingFrequencyTable[ascCtx.SamplingFrequencyIndex], nil
}

// GetProfileName e.g. "LC", "HE", "HEv2"
func (ascCtx *AscContext) GetProfileName() string {
	switch ascCtx.AudioObjectType {
	case 1:
		return "Main"
	case 2:
		return "LC"
	case 3:
		return "SSR"
	case 4:
		return "LTP"
	case 5:
		return "HE"
	case 29:
		return "HEv2"
	case 23:
		return "LD"
	case 39:
		return "ELD"
	}
	return ""
}
