// Copyright 2019, Chef.  All rights reserved.
// https://github.com/q191201771/lalrelay
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package avc

import (
	"encoding/hex"

	"github.com/q191201771/lalrelay/pkg/base"
	"github.com/q191201771/naza/pkg/bele"
	"github.com/q191201771/naza/pkg/nazabits"
	"github.com/q191201771/naza/pkg/nazabytes"
	"github.com/q191201771/naza/pkg/nazaerrors"
	"github.com/q191201771/naza/pkg/nazalog"
)

// Context 从sequence header中解析出的视频信息
type Context struct {
	Profile uint8
	Level   uint8
	Width   uint32
	Height  uint32
}

type Sps struct {
	ProfileIdc                     uint8
	ConstraintSet0Flag             uint8
	ConstraintSet1Flag             uint8
	ConstraintSet2Flag             uint8
	LevelIdc                       uint8
	SpsId                          uint32
	ChromaFormatIdc                uint32
	ResidualColorTransformFlag     uint8
	BitDepthLuma                   uint32
	BitDepthChroma                 uint32
	TransFormBypass                uint8
	Log2MaxFrameNumMinus4          uint32
	PicOrderCntType                uint32
	Log2MaxPicOrderCntLsb          uint32
	NumRefFrames                   uint32
	GapsInFrameNumValueAllowedFlag uint8
	PicWidthInMbsMinusOne          uint32
	PicHeightInMapUnitsMinusOne    uint32
	FrameMbsOnlyFlag               uint8
	MbAdaptiveFrameFieldFlag       uint8
	Direct8X8InferenceFlag         uint8
	FrameCroppingFlag              uint8
	FrameCropLeftOffset            uint32
	FrameCropRightOffset           uint32
	FrameCropTopOffset             uint32
	FrameCropBottomOffset          uint32
}

// ParseSeqHeader 从 rtmp avc sequence header 中解析视频信息
//
// @param payload: rtmp message的payload部分或者flv tag的payload部分
//
//	注意，包含了头部2字节类型以及3字节的cts
func ParseSeqHeader(payload []byte) (ctx Context, err error) {
	sps, _, err := ParseSpsPpsFromSeqHeader(payload)
	if err != nil {
		return ctx, err
	}
	err = ParseSps(sps, &ctx)
	return
}

// ParseSpsPpsFromSeqHeader
//
// H.264-AVC-ISO_IEC_14496-15.pdf
// 5.2.4 Decoder configuration information
//
// 如果有多个sps或pps，只返回第一个
func ParseSpsPpsFromSeqHeader(payload []byte) (sps, pps []byte, err error) {
	if len(payload) < 11 {
		return nil, nil, base.NewErrShortBuffer(11, len(payload))
	}

	//configurationVersion := payload[5]
	//avcProfileIndication := payload[6]
	//profileCompatibility := payload[7]
	//avcLevelIndication := payload[8]
	//lengthSizeMinusOne := payload[9] & 0x03

	index := 10
	numOfSps := int(payload[index] & 0x1F)
	index++
	for i := 0; i < numOfSps; i++ {
		if len(payload) < index+2 {
			return nil, nil, base.NewErrShortBuffer(index+2, len(payload))
		}
		spsLen := int(bele.BeUint16(payload[index:]))
		index += 2
		if len(payload) < index+spsLen {
			return nil, nil, base.NewErrShortBuffer(index+spsLen, len(payload))
		}
		if sps == nil {
			sps = payload[index : index+spsLen]
		}
		index += spsLen
	}
	if sps == nil {
		return nil, nil, base.ErrAvc
	}

	if len(payload) < index+1 {
		return sps, nil, nil
	}
	numOfPps := int(payload[index] & 0x1F)
	index++
	for i := 0; i < numOfPps; i++ {
		if len(payload) < index+2 {
			break
		}
		ppsLen := int(bele.BeUint16(payload[index:]))
		index += 2
		if len(payload) < index+ppsLen {
			break
		}
		if pps == nil {
			pps = payload[index : index+ppsLen]
		}
		index += ppsLen
	}
	return
}

// ParseSps
//
// @param payload: 包含1字节nal header的sps
func ParseSps(payload []byte, ctx *Context) error {
	rbsp := RemoveEmulationPrevention(payload)
	br := nazabits.NewBitReader(rbsp)
	var sps Sps
	if err := parseSpsBasic(&br, &sps); err != nil {
		nazalog.Errorf("parseSpsBasic failed. err=%+v, payload=%s", err, hex.Dump(nazabytes.Prefix(payload, 128)))
		return err
	}
	ctx.Profile = sps.ProfileIdc
	ctx.Level = sps.LevelIdc

	if err := parseSpsBeta(&br, &sps); err != nil {
		// 注意，这里不将错误返回给上层，因为可能是Beta自身解析的问题
		nazalog.Warnf("parseSpsBeta failed. err=%+v, payload=%s", err, hex.Dump(nazabytes.Prefix(payload, 128)))
		return nil
	}
	ctx.Width = (sps.PicWidthInMbsMinusOne+1)*16 - (sps.FrameCropLeftOffset+sps.FrameCropRightOffset)*2
	ctx.Height = (2-uint32(sps.FrameMbsOnlyFlag))*(sps.PicHeightInMapUnitsMinusOne+1)*16 - (sps.FrameCropTopOffset+sps.FrameCropBottomOffset)*2
	return nil
}

// ProfileName e.g. "High"
func ProfileName(profile uint8) string {
	switch profile {
	case 66:
		return "Baseline"
	case 77:
		return "Main"
	case 88:
		return "Extended"
	case 100:
		return "High"
	case 110:
		return "High 10"
	case 122:
		return "High 4:2:2"
	case 244:
		return "High 4:4:4"
	}
	return ""
}

// RemoveEmulationPrevention 去除 0x000003 中的 0x03
//
// 注意，没有需要去除的字节时，直接返回参数切片，不做拷贝
func RemoveEmulationPrevention(b []byte) []byte {
	var out []byte
	zeros := 0
	for i := 0; i < len(b); i++ {
		if zeros >= 2 && b[i] == 0x03 {
			if out == nil {
				out = make([]byte, 0, len(b))
				out = append(out, b[:i]...)
			}
			zeros = 0
			continue
		}
		if out != nil {
			out = append(out, b[i])
		}
		if b[i] == 0 {
			zeros++
		} else {
			zeros = 0
		}
	}
	if out == nil {
		return b
	}
	return out
}

func parseSpsBasic(br *nazabits.BitReader, sps *Sps) error {
	_, err := br.ReadBits8(8) // nal header, 0x67
	if err != nil {
		return nazaerrors.Wrap(err)
	}
	if sps.ProfileIdc, err = br.ReadBits8(8); err != nil {
		return nazaerrors.Wrap(err)
	}
	if sps.ConstraintSet0Flag, err = br.ReadBits8(1); err != nil {
		return nazaerrors.Wrap(err)
	}
	if sps.ConstraintSet1Flag, err = br.ReadBits8(1); err != nil {
		return nazaerrors.Wrap(err)
	}
	if sps.ConstraintSet2Flag, err = br.ReadBits8(1); err != nil {
		return nazaerrors.Wrap(err)
	}
	if _, err = br.ReadBits8(5); err != nil {
		return nazaerrors.Wrap(err)
	}
	if sps.LevelIdc, err = br.ReadBits8(8); err != nil {
		return nazaerrors.Wrap(err)
	}
	if sps.SpsId, err = br.ReadGolomb(); err != nil {
		return nazaerrors.Wrap(err)
	}
	if sps.SpsId >= 32 {
		return nazaerrors.Wrap(base.ErrAvc)
	}
	return nil
}

func parseSpsBeta(br *nazabits.BitReader, sps *Sps) error {
	var err error

	switch sps.ProfileIdc {
	case 100, 110, 122, 244, 44, 83, 86, 118, 128:
		if sps.ChromaFormatIdc, err = br.ReadGolomb(); err != nil {
			return nazaerrors.Wrap(err)
		}
		if sps.ChromaFormatIdc > 3 {
			return nazaerrors.Wrap(base.ErrAvc)
		}
		if sps.ChromaFormatIdc == 3 {
			if sps.ResidualColorTransformFlag, err = br.ReadBits8(1); err != nil {
				return nazaerrors.Wrap(err)
			}
		}
		if sps.BitDepthLuma, err = br.ReadGolomb(); err != nil {
			return nazaerrors.Wrap(err)
		}
		sps.BitDepthLuma += 8
		if sps.BitDepthChroma, err = br.ReadGolomb(); err != nil {
			return nazaerrors.Wrap(err)
		}
		sps.BitDepthChroma += 8
		if sps.TransFormBypass, err = br.ReadBits8(1); err != nil {
			return nazaerrors.Wrap(err)
		}
		flag, err := br.ReadBits8(1)
		if err != nil {
			return nazaerrors.Wrap(err)
		}
		if flag == 1 {
			// TODO(chef): 解析scaling matrix，目前遇到时放弃解析宽高
			return nazaerrors.Wrap(base.ErrAvc)
		}
	default:
		sps.ChromaFormatIdc = 1
		sps.BitDepthLuma = 8
		sps.BitDepthChroma = 8
	}

	if sps.Log2MaxFrameNumMinus4, err = br.ReadGolomb(); err != nil {
		return nazaerrors.Wrap(err)
	}
	if sps.Log2MaxFrameNumMinus4 > 12 {
		return nazaerrors.Wrap(base.ErrAvc)
	}
	if sps.PicOrderCntType, err = br.ReadGolomb(); err != nil {
		return nazaerrors.Wrap(err)
	}
	switch sps.PicOrderCntType {
	case 0:
		if sps.Log2MaxPicOrderCntLsb, err = br.ReadGolomb(); err != nil {
			return nazaerrors.Wrap(err)
		}
		sps.Log2MaxPicOrderCntLsb += 4
	case 2:
		// noop
	default:
		nazalog.Debugf("not impl yet. sps.PicOrderCntType=%d", sps.PicOrderCntType)
		return nazaerrors.Wrap(base.ErrAvc)
	}

	if sps.NumRefFrames, err = br.ReadGolomb(); err != nil {
		return nazaerrors.Wrap(err)
	}
	if sps.GapsInFrameNumValueAllowedFlag, err = br.ReadBits8(1); err != nil {
		return nazaerrors.Wrap(err)
	}
	if sps.PicWidthInMbsMinusOne, err = br.ReadGolomb(); err != nil {
		return nazaerrors.Wrap(err)
	}
	if sps.PicHeightInMapUnitsMinusOne, err = br.ReadGolomb(); err != nil {
		return nazaerrors.Wrap(err)
	}
	if sps.FrameMbsOnlyFlag, err = br.ReadBits8(1); err != nil {
		return nazaerrors.Wrap(err)
	}
	if sps.FrameMbsOnlyFlag == 0 {
		if sps.MbAdaptiveFrameFieldFlag, err = br.ReadBits8(1); err != nil {
			return nazaerrors.Wrap(err)
		}
	}
	if sps.Direct8X8InferenceFlag, err = br.ReadBits8(1); err != nil {
		return nazaerrors.Wrap(err)
	}
	if sps.FrameCroppingFlag, err = br.ReadBits8(1); err != nil {
		return nazaerrors.Wrap(err)
	}
	if sps.FrameCroppingFlag == 1 {
		if sps.FrameCropLeftOffset, err = br.ReadGolomb(); err != nil {
			return nazaerrors.Wrap(err)
		}
		if sps.FrameCropRightOffset, err = br.ReadGolomb(); err != nil {
			return nazaerrors.Wrap(err)
		}
		if sps.FrameCropTopOffset, err = br.ReadGolomb(); err != nil {
			return nazaerrors.Wrap(err)
		}
		if sps.FrameCropBottomOffset, err = br.ReadGolomb(); err != nil {
			return nazaerrors.Wrap(err)
		}
	}
	return nil
}
