// Copyright 2020, Chef.  All rights reserved.
// https://github.com/q191201771/lalrelay
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package hevc

import (
	"encoding/hex"

	"github.com/q191201771/lalrelay/pkg/avc"
	"github.com/q191201771/lalrelay/pkg/base"
	"github.com/q191201771/naza/pkg/bele"
	"github.com/q191201771/naza/pkg/nazabits"
	"github.com/q191201771/naza/pkg/nazabytes"
	"github.com/q191201771/naza/pkg/nazaerrors"
)

// Context 从hvcC中解析出的视频信息
//
// Level 为 general_level_idc，展示时除以30，比如93表示3.1
type Context struct {
	Profile uint8
	Level   uint8
	Width   uint32
	Height  uint32
}

// hvcC头部定长部分，不包含rtmp的5字节头
const hvcCFixedLen = 23

// ParseSeqHeader 解析 rtmp hevc sequence header
//
// @param payload: 包含5字节rtmp头，兼容 0x1c 0x00 以及 enhanced rtmp 转换后的格式
//
// ISO_IEC_14496-15 8.3.3.1.2 HEVCDecoderConfigurationRecord
func ParseSeqHeader(payload []byte) (ctx Context, err error) {
	if len(payload) < 5+hvcCFixedLen {
		return ctx, base.NewErrShortBuffer(5+hvcCFixedLen, len(payload))
	}
	hvcc := payload[5:]

	ctx.Profile = hvcc[1] & 0x1F
	ctx.Level = hvcc[12]

	sps, err := findNalu(hvcc, NaluTypeSps)
	if err != nil {
		return ctx, err
	}
	if err = ParseSps(sps, &ctx); err != nil {
		Log.Warnf("parse hevc sps failed. err=%+v, sps=%s", err, hex.Dump(nazabytes.Prefix(sps, 128)))
		return ctx, err
	}
	return ctx, nil
}

// ParseSps 只解析宽高
//
// @param sps: 包含2字节nal header
func ParseSps(sps []byte, ctx *Context) error {
	rbsp := avc.RemoveEmulationPrevention(sps)
	br := nazabits.NewBitReader(rbsp)

	if err := br.SkipBits(16); err != nil { // nal header
		return nazaerrors.Wrap(err)
	}
	if err := br.SkipBits(4); err != nil { // sps_video_parameter_set_id
		return nazaerrors.Wrap(err)
	}
	maxSubLayersMinus1, err := br.ReadBits8(3)
	if err != nil {
		return nazaerrors.Wrap(err)
	}
	if err = br.SkipBits(1); err != nil { // sps_temporal_id_nesting_flag
		return nazaerrors.Wrap(err)
	}
	if err = skipProfileTierLevel(&br, maxSubLayersMinus1); err != nil {
		return err
	}
	if _, err = br.ReadGolomb(); err != nil { // sps_seq_parameter_set_id
		return nazaerrors.Wrap(err)
	}
	chromaFormatIdc, err := br.ReadGolomb()
	if err != nil {
		return nazaerrors.Wrap(err)
	}
	if chromaFormatIdc > 3 {
		return nazaerrors.Wrap(base.ErrHevc)
	}
	if chromaFormatIdc == 3 {
		if err = br.SkipBits(1); err != nil { // separate_colour_plane_flag
			return nazaerrors.Wrap(err)
		}
	}
	width, err := br.ReadGolomb()
	if err != nil {
		return nazaerrors.Wrap(err)
	}
	height, err := br.ReadGolomb()
	if err != nil {
		return nazaerrors.Wrap(err)
	}
	conformanceWindowFlag, err := br.ReadBits8(1)
	if err != nil {
		return nazaerrors.Wrap(err)
	}
	if conformanceWindowFlag == 1 {
		var offsets [4]uint32 // left right top bottom
		for i := range offsets {
			if offsets[i], err = br.ReadGolomb(); err != nil {
				return nazaerrors.Wrap(err)
			}
		}
		subWidthC, subHeightC := uint32(1), uint32(1)
		switch chromaFormatIdc {
		case 1:
			subWidthC, subHeightC = 2, 2
		case 2:
			subWidthC = 2
		}
		width -= subWidthC * (offsets[0] + offsets[1])
		height -= subHeightC * (offsets[2] + offsets[3])
	}
	ctx.Width = width
	ctx.Height = height
	return nil
}

// ProfileName e.g. "Main"
func ProfileName(profile uint8) string {
	switch profile {
	case 1:
		return "Main"
	case 2:
		return "Main 10"
	case 3:
		return "Main Still Picture"
	case 4:
		return "Rext"
	}
	return ""
}

func findNalu(hvcc []byte, naluType uint8) ([]byte, error) {
	numOfArrays := int(hvcc[22])
	index := hvcCFixedLen
	for i := 0; i < numOfArrays; i++ {
		if len(hvcc) < index+3 {
			return nil, base.NewErrShortBuffer(index+3, len(hvcc))
		}
		t := hvcc[index] & 0x3F
		numNalus := int(bele.BeUint16(hvcc[index+1:]))
		index += 3
		for j := 0; j < numNalus; j++ {
			if len(hvcc) < index+2 {
				return nil, base.NewErrShortBuffer(index+2, len(hvcc))
			}
			l := int(bele.BeUint16(hvcc[index:]))
			index += 2
			if len(hvcc) < index+l {
				return nil, base.NewErrShortBuffer(index+l, len(hvcc))
			}
			if t == naluType {
				return hvcc[index : index+l], nil
			}
			index += l
		}
	}
	return nil, base.ErrHevc
}

// H.265 7.3.3 profile_tier_level
func skipProfileTierLevel(br *nazabits.BitReader, maxSubLayersMinus1 uint8) error {
	// general_profile_space ... general_level_idc, 共12字节
	if err := br.SkipBits(96); err != nil {
		return nazaerrors.Wrap(err)
	}

	var profilePresent, levelPresent [8]uint8
	for i := uint8(0); i < maxSubLayersMinus1; i++ {
		var err error
		if profilePresent[i], err = br.ReadBits8(1); err != nil {
			return nazaerrors.Wrap(err)
		}
		if levelPresent[i], err = br.ReadBits8(1); err != nil {
			return nazaerrors.Wrap(err)
		}
	}
	if maxSubLayersMinus1 > 0 {
		for i := maxSubLayersMinus1; i < 8; i++ {
			if err := br.SkipBits(2); err != nil {
				return nazaerrors.Wrap(err)
			}
		}
	}
	for i := uint8(0); i < maxSubLayersMinus1; i++ {
		if profilePresent[i] == 1 {
			if err := br.SkipBits(88); err != nil {
				return nazaerrors.Wrap(err)
			}
		}
		if levelPresent[i] == 1 {
			if err := br.SkipBits(8); err != nil {
				return nazaerrors.Wrap(err)
			}
		}
	}
	return nil
}
