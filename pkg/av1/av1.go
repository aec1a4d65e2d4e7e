// Copyright 2023, Chef.  All rights reserved.
// https://github.com/q191201771/lalrelay
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

// Package av1 解析 AV1CodecConfigurationRecord(av1C) 以及其中携带的 sequence header obu
//
// https://aomediacodec.github.io/av1-isobmff/#av1codecconfigurationbox-section
package av1

import (
	"fmt"

	"github.com/q191201771/lalrelay/pkg/base"
	"github.com/q191201771/naza/pkg/nazabits"
	"github.com/q191201771/naza/pkg/nazaerrors"
)

const (
	ObuTypeSequenceHeader uint8 = 1
)

type Context struct {
	Profile uint8
	Level   uint8 // seq_level_idx_0
	Tier    uint8
	Width   uint32
	Height  uint32
}

// ParseSeqHeader
//
// @param payload: 包含5字节rtmp头
func ParseSeqHeader(payload []byte) (ctx Context, err error) {
	if len(payload) < 9 {
		return ctx, base.NewErrShortBuffer(9, len(payload))
	}
	av1c := payload[5:]
	if av1c[0]&0x80 == 0 {
		return ctx, fmt.Errorf("%w. invalid av1C marker. b=%x", base.ErrAv1, av1c[0])
	}
	ctx.Profile = av1c[1] >> 5
	ctx.Level = av1c[1] & 0x1F
	ctx.Tier = av1c[2] >> 7

	// configOBUs 可以为空，此时没有宽高信息
	obus := av1c[4:]
	for len(obus) > 0 {
		obuType, obuPayload, obuLen, err := readObu(obus)
		if err != nil {
			return ctx, err
		}
		if obuType == ObuTypeSequenceHeader {
			if err = parseSequenceHeaderObu(obuPayload, &ctx); err != nil {
				return ctx, err
			}
			break
		}
		obus = obus[obuLen:]
	}
	return ctx, nil
}

// LevelName e.g. seq_level_idx 8 -> "4.0"
func LevelName(level uint8) string {
	if level == 31 {
		return "max"
	}
	return fmt.Sprintf("%d.%d", 2+(level>>2), level&3)
}

func ProfileName(profile uint8) string {
	switch profile {
	case 0:
		return "Main"
	case 1:
		return "High"
	case 2:
		return "Professional"
	}
	return ""
}

// readObu 返回obu类型，payload，以及整个obu占用的字节数
func readObu(b []byte) (obuType uint8, payload []byte, total int, err error) {
	header := b[0]
	obuType = (header >> 3) & 0x0F
	extensionFlag := (header >> 2) & 0x01
	hasSizeField := (header >> 1) & 0x01

	index := 1
	if extensionFlag == 1 {
		index++
	}
	if len(b) < index {
		return 0, nil, 0, base.NewErrShortBuffer(index, len(b))
	}
	if hasSizeField == 0 {
		return obuType, b[index:], len(b), nil
	}

	size, n, err := readLeb128(b[index:])
	if err != nil {
		return 0, nil, 0, err
	}
	index += n
	if len(b) < index+int(size) {
		return 0, nil, 0, base.NewErrShortBuffer(index+int(size), len(b))
	}
	return obuType, b[index : index+int(size)], index + int(size), nil
}

func readLeb128(b []byte) (value uint64, n int, err error) {
	for i := 0; i < 8; i++ {
		if i >= len(b) {
			return 0, 0, base.NewErrShortBuffer(i+1, len(b))
		}
		value |= uint64(b[i]&0x7F) << (uint(i) * 7)
		if b[i]&0x80 == 0 {
			return value, i + 1, nil
		}
	}
	return 0, 0, fmt.Errorf("%w. leb128 too long", base.ErrAv1)
}

// AV1 5.5.1 General sequence header OBU syntax
//
// 只解析到max_frame_width_minus_1/max_frame_height_minus_1
func parseSequenceHeaderObu(b []byte, ctx *Context) error {
	br := nazabits.NewBitReader(b)

	seqProfile, err := br.ReadBits8(3)
	if err != nil {
		return nazaerrors.Wrap(err)
	}
	ctx.Profile = seqProfile
	if err = br.SkipBits(1); err != nil { // still_picture
		return nazaerrors.Wrap(err)
	}
	reducedStillPictureHeader, err := br.ReadBits8(1)
	if err != nil {
		return nazaerrors.Wrap(err)
	}
	if reducedStillPictureHeader == 1 {
		if ctx.Level, err = br.ReadBits8(5); err != nil {
			return nazaerrors.Wrap(err)
		}
	} else {
		timingInfoPresentFlag, err := br.ReadBits8(1)
		if err != nil {
			return nazaerrors.Wrap(err)
		}
		if timingInfoPresentFlag == 1 {
			// 带timing_info的情况，宽高只能从后续帧中获取，这里直接放弃
			return nil
		}
		initialDisplayDelayPresentFlag, err := br.ReadBits8(1)
		if err != nil {
			return nazaerrors.Wrap(err)
		}
		operatingPointsCntMinus1, err := br.ReadBits8(5)
		if err != nil {
			return nazaerrors.Wrap(err)
		}
		for i := 0; i <= int(operatingPointsCntMinus1); i++ {
			if err = br.SkipBits(12); err != nil { // operating_point_idc
				return nazaerrors.Wrap(err)
			}
			seqLevelIdx, err := br.ReadBits8(5)
			if err != nil {
				return nazaerrors.Wrap(err)
			}
			var seqTier uint8
			if seqLevelIdx > 7 {
				if seqTier, err = br.ReadBits8(1); err != nil {
					return nazaerrors.Wrap(err)
				}
			}
			if i == 0 {
				ctx.Level = seqLevelIdx
				ctx.Tier = seqTier
			}
			if initialDisplayDelayPresentFlag == 1 {
				flag, err := br.ReadBits8(1)
				if err != nil {
					return nazaerrors.Wrap(err)
				}
				if flag == 1 {
					if err = br.SkipBits(4); err != nil {
						return nazaerrors.Wrap(err)
					}
				}
			}
		}
	}

	frameWidthBitsMinus1, err := br.ReadBits8(4)
	if err != nil {
		return nazaerrors.Wrap(err)
	}
	frameHeightBitsMinus1, err := br.ReadBits8(4)
	if err != nil {
		return nazaerrors.Wrap(err)
	}
	w, err := br.ReadBits32(uint(frameWidthBitsMinus1) + 1)
	if err != nil {
		return nazaerrors.Wrap(err)
	}
	h, err := br.ReadBits32(uint(frameHeightBitsMinus1) + 1)
	if err != nil {
		return nazaerrors.Wrap(err)
	}
	ctx.Width = w + 1
	ctx.Height = h + 1
	return nil
}
