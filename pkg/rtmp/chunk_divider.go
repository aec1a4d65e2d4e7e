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
	"github.com/q191201771/naza/pkg/bele"
)

// Message2Chunks 将message切割成chunk，返回连续的一块内存
//
// 第一个chunk使用fmt0，后续chunk使用fmt3。时间戳大于等于0xFFFFFF时，每个chunk的basic header之后都携带扩展时间戳
//
// @param message: 待打包的message payload
// @param header:  使用其中的 Csid, MsgTypeId, MsgStreamId, TimestampAbs 字段，MsgLen 由`message`的长度决定
func Message2Chunks(message []byte, header *base.RtmpHeader, chunkSize int) []byte {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}

	// 计算chunk数量
	numOfChunk := len(message) / chunkSize
	if len(message)%chunkSize != 0 || numOfChunk == 0 {
		numOfChunk++
	}

	var basicHeader [3]byte
	basicLen := writeBasicHeader(basicHeader[:], 0, header.Csid)
	var basic3 [3]byte
	writeBasicHeader(basic3[:], 3, header.Csid)

	hasExt := header.TimestampAbs >= maxTimestampInMessageHeader
	extLen := 0
	if hasExt {
		extLen = 4
	}

	out := make([]byte, basicLen+11+extLen+(numOfChunk-1)*(basicLen+extLen)+len(message))
	index := 0

	// fmt0
	index += copy(out, basicHeader[:basicLen])
	if hasExt {
		bele.BePutUint24(out[index:], maxTimestampInMessageHeader)
	} else {
		bele.BePutUint24(out[index:], header.TimestampAbs)
	}
	bele.BePutUint24(out[index+3:], uint32(len(message)))
	out[index+6] = header.MsgTypeId
	bele.LePutUint32(out[index+7:], uint32(header.MsgStreamId))
	index += 11

	for i := 0; i < numOfChunk; i++ {
		if i != 0 {
			index += copy(out[index:], basic3[:basicLen])
		}
		if hasExt {
			bele.BePutUint32(out[index:], header.TimestampAbs)
			index += 4
		}
		end := (i + 1) * chunkSize
		if end > len(message) {
			end = len(message)
		}
		index += copy(out[index:], message[i*chunkSize:end])
	}
	return out[:index]
}

func writeBasicHeader(out []byte, fmt uint8, csid int) int {
	switch {
	case csid >= 64+256:
		out[0] = fmt<<6 | 1
		out[1] = uint8((csid - 64) & 0xFF)
		out[2] = uint8(((csid - 64) >> 8) & 0xFF)
		return 3
	case csid >= 64:
		out[0] = fmt << 6
		out[1] = uint8(csid - 64)
		return 2
	}
	out[0] = fmt<<6 | uint8(csid)
	return 1
}
