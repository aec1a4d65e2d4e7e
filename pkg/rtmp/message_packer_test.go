// Copyright 2019, Chef.  All rights reserved.
// https://github.com/q191201771/lalrelay
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package rtmp

import (
	"bytes"
	"testing"

	"github.com/q191201771/lalrelay/pkg/base"
	"github.com/q191201771/naza/pkg/assert"
	"github.com/q191201771/naza/pkg/fake"
)

func TestMessagePacker_ControlMessage(t *testing.T) {
	packer := NewMessagePacker()
	out := &bytes.Buffer{}

	_ = packer.WriteAcknowledgement(out, 1)
	assert.Equal(t, []byte{0x02, 0, 0, 0, 0, 0, 0x04, 0x03, 0, 0, 0, 0, 0, 0, 0, 0x01}, out.Bytes())

	out.Reset()
	_ = packer.WriteWinAckSize(out, 5000000)
	assert.Equal(t, []byte{0x02, 0, 0, 0, 0, 0, 0x04, 0x05, 0, 0, 0, 0, 0x00, 0x4c, 0x4b, 0x40}, out.Bytes())

	out.Reset()
	_ = packer.WritePeerBandwidth(out, 5000000, peerBandwidthLimitTypeDynamic)
	assert.Equal(t, []byte{0x02, 0, 0, 0, 0, 0, 0x05, 0x06, 0, 0, 0, 0, 0x00, 0x4c, 0x4b, 0x40, 0x02}, out.Bytes())

	out.Reset()
	_ = packer.WriteChunkSize(out, 4096)
	assert.Equal(t, []byte{0x02, 0, 0, 0, 0, 0, 0x04, 0x01, 0, 0, 0, 0, 0x00, 0x00, 0x10, 0x00}, out.Bytes())

	out.Reset()
	_ = packer.WriteStreamBegin(out, 1)
	assert.Equal(t, []byte{0x02, 0, 0, 0, 0, 0, 0x06, 0x04, 0, 0, 0, 0, 0x00, 0x00, 0, 0, 0, 0x01}, out.Bytes())

	out.Reset()
	_ = packer.WriteStreamEof(out, 1)
	assert.Equal(t, []byte{0x02, 0, 0, 0, 0, 0, 0x06, 0x04, 0, 0, 0, 0, 0x00, 0x01, 0, 0, 0, 0x01}, out.Bytes())

	out.Reset()
	_ = packer.WritePingRequest(out, 0x0a0b0c)
	assert.Equal(t, []byte{0x02, 0x0a, 0x0b, 0x0c, 0, 0, 0x06, 0x04, 0, 0, 0, 0, 0x00, 0x06, 0, 0x0a, 0x0b, 0x0c}, out.Bytes())
}

func TestMessagePacker_Command(t *testing.T) {
	packer := NewMessagePacker()
	out := &bytes.Buffer{}

	var msgs []base.RtmpMsg
	composer := NewChunkComposer()
	decode := func() {
		msgs = nil
		err := composer.Feed(out.Bytes(), func(msg base.RtmpMsg) error {
			msgs = append(msgs, msg.Clone())
			return nil
		})
		assert.Equal(t, nil, err)
		out.Reset()
	}

	// connect result超过默认chunk size，会被切分成多个chunk
	err := packer.WriteConnectResult(out, 1, 0)
	assert.Equal(t, nil, err)
	assert.Equal(t, true, out.Len() > defaultChunkSize)
	decode()
	assert.Equal(t, 1, len(msgs))
	assert.Equal(t, csidOverConnection, msgs[0].Header.Csid)
	assert.Equal(t, base.RtmpTypeIdCommandMessageAmf0, msgs[0].Header.MsgTypeId)
	cmd, err := DecodeAmf0Command(msgs[0].Payload)
	assert.Equal(t, nil, err)
	assert.Equal(t, "_result", cmd.Name)
	assert.Equal(t, float64(1), cmd.TransactionId)
	fmsVer, _ := cmd.ObjectPairs().FindString("fmsVer")
	assert.Equal(t, "FMS/3,0,1,123", fmsVer)
	caps, _ := cmd.ObjectPairs().FindNumber("capabilities")
	assert.Equal(t, float64(31), caps)
	info := cmd.Args[0].(ObjectPairArray)
	code, _ := info.FindString("code")
	assert.Equal(t, NetConnectionConnectSuccess, code)
	oe, _ := info.FindNumber("objectEncoding")
	assert.Equal(t, float64(0), oe)

	_ = packer.WriteCreateStreamResult(out, 4, 1)
	decode()
	cmd, err = DecodeAmf0Command(msgs[0].Payload)
	assert.Equal(t, nil, err)
	assert.Equal(t, float64(4), cmd.TransactionId)
	assert.Equal(t, nil, cmd.CommandObject)
	sid, _ := cmd.ArgNumber(0)
	assert.Equal(t, float64(1), sid)

	_ = packer.WriteOnStatus(out, 1, StatusLevelStatus, NetStreamPublishStart, "live/test110 is now published.")
	decode()
	assert.Equal(t, 1, msgs[0].Header.MsgStreamId)
	cmd, err = DecodeAmf0Command(msgs[0].Payload)
	assert.Equal(t, nil, err)
	assert.Equal(t, "onStatus", cmd.Name)
	assert.Equal(t, float64(0), cmd.TransactionId)
	info = cmd.Args[0].(ObjectPairArray)
	code, _ = info.FindString("code")
	assert.Equal(t, NetStreamPublishStart, code)
	desc, _ := info.FindString("description")
	assert.Equal(t, "live/test110 is now published.", desc)

	_ = packer.WriteSampleAccess(out, 1)
	decode()
	assert.Equal(t, csidData, msgs[0].Header.Csid)
	assert.Equal(t, base.RtmpTypeIdMetadata, msgs[0].Header.MsgTypeId)
	data, err := DecodeAmf0Data(msgs[0].Payload)
	assert.Equal(t, nil, err)
	assert.Equal(t, "|RtmpSampleAccess", data.Name)
	assert.Equal(t, []interface{}{false, false}, data.Values)
}

func TestMessagePacker_SetChunkSize(t *testing.T) {
	packer := NewMessagePacker()
	assert.Equal(t, defaultChunkSize, packer.ChunkSize())
	packer.SetChunkSize(4096)
	out := &bytes.Buffer{}
	_ = packer.WriteConnectResult(out, 1, 3)
	// 一个chunk即可容纳
	assert.Equal(t, 12+int(bytesToMsgLen(out.Bytes())), out.Len())

	mw := fake.NewWriter(fake.WriterTypeReturnError)
	assert.IsNotNil(t, packer.WriteChunkSize(mw, 4096))
}

func bytesToMsgLen(b []byte) uint32 {
	return uint32(b[4])<<16 | uint32(b[5])<<8 | uint32(b[6])
}
