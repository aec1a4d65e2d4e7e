// Copyright 2021, Chef.  All rights reserved.
// https://github.com/q191201771/lalrelay
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base

import "github.com/q191201771/naza/pkg/nazalog"

var Log = nazalog.GetGlobalLogger()

// ----- rtmp --------------------
var (
	// RtmpServerSessionWriteTimeoutMs rtmp server session，发送数据超时
	RtmpServerSessionWriteTimeoutMs = 10000
)
