// Copyright 2019, Chef.  All rights reserved.
// https://github.com/q191201771/lalrelay
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package rtmp

import "github.com/q191201771/lalrelay/pkg/base"

var Log = base.Log

// 一些更专业的配置项，暂时只在该源码文件中配置，不提供外部配置接口
var (
	readBufSize               = 4096 // session 读缓冲的大小
	wChanSize                 = 1024 // session 发送数据时，channel 的大小
	windowAcknowledgementSize = 5000000
	peerBandwidth             = 5000000
	fpsEstimateDurationMs     = 5000 // 通过前5秒的视频帧数估算帧率
	bitrateIntervalSec        = 5    // 计算带宽的周期
)
