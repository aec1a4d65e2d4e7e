// Copyright 2020, Chef.  All rights reserved.
// https://github.com/q191201771/lalrelay
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package logic

import "github.com/q191201771/lalrelay/pkg/base"

var Log = base.Log

// 计算session带宽的周期
var calcSessionStatIntervalSec uint32 = 5

var (
	notifyMaxTaskLen   = 1024
	notifyTimeoutSec   = 3
	shutdownTimeoutSec = 5
)
