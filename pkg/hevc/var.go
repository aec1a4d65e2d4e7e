// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lalrelay
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package hevc

import "github.com/q191201771/naza/pkg/nazalog"

var Log = nazalog.GetGlobalLogger()

var (
	NaluTypeVps uint8 = 32 // 0x20
	NaluTypeSps uint8 = 33 // 0x21
	NaluTypePps uint8 = 34 // 0x22
)
