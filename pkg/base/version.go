// Copyright 2020, Chef.  All rights reserved.
// https://github.com/q191201771/lalrelay
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base

import "strings"

// LalVersion 整个工程的版本号。注意，该变量由外部脚本修改维护，不要手动在代码中修改
const LalVersion = "v0.1.0"

// ConfVersion 配置文件的版本号
const ConfVersion = "v0.1.0"

// HttpApiVersion HTTP-API功能的版本号
const HttpApiVersion = "v0.1.0"

// HttpNotifyVersion HTTP-Notify功能的版本号
const HttpNotifyVersion = "v0.1.0"

var (
	LalLibraryName = "lalrelay"
	LalGithubRepo  = "github.com/q191201771/lalrelay"
	LalGithubSite  = "https://github.com/q191201771/lalrelay"

	// LalFullInfo e.g. lalrelay v0.1.0 (github.com/q191201771/lalrelay)
	LalFullInfo = LalLibraryName + " " + LalVersion + " (" + LalGithubRepo + ")"

	// LalVersionDot e.g. 0.1.0
	LalVersionDot string

	// LalVersionComma e.g. 0,1,0
	LalVersionComma string
)

var (
	// LalRtmpConnectResultVersion 植入rtmp server中的connect result信令中
	// 注意，第一个object中的fmsVer我们保持通用公认的值，版本植入在第二个object中
	// e.g. 0,1,0
	LalRtmpConnectResultVersion string

	// LalRtmpHandshakeWaterMark 植入rtmp握手S1的随机数部分
	LalRtmpHandshakeWaterMark string

	// LalHttpApiServer e.g. lalrelay0.1.0
	LalHttpApiServer string
)

func init() {
	LalVersionDot = strings.TrimPrefix(LalVersion, "v")
	LalVersionComma = strings.Replace(LalVersionDot, ".", ",", -1)

	LalRtmpConnectResultVersion = LalVersionComma
	LalRtmpHandshakeWaterMark = LalFullInfo
	LalHttpApiServer = LalLibraryName + LalVersionDot
}
