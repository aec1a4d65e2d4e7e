// Copyright 2020, Chef.  All rights reserved.
// https://github.com/q191201771/lalrelay
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base

import (
	"math/rand"
	"sync"
	"time"

	"github.com/q191201771/naza/pkg/unique"
)

const (
	UkPreRtmpServerSession = "RTMPPUBSUB" // 两种可能，pub或者sub
	UkPreRtmpServer        = "RTMPSERVER"
	UkPreHttpApiServer     = "HTTPAPI"
)

// SessionIdAlphabet 对外暴露的session id所使用的字符集
const SessionIdAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWKYZ0123456789"

// SessionIdLength 对外暴露的session id长度
const SessionIdLength = 15

func GenUkRtmpServerSession() string {
	return siUkRtmpServerSession.GenUniqueKey()
}

func GenUkRtmpServer() string {
	return siUkRtmpServer.GenUniqueKey()
}

// GenRandomString 从 SessionIdAlphabet 中随机选取字符。唯一性由调用方保证，见 rtmp.Registry
func GenRandomString(n int) string {
	b := make([]byte, n)
	randMutex.Lock()
	for i := range b {
		b[i] = SessionIdAlphabet[randSource.Intn(len(SessionIdAlphabet))]
	}
	randMutex.Unlock()
	return string(b)
}

var (
	siUkRtmpServerSession *unique.SingleGenerator
	siUkRtmpServer        *unique.SingleGenerator

	randMutex  sync.Mutex
	randSource *rand.Rand
)

func init() {
	siUkRtmpServerSession = unique.NewSingleGenerator(UkPreRtmpServerSession)
	siUkRtmpServer = unique.NewSingleGenerator(UkPreRtmpServer)

	randSource = rand.New(rand.NewSource(time.Now().UnixNano()))
}
