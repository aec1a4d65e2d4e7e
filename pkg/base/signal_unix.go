// Copyright 2020, Chef.  All rights reserved.
// https://github.com/q191201771/lalrelay
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

//go:build linux || darwin || netbsd || freebsd || openbsd || dragonfly
// +build linux darwin netbsd freebsd openbsd dragonfly

package base

import (
	"os"
	"os/signal"
	"syscall"
)

// RunSignalHandler 监听退出信号(SIGINT, SIGTERM)以及SIGUSR1, SIGUSR2，收到后回调
func RunSignalHandler(cb func(s os.Signal)) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGUSR2)
	s := <-c
	Log.Infof("recv signal. s=%+v", s)
	cb(s)
}
