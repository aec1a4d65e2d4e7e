// Copyright 2020, Chef.  All rights reserved.
// https://github.com/q191201771/lalrelay
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base

import (
	"os"
	"os/signal"
)

func RunSignalHandler(cb func(s os.Signal)) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	s := <-c
	Log.Infof("recv signal. s=%+v", s)
	cb(s)
}
