// Copyright 2020, Chef.  All rights reserved.
// https://github.com/q191201771/lalrelay
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package logic

import (
	"os"

	"github.com/q191201771/lalrelay/pkg/base"
)

// Entry 加载配置，启动所有服务，阻塞直到收到退出信号或者服务出错
func Entry(confFile string) error {
	config := LoadConfAndInitLog(confFile)
	base.LogoutStartInfo()

	sm, err := NewServerManager(config)
	if err != nil {
		Log.Errorf("create server manager failed. err=%+v", err)
		return err
	}

	go base.RunSignalHandler(func(s os.Signal) {
		sm.Dispose()
	})

	err = sm.RunLoop()
	Log.Infof("server manager loop break. err=%+v", err)
	return err
}
