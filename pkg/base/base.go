// Copyright 2020, Chef.  All rights reserved.
// https://github.com/q191201771/lalrelay
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

// Package base 提供被其他多个package依赖的基础内容，自身不依赖任何package
package base

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/q191201771/naza/pkg/bininfo"
)

var startTime string

var readableTimeLayout = "2006-01-02 15:04:05.999 Z0700 MST"

// ReadableNowTime 当前时间，可读字符串形式
func ReadableNowTime() string {
	return time.Now().Format(readableTimeLayout)
}

func ParseReadableTime(t string) (time.Time, error) {
	return time.Parse(readableTimeLayout, t)
}

func StartTime() string {
	return startTime
}

func GetWd() string {
	dir, _ := os.Getwd()
	return dir
}

func LogoutStartInfo() {
	Log.Infof("     start: %s", startTime)
	Log.Infof("        wd: %s", GetWd())
	Log.Infof("      args: %s", strings.Join(os.Args, " "))
	Log.Infof("   bininfo: %s", bininfo.StringifySingleLine())
	Log.Infof("   version: %s", LalFullInfo)
	Log.Infof("    github: %s", LalGithubSite)
}

// WrapReadConfigFile 读取配置文件，命令行没有指定时依次尝试默认路径
func WrapReadConfigFile(theConfigFile string, defaultConfigFiles []string, hookBeforeExit func()) (string, []byte) {
	if theConfigFile == "" {
		Log.Warnf("config file did not specify in the command line, try to load it in the usual path.")
		for _, dcf := range defaultConfigFiles {
			fi, err := os.Stat(dcf)
			if err == nil && fi.Size() > 0 && !fi.IsDir() {
				Log.Warnf("%s exist. using it as config file.", dcf)
				theConfigFile = dcf
				break
			} else {
				Log.Warnf("%s not exist.", dcf)
			}
		}

		if theConfigFile == "" {
			flag.Usage()
			if hookBeforeExit != nil {
				hookBeforeExit()
			}
			OsExitAndWaitPressIfWindows(1)
		}
	}

	rawContent, err := os.ReadFile(theConfigFile)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "read conf file failed. file=%s err=%+v", theConfigFile, err)
		OsExitAndWaitPressIfWindows(1)
	}
	return theConfigFile, rawContent
}

func init() {
	startTime = ReadableNowTime()
}
