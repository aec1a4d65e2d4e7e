// Copyright 2020, Chef.  All rights reserved.
// https://github.com/q191201771/lalrelay
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base

// SessionEventInfo http notify的公共结构
type SessionEventInfo struct {
	ServerId string `json:"server_id"`
	Event    string `json:"event"`

	SessionId  string            `json:"session_id"`
	RemoteAddr string            `json:"remote_addr"`
	StreamPath string            `json:"stream_path"`
	AppName    string            `json:"app_name"`
	StreamName string            `json:"stream_name"`
	Args       map[string]string `json:"args"`
}

type UpdateInfo struct {
	ServerId string        `json:"server_id"`
	Sessions []StatSession `json:"sessions"`
}
