// Copyright 2023, Chef.  All rights reserved.
// https://github.com/q191201771/lalrelay
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

// Package store 提供 rtmp.IStreamStore 的实现
package store

import (
	"fmt"

	"github.com/q191201771/lalrelay/pkg/base"
	"github.com/q191201771/lalrelay/pkg/rtmp"
)

const (
	TypeMemory = "memory"
	TypeYaml   = "yaml"
)

// IListableStore 可以列出所有流的store，http api使用
type IListableStore interface {
	rtmp.IStreamStore
	List() []rtmp.StreamRecord
}

// New 根据配置的类型创建store
//
// @param filename: 只有yaml类型使用
func New(t string, filename string) (IListableStore, error) {
	switch t {
	case "", TypeMemory:
		return NewMemoryStore(), nil
	case TypeYaml:
		if filename == "" {
			return nil, fmt.Errorf("%w. yaml store without file", base.ErrConfigFormat)
		}
		return NewYamlStore(filename)
	}
	return nil, fmt.Errorf("%w. unknown store type=%s", base.ErrConfigFormat, t)
}
