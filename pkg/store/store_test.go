// Copyright 2023, Chef.  All rights reserved.
// https://github.com/q191201771/lalrelay
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/q191201771/lalrelay/pkg/base"
	"github.com/q191201771/lalrelay/pkg/rtmp"
	"github.com/q191201771/naza/pkg/assert"
)

func testStoreCommon(t *testing.T, s IListableStore) {
	ctx := context.Background()

	_, err := s.Find(ctx, "a1")
	assert.Equal(t, true, errors.Is(err, base.ErrStreamNotFound))

	err = s.Create(ctx, rtmp.StreamRecord{Name: "b1", Title: "b", TokenHash: rtmp.HashToken("tb")})
	assert.Equal(t, nil, err)
	err = s.Create(ctx, rtmp.StreamRecord{Name: "a1", Title: "a", TokenHash: rtmp.HashToken("ta")})
	assert.Equal(t, nil, err)
	err = s.Create(ctx, rtmp.StreamRecord{Name: "a1"})
	assert.Equal(t, true, errors.Is(err, base.ErrStreamExist))
	err = s.Create(ctx, rtmp.StreamRecord{})
	assert.Equal(t, true, errors.Is(err, base.ErrStreamName))

	r, err := s.Find(ctx, "a1")
	assert.Equal(t, nil, err)
	assert.Equal(t, "a", r.Title)
	assert.Equal(t, rtmp.StreamStatusPending, r.Status)
	assert.Equal(t, true, rtmp.VerifyToken("ta", r.TokenHash))

	assert.Equal(t, nil, s.UpdateStatus(ctx, "a1", rtmp.StreamStatusPublishing))
	r, _ = s.Find(ctx, "a1")
	assert.Equal(t, rtmp.StreamStatusPublishing, r.Status)
	err = s.UpdateStatus(ctx, "c1", rtmp.StreamStatusClosed)
	assert.Equal(t, true, errors.Is(err, base.ErrStreamNotFound))

	list := s.List()
	assert.Equal(t, 2, len(list))
	assert.Equal(t, "a1", list[0].Name)
	assert.Equal(t, "b1", list[1].Name)

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	_, err = s.Find(cctx, "a1")
	assert.Equal(t, true, errors.Is(err, context.Canceled))
	err = s.UpdateStatus(cctx, "a1", rtmp.StreamStatusClosed)
	assert.Equal(t, true, errors.Is(err, context.Canceled))
}

func TestMemoryStore(t *testing.T) {
	testStoreCommon(t, NewMemoryStore())

	s := NewMemoryStore(rtmp.StreamRecord{Name: "x"})
	_, err := s.Find(context.Background(), "x")
	assert.Equal(t, nil, err)
}

func TestYamlStore(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "sub", "streams.yaml")

	s, err := NewYamlStore(filename)
	assert.Equal(t, nil, err)
	assert.Equal(t, 0, len(s.List()))
	testStoreCommon(t, s)

	// 重新加载后数据一致
	s2, err := NewYamlStore(filename)
	assert.Equal(t, nil, err)
	assert.Equal(t, s.List(), s2.List())
	r, err := s2.Find(context.Background(), "a1")
	assert.Equal(t, nil, err)
	assert.Equal(t, rtmp.StreamStatusPublishing, r.Status)

	_, err = os.Stat(filename + ".tmp")
	assert.Equal(t, true, os.IsNotExist(err))
}

func TestYamlStore_Load(t *testing.T) {
	dir := t.TempDir()

	filename := filepath.Join(dir, "ok.yaml")
	content := `streams:
  - name: a1
    title: hello
    token_hash: ` + rtmp.HashToken("t") + `
    status: closed
`
	assert.Equal(t, nil, os.WriteFile(filename, []byte(content), 0644))
	s, err := NewYamlStore(filename)
	assert.Equal(t, nil, err)
	r, err := s.Find(context.Background(), "a1")
	assert.Equal(t, nil, err)
	assert.Equal(t, "hello", r.Title)
	assert.Equal(t, rtmp.StreamStatusClosed, r.Status)

	// 空文件
	filename = filepath.Join(dir, "empty.yaml")
	assert.Equal(t, nil, os.WriteFile(filename, nil, 0644))
	s, err = NewYamlStore(filename)
	assert.Equal(t, nil, err)
	assert.Equal(t, 0, len(s.List()))

	// 未知字段
	filename = filepath.Join(dir, "unknown.yaml")
	assert.Equal(t, nil, os.WriteFile(filename, []byte("streams:\n  - name: a1\n    foo: bar\n"), 0644))
	_, err = NewYamlStore(filename)
	assert.Equal(t, true, errors.Is(err, base.ErrConfigFormat))

	// 非法状态
	filename = filepath.Join(dir, "status.yaml")
	assert.Equal(t, nil, os.WriteFile(filename, []byte("streams:\n  - name: a1\n    status: xxx\n"), 0644))
	_, err = NewYamlStore(filename)
	assert.Equal(t, true, errors.Is(err, base.ErrConfigFormat))

	// 重复
	filename = filepath.Join(dir, "dup.yaml")
	assert.Equal(t, nil, os.WriteFile(filename, []byte("streams:\n  - name: a1\n  - name: a1\n"), 0644))
	_, err = NewYamlStore(filename)
	assert.Equal(t, true, errors.Is(err, base.ErrStreamExist))
}

func TestNew(t *testing.T) {
	s, err := New("", "")
	assert.Equal(t, nil, err)
	_, ok := s.(*MemoryStore)
	assert.Equal(t, true, ok)

	_, err = New(TypeYaml, "")
	assert.Equal(t, true, errors.Is(err, base.ErrConfigFormat))
	_, err = New("redis", "")
	assert.Equal(t, true, errors.Is(err, base.ErrConfigFormat))

	s, err = New(TypeYaml, filepath.Join(t.TempDir(), "s.yaml"))
	assert.Equal(t, nil, err)
	_, ok = s.(*YamlStore)
	assert.Equal(t, true, ok)
}
