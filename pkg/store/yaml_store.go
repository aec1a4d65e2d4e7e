// Copyright 2023, Chef.  All rights reserved.
// https://github.com/q191201771/lalrelay
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/q191201771/lalrelay/pkg/base"
	"github.com/q191201771/lalrelay/pkg/rtmp"
	"gopkg.in/yaml.v3"
)

var _ rtmp.IStreamStore = &YamlStore{}

// yamlFile 文件格式
//
//	streams:
//	  - name: a1b2c3d4e5
//	    title: test
//	    token_hash: 9f86d0...
//	    status: pending
//	    create_time: "2023-01-01 00:00:00.000"
type yamlFile struct {
	Streams []rtmp.StreamRecord `yaml:"streams"`
}

// YamlStore 使用yaml文件持久化的流信息存储
//
// 启动时读取整个文件，每次修改后整个文件重写
type YamlStore struct {
	filename string
	mem      *MemoryStore
}

// NewYamlStore 文件不存在时从空开始，第一次修改时创建
func NewYamlStore(filename string) (*YamlStore, error) {
	s := &YamlStore{
		filename: filename,
		mem:      NewMemoryStore(),
	}
	records, err := loadYamlFile(filename)
	if err != nil {
		return nil, err
	}
	for _, r := range records {
		if err := s.mem.createLocked(r); err != nil {
			return nil, fmt.Errorf("%w. file=%s", err, filename)
		}
	}
	base.Log.Infof("load yaml stream store. file=%s, streams=%d", filename, len(records))
	return s, nil
}

func (s *YamlStore) Find(ctx context.Context, name string) (rtmp.StreamRecord, error) {
	return s.mem.Find(ctx, name)
}

func (s *YamlStore) Create(ctx context.Context, record rtmp.StreamRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mem.mu.Lock()
	defer s.mem.mu.Unlock()
	if err := s.mem.createLocked(record); err != nil {
		return err
	}
	if err := s.saveLocked(); err != nil {
		delete(s.mem.records, record.Name)
		return err
	}
	return nil
}

func (s *YamlStore) UpdateStatus(ctx context.Context, name string, status rtmp.StreamStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mem.mu.Lock()
	defer s.mem.mu.Unlock()
	prev, ok := s.mem.records[name]
	if err := s.mem.updateStatusLocked(name, status); err != nil {
		return err
	}
	if err := s.saveLocked(); err != nil {
		if ok {
			s.mem.records[name] = prev
		}
		return err
	}
	return nil
}

func (s *YamlStore) List() []rtmp.StreamRecord {
	return s.mem.List()
}

// saveLocked 先写临时文件再rename，避免写一半的文件
func (s *YamlStore) saveLocked() error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(yamlFile{Streams: s.mem.listLocked()}); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}

	if dir := filepath.Dir(s.filename); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	tmp := s.filename + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.filename)
}

func loadYamlFile(filename string) ([]rtmp.StreamRecord, error) {
	raw, err := os.ReadFile(filename)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var f yamlFile
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && err != io.EOF {
		return nil, fmt.Errorf("%w. file=%s, err=%v", base.ErrConfigFormat, filename, err)
	}
	return f.Streams, nil
}
