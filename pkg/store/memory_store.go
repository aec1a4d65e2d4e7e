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
	"fmt"
	"sort"
	"sync"

	"github.com/q191201771/lalrelay/pkg/base"
	"github.com/q191201771/lalrelay/pkg/rtmp"
)

var _ rtmp.IStreamStore = &MemoryStore{}

// MemoryStore 进程内的流信息存储，进程退出后丢失
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]rtmp.StreamRecord
}

func NewMemoryStore(records ...rtmp.StreamRecord) *MemoryStore {
	s := &MemoryStore{
		records: make(map[string]rtmp.StreamRecord),
	}
	for _, r := range records {
		s.records[r.Name] = r
	}
	return s
}

func (s *MemoryStore) Find(ctx context.Context, name string) (rtmp.StreamRecord, error) {
	if err := ctx.Err(); err != nil {
		return rtmp.StreamRecord{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[name]
	if !ok {
		return rtmp.StreamRecord{}, fmt.Errorf("%w. name=%s", base.ErrStreamNotFound, name)
	}
	return r, nil
}

func (s *MemoryStore) Create(ctx context.Context, record rtmp.StreamRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked(record)
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, name string, status rtmp.StreamStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateStatusLocked(name, status)
}

// List 按名称排序的所有流
func (s *MemoryStore) List() []rtmp.StreamRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listLocked()
}

func (s *MemoryStore) createLocked(record rtmp.StreamRecord) error {
	if record.Name == "" {
		return fmt.Errorf("%w. empty name", base.ErrStreamName)
	}
	if _, ok := s.records[record.Name]; ok {
		return fmt.Errorf("%w. name=%s", base.ErrStreamExist, record.Name)
	}
	s.records[record.Name] = record
	return nil
}

func (s *MemoryStore) updateStatusLocked(name string, status rtmp.StreamStatus) error {
	r, ok := s.records[name]
	if !ok {
		return fmt.Errorf("%w. name=%s", base.ErrStreamNotFound, name)
	}
	r.Status = status
	s.records[name] = r
	return nil
}

func (s *MemoryStore) listLocked() []rtmp.StreamRecord {
	out := make([]rtmp.StreamRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out
}
