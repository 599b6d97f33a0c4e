// Package store 保存对展示层发布的只读状态：整体快照按 tick 整体替换，
// 日志行经有界缓冲流出，均不阻塞交易循环。
package store

import (
	"sync"
	"time"
)

// Snapshot 每个 tick 整体替换的组合状态。
type Snapshot struct {
	Status     string         `json:"status"`
	Tick       int            `json:"tick"`
	Positions  map[string]int `json:"positions"`
	OpenVolume map[string]int `json:"openVolume"`
	Net        int            `json:"net"`
	Gross      int            `json:"gross"`
	PNL        float64        `json:"pnl"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

// LogEntry 带类别标签的人类可读日志行。
// 类别：info / open / reject / error / crush / trim。
type LogEntry struct {
	Time     time.Time `json:"time"`
	Category string    `json:"category"`
	Message  string    `json:"message"`
}

// Store 单写者状态持有器。交易循环只整体发布，展示层只读。
type Store struct {
	mu   sync.RWMutex
	snap Snapshot

	logs chan LogEntry
}

func New(logBuffer int) *Store {
	if logBuffer <= 0 {
		logBuffer = 512
	}
	return &Store{logs: make(chan LogEntry, logBuffer)}
}

// Publish 整体替换快照。
func (s *Store) Publish(snap Snapshot) {
	snap.UpdatedAt = time.Now()
	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()
}

// Latest 返回最近一次发布的快照副本（map 深拷贝，读者可安全持有）。
func (s *Store) Latest() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.snap
	out.Positions = copyMap(s.snap.Positions)
	out.OpenVolume = copyMap(s.snap.OpenVolume)
	return out
}

// Append 追加一条日志行；缓冲满时丢弃最旧的一条，从不阻塞写方。
func (s *Store) Append(category, message string) {
	entry := LogEntry{Time: time.Now(), Category: category, Message: message}
	for {
		select {
		case s.logs <- entry:
			return
		default:
			select {
			case <-s.logs:
			default:
			}
		}
	}
}

// DrainLogs 取走至多 max 条待展示日志。
func (s *Store) DrainLogs(max int) []LogEntry {
	if max <= 0 {
		max = 64
	}
	var out []LogEntry
	for len(out) < max {
		select {
		case e := <-s.logs:
			out = append(out, e)
		default:
			return out
		}
	}
	return out
}

func copyMap(m map[string]int) map[string]int {
	if m == nil {
		return nil
	}
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
