package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher 监听配置文件变化并热更新策略系数。
// 只有 StrategyConfig 会被重新应用；caps、会话窗口等在进程生命期内不可变。
type Watcher struct {
	path     string
	cooldown time.Duration
	watcher  *fsnotify.Watcher

	mu         sync.Mutex
	lastReload time.Time
	onStrategy func(StrategyConfig)
}

// NewWatcher 创建热更新器；onStrategy 在配置变化且校验通过后回调。
func NewWatcher(path string, cooldown time.Duration, onStrategy func(StrategyConfig)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if cooldown <= 0 {
		cooldown = 5 * time.Second
	}
	return &Watcher{
		path:       path,
		cooldown:   cooldown,
		watcher:    fw,
		onStrategy: onStrategy,
	}, nil
}

// Start 开始监听；随 ctx 取消而退出。
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(w.path); err != nil {
		return fmt.Errorf("watch config file: %w", err)
	}
	go w.run(ctx)
	return nil
}

// Close 停止监听。
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func (w *Watcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				w.reload()
			}
		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (w *Watcher) reload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if time.Since(w.lastReload) < w.cooldown {
		return
	}
	cfg, err := Load(w.path)
	if err != nil {
		// 配置暂时无效（编辑中途保存等），保留旧参数
		return
	}
	w.lastReload = time.Now()
	if w.onStrategy != nil {
		w.onStrategy(cfg.Strategy)
	}
}
