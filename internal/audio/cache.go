package audio

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/iabetor/emotts/internal/logger"
)

// stampLayout 定宽时间戳，保证字符串比较与时间先后一致。
const stampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// CacheEntry 缓存索引中的一条记录。
type CacheEntry struct {
	Engine     string `json:"engine"`
	Voice      string `json:"voice"`
	Preview    string `json:"preview"` // 话语前若干字符，便于排查
	Size       int64  `json:"size"`
	CachedAt   string `json:"cached_at"`
	LastPlayed string `json:"last_played"`
}

// ClipCache 把合成结果以 WAV 文件缓存在磁盘上，按最久未使用淘汰。
// 相同的引擎、音色和标记文档会得到相同的音频，重复请求可跳过合成。
type ClipCache struct {
	mu       sync.RWMutex
	cacheDir string
	maxSize  int64 // 字节，0 表示禁用
	index    map[string]*CacheEntry
}

// CacheKey 由合成请求中影响音频的字段计算缓存键。
func CacheKey(parts ...string) string {
	h := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(h[:16])
}

// NewClipCache 创建缓存，maxSizeMB 为 0 时返回禁用状态的缓存。
func NewClipCache(cacheDir string, maxSizeMB int64) (*ClipCache, error) {
	cc := &ClipCache{
		cacheDir: cacheDir,
		index:    make(map[string]*CacheEntry),
	}
	if maxSizeMB <= 0 {
		return cc, nil
	}

	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return nil, fmt.Errorf("[cache] 创建缓存目录失败: %w", err)
	}
	cc.maxSize = maxSizeMB * 1024 * 1024

	if err := cc.loadIndex(); err != nil {
		logger.Warnf("[cache] 加载缓存索引失败（将使用空索引）: %v", err)
	}
	cc.validateIndex()
	return cc, nil
}

// Enabled 返回缓存是否启用。
func (cc *ClipCache) Enabled() bool {
	return cc != nil && cc.maxSize > 0
}

// Lookup 读取缓存的音频，未命中或文件损坏时返回 false。
func (cc *ClipCache) Lookup(key string) (*Clip, bool) {
	if !cc.Enabled() {
		return nil, false
	}

	cc.mu.RLock()
	_, ok := cc.index[key]
	cc.mu.RUnlock()
	if !ok {
		return nil, false
	}

	data, err := os.ReadFile(cc.FilePath(key))
	if err != nil {
		return nil, false
	}
	clip, err := DecodeWAV(data)
	if err != nil {
		logger.Warnf("[cache] 缓存文件损坏，移除: %s: %v", key, err)
		cc.Delete(key)
		return nil, false
	}

	cc.mu.Lock()
	if entry, ok := cc.index[key]; ok {
		entry.LastPlayed = time.Now().Format(stampLayout)
		cc.saveIndexLocked()
	}
	cc.mu.Unlock()
	return clip, true
}

// Store 写入音频文件并更新索引，超过容量时淘汰最久未使用的条目。
func (cc *ClipCache) Store(key string, clip *Clip, entry CacheEntry) error {
	if !cc.Enabled() {
		return nil
	}

	path := cc.FilePath(key)
	tmp := path + ".tmp"
	if err := WriteWAV(tmp, clip); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("[cache] 提交缓存文件失败: %w", err)
	}

	cc.mu.Lock()
	defer cc.mu.Unlock()

	now := time.Now().Format(stampLayout)
	entry.CachedAt = now
	entry.LastPlayed = now
	if info, err := os.Stat(path); err == nil {
		entry.Size = info.Size()
	}
	cc.index[key] = &entry

	if err := cc.saveIndexLocked(); err != nil {
		return fmt.Errorf("[cache] 保存缓存索引失败: %w", err)
	}
	cc.evictLocked()

	logger.Debugf("[cache] 已缓存: %q (%s, %d bytes)", entry.Preview, key, entry.Size)
	return nil
}

// List 返回所有缓存条目，按最近使用倒序。
func (cc *ClipCache) List() []CacheEntry {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	out := make([]CacheEntry, 0, len(cc.index))
	for _, e := range cc.index {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastPlayed > out[j].LastPlayed
	})
	return out
}

// Delete 删除指定条目。
func (cc *ClipCache) Delete(key string) bool {
	cc.mu.Lock()
	defer cc.mu.Unlock()

	if _, ok := cc.index[key]; !ok {
		return false
	}
	if err := os.Remove(cc.FilePath(key)); err != nil && !os.IsNotExist(err) {
		logger.Warnf("[cache] 删除缓存文件失败: %s: %v", key, err)
		return false
	}
	delete(cc.index, key)
	cc.saveIndexLocked()
	return true
}

// FilePath 返回缓存文件的完整路径。
func (cc *ClipCache) FilePath(key string) string {
	return filepath.Join(cc.cacheDir, key+".wav")
}

func (cc *ClipCache) indexPath() string {
	return filepath.Join(cc.cacheDir, "cache_index.json")
}

func (cc *ClipCache) loadIndex() error {
	data, err := os.ReadFile(cc.indexPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return json.Unmarshal(data, &cc.index)
}

// saveIndexLocked 持久化缓存索引（调用方需持有锁）。
func (cc *ClipCache) saveIndexLocked() error {
	data, err := json.MarshalIndent(cc.index, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(cc.indexPath(), data, 0644)
}

// validateIndex 移除本地文件已不存在的条目。
func (cc *ClipCache) validateIndex() {
	cc.mu.Lock()
	defer cc.mu.Unlock()

	removed := 0
	for key := range cc.index {
		if _, err := os.Stat(cc.FilePath(key)); err != nil {
			delete(cc.index, key)
			removed++
		}
	}
	if removed > 0 {
		logger.Infof("[cache] 索引校验：移除 %d 个无效条目", removed)
		cc.saveIndexLocked()
	}
	logger.Infof("[cache] 缓存已加载: %d 条, 目录 %s", len(cc.index), cc.cacheDir)
}

// evictLocked 总大小超限时按 LastPlayed 升序淘汰（调用方需持有锁）。
func (cc *ClipCache) evictLocked() {
	var total int64
	for _, e := range cc.index {
		total += e.Size
	}
	if total <= cc.maxSize {
		return
	}

	keys := make([]string, 0, len(cc.index))
	for k := range cc.index {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return cc.index[keys[i]].LastPlayed < cc.index[keys[j]].LastPlayed
	})

	for _, k := range keys {
		if total <= cc.maxSize {
			break
		}
		if err := os.Remove(cc.FilePath(k)); err != nil && !os.IsNotExist(err) {
			logger.Warnf("[cache] 删除缓存文件失败: %s: %v", k, err)
			continue
		}
		total -= cc.index[k].Size
		logger.Infof("[cache] LRU 淘汰: %q (%s)", cc.index[k].Preview, k)
		delete(cc.index, k)
	}
	cc.saveIndexLocked()
}
