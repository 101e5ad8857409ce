package asset

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/pithecene-io/scenesync/log"
	"github.com/pithecene-io/scenesync/types"
)

// DefaultMaxEntries bounds the number of cached textures.
const DefaultMaxEntries = 512

// relativePrefix marks a path relative to the scene document's directory.
const relativePrefix = "//"

// StatsRecorder receives cache outcomes. *metrics.Collector implements it.
type StatsRecorder interface {
	IncTexturesCached()
	IncTexturesSent()
}

// Options configures a Cache.
type Options struct {
	// MaxEntries bounds the cache; zero uses DefaultMaxEntries.
	MaxEntries int
	// BaseDir resolves "//" document-relative paths. Empty leaves them
	// unresolvable.
	BaseDir string
	// Store serves s3:// sources. Nil makes them fail with a ReadError.
	Store ObjectStore
	// Stats records hits and loads. May be nil.
	Stats StatsRecorder
	// Logger may be nil.
	Logger *log.Logger
}

// Cache maps source keys to encoded textures.
//
// Keys identify content without reading it: packed sources use name and
// length, files use absolute path, size and mtime, and objects use URI,
// size and last-modified. A changed file therefore misses and is re-read.
// The cache survives across sessions and is bounded by LRU eviction.
type Cache struct {
	entries *lru.Cache[string, *TextureAsset]
	store   ObjectStore
	logger  *log.Logger

	mu      sync.RWMutex
	baseDir string
	stats   StatsRecorder

	readFile func(string) ([]byte, error)
	statFile func(string) (fs.FileInfo, error)
}

// NewCache creates a texture cache.
func NewCache(opts Options) (*Cache, error) {
	size := opts.MaxEntries
	if size <= 0 {
		size = DefaultMaxEntries
	}
	entries, err := lru.New[string, *TextureAsset](size)
	if err != nil {
		return nil, fmt.Errorf("create texture cache: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Nop()
	}
	return &Cache{
		entries:  entries,
		store:    opts.Store,
		logger:   logger,
		baseDir:  opts.BaseDir,
		stats:    opts.Stats,
		readFile: os.ReadFile,
		statFile: os.Stat,
	}, nil
}

// SetBaseDir changes the directory used for "//" paths.
func (c *Cache) SetBaseDir(dir string) {
	c.mu.Lock()
	c.baseDir = dir
	c.mu.Unlock()
}

// SetStats changes the stats recorder.
func (c *Cache) SetStats(s StatsRecorder) {
	c.mu.Lock()
	c.stats = s
	c.mu.Unlock()
}

// Len returns the number of cached textures.
func (c *Cache) Len() int {
	return c.entries.Len()
}

// Purge drops every cached texture.
func (c *Cache) Purge() {
	c.entries.Purge()
}

// loader reads the bytes for a resolved source.
type loader func(ctx context.Context) ([]byte, error)

// Resolve returns the encoded texture for src, from cache when the key
// matches a valid entry. A nil source resolves to nil with no error.
//
// Errors:
//   - ErrNoPath: neither packed bytes nor a path
//   - *UnresolvedPathError: "//" path with no base directory
//   - *ReadError: file or object missing or unreadable
func (c *Cache) Resolve(ctx context.Context, src *types.TextureSource) (*TextureAsset, error) {
	return c.resolve(ctx, src, c.currentStats())
}

func (c *Cache) resolve(ctx context.Context, src *types.TextureSource, rec StatsRecorder) (*TextureAsset, error) {
	if src == nil {
		return nil, nil
	}

	key, load, err := c.keyFor(ctx, src)
	if err != nil {
		return nil, err
	}

	if cached, ok := c.entries.Get(key); ok {
		if cached.Valid() {
			if rec != nil {
				rec.IncTexturesCached()
			}
			c.logger.Debug("texture cache hit", map[string]any{"name": cached.Name, "hash": cached.Hash})
			return cached, nil
		}
		c.logger.Warn("discarding invalid texture cache entry", map[string]any{"key": key})
		c.entries.Remove(key)
	}

	data, err := load(ctx)
	if err != nil {
		return nil, err
	}

	a := Encode(assetName(src), data)
	c.entries.Add(key, a)
	if rec != nil {
		rec.IncTexturesSent()
	}
	c.logger.Debug("texture encoded", map[string]any{
		"name":   a.Name,
		"source": baseName(src.Path),
		"size":   a.Size,
		"format": a.Format,
		"hash":   a.Hash,
	})
	return a, nil
}

// keyFor computes the cache key and a loader for src without reading its
// contents.
func (c *Cache) keyFor(ctx context.Context, src *types.TextureSource) (string, loader, error) {
	if src.IsPacked() {
		data := src.Packed
		key := fmt.Sprintf("packed:%s:%d", src.Name, len(data))
		return key, func(context.Context) ([]byte, error) { return data, nil }, nil
	}

	if src.Path == "" {
		return "", nil, ErrNoPath
	}

	if bucket, objKey, ok := ParseObjectURI(src.Path); ok {
		return c.objectKey(ctx, src.Path, bucket, objKey)
	}

	abs, err := c.absPath(src.Path)
	if err != nil {
		return "", nil, err
	}

	info, err := c.statFile(abs)
	if err != nil {
		return "", nil, &ReadError{Path: abs, NotFound: errors.Is(err, fs.ErrNotExist), Err: err}
	}
	if info.IsDir() {
		return "", nil, &ReadError{Path: abs, Err: errors.New("is a directory")}
	}

	key := fmt.Sprintf("%s|%d|%d", abs, info.Size(), info.ModTime().Unix())
	return key, func(context.Context) ([]byte, error) {
		data, err := c.readFile(abs)
		if err != nil {
			return nil, &ReadError{Path: abs, NotFound: errors.Is(err, fs.ErrNotExist), Err: err}
		}
		return data, nil
	}, nil
}

func (c *Cache) objectKey(ctx context.Context, uri, bucket, key string) (string, loader, error) {
	if c.store == nil {
		return "", nil, &ReadError{Path: uri, Err: errors.New("no object store configured")}
	}
	info, err := c.store.Stat(ctx, bucket, key)
	if err != nil {
		return "", nil, &ReadError{Path: uri, NotFound: errors.Is(err, ErrObjectNotFound), Err: err}
	}

	cacheKey := fmt.Sprintf("%s|%d|%d", uri, info.Size, info.ModTime.Unix())
	return cacheKey, func(ctx context.Context) ([]byte, error) {
		data, err := c.store.Get(ctx, bucket, key)
		if err != nil {
			return nil, &ReadError{Path: uri, NotFound: errors.Is(err, ErrObjectNotFound), Err: err}
		}
		return data, nil
	}, nil
}

func (c *Cache) absPath(p string) (string, error) {
	if strings.HasPrefix(p, relativePrefix) {
		c.mu.RLock()
		base := c.baseDir
		c.mu.RUnlock()
		if base == "" {
			return "", &UnresolvedPathError{Path: p}
		}
		return filepath.Join(base, filepath.FromSlash(p[len(relativePrefix):])), nil
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", &ReadError{Path: p, Err: err}
	}
	return abs, nil
}

func (c *Cache) currentStats() StatsRecorder {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

// assetName names the encoded asset, falling back to the file name or the
// packed length when the source is unnamed.
func assetName(src *types.TextureSource) string {
	switch {
	case src.Name != "":
		return src.Name
	case src.IsPacked():
		return fmt.Sprintf("packed-%d", len(src.Packed))
	default:
		return baseName(src.Path)
	}
}
