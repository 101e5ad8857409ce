package scenefile

import (
	"context"
	"fmt"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/pithecene-io/scenesync/engine"
	"github.com/pithecene-io/scenesync/types"
)

// Scene is a scene file loaded into memory.
//
// Slices are copied before they are written, so a snapshot handed to the
// engine never changes underneath it. Refresh reloads the file when its size or
// modification time changes; transforms applied since the last load are
// replaced by the file contents.
type Scene struct {
	path   string
	format Format

	mu      sync.Mutex
	snap    *types.SceneSnapshot
	size    int64
	modTime time.Time
	version uint64
}

// Load reads and decodes the scene file at path.
func Load(path string) (*Scene, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	s := &Scene{path: path, format: format}
	if _, err := s.reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the file the scene was loaded from.
func (s *Scene) Path() string {
	return s.path
}

// Version increments on every reload and every applied transform.
func (s *Scene) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Snapshot returns a copy of the current scene.
func (s *Scene) Snapshot(context.Context) (*types.SceneSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *s.snap
	return &cp, nil
}

// Refresh reloads the file if it changed on disk since the last load.
// It reports whether a reload happened.
func (s *Scene) Refresh() (bool, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		return false, fmt.Errorf("stat scene file: %w", err)
	}

	s.mu.Lock()
	unchanged := info.Size() == s.size && info.ModTime().Equal(s.modTime)
	s.mu.Unlock()
	if unchanged {
		return false, nil
	}
	return s.reload()
}

func (s *Scene) reload() (bool, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		return false, fmt.Errorf("stat scene file: %w", err)
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return false, fmt.Errorf("read scene file: %w", err)
	}
	snap, err := Decode(data, s.format)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = snap
	s.size = info.Size()
	s.modTime = info.ModTime()
	s.version++
	return true, nil
}

// ApplyTransform replaces the named object's world matrix with the one
// composed from the update. Lights with a matching name are moved instead
// when no mesh carries that name.
func (s *Scene) ApplyTransform(u *types.TransformUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.snap.Objects {
		if s.snap.Objects[i].Name == u.ObjectName {
			objects := slices.Clone(s.snap.Objects)
			objects[i].Transform = Compose(u.Position, u.Rotation, u.Scale)
			s.snap.Objects = objects
			s.version++
			return nil
		}
	}
	for i := range s.snap.Lights {
		if s.snap.Lights[i].Name == u.ObjectName {
			lights := slices.Clone(s.snap.Lights)
			lights[i].Position = u.Position
			lights[i].Rotation = u.Rotation
			s.snap.Lights = lights
			s.version++
			return nil
		}
	}
	return fmt.Errorf("%w: %q", engine.ErrObjectNotFound, u.ObjectName)
}

var (
	_ engine.Applier          = (*Scene)(nil)
	_ engine.SnapshotProducer = (*Scene)(nil)
)
