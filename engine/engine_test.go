package engine

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pithecene-io/scenesync/types"
	"github.com/pithecene-io/scenesync/wire"
)

// testPeer is a single-connection viewer stand-in.
type testPeer struct {
	t        *testing.T
	listener net.Listener
	conn     net.Conn
	accepted chan struct{}
	dec      *wire.FrameDecoder
}

func newTestPeer(t *testing.T) *testPeer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	p := &testPeer{t: t, listener: ln, accepted: make(chan struct{})}
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			p.conn = conn
			p.dec = wire.NewFrameDecoder(conn, wire.WithMaxPayload(wire.MaxOutboundPayload))
		}
		close(p.accepted)
	}()
	t.Cleanup(func() {
		_ = ln.Close()
		<-p.accepted
		if p.conn != nil {
			_ = p.conn.Close()
		}
	})
	return p
}

func (p *testPeer) port() int {
	return p.listener.Addr().(*net.TCPAddr).Port
}

func (p *testPeer) waitAccepted() {
	p.t.Helper()
	select {
	case <-p.accepted:
		require.NotNil(p.t, p.conn, "peer did not accept a connection")
	case <-time.After(2 * time.Second):
		p.t.Fatal("peer did not accept a connection")
	}
}

// readScene reads one frame and decodes it as a scene_update.
func (p *testPeer) readScene() *types.SceneUpdate {
	p.t.Helper()
	p.waitAccepted()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	payload, err := p.dec.ReadFrame(ctx)
	require.NoError(p.t, err)
	msg, err := wire.DecodeMessage(payload)
	require.NoError(p.t, err)
	scene, ok := msg.(*types.SceneUpdate)
	require.True(p.t, ok, "expected scene_update, got %T", msg)
	return scene
}

// send writes a message as a frame, optionally compressed.
func (p *testPeer) send(msg any, compress bool) {
	p.t.Helper()
	p.waitAccepted()
	text, err := wire.EncodeMessage(msg)
	require.NoError(p.t, err)
	if compress {
		text, err = wire.Compress(text)
		require.NoError(p.t, err)
	}
	frame, err := wire.EncodeFrame(text)
	require.NoError(p.t, err)
	_, err = p.conn.Write(frame)
	require.NoError(p.t, err)
}

func newTestEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	if cfg.ReceiveTimeout == 0 {
		cfg.ReceiveTimeout = 50 * time.Millisecond
	}
	e, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(e.Stop)
	return e
}

func triangle() *types.SceneSnapshot {
	return &types.SceneSnapshot{Objects: []types.MeshObject{{
		Name:      "Tri",
		Vertices:  []types.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}},
		Faces:     [][3]int{{0, 1, 2}},
		Transform: types.Identity(),
	}}}
}

func TestPublish_OneTriangle(t *testing.T) {
	peer := newTestPeer(t)
	e := newTestEngine(t, Config{})
	require.NoError(t, e.Start(context.Background(), "127.0.0.1", peer.port()))

	outcome, err := e.Publish(context.Background(), triangle())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSent, outcome)

	scene := peer.readScene()
	require.Len(t, scene.Objects, 1)
	obj := scene.Objects[0]
	assert.Equal(t, "Tri", obj.Name)
	assert.Equal(t, [][3]int{{0, 1, 2}}, obj.Faces)
	assert.Len(t, obj.Vertices, 3)
	assert.Nil(t, obj.UVs)
	require.Len(t, obj.Materials, 1)
	assert.Equal(t, types.Vec3{0.8, 0.8, 0.8}, obj.Materials[0].Color)
	assert.Equal(t, "Default", obj.Materials[0].Name)
	assert.Empty(t, scene.Lights)
	assert.Equal(t, types.DefaultWorld(), scene.World)

	stats := e.Stats()
	assert.Equal(t, int64(1), stats.PacketsSent)
	assert.Greater(t, stats.BytesSent, int64(wire.LengthPrefixSize))
	assert.Greater(t, stats.UncompressedBytes, int64(0))
}

func TestPublish_IdenticalSceneSkipped(t *testing.T) {
	peer := newTestPeer(t)
	e := newTestEngine(t, Config{})
	require.NoError(t, e.Start(context.Background(), "127.0.0.1", peer.port()))

	outcome, err := e.Publish(context.Background(), triangle())
	require.NoError(t, err)
	require.Equal(t, OutcomeSent, outcome)
	before := e.Stats()

	outcome, err = e.Publish(context.Background(), triangle())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkippedUnchanged, outcome)

	after := e.Stats()
	assert.Equal(t, before.PacketsSent, after.PacketsSent)
	assert.Equal(t, before.BytesSent, after.BytesSent)
	assert.Equal(t, int64(1), after.SkippedUnchanged)

	moved := triangle()
	moved.Objects[0].Name = "Moved"
	outcome, err = e.Publish(context.Background(), moved)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSent, outcome)

	assert.Equal(t, "Tri", peer.readScene().Objects[0].Name)
	assert.Equal(t, "Moved", peer.readScene().Objects[0].Name, "skipped publish must not have written a frame")
}

func TestPublish_SkippedSceneLeavesTextureStats(t *testing.T) {
	peer := newTestPeer(t)
	e := newTestEngine(t, Config{})
	require.NoError(t, e.Start(context.Background(), "127.0.0.1", peer.port()))

	textured := func(name string) *types.SceneSnapshot {
		snap := triangle()
		snap.Objects[0].Name = name
		snap.Objects[0].Materials = []*types.Material{{
			Name: "Wood",
			Textures: map[types.TextureChannel]types.TextureSource{
				types.ChannelDiffuse: {Name: "wood.png", Packed: []byte("png-bytes")},
			},
		}}
		return snap
	}

	outcome, err := e.Publish(context.Background(), textured("Tri"))
	require.NoError(t, err)
	require.Equal(t, OutcomeSent, outcome)
	before := e.Stats()
	assert.Equal(t, int64(1), before.TexturesSent)
	assert.Equal(t, int64(0), before.TexturesCached)

	outcome, err = e.Publish(context.Background(), textured("Tri"))
	require.NoError(t, err)
	require.Equal(t, OutcomeSkippedUnchanged, outcome)

	after := e.Stats()
	assert.Equal(t, before.PacketsSent, after.PacketsSent)
	assert.Equal(t, before.BytesSent, after.BytesSent)
	assert.Equal(t, before.TexturesSent, after.TexturesSent)
	assert.Equal(t, before.TexturesCached, after.TexturesCached)
	assert.Equal(t, int64(1), after.SkippedUnchanged)

	outcome, err = e.Publish(context.Background(), textured("Moved"))
	require.NoError(t, err)
	require.Equal(t, OutcomeSent, outcome)
	assert.Equal(t, int64(1), e.Stats().TexturesCached)
}

// brokenWriter fails every write.
type brokenWriter struct{}

func (brokenWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

// stalledWriter accepts nothing and reports no error.
type stalledWriter struct{}

func (stalledWriter) Write([]byte) (int, error) { return 0, nil }

// swapWriter replaces the session's frame writer and returns the old one.
func swapWriter(t *testing.T, e *Engine, w *wire.FrameWriter) *wire.FrameWriter {
	t.Helper()
	s := e.current()
	require.NotNil(t, s)
	e.publishMu.Lock()
	defer e.publishMu.Unlock()
	old := s.writer
	s.writer = w
	return old
}

func TestPublish_SendFailureKeepsSession(t *testing.T) {
	tests := []struct {
		name      string
		w         io.Writer
		wantShort bool
	}{
		{"write error", brokenWriter{}, false},
		{"short write", stalledWriter{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			peer := newTestPeer(t)
			e := newTestEngine(t, Config{})
			require.NoError(t, e.Start(context.Background(), "127.0.0.1", peer.port()))
			healthy := swapWriter(t, e, wire.NewFrameWriter(tt.w, 0, 0))

			outcome, err := e.Publish(context.Background(), triangle())
			assert.Equal(t, OutcomeFailed, outcome)
			var sendErr *wire.SendError
			require.ErrorAs(t, err, &sendErr)
			assert.Equal(t, tt.wantShort, sendErr.Short())

			stats := e.Stats()
			assert.Equal(t, int64(1), stats.Errors)
			assert.Equal(t, int64(0), stats.PacketsSent)
			assert.True(t, e.Running(), "a failed send must not end the session")

			swapWriter(t, e, healthy)
			outcome, err = e.Publish(context.Background(), triangle())
			require.NoError(t, err)
			assert.Equal(t, OutcomeSent, outcome, "the identical scene must be resent after a failure")
			assert.Equal(t, "Tri", peer.readScene().Objects[0].Name)
			assert.Equal(t, int64(1), e.Stats().PacketsSent)
		})
	}
}

func TestPublish_FrameTooLarge(t *testing.T) {
	peer := newTestPeer(t)
	e := newTestEngine(t, Config{MaxPayload: 16})
	require.NoError(t, e.Start(context.Background(), "127.0.0.1", peer.port()))

	outcome, err := e.Publish(context.Background(), triangle())
	assert.Equal(t, OutcomeFailed, outcome)
	assert.True(t, IsFrameTooLarge(err), "expected frame too large, got %v", err)
	assert.Equal(t, int64(1), e.Stats().Errors)
	assert.Equal(t, int64(0), e.Stats().PacketsSent)
	assert.True(t, e.Running())
}

func TestInbound_TransformAppliedOnce(t *testing.T) {
	peer := newTestPeer(t)
	e := newTestEngine(t, Config{})
	require.NoError(t, e.Start(context.Background(), "127.0.0.1", peer.port()))

	peer.send(map[string]any{
		"type":       "transform_update",
		"objectName": "Box",
		"position":   []float64{1, 2, 3},
		"rotation":   []float64{0, 0, 1.5},
		"timestamp":  1700000000000,
	}, false)

	var task TransformTask
	select {
	case task = <-e.Tasks():
	case <-time.After(2 * time.Second):
		t.Fatal("no transform task received")
	}
	assert.Equal(t, "Box", task.Update.ObjectName)
	assert.Equal(t, types.Vec3{1, 1, 1}, task.Update.Scale)
	assert.Equal(t, e.SessionID(), task.SessionID)

	var applied []*types.TransformUpdate
	applier := ApplierFunc(func(u *types.TransformUpdate) error {
		assert.Equal(t, "applying", e.GateState().String(), "gate must be armed during apply")
		applied = append(applied, u)
		return nil
	})
	require.NoError(t, e.Apply(task, applier))
	assert.Equal(t, 0, e.ApplyPending(applier))
	require.Len(t, applied, 1)
	assert.Equal(t, types.Vec3{1, 2, 3}, applied[0].Position)

	state, ok := e.LastTransform()
	require.True(t, ok)
	assert.Equal(t, int64(1), state.TotalReceived)
	assert.Equal(t, "Box", state.ObjectName)
	assert.Equal(t, float64(1700000000000), state.Timestamp)
	assert.Equal(t, int64(1), e.Stats().FramesReceived)

	// The apply just closed the gate.
	outcome, err := e.Publish(context.Background(), triangle())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkippedGate, outcome)
	assert.Equal(t, int64(1), e.Stats().SkippedGate)
}

func TestInbound_CompressedAndMalformedFrames(t *testing.T) {
	peer := newTestPeer(t)
	e := newTestEngine(t, Config{})
	require.NoError(t, e.Start(context.Background(), "127.0.0.1", peer.port()))

	peer.waitAccepted()
	_, err := peer.conn.Write(mustFrame(t, []byte("not json at all")))
	require.NoError(t, err)
	peer.send(map[string]any{"type": "selection_changed"}, false)
	peer.send(map[string]any{"type": "transform_update", "objectName": "Sphere"}, true)

	select {
	case task := <-e.Tasks():
		assert.Equal(t, "Sphere", task.Update.ObjectName)
	case <-time.After(2 * time.Second):
		t.Fatal("no transform task received")
	}

	stats := e.Stats()
	assert.Equal(t, int64(3), stats.FramesReceived)
	assert.Equal(t, int64(1), stats.DecodeErrors)
	assert.True(t, e.Running(), "protocol errors must not end the session")
}

func TestInbound_OversizedFrameKeepsConnection(t *testing.T) {
	peer := newTestPeer(t)
	e := newTestEngine(t, Config{})
	require.NoError(t, e.Start(context.Background(), "127.0.0.1", peer.port()))
	peer.waitAccepted()

	oversize := make([]byte, wire.LengthPrefixSize+wire.MaxInboundPayload+1)
	oversize[0], oversize[1], oversize[2], oversize[3] = 0x00, 0xA0, 0x00, 0x01
	next := mustFrame(t, []byte(`{"type":"transform_update","objectName":"After"}`))
	go func() {
		if _, err := peer.conn.Write(oversize); err != nil {
			return
		}
		_, _ = peer.conn.Write(next)
	}()

	select {
	case task := <-e.Tasks():
		assert.Equal(t, "After", task.Update.ObjectName)
	case <-time.After(5 * time.Second):
		t.Fatal("no transform task after oversized frame")
	}
	assert.Equal(t, int64(1), e.Stats().Errors)
	assert.True(t, e.Running())
}

func TestSession_PeerCloseEndsSession(t *testing.T) {
	peer := newTestPeer(t)
	ended := make(chan SessionSummary, 1)
	e := newTestEngine(t, Config{OnSessionEnd: func(s SessionSummary) { ended <- s }})
	require.NoError(t, e.Start(context.Background(), "127.0.0.1", peer.port()))
	id := e.SessionID()

	peer.waitAccepted()
	require.NoError(t, peer.conn.Close())

	select {
	case s := <-ended:
		assert.Equal(t, ReasonPeerClosed, s.Reason)
		assert.Equal(t, id, s.ID)
		assert.ErrorIs(t, s.Err, wire.ErrConnectionClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("session did not end after peer close")
	}
	assert.False(t, e.Running())

	_, err := e.Publish(context.Background(), triangle())
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestStartStop(t *testing.T) {
	t.Run("stop without start is a no-op", func(t *testing.T) {
		e := newTestEngine(t, Config{})
		e.Stop()
		e.Stop()
		assert.False(t, e.Running())
	})

	t.Run("double start", func(t *testing.T) {
		peer := newTestPeer(t)
		e := newTestEngine(t, Config{})
		require.NoError(t, e.Start(context.Background(), "127.0.0.1", peer.port()))
		err := e.Start(context.Background(), "127.0.0.1", peer.port())
		assert.ErrorIs(t, err, ErrAlreadyRunning)
	})

	t.Run("connect failure", func(t *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		port := ln.Addr().(*net.TCPAddr).Port
		require.NoError(t, ln.Close())

		e := newTestEngine(t, Config{ConnectTimeout: time.Second})
		err = e.Start(context.Background(), "127.0.0.1", port)
		var connectErr *ConnectError
		require.True(t, errors.As(err, &connectErr), "expected *ConnectError, got %v", err)
		assert.False(t, e.Running())
	})

	t.Run("stop then restart resets stats", func(t *testing.T) {
		var mu sync.Mutex
		var summaries []SessionSummary
		e := newTestEngine(t, Config{OnSessionEnd: func(s SessionSummary) {
			mu.Lock()
			summaries = append(summaries, s)
			mu.Unlock()
		}})

		first := newTestPeer(t)
		require.NoError(t, e.Start(context.Background(), "127.0.0.1", first.port()))
		_, err := e.Publish(context.Background(), triangle())
		require.NoError(t, err)
		first.readScene()

		start := time.Now()
		e.Stop()
		assert.Less(t, time.Since(start), 2*time.Second)
		assert.False(t, e.Running())
		assert.Empty(t, e.SessionID())

		mu.Lock()
		require.Len(t, summaries, 1)
		assert.Equal(t, ReasonStopped, summaries[0].Reason)
		assert.Equal(t, int64(1), summaries[0].Stats.PacketsSent)
		mu.Unlock()

		second := newTestPeer(t)
		require.NoError(t, e.Start(context.Background(), "127.0.0.1", second.port()))
		assert.Equal(t, int64(0), e.Stats().PacketsSent)

		outcome, err := e.Publish(context.Background(), triangle())
		require.NoError(t, err)
		assert.Equal(t, OutcomeSent, outcome, "a new session must resend the scene")
		second.readScene()
	})
}

func TestOnSceneChange_Throttled(t *testing.T) {
	peer := newTestPeer(t)
	e := newTestEngine(t, Config{SceneFrequency: 1})
	require.NoError(t, e.Start(context.Background(), "127.0.0.1", peer.port()))

	calls := 0
	producer := SnapshotFunc(func(context.Context) (*types.SceneSnapshot, error) {
		calls++
		return triangle(), nil
	})

	outcome, err := e.OnSceneChange(context.Background(), producer)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSent, outcome)

	outcome, err = e.OnSceneChange(context.Background(), producer)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkippedThrottled, outcome)
	assert.Equal(t, 1, calls, "throttled trigger must not capture the scene")
	assert.Equal(t, int64(1), e.Stats().SkippedThrottled)

	outcome, err = e.OnFrameChange(context.Background(), producer)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkippedUnchanged, outcome, "frame trigger has its own throttle")

	e.SetSceneFrequency(1)
	_, err = e.OnSceneChange(context.Background(), SnapshotFunc(func(context.Context) (*types.SceneSnapshot, error) {
		return nil, errors.New("host busy")
	}))
	assert.Error(t, err)
}

func TestTriggers_NotRunning(t *testing.T) {
	e := newTestEngine(t, Config{})
	_, err := e.OnSceneChange(context.Background(), SnapshotFunc(func(context.Context) (*types.SceneSnapshot, error) {
		t.Fatal("producer must not be called")
		return nil, nil
	}))
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestApply_ErrorStillEntersCooldown(t *testing.T) {
	e := newTestEngine(t, Config{})
	task := TransformTask{Update: types.NewTransformUpdate()}
	task.Update.ObjectName = "Ghost"

	err := e.Apply(task, ApplierFunc(func(*types.TransformUpdate) error { return ErrObjectNotFound }))
	assert.ErrorIs(t, err, ErrObjectNotFound)
	assert.Equal(t, "cooldown", e.GateState().String())
}

func TestApply_PanicReleasesGate(t *testing.T) {
	e := newTestEngine(t, Config{})
	task := TransformTask{Update: types.NewTransformUpdate()}
	task.Update.ObjectName = "Box"

	assert.Panics(t, func() {
		_ = e.Apply(task, ApplierFunc(func(*types.TransformUpdate) error { panic("host failure") }))
	})
	assert.Equal(t, "cooldown", e.GateState().String())
}

func TestStart_DialDoesNotBlockReaders(t *testing.T) {
	peer := newTestPeer(t)
	e := newTestEngine(t, Config{})

	release := make(chan struct{})
	dialing := make(chan struct{}, 2)
	e.dial = func(ctx context.Context, network, addr string) (net.Conn, error) {
		dialing <- struct{}{}
		<-release
		var d net.Dialer
		return d.DialContext(ctx, network, addr)
	}

	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() { errs <- e.Start(context.Background(), "127.0.0.1", peer.port()) }()
	}
	for i := 0; i < 2; i++ {
		select {
		case <-dialing:
		case <-time.After(2 * time.Second):
			t.Fatal("Start did not reach the dial")
		}
	}

	running := make(chan bool, 1)
	go func() { running <- e.Running() }()
	select {
	case r := <-running:
		assert.False(t, r)
	case <-time.After(time.Second):
		t.Fatal("Running blocked while Start was dialing")
	}
	assert.Empty(t, e.SessionID())

	close(release)
	var started, rejected int
	for i := 0; i < 2; i++ {
		err := <-errs
		switch {
		case err == nil:
			started++
		case errors.Is(err, ErrAlreadyRunning):
			rejected++
		default:
			t.Errorf("unexpected Start error: %v", err)
		}
	}
	assert.Equal(t, 1, started)
	assert.Equal(t, 1, rejected)
	assert.True(t, e.Running())
}

func mustFrame(t *testing.T, payload []byte) []byte {
	t.Helper()
	frame, err := wire.EncodeFrame(payload)
	require.NoError(t, err)
	return frame
}
