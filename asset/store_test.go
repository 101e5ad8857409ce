package asset

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/pithecene-io/scenesync/types"
)

// fakeS3 serves objects from memory.
type fakeS3 struct {
	objects map[string][]byte
	mtime   time.Time
	gets    int
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NotFound{}
	}
	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(data))),
		LastModified:  aws.Time(f.mtime),
	}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.gets++
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func TestParseObjectURI(t *testing.T) {
	tests := []struct {
		uri         string
		bucket, key string
		ok          bool
	}{
		{"s3://assets/tex/wood.png", "assets", "tex/wood.png", true},
		{"s3://assets/", "", "", false},
		{"s3:///key", "", "", false},
		{"/local/wood.png", "", "", false},
	}
	for _, tt := range tests {
		bucket, key, ok := ParseObjectURI(tt.uri)
		if bucket != tt.bucket || key != tt.key || ok != tt.ok {
			t.Errorf("ParseObjectURI(%q) = %q, %q, %v; want %q, %q, %v",
				tt.uri, bucket, key, ok, tt.bucket, tt.key, tt.ok)
		}
	}
}

func TestS3Store_ThroughCache(t *testing.T) {
	fake := &fakeS3{
		objects: map[string][]byte{"assets/tex/wood.jpg": []byte("jpeg")},
		mtime:   time.Unix(1700000000, 0),
	}
	stats := &countingStats{}
	c, _ := newTestCache(t, Options{Store: NewS3StoreFromClient(fake), Stats: stats})
	src := &types.TextureSource{Name: "wood.jpg", Path: "s3://assets/tex/wood.jpg"}

	for i := 0; i < 3; i++ {
		a, err := c.Resolve(context.Background(), src)
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if !strings.HasPrefix(a.DataURL, "data:image/jpeg;base64,") {
			t.Errorf("DataURL = %q", a.DataURL)
		}
	}

	if fake.gets != 1 {
		t.Errorf("GetObject called %d times, want 1", fake.gets)
	}
	if stats.sent != 1 || stats.cached != 2 {
		t.Errorf("sent/cached = %d/%d, want 1/2", stats.sent, stats.cached)
	}
	if _, ok := c.entries.Get("s3://assets/tex/wood.jpg|4|1700000000"); !ok {
		t.Error("expected object cache key")
	}
}

func TestS3Store_NotFound(t *testing.T) {
	store := NewS3StoreFromClient(&fakeS3{objects: map[string][]byte{}})

	_, err := store.Stat(context.Background(), "assets", "missing.png")
	if !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("Stat: expected ErrObjectNotFound, got %v", err)
	}
	_, err = store.Get(context.Background(), "assets", "missing.png")
	if !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("Get: expected ErrObjectNotFound, got %v", err)
	}

	c, _ := newTestCache(t, Options{Store: store})
	_, err = c.Resolve(context.Background(), &types.TextureSource{Name: "m.png", Path: "s3://assets/missing.png"})
	if ErrorMarker(err) != MarkerFileNotFound {
		t.Errorf("marker = %q, want %q", ErrorMarker(err), MarkerFileNotFound)
	}
}
