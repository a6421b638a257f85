package media

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/fitlog/backend/internal/config"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

type stubPutter struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (p *stubPutter) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	p.input = params
	if params.Body != nil {
		p.body, _ = io.ReadAll(params.Body)
	}
	if p.err != nil {
		return nil, p.err
	}
	return &s3.PutObjectOutput{}, nil
}

func TestS3StorePutUploadsObject(t *testing.T) {
	putter := &stubPutter{}
	store := newS3Store(putter, config.MediaConfig{Bucket: "fitlog-media", Region: "eu-west-1"})

	url, err := store.Put(context.Background(), "avatars/u1/1.png", "image/png", pngHeader)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if url != "https://fitlog-media.s3.eu-west-1.amazonaws.com/avatars/u1/1.png" {
		t.Fatalf("unexpected url %s", url)
	}
	if *putter.input.Bucket != "fitlog-media" || *putter.input.Key != "avatars/u1/1.png" {
		t.Fatalf("unexpected bucket/key %s/%s", *putter.input.Bucket, *putter.input.Key)
	}
	if *putter.input.ContentType != "image/png" {
		t.Fatalf("unexpected content type %s", *putter.input.ContentType)
	}
	if !bytes.Equal(putter.body, pngHeader) {
		t.Fatalf("unexpected body %v", putter.body)
	}
}

func TestS3StoreUsesPublicBaseURL(t *testing.T) {
	store := newS3Store(&stubPutter{}, config.MediaConfig{Bucket: "b", PublicBaseURL: "https://cdn.example.com/"})
	if got := store.URL("avatars/a.jpg"); got != "https://cdn.example.com/avatars/a.jpg" {
		t.Fatalf("unexpected url %s", got)
	}
}

func TestS3StorePutWrapsFailure(t *testing.T) {
	upstream := errors.New("access denied")
	store := newS3Store(&stubPutter{err: upstream}, config.MediaConfig{Bucket: "b"})
	if _, err := store.Put(context.Background(), "k", "image/png", pngHeader); !errors.Is(err, upstream) {
		t.Fatalf("expected wrapped upstream error, got %v", err)
	}
}

func TestNewS3StoreRequiresBucket(t *testing.T) {
	if _, err := NewS3Store(context.Background(), config.MediaConfig{}); !errors.Is(err, ErrMissingBucket) {
		t.Fatalf("expected missing bucket error, got %v", err)
	}
}

func TestValidateImage(t *testing.T) {
	jpeg := []byte{0xff, 0xd8, 0xff, 0xe0, 0, 0x10, 'J', 'F', 'I', 'F', 0}
	testCases := []struct {
		name    string
		body    []byte
		want    string
		wantErr error
	}{
		{name: "png", body: pngHeader, want: "image/png"},
		{name: "jpeg", body: jpeg, want: "image/jpeg"},
		{name: "empty", body: nil, wantErr: ErrEmpty},
		{name: "gif", body: []byte("GIF89a......"), wantErr: ErrUnsupportedType},
		{name: "text", body: []byte("hello"), wantErr: ErrUnsupportedType},
		{name: "too large", body: append(append([]byte{}, pngHeader...), make([]byte, MaxImageBytes)...), wantErr: ErrTooLarge},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			got, err := ValidateImage(testCase.body)
			if testCase.wantErr != nil {
				if !errors.Is(err, testCase.wantErr) {
					t.Fatalf("expected %v, got %v", testCase.wantErr, err)
				}
				return
			}
			if err != nil || got != testCase.want {
				t.Fatalf("expected %s, got %s (%v)", testCase.want, got, err)
			}
		})
	}
}

func TestAvatarKey(t *testing.T) {
	now := time.Date(2024, time.June, 15, 12, 0, 0, 0, time.UTC)
	if got := AvatarKey("user-1", "image/jpeg", now); got != "avatars/user-1/1718452800000.jpg" {
		t.Fatalf("unexpected key %s", got)
	}
}
