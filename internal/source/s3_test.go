package source

import (
	"context"
	"testing"

	"github.com/icefield/velocube/internal/errors"
)

func TestSplitObjectURL(t *testing.T) {
	tests := []struct {
		name       string
		url        string
		wantBucket string
		wantKey    string
	}{
		{
			name:       "bucket website url",
			url:        "http://its-live-data.s3.amazonaws.com/velocity_image_pair/landsat/v00.0/32628/pair.nc",
			wantBucket: "its-live-data",
			wantKey:    "velocity_image_pair/landsat/v00.0/32628/pair.nc",
		},
		{
			name:       "https variant",
			url:        "https://its-live-data.s3.amazonaws.com/pair.nc",
			wantBucket: "its-live-data",
			wantKey:    "pair.nc",
		},
		{
			name:       "plain bucket and key",
			url:        "its-live-data/velocity_image_pair/pair.nc",
			wantBucket: "its-live-data",
			wantKey:    "velocity_image_pair/pair.nc",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bucket, key, err := splitObjectURL(tt.url)
			if err != nil {
				t.Fatalf("splitObjectURL(%q) error = %v", tt.url, err)
			}
			if bucket != tt.wantBucket || key != tt.wantKey {
				t.Errorf("splitObjectURL(%q) = (%q, %q), want (%q, %q)",
					tt.url, bucket, key, tt.wantBucket, tt.wantKey)
			}
		})
	}
}

func TestSplitObjectURLMalformed(t *testing.T) {
	for _, url := range []string{"", "bucketonly", "http://bucket.s3.amazonaws.com"} {
		if _, _, err := splitObjectURL(url); !errors.Is(err, errors.ErrMalformedIdentifier) {
			t.Errorf("splitObjectURL(%q) error = %v, want ErrMalformedIdentifier", url, err)
		}
	}
}

func TestLocalList(t *testing.T) {
	dir := t.TempDir()
	// No granules yet.
	urls, err := NewLocal(dir).List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(urls) != 0 {
		t.Errorf("List() = %v, want empty", urls)
	}
}
