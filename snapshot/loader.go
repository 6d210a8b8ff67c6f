package snapshot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hupe1980/worklist/blobstore"
	"github.com/hupe1980/worklist/codec"
)

// Extension is appended to the work list name to form the blob name.
const Extension = ".wl"

// Options configures a BlobLoader.
type Options struct {
	// Codec encodes saved snapshots. Default: codec.Default.
	Codec codec.Codec
	// Compression wraps saved snapshots. Default: CompressionNone.
	Compression Compression
}

// BlobLoader loads and saves snapshots in a blobstore.Store.
type BlobLoader struct {
	store blobstore.Store
	opts  Options
}

// NewBlobLoader creates a loader over store.
func NewBlobLoader(store blobstore.Store, optFns ...func(o *Options)) *BlobLoader {
	opts := Options{Codec: codec.Default}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &BlobLoader{store: store, opts: opts}
}

// Load reads and decodes the snapshot of the named work list.
func (l *BlobLoader) Load(ctx context.Context, name string) (*Snapshot, error) {
	data, err := l.store.Get(ctx, name+Extension)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, err
	}

	s, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", name, err)
	}
	if s.Name == "" {
		s.Name = name
	}
	return s, nil
}

// Save encodes s and writes it under s.Name.
func (l *BlobLoader) Save(ctx context.Context, s *Snapshot) error {
	if s.Name == "" {
		return errors.New("snapshot without name")
	}
	data, err := Encode(s, l.opts.Codec, l.opts.Compression)
	if err != nil {
		return err
	}
	return l.store.Put(ctx, s.Name+Extension, data)
}

// List returns the names of all stored snapshots.
func (l *BlobLoader) List(ctx context.Context) ([]string, error) {
	blobs, err := l.store.List(ctx, "")
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(blobs))
	for _, b := range blobs {
		if strings.HasSuffix(b, Extension) {
			names = append(names, strings.TrimSuffix(b, Extension))
		}
	}
	return names, nil
}
