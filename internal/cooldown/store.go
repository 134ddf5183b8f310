package cooldown

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/loykin/svcmon/internal/store"
	"github.com/loykin/svcmon/internal/store/factory"
)

// DefaultPath is the legacy location of the flat cooldown record.
const DefaultPath = "/etc/unmonit_psList.txt"

// DefaultKey names the record inside a blob store.
const DefaultKey = "cooldown"

// Store loads and saves the whole cooldown record.
//
// Load returns empty Entries when no record exists. A record that cannot be
// decoded yields empty Entries together with an error wrapping ErrCorrupt.
// Save with empty Entries removes the record.
type Store interface {
	Load(ctx context.Context) (Entries, error)
	Save(ctx context.Context, e Entries) error
}

// NameValidator is implemented by stores whose encoding restricts which
// process names can be saved.
type NameValidator interface {
	ValidateName(name string) error
}

// Encodable drops from e every name s cannot save and returns the dropped
// names. Stores without a NameValidator accept everything.
func Encodable(s Store, e Entries) []string {
	v, ok := s.(NameValidator)
	if !ok {
		return nil
	}
	var dropped []string
	for _, name := range e.Names() {
		if v.ValidateName(name) != nil {
			delete(e, name)
			dropped = append(dropped, name)
		}
	}
	return dropped
}

// FileStore keeps the record in a single file.
type FileStore struct {
	Path  string
	Codec Codec
}

func (f FileStore) codec() Codec {
	if f.Codec == nil {
		return FlatCodec{}
	}
	return f.Codec
}

func (f FileStore) ValidateName(name string) error { return f.codec().ValidateName(name) }

func (f FileStore) Load(_ context.Context) (Entries, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Entries{}, nil
		}
		return Entries{}, fmt.Errorf("read cooldown record %s: %w", f.Path, err)
	}
	return f.codec().Decode(data)
}

// Save writes through a temporary file and rename so a crash never leaves a
// half-written record behind.
func (f FileStore) Save(_ context.Context, e Entries) error {
	if len(e) == 0 {
		if err := os.Remove(f.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove cooldown record: %w", err)
		}
		return nil
	}
	data, err := f.codec().Encode(e)
	if err != nil {
		return err
	}
	dir := filepath.Dir(f.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cooldown dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.Path)+".*")
	if err != nil {
		return fmt.Errorf("create temp record: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	_ = os.Chmod(tmpName, 0o644)
	if err := os.Rename(tmpName, f.Path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace cooldown record: %w", err)
	}
	return nil
}

// BlobStore keeps the record under one key of a store.Store.
type BlobStore struct {
	Store store.Store
	Key   string
	Codec Codec
}

func (b BlobStore) key() string {
	if b.Key == "" {
		return DefaultKey
	}
	return b.Key
}

func (b BlobStore) codec() Codec {
	if b.Codec == nil {
		return FlatCodec{}
	}
	return b.Codec
}

func (b BlobStore) ValidateName(name string) error { return b.codec().ValidateName(name) }

func (b BlobStore) Load(ctx context.Context) (Entries, error) {
	data, err := b.Store.Get(ctx, b.key())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Entries{}, nil
		}
		return Entries{}, fmt.Errorf("load cooldown record: %w", err)
	}
	return b.codec().Decode(data)
}

func (b BlobStore) Save(ctx context.Context, e Entries) error {
	if len(e) == 0 {
		return b.Store.Delete(ctx, b.key())
	}
	data, err := b.codec().Encode(e)
	if err != nil {
		return err
	}
	return b.Store.Put(ctx, b.key(), data)
}

// Options selects the backend and format of the cooldown record.
type Options struct {
	Path   string // file backend, used when DSN is empty
	DSN    string // sqlite or postgres DSN for the blob backend
	Format string // flat or json
}

// Open builds the configured Store. The returned Closer releases any
// database handle and is never nil.
func Open(ctx context.Context, o Options) (Store, io.Closer, error) {
	codec, err := NewCodec(o.Format)
	if err != nil {
		return nil, nil, err
	}
	if strings.TrimSpace(o.DSN) == "" {
		path := o.Path
		if path == "" {
			path = DefaultPath
		}
		return FileStore{Path: path, Codec: codec}, nopCloser{}, nil
	}
	db, err := factory.NewFromDSN(o.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open cooldown store: %w", err)
	}
	if err := db.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ensure cooldown schema: %w", err)
	}
	return BlobStore{Store: db, Codec: codec}, db, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
