package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"path"
	"sort"
	"strings"

	"github.com/newthinker/presetd/internal/core"
	"github.com/newthinker/presetd/internal/storage/blob"
)

const recordExt = ".json"

// BlobStore keeps one JSON document per record in object storage, at
// "{presetPath}/{escaped presetName}.json".
type BlobStore struct {
	storage blob.Storage
}

// NewBlobStore creates a store over storage.
func NewBlobStore(storage blob.Storage) *BlobStore {
	return &BlobStore{storage: storage}
}

func escapePath(presetPath string) string {
	segments := strings.Split(strings.Trim(presetPath, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}

func unescapePath(escaped string) (string, error) {
	segments := strings.Split(escaped, "/")
	for i, s := range segments {
		u, err := url.PathUnescape(s)
		if err != nil {
			return "", err
		}
		segments[i] = u
	}
	return strings.Join(segments, "/"), nil
}

func (b *BlobStore) key(presetPath, presetName string) string {
	return escapePath(presetPath) + "/" + url.PathEscape(presetName) + recordExt
}

func (b *BlobStore) List(ctx context.Context, presetPath string) ([]string, error) {
	dir := escapePath(presetPath)
	keys, err := b.storage.List(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", presetPath, err)
	}

	names := make([]string, 0, len(keys))
	for _, k := range keys {
		if path.Dir(k) != dir || !strings.HasSuffix(k, recordExt) {
			continue
		}
		name, err := url.PathUnescape(strings.TrimSuffix(path.Base(k), recordExt))
		if err != nil {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (b *BlobStore) Load(ctx context.Context, presetPath, presetName string) (core.ParameterSet, error) {
	data, err := b.storage.Read(ctx, b.key(presetPath, presetName))
	if errors.Is(err, blob.ErrNotExist) {
		return core.ParameterSet{}, notFound(presetPath, presetName)
	}
	if err != nil {
		return core.ParameterSet{}, fmt.Errorf("reading %s/%s: %w", presetPath, presetName, err)
	}

	var ps core.ParameterSet
	if err := json.Unmarshal(data, &ps); err != nil {
		return core.ParameterSet{}, fmt.Errorf("decoding %s/%s: %w", presetPath, presetName, err)
	}
	return ps, nil
}

func (b *BlobStore) Save(ctx context.Context, presetPath, presetName string, ps core.ParameterSet) error {
	data, err := json.Marshal(ps)
	if err != nil {
		return fmt.Errorf("encoding %s/%s: %w", presetPath, presetName, err)
	}
	return b.storage.Write(ctx, b.key(presetPath, presetName), data)
}

func (b *BlobStore) Delete(ctx context.Context, presetPath, presetName string) error {
	return b.storage.Delete(ctx, b.key(presetPath, presetName))
}

// Namespaces returns every directory holding at least one record.
func (b *BlobStore) Namespaces(ctx context.Context) ([]string, error) {
	keys, err := b.storage.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("listing namespaces: %w", err)
	}

	seen := make(map[string]struct{})
	var paths []string
	for _, k := range keys {
		if !strings.HasSuffix(k, recordExt) {
			continue
		}
		dir := path.Dir(k)
		if dir == "." {
			continue
		}
		p, err := unescapePath(dir)
		if err != nil {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths, nil
}
