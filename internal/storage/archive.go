package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/vdonnefort/lisa/internal/errors"
)

// archivePrefix namespaces bundle objects inside the bucket.
const archivePrefix = "bundles"

// BundleArchive stores whole bundle directories in object storage under
// bundles/<trace-id>/<file> and fetches them back through an LRU cache,
// so repeated loads of the same trace hit the local disk.
type BundleArchive struct {
	store       ObjectStorage
	cache       *FetchCache
	cacheDir    string
	concurrency int64
}

// NewBundleArchive creates an archive over the given storage backend.
// cacheDir receives fetched bundles; maxCacheBytes bounds how much of
// it the archive keeps around (0 uses the cache default).
func NewBundleArchive(store ObjectStorage, cacheDir string, maxCacheBytes int64) *BundleArchive {
	return &BundleArchive{
		store:       store,
		cache:       NewFetchCache(maxCacheBytes),
		cacheDir:    cacheDir,
		concurrency: 4,
	}
}

// Push uploads every file of a bundle directory.
func (a *BundleArchive) Push(ctx context.Context, traceID, dir string) error {
	if err := validateTraceID(traceID); err != nil {
		return err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return errors.NewStorageError(errors.CodeUploadFailed,
			fmt.Sprintf("read bundle directory %s", dir), err)
	}

	var files []string
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			files = append(files, entry.Name())
		}
	}
	if len(files) == 0 {
		return errors.NewStorageError(errors.CodeUploadFailed,
			fmt.Sprintf("bundle directory %s has no files", dir), nil)
	}

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		firstErr error
	)
	sem := semaphore.NewWeighted(a.concurrency)

	for _, name := range files {
		if err := sem.Acquire(ctx, 1); err != nil {
			mu.Lock()
			if firstErr == nil {
				firstErr = err
			}
			mu.Unlock()
			break
		}

		wg.Add(1)
		go func(name string) {
			defer sem.Release(1)
			defer wg.Done()

			err := a.store.Upload(ctx,
				filepath.Join(dir, name),
				path.Join(archivePrefix, traceID, name))

			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}(name)
	}
	wg.Wait()

	if firstErr != nil {
		return errors.NewStorageError(errors.CodeUploadFailed,
			fmt.Sprintf("push bundle %s", traceID), firstErr)
	}
	return nil
}

// Fetch downloads a bundle into the cache directory and returns the
// local directory holding it. Cached bundles are returned without
// touching the backend.
func (a *BundleArchive) Fetch(ctx context.Context, traceID string) (string, error) {
	if err := validateTraceID(traceID); err != nil {
		return "", err
	}

	if dir := a.cache.Get(traceID); dir != "" {
		return dir, nil
	}

	prefix := path.Join(archivePrefix, traceID) + "/"
	objects, err := a.store.ListObjects(ctx, prefix)
	if err != nil {
		return "", errors.NewStorageError(errors.CodeDownloadFailed,
			fmt.Sprintf("list bundle %s", traceID), err)
	}
	if len(objects) == 0 {
		return "", errors.NewStorageError(errors.CodeObjectNotFound,
			fmt.Sprintf("bundle %s is not archived", traceID), ErrObjectNotFound)
	}

	destDir := filepath.Join(a.cacheDir, traceID)
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", errors.NewStorageError(errors.CodeDownloadFailed,
			fmt.Sprintf("create fetch directory %s", destDir), err)
	}

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		firstErr error
	)
	sem := semaphore.NewWeighted(a.concurrency)

	for _, obj := range objects {
		if err := sem.Acquire(ctx, 1); err != nil {
			mu.Lock()
			if firstErr == nil {
				firstErr = err
			}
			mu.Unlock()
			break
		}

		wg.Add(1)
		go func(obj string) {
			defer sem.Release(1)
			defer wg.Done()

			err := a.store.Download(ctx, obj,
				filepath.Join(destDir, path.Base(obj)))

			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}(obj)
	}
	wg.Wait()

	if firstErr != nil {
		// A half-fetched bundle must not survive as a cache hit.
		os.RemoveAll(destDir)
		return "", errors.NewStorageError(errors.CodeDownloadFailed,
			fmt.Sprintf("fetch bundle %s", traceID), firstErr)
	}

	a.cache.Put(traceID, destDir)
	return destDir, nil
}

// List returns the trace IDs present in the archive, sorted.
func (a *BundleArchive) List(ctx context.Context) ([]string, error) {
	objects, err := a.store.ListObjects(ctx, archivePrefix+"/")
	if err != nil {
		return nil, errors.NewStorageError(errors.CodeDownloadFailed,
			"list archived bundles", err)
	}

	seen := make(map[string]bool)
	var ids []string
	for _, obj := range objects {
		rest := strings.TrimPrefix(obj, archivePrefix+"/")
		id, _, ok := strings.Cut(rest, "/")
		if !ok || id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Remove deletes an archived bundle and drops any cached copy.
func (a *BundleArchive) Remove(ctx context.Context, traceID string) error {
	if err := validateTraceID(traceID); err != nil {
		return err
	}

	prefix := path.Join(archivePrefix, traceID) + "/"
	objects, err := a.store.ListObjects(ctx, prefix)
	if err != nil {
		return errors.NewStorageError(errors.CodeDeleteFailed,
			fmt.Sprintf("list bundle %s", traceID), err)
	}

	for _, obj := range objects {
		if err := a.store.Delete(ctx, obj); err != nil {
			return errors.NewStorageError(errors.CodeDeleteFailed,
				fmt.Sprintf("remove bundle %s", traceID), err)
		}
	}

	a.cache.Remove(traceID)
	return nil
}

// validateTraceID rejects IDs that would escape the archive prefix when
// joined into object or filesystem paths.
func validateTraceID(traceID string) error {
	if traceID == "" || strings.ContainsAny(traceID, `/\`) || strings.Contains(traceID, "..") {
		return errors.New(errors.ErrCategoryStorage, errors.CodeInvalidFormat,
			fmt.Sprintf("invalid trace id %q", traceID))
	}
	return nil
}
