package backends

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	shell "github.com/ipfs/go-ipfs-api"

	"github.com/TheEntropyCollective/mediavault/pkg/storage"
)

func init() {
	storage.RegisterBackend(storage.BackendTypeIPFS, func(config *storage.BackendConfig) (storage.ObjectStore, error) {
		return NewIPFSBackend(config)
	})
}

// IPFSBackend stores objects as files in the IPFS Mutable File System (MFS).
// Object keys map to MFS paths under a root directory; the node keeps every
// MFS file pinned until it is removed.
type IPFSBackend struct {
	shell           *shell.Shell
	root            string
	errorClassifier *storage.ErrorClassifier
}

// NewIPFSBackend connects to the IPFS HTTP API and verifies the node is reachable
func NewIPFSBackend(config *storage.BackendConfig) (*IPFSBackend, error) {
	if config.Type != storage.BackendTypeIPFS {
		return nil, fmt.Errorf("invalid backend type: expected %s, got %s", storage.BackendTypeIPFS, config.Type)
	}

	endpoint := config.Endpoint
	if endpoint == "" {
		endpoint = "127.0.0.1:5001"
	}
	root := config.RootPath
	if root == "" {
		root = "/mediavault"
	}
	if !strings.HasPrefix(root, "/") {
		return nil, storage.NewInvalidRequestError(storage.BackendTypeIPFS, "root path must be absolute", nil)
	}

	sh := shell.NewShell(endpoint)
	if config.Timeout > 0 {
		sh.SetTimeout(config.Timeout)
	}

	backend := &IPFSBackend{
		shell:           sh,
		root:            path.Clean(root),
		errorClassifier: storage.NewErrorClassifier(storage.BackendTypeIPFS),
	}

	// Test connection
	if _, err := sh.ID(); err != nil {
		return nil, backend.errorClassifier.ClassifyError(err, "connect", "")
	}

	return backend, nil
}

func (ipfs *IPFSBackend) Name() string {
	return storage.BackendTypeIPFS
}

func (ipfs *IPFSBackend) mfsPath(key string) string {
	return path.Join(ipfs.root, key)
}

// Put writes data to the MFS file for key, creating parent directories
func (ipfs *IPFSBackend) Put(ctx context.Context, key string, data []byte) error {
	if err := storage.ValidateKey(storage.BackendTypeIPFS, key); err != nil {
		return err
	}

	err := ipfs.shell.FilesWrite(ctx, ipfs.mfsPath(key), bytes.NewReader(data),
		shell.FilesWrite.Create(true),
		shell.FilesWrite.Parents(true),
		shell.FilesWrite.Truncate(true),
	)
	if err != nil {
		return ipfs.errorClassifier.ClassifyError(err, "put", key)
	}

	return nil
}

// Get reads the MFS file for key
func (ipfs *IPFSBackend) Get(ctx context.Context, key string) ([]byte, error) {
	if err := storage.ValidateKey(storage.BackendTypeIPFS, key); err != nil {
		return nil, err
	}

	reader, err := ipfs.shell.FilesRead(ctx, ipfs.mfsPath(key))
	if err != nil {
		return nil, ipfs.errorClassifier.ClassifyError(err, "get", key)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, ipfs.errorClassifier.ClassifyError(err, "get", key)
	}

	return data, nil
}

// Delete removes the MFS file for key. The node garbage collects the
// underlying blocks once nothing else references them.
func (ipfs *IPFSBackend) Delete(ctx context.Context, key string) error {
	if err := storage.ValidateKey(storage.BackendTypeIPFS, key); err != nil {
		return err
	}

	err := ipfs.shell.FilesRm(ctx, ipfs.mfsPath(key), true)
	if err != nil {
		storageErr := ipfs.errorClassifier.ClassifyError(err, "delete", key)
		if storageErr.Code == storage.ErrCodeNotFound {
			return nil
		}
		return storageErr
	}

	return nil
}

// List returns the files in the directory that prefix points into whose
// names match the remainder of the prefix. Listing is not recursive.
func (ipfs *IPFSBackend) List(ctx context.Context, prefix string) ([]storage.ObjectInfo, error) {
	dir, namePrefix := "", prefix
	if i := strings.LastIndex(prefix, "/"); i >= 0 {
		dir, namePrefix = prefix[:i], prefix[i+1:]
	}

	entries, err := ipfs.shell.FilesLs(ctx, path.Join(ipfs.root, dir), shell.FilesLs.Stat(true))
	if err != nil {
		storageErr := ipfs.errorClassifier.ClassifyError(err, "list", prefix)
		if storageErr.Code == storage.ErrCodeNotFound {
			return []storage.ObjectInfo{}, nil
		}
		return nil, storageErr
	}

	infos := make([]storage.ObjectInfo, 0, len(entries))
	for _, entry := range entries {
		if !strings.HasPrefix(entry.Name, namePrefix) {
			continue
		}
		key := entry.Name
		if dir != "" {
			key = dir + "/" + entry.Name
		}
		infos = append(infos, storage.ObjectInfo{
			Key:  key,
			Size: int64(entry.Size),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })

	return infos, nil
}

// HealthCheck performs a health check on the IPFS backend
func (ipfs *IPFSBackend) HealthCheck(ctx context.Context) *storage.HealthStatus {
	start := time.Now()
	_, err := ipfs.shell.ID()
	if err != nil {
		err = ipfs.errorClassifier.ClassifyError(err, "health", "")
	}
	return storage.NewHealthStatus(start, err)
}
