package tools

import (
	"context"

	"github.com/tierfs/tierfs/internal/vfs"
	"github.com/tierfs/tierfs/pkg/types"
)

// Storage is the narrow facade the tools operate on: the kernel in
// production, a lightweight in-memory store in tests.
type Storage interface {
	Read(ctx context.Context, path string) ([]byte, error)
	Write(ctx context.Context, path string, data []byte) error
	Append(ctx context.Context, path string, data []byte) error
	Delete(ctx context.Context, path string, recursive bool) error
	Move(ctx context.Context, src, dst string) error
	Copy(ctx context.Context, src, dst string) error
	Mkdir(ctx context.Context, path string) error
	Stat(ctx context.Context, path string) (*types.Stat, error)
	List(ctx context.Context, path string) ([]types.Dirent, error)
	Exists(ctx context.Context, path string) (bool, error)
	// Walk visits every entry under root depth-first.
	Walk(ctx context.Context, root string, fn func(d types.Dirent) error) error
}

// KernelStorage adapts the filesystem kernel to the Storage facade.
type KernelStorage struct {
	FS *vfs.FileSystem
}

func (k *KernelStorage) Read(ctx context.Context, path string) ([]byte, error) {
	return k.FS.ReadFile(ctx, path, nil)
}

func (k *KernelStorage) Write(ctx context.Context, path string, data []byte) error {
	return k.FS.WriteFile(ctx, path, data, nil)
}

func (k *KernelStorage) Append(ctx context.Context, path string, data []byte) error {
	return k.FS.AppendFile(ctx, path, data)
}

func (k *KernelStorage) Delete(ctx context.Context, path string, recursive bool) error {
	return k.FS.Rm(ctx, path, &vfs.RmOptions{Recursive: recursive})
}

func (k *KernelStorage) Move(ctx context.Context, src, dst string) error {
	return k.FS.Rename(ctx, src, dst, &vfs.RenameOptions{Overwrite: true})
}

func (k *KernelStorage) Copy(ctx context.Context, src, dst string) error {
	return k.FS.CopyFile(ctx, src, dst, &vfs.CopyOptions{Overwrite: true})
}

func (k *KernelStorage) Mkdir(ctx context.Context, path string) error {
	return k.FS.Mkdir(ctx, path, &vfs.MkdirOptions{Recursive: true})
}

func (k *KernelStorage) Stat(ctx context.Context, path string) (*types.Stat, error) {
	return k.FS.Stat(ctx, path)
}

func (k *KernelStorage) List(ctx context.Context, path string) ([]types.Dirent, error) {
	res, err := k.FS.Readdir(ctx, path, &vfs.ReaddirOptions{WithFileTypes: true})
	if err != nil {
		return nil, err
	}
	return res.Dirents, nil
}

func (k *KernelStorage) Exists(ctx context.Context, path string) (bool, error) {
	return k.FS.Exists(ctx, path)
}

func (k *KernelStorage) Walk(ctx context.Context, root string, fn func(d types.Dirent) error) error {
	res, err := k.FS.Readdir(ctx, root, &vfs.ReaddirOptions{WithFileTypes: true, Recursive: true})
	if err != nil {
		return err
	}
	for _, d := range res.Dirents {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(d); err != nil {
			return err
		}
	}
	return nil
}
