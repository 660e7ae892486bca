// Package server is the composition root: it builds the stores, kernel,
// watch manager, RPC and tool services, and the HTTP front from one
// configuration, and owns their lifecycle.
package server

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/tierfs/tierfs/internal/auth"
	"github.com/tierfs/tierfs/internal/blob"
	"github.com/tierfs/tierfs/internal/config"
	"github.com/tierfs/tierfs/internal/httpapi"
	"github.com/tierfs/tierfs/internal/logging"
	"github.com/tierfs/tierfs/internal/metrics"
	"github.com/tierfs/tierfs/internal/rpcsvc"
	"github.com/tierfs/tierfs/internal/store"
	"github.com/tierfs/tierfs/internal/tools"
	"github.com/tierfs/tierfs/internal/vfs"
	"github.com/tierfs/tierfs/internal/watch"
	"github.com/tierfs/tierfs/pkg/types"
)

// Server owns every component of a running tierfsd instance.
type Server struct {
	cfg     *config.Configuration
	log     *logrus.Logger
	meta    types.MetadataStore
	blobs   types.BlobStore
	watcher *watch.Manager
	fs      *vfs.FileSystem
	http    *httpapi.Server
}

// New wires the service from configuration.
func New(ctx context.Context, cfg *config.Configuration) (*Server, error) {
	log := logging.Setup(cfg.Logging)

	meta, blobs, err := buildStores(ctx, cfg)
	if err != nil {
		return nil, err
	}

	watcher := watch.NewManager(logging.ForComponent(log, "watch"))

	fs := vfs.New(meta, blobs, watcher, logging.ForComponent(log, "vfs"), vfs.Options{
		DefaultNamespace: cfg.Namespace.Default,
		MaxFileSize:      cfg.MaxFileSizeBytes(),
		MaxPathLength:    cfg.Limits.MaxPathLength,
		HotMaxSize:       cfg.HotMaxSizeBytes(),
		WarmEnabled:      cfg.Tiers.WarmEnabled,
		ColdEnabled:      cfg.Tiers.ColdEnabled,
		StreamChunkSize:  cfg.StreamChunkSizeBytes(),
	})

	var mc *metrics.Collector
	if cfg.Metrics.Enabled {
		mc = metrics.NewCollector()
	}

	rpc := rpcsvc.New(fs, logging.ForComponent(log, "rpc"), mc, rpcsvc.Options{
		ChunkSize:        cfg.RPCChunkSizeBytes(),
		ReadParallelism:  cfg.Limits.ReadParallelism,
		WriteParallelism: cfg.Limits.WriteParallelism,
		SessionTTL:       cfg.Limits.SessionTTL,
		Version:          httpapi.Version,
	})

	toolSvc, err := tools.NewService(&tools.KernelStorage{FS: fs}, cfg, logging.ForComponent(log, "tools"))
	if err != nil {
		return nil, err
	}

	authn := auth.New(cfg.Auth)
	httpSrv := httpapi.New(fs, rpc, toolSvc, authn, logging.ForComponent(log, "http"), mc, cfg)

	return &Server{
		cfg:     cfg,
		log:     log,
		meta:    meta,
		blobs:   blobs,
		watcher: watcher,
		fs:      fs,
		http:    httpSrv,
	}, nil
}

func buildStores(ctx context.Context, cfg *config.Configuration) (types.MetadataStore, types.BlobStore, error) {
	var meta types.MetadataStore
	var blobs types.BlobStore

	switch cfg.Store.Driver {
	case "bolt":
		m, err := store.OpenBolt(filepath.Join(cfg.Store.Path, "meta.db"))
		if err != nil {
			return nil, nil, err
		}
		meta = m
		if cfg.Tiers.S3.Bucket == "" {
			b, err := blob.OpenBolt(filepath.Join(cfg.Store.Path, "blobs.db"))
			if err != nil {
				m.Close()
				return nil, nil, err
			}
			blobs = b
		}
	case "memory":
		meta = store.NewMemory()
		if cfg.Tiers.S3.Bucket == "" {
			blobs = blob.NewMemory()
		}
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}

	if cfg.Tiers.S3.Bucket != "" {
		b, err := blob.NewS3(ctx, cfg.Tiers.S3)
		if err != nil {
			meta.Close()
			return nil, nil, err
		}
		blobs = b
	}
	return meta, blobs, nil
}

// FS exposes the kernel, for embedding and tests.
func (s *Server) FS() *vfs.FileSystem { return s.fs }

// Run serves until ctx is cancelled, then shuts down cleanly.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.http.Start() }()

	select {
	case err := <-errCh:
		s.close()
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.WriteTimeout)
	defer cancel()
	err := s.http.Shutdown(shutdownCtx)
	s.close()
	return err
}

func (s *Server) close() {
	s.watcher.Close()
	if err := s.meta.Close(); err != nil {
		s.log.WithError(err).Warn("metadata store close failed")
	}
	if err := s.blobs.Close(); err != nil {
		s.log.WithError(err).Warn("blob store close failed")
	}
}
