// Package rpcsvc implements the bulk/streaming RPC service: batched
// filesystem operations scheduled in bounded parallel waves, chunked
// upload/download sessions with idle expiry, tree copy/move, directory
// sizing, and checksums.
package rpcsvc

import (
	"context"
	"encoding/json"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/tierfs/tierfs/internal/metrics"
	"github.com/tierfs/tierfs/internal/vfs"
	"github.com/tierfs/tierfs/pkg/fserrors"
)

// Options tune the service.
type Options struct {
	ChunkSize        int64 // RPC stream chunk size
	ReadParallelism  int
	WriteParallelism int
	SessionTTL       time.Duration
	Version          string
}

func (o *Options) fill() {
	if o.ChunkSize <= 0 {
		o.ChunkSize = 64 << 10
	}
	if o.ReadParallelism <= 0 {
		o.ReadParallelism = 10
	}
	if o.WriteParallelism <= 0 {
		o.WriteParallelism = 5
	}
	if o.SessionTTL <= 0 {
		o.SessionTTL = 5 * time.Minute
	}
	if o.Version == "" {
		o.Version = "dev"
	}
}

// Service dispatches RPC methods onto the kernel.
type Service struct {
	fs       *vfs.FileSystem
	log      logrus.FieldLogger
	metrics  *metrics.Collector
	opts     Options
	sessions *gocache.Cache
}

// New builds the service. Stream sessions idle out after the configured
// TTL and are garbage-collected in the background.
func New(fs *vfs.FileSystem, log logrus.FieldLogger, mc *metrics.Collector, opts Options) *Service {
	opts.fill()
	s := &Service{
		fs:       fs,
		log:      log,
		metrics:  mc,
		opts:     opts,
		sessions: gocache.New(opts.SessionTTL, time.Minute),
	}
	s.sessions.OnEvicted(func(id string, _ interface{}) {
		s.metrics.StreamSessions(-1)
		s.log.WithField("session", id).Debug("stream session expired")
	})
	return s
}

// Dispatch routes one framed call. Unknown methods are EINVAL.
func (s *Service) Dispatch(ctx context.Context, method string, params json.RawMessage) (interface{}, error) {
	switch method {
	case "batchRead":
		return s.batchRead(ctx, params)
	case "batchWrite":
		return s.batchWrite(ctx, params)
	case "batchDelete":
		return s.batchDelete(ctx, params)
	case "batchStat":
		return s.batchStat(ctx, params)
	case "streamReadStart":
		return s.streamReadStart(ctx, params)
	case "streamReadChunk":
		return s.streamReadChunk(ctx, params)
	case "streamReadEnd":
		return s.streamReadEnd(ctx, params)
	case "streamWriteStart":
		return s.streamWriteStart(ctx, params)
	case "streamWriteChunk":
		return s.streamWriteChunk(ctx, params)
	case "streamWriteEnd":
		return s.streamWriteEnd(ctx, params)
	case "streamAbort":
		return s.streamAbort(ctx, params)
	case "copyTree":
		return s.copyTree(ctx, params)
	case "moveTree":
		return s.moveTree(ctx, params)
	case "dirSize":
		return s.dirSize(ctx, params)
	case "checksum":
		return s.checksum(ctx, params)
	case "verify":
		return s.verify(ctx, params)
	case "ping":
		return s.ping(ctx)
	default:
		return nil, fserrors.Inval("rpc", "", "unknown method "+method)
	}
}

// decodeParams parses the params blob; a nil blob decodes into zero
// values so parameterless calls work.
func decodeParams(params json.RawMessage, into interface{}) error {
	if len(params) == 0 {
		return nil
	}
	if err := json.Unmarshal(params, into); err != nil {
		return fserrors.Inval("rpc", "", "malformed params: "+err.Error())
	}
	return nil
}

func (s *Service) ping(ctx context.Context) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"ok":        true,
		"timestamp": time.Now().UnixMilli(),
		"version":   s.opts.Version,
	}, nil
}
