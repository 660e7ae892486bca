package rpcsvc

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tierfs/tierfs/internal/vfs"
	"github.com/tierfs/tierfs/pkg/fserrors"
	"github.com/tierfs/tierfs/pkg/types"
)

// BatchItemResult is one per-path outcome, in input order.
type BatchItemResult struct {
	Path     string     `json:"path"`
	Success  bool       `json:"success"`
	Error    string     `json:"error,omitempty"`
	Code     string     `json:"code,omitempty"`
	Bytes    int64      `json:"bytes,omitempty"`
	Tier     types.Tier `json:"tier,omitempty"`
	Checksum string     `json:"checksum,omitempty"`
}

// BatchResult is the shared result envelope for batch methods.
type BatchResult struct {
	Total      int               `json:"total"`
	Succeeded  int               `json:"succeeded"`
	Failed     int               `json:"failed"`
	Results    []BatchItemResult `json:"results"`
	DurationMs int64             `json:"durationMs"`
}

// runBatch schedules fn over n items with bounded parallelism, preserving
// input order in the results. With continueOnError each failure is
// recorded and the wave continues; without it the first failure cancels
// the remaining work and aborts the batch.
func runBatch(ctx context.Context, n, limit int, continueOnError bool,
	fn func(ctx context.Context, i int) BatchItemResult) (*BatchResult, error) {

	start := time.Now()
	results := make([]BatchItemResult, n)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			res := fn(gctx, i)
			results[i] = res
			if !res.Success && !continueOnError {
				return fserrors.New(fserrors.Code(res.Code), res.Error).WithPath(res.Path)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &BatchResult{Total: n, Results: results, DurationMs: time.Since(start).Milliseconds()}
	for _, r := range results {
		if r.Success {
			out.Succeeded++
		} else {
			out.Failed++
		}
	}
	return out, nil
}

func failure(path string, err error) BatchItemResult {
	fe := fserrors.Convert(err)
	return BatchItemResult{Path: path, Success: false, Error: fe.Message, Code: string(fe.Code)}
}

type batchReadParams struct {
	Paths           []string `json:"paths"`
	Encoding        string   `json:"encoding,omitempty"`
	ContinueOnError *bool    `json:"continueOnError,omitempty"`
	ParallelLimit   int      `json:"parallelLimit,omitempty"`
}

// batchReadResult extends the envelope with the fetched contents.
type batchReadResult struct {
	BatchResult
	Contents map[string]string `json:"contents"`
}

func (s *Service) batchRead(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p batchReadParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	limit := p.ParallelLimit
	if limit <= 0 {
		limit = s.opts.ReadParallelism
	}
	cont := p.ContinueOnError == nil || *p.ContinueOnError

	contents := make([]string, len(p.Paths))
	res, err := runBatch(ctx, len(p.Paths), limit, cont, func(ctx context.Context, i int) BatchItemResult {
		path := p.Paths[i]
		data, err := s.fs.ReadFile(ctx, path, nil)
		if err != nil {
			return failure(path, err)
		}
		s.metrics.ReadBytes(len(data))
		contents[i] = base64.StdEncoding.EncodeToString(data)
		return BatchItemResult{Path: path, Success: true, Bytes: int64(len(data))}
	})
	if err != nil {
		return nil, err
	}

	out := &batchReadResult{BatchResult: *res, Contents: make(map[string]string, len(p.Paths))}
	for i, r := range res.Results {
		if r.Success {
			out.Contents[p.Paths[i]] = contents[i]
		}
	}
	return out, nil
}

type batchWriteFile struct {
	Path    string     `json:"path"`
	Content string     `json:"content"`
	Mode    uint32     `json:"mode,omitempty"`
	Flag    string     `json:"flag,omitempty"`
	Tier    types.Tier `json:"tier,omitempty"`
}

type batchWriteParams struct {
	Files           []batchWriteFile `json:"files"`
	DefaultTier     types.Tier       `json:"defaultTier,omitempty"`
	DefaultMode     uint32           `json:"defaultMode,omitempty"`
	ContinueOnError *bool            `json:"continueOnError,omitempty"`
	ParallelLimit   int              `json:"parallelLimit,omitempty"`
}

func (s *Service) batchWrite(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p batchWriteParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	limit := p.ParallelLimit
	if limit <= 0 {
		limit = s.opts.WriteParallelism
	}
	cont := p.ContinueOnError == nil || *p.ContinueOnError

	return runBatch(ctx, len(p.Files), limit, cont, func(ctx context.Context, i int) BatchItemResult {
		f := p.Files[i]
		data, err := base64.StdEncoding.DecodeString(f.Content)
		if err != nil {
			return failure(f.Path, fserrors.Inval("write", f.Path, "content is not valid base64"))
		}
		tier := f.Tier
		if tier == "" {
			tier = p.DefaultTier
		}
		mode := f.Mode
		if mode == 0 {
			mode = p.DefaultMode
		}
		err = s.fs.WriteFile(ctx, f.Path, data, &vfs.WriteOptions{Mode: mode, Flag: f.Flag, Tier: tier})
		if err != nil {
			return failure(f.Path, err)
		}
		s.metrics.WriteBytes(len(data))
		placed, terr := s.fs.GetTier(ctx, f.Path)
		if terr != nil {
			placed = ""
		}
		return BatchItemResult{Path: f.Path, Success: true, Bytes: int64(len(data)), Tier: placed}
	})
}

type batchDeleteParams struct {
	Paths           []string `json:"paths"`
	Recursive       bool     `json:"recursive,omitempty"`
	Force           bool     `json:"force,omitempty"`
	ContinueOnError *bool    `json:"continueOnError,omitempty"`
	ParallelLimit   int      `json:"parallelLimit,omitempty"`
}

func (s *Service) batchDelete(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p batchDeleteParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	limit := p.ParallelLimit
	if limit <= 0 {
		limit = s.opts.WriteParallelism
	}
	cont := p.ContinueOnError == nil || *p.ContinueOnError

	return runBatch(ctx, len(p.Paths), limit, cont, func(ctx context.Context, i int) BatchItemResult {
		path := p.Paths[i]
		err := s.fs.Rm(ctx, path, &vfs.RmOptions{Recursive: p.Recursive, Force: p.Force})
		if err != nil {
			return failure(path, err)
		}
		return BatchItemResult{Path: path, Success: true}
	})
}

type batchStatParams struct {
	Paths         []string `json:"paths"`
	ParallelLimit int      `json:"parallelLimit,omitempty"`
}

// batchStatResult extends the envelope with a stats map.
type batchStatResult struct {
	BatchResult
	Stats map[string]*types.Stat `json:"stats"`
}

func (s *Service) batchStat(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p batchStatParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	limit := p.ParallelLimit
	if limit <= 0 {
		limit = s.opts.ReadParallelism
	}

	stats := make([]*types.Stat, len(p.Paths))
	res, err := runBatch(ctx, len(p.Paths), limit, true, func(ctx context.Context, i int) BatchItemResult {
		path := p.Paths[i]
		st, err := s.fs.Stat(ctx, path)
		if err != nil {
			return failure(path, err)
		}
		stats[i] = st
		return BatchItemResult{Path: path, Success: true, Bytes: st.Size, Tier: st.Tier}
	})
	if err != nil {
		return nil, err
	}

	out := &batchStatResult{BatchResult: *res, Stats: make(map[string]*types.Stat, len(p.Paths))}
	for i, r := range res.Results {
		if r.Success {
			out.Stats[p.Paths[i]] = stats[i]
		}
	}
	return out, nil
}
