package rpcsvc

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/tierfs/tierfs/internal/vfs"
	"github.com/tierfs/tierfs/pkg/fserrors"
	"github.com/tierfs/tierfs/pkg/types"
)

// FlexBytes tolerates the three encodings clients have historically sent
// for chunk data: a base64 string, a JSON array of byte values, or an
// object with numeric-string keys ({"0":104,"1":105}).
type FlexBytes []byte

func (f *FlexBytes) UnmarshalJSON(raw []byte) error {
	if len(raw) == 0 {
		*f = nil
		return nil
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		data, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return err
		}
		*f = data
		return nil
	case '[':
		var nums []int
		if err := json.Unmarshal(raw, &nums); err != nil {
			return err
		}
		out := make([]byte, len(nums))
		for i, n := range nums {
			out[i] = byte(n)
		}
		*f = out
		return nil
	case '{':
		var obj map[string]int
		if err := json.Unmarshal(raw, &obj); err != nil {
			return err
		}
		idxs := make([]int, 0, len(obj))
		for k := range obj {
			i, err := strconv.Atoi(k)
			if err != nil {
				return fserrors.Inval("stream", "", "non-numeric byte index "+k)
			}
			idxs = append(idxs, i)
		}
		sort.Ints(idxs)
		out := make([]byte, len(idxs))
		for pos, i := range idxs {
			out[pos] = byte(obj[strconv.Itoa(i)])
		}
		*f = out
		return nil
	}
	return fserrors.Inval("stream", "", "unsupported chunk data encoding")
}

// readSession is server state for a chunked download.
type readSession struct {
	id          string
	path        string
	totalSize   int64
	chunkSize   int64
	totalChunks int64

	mu sync.Mutex // rejects concurrent chunk pulls
}

// writeSession accumulates chunks for a single final write.
type writeSession struct {
	id        string
	path      string
	totalSize int64
	tier      types.Tier
	mode      uint32

	mu       sync.Mutex
	chunks   map[int64][]byte
	received int64
	aborted  bool
}

// Chunk is one streamed unit on the wire.
type Chunk struct {
	Data        []byte `json:"data"`
	Index       int64  `json:"index"`
	TotalChunks int64  `json:"totalChunks"`
	Offset      int64  `json:"offset"`
	IsLast      bool   `json:"isLast"`
	Checksum    string `json:"checksum,omitempty"`
}

func (s *Service) getSession(id string) (interface{}, error) {
	v, ok := s.sessions.Get(id)
	if !ok {
		return nil, fserrors.New(fserrors.ENOENT, "unknown or expired stream session").WithSyscall("stream")
	}
	// Touch: any use restarts the idle clock.
	s.sessions.SetDefault(id, v)
	return v, nil
}

type streamReadStartParams struct {
	Path      string `json:"path"`
	ChunkSize int64  `json:"chunkSize,omitempty"`
}

func (s *Service) streamReadStart(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p streamReadStartParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	st, err := s.fs.Stat(ctx, p.Path)
	if err != nil {
		return nil, err
	}
	if !st.IsFile() {
		return nil, fserrors.IsDir("read", p.Path)
	}
	chunkSize := p.ChunkSize
	if chunkSize <= 0 {
		chunkSize = s.opts.ChunkSize
	}
	totalChunks := (st.Size + chunkSize - 1) / chunkSize
	if totalChunks == 0 {
		totalChunks = 1
	}

	sess := &readSession{
		id:          uuid.NewString(),
		path:        p.Path,
		totalSize:   st.Size,
		chunkSize:   chunkSize,
		totalChunks: totalChunks,
	}
	s.sessions.SetDefault(sess.id, sess)
	s.metrics.StreamSessions(1)

	return map[string]interface{}{
		"sessionId":   sess.id,
		"totalSize":   sess.totalSize,
		"totalChunks": sess.totalChunks,
		"chunkSize":   sess.chunkSize,
	}, nil
}

type streamChunkParams struct {
	SessionID  string `json:"sessionId"`
	ChunkIndex int64  `json:"chunkIndex"`
}

func (s *Service) streamReadChunk(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p streamChunkParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	v, err := s.getSession(p.SessionID)
	if err != nil {
		return nil, err
	}
	sess, ok := v.(*readSession)
	if !ok {
		return nil, fserrors.Inval("stream", "", "session is not a read session")
	}
	if !sess.mu.TryLock() {
		return nil, fserrors.New(fserrors.EBUSY, "concurrent chunk request on session").WithSyscall("stream")
	}
	defer sess.mu.Unlock()

	if p.ChunkIndex < 0 || p.ChunkIndex >= sess.totalChunks {
		return nil, fserrors.Inval("stream", sess.path, "chunk index out of range")
	}
	offset := p.ChunkIndex * sess.chunkSize
	end := offset + sess.chunkSize - 1
	if end >= sess.totalSize {
		end = sess.totalSize - 1
	}
	var data []byte
	if sess.totalSize > 0 {
		data, err = s.fs.ReadFile(ctx, sess.path, &vfs.ReadOptions{Start: &offset, End: &end})
		if err != nil {
			return nil, err
		}
	} else {
		data = []byte{}
	}
	s.metrics.ReadBytes(len(data))

	return &Chunk{
		Data:        data,
		Index:       p.ChunkIndex,
		TotalChunks: sess.totalChunks,
		Offset:      offset,
		IsLast:      p.ChunkIndex == sess.totalChunks-1,
	}, nil
}

type streamEndParams struct {
	SessionID string `json:"sessionId"`
}

func (s *Service) streamReadEnd(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p streamEndParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if _, ok := s.sessions.Get(p.SessionID); ok {
		s.sessions.Delete(p.SessionID)
	}
	return map[string]bool{"ok": true}, nil
}

type streamWriteStartParams struct {
	Path      string     `json:"path"`
	TotalSize int64      `json:"totalSize"`
	Tier      types.Tier `json:"tier,omitempty"`
	Mode      uint32     `json:"mode,omitempty"`
}

func (s *Service) streamWriteStart(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p streamWriteStartParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Path == "" {
		return nil, fserrors.Inval("stream", "", "path is required")
	}
	if p.TotalSize < 0 {
		return nil, fserrors.Inval("stream", p.Path, "negative total size")
	}
	if p.TotalSize > s.fs.Options().MaxFileSize {
		return nil, fserrors.New(fserrors.ENOSPC, "file exceeds maximum size").WithPath(p.Path)
	}

	sess := &writeSession{
		id:        uuid.NewString(),
		path:      p.Path,
		totalSize: p.TotalSize,
		tier:      p.Tier,
		mode:      p.Mode,
		chunks:    make(map[int64][]byte),
	}
	s.sessions.SetDefault(sess.id, sess)
	s.metrics.StreamSessions(1)

	return map[string]interface{}{
		"sessionId": sess.id,
		"chunkSize": s.opts.ChunkSize,
	}, nil
}

type streamWriteChunkParams struct {
	SessionID string    `json:"sessionId"`
	Index     int64     `json:"index"`
	Data      FlexBytes `json:"data"`
}

func (s *Service) streamWriteChunk(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p streamWriteChunkParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	v, err := s.getSession(p.SessionID)
	if err != nil {
		return nil, err
	}
	sess, ok := v.(*writeSession)
	if !ok {
		return nil, fserrors.Inval("stream", "", "session is not a write session")
	}
	if !sess.mu.TryLock() {
		return nil, fserrors.New(fserrors.EBUSY, "concurrent chunk write on session").WithSyscall("stream")
	}
	defer sess.mu.Unlock()

	if sess.aborted {
		return nil, fserrors.BadF("stream")
	}
	if p.Index < 0 {
		return nil, fserrors.Inval("stream", sess.path, "negative chunk index")
	}
	if prev, dup := sess.chunks[p.Index]; dup {
		sess.received -= int64(len(prev))
	}
	sess.chunks[p.Index] = p.Data
	sess.received += int64(len(p.Data))
	if sess.received > s.fs.Options().MaxFileSize {
		return nil, fserrors.New(fserrors.ENOSPC, "stream exceeds maximum file size").WithPath(sess.path)
	}
	s.metrics.WriteBytes(len(p.Data))

	return map[string]interface{}{
		"received": sess.received,
		"index":    p.Index,
	}, nil
}

func (s *Service) streamWriteEnd(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p streamEndParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	v, err := s.getSession(p.SessionID)
	if err != nil {
		return nil, err
	}
	sess, ok := v.(*writeSession)
	if !ok {
		return nil, fserrors.Inval("stream", "", "session is not a write session")
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	// Assemble in index order into one buffer, then a single write.
	idxs := make([]int64, 0, len(sess.chunks))
	for i := range sess.chunks {
		idxs = append(idxs, i)
	}
	sort.Slice(idxs, func(a, b int) bool { return idxs[a] < idxs[b] })
	content := make([]byte, 0, sess.received)
	for _, i := range idxs {
		content = append(content, sess.chunks[i]...)
	}

	if sess.totalSize > 0 && int64(len(content)) != sess.totalSize {
		return nil, fserrors.Inval("stream", sess.path, "assembled size does not match declared total")
	}

	err = s.fs.WriteFile(ctx, sess.path, content, &vfs.WriteOptions{Mode: sess.mode, Tier: sess.tier})
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(content)
	tier, terr := s.fs.GetTier(ctx, sess.path)
	if terr != nil {
		tier = ""
	}
	s.sessions.Delete(p.SessionID)

	return map[string]interface{}{
		"totalBytesWritten": int64(len(content)),
		"checksum":          hex.EncodeToString(sum[:]),
		"tier":              tier,
	}, nil
}

func (s *Service) streamAbort(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p streamEndParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if v, ok := s.sessions.Get(p.SessionID); ok {
		if ws, isWrite := v.(*writeSession); isWrite {
			ws.mu.Lock()
			ws.aborted = true
			ws.chunks = nil
			ws.mu.Unlock()
		}
		s.sessions.Delete(p.SessionID)
	}
	return map[string]bool{"ok": true}, nil
}
