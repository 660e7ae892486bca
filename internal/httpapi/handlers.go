package httpapi

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"

	"github.com/tierfs/tierfs/internal/vfs"
	"github.com/tierfs/tierfs/pkg/fserrors"
	"github.com/tierfs/tierfs/pkg/types"
)

// fsEndpoints maps operation names under /api/fs/ to their handlers.
func (s *Server) fsEndpoints() map[string]http.HandlerFunc {
	return map[string]http.HandlerFunc{
		"read":     s.op("read", false, s.handleRead),
		"write":    s.op("write", true, s.handleWrite),
		"unlink":   s.op("unlink", true, s.handleUnlink),
		"rename":   s.op("rename", true, s.handleRename),
		"copy":     s.op("copy", true, s.handleCopy),
		"truncate": s.op("truncate", true, s.handleTruncate),
		"mkdir":    s.op("mkdir", true, s.handleMkdir),
		"rmdir":    s.op("rmdir", true, s.handleRmdir),
		"rm":       s.op("rm", true, s.handleRm),
		"readdir":  s.op("readdir", false, s.handleReaddir),
		"stat":     s.op("stat", false, s.handleStat),
		"lstat":    s.op("lstat", false, s.handleLstat),
		"access":   s.op("access", false, s.handleAccess),
		"chmod":    s.op("chmod", true, s.handleChmod),
		"chown":    s.op("chown", true, s.handleChown),
		"utimes":   s.op("utimes", true, s.handleUtimes),
		"symlink":  s.op("symlink", true, s.handleSymlink),
		"link":     s.op("link", true, s.handleLink),
		"readlink": s.op("readlink", false, s.handleReadlink),
		"realpath": s.op("realpath", false, s.handleRealpath),
		"promote":  s.op("promote", true, s.handlePromote),
		"demote":   s.op("demote", true, s.handleDemote),
		"getTier":  s.op("getTier", false, s.handleGetTier),
		"open":     s.op("open", false, s.handleOpen),
	}
}

// op wraps one endpoint with auth, metrics, and error mapping.
func (s *Server) op(name string, write bool, h func(w http.ResponseWriter, r *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.authorize(r, write); err != nil {
			s.metrics.Operation("http", name, 0, errCode(err))
			writeError(w, err)
			return
		}
		start := time.Now()
		h(w, r)
		s.metrics.Operation("http", name, time.Since(start), "")
	}
}

func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Path  string `json:"path"`
		Start *int64 `json:"start,omitempty"`
		End   *int64 `json:"end,omitempty"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	var opts *vfs.ReadOptions
	if body.Start != nil || body.End != nil {
		opts = &vfs.ReadOptions{Start: body.Start, End: body.End}
	}
	data, err := s.fs.ReadFile(s.requestContext(r), body.Path, opts)
	if err != nil {
		writeError(w, err)
		return
	}
	s.metrics.ReadBytes(len(data))
	writeSuccess(w, map[string]string{
		"content":  base64.StdEncoding.EncodeToString(data),
		"encoding": "base64",
	})
}

func (s *Server) handleWrite(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Path    string     `json:"path"`
		Content string     `json:"content"`
		Mode    uint32     `json:"mode,omitempty"`
		Flag    string     `json:"flag,omitempty"`
		Tier    types.Tier `json:"tier,omitempty"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	data, err := base64.StdEncoding.DecodeString(body.Content)
	if err != nil {
		writeError(w, fserrors.Inval("write", body.Path, "content is not valid base64"))
		return
	}
	s.metrics.WriteBytes(len(data))
	err = s.fs.WriteFile(s.requestContext(r), body.Path, data, &vfs.WriteOptions{
		Mode: body.Mode,
		Flag: body.Flag,
		Tier: body.Tier,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, nil)
}

func (s *Server) handleUnlink(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Path string `json:"path"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if err := s.fs.Unlink(s.requestContext(r), body.Path); err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, nil)
}

func (s *Server) handleRename(w http.ResponseWriter, r *http.Request) {
	var body struct {
		OldPath   string `json:"oldPath"`
		NewPath   string `json:"newPath"`
		Overwrite bool   `json:"overwrite,omitempty"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	err := s.fs.Rename(s.requestContext(r), body.OldPath, body.NewPath, &vfs.RenameOptions{Overwrite: body.Overwrite})
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, nil)
}

func (s *Server) handleCopy(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Src       string `json:"src"`
		Dest      string `json:"dest"`
		Overwrite bool   `json:"overwrite,omitempty"`
		Recursive bool   `json:"recursive,omitempty"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	ctx := s.requestContext(r)
	if body.Recursive {
		params, _ := json.Marshal(map[string]interface{}{
			"src": body.Src, "dest": body.Dest, "overwrite": body.Overwrite,
		})
		if _, err := s.rpc.Dispatch(ctx, "copyTree", params); err != nil {
			writeError(w, err)
			return
		}
		writeSuccess(w, nil)
		return
	}
	err := s.fs.CopyFile(ctx, body.Src, body.Dest, &vfs.CopyOptions{Overwrite: body.Overwrite})
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, nil)
}

func (s *Server) handleTruncate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Path   string `json:"path"`
		Length int64  `json:"length"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if err := s.fs.Truncate(s.requestContext(r), body.Path, body.Length); err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, nil)
}

func (s *Server) handleMkdir(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Path      string `json:"path"`
		Recursive bool   `json:"recursive,omitempty"`
		Mode      uint32 `json:"mode,omitempty"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	err := s.fs.Mkdir(s.requestContext(r), body.Path, &vfs.MkdirOptions{Recursive: body.Recursive, Mode: body.Mode})
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, nil)
}

func (s *Server) handleRmdir(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Path      string `json:"path"`
		Recursive bool   `json:"recursive,omitempty"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if err := s.fs.Rmdir(s.requestContext(r), body.Path, &vfs.RmdirOptions{Recursive: body.Recursive}); err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, nil)
}

func (s *Server) handleRm(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Path      string `json:"path"`
		Recursive bool   `json:"recursive,omitempty"`
		Force     bool   `json:"force,omitempty"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	err := s.fs.Rm(s.requestContext(r), body.Path, &vfs.RmOptions{Recursive: body.Recursive, Force: body.Force})
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, nil)
}

func (s *Server) handleReaddir(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Path          string `json:"path"`
		WithFileTypes bool   `json:"withFileTypes,omitempty"`
		Recursive     bool   `json:"recursive,omitempty"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	res, err := s.fs.Readdir(s.requestContext(r), body.Path, &vfs.ReaddirOptions{
		WithFileTypes: body.WithFileTypes,
		Recursive:     body.Recursive,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if body.WithFileTypes {
		entries := res.Dirents
		if entries == nil {
			entries = []types.Dirent{}
		}
		writeSuccess(w, map[string]interface{}{"entries": entries})
		return
	}
	names := res.Names
	if names == nil {
		names = []string{}
	}
	writeSuccess(w, map[string]interface{}{"entries": names})
}

func (s *Server) handleStat(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Path string `json:"path"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	st, err := s.fs.Stat(s.requestContext(r), body.Path)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, st)
}

func (s *Server) handleLstat(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Path string `json:"path"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	st, err := s.fs.Lstat(s.requestContext(r), body.Path)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, st)
}

func (s *Server) handleAccess(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Path string `json:"path"`
		Mode *int   `json:"mode,omitempty"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	mode := vfs.FOK
	if body.Mode != nil {
		mode = *body.Mode
	}
	if err := s.fs.Access(s.requestContext(r), body.Path, mode); err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, nil)
}

func (s *Server) handleChmod(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Path string `json:"path"`
		Mode uint32 `json:"mode"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if err := s.fs.Chmod(s.requestContext(r), body.Path, body.Mode); err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, nil)
}

func (s *Server) handleChown(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Path string `json:"path"`
		UID  int    `json:"uid"`
		GID  int    `json:"gid"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if err := s.fs.Chown(s.requestContext(r), body.Path, body.UID, body.GID); err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, nil)
}

func (s *Server) handleUtimes(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Path  string `json:"path"`
		Atime int64  `json:"atime"`
		Mtime int64  `json:"mtime"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if err := s.fs.Utimes(s.requestContext(r), body.Path, body.Atime, body.Mtime); err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, nil)
}

func (s *Server) handleSymlink(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Target string `json:"target"`
		Path   string `json:"path"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if err := s.fs.Symlink(s.requestContext(r), body.Target, body.Path); err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, nil)
}

func (s *Server) handleLink(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ExistingPath string `json:"existingPath"`
		NewPath      string `json:"newPath"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if err := s.fs.Link(s.requestContext(r), body.ExistingPath, body.NewPath); err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, nil)
}

func (s *Server) handleReadlink(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Path string `json:"path"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	target, err := s.fs.Readlink(s.requestContext(r), body.Path)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, map[string]string{"target": target})
}

func (s *Server) handleRealpath(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Path string `json:"path"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	resolved, err := s.fs.Realpath(s.requestContext(r), body.Path)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, map[string]string{"path": resolved})
}

func (s *Server) handlePromote(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Path string     `json:"path"`
		Tier types.Tier `json:"tier"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if err := s.fs.Promote(s.requestContext(r), body.Path, body.Tier); err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, nil)
}

func (s *Server) handleDemote(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Path string     `json:"path"`
		Tier types.Tier `json:"tier"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if err := s.fs.Demote(s.requestContext(r), body.Path, body.Tier); err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, nil)
}

func (s *Server) handleGetTier(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Path string `json:"path"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	tier, err := s.fs.GetTier(s.requestContext(r), body.Path)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, map[string]types.Tier{"tier": tier})
}

// handleOpen exists for wire compatibility; handles are a local concern
// and a remote one would silently rewrite whole files on positioned
// writes, so the endpoint refuses deterministically.
func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Path  string `json:"path"`
		Flags string `json:"flags,omitempty"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	writeError(w, fserrors.Inval("open", body.Path, "file handles are local-only; use read/write or the stream API"))
}
