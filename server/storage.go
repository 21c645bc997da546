package server

import (
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"neuralchat/protocol"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

// Buckets and their size limits.
var buckets = map[string]int64{
	protocol.BucketImages: 5 << 20,
	protocol.BucketFiles:  20 << 20,
}

var errBadObjectPath = errors.New("invalid object path")

// Storage is a file-backed object store served over HTTP.
type Storage struct {
	dir       string
	publicURL string
	lookup    func(token string) (userID string, ok bool)
}

func NewStorage(dir, publicURL string, lookup func(string) (string, bool)) *Storage {
	return &Storage{
		dir:       dir,
		publicURL: strings.TrimRight(publicURL, "/"),
		lookup:    lookup,
	}
}

// PublicURL is the download URL of bucket/key.
func (st *Storage) PublicURL(bucket, key string) string {
	return st.publicURL + "/storage/v1/object/public/" + bucket + "/" + key
}

type uploadResponse struct {
	Key       string `json:"key"`
	PublicURL string `json:"publicUrl"`
}

func (st *Storage) objectPath(bucket, key string) (string, error) {
	if _, ok := buckets[bucket]; !ok {
		return "", errBadObjectPath
	}
	clean := path.Clean("/" + key)
	if clean == "/" || clean != "/"+key || strings.Contains(key, "\\") {
		return "", errBadObjectPath
	}
	return filepath.Join(st.dir, bucket, filepath.FromSlash(clean[1:])), nil
}

func (st *Storage) handleUpload(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	userID, ok := st.lookup(token)
	if token == "" || !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	bucket := chi.URLParam(r, "bucket")
	key := chi.URLParam(r, "*")
	limit, known := buckets[bucket]
	if !known {
		writeError(w, http.StatusNotFound, "bucket not found")
		return
	}
	if !strings.HasPrefix(key, userID+"/") {
		writeError(w, http.StatusForbidden, "path outside user folder")
		return
	}
	dst, err := st.objectPath(bucket, key)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body")
		return
	}
	if int64(len(body)) > limit {
		writeError(w, http.StatusRequestEntityTooLarge, "object too large")
		return
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		log.Error().Err(err).Msg("storage mkdir")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, fs.ErrExist) {
		writeError(w, http.StatusConflict, "object already exists")
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("storage create")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	_, err = f.Write(body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dst)
		log.Error().Err(err).Msg("storage write")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	log.Info().Str("bucket", bucket).Str("key", key).Int("size", len(body)).Msg("object stored")
	writeJSON(w, http.StatusOK, uploadResponse{Key: bucket + "/" + key, PublicURL: st.PublicURL(bucket, key)})
}

func (st *Storage) handleDownload(w http.ResponseWriter, r *http.Request) {
	src, err := st.objectPath(chi.URLParam(r, "bucket"), chi.URLParam(r, "*"))
	if err != nil {
		writeError(w, http.StatusNotFound, "object not found")
		return
	}
	if info, err := os.Stat(src); err != nil || info.IsDir() {
		writeError(w, http.StatusNotFound, "object not found")
		return
	}
	http.ServeFile(w, r, src)
}

// Handler serves object storage, the realtime websocket and health checks.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Put("/storage/v1/object/{bucket}/*", s.storage.handleUpload)
	r.Get("/storage/v1/object/public/{bucket}/*", s.storage.handleDownload)
	r.Get("/realtime/v1/websocket", s.handleWebsocket)
	return r
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
