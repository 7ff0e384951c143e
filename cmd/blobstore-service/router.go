// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/bureau-foundation/blobstore/lib/objectstore"
	"github.com/bureau-foundation/blobstore/lib/session"
	"github.com/bureau-foundation/blobstore/lib/version"
	"github.com/bureau-foundation/blobstore/transport"
)

// routerConfig holds everything the HTTP surface needs.
type routerConfig struct {
	Server         *session.Server
	MaxMessageSize int
	Logger         *slog.Logger
}

// newRouter builds the HTTP handler. WebSocket sessions on /ws run
// under their request context, which service.HTTPServer cancels once
// ordinary requests have drained.
func newRouter(config routerConfig) http.Handler {
	api := &objectAPI{
		store:  config.Server.Store(),
		server: config.Server,
		logger: config.Logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/health", api.health)

	r.Route("/objects", func(r chi.Router) {
		r.Get("/", api.list)
		r.Get("/{id}", api.get)
		r.Put("/{id}", api.put)
		r.Delete("/{id}", api.delete)
	})

	r.Handle("/ws", transport.WebSocketHandler(config.Server.ServeConn, config.MaxMessageSize))
	return r
}

type objectAPI struct {
	store  *objectstore.Store
	server *session.Server
	logger *slog.Logger
}

type healthResponse struct {
	Status           string `json:"status"`
	Version          string `json:"version"`
	ActiveSessions   int64  `json:"active_sessions"`
	AcceptedSessions uint64 `json:"accepted_sessions"`
}

func (a *objectAPI) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:           "ok",
		Version:          version.Info(),
		ActiveSessions:   a.server.ActiveSessions(),
		AcceptedSessions: a.server.AcceptedSessions(),
	})
}

// typeSeparator joins a ?type= namespace to an object id to form the
// store key. Ids in the path cannot contain it.
const typeSeparator = "/"

// objectKey maps the {id} path parameter and the optional ?type=
// namespace to a store key.
func objectKey(r *http.Request) (string, error) {
	id := chi.URLParam(r, "id")
	namespace, err := objectType(r)
	if err != nil || namespace == "" {
		return id, err
	}
	return namespace + typeSeparator + id, nil
}

// objectType returns the ?type= namespace, or "" when absent.
func objectType(r *http.Request) (string, error) {
	namespace := r.URL.Query().Get("type")
	if namespace == "" {
		return "", nil
	}
	if strings.Contains(namespace, typeSeparator) {
		return "", fmt.Errorf("%w: type %q contains %q", objectstore.ErrInvalidKey, namespace, typeSeparator)
	}
	if err := objectstore.ValidateKey(namespace); err != nil {
		return "", err
	}
	return namespace, nil
}

// list returns every key, or with ?type= the ids in that namespace.
func (a *objectAPI) list(w http.ResponseWriter, r *http.Request) {
	namespace, err := objectType(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	keys, err := a.store.ListKeys(r.Context())
	if err != nil {
		a.internalError(w, r, err)
		return
	}
	if namespace != "" {
		prefix := namespace + typeSeparator
		ids := make([]string, 0, len(keys))
		for _, key := range keys {
			if id, ok := strings.CutPrefix(key, prefix); ok {
				ids = append(ids, id)
			}
		}
		keys = ids
	}
	writeJSON(w, http.StatusOK, keys)
}

// get always serves the canonical payload, decoding stored bytes when
// the store runs in passthrough mode.
func (a *objectAPI) get(w http.ResponseWriter, r *http.Request) {
	id, err := objectKey(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	object, err := a.store.Get(r.Context(), id)
	if err != nil {
		if objectstore.IsNotFound(err) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		a.internalError(w, r, err)
		return
	}

	payload := object.Data
	if object.Compression != objectstore.CompressionNone {
		payload, err = objectstore.Decompress(object.Data, object.Compression, object.Size)
		if err != nil {
			a.internalError(w, r, err)
			return
		}
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
	w.Header().Set("X-Blob-Digest", object.Digest.String())
	w.WriteHeader(http.StatusOK)
	w.Write(payload)
}

type putResponse struct {
	ID          string `json:"id"`
	Size        int64  `json:"size"`
	StoredSize  int64  `json:"stored_size"`
	Compression string `json:"compression"`
	Digest      string `json:"digest"`
}

func (a *objectAPI) put(w http.ResponseWriter, r *http.Request) {
	id, err := objectKey(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := objectstore.ValidateKey(id); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	body := io.Reader(r.Body)
	if limit := a.store.MaxObjectSize(); limit > 0 {
		body = http.MaxBytesReader(w, r.Body, limit)
	}
	payload, err := io.ReadAll(body)
	if err != nil {
		var maxBytesError *http.MaxBytesError
		if errors.As(err, &maxBytesError) {
			http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "reading body: "+err.Error(), http.StatusBadRequest)
		return
	}

	info, err := a.store.Put(r.Context(), id, payload)
	if err != nil {
		switch {
		case errors.Is(err, objectstore.ErrPayloadTooLarge):
			http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
		case errors.Is(err, objectstore.ErrInvalidKey):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			a.internalError(w, r, err)
		}
		return
	}

	a.logger.Info("object committed over http",
		"object_id", id,
		"size", info.Size,
		"request_id", middleware.GetReqID(r.Context()),
	)
	writeJSON(w, http.StatusOK, putResponse{
		ID:          info.Key,
		Size:        info.Size,
		StoredSize:  info.StoredSize,
		Compression: info.Compression.String(),
		Digest:      info.Digest.String(),
	})
}

func (a *objectAPI) delete(w http.ResponseWriter, r *http.Request) {
	id, err := objectKey(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	existed, err := a.store.Delete(r.Context(), id)
	if err != nil {
		a.internalError(w, r, err)
		return
	}
	deleted := 0
	if existed {
		deleted = 1
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
}

func (a *objectAPI) internalError(w http.ResponseWriter, r *http.Request, err error) {
	a.logger.Error("http request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"request_id", middleware.GetReqID(r.Context()),
		"error", err,
	)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(value)
}
