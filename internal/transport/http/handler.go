package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/cwrk-planet/coop-relay/internal/domain"
	"github.com/cwrk-planet/coop-relay/internal/postgres"
	"github.com/cwrk-planet/coop-relay/pkg/httputil"

	"github.com/go-chi/chi/v5"
)

type RoomReader interface {
	Rooms() []domain.RoomInfo
	Room(name string) (domain.RoomInfo, error)
}

// EventHistory — журнал сессий; nil, если Postgres не настроен.
type EventHistory interface {
	History(ctx context.Context, room, cursor string, limit int) ([]domain.SessionEvent, string, error)
}

type ExtensionsConfig struct {
	Enabled bool
	Dir     string
}

type Handler struct {
	rooms      RoomReader
	history    EventHistory
	extensions ExtensionsConfig
}

func NewHandler(rooms RoomReader, history EventHistory, ext ExtensionsConfig) *Handler {
	return &Handler{
		rooms:      rooms,
		history:    history,
		extensions: ext,
	}
}

// GET /rooms
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, h.rooms.Rooms())
}

// GET /rooms/{name}
func (h *Handler) GetRoom(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	room, err := h.rooms.Room(name)
	if err != nil {
		if errors.Is(err, domain.ErrRoomNotFound) {
			httputil.Error(w, http.StatusNotFound, "room not found", map[string]any{"room": name})
			return
		}
		slog.Error("handler.GetRoom:", slog.Any("err", err))
		httputil.Error(w, http.StatusInternalServerError, "internal error", nil)
		return
	}
	httputil.OK(w, room)
}

// GET /rooms/{name}/events?limit=&cursor=
func (h *Handler) RoomEvents(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		httputil.Error(w, http.StatusServiceUnavailable, domain.ErrJournalDisabled.Error(), nil)
		return
	}

	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			httputil.Error(w, http.StatusBadRequest, "invalid limit", nil)
			return
		}
		limit = n
	}

	events, next, err := h.history.History(r.Context(), chi.URLParam(r, "name"), r.URL.Query().Get("cursor"), limit)
	if err != nil {
		if errors.Is(err, postgres.ErrInvalidCursor) {
			httputil.Error(w, http.StatusBadRequest, "invalid cursor", nil)
			return
		}
		slog.Error("handler.RoomEvents:", slog.Any("err", err))
		httputil.Error(w, http.StatusInternalServerError, "internal error", nil)
		return
	}
	if events == nil {
		events = []domain.SessionEvent{}
	}
	httputil.OKPage(w, events, next)
}

// GET /extensions — список клиентских *.js скриптов.
func (h *Handler) ListExtensions(w http.ResponseWriter, r *http.Request) {
	if !h.extensions.Enabled {
		httputil.Error(w, http.StatusNotFound, "extensions disabled", nil)
		return
	}

	entries, err := os.ReadDir(h.extensions.Dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			httputil.OK(w, []string{})
			return
		}
		slog.Error("handler.ListExtensions:", slog.Any("err", err))
		httputil.Error(w, http.StatusInternalServerError, "internal error", nil)
		return
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(e.Name(), ".js") {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)
	httputil.OK(w, names)
}

// GET /extensions/{file}
func (h *Handler) GetExtension(w http.ResponseWriter, r *http.Request) {
	if !h.extensions.Enabled {
		httputil.Error(w, http.StatusNotFound, "extensions disabled", nil)
		return
	}

	file := chi.URLParam(r, "file")
	if file != filepath.Base(file) || !strings.HasSuffix(file, ".js") || strings.HasPrefix(file, ".") {
		httputil.Error(w, http.StatusNotFound, "extension not found", nil)
		return
	}
	path := filepath.Join(h.extensions.Dir, file)
	if st, err := os.Stat(path); err != nil || !st.Mode().IsRegular() {
		httputil.Error(w, http.StatusNotFound, "extension not found", nil)
		return
	}

	w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
	http.ServeFile(w, r, path)
}
