package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbonduro/switchmap/internal/canvas"
	"github.com/vbonduro/switchmap/internal/db"
	"github.com/vbonduro/switchmap/internal/domain"
	"github.com/vbonduro/switchmap/internal/drawing"
	"github.com/vbonduro/switchmap/internal/localcache"
	"github.com/vbonduro/switchmap/internal/mapcap"
	"github.com/vbonduro/switchmap/internal/mapcap/headless"
	"github.com/vbonduro/switchmap/internal/remote"
	"github.com/vbonduro/switchmap/internal/selection"
	"github.com/vbonduro/switchmap/internal/shape"
	"github.com/vbonduro/switchmap/internal/store"
)

// switchroomAPI is an in-memory stand-in for the switchroom backend.
type switchroomAPI struct {
	mu     sync.Mutex
	nextID int64
	areas  map[int64]map[string]any
}

func newSwitchroomAPI() *switchroomAPI {
	return &switchroomAPI{nextID: 1, areas: make(map[int64]map[string]any)}
}

func (a *switchroomAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/api/switchrooms/":
		list := make([]map[string]any, 0, len(a.areas))
		for id := int64(1); id < a.nextID; id++ {
			if rec, ok := a.areas[id]; ok {
				list = append(list, rec)
			}
		}
		_ = json.NewEncoder(w).Encode(list)
	case r.Method == http.MethodPost && r.URL.Path == "/api/switchrooms/":
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		id := a.nextID
		a.nextID++
		rec := map[string]any{
			"id":          id,
			"name":        r.FormValue("name"),
			"description": r.FormValue("description"),
			"area_type":   r.FormValue("area_type"),
			"coordinates": json.RawMessage(r.FormValue("coordinates")),
			"photos":      []any{},
		}
		a.areas[id] = rec
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(rec)
	case r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, "/api/switchrooms/"):
		id, err := strconv.ParseInt(strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/switchrooms/"), "/"), 10, 64)
		if err != nil {
			http.Error(w, "bad id", http.StatusBadRequest)
			return
		}
		if _, ok := a.areas[id]; !ok {
			http.NotFound(w, r)
			return
		}
		delete(a.areas, id)
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "unexpected request", http.StatusMethodNotAllowed)
	}
}

func (a *switchroomAPI) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.areas)
}

func newTestRepl(t *testing.T, api *switchroomAPI) (*repl, *bytes.Buffer) {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	conn, err := db.OpenForTesting()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	out := &bytes.Buffer{}
	logger := slog.Default()
	notifier := newConsoleNotifier(out, logger)
	blobs := store.NewBlobStore(conn)
	shapes := localcache.NewShapeCache(blobs, logger)
	client := remote.NewClient(srv.URL, 5*time.Second, logger)

	m := headless.New(domain.Camera{})
	registry := shape.NewRegistry(m, logger)
	sel := selection.New(selection.Options{
		Registry:   registry,
		Repository: client,
		Cache:      shapes,
		Notifier:   notifier,
		Logger:     logger,
	})
	draw := drawing.New(m, registry, sel, shapes, notifier, logger)
	session := canvas.New(canvas.Options{
		Map:       m,
		Registry:  registry,
		Selection: sel,
		Drawing:   draw,
		Remote:    client,
		Shapes:    shapes,
		Camera:    localcache.NewCameraCache(blobs, logger),
		Notifier:  notifier,
		Logger:    logger,
		State:     &canvas.SessionState{},
	})
	require.NoError(t, session.Start(context.Background()))
	t.Cleanup(session.Teardown)

	return &repl{m: m, sel: sel, draw: draw, session: session, out: out, logger: logger}, out
}

func TestConsoleDrawSaveListRemove(t *testing.T) {
	api := newSwitchroomAPI()
	r, out := newTestRepl(t, api)

	script := strings.Join([]string{
		"tool marker",
		"point -37.831958,144.788857",
		"name Roof Cabinet",
		"desc Main board",
		"save",
		"list",
		"remove 1",
		"list",
		"quit",
		"state",
	}, "\n")
	require.NoError(t, r.run(context.Background(), strings.NewReader(script)))

	text := out.String()
	assert.Contains(t, text, "drawing: marker")
	assert.Contains(t, text, "[success] Area saved")
	assert.Contains(t, text, "1\tPOINT\tRoof Cabinet")
	assert.Contains(t, text, "[success] Area deleted")
	assert.Contains(t, text, "no saved areas")
	assert.NotContains(t, text, "state:")
	assert.Zero(t, api.count())
}

func TestConsoleSaveWithoutNameIsRejected(t *testing.T) {
	api := newSwitchroomAPI()
	r, out := newTestRepl(t, api)

	script := "tool polygon\npolygon 1,1 1,2 2,2\nsave\nstate\n"
	require.NoError(t, r.run(context.Background(), strings.NewReader(script)))

	assert.Contains(t, out.String(), "error:")
	assert.Contains(t, out.String(), "state: editing")
	assert.Zero(t, api.count())
}

func TestConsoleRectangleBecomesPolygon(t *testing.T) {
	r, _ := newTestRepl(t, newSwitchroomAPI())

	require.NoError(t, r.exec(context.Background(), "tool rectangle"))
	require.NoError(t, r.exec(context.Background(), "rect 2 1 4 3"))

	cur := r.sel.Current()
	require.NotNil(t, cur)
	assert.Equal(t, mapcap.ShapePolygon, cur.Handle().Geometry().Shape)
	assert.Equal(t, []domain.LatLng{{Lat: 2, Lng: 3}, {Lat: 2, Lng: 4}, {Lat: 1, Lng: 4}, {Lat: 1, Lng: 3}}, cur.Handle().Geometry().Path)
}

func TestConsoleReportsUnknownCommand(t *testing.T) {
	r, _ := newTestRepl(t, newSwitchroomAPI())
	assert.ErrorContains(t, r.exec(context.Background(), "teleport"), "unknown command")
	assert.NoError(t, r.exec(context.Background(), "   "))
}

func TestParseLatLng(t *testing.T) {
	p, err := parseLatLng("-37.5,144.25")
	require.NoError(t, err)
	assert.Equal(t, domain.LatLng{Lat: -37.5, Lng: 144.25}, p)

	for _, bad := range []string{"", "1", "a,1", "1,b"} {
		_, err := parseLatLng(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseBounds(t *testing.T) {
	b, err := parseBounds([]string{"2", "1", "4", "3"})
	require.NoError(t, err)
	assert.Equal(t, mapcap.Bounds{North: 2, South: 1, East: 4, West: 3}, b)

	_, err = parseBounds([]string{"2", "1"})
	assert.Error(t, err)
	_, err = parseBounds([]string{"2", "1", "x", "3"})
	assert.Error(t, err)
}
