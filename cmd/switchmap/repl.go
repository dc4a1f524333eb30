package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/vbonduro/switchmap/internal/canvas"
	"github.com/vbonduro/switchmap/internal/domain"
	"github.com/vbonduro/switchmap/internal/drawing"
	"github.com/vbonduro/switchmap/internal/mapcap"
	"github.com/vbonduro/switchmap/internal/mapcap/headless"
	"github.com/vbonduro/switchmap/internal/notify"
	"github.com/vbonduro/switchmap/internal/selection"
	"github.com/vbonduro/switchmap/internal/shape"
)

const helpText = `commands:
  tool none|marker|polygon|rectangle   toggle a drawing tool
  point LAT,LNG                        draw a marker
  polygon LAT,LNG LAT,LNG LAT,LNG ...  draw a polygon
  rect NORTH SOUTH EAST WEST           draw a rectangle
  click LAT,LNG | hover LAT,LNG on|off
  drag LAT,LNG                         move the selected marker
  path LAT,LNG ...                     reshape the polygon being edited
  edit | name TEXT | desc TEXT | photo FILE | suggest | save
  cancel | discard | keep | view | close | delete | confirm | nodelete | esc
  list | focus ID | remove ID | reload | pan LAT,LNG ZOOM | intro
  state | help | quit`

var errQuit = errors.New("quit")

type repl struct {
	m       *headless.Map
	sel     *selection.Controller
	draw    *drawing.Controller
	session *canvas.Session
	out     io.Writer
	logger  *slog.Logger
}

func (r *repl) run(ctx context.Context, in io.Reader) error {
	fmt.Fprintln(r.out, `switchmap console, "help" lists commands`)
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(r.out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}
		err := r.exec(ctx, scanner.Text())
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			fmt.Fprintf(r.out, "error: %v\n", err)
		}
	}
}

func (r *repl) exec(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, args := fields[0], fields[1:]
	rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), cmd))

	switch cmd {
	case "help":
		fmt.Fprintln(r.out, helpText)
	case "quit", "exit":
		return errQuit
	case "tool":
		if len(args) != 1 {
			return fmt.Errorf("usage: tool none|marker|polygon|rectangle")
		}
		t, ok := mapcap.ParseTool(args[0])
		if !ok {
			return fmt.Errorf("unknown tool %q", args[0])
		}
		if err := r.draw.SetMode(t); err != nil {
			return err
		}
		fmt.Fprintf(r.out, "drawing: %s\n", r.draw.Mode())
	case "point":
		p, err := singlePoint(args)
		if err != nil {
			return err
		}
		_, err = r.m.Draw(mapcap.Geometry{Shape: mapcap.ShapeMarker, Position: p})
		return err
	case "polygon":
		path, err := parsePath(args)
		if err != nil {
			return err
		}
		_, err = r.m.Draw(mapcap.Geometry{Shape: mapcap.ShapePolygon, Path: path})
		return err
	case "rect":
		b, err := parseBounds(args)
		if err != nil {
			return err
		}
		_, err = r.m.Draw(mapcap.Geometry{Shape: mapcap.ShapeRectangle, Bounds: b})
		return err
	case "click":
		p, err := singlePoint(args)
		if err != nil {
			return err
		}
		r.m.Click(p)
	case "hover":
		if len(args) != 2 {
			return fmt.Errorf("usage: hover LAT,LNG on|off")
		}
		p, err := parseLatLng(args[0])
		if err != nil {
			return err
		}
		h, ok := r.m.HandleAt(p)
		if !ok {
			return fmt.Errorf("nothing at %s", args[0])
		}
		r.m.Hover(h, args[1] == "on")
	case "drag":
		p, err := singlePoint(args)
		if err != nil {
			return err
		}
		cur := r.sel.Current()
		if cur == nil {
			return fmt.Errorf("no shape is selected")
		}
		return r.m.Drag(cur.Handle(), mapcap.Geometry{Shape: mapcap.ShapeMarker, Position: p})
	case "path":
		path, err := parsePath(args)
		if err != nil {
			return err
		}
		cur, err := r.editing()
		if err != nil {
			return err
		}
		return r.m.EditPath(cur.Handle(), path)
	case "edit":
		return r.sel.Edit()
	case "name":
		return r.sel.SetName(rest)
	case "desc":
		return r.sel.SetDescription(rest)
	case "photo":
		if rest == "" {
			return fmt.Errorf("usage: photo FILE")
		}
		data, err := os.ReadFile(rest)
		if err != nil {
			return fmt.Errorf("failed to read photo: %w", err)
		}
		return r.sel.AttachPhoto(ctx, filepath.Base(rest), data)
	case "suggest":
		if err := r.sel.SuggestDescription(ctx); err != nil {
			return err
		}
		fmt.Fprintf(r.out, "description: %s\n", r.sel.Form().Description)
	case "save":
		return r.sel.Save(ctx)
	case "cancel":
		return r.sel.Cancel()
	case "discard":
		return r.sel.Discard(ctx)
	case "keep":
		return r.sel.KeepEditing()
	case "view":
		return r.sel.View()
	case "close":
		return r.sel.CloseView()
	case "delete":
		return r.sel.RequestDelete()
	case "confirm":
		return r.sel.ConfirmDelete(ctx)
	case "nodelete":
		return r.sel.CancelDelete()
	case "esc":
		r.sel.Escape()
	case "list":
		r.printAreas(ctx)
	case "focus", "remove":
		if len(args) != 1 {
			return fmt.Errorf("usage: %s ID", cmd)
		}
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid id %q", args[0])
		}
		if cmd == "focus" {
			return r.session.Focus(id)
		}
		return r.session.DeleteArea(ctx, id)
	case "reload":
		return r.session.Reload(ctx)
	case "pan":
		if len(args) != 2 {
			return fmt.Errorf("usage: pan LAT,LNG ZOOM")
		}
		p, err := parseLatLng(args[0])
		if err != nil {
			return err
		}
		zoom, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("invalid zoom %q", args[1])
		}
		cam := r.m.Camera()
		cam.Center, cam.Zoom = p, zoom
		r.m.Pan(cam)
	case "intro":
		return r.session.PlayIntro(ctx)
	case "state":
		r.printState()
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
	return nil
}

func (r *repl) editing() (*shape.DrawnShape, error) {
	cur := r.sel.Current()
	if cur == nil || r.sel.State() != selection.Editing {
		return nil, fmt.Errorf("no shape is being edited")
	}
	return cur, nil
}

func (r *repl) printAreas(ctx context.Context) {
	areas := r.session.ListAreas(ctx)
	if len(areas) == 0 {
		fmt.Fprintln(r.out, "no saved areas")
		return
	}
	for _, a := range areas {
		fmt.Fprintf(r.out, "%d\t%s\t%s\t%d photos\n", *a.ID, a.Type, a.Name, len(a.UploadedPhotos()))
	}
}

func (r *repl) printState() {
	fmt.Fprintf(r.out, "state: %s", r.sel.State())
	if p := r.sel.Prompt(); p != selection.PromptNone {
		fmt.Fprintf(r.out, " (%s)", p)
	}
	if cur := r.sel.Current(); cur != nil {
		a := cur.Area()
		id := "unsaved"
		if a.ID != nil {
			id = strconv.FormatInt(*a.ID, 10)
		}
		fmt.Fprintf(r.out, "  shape: %s %s %q", id, a.Type, a.Name)
	}
	if r.sel.State() == selection.Editing {
		f := r.sel.Form()
		fmt.Fprintf(r.out, "  form: %q %q, %d pending photos, dirty=%t", f.Name, f.Description, len(f.Pending), r.sel.Dirty())
	}
	cam := r.m.Camera()
	fmt.Fprintf(r.out, "\ncamera: %.6f,%.6f z%.0f tilt %.0f  tool: %s  shapes: %d\n",
		cam.Center.Lat, cam.Center.Lng, cam.Zoom, cam.Tilt, r.draw.Mode(), r.m.Len())
}

func parseLatLng(s string) (domain.LatLng, error) {
	lat, lng, ok := strings.Cut(s, ",")
	if !ok {
		return domain.LatLng{}, fmt.Errorf("expected LAT,LNG, got %q", s)
	}
	la, err := strconv.ParseFloat(lat, 64)
	if err != nil {
		return domain.LatLng{}, fmt.Errorf("invalid latitude %q", lat)
	}
	ln, err := strconv.ParseFloat(lng, 64)
	if err != nil {
		return domain.LatLng{}, fmt.Errorf("invalid longitude %q", lng)
	}
	return domain.LatLng{Lat: la, Lng: ln}, nil
}

func singlePoint(args []string) (domain.LatLng, error) {
	if len(args) != 1 {
		return domain.LatLng{}, fmt.Errorf("expected one LAT,LNG")
	}
	return parseLatLng(args[0])
}

func parsePath(args []string) ([]domain.LatLng, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("expected LAT,LNG points")
	}
	path := make([]domain.LatLng, 0, len(args))
	for _, a := range args {
		p, err := parseLatLng(a)
		if err != nil {
			return nil, err
		}
		path = append(path, p)
	}
	return path, nil
}

func parseBounds(args []string) (mapcap.Bounds, error) {
	if len(args) != 4 {
		return mapcap.Bounds{}, fmt.Errorf("usage: rect NORTH SOUTH EAST WEST")
	}
	var v [4]float64
	for i, a := range args {
		f, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return mapcap.Bounds{}, fmt.Errorf("invalid bound %q", a)
		}
		v[i] = f
	}
	return mapcap.Bounds{North: v[0], South: v[1], East: v[2], West: v[3]}, nil
}

// consoleNotifier prints notifications for the operator and logs them.
type consoleNotifier struct {
	out io.Writer
	log *notify.LogNotifier
}

func newConsoleNotifier(out io.Writer, logger *slog.Logger) *consoleNotifier {
	return &consoleNotifier{out: out, log: notify.NewLogNotifier(logger)}
}

func (n *consoleNotifier) Notify(msg notify.Notification) {
	fmt.Fprintf(n.out, "[%s] %s\n", msg.Level, msg.Message)
	n.log.Notify(msg)
}
