// Package remote is the HTTP client for the switchroom CRUD API.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/vbonduro/switchmap/internal/domain"
	"github.com/vbonduro/switchmap/internal/geometry"
	"github.com/vbonduro/switchmap/internal/metrics"
)

const (
	collectionPath = "/api/switchrooms/"
	photosField    = "photos"
	maxErrorBody   = 4096
)

// Client talks to the switchroom API rooted at baseURL.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type photoDTO struct {
	ID         int64     `json:"id"`
	Image      string    `json:"image"`
	UploadedAt time.Time `json:"uploaded_at"`
}

type areaDTO struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	AreaType    string          `json:"area_type"`
	Coordinates json.RawMessage `json:"coordinates"`
	Photos      []photoDTO      `json:"photos"`
}

func (d areaDTO) toArea() (domain.Area, error) {
	t, err := domain.ParseAreaType(d.AreaType)
	if err != nil {
		return domain.Area{}, err
	}
	coords, err := geometry.Decode(t, d.Coordinates)
	if err != nil {
		return domain.Area{}, err
	}
	photos := make([]domain.PhotoRef, 0, len(d.Photos))
	for _, p := range d.Photos {
		photos = append(photos, domain.PhotoRef{Uploaded: &domain.UploadedPhoto{
			ID:         p.ID,
			URL:        p.Image,
			UploadedAt: p.UploadedAt,
		}})
	}
	return domain.Area{
		ID:          domain.Int64Ptr(d.ID),
		Name:        d.Name,
		Description: d.Description,
		Type:        t,
		Coordinates: coords,
		Photos:      photos,
	}, nil
}

// List fetches every area. Records the client cannot decode are skipped and
// logged.
func (c *Client) List(ctx context.Context) ([]domain.Area, error) {
	var dtos []areaDTO
	if err := c.do(ctx, "list", http.MethodGet, collectionPath, nil, "", &dtos); err != nil {
		return nil, err
	}
	areas := make([]domain.Area, 0, len(dtos))
	for _, d := range dtos {
		a, err := d.toArea()
		if err != nil {
			c.logger.Warn("skipping undecodable area", "area_id", d.ID, "error", err)
			continue
		}
		areas = append(areas, a)
	}
	return areas, nil
}

// Create posts a new area with files attached under the photos field.
func (c *Client) Create(ctx context.Context, area domain.Area, files []domain.PhotoFile) (domain.Area, error) {
	return c.write(ctx, "create", http.MethodPost, collectionPath, area, files)
}

// Update replaces the fields of area id. Files are added to its photos.
func (c *Client) Update(ctx context.Context, id int64, area domain.Area, files []domain.PhotoFile) (domain.Area, error) {
	return c.write(ctx, "update", http.MethodPut, itemPath(id), area, files)
}

// Remove deletes area id. A missing record yields a NotFoundError.
func (c *Client) Remove(ctx context.Context, id int64) error {
	err := c.do(ctx, "remove", http.MethodDelete, itemPath(id), nil, "", nil)
	var se *domain.ServerError
	if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
		return &domain.NotFoundError{ID: id}
	}
	return err
}

func itemPath(id int64) string {
	return fmt.Sprintf("%s%d/", collectionPath, id)
}

func (c *Client) write(ctx context.Context, op, method, path string, area domain.Area, files []domain.PhotoFile) (domain.Area, error) {
	body, contentType, err := encodeForm(area, files)
	if err != nil {
		return domain.Area{}, fmt.Errorf("failed to encode %s request: %w", op, err)
	}
	var dto areaDTO
	if err := c.do(ctx, op, method, path, body, contentType, &dto); err != nil {
		return domain.Area{}, err
	}
	saved, err := dto.toArea()
	if err != nil {
		return domain.Area{}, fmt.Errorf("failed to decode %s response: %w", op, err)
	}
	return saved, nil
}

func encodeForm(area domain.Area, files []domain.PhotoFile) (*bytes.Buffer, string, error) {
	coords, err := geometry.Encode(area.Type, area.Coordinates)
	if err != nil {
		return nil, "", err
	}

	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	fields := [][2]string{
		{"name", area.Name},
		{"description", area.Description},
		{"area_type", string(area.Type)},
		{"coordinates", string(coords)},
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", err
		}
	}
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, photosField, f.Filename))
		h.Set("Content-Type", f.MimeType)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf, w.FormDataContentType(), nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body io.Reader, contentType string, out any) (err error) {
	start := time.Now()
	defer func() {
		metrics.RemoteRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
		metrics.RemoteRequestsTotal.WithLabelValues(op, outcome(err)).Inc()
	}()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return &domain.NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Warn("switchroom api error", "op", op, "status", resp.StatusCode)
		return &domain.ServerError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", op, err)
	}
	return nil
}

func outcome(err error) string {
	var ne *domain.NetworkError
	var se *domain.ServerError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &ne):
		return "network_error"
	case errors.As(err, &se):
		return "server_error"
	default:
		return "error"
	}
}
