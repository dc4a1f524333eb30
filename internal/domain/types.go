package domain

import (
	"fmt"
	"time"
)

type AreaType string

const (
	AreaPoint   AreaType = "POINT"
	AreaPolygon AreaType = "POLYGON"
)

// ParseAreaType accepts the wire values "POINT" and "POLYGON".
func ParseAreaType(s string) (AreaType, error) {
	switch AreaType(s) {
	case AreaPoint, AreaPolygon:
		return AreaType(s), nil
	default:
		return "", fmt.Errorf("unknown area type %q", s)
	}
}

type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Coordinates holds Point for POINT areas and Path for POLYGON areas.
// Exactly one of them is meaningful, selected by the owning Area's Type.
type Coordinates struct {
	Point LatLng
	Path  []LatLng
}

func PointCoordinates(p LatLng) Coordinates {
	return Coordinates{Point: p}
}

func PathCoordinates(path []LatLng) Coordinates {
	cp := make([]LatLng, len(path))
	copy(cp, path)
	return Coordinates{Path: cp}
}

// Clone returns a copy that shares no backing array with c.
func (c Coordinates) Clone() Coordinates {
	if c.Path == nil {
		return c
	}
	return PathCoordinates(c.Path)
}

// Area is a switchroom record. A nil ID means the area has never been saved.
type Area struct {
	ID          *int64
	Name        string
	Description string
	Type        AreaType
	Coordinates Coordinates
	Photos      []PhotoRef
}

func (a Area) Provisional() bool {
	return a.ID == nil
}

// UploadedPhotos returns only the photos the backend already holds.
func (a Area) UploadedPhotos() []UploadedPhoto {
	out := make([]UploadedPhoto, 0, len(a.Photos))
	for _, p := range a.Photos {
		if p.Uploaded != nil {
			out = append(out, *p.Uploaded)
		}
	}
	return out
}

// PhotoRef is either a photo the backend returned or a local file waiting
// for upload. Exactly one field is set.
type PhotoRef struct {
	Uploaded *UploadedPhoto
	Pending  *PendingPhoto
}

type UploadedPhoto struct {
	ID         int64
	URL        string
	UploadedAt time.Time
}

// PendingPhoto is a staged local file. StorageKey addresses the staged bytes
// in the photo staging store.
type PendingPhoto struct {
	Filename   string
	MimeType   string
	StorageKey string
}

// PhotoFile is a pending photo opened for upload.
type PhotoFile struct {
	Filename string
	MimeType string
	Data     []byte
}

// Camera is the last-viewed map position.
type Camera struct {
	Center  LatLng
	Zoom    float64
	Tilt    float64
	Heading float64
}

func Int64Ptr(v int64) *int64 {
	return &v
}
