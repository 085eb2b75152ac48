package provider

import (
	"context"
	"encoding/json"
	"time"
)

// Rendition selects one of the interchangeable audio variants of a track.
type Rendition string

const (
	Vocal        Rendition = "vocal"
	Instrumental Rendition = "instrumental"
)

// Valid reports whether r names a known rendition.
func (r Rendition) Valid() bool {
	return r == Vocal || r == Instrumental
}

// Sort orders catalog listings.
type Sort string

const (
	SortDefault Sort = ""
	SortTitle   Sort = "title"
	SortCreated Sort = "created"
)

// TrackQuery filters ListTracks. At most one of the id filters is expected to
// be set; with none set, the whole catalog is listed.
type TrackQuery struct {
	AlbumID     string
	CategoryID  string
	PlaylistID  string
	FavoritesOf string
	Search      string
	Sort        Sort
}

// Backend is the hosted data/storage/auth collaborator.
type Backend interface {
	ID() string
	Name() string

	Initialize(ctx context.Context, profileCfg any) error
	Health(ctx context.Context) (bool, string)

	Catalog
	Library
	Storage
	Auth
}

type Catalog interface {
	ListTracks(ctx context.Context, q TrackQuery) ([]Track, error)
	ListAlbums(ctx context.Context) ([]Album, error)
	ListCategories(ctx context.Context) ([]Category, error)
	ListPlaylists(ctx context.Context, userID string) ([]Playlist, error)
}

type Library interface {
	CreatePlaylist(ctx context.Context, userID, name, color string) (Playlist, error)
	DeletePlaylist(ctx context.Context, playlistID string) error
	AddToPlaylist(ctx context.Context, playlistID, trackID string, order int) error
	RemoveFromPlaylist(ctx context.Context, playlistID, trackID string) error
	AddFavorite(ctx context.Context, userID, trackID string) error
	RemoveFavorite(ctx context.Context, userID, trackID string) error
}

// Storage issues URLs for stored objects. SignURL is used for private audio
// files, PublicURL for cover art.
type Storage interface {
	SignURL(ctx context.Context, path string, ttl time.Duration) (string, error)
	PublicURL(path string) string
}

type Auth interface {
	CurrentSession(ctx context.Context) (Session, error)
	Profile(ctx context.Context, userID string) (Profile, error)
	SignOut(ctx context.Context) error
}

// Track is a read-only song descriptor owned by the backend.
type Track struct {
	ID                   string
	Title                string
	Artist               string
	VocalRef             string
	InstrumentalRef      string
	DurationSeconds      int
	StoreURL             string
	StoreURLInstrumental string
	LyricsTimed          json.RawMessage
	CreatedAt            time.Time
}

// FileRef returns the storage path for the given rendition, or "" when the
// track has no file for it.
func (t Track) FileRef(r Rendition) string {
	switch r {
	case Instrumental:
		return t.InstrumentalRef
	case Vocal:
		return t.VocalRef
	}
	return ""
}

func (t Track) HasRendition(r Rendition) bool { return t.FileRef(r) != "" }

// PurchaseLink returns the store link for the rendition, if any.
func (t Track) PurchaseLink(r Rendition) string {
	if r == Instrumental {
		return t.StoreURLInstrumental
	}
	return t.StoreURL
}

// Duration returns the catalog duration, zero when unknown.
func (t Track) Duration() time.Duration {
	return time.Duration(t.DurationSeconds) * time.Second
}

type Album struct {
	ID         string
	Name       string
	CoverPath  string
	CreatedAt  time.Time
	TrackCount int
}

type Category struct {
	ID       string
	Name     string
	IconPath string
}

type Playlist struct {
	ID         string
	UserID     string
	Name       string
	CoverColor string
	CreatedAt  time.Time
}

// Session is the signed-in user as seen by the backend.
type Session struct {
	UserID      string
	Email       string
	DisplayName string
	ExpiresAt   time.Time
}

type Profile struct {
	ID               string
	SubscriptionTier string
}
