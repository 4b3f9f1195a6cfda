package domain

import "time"

type Store string

const (
	StoreAndroid Store = "android"
	StoreIOS     Store = "ios"
)

func (s Store) Valid() bool { return s == StoreAndroid || s == StoreIOS }

// DisplayName is what exports and UIs show for a store code.
func (s Store) DisplayName() string {
	switch s {
	case StoreAndroid:
		return "Google Play"
	case StoreIOS:
		return "App Store"
	default:
		return string(s)
	}
}

// Review is the canonical record kept in storage. Identified by
// (ID, Store, Region); a store may reuse review ids across regional feeds.
type Review struct {
	ID      string    `json:"id"`
	AppID   string    `json:"appId"`
	AppName string    `json:"appName"`
	Store   Store     `json:"store"`
	Rating  int       `json:"rating"` // 1..5
	Title   string    `json:"title"`
	Content string    `json:"content"`
	Author  string    `json:"author"`
	Date    time.Time `json:"date"`
	Region  string    `json:"region"`
	Version string    `json:"version,omitempty"`
	Helpful int       `json:"helpful,omitempty"`
}

// ReviewKey is the unique storage key.
type ReviewKey struct {
	ID     string
	Store  Store
	Region string
}

func (r Review) Key() ReviewKey { return ReviewKey{ID: r.ID, Store: r.Store, Region: r.Region} }

// AppSearchResult is ephemeral: produced by search, consumed to start an
// ingestion run, and cached in the apps catalog.
type AppSearchResult struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Developer string `json:"developer"`
	Icon      string `json:"icon,omitempty"`
	Store     Store  `json:"store"`
}

// FilterSpec is built once at the request boundary and passed by value into
// the storage engine. Zero values mean "no constraint".
type FilterSpec struct {
	AppID     string
	Store     Store
	Ratings   []int
	Region    string
	StartDate *time.Time
	EndDate   *time.Time
	Limit     int
	Offset    int
}

// Matches reports whether r passes every constraint of the filter.
// Pagination is not applied here.
func (f FilterSpec) Matches(r Review) bool {
	if f.AppID != "" && r.AppID != f.AppID {
		return false
	}
	if f.Store != "" && r.Store != f.Store {
		return false
	}
	if f.Region != "" && r.Region != f.Region {
		return false
	}
	if len(f.Ratings) > 0 {
		ok := false
		for _, want := range f.Ratings {
			if r.Rating == want {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if f.StartDate != nil && r.Date.Before(*f.StartDate) {
		return false
	}
	if f.EndDate != nil && r.Date.After(*f.EndDate) {
		return false
	}
	return true
}
