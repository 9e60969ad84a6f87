// Package model defines shared data structures for the job search service.
package model

import (
	"time"

	"github.com/google/uuid"
)

// JobPosting is a normalised offer persisted in the jobs table.
// ExternalID is unique across all persisted postings.
type JobPosting struct {
	ID          uuid.UUID
	ExternalID  string
	Title       string
	CompanyID   *int64
	LocationID  *int64
	CategoryID  *int64
	SalaryMin   *float64
	SalaryMax   *float64
	Description string
	ApplyURL    string
	Source      string
	CreatedDate *time.Time // reported by the upstream board
	DateFound   time.Time  // when we ingested it
	ApplyBy     *time.Time
}

// Company is keyed by its natural name.
type Company struct {
	ID   int64
	Name string
}

// Location is keyed by (city, state, country). DisplayName is used for
// substring matching when geocoding is unavailable.
type Location struct {
	ID          int64
	City        string
	State       string
	Country     string
	DisplayName string
	Latitude    *float64
	Longitude   *float64
}

// HasCoordinates reports whether both latitude and longitude are known.
func (l Location) HasCoordinates() bool {
	return l.Latitude != nil && l.Longitude != nil
}

// Category is keyed by the upstream tag.
type Category struct {
	ID   int64
	Tag  string
	Name string
}

// SavedQuery mirrors the saved_queries table row. The scheduler only ever
// touches LastRunAt and NewJobsCount.
type SavedQuery struct {
	ID            int64      `json:"id"`
	UserID        string     `json:"userId"`
	Query         string     `json:"query"`
	Location      string     `json:"location"`
	IsActive      bool       `json:"isActive"`
	Distance      int        `json:"distance"`
	ExcludedTerms string     `json:"excludedTerms,omitempty"`
	DateFrom      *time.Time `json:"dateFrom,omitempty"`
	DateTo        *time.Time `json:"dateTo,omitempty"`
	LastRunAt     *time.Time `json:"lastRunAt,omitempty"`
	NewJobsCount  int        `json:"newJobsCount"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// User is the subset of the identity provider's user record needed to
// deliver notifications.
type User struct {
	ID        string
	Username  string
	Email     string
	FirstName string
	LastName  string
}

// Coordinates is a resolved geocode result.
type Coordinates struct {
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	DisplayName string  `json:"displayName"`
}

// DisplayRef is the nested {display_name} object returned to clients.
type DisplayRef struct {
	DisplayName string `json:"display_name"`
}

// JobResponse is the JSON shape returned by the search API.
type JobResponse struct {
	ID           string      `json:"id"`
	ExternalID   string      `json:"externalId"`
	Title        string      `json:"title"`
	CompanyID    *int64      `json:"companyId,omitempty"`
	CompanyName  string      `json:"companyName,omitempty"`
	LocationID   *int64      `json:"locationId,omitempty"`
	LocationName string      `json:"locationName,omitempty"`
	CategoryID   *int64      `json:"categoryId,omitempty"`
	CategoryName string      `json:"categoryName,omitempty"`
	SalaryMin    *float64    `json:"salaryMin,omitempty"`
	SalaryMax    *float64    `json:"salaryMax,omitempty"`
	Description  string      `json:"description"`
	JobURL       string      `json:"jobUrl"`
	Source       string      `json:"source"`
	CreatedDate  string      `json:"createdDate,omitempty"`
	DateFound    string      `json:"dateFound,omitempty"`
	ApplyBy      string      `json:"applyBy,omitempty"`
	Company      *DisplayRef `json:"company,omitempty"`
	Location     *DisplayRef `json:"location,omitempty"`
}

// SearchResult is the cached, derived result set for one search key.
type SearchResult struct {
	Count   int           `json:"count"`
	Results []JobResponse `json:"results"`
	Cached  bool          `json:"cached"`
}
