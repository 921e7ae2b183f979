package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound signals that the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate signals that a company with the same name already exists for the event.
	ErrDuplicate = errors.New("duplicate company for event")
)

// Column limits in characters. Values are truncated to these before any
// comparison or write.
const (
	MaxEventName        = 50
	MaxEventWWW         = 500
	MaxCompanyName      = 250
	MaxDescription      = 4000
	MaxAddress          = 500
	MaxPhone            = 50
	MaxEmail            = 250
	MaxWWW              = 500
	MaxCompanyEventLink = 500
	MaxCountryName      = 100
	MaxDataSourceName   = 100
)

// DataSource identifies the website rows were harvested from.
type DataSource struct {
	ID   int64
	Name string
	WWW  string
}

// Event mirrors the event table. Name is the identity.
type Event struct {
	ID           int64
	Name         string
	Date         time.Time
	WWW          string
	DataSourceID int64
}

// Company mirrors the company table. (Name, EventID) is the identity.
type Company struct {
	ID               int64
	EventID          int64
	IndustryID       int64
	CountryID        int64
	Name             string
	Description      string
	Address          string
	Phone            string
	Email            string
	WWW              string
	CompanyEventLink string
	AddedAt          time.Time
}

// Normalized returns e with every text field cut to its column limit.
func (e Event) Normalized() Event {
	e.Name = Truncate(e.Name, MaxEventName)
	e.WWW = Truncate(e.WWW, MaxEventWWW)
	return e
}

// Normalized returns c with every text field cut to its column limit.
func (c Company) Normalized() Company {
	c.Name = Truncate(c.Name, MaxCompanyName)
	c.Description = Truncate(c.Description, MaxDescription)
	c.Address = Truncate(c.Address, MaxAddress)
	c.Phone = Truncate(c.Phone, MaxPhone)
	c.Email = Truncate(c.Email, MaxEmail)
	c.WWW = Truncate(c.WWW, MaxWWW)
	c.CompanyEventLink = Truncate(c.CompanyEventLink, MaxCompanyEventLink)
	return c
}

// Repository persists the crawl results. Every method is a discrete write or
// read; there are no multi-statement transactions.
type Repository interface {
	// EnsureDataSource returns the id of the named data source, creating it if absent.
	EnsureDataSource(ctx context.Context, name, www string) (int64, error)
	// EnsureEvent returns the id of the event with e.Name, creating it if absent.
	EnsureEvent(ctx context.Context, e Event) (int64, error)
	// CountCompanies returns how many companies are stored for the event.
	CountCompanies(ctx context.Context, eventID int64) (int, error)
	// CompanyNames returns the stored company names of the event.
	CompanyNames(ctx context.Context, eventID int64) (map[string]struct{}, error)
	// InsertCompany stores c or returns ErrDuplicate when its name is taken.
	InsertCompany(ctx context.Context, c Company) error
	// EnsureCountry returns the id of the named country, creating it if absent.
	EnsureCountry(ctx context.Context, name string) (int64, error)
}
