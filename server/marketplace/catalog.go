// Package marketplace lists the logistics services a user can request to
// their current position.
package marketplace

import (
	"fmt"

	"github.com/mattermost/mattermost-plugin-guardian/server/intel"
)

// Service is one catalog entry.
type Service struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Icon     string `json:"icon"`
	Price    string `json:"price"`
}

// PriceVaries marks services priced at booking time
const PriceVaries = "VARIES"

var catalog = []Service{
	{ID: "mrd", Name: "Mr D Food", Category: "Logistical Support", Icon: "🍱", Price: "R49"},
	{ID: "uber", Name: "Uber Express", Category: "Extraction", Icon: "🚗", Price: "R85"},
	{ID: "bolt", Name: "Bolt Lite", Category: "Extraction", Icon: "🚕", Price: "R60"},
	{ID: "booking", Name: "Booking.com", Category: "Lodging / Base", Icon: "🏨", Price: PriceVaries},
	{ID: "lift", Name: "Lift Air", Category: "Aviation Link", Icon: "✈️", Price: "R1200"},
}

// Catalog returns a copy of the service catalog in display order.
func Catalog() []Service {
	out := make([]Service, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup finds a service by ID.
func Lookup(id string) (Service, bool) {
	for _, s := range catalog {
		if s.ID == id {
			return s, true
		}
	}
	return Service{}, false
}

// Listing is the catalog together with where services would deploy.
type Listing struct {
	Services []Service       `json:"services"`
	DeployTo *intel.Location `json:"deployTo,omitempty"`
	Notice   string          `json:"notice"`
	GPSSync  bool            `json:"gpsSync"`
}

// NewListing builds the listing for a user at loc, which may be nil.
func NewListing(loc *intel.Location) Listing {
	listing := Listing{
		Services: Catalog(),
		Notice:   "Waiting for a location fix before services can deploy",
	}
	if loc != nil {
		deploy := *loc
		listing.DeployTo = &deploy
		listing.GPSSync = true
		listing.Notice = fmt.Sprintf("Services will deploy directly to %.4f, %.4f", loc.Lat, loc.Lng)
	}
	return listing
}
