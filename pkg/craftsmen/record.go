// Package craftsmen fetches service-provider records from the craftsmen
// search API and renders them into the labelled text the vector store indexes.
package craftsmen

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	unspecified    = "غير محدد"
	unavailable    = "غير متوفر"
	genericCraft   = "حرفي"
	statusFree     = "free"
	statusFreeAr   = "متاح"
	statusBusyAr   = "مشغول"
	keywordArtisan = "حرفي"
)

// Number accepts a JSON number, a quoted number or null. The API is not
// consistent about which one it sends.
type Number string

func (n *Number) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*n = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		s = strings.TrimSpace(str)
	}
	*n = Number(s)
	return nil
}

func (n Number) String() string {
	return string(n)
}

func (n Number) Float64() (float64, error) {
	return strconv.ParseFloat(string(n), 64)
}

// Page is the paginated payload of a search call.
type Page struct {
	CurrentPage int      `json:"current_page"`
	LastPage    int      `json:"last_page"`
	Total       int      `json:"total"`
	Data        []Record `json:"data"`
}

type Craft struct {
	ID   Number `json:"id,omitempty"`
	Name string `json:"name"`
}

type City struct {
	ID   Number `json:"id,omitempty"`
	City string `json:"city"`
}

// Record is a single craftsman as returned by the API.
type Record struct {
	ID              Number `json:"id"`
	Name            string `json:"name"`
	Craft           *Craft `json:"craft"`
	Address         string `json:"address"`
	Cities          []City `json:"cities"`
	AverageRating   Number `json:"average_rating"`
	NumberOfRatings Number `json:"number_of_ratings"`
	DoneJobsNum     Number `json:"done_jobs_num"`
	ActiveJobsNum   Number `json:"active_jobs_num"`
	Description     string `json:"description"`
	Status          string `json:"status"`

	raw json.RawMessage
}

// UnmarshalJSON keeps the original payload so it can be stored alongside the text.
func (r *Record) UnmarshalJSON(data []byte) error {
	type plain Record
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = Record(p)
	r.raw = append(json.RawMessage(nil), data...)
	return nil
}

// Raw returns the record as received, or nil for records built in code.
func (r Record) Raw() json.RawMessage {
	return r.raw
}

func (r Record) CraftName() string {
	if r.Craft == nil {
		return ""
	}
	return r.Craft.Name
}

func (r Record) CityNames() []string {
	names := make([]string, 0, len(r.Cities))
	for _, c := range r.Cities {
		if c.City != "" {
			names = append(names, c.City)
		}
	}
	return names
}

func numberOr(n Number, fallback string) string {
	if n == "" {
		return fallback
	}
	if f, err := n.Float64(); err == nil && f == 0 {
		return fallback
	}
	return n.String()
}

func hasRating(n Number) bool {
	f, err := n.Float64()
	return err == nil && f != 0
}

// Format renders the labelled text block that gets embedded and stored.
func Format(r Record) string {
	var b strings.Builder

	fmt.Fprintf(&b, "اسم الحرفي: %s\n", r.Name)
	fmt.Fprintf(&b, "المهنة: %s\n", orDefault(r.CraftName(), unspecified))
	fmt.Fprintf(&b, "العنوان: %s\n", orDefault(r.Address, unspecified))

	if cities := r.CityNames(); len(cities) > 0 {
		fmt.Fprintf(&b, "المدن: %s\n", strings.Join(cities, ", "))
	}

	if hasRating(r.AverageRating) {
		fmt.Fprintf(&b, "التقييم: %s (عدد التقييمات: %s)\n", r.AverageRating, numberOr(r.NumberOfRatings, "0"))
	} else {
		fmt.Fprintf(&b, "التقييم: %s\n", unavailable)
	}

	fmt.Fprintf(&b, "الوظائف المنجزة: %s\n", numberOr(r.DoneJobsNum, "0"))
	fmt.Fprintf(&b, "الوظائف النشطة: %s\n", numberOr(r.ActiveJobsNum, "0"))

	if r.Description != "" {
		fmt.Fprintf(&b, "الوصف: %s\n", r.Description)
	}

	status := statusBusyAr
	if r.Status == statusFree {
		status = statusFreeAr
	}
	fmt.Fprintf(&b, "الحالة: %s\n", status)

	return b.String()
}

// Title is "<name> - <craft>".
func Title(r Record) string {
	return fmt.Sprintf("%s - %s", r.Name, orDefault(r.CraftName(), genericCraft))
}

// Keywords lists the generic artisan tag, the craft and every city.
func Keywords(r Record) []string {
	return append([]string{keywordArtisan, r.CraftName()}, r.CityNames()...)
}

// Metadata is stored next to the document for later inspection.
func Metadata(r Record, now time.Time) map[string]interface{} {
	m := map[string]interface{}{
		"craft":     r.CraftName(),
		"cities":    r.CityNames(),
		"keywords":  Keywords(r),
		"timestamp": now.UTC().Format(time.RFC3339),
	}
	if raw := r.Raw(); len(raw) > 0 {
		m["rawData"] = raw
	}
	return m
}

func orDefault(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
