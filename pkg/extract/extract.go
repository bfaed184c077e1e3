// Package extract pulls craftsman cards out of generated answers that quote
// the labelled document blocks produced by the loader. Parsing is best
// effort: malformed blocks are skipped and optional fields are left empty.
package extract

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	StatusFree = "free"
	StatusBusy = "busy"
)

// Craftsman is a card-ready record. Only ID, Name and Craft are guaranteed.
type Craftsman struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Craft         string   `json:"craft"`
	Rating        *float64 `json:"rating,omitempty"`
	ReviewCount   *int     `json:"reviewCount,omitempty"`
	Address       string   `json:"address,omitempty"`
	Description   string   `json:"description,omitempty"`
	Status        string   `json:"status"`
	Cities        string   `json:"cities,omitempty"`
	CompletedJobs *int     `json:"completedJobs,omitempty"`
	ActiveJobs    *int     `json:"activeJobs,omitempty"`
}

// Result holds everything recovered from one message.
type Result struct {
	Craftsmen []Craftsman `json:"craftsmen"`
}

type field struct {
	key   string
	label string
}

// Labels in the order the loader writes them. A value runs until the first
// later label found after it, so missing fields do not swallow their neighbours.
var fields = []field{
	{"name", "اسم الحرفي:"},
	{"craft", "المهنة:"},
	{"address", "العنوان:"},
	{"cities", "المدن:"},
	{"rating", "التقييم:"},
	{"completedJobs", "الوظائف المنجزة:"},
	{"activeJobs", "الوظائف النشطة:"},
	{"description", "الوصف:"},
	{"status", "الحالة:"},
	{"sourceId", "sourceId:"},
}

const (
	blockStartMarker = "--- المستند"
	sourceIDMarker   = "sourceId:"
	unavailable      = "غير متوفر"
	busy             = "مشغول"
)

var (
	blockRe    = regexp.MustCompile(`--- المستند \d+.*?((?s:.*?))--- نهاية المستند \d+ ---`)
	ratingRe   = regexp.MustCompile(`^([0-9]+(?:\.[0-9]*)?|\.[0-9]+)`)
	leadIntRe  = regexp.MustCompile(`^[+-]?[0-9]+`)
	reviewsRes = []*regexp.Regexp{
		regexp.MustCompile(`عدد التقييمات: ([0-9]+)`),
		regexp.MustCompile(`\(([0-9]+)\)`),
		regexp.MustCompile(`\(([0-9]+)\s*تقييمات?\)`),
	}
)

// ContainsCraftsmanData reports whether text looks like it quotes document blocks.
func ContainsCraftsmanData(text string) bool {
	return strings.Contains(text, blockStartMarker) && strings.Contains(text, sourceIDMarker)
}

// Parse is the result-or-empty form of Craftsmen: ok is false when nothing
// could be extracted.
func Parse(text string) (Result, bool) {
	craftsmen := Craftsmen(text)
	if len(craftsmen) == 0 {
		return Result{}, false
	}
	return Result{Craftsmen: craftsmen}, true
}

// Craftsmen extracts every well-formed craftsman block from text. It never
// panics; a block that cannot be parsed is logged and skipped.
func Craftsmen(text string) []Craftsman {
	var out []Craftsman

	for _, m := range blockRe.FindAllStringSubmatch(text, -1) {
		content := m[1]
		if strings.TrimSpace(content) == "" {
			slog.Debug("skipping empty document block")
			continue
		}
		if c, ok := parseBlockSafe(content, len(out)); ok {
			out = append(out, c)
		}
	}

	if len(out) == 0 && strings.Contains(text, blockStartMarker) {
		slog.Warn("detected document markers but failed to extract any craftsmen")
	}
	return out
}

func parseBlockSafe(content string, n int) (c Craftsman, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("failed to parse craftsman block", "panic", r)
			c, ok = Craftsman{}, false
		}
	}()
	return parseBlock(content, n)
}

func splitFields(content string) (map[string]string, bool) {
	pos := strings.Index(content, fields[0].label)
	if pos < 0 {
		return nil, false
	}

	raw := make(map[string]string, len(fields))
	for i, f := range fields {
		idx := strings.Index(content[pos:], f.label)
		if idx < 0 {
			continue
		}
		start := pos + idx + len(f.label)
		end := len(content)
		for _, later := range fields[i+1:] {
			if next := strings.Index(content[start:], later.label); next >= 0 && start+next < end {
				end = start + next
			}
		}
		if v := strings.TrimSpace(content[start:end]); v != "" {
			raw[f.key] = v
		}
		pos = start
	}
	return raw, true
}

func parseBlock(content string, n int) (Craftsman, bool) {
	raw, ok := splitFields(content)
	if !ok {
		slog.Debug("document block has no name label")
		return Craftsman{}, false
	}

	c := Craftsman{
		ID:          raw["sourceId"],
		Name:        raw["name"],
		Craft:       raw["craft"],
		Description: raw["description"],
		Cities:      raw["cities"],
		Status:      StatusFree,
	}
	if c.Name == "" || c.Craft == "" {
		slog.Debug("skipping document block without name or craft")
		return Craftsman{}, false
	}
	if c.ID == "" {
		c.ID = fmt.Sprintf("fallback-%d-%d", time.Now().UnixNano(), n)
	}

	c.Rating, c.ReviewCount = parseRating(raw["rating"])

	if strings.Contains(raw["status"], busy) {
		c.Status = StatusBusy
	}

	c.CompletedJobs = leadingInt(raw["completedJobs"])
	c.ActiveJobs = leadingInt(raw["activeJobs"])

	var parts []string
	for _, p := range []string{raw["address"], raw["cities"]} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	c.Address = strings.Join(parts, ", ")

	return c, true
}

func parseRating(text string) (*float64, *int) {
	if text == "" {
		return nil, nil
	}
	if strings.Contains(text, unavailable) {
		zero := 0
		return nil, &zero
	}

	var rating *float64
	if m := ratingRe.FindString(text); m != "" {
		if v, err := strconv.ParseFloat(strings.TrimSuffix(m, "."), 64); err == nil {
			rating = &v
		}
	}

	for _, re := range reviewsRes {
		if m := re.FindStringSubmatch(text); m != nil {
			if v, err := strconv.Atoi(m[1]); err == nil {
				return rating, &v
			}
		}
	}
	return rating, nil
}

func leadingInt(text string) *int {
	m := leadIntRe.FindString(strings.TrimSpace(text))
	if m == "" {
		return nil
	}
	v, err := strconv.Atoi(m)
	if err != nil {
		return nil
	}
	return &v
}
