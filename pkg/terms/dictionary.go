package terms

import (
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
)

// Term is a metadata record describing one measurable quantity in the
// library statistics, e.g. "Aktiv01" (active borrowers).
type Term struct {
	Id          string   `json:"id"`
	Label       string   `json:"label"`
	Description string   `json:"description,omitempty"`
	Comment     string   `json:"comment,omitempty"`
	ValueType   string   `json:"valueType,omitempty"`
	ValidFrom   string   `json:"validFrom,omitempty"`
	ValidTo     string   `json:"validTo,omitempty"`
	Replaces    []string `json:"replaces,omitempty"`
	ReplacedBy  string   `json:"replacedBy,omitempty"`
}

// categoryPattern matches the leading letters of a term identifier,
// e.g. "Folk" in "Folk54". Swedish term codes may carry å/ä/ö.
var categoryPattern = regexp.MustCompile(`^[A-Za-zÅÄÖåäö]+`)

// Category returns the grouping key for the term ("Aktiv01" -> "Aktiv").
func (t Term) Category() string {
	return categoryPattern.FindString(t.Id)
}

type termsFile struct {
	Terms []Term `json:"terms"`
}

// Dictionary serves term metadata from a local JSON snapshot. The file is
// read at most once per Dictionary; a read or parse failure degrades to an
// empty dictionary instead of failing tool calls.
type Dictionary struct {
	path   string
	logger logrus.FieldLogger

	// ReadFile is the file-read collaborator, replaceable in tests.
	ReadFile func(name string) ([]byte, error)

	once    sync.Once
	terms   []Term
	byId    map[string]Term
	healthy bool
}

// NewDictionary creates a dictionary backed by the JSON file at path.
// Nothing is read until the first lookup.
func NewDictionary(path string, logger logrus.FieldLogger) *Dictionary {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Dictionary{
		path:     path,
		logger:   logger,
		ReadFile: os.ReadFile,
	}
}

// Load returns all terms, reading and parsing the backing file on the
// first call only. Subsequent calls return the cached slice.
func (d *Dictionary) Load() []Term {
	d.once.Do(func() {
		d.byId = make(map[string]Term)

		data, err := d.ReadFile(d.path)
		if err != nil {
			d.logger.WithError(err).Warnf("term dictionary unavailable: %s", d.path)
			return
		}

		var parsed termsFile
		if err := json.Unmarshal(data, &parsed); err != nil {
			d.logger.WithError(err).Warnf("term dictionary unparseable: %s", d.path)
			return
		}

		d.terms = parsed.Terms
		for _, t := range parsed.Terms {
			d.byId[t.Id] = t
		}
		d.healthy = true
		d.logger.Infof("loaded %d terms from %s", len(d.terms), d.path)
	})
	return d.terms
}

// Healthy reports whether the backing file loaded successfully. A false
// value means lookups run against an empty dictionary.
func (d *Dictionary) Healthy() bool {
	d.Load()
	return d.healthy
}

// GetByID returns the term with the exact identifier.
func (d *Dictionary) GetByID(id string) (Term, bool) {
	d.Load()
	t, ok := d.byId[id]
	return t, ok
}

// SearchByCategory returns terms whose identifier starts with the given
// prefix, case-insensitively ("besok" matches "Besok12").
func (d *Dictionary) SearchByCategory(prefix string) []Term {
	prefix = strings.ToLower(prefix)

	var matched []Term
	for _, t := range d.Load() {
		if strings.HasPrefix(strings.ToLower(t.Id), prefix) {
			matched = append(matched, t)
		}
	}
	return matched
}

// SearchByKeyword returns terms where the identifier, label or description
// contains the keyword, case-insensitively. Any single field matching is
// enough.
func (d *Dictionary) SearchByKeyword(keyword string) []Term {
	keyword = strings.ToLower(keyword)

	var matched []Term
	for _, t := range d.Load() {
		if strings.Contains(strings.ToLower(t.Id), keyword) ||
			strings.Contains(strings.ToLower(t.Label), keyword) ||
			strings.Contains(strings.ToLower(t.Description), keyword) {
			matched = append(matched, t)
		}
	}
	return matched
}

// Categories returns the sorted unique alphabetic prefixes of all term
// identifiers.
func (d *Dictionary) Categories() []string {
	seen := make(map[string]bool)
	for _, t := range d.Load() {
		if c := t.Category(); c != "" {
			seen[c] = true
		}
	}

	categories := make([]string, 0, len(seen))
	for c := range seen {
		categories = append(categories, c)
	}
	sort.Strings(categories)
	return categories
}
