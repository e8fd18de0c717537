package turnaround

import (
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/lingua-desk/quoteflow/internal/model"
)

// EligibilityKey identifies one same-day service combination.
type EligibilityKey struct {
	SourceLanguage string `yaml:"source_language"`
	TargetLanguage string `yaml:"target_language"`
	DocumentType   string `yaml:"document_type"`
	IntendedUse    string `yaml:"intended_use"`
}

// EligibilityTable is the externally supplied same-day service table.
type EligibilityTable struct {
	entries map[EligibilityKey]struct{}
}

// tableFile is the YAML shape of the eligibility and holiday data files.
type tableFile struct {
	SameDay  []EligibilityKey `yaml:"same_day"`
	Holidays []string         `yaml:"holidays"`
}

// NewEligibilityTable builds a table from explicit entries.
func NewEligibilityTable(entries []EligibilityKey) *EligibilityTable {
	t := &EligibilityTable{entries: make(map[EligibilityKey]struct{}, len(entries))}
	for _, e := range entries {
		t.entries[normalizeKey(e)] = struct{}{}
	}
	return t
}

// LoadTables reads the same-day eligibility entries and holiday calendar from
// a YAML file. A missing path returns empty tables, not an error; service
// simply degrades to standard/rush only.
func LoadTables(path string) (*EligibilityTable, Calendar, error) {
	cal := Calendar{}
	if path == "" {
		return NewEligibilityTable(nil), cal, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewEligibilityTable(nil), cal, nil
		}
		return nil, nil, eris.Wrapf(err, "turnaround: read tables %s", path)
	}
	var f tableFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, nil, eris.Wrapf(err, "turnaround: parse tables %s", path)
	}
	for _, h := range f.Holidays {
		if _, err := time.Parse("2006-01-02", h); err != nil {
			return nil, nil, eris.Wrapf(err, "turnaround: bad holiday date %q", h)
		}
		cal[h] = struct{}{}
	}
	return NewEligibilityTable(f.SameDay), cal, nil
}

// Eligible reports whether the combination qualifies for same-day service.
func (t *EligibilityTable) Eligible(source, target, docType, intendedUse string) bool {
	_, ok := t.entries[normalizeKey(EligibilityKey{
		SourceLanguage: source,
		TargetLanguage: target,
		DocumentType:   docType,
		IntendedUse:    intendedUse,
	})]
	return ok
}

// normalizeKey canonicalizes language tags ("EN", "en-US" -> "en") and
// lowercases the free-text fields so table entries match customer input.
func normalizeKey(k EligibilityKey) EligibilityKey {
	return EligibilityKey{
		SourceLanguage: normalizeLanguage(k.SourceLanguage),
		TargetLanguage: normalizeLanguage(k.TargetLanguage),
		DocumentType:   strings.ToLower(strings.TrimSpace(k.DocumentType)),
		IntendedUse:    strings.ToLower(strings.TrimSpace(k.IntendedUse)),
	}
}

func normalizeLanguage(s string) string {
	s = strings.TrimSpace(s)
	tag, err := language.Parse(s)
	if err != nil {
		return strings.ToLower(s)
	}
	base, conf := tag.Base()
	if conf == language.No {
		return strings.ToLower(s)
	}
	return base.String()
}

// Cutoff is an hour:minute pair in the business timezone.
type Cutoff struct {
	Hour   int
	Minute int
}

// Options describes which turnaround tiers are currently offerable.
type Options struct {
	Standard bool
	Rush     bool
	SameDay  bool
}

// Availability computes the offerable tiers. Same-day requires both table
// eligibility and its cutoff; rush requires only its cutoff. Standard is
// always offered.
func Availability(now time.Time, loc *time.Location, table *EligibilityTable,
	rushCutoff, sameDayCutoff Cutoff, source, target, docType, intendedUse string) Options {

	return Options{
		Standard: true,
		Rush:     CutoffAvailable(now, rushCutoff.Hour, rushCutoff.Minute, loc),
		SameDay: table.Eligible(source, target, docType, intendedUse) &&
			CutoffAvailable(now, sameDayCutoff.Hour, sameDayCutoff.Minute, loc),
	}
}

// DaysFor returns the business days consumed by a turnaround tier given the
// quote's total billable pages. Same-day consumes none; rush uses the
// configured rush turnaround.
func DaysFor(t model.TurnaroundType, totalBillablePages float64, rushDays int) int {
	switch t {
	case model.TurnaroundSameDay:
		return 0
	case model.TurnaroundRush:
		return rushDays
	default:
		return StandardDays(totalBillablePages)
	}
}
