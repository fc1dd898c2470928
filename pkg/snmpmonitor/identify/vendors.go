package identify

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/vpbank/snmp_monitor/models"
)

// GenericVendor names devices no profile matched.
const GenericVendor = "Generic"

// UnknownModel is reported when no model pattern matches.
const UnknownModel = "unknown"

// Profile describes how to recognise one vendor and where its optical
// registers live. Profiles are loaded from YAML and merged over the
// built-in table by Name.
type Profile struct {
	Name string `yaml:"name"`

	// Enterprises are sysObjectID prefixes owned by the vendor.
	Enterprises []string `yaml:"enterprises"`

	// Keywords are searched in the lowercased sysDescr when no enterprise
	// prefix matches.
	Keywords []string `yaml:"keywords"`

	// ModelPatterns are case-insensitive regexes tried in order against
	// sysDescr. The first capture group is the model, else the whole match.
	ModelPatterns []string `yaml:"model_patterns"`

	// UplinkPatterns are case-insensitive regexes searched in
	// "descr name" of each physical interface.
	UplinkPatterns []string `yaml:"uplink_patterns"`

	// Registers is the base register map of the vendor.
	Registers models.RegisterMap `yaml:"registers"`

	// Models holds register overrides keyed by a model token. A key
	// applies when the identified model or sysDescr contains it,
	// case-insensitively; the longest matching key wins.
	Models map[string]models.RegisterMap `yaml:"models"`
}

// vendor is a compiled Profile.
type vendor struct {
	name     string
	prefixes []string
	keywords []string
	models   []*regexp.Regexp
	uplinks  []*regexp.Regexp
	regs     models.RegisterMap
	modelKey []string
	modelReg map[string]models.RegisterMap
}

// Table is the immutable, compiled vendor table.
type Table struct {
	vendors []*vendor
	byName  map[string]*vendor
}

// NewTable compiles profiles. A profile whose name matches an earlier one
// replaces it in place, so keyword search order follows first appearance.
func NewTable(profiles []Profile) (*Table, error) {
	t := &Table{byName: make(map[string]*vendor)}
	for _, p := range profiles {
		v, err := compile(p)
		if err != nil {
			return nil, err
		}
		key := strings.ToLower(v.name)
		if old, ok := t.byName[key]; ok {
			for i := range t.vendors {
				if t.vendors[i] == old {
					t.vendors[i] = v
				}
			}
		} else {
			t.vendors = append(t.vendors, v)
		}
		t.byName[key] = v
	}
	return t, nil
}

// DefaultTable compiles the built-in profiles with extra merged on top.
func DefaultTable(extra []Profile) (*Table, error) {
	return NewTable(append(DefaultProfiles(), extra...))
}

func compile(p Profile) (*vendor, error) {
	if p.Name == "" {
		return nil, fmt.Errorf("identify: vendor profile without name")
	}
	v := &vendor{
		name:     p.Name,
		regs:     p.Registers,
		modelReg: make(map[string]models.RegisterMap, len(p.Models)),
	}
	for _, e := range p.Enterprises {
		v.prefixes = append(v.prefixes, strings.Trim(e, "."))
	}
	for _, k := range p.Keywords {
		v.keywords = append(v.keywords, strings.ToLower(k))
	}
	var err error
	if v.models, err = compileAll(p.Name, p.ModelPatterns); err != nil {
		return nil, err
	}
	if v.uplinks, err = compileAll(p.Name, p.UplinkPatterns); err != nil {
		return nil, err
	}
	for k, r := range p.Models {
		k = strings.ToLower(k)
		v.modelKey = append(v.modelKey, k)
		v.modelReg[k] = r
	}
	sort.Slice(v.modelKey, func(i, j int) bool {
		if len(v.modelKey[i]) != len(v.modelKey[j]) {
			return len(v.modelKey[i]) > len(v.modelKey[j])
		}
		return v.modelKey[i] < v.modelKey[j]
	})
	return v, nil
}

func compileAll(name string, patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("identify: vendor %s: pattern %q: %w", name, p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

// Names returns the vendor names in table order.
func (t *Table) Names() []string {
	out := make([]string, len(t.vendors))
	for i, v := range t.vendors {
		out[i] = v.name
	}
	return out
}

// Lookup returns the canonical name of a vendor, case-insensitively.
func (t *Table) Lookup(name string) (string, bool) {
	v, ok := t.byName[strings.ToLower(name)]
	if !ok {
		return "", false
	}
	return v.name, true
}

// ByEnterprise returns the vendor whose enterprise prefix is the longest
// match of objectID on a component boundary.
func (t *Table) ByEnterprise(objectID string) (string, bool) {
	objectID = strings.TrimPrefix(objectID, ".")
	var (
		best    *vendor
		bestLen int
	)
	for _, v := range t.vendors {
		for _, p := range v.prefixes {
			if (objectID == p || strings.HasPrefix(objectID, p+".")) && len(p) > bestLen {
				best, bestLen = v, len(p)
			}
		}
	}
	if best == nil {
		return "", false
	}
	return best.name, true
}

// ByKeyword returns the first vendor, in table order, with a keyword
// contained in descr.
func (t *Table) ByKeyword(descr string) (string, bool) {
	descr = strings.ToLower(descr)
	for _, v := range t.vendors {
		for _, k := range v.keywords {
			if strings.Contains(descr, k) {
				return v.name, true
			}
		}
	}
	return "", false
}

// Model extracts the model of vendor from descr.
func (t *Table) Model(vendorName, descr string) (string, bool) {
	v, ok := t.byName[strings.ToLower(vendorName)]
	if !ok {
		return "", false
	}
	for _, re := range v.models {
		m := re.FindStringSubmatch(descr)
		if m == nil {
			continue
		}
		if len(m) > 1 && m[1] != "" {
			return m[1], true
		}
		return m[0], true
	}
	return "", false
}

// UplinkMatch reports whether text matches one of vendor's uplink patterns.
// ok is false when the vendor has no patterns.
func (t *Table) UplinkMatch(vendorName, text string) (match, ok bool) {
	v, found := t.byName[strings.ToLower(vendorName)]
	if !found || len(v.uplinks) == 0 {
		return false, false
	}
	for _, re := range v.uplinks {
		if re.MatchString(text) {
			return true, true
		}
	}
	return false, true
}

// Registers returns the register map of vendor with the longest model
// override matching model or descr applied.
func (t *Table) Registers(vendorName, model, descr string) models.RegisterMap {
	v, ok := t.byName[strings.ToLower(vendorName)]
	if !ok {
		return models.RegisterMap{}
	}
	regs := v.regs
	model, descr = strings.ToLower(model), strings.ToLower(descr)
	for _, k := range v.modelKey {
		if strings.Contains(model, k) || strings.Contains(descr, k) {
			return regs.Merge(v.modelReg[k])
		}
	}
	return regs
}

// ─────────────────────────────────────────────────────────────────────────────
// Built-in profiles
// ─────────────────────────────────────────────────────────────────────────────

// Shared uplink naming conventions.
const (
	patGi       = `gi\d+/\d+/\d+`
	patTe       = `te\d+/\d+/\d+`
	patXe       = `xe\d+/\d+/\d+`
	patEthernet = `ethernet\d+/\d+`
)

var (
	eltexMES24 = models.RegisterMap{
		TxPower:    "1.3.6.1.4.1.35265.52.1.1.3.2.1.8.{ifindex}.4.1",
		RxPower:    "1.3.6.1.4.1.35265.52.1.1.3.2.1.8.{ifindex}.5.1",
		SFPVendor:  "1.3.6.1.4.1.35265.52.1.1.3.1.1.5.{ifindex}",
		PartNumber: "1.3.6.1.4.1.35265.52.1.1.3.1.1.10.{ifindex}",
		Conversion: models.ConvThousandths,
	}
	zyxelMES3500 = models.RegisterMap{
		TxPower:    "1.3.6.1.4.1.890.1.5.8.68.117.2.1.7.{ifindex}.4",
		RxPower:    "1.3.6.1.4.1.890.1.5.8.68.117.2.1.7.{ifindex}.5",
		SFPVendor:  "1.3.6.1.4.1.890.1.5.8.68.117.1.1.3.{ifindex}",
		PartNumber: "1.3.6.1.4.1.890.1.5.8.68.117.1.1.4.{ifindex}",
		Conversion: models.ConvHundredths,
	}
	rndMES1124 = models.RegisterMap{
		TxPower:    "1.3.6.1.4.1.89.90.1.2.1.3.{ifindex}.8",
		RxPower:    "1.3.6.1.4.1.89.90.1.2.1.3.{ifindex}.9",
		SFPVendor:  "1.3.6.1.4.1.35265.1.23.53.1.1.1.5.{ifindex}",
		Conversion: models.ConvThousandths,
	}
)

// DefaultProfiles returns the built-in vendor table. Keyword search runs in
// this order, so vendors with short keywords come late.
func DefaultProfiles() []Profile {
	return []Profile{
		{
			Name:        "Cisco",
			Enterprises: []string{"1.3.6.1.4.1.9"},
			Keywords:    []string{"cisco"},
			ModelPatterns: []string{
				`cisco.*catalyst.*?(\d+)`,
				`cisco.*?(\d+)\s*series`,
				`ws-c(\d+)`,
				`catalyst\s*(\d+)`,
			},
			UplinkPatterns: []string{patGi, patTe, patEthernet},
			Registers: models.RegisterMap{
				RxPower:    "1.3.6.1.4.1.9.9.92.1.1.1.1.5",
				TxPower:    "1.3.6.1.4.1.9.9.92.1.1.1.1.4",
				Conversion: models.ConvTenths,
			},
		},
		{
			Name:        "Huawei",
			Enterprises: []string{"1.3.6.1.4.1.2011"},
			Keywords:    []string{"huawei", "vrp"},
			ModelPatterns: []string{
				`huawei.*?s(\d+)`,
				`s(\d+)-.*huawei`,
				`vrp.*platform.*?s(\d+)`,
			},
			UplinkPatterns: []string{patGi, patXe, patEthernet},
			Registers: models.RegisterMap{
				RxPower:    "1.3.6.1.4.1.2011.5.25.31.1.1.3.1.7",
				TxPower:    "1.3.6.1.4.1.2011.5.25.31.1.1.3.1.8",
				Conversion: models.ConvHundredths,
			},
			Models: map[string]models.RegisterMap{
				"s3328": {
					RxPower:    "1.3.6.1.4.1.2011.5.25.31.1.1.3.1.8",
					TxPower:    "1.3.6.1.4.1.2011.5.25.31.1.1.3.1.9",
					Conversion: models.ConvDBm,
				},
			},
		},
		{
			Name:        "H3C",
			Enterprises: []string{"1.3.6.1.4.1.25506"},
			Keywords:    []string{"h3c", "comware"},
			ModelPatterns: []string{
				`h3c.*?s(\d+)`,
				`hp.*?(\d+)\s*switch`,
				`comware.*platform.*?(\d+)`,
			},
			UplinkPatterns: []string{patGi, patXe},
			Registers: models.RegisterMap{
				RxPower:    "1.3.6.1.4.1.25506.8.35.18.4.3.1.2",
				TxPower:    "1.3.6.1.4.1.25506.8.35.18.4.3.1.3",
				Conversion: models.ConvHundredths,
			},
		},
		{
			Name:          "Juniper",
			Enterprises:   []string{"1.3.6.1.4.1.2636"},
			Keywords:      []string{"juniper", "junos"},
			ModelPatterns: []string{`juniper networks.*?\b((?:ex|qfx|mx|srx)\d+[\w-]*)`},
		},
		{
			Name:        "Nokia",
			Enterprises: []string{"1.3.6.1.4.1.6527"},
			Keywords:    []string{"nokia", "alcatel"},
		},
		{
			Name:        "Brocade",
			Enterprises: []string{"1.3.6.1.4.1.1588"},
			Keywords:    []string{"brocade"},
		},
		{
			Name:        "Foundry",
			Enterprises: []string{"1.3.6.1.4.1.1991"},
			Keywords:    []string{"foundry"},
		},
		{
			Name:        "D-Link",
			Enterprises: []string{"1.3.6.1.4.1.171"},
			Keywords:    []string{"d-link"},
		},
		{
			Name:          "Zyxel",
			Enterprises:   []string{"1.3.6.1.4.1.890"},
			Keywords:      []string{"zyxel"},
			ModelPatterns: []string{`\b(mes\d{4}(?:-\d+)?)`},
			Models:        map[string]models.RegisterMap{"mes3500": zyxelMES3500},
		},
		{
			Name:          "Eltex",
			Enterprises:   []string{"1.3.6.1.4.1.35265"},
			Keywords:      []string{"eltex"},
			ModelPatterns: []string{`\b(mes\d{4}(?:-\d+)?)`},
			Models: map[string]models.RegisterMap{
				"mes24":   eltexMES24,
				"mes3500": zyxelMES3500,
				"mes1124": rndMES1124,
			},
		},
		{
			Name:          "Radware",
			Enterprises:   []string{"1.3.6.1.4.1.89"},
			Keywords:      []string{"radware"},
			ModelPatterns: []string{`\b(mes\d{4}(?:-\d+)?)`},
			Models:        map[string]models.RegisterMap{"mes1124": rndMES1124},
		},
		{
			Name:        "HP",
			Enterprises: []string{"1.3.6.1.4.1.11"},
			Keywords:    []string{"hewlett-packard", "procurve", "hp "},
		},
	}
}
