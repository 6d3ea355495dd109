package breakdown

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// MealScope selects which rows compete for a single meal credit.
type MealScope string

const (
	// MealScopeShift allows one meal per worker, date and shift.
	MealScopeShift MealScope = "shift"
	// MealScopeDay allows one meal per worker and date.
	MealScopeDay MealScope = "day"
)

// WidthPolicy decides what happens when data rows do not match the header width.
type WidthPolicy string

const (
	// WidthTruncate drops cells past the header and leaves missing cells empty.
	WidthTruncate WidthPolicy = "truncate"
	// WidthPad adds placeholder columns for extra cells and zero-fills missing numeric cells.
	WidthPad WidthPolicy = "pad"
)

// BlankTop decides how a column without a top label is named.
type BlankTop string

const (
	BlankTopPlaceholder BlankTop = "placeholder"
	BlankTopEmpty       BlankTop = "empty"
)

// DateOrder resolves ambiguous slash dates such as 03/04/2024.
type DateOrder string

const (
	DateOrderDMY DateOrder = "dmy"
	DateOrderMDY DateOrder = "mdy"
)

type Markers struct {
	Key            string `yaml:"key"`
	Attendance     string `yaml:"attendance"`
	Activity       string `yaml:"activity"`
	Meal           string `yaml:"meal"`
	Total          string `yaml:"total"`
	ActivityTarget string `yaml:"activity_target"`
	ShiftTarget    string `yaml:"shift_target"`
	Name           string `yaml:"name"`
	Date           string `yaml:"date"`
}

// Policy carries every tunable of the breakdown. The zero value is not
// usable; start from DefaultPolicy.
type Policy struct {
	Markers         Markers     `yaml:"markers"`
	Separator       string      `yaml:"separator"`
	ScanRows        int         `yaml:"scan_rows"`
	MealScope       MealScope   `yaml:"meal_scope"`
	Width           WidthPolicy `yaml:"width"`
	BlankTop        BlankTop    `yaml:"blank_top"`
	DateOrder       DateOrder   `yaml:"date_order"`
	ExcessThreshold float64     `yaml:"excess_threshold"`
}

func DefaultPolicy() Policy {
	return Policy{
		Markers: Markers{
			Key:            "CLAVE",
			Attendance:     "ASIST",
			Activity:       "RMMAL",
			Meal:           "COMIDA",
			Total:          "TOTAL",
			ActivityTarget: "Act",
			ShiftTarget:    "Turno",
			Name:           "NOMBRE",
			Date:           "FECHA",
		},
		Separator:       "|",
		ScanRows:        50,
		MealScope:       MealScopeShift,
		Width:           WidthTruncate,
		BlankTop:        BlankTopPlaceholder,
		DateOrder:       DateOrderDMY,
		ExcessThreshold: 12.0,
	}
}

// ParsePolicy overlays YAML onto DefaultPolicy. Fields missing from the
// document keep their defaults.
func ParsePolicy(data []byte) (Policy, error) {
	policy := DefaultPolicy()
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return Policy{}, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}
	if err := policy.Validate(); err != nil {
		return Policy{}, err
	}
	return policy, nil
}

// LoadPolicy reads a YAML policy file. An empty path yields DefaultPolicy.
func LoadPolicy(path string) (Policy, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultPolicy(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read policy %s: %w", path, err)
	}
	return ParsePolicy(data)
}

func (p Policy) Validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"markers.key", p.Markers.Key},
		{"markers.attendance", p.Markers.Attendance},
		{"markers.activity", p.Markers.Activity},
		{"markers.activity_target", p.Markers.ActivityTarget},
		{"markers.shift_target", p.Markers.ShiftTarget},
		{"separator", p.Separator},
	}
	for _, field := range required {
		if strings.TrimSpace(field.value) == "" {
			return fmt.Errorf("%w: %s is required", ErrInvalidPolicy, field.name)
		}
	}
	if p.ScanRows <= 0 {
		return fmt.Errorf("%w: scan_rows must be positive", ErrInvalidPolicy)
	}
	switch p.MealScope {
	case MealScopeShift, MealScopeDay:
	default:
		return fmt.Errorf("%w: unknown meal_scope %q", ErrInvalidPolicy, p.MealScope)
	}
	switch p.Width {
	case WidthTruncate, WidthPad:
	default:
		return fmt.Errorf("%w: unknown width %q", ErrInvalidPolicy, p.Width)
	}
	switch p.BlankTop {
	case BlankTopPlaceholder, BlankTopEmpty:
	default:
		return fmt.Errorf("%w: unknown blank_top %q", ErrInvalidPolicy, p.BlankTop)
	}
	switch p.DateOrder {
	case DateOrderDMY, DateOrderMDY:
	default:
		return fmt.Errorf("%w: unknown date_order %q", ErrInvalidPolicy, p.DateOrder)
	}
	if p.ExcessThreshold <= 0 {
		return fmt.Errorf("%w: excess_threshold must be positive", ErrInvalidPolicy)
	}
	return nil
}

// Fingerprint is a short stable digest of every field, used in cache keys
// and recorded with each run.
func (p Policy) Fingerprint() string {
	m := p.Markers
	joined := strings.Join([]string{
		m.Key, m.Attendance, m.Activity, m.Meal, m.Total, m.ActivityTarget, m.ShiftTarget, m.Name, m.Date,
		p.Separator,
		fmt.Sprint(p.ScanRows),
		string(p.MealScope),
		string(p.Width),
		string(p.BlankTop),
		string(p.DateOrder),
		fmt.Sprint(p.ExcessThreshold),
	}, "\x1f")
	sum := sha256.Sum256([]byte(joined))
	return hex.EncodeToString(sum[:8])
}
