package patient

import (
	"strconv"
	"strings"
	"time"
)

// DateLayout is the wire format of birth dates in forms.
const DateLayout = "2006-01-02"

type Patient struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	BirthDate *time.Time `json:"birth_date,omitempty"`
	Sick      bool       `json:"sick"`
	Score     int        `json:"score"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Form is a patient as posted by the browser. Fields stay raw strings so an
// invalid submission can be shown back exactly as typed.
type Form struct {
	ID        string
	Name      string
	BirthDate string
	Sick      bool
	Score     string
}

// FormOf renders p for the edit page.
func FormOf(p *Patient) Form {
	f := Form{
		ID:    strconv.FormatInt(p.ID, 10),
		Name:  p.Name,
		Sick:  p.Sick,
		Score: strconv.Itoa(p.Score),
	}
	if p.BirthDate != nil {
		f.BirthDate = p.BirthDate.Format(DateLayout)
	}
	return f
}

// Patient converts a form that passed Validate. Unparseable fields come back
// as zero values.
func (f Form) Patient() *Patient {
	p := &Patient{Name: f.Name, Sick: f.Sick}
	p.ID, _ = strconv.ParseInt(f.ID, 10, 64)
	p.Score, _ = strconv.Atoi(strings.TrimSpace(f.Score))
	if d, err := time.Parse(DateLayout, f.BirthDate); err == nil {
		p.BirthDate = &d
	}
	return p
}
