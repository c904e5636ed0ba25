package candidate

import (
	"sort"
	"strings"
	"time"

	"github.com/spigell/cv-screener/internal/textmatch"
)

// Record is a parsed resume. Every field except ID is optional.
type Record struct {
	ID               string           `json:"id" mapstructure:"id"`
	SourceCode       string           `json:"source_code,omitempty" mapstructure:"source_code"`
	Name             string           `json:"name,omitempty" mapstructure:"name"`
	Email            string           `json:"email,omitempty" mapstructure:"email"`
	Education        []EducationEntry `json:"education,omitempty" mapstructure:"education"`
	WorkExperiences  []WorkExperience `json:"work_experiences,omitempty" mapstructure:"work_experiences"`
	SkillTags        []string         `json:"skill_tags,omitempty" mapstructure:"skill_tags"`
	SkillsText       string           `json:"skills_text,omitempty" mapstructure:"skills_text"`
	SelfIntroduction string           `json:"self_introduction,omitempty" mapstructure:"self_introduction"`
}

type EducationEntry struct {
	School      string `json:"school,omitempty" mapstructure:"school"`
	Department  string `json:"department,omitempty" mapstructure:"department"`
	DegreeLevel string `json:"degree_level,omitempty" mapstructure:"degree_level"`
	DateStart   string `json:"date_start,omitempty" mapstructure:"date_start"`
	DateEnd     string `json:"date_end,omitempty" mapstructure:"date_end"`
	Region      string `json:"region,omitempty" mapstructure:"region"`
	Status      string `json:"status,omitempty" mapstructure:"status"`
	Thesis      string `json:"thesis,omitempty" mapstructure:"thesis"`
}

type WorkExperience struct {
	JobTitle       string `json:"job_title,omitempty" mapstructure:"job_title"`
	CompanyName    string `json:"company_name,omitempty" mapstructure:"company_name"`
	DateStart      string `json:"date_start,omitempty" mapstructure:"date_start"`
	DateEnd        string `json:"date_end,omitempty" mapstructure:"date_end"`
	Duration       string `json:"duration,omitempty" mapstructure:"duration"`
	JobDescription string `json:"job_description,omitempty" mapstructure:"job_description"`
	JobSkills      string `json:"job_skills,omitempty" mapstructure:"job_skills"`
	Industry       string `json:"industry,omitempty" mapstructure:"industry"`
	JobCategory    string `json:"job_category,omitempty" mapstructure:"job_category"`
}

// Label returns a human readable identifier for logs and reports.
func (r *Record) Label() string {
	if name := strings.TrimSpace(r.Name); name != "" {
		return name
	}
	return r.ID
}

// Text returns the narrative of a single experience: title, description and
// the skills listed for the position.
func (w WorkExperience) Text() string {
	return textmatch.Join(w.JobTitle, w.JobDescription, w.JobSkills)
}

// ExperienceText joins the narrative of every work experience.
func (r *Record) ExperienceText() string {
	parts := make([]string, 0, len(r.WorkExperiences))
	for _, w := range r.WorkExperiences {
		parts = append(parts, w.Text())
	}
	return textmatch.Join(parts...)
}

// TagText joins the claimed skill tags.
func (r *Record) TagText() string {
	return textmatch.Join(r.SkillTags...)
}

// FreeText joins every free-text field of the record, skill tags included.
func (r *Record) FreeText() string {
	parts := []string{r.TagText(), r.SkillsText, r.SelfIntroduction, r.ExperienceText()}
	for _, e := range r.Education {
		parts = append(parts, e.Department, e.Thesis)
	}
	return textmatch.Join(parts...)
}

// ReverseChronological returns a copy of the experiences ordered by start
// date, newest first. Entries with unparseable dates keep their relative
// order and go last.
func ReverseChronological(experiences []WorkExperience) []WorkExperience {
	sorted := make([]WorkExperience, len(experiences))
	copy(sorted, experiences)

	sort.SliceStable(sorted, func(i, j int) bool {
		a, aok := ParseDate(sorted[i].DateStart)
		b, bok := ParseDate(sorted[j].DateStart)
		switch {
		case aok && bok:
			return a.After(b)
		case aok:
			return true
		default:
			return false
		}
	})

	return sorted
}

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"2006-01",
	"2006/01",
	"2006.01",
	"2006/1",
	"2006-1",
	"Jan 2006",
	"January 2006",
	"2006",
}

// ParseDate understands the date shapes resume parsers emit ("2021/03",
// "2021-03-01", "Mar 2021", "2021").
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}

	return time.Time{}, false
}
