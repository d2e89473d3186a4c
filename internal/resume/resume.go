// Package resume builds the resume attached to applications, either
// synthesized from a candidate profile or imported from an uploaded CV.
package resume

import (
	"strings"
	"time"

	"jobhub/internal/storage"
)

// FromProfile synthesizes the default resume of a candidate who applies
// without one.
func FromProfile(p *storage.CandidateProfile, now time.Time) *storage.Resume {
	title := strings.TrimSpace(p.Title)
	if title == "" {
		title = "Hồ sơ của " + strings.TrimSpace(p.FullName)
	}
	skills := make([]string, len(p.Skills))
	copy(skills, p.Skills)

	return &storage.Resume{
		CandidateProfileID: p.ID,
		Title:              title,
		Summary:            p.Bio,
		Skills:             skills,
		Experience:         p.Experience,
		Education:          p.Education,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// FromParsed turns an imported CV into the candidate's resume. Profile
// fields fill what the document did not yield.
func FromParsed(p *storage.CandidateProfile, parsed *ParsedCV, now time.Time) *storage.Resume {
	r := FromProfile(p, now)
	r.FileName = parsed.Filename
	if summary := firstParagraph(parsed.FullText); summary != "" {
		r.Summary = summary
	}
	r.Skills = mergeSkills(r.Skills, parsed.Skills)
	return r
}

func firstParagraph(text string) string {
	for _, para := range strings.Split(text, "\n\n") {
		if t := strings.Join(strings.Fields(para), " "); t != "" {
			if len([]rune(t)) > 500 {
				t = string([]rune(t)[:500])
			}
			return t
		}
	}
	return ""
}

func mergeSkills(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range append(append([]string{}, a...), b...) {
		key := strings.ToLower(strings.TrimSpace(s))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, strings.TrimSpace(s))
	}
	return out
}
