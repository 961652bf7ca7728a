package types

import "slices"

// TipKind classifies a feedback tip.
type TipKind string

const (
	TipGood    TipKind = "good"
	TipImprove TipKind = "improve"
)

// Tip is a single piece of feedback inside a section.
type Tip struct {
	Kind        TipKind `json:"type"`
	Tip         string  `json:"tip"`
	Explanation *string `json:"explanation,omitempty"`
}

// Feedback is a scored section of the analysis.
type Feedback struct {
	Score int   `json:"score"` // 0-100
	Tips  []Tip `json:"tips"`
}

// AnalysisResult is the structured output of a resume analysis.
type AnalysisResult struct {
	OverallScore    int      `json:"overallScore"` // 0-100
	EstimatedSalary string   `json:"estimatedSalary"`
	ExtractedSkills []string `json:"extractedSkills"`
	ATS             Feedback `json:"ATS"`
	ToneAndStyle    Feedback `json:"toneAndStyle"`
	Content         Feedback `json:"content"`
	Structure       Feedback `json:"structure"`
	Skills          Feedback `json:"skills"`
}

// Sections returns the named feedback sections in display order.
func (r AnalysisResult) Sections() []NamedFeedback {
	return []NamedFeedback{
		{Name: "ATS", Feedback: r.ATS},
		{Name: "Tone & Style", Feedback: r.ToneAndStyle},
		{Name: "Content", Feedback: r.Content},
		{Name: "Structure", Feedback: r.Structure},
		{Name: "Skills", Feedback: r.Skills},
	}
}

// NamedFeedback pairs a section with its display name.
type NamedFeedback struct {
	Name     string
	Feedback Feedback
}

// Clone returns a deep copy so stored results cannot be mutated by callers.
func (r AnalysisResult) Clone() AnalysisResult {
	out := r
	out.ExtractedSkills = slices.Clone(r.ExtractedSkills)
	out.ATS = r.ATS.clone()
	out.ToneAndStyle = r.ToneAndStyle.clone()
	out.Content = r.Content.clone()
	out.Structure = r.Structure.clone()
	out.Skills = r.Skills.clone()
	return out
}

func (f Feedback) clone() Feedback {
	if f.Tips == nil {
		return f
	}
	tips := make([]Tip, len(f.Tips))
	for i, tip := range f.Tips {
		tips[i] = tip
		if tip.Explanation != nil {
			e := *tip.Explanation
			tips[i].Explanation = &e
		}
	}
	f.Tips = tips
	return f
}
