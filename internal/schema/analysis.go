package schema

// Analysis is the schema every analysis result must satisfy.
var Analysis = analysisSchema()

func feedbackSchema() *Node {
	tip := Object(
		Prop("type", Enum("good", "improve")),
		Prop("tip", String().Describe("Short title of the tip")),
		OptionalProp("explanation", String().Describe("Detailed explanation of the tip")),
	)
	return Object(
		Prop("score", IntegerRange(0, 100)),
		Prop("tips", Array(tip)),
	)
}

func analysisSchema() *Node {
	return Object(
		Prop("overallScore", IntegerRange(0, 100).Describe("Overall resume score from 0 to 100")),
		Prop("estimatedSalary", String().Describe("Estimated salary range for the candidate, for example \"$90k - $110k\"")),
		Prop("extractedSkills", Array(String()).Describe("Skills found in the resume, most relevant first")),
		Prop("ATS", feedbackSchema()),
		Prop("toneAndStyle", feedbackSchema()),
		Prop("content", feedbackSchema()),
		Prop("structure", feedbackSchema()),
		Prop("skills", feedbackSchema()),
	)
}
