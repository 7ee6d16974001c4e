package translate

// Context selects the content profile that shapes translation
// instructions, terminology handling, and tone.
type Context string

// Known translation contexts.
const (
	ContextCasual      Context = "casual"
	ContextLegal       Context = "legal"
	ContextSpiritual   Context = "spiritual"
	ContextMarketing   Context = "marketing"
	ContextScientific  Context = "scientific"
	ContextEducational Context = "educational"
	ContextNews        Context = "news"
)

// profile holds the per-context prompt fragments.
type profile struct {
	Instruction string
	Terminology string
	Tone        string
}

var profiles = map[Context]profile{
	ContextSpiritual: {
		Instruction: "Preserve the spiritual, uplifting, and compassionate tone. Maintain motivational language and keep religious/spiritual terminology accurate. Focus on emotional resonance.",
		Terminology: "Use respectful spiritual language, preserve metaphors and inspirational phrases",
		Tone:        "Warm, encouraging, and reverent",
	},
	ContextLegal: {
		Instruction: "Keep the formal legal register and ensure precise terminology. Maintain professional tone and accuracy of legal concepts. Avoid ambiguity.",
		Terminology: "Use exact legal terminology, preserve technical precision",
		Tone:        "Formal, precise, and authoritative",
	},
	ContextMarketing: {
		Instruction: "Adapt for marketing purposes: make it persuasive, engaging, and action-oriented. Preserve selling points and emotional appeals.",
		Terminology: "Use compelling marketing language, maintain call-to-action elements",
		Tone:        "Persuasive, engaging, and dynamic",
	},
	ContextScientific: {
		Instruction: "Maintain scientific accuracy and technical precision. Keep technical terms consistent and preserve logical flow.",
		Terminology: "Use precise scientific vocabulary, maintain technical accuracy",
		Tone:        "Objective, precise, and analytical",
	},
	ContextEducational: {
		Instruction: "Make it clear and educational. Ensure concepts are well-explained and accessible to the learning audience.",
		Terminology: "Use clear educational language, define complex terms",
		Tone:        "Clear, instructive, and supportive",
	},
	ContextNews: {
		Instruction: "Maintain journalistic objectivity and factual accuracy. Keep the informational tone and news-style structure.",
		Terminology: "Use professional news language, maintain factual precision",
		Tone:        "Objective, informative, and professional",
	},
	ContextCasual: {
		Instruction: "Maintain natural conversational tone. Keep it friendly and accessible while preserving the speaker's personality.",
		Terminology: "Use natural conversational language, maintain personal style",
		Tone:        "Natural, friendly, and conversational",
	},
}

// Valid reports whether c is a known context.
func (c Context) Valid() bool {
	_, ok := profiles[c]
	return ok
}

// profileOf returns the prompt profile for c, falling back to the casual
// profile for unknown contexts.
func profileOf(c Context) profile {
	if p, ok := profiles[c]; ok {
		return p
	}
	return profiles[ContextCasual]
}

// Contexts returns the known context names, for API enumeration.
func Contexts() []Context {
	return []Context{
		ContextCasual, ContextLegal, ContextSpiritual, ContextMarketing,
		ContextScientific, ContextEducational, ContextNews,
	}
}
