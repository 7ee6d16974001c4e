package tts

// voicePair links an ElevenLabs voice to its closest Google Cloud
// Text-to-Speech Neural2 equivalent, so a job configured for one provider
// can fail over to the other without losing its voice character.
type voicePair struct {
	elevenlabs string
	google     string
}

var voicePairs = []voicePair{
	{"21m00Tcm4TlvDq8ikWAM", "en-US-Neural2-F"}, // Rachel
	{"pNInz6obpgDQGcFmaJgB", "en-US-Neural2-D"}, // Adam
	{"yoZ06aMxZJJ28mfd3POQ", "en-US-Neural2-A"}, // Sam
	{"piTKgcLEGmPE4e6mEKli", "en-US-Neural2-E"}, // Nicole
	{"TxGEqnHWrfWFTfGW9XjX", "en-US-Neural2-C"}, // Josh
	{"EXAVITQu4vr4xnSDxMaL", "en-US-Neural2-G"}, // Bella
	{"ThT5KcBeYPX3keUQqHPh", "en-GB-Neural2-A"}, // Dorothy
	{"ErXwobaYiN019PkySvjV", "en-US-Neural2-J"}, // Antoni
}

// MapVoice translates a voice ID into its equivalent on targetProvider
// using the pairing table. A paired voice already native to targetProvider
// maps to itself. The second return value is false for voices outside the
// table; callers decide whether to pass those through or reject them.
func MapVoice(voiceID, targetProvider string) (string, bool) {
	for _, p := range voicePairs {
		switch targetProvider {
		case "elevenlabs":
			if p.elevenlabs == voiceID || p.google == voiceID {
				return p.elevenlabs, true
			}
		case "googletts":
			if p.google == voiceID || p.elevenlabs == voiceID {
				return p.google, true
			}
		}
	}
	return "", false
}
