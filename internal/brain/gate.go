package brain

import "github.com/flemzord/robobrain/internal/reply"

// ClarificationResponse asks the student to repeat themselves.
const ClarificationResponse = "ขอโทษค่ะ ฉันไม่ค่อยได้ยินชัดเจน ช่วยพูดอีกครั้งได้ไหมคะ"

// Gate drops transcriptions the speech recognizer was unsure about.
type Gate struct {
	Threshold float64
}

// Accept reports whether confidence reaches the threshold.
func (g Gate) Accept(confidence float64) bool {
	return confidence >= g.Threshold
}

// Clarification is the reply to a rejected utterance.
func Clarification(sessionID string) SpeechResult {
	return SpeechResult{
		SessionID:    sessionID,
		ResponseText: ClarificationResponse,
		Intent:       reply.IntentClarification,
	}
}
