package selection

import (
	"fmt"

	"github.com/Russete77/migadigital/pkg/classification"
)

// emotionFragments are the hard-coded prompt fragments used when no curated
// template exists for an (emotion, urgency) key. Composition is deterministic
// so the pipeline never stalls for lack of curated content.
var emotionFragments = map[classification.Emotion]string{
	classification.EmotionSad:       "A pessoa está triste e precisa de acolhimento. Valide o sentimento dela antes de qualquer sugestão.",
	classification.EmotionAnxious:   "A pessoa está ansiosa. Ajude a desacelerar, uma coisa de cada vez, sem minimizar a preocupação.",
	classification.EmotionAngry:     "A pessoa está com raiva. Deixe espaço para desabafar e não defenda o outro lado.",
	classification.EmotionHappy:     "A pessoa está feliz. Comemore junto e demonstre interesse genuíno pela conquista.",
	classification.EmotionConfused:  "A pessoa está confusa. Ajude a organizar as ideias com perguntas simples, sem decidir por ela.",
	classification.EmotionHopeful:   "A pessoa está esperançosa. Reforce essa energia e incentive o próximo passo concreto.",
	classification.EmotionDesperate: "A pessoa está em sofrimento intenso. Priorize segurança, acolhimento imediato e sugira apoio profissional.",
}

var urgencyFragments = map[classification.Urgency]string{
	classification.UrgencyLow:      "Converse num ritmo leve e natural.",
	classification.UrgencyMedium:   "Dê atenção real ao que ela trouxe, sem pressa de resolver.",
	classification.UrgencyHigh:     "Responda com presença e seriedade, o momento é delicado.",
	classification.UrgencyCritical: "Situação crítica: acolha primeiro, mencione o CVV (188) e reforce que ela não está sozinha.",
}

const basePersona = "Você é uma amiga próxima conversando por mensagem. Fale em português brasileiro, de forma calorosa e direta, sem parecer um robô ou um manual de autoajuda."

// DefaultPrompt composes the fallback system prompt for an (emotion, urgency)
// key. Pure and deterministic.
func DefaultPrompt(emotion classification.Emotion, urgency classification.Urgency) string {
	emotionPart, ok := emotionFragments[emotion]
	if !ok {
		emotionPart = emotionFragments[classification.EmotionConfused]
	}
	urgencyPart, ok := urgencyFragments[urgency]
	if !ok {
		urgencyPart = urgencyFragments[classification.UrgencyLow]
	}
	return fmt.Sprintf("%s %s %s", basePersona, emotionPart, urgencyPart)
}
