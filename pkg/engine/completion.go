package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/Russete77/migadigital/pkg/classification"
	"github.com/Russete77/migadigital/pkg/config"
)

// ChatTurn is one prior message in the conversation.
type ChatTurn struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// CompletionService produces the raw draft reply from a system prompt, the
// conversation so far and the current message plus retrieved context.
type CompletionService interface {
	Complete(ctx context.Context, systemPrompt string, history []ChatTurn, userMessage, knowledgeContext string) (string, error)
}

// OpenAICompletionService calls an OpenAI-compatible chat completion
// endpoint.
type OpenAICompletionService struct {
	client openai.ChatCompletionService
	model  string
}

func NewOpenAICompletionService(cfg config.CompletionConfig) *OpenAICompletionService {
	opts := []option.RequestOption{}
	if cfg.URL != "" {
		opts = append(opts, option.WithBaseURL(cfg.URL))
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	return &OpenAICompletionService{
		client: openai.NewChatCompletionService(opts...),
		model:  cfg.Model,
	}
}

func (s *OpenAICompletionService) Complete(ctx context.Context, systemPrompt string, history []ChatTurn, userMessage, knowledgeContext string) (string, error) {
	user := userMessage
	if knowledgeContext != "" {
		user = fmt.Sprintf("Contexto relevante:\n%s\n\nMensagem: %s", knowledgeContext, userMessage)
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+2)
	messages = append(messages, openai.SystemMessage(systemPrompt))
	for _, turn := range history {
		if turn.Role == "assistant" {
			messages = append(messages, openai.AssistantMessage(turn.Content))
		} else {
			messages = append(messages, openai.UserMessage(turn.Content))
		}
	}
	messages = append(messages, openai.UserMessage(user))

	res, err := s.client.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(s.model),
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(res.Choices) == 0 {
		return "", fmt.Errorf("chat completion: empty choices")
	}
	reply := strings.TrimSpace(res.Choices[0].Message.Content)
	if reply == "" {
		return "", fmt.Errorf("chat completion: empty reply")
	}
	return reply, nil
}

// cannedReply is the safe local fallback used when the completion backend is
// unreachable. The critical variant always carries the CVV number.
func cannedReply(cls *classification.Result) string {
	if cls.Crisis || cls.Urgency == classification.UrgencyCritical {
		return "Ei, tô aqui com você e o que você tá sentindo importa muito. " +
			"Você não precisa passar por isso sozinha. Por favor, liga agora pro CVV no 188, " +
			"é de graça e funciona 24 horas. E se puder, chama alguém de confiança pra ficar com você. 💛"
	}
	switch cls.Emotion {
	case classification.EmotionSad, classification.EmotionDesperate:
		return "Poxa, sinto muito que você tá passando por isso. Tô aqui pra te ouvir, " +
			"sem pressa. Quer me contar um pouco mais do que aconteceu? 💛"
	case classification.EmotionAnxious:
		return "Ei, respira comigo um segundo. Tá tudo bem sentir isso. " +
			"Vamos por partes: o que tá pesando mais agora?"
	case classification.EmotionAngry:
		return "Entendo a raiva, é válida demais. Desabafa aqui, pode falar tudo. " +
			"O que mais te irritou nessa situação?"
	case classification.EmotionHappy:
		return "Que bom te ver assim! Me conta mais, quero saber tudo! 🎉"
	case classification.EmotionHopeful:
		return "Adoro essa energia! Conta mais sobre esse plano, quero saber como posso ajudar. ✨"
	default:
		return "Tô aqui com você. Me conta um pouco mais pra eu entender melhor o que você tá sentindo?"
	}
}
