package anamnesis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/onterapia/teleconsulta/internal/platform/chatbot"
	"github.com/onterapia/teleconsulta/internal/platform/llm"
)

// Bot intents.
const (
	intentStandardQuestions = "/get_perguntas_padrao"
	intentSave              = "/salvar_anamnese"
	intentAnswers           = "/ver_resposta_anamnese"
)

// WhatsApp template that carries the anamnesis code to the patient.
const (
	CodeTemplate     = "modelo_anamnese"
	CodeTemplateLang = "pt_BR"
)

var (
	ErrNoQuestions  = errors.New("add at least one question")
	ErrMissingName  = errors.New("patient name is required")
	ErrMissingCode  = errors.New("anamnesis code is required")
	ErrNoMessenger  = errors.New("whatsapp delivery is not configured")
	ErrEmptyAnswers = errors.New("no answers recorded for this code")
)

type Question struct {
	Text string `json:"pergunta"`
	Type string `json:"tipo"`
}

type Answer struct {
	Question string `json:"pergunta"`
	Answer   string `json:"resposta"`
}

type Bot interface {
	Send(ctx context.Context, msg chatbot.Message) ([]chatbot.Reply, error)
}

type Messenger interface {
	SendTemplate(ctx context.Context, phone, template, lang string, params ...string) (string, error)
}

type Summarizer interface {
	Enabled() bool
	Summarize(ctx context.Context, answers []llm.QA) (string, error)
}

type Service struct {
	bot       Bot
	messenger Messenger
	summary   Summarizer
	now       func() time.Time
	logger    zerolog.Logger
}

// NewService wires the anamnesis flow. messenger and summary may be nil.
func NewService(bot Bot, messenger Messenger, summary Summarizer, logger zerolog.Logger) *Service {
	return &Service{
		bot:       bot,
		messenger: messenger,
		summary:   summary,
		now:       time.Now,
		logger:    logger.With().Str("component", "anamnesis").Logger(),
	}
}

func (s *Service) sender(prefix string) string {
	return prefix + strconv.FormatInt(s.now().UnixMilli(), 10)
}

func (s *Service) StandardQuestions(ctx context.Context) ([]Question, error) {
	replies, err := s.bot.Send(ctx, chatbot.Message{
		Sender:  s.sender("psicologo_"),
		Message: intentStandardQuestions,
	})
	if err != nil {
		return nil, err
	}
	var qs []Question
	if err := chatbot.Custom(replies, "perguntas_padrao", &qs); err != nil {
		s.logger.Warn().Err(err).Msg("bot returned no standard questions")
		return nil, err
	}
	return qs, nil
}

// Save stores a questionnaire for patientName and returns the code the
// patient uses to answer it.
func (s *Service) Save(ctx context.Context, patientName string, questions []Question) (string, error) {
	patientName = strings.TrimSpace(patientName)
	if patientName == "" {
		return "", ErrMissingName
	}
	cleaned := make([]Question, 0, len(questions))
	for _, q := range questions {
		if q.Text = strings.TrimSpace(q.Text); q.Text != "" {
			cleaned = append(cleaned, q)
		}
	}
	if len(cleaned) == 0 {
		return "", ErrNoQuestions
	}

	replies, err := s.bot.Send(ctx, chatbot.Message{
		Sender:  s.sender("psicologo_"),
		Message: intentSave,
		Metadata: map[string]any{
			"nome":      patientName,
			"perguntas": cleaned,
		},
	})
	if err != nil {
		return "", err
	}
	var code string
	if err := chatbot.Custom(replies, "codigo", &code); err != nil || code == "" {
		s.logger.Warn().Err(err).Msg("bot returned no anamnesis code")
		return "", fmt.Errorf("%w: codigo", chatbot.ErrNoData)
	}
	s.logger.Info().Str("code", code).Int("questions", len(cleaned)).Msg("anamnesis saved")
	return code, nil
}

// SendCode delivers code to the patient's WhatsApp.
func (s *Service) SendCode(ctx context.Context, phone, code string) (string, error) {
	if s.messenger == nil {
		return "", ErrNoMessenger
	}
	id, err := s.messenger.SendTemplate(ctx, phone, CodeTemplate, CodeTemplateLang, code)
	if err != nil {
		return "", err
	}
	s.logger.Info().Str("code", code).Str("message_id", id).Msg("anamnesis code sent")
	return id, nil
}

func (s *Service) Answers(ctx context.Context, code string) ([]Answer, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrMissingCode
	}
	entity, err := json.Marshal(map[string]string{"codigo": code})
	if err != nil {
		return nil, err
	}
	replies, err := s.bot.Send(ctx, chatbot.Message{
		Sender:  s.sender("visualizar_resposta_"),
		Message: intentAnswers + string(entity),
	})
	if err != nil {
		return nil, err
	}
	var answers []Answer
	if err := chatbot.Custom(replies, "respostas", &answers); err != nil {
		return nil, err
	}
	return answers, nil
}

// Summary asks the language model for a short digest of the answers to
// code.
func (s *Service) Summary(ctx context.Context, code string) (string, error) {
	if s.summary == nil || !s.summary.Enabled() {
		return "", llm.ErrDisabled
	}
	answers, err := s.Answers(ctx, code)
	if err != nil {
		return "", err
	}
	if len(answers) == 0 {
		return "", ErrEmptyAnswers
	}
	qa := make([]llm.QA, len(answers))
	for i, a := range answers {
		qa[i] = llm.QA{Question: a.Question, Answer: a.Answer}
	}
	return s.summary.Summarize(ctx, qa)
}
