package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gurubase/gurubase-go/internal/answers"
	"github.com/gurubase/gurubase-go/internal/config"
	"github.com/gurubase/gurubase-go/internal/models"
	"github.com/gurubase/gurubase-go/pkg/utils"
	"github.com/sirupsen/logrus"
)

// AskRequest is the single entry every caller surface goes through.
type AskRequest struct {
	Question      string
	GuruType      *models.GuruType
	Binge         *models.Binge
	Parent        *models.Question
	FetchExisting bool
	ShortAnswer   bool
	Source        models.Source
	User          *models.User
	ExtraContext  []string
}

// AskResult is exactly one of: an existing stored answer, a live answer
// stream, or a user-facing error message.
type AskResult struct {
	Existing *models.Question
	Stream   *AnswerStream
	ErrorMsg string
}

// AnswerStream is a forward-only chunk sequence. After draining it the
// consumer calls Finalize to persist the new question and obtain it.
type AnswerStream struct {
	svc       *AskService
	req       AskRequest
	summary   *answers.Summary
	gen       *answers.Generation
	pending   []string
	collected strings.Builder
	question  *models.Question
	finalized bool
}

// Next returns the next chunk; false means the stream is done.
func (st *AnswerStream) Next() (string, bool) {
	if len(st.pending) > 0 {
		chunk := st.pending[0]
		st.pending = st.pending[1:]
		st.collected.WriteString(chunk)
		return chunk, true
	}
	chunk, ok := st.gen.Next()
	if ok {
		st.collected.WriteString(chunk)
	}
	return chunk, ok
}

// Content returns everything consumed so far.
func (st *AnswerStream) Content() string {
	return st.collected.String()
}

// Finalize persists the generated question and returns it. It must be
// called after Next has returned false. Calling it twice returns the
// already-persisted question.
func (st *AnswerStream) Finalize(ctx context.Context) (*models.Question, error) {
	if st.finalized {
		return st.question, nil
	}

	meta, err := st.gen.Metadata()
	if err != nil {
		return nil, err
	}

	question, err := st.svc.persist(st.req, st.summary, st.collected.String(), meta)
	if err != nil {
		return nil, err
	}
	st.question = question
	st.finalized = true
	return question, nil
}

// AskService hides the reuse-vs-regenerate decision behind one call.
type AskService struct {
	graph     *GraphService
	questions models.QuestionRepository
	generator answers.Generator
	cfg       *config.Config
	logger    *logrus.Logger
}

func NewAskService(graph *GraphService, questions models.QuestionRepository, generator answers.Generator, cfg *config.Config, logger *logrus.Logger) *AskService {
	return &AskService{
		graph:     graph,
		questions: questions,
		generator: generator,
		cfg:       cfg,
		logger:    logger,
	}
}

// Ask resolves a question to an AskResult. At most one generation is
// triggered per call; reuse paths cost nothing.
func (s *AskService) Ask(ctx context.Context, req AskRequest) (*AskResult, error) {
	if strings.TrimSpace(req.Question) == "" {
		return &AskResult{ErrorMsg: "Question is required."}, nil
	}

	summary, err := s.summarize(ctx, req)
	if err != nil {
		return nil, err
	}
	if !summary.ValidQuestion {
		msg := "This question is not related to this guru."
		return &AskResult{ErrorMsg: msg}, nil
	}

	if existing, err := s.findReusable(req, summary); err != nil {
		return nil, err
	} else if existing != nil {
		if req.Binge != nil {
			if err := s.graph.TouchBinge(req.Binge); err != nil {
				s.logger.WithError(err).Warn("Failed to bump binge last_used")
			}
		}
		return &AskResult{Existing: existing}, nil
	}

	genReq := answers.GenerationRequest{
		Question:     summary.Question,
		UserQuestion: req.Question,
		GuruType:     req.GuruType.Slug,
		Source:       req.Source,
		ShortAnswer:  req.ShortAnswer,
		ExtraContext: req.ExtraContext,
	}
	if req.Parent != nil {
		genReq.ParentSlug = req.Parent.Slug
	}
	if req.Binge != nil {
		genReq.BingeID = req.Binge.ID.String()
	}

	gen, err := s.generator.Generate(ctx, genReq)
	if err != nil {
		s.logger.WithError(err).Error("Answer generation failed to start")
		return nil, err
	}

	stream := &AnswerStream{svc: s, req: req, summary: summary, gen: gen}

	// Pull one chunk so immediate rejections become Error results
	// instead of empty streams.
	first, ok := gen.Next()
	if !ok {
		if _, metaErr := gen.Metadata(); metaErr != nil {
			var rejection *answers.RejectionError
			if errors.As(metaErr, &rejection) {
				return &AskResult{ErrorMsg: rejection.Msg}, nil
			}
			return nil, metaErr
		}
		// Empty but successful stream, the consumer will just see an
		// immediate end.
		return &AskResult{Stream: stream}, nil
	}
	stream.pending = append(stream.pending, first)

	return &AskResult{Stream: stream}, nil
}

func (s *AskService) summarize(ctx context.Context, req AskRequest) (*answers.Summary, error) {
	sumReq := answers.SummaryRequest{
		Question:    req.Question,
		GuruType:    req.GuruType.Slug,
		ShortAnswer: req.ShortAnswer,
	}
	if req.Binge != nil {
		sumReq.BingeID = req.Binge.ID.String()
	}
	if req.Parent != nil {
		sumReq.ParentSlug = req.Parent.Slug
	}
	return s.generator.Summarize(ctx, sumReq)
}

// findReusable returns a stored, non-dirty question when the caller
// asked for reuse, or when the identical-question policy allows it for
// non-binge questions.
func (s *AskService) findReusable(req AskRequest, summary *answers.Summary) (*models.Question, error) {
	reuse := req.FetchExisting
	if !reuse && req.Binge == nil && s.cfg.Binge.ReuseIdenticalQuestion {
		reuse = true
	}
	if !reuse {
		return nil, nil
	}

	opts := SearchOptions{
		IncludeAPI:         req.Source == models.SourceAPI,
		WillCheckBingeAuth: false,
	}
	var existing *models.Question
	var err error
	if req.Binge != nil {
		existing, err = s.graph.SearchQuestion(req.User, req.GuruType, &req.Binge.ID, summary.QuestionSlug, summary.Question, opts)
	} else {
		existing, err = s.graph.SearchQuestion(req.User, req.GuruType, nil, summary.QuestionSlug, summary.Question, opts)
	}
	if err != nil || existing == nil {
		return nil, err
	}

	dirty, err := s.graph.IsQuestionDirty(existing)
	if err != nil {
		return nil, err
	}
	if dirty {
		return nil, nil
	}
	return existing, nil
}

// persist stores the generated answer as a new Question.
func (s *AskService) persist(req AskRequest, summary *answers.Summary, content string, meta *answers.Metadata) (*models.Question, error) {
	slug := summary.QuestionSlug
	if slug == "" {
		slug = utils.Slugify(summary.Question)
	}

	question := &models.Question{
		Slug:             slug,
		Question:         summary.Question,
		UserQuestion:     req.Question,
		Content:          content,
		Description:      summary.Description,
		TrustScore:       meta.TrustScore,
		References:       meta.References,
		Source:           req.Source,
		GuruTypeID:       req.GuruType.ID,
		CtxRelevances:    meta.CtxRelevances,
		CompletionTokens: summary.CompletionTokens + meta.CompletionTokens,
		PromptTokens:     summary.PromptTokens + meta.PromptTokens,
	}
	if req.Parent != nil {
		question.ParentID = &req.Parent.ID
	}
	if req.Binge != nil {
		id := req.Binge.ID
		question.BingeID = &id
	}

	if err := s.questions.Create(question); err != nil {
		return nil, fmt.Errorf("failed to persist question: %w", err)
	}

	if req.Binge != nil {
		if err := s.graph.TouchBinge(req.Binge); err != nil {
			s.logger.WithError(err).Warn("Failed to bump binge last_used")
		}
	}
	return question, nil
}
