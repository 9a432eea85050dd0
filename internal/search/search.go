// Package search retrieves, reranks and assembles context for queries and
// produces grounded answers from it.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fernandadias/discoveryrag/internal/ai"
	"github.com/fernandadias/discoveryrag/internal/guidelines"
	"github.com/fernandadias/discoveryrag/internal/rerank"
	"github.com/fernandadias/discoveryrag/pkg/models"
	"github.com/rs/zerolog/log"
)

// DefaultGuidelinesChars caps the policy text added to a prompt.
const DefaultGuidelinesChars = 2000

// NoInformationResponse is returned when retrieval finds nothing.
const NoInformationResponse = "Não encontrei informações específicas sobre isso na base de conhecimento."

const systemPrompt = "Você é um assistente especializado em ideação e discovery de produto para a Stone."

// ErrNoInformation is returned by Answer alongside NoInformationResponse
// when no passage matched the query.
var ErrNoInformation = errors.New("no relevant information found")

// Result is a reranked retrieval with its assembled context.
type Result struct {
	Retrieval models.RetrievalResult  `json:"retrieval"`
	Context   models.AssembledContext `json:"context"`
}

// Answer is a generated response and the context it was grounded on.
type Answer struct {
	Response string                  `json:"response"`
	Context  models.AssembledContext `json:"context"`
	Tiers    []models.Tier           `json:"tiers"`
}

// Service answers queries by retrieving, reranking and assembling context,
// then asks the Generator for a grounded response when one is set.
type Service struct {
	Retriever *Retriever
	Reranker  *rerank.Reranker
	Assembler *Assembler
	Generator ai.Generator

	Guidelines      *guidelines.Set
	GuidelinesChars int
}

// NewService creates a search service. gen and g may be nil; Answer then
// fails with ai.ErrGeneration and prompts carry no guidelines.
func NewService(r *Retriever, rr *rerank.Reranker, gen ai.Generator, g *guidelines.Set) *Service {
	return &Service{
		Retriever:       r,
		Reranker:        rr,
		Assembler:       NewAssembler(),
		Generator:       gen,
		Guidelines:      g,
		GuidelinesChars: DefaultGuidelinesChars,
	}
}

// Query retrieves candidates for q, reranks them against the original
// query and assembles the top k.
func (s *Service) Query(ctx context.Context, q string, k int) Result {
	res := s.Retriever.Retrieve(ctx, q, k)
	if s.Reranker != nil {
		res.Chunks = s.Reranker.Rerank(res.Query, res.Chunks)
	}

	asm := *s.assembler()
	if k > 0 {
		asm.TopK = k
	}
	if len(res.Chunks) > asm.TopK && asm.TopK > 0 {
		res.Chunks = res.Chunks[:asm.TopK]
	}
	return Result{Retrieval: res, Context: asm.Assemble(res.Chunks)}
}

// Answer runs Query and asks the generator to answer q from the assembled
// context. Generation failures wrap ai.ErrGeneration and still return the
// context so its citations can be shown.
func (s *Service) Answer(ctx context.Context, q string, k int) (Answer, error) {
	r := s.Query(ctx, q, k)
	ans := Answer{Context: r.Context, Tiers: r.Retrieval.Tiers}
	if r.Retrieval.Empty() {
		ans.Response = NoInformationResponse
		return ans, ErrNoInformation
	}
	if s.Generator == nil {
		return ans, fmt.Errorf("%w: no generator configured", ai.ErrGeneration)
	}

	text, err := s.Generator.Generate(ctx, systemPrompt, s.prompt(r.Retrieval.Query, r.Context))
	if err != nil {
		log.Error().Err(err).Str("query", q).Msg("generation failed")
		if !errors.Is(err, ai.ErrGeneration) {
			err = fmt.Errorf("%w: %w", ai.ErrGeneration, err)
		}
		return ans, err
	}
	ans.Response = text
	return ans, nil
}

func (s *Service) prompt(q string, c models.AssembledContext) string {
	var b strings.Builder
	b.WriteString("Use apenas as informações fornecidas no contexto abaixo para responder à pergunta.\n")
	b.WriteString("Se a informação não estiver no contexto, diga que não tem essa informação específica ")
	b.WriteString("mas tente fornecer orientações gerais baseadas nas diretrizes de produto.\n\n")
	b.WriteString("Contexto:\n")
	b.WriteString(c.Text)
	if g := s.guidelines(); g != "" {
		b.WriteString("\n\nDiretrizes de Produto:\n")
		b.WriteString(g)
	}
	fmt.Fprintf(&b, "\n\nPergunta: %s\n\nResposta:", q)
	return b.String()
}

func (s *Service) guidelines() string {
	return truncateRunes(strings.TrimSpace(s.Guidelines.Content()), positive(s.GuidelinesChars, DefaultGuidelinesChars))
}

func (s *Service) assembler() *Assembler {
	if s.Assembler == nil {
		return NewAssembler()
	}
	return s.Assembler
}
