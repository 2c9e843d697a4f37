package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/kailas-cloud/aiorch/internal/domain"
)

type exactKey struct {
	Version      string          `json:"v"`
	UsageType    string          `json:"u"`
	Conversation []domain.Turn   `json:"c"`
	SystemPrompt string          `json:"s"`
	Sampling     domain.Sampling `json:"p"`
}

type templateKey struct {
	UsageType    string        `json:"u"`
	SystemPrompt string        `json:"s"`
	Conversation []domain.Turn `json:"c"`
}

// ExactKey is the L1 key: every input that can change the answer, plus a key version
// that invalidates the tier when bumped.
func ExactKey(version string, req *domain.GenerationRequest) string {
	return hashJSON(exactKey{
		Version:      version,
		UsageType:    req.UsageType,
		Conversation: req.Conversation,
		SystemPrompt: req.SystemPrompt,
		Sampling:     req.Sampling,
	})
}

// TemplateKey is the L3 key for deterministic requests. Whitespace differences, sampling
// other than temperature, scope and the L1 key version do not change it.
func TemplateKey(req *domain.GenerationRequest) string {
	turns := make([]domain.Turn, len(req.Conversation))
	for i, t := range req.Conversation {
		turns[i] = domain.Turn{Role: t.Role, Content: collapseSpace(t.Content)}
	}
	return hashJSON(templateKey{
		UsageType:    req.UsageType,
		SystemPrompt: collapseSpace(req.SystemPrompt),
		Conversation: turns,
	})
}

// SemanticQuery renders the text embedded for L2: the system prompt followed by every
// turn as a "role: content" line.
func SemanticQuery(req *domain.GenerationRequest) string {
	var b strings.Builder
	if s := strings.TrimSpace(req.SystemPrompt); s != "" {
		b.WriteString("system: ")
		b.WriteString(s)
		b.WriteByte('\n')
	}
	for _, t := range req.Conversation {
		b.WriteString(string(t.Role))
		b.WriteString(": ")
		b.WriteString(strings.TrimSpace(t.Content))
		b.WriteByte('\n')
	}
	return b.String()
}

// globalScope is the project tag of L2 entries written by unscoped requests.
const globalScope = "_global"

// semanticScope partitions L2 so only comparable requests can match each other.
// The project tag is always set so unscoped and scoped entries never mix.
func semanticScope(req *domain.GenerationRequest) map[string]string {
	project := req.ScopeKey
	if project == "" {
		project = globalScope
	}
	return map[string]string{
		domain.MetaTier:      string(domain.TierSemantic),
		domain.MetaUsageType: req.UsageType,
		domain.MetaBucket:    req.Sampling.Bucket(),
		domain.MetaTurns:     strconv.Itoa(len(req.Conversation)),
		domain.MetaProjectID: project,
	}
}

// semanticKey addresses an L2 payload. The same conversation stored under two
// projects yields two entries.
func semanticKey(l1 string, scope map[string]string) string {
	return hashJSON([]string{l1, scope[domain.MetaProjectID]})
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func hashJSON(v any) string {
	// Marshalling plain structs of strings, slices and pointers cannot fail.
	data, _ := json.Marshal(v)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
