package memory

import (
	"fmt"
	"sort"
	"strings"

	"github.com/orbvoice/orb/domain/entities"
)

// Ranker orders personality facts by relevance to a context utterance,
// bounding how many facts make it into the prompt. The hit weight
// differs between callers (prompt assembly vs UI highlighting), so it
// is a field rather than a constant.
type Ranker struct {
	HitWeight float64
}

func NewRanker(hitWeight float64) *Ranker {
	return &Ranker{HitWeight: hitWeight}
}

// Rank returns up to limit facts. With no context the order is
// confidence descending; otherwise each fact scores
// confidence + HitWeight * (context tokens found in the serialized
// value), ties broken by confidence. The result is deterministic for
// identical inputs.
func (r *Ranker) Rank(facts []entities.PersonalityFact, context string, limit int) []entities.PersonalityFact {
	if len(facts) == 0 {
		return nil
	}

	ranked := make([]entities.PersonalityFact, len(facts))
	copy(ranked, facts)

	if context == "" {
		sort.SliceStable(ranked, func(i, j int) bool {
			return ranked[i].Confidence > ranked[j].Confidence
		})
		return truncate(ranked, limit)
	}

	tokens := Tokenize(context)
	scores := make(map[string]float64, len(ranked))
	for _, fact := range ranked {
		serialized := strings.ToLower(SerializeValue(fact.Value))
		hits := 0
		for _, token := range tokens {
			if strings.Contains(serialized, token) {
				hits++
			}
		}
		scores[fact.Key] = fact.Confidence + float64(hits)*r.HitWeight
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		si, sj := scores[ranked[i].Key], scores[ranked[j].Key]
		if si != sj {
			return si > sj
		}
		return ranked[i].Confidence > ranked[j].Confidence
	})

	return truncate(ranked, limit)
}

func truncate(facts []entities.PersonalityFact, limit int) []entities.PersonalityFact {
	if limit > 0 && len(facts) > limit {
		return facts[:limit]
	}
	return facts
}

// Tokenize splits on non-alphanumeric runs, lowercases, and drops
// empty tokens.
func Tokenize(context string) []string {
	lowered := strings.ToLower(context)
	raw := strings.FieldsFunc(lowered, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	tokens := make([]string, 0, len(raw))
	for _, t := range raw {
		if t != "" {
			tokens = append(tokens, t)
		}
	}
	return tokens
}

// SerializeValue flattens a fact value to a single line: strings pass
// through, lists join with ", ", maps join "key: value" pairs.
func SerializeValue(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []interface{}:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, SerializeValue(item))
		}
		return strings.Join(parts, ", ")
	case []string:
		return strings.Join(v, ", ")
	case map[string]interface{}:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s: %s", k, SerializeValue(v[k])))
		}
		return strings.Join(parts, " • ")
	default:
		return fmt.Sprintf("%v", v)
	}
}
