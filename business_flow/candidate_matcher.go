package businessflow

import (
	"context"
	"sort"
	"time"

	"github.com/amirphl/momo-reconciler/models"
	"github.com/amirphl/momo-reconciler/repository"
	"github.com/amirphl/momo-reconciler/utils"
)

// Lookback bounds for the amount window
const (
	MinLookback     = time.Minute
	MaxLookback     = 10080 * time.Minute
	DefaultLookback = 1440 * time.Minute
)

// MatchMode says how the candidates were found
type MatchMode string

const (
	MatchModeRefExact     MatchMode = "ref_exact"
	MatchModeRefAmbiguous MatchMode = "ref_ambiguous"
	MatchModeAmountWindow MatchMode = "amount_window"
	MatchModeNone         MatchMode = "none"
)

// MatchQuery is what the matcher knows about a parsed payment
type MatchQuery struct {
	Amount     int64
	Ref        string
	ReceivedAt time.Time
	// Lookback of zero means the configured default
	Lookback time.Duration
}

// Candidate is one open intent the payment could settle
type Candidate struct {
	Intent models.PaymentIntent
	// Distance is |createdAt - receivedAt|
	Distance time.Duration
}

func (c Candidate) Pointer() models.EntityPointer {
	return c.Intent.Pointer()
}

// MatchResult holds ranked candidates, closest first
type MatchResult struct {
	Mode MatchMode
	// Amount is the parsed amount the candidates were matched for
	Amount     int64
	Lookback   time.Duration
	Candidates []Candidate
}

// AutoSettleTarget returns the only candidate that may be settled without an operator:
// a single open intent whose reference equals the parsed ref and whose amount equals the parsed amount
func (r *MatchResult) AutoSettleTarget() (Candidate, bool) {
	if r.Mode == MatchModeRefExact && len(r.Candidates) == 1 && r.Candidates[0].Intent.Amount == r.Amount {
		return r.Candidates[0], true
	}
	return Candidate{}, false
}

// AmountMismatch reports a single reference hit whose amount differs from the payment
func (r *MatchResult) AmountMismatch() bool {
	return r.Mode == MatchModeRefExact && len(r.Candidates) == 1 && r.Candidates[0].Intent.Amount != r.Amount
}

// Pointers renders the candidates as "kind:id"
func (r *MatchResult) Pointers() []string {
	out := make([]string, 0, len(r.Candidates))
	for _, c := range r.Candidates {
		out = append(out, c.Pointer().String())
	}
	return out
}

// IntentRegistry maps every payable kind to its repository
type IntentRegistry map[models.IntentKind]repository.PaymentIntentRepository

func NewIntentRegistry(repos ...repository.PaymentIntentRepository) IntentRegistry {
	reg := make(IntentRegistry, len(repos))
	for _, r := range repos {
		reg[r.Kind()] = r
	}
	return reg
}

// Get returns the repository for kind or ErrUnknownIntentKind
func (reg IntentRegistry) Get(kind models.IntentKind) (repository.PaymentIntentRepository, error) {
	r, ok := reg[kind]
	if !ok {
		return nil, ErrUnknownIntentKind
	}
	return r, nil
}

// CandidateMatcher finds open intents a parsed payment could settle
type CandidateMatcher interface {
	Match(ctx context.Context, q MatchQuery) (*MatchResult, error)
}

// CandidateMatcherImpl implements CandidateMatcher over the matchable kinds
type CandidateMatcherImpl struct {
	intents         IntentRegistry
	defaultLookback time.Duration
}

func NewCandidateMatcher(intents IntentRegistry, defaultLookback time.Duration) CandidateMatcher {
	if defaultLookback <= 0 {
		defaultLookback = DefaultLookback
	}
	return &CandidateMatcherImpl{intents: intents, defaultLookback: ClampLookback(defaultLookback)}
}

// ClampLookback bounds d to [MinLookback, MaxLookback]
func ClampLookback(d time.Duration) time.Duration {
	if d < MinLookback {
		return MinLookback
	}
	if d > MaxLookback {
		return MaxLookback
	}
	return d
}

func (m *CandidateMatcherImpl) Match(ctx context.Context, q MatchQuery) (*MatchResult, error) {
	lookback := m.defaultLookback
	if q.Lookback > 0 {
		lookback = ClampLookback(q.Lookback)
	}
	result := &MatchResult{Mode: MatchModeNone, Amount: q.Amount, Lookback: lookback, Candidates: []Candidate{}}

	if ref := utils.NormalizeRef(q.Ref); ref != "" {
		var hits []models.PaymentIntent
		for _, kind := range models.MatchableIntentKinds {
			repo, ok := m.intents[kind]
			if !ok {
				continue
			}
			found, err := repo.ListOpenByRef(ctx, ref)
			if err != nil {
				return nil, NewBusinessError("MATCH_BY_REF_FAILED", "Failed to search intents by reference", err)
			}
			hits = append(hits, found...)
		}
		if len(hits) > 0 {
			result.Candidates = rank(hits, q.ReceivedAt)
			result.Mode = MatchModeRefExact
			if len(hits) > 1 {
				result.Mode = MatchModeRefAmbiguous
			}
			return result, nil
		}
	}

	if q.Amount <= 0 {
		return result, nil
	}

	since := q.ReceivedAt.Add(-lookback)
	var open []models.PaymentIntent
	for _, kind := range models.MatchableIntentKinds {
		repo, ok := m.intents[kind]
		if !ok {
			continue
		}
		found, err := repo.ListOpenByAmount(ctx, q.Amount, since, q.ReceivedAt)
		if err != nil {
			return nil, NewBusinessError("MATCH_BY_AMOUNT_FAILED", "Failed to search intents by amount", err)
		}
		for _, intent := range found {
			// exact amount only
			if intent.Amount == q.Amount {
				open = append(open, intent)
			}
		}
	}
	if len(open) > 0 {
		result.Mode = MatchModeAmountWindow
		result.Candidates = rank(open, q.ReceivedAt)
	}
	return result, nil
}

// rank orders by distance to receivedAt; kinds carry no priority
func rank(intents []models.PaymentIntent, receivedAt time.Time) []Candidate {
	out := make([]Candidate, 0, len(intents))
	for _, intent := range intents {
		d := receivedAt.Sub(intent.CreatedAt)
		if d < 0 {
			d = -d
		}
		out = append(out, Candidate{Intent: intent, Distance: d})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		if out[i].Intent.Kind != out[j].Intent.Kind {
			return out[i].Intent.Kind < out[j].Intent.Kind
		}
		return out[i].Intent.ID < out[j].Intent.ID
	})
	return out
}
