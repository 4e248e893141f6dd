// Package selector decides which message a broadcast cycle sends.
package selector

import (
	"math/rand"

	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/broadcast/entities"
)

// Select picks the message of one cycle. It has no side effects, the caller persists
// Decision.NextPoolCursor and Decision.Variant.
//
// Precedence: template slot, forward mode, message pool, A/B variants, active message.
// A policy that has nothing to offer falls through to the next one.
func Select(settings *entities.Settings, content *entities.Content, rng *rand.Rand) entities.Decision {
	if content == nil {
		content = &entities.Content{}
	}

	if settings.TemplateSlot != nil {
		if msg, ok := content.Templates[*settings.TemplateSlot]; ok && !msg.Empty() {
			return entities.Decision{Source: entities.SourceTemplate, Message: &msg}
		}
	}

	if settings.ForwardMode {
		return entities.Decision{Source: entities.SourceForward}
	}

	if settings.PoolEnabled {
		if d, ok := fromPool(settings, content.Pool, rng); ok {
			return d
		}
	}

	if d, ok := fromVariants(settings, content, rng); ok {
		return d
	}

	if !content.Active.Empty() {
		msg := *content.Active
		return entities.Decision{Source: entities.SourceActive, Message: &msg}
	}

	return entities.Decision{Source: entities.SourceNone}
}

func fromPool(settings *entities.Settings, pool []domain.Message, rng *rand.Rand) (entities.Decision, bool) {
	n := len(pool)
	if n == 0 {
		return entities.Decision{}, false
	}

	switch settings.PoolMode {
	case entities.PoolRotate, entities.PoolSequential:
		cursor := settings.PoolCursor % n
		if cursor < 0 {
			cursor += n
		}
		// Walk past blank entries, at most one full turn
		for i := 0; i < n; i++ {
			idx := (cursor + i) % n
			if !pool[idx].Empty() {
				msg := pool[idx]
				return entities.Decision{
					Source:         entities.SourcePool,
					Message:        &msg,
					NextPoolCursor: (idx + 1) % n,
				}, true
			}
		}
		return entities.Decision{}, false
	default:
		candidates := make([]int, 0, n)
		for i := range pool {
			if !pool[i].Empty() {
				candidates = append(candidates, i)
			}
		}
		if len(candidates) == 0 {
			return entities.Decision{}, false
		}
		msg := pool[candidates[rng.Intn(len(candidates))]]
		return entities.Decision{
			Source:         entities.SourcePool,
			Message:        &msg,
			NextPoolCursor: settings.PoolCursor,
		}, true
	}
}

func fromVariants(settings *entities.Settings, content *entities.Content, rng *rand.Rand) (entities.Decision, bool) {
	if settings.ABMode == entities.ABOff || content.VariantA.Empty() {
		return entities.Decision{}, false
	}

	variant := entities.VariantA
	switch settings.ABMode {
	case entities.ABRotate:
		if settings.LastVariant == entities.VariantA {
			variant = entities.VariantB
		}
	case entities.ABSplit:
		if rng.Intn(2) == 1 {
			variant = entities.VariantB
		}
	}

	// B without content degrades to A
	msg := *content.VariantA
	if variant == entities.VariantB {
		if content.VariantB.Empty() {
			variant = entities.VariantA
		} else {
			msg = *content.VariantB
		}
	}

	return entities.Decision{Source: entities.SourceAB, Message: &msg, Variant: variant}, true
}
