package selector

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/broadcast/entities"
)

func msg(text string) domain.Message {
	return domain.Message{Text: text}
}

func msgPtr(text string) *domain.Message {
	m := msg(text)
	return &m
}

func slot(n int) *int {
	return &n
}

func fullContent() *entities.Content {
	return &entities.Content{
		Templates: map[int]domain.Message{1: msg("template")},
		Pool:      []domain.Message{msg("p0"), msg("p1"), msg("p2")},
		VariantA:  msgPtr("a"),
		VariantB:  msgPtr("b"),
		Active:    msgPtr("active"),
	}
}

func TestSelect_Precedence(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	tests := []struct {
		name       string
		settings   entities.Settings
		content    *entities.Content
		wantSource entities.Source
		wantText   string
	}{
		{
			name:       "template slot wins over everything",
			settings:   entities.Settings{TemplateSlot: slot(1), ForwardMode: true, PoolEnabled: true, ABMode: entities.ABSingle},
			content:    fullContent(),
			wantSource: entities.SourceTemplate,
			wantText:   "template",
		},
		{
			name:       "missing template slot falls through to forward",
			settings:   entities.Settings{TemplateSlot: slot(9), ForwardMode: true},
			content:    fullContent(),
			wantSource: entities.SourceForward,
		},
		{
			name:       "forward wins over pool",
			settings:   entities.Settings{ForwardMode: true, PoolEnabled: true, PoolMode: entities.PoolRotate},
			content:    fullContent(),
			wantSource: entities.SourceForward,
		},
		{
			name:       "pool wins over ab",
			settings:   entities.Settings{PoolEnabled: true, PoolMode: entities.PoolRotate, ABMode: entities.ABSingle},
			content:    fullContent(),
			wantSource: entities.SourcePool,
			wantText:   "p0",
		},
		{
			name:       "empty pool falls through to ab",
			settings:   entities.Settings{PoolEnabled: true, PoolMode: entities.PoolRotate, ABMode: entities.ABSingle},
			content:    &entities.Content{Pool: []domain.Message{msg("  ")}, VariantA: msgPtr("a"), Active: msgPtr("active")},
			wantSource: entities.SourceAB,
			wantText:   "a",
		},
		{
			name:       "missing variant falls through to active",
			settings:   entities.Settings{ABMode: entities.ABRotate},
			content:    &entities.Content{VariantB: msgPtr("b"), Active: msgPtr("active")},
			wantSource: entities.SourceActive,
			wantText:   "active",
		},
		{
			name:       "active message",
			settings:   entities.Settings{},
			content:    fullContent(),
			wantSource: entities.SourceActive,
			wantText:   "active",
		},
		{
			name:       "nothing to send",
			settings:   entities.Settings{PoolEnabled: true},
			content:    &entities.Content{},
			wantSource: entities.SourceNone,
		},
		{
			name:       "nil content",
			settings:   entities.Settings{TemplateSlot: slot(1)},
			content:    nil,
			wantSource: entities.SourceNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Select(&tt.settings, tt.content, rng)
			assert.Equal(t, tt.wantSource, d.Source)
			if tt.wantText == "" {
				assert.Nil(t, d.Message)
				return
			}
			require.NotNil(t, d.Message)
			assert.Equal(t, tt.wantText, d.Message.Text)
		})
	}
}

func TestSelect_Deterministic(t *testing.T) {
	settings := &entities.Settings{PoolEnabled: true, PoolMode: entities.PoolRandom}
	content := fullContent()

	first := make([]string, 0, 20)
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		first = append(first, Select(settings, content, rng).Message.Text)
	}

	rng = rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		assert.Equal(t, first[i], Select(settings, content, rng).Message.Text)
	}
}

func TestSelect_RotateAndSequentialArePeriodic(t *testing.T) {
	for _, mode := range []entities.PoolMode{entities.PoolRotate, entities.PoolSequential} {
		t.Run(string(mode), func(t *testing.T) {
			settings := &entities.Settings{PoolEnabled: true, PoolMode: mode}
			content := fullContent()
			rng := rand.New(rand.NewSource(1))

			got := make([]string, 0, 7)
			for i := 0; i < 7; i++ {
				d := Select(settings, content, rng)
				got = append(got, d.Message.Text)
				settings.PoolCursor = d.NextPoolCursor
			}
			assert.Equal(t, []string{"p0", "p1", "p2", "p0", "p1", "p2", "p0"}, got)
		})
	}
}

func TestSelect_RotateSkipsBlankEntries(t *testing.T) {
	settings := &entities.Settings{PoolEnabled: true, PoolMode: entities.PoolRotate, PoolCursor: 1}
	content := &entities.Content{Pool: []domain.Message{msg("p0"), msg(""), msg("p2")}}

	d := Select(settings, content, rand.New(rand.NewSource(1)))
	require.NotNil(t, d.Message)
	assert.Equal(t, "p2", d.Message.Text)
	assert.Equal(t, 0, d.NextPoolCursor)
}

func TestSelect_RotateCursorOutOfRange(t *testing.T) {
	settings := &entities.Settings{PoolEnabled: true, PoolMode: entities.PoolRotate, PoolCursor: 7}

	d := Select(settings, fullContent(), rand.New(rand.NewSource(1)))
	assert.Equal(t, "p1", d.Message.Text)
	assert.Equal(t, 2, d.NextPoolCursor)
}

func TestSelect_RandomPoolDistribution(t *testing.T) {
	settings := &entities.Settings{PoolEnabled: true, PoolMode: entities.PoolRandom}
	content := fullContent()
	rng := rand.New(rand.NewSource(7))

	counts := map[string]int{}
	const trials = 30000
	for i := 0; i < trials; i++ {
		counts[Select(settings, content, rng).Message.Text]++
	}

	for _, text := range []string{"p0", "p1", "p2"} {
		assert.InDelta(t, trials/3, counts[text], trials*0.03, text)
	}
}

func TestSelect_ABModes(t *testing.T) {
	rng := rand.New(rand.NewSource(3))

	t.Run("single always A", func(t *testing.T) {
		settings := &entities.Settings{ABMode: entities.ABSingle, LastVariant: entities.VariantA}
		for i := 0; i < 5; i++ {
			d := Select(settings, fullContent(), rng)
			assert.Equal(t, entities.VariantA, d.Variant)
			assert.Equal(t, "a", d.Message.Text)
		}
	})

	t.Run("rotate alternates from last marker", func(t *testing.T) {
		settings := &entities.Settings{ABMode: entities.ABRotate}
		got := make([]entities.Variant, 0, 4)
		for i := 0; i < 4; i++ {
			d := Select(settings, fullContent(), rng)
			got = append(got, d.Variant)
			settings.LastVariant = d.Variant
		}
		assert.Equal(t, []entities.Variant{entities.VariantA, entities.VariantB, entities.VariantA, entities.VariantB}, got)
	})

	t.Run("rotate without B stays on A", func(t *testing.T) {
		settings := &entities.Settings{ABMode: entities.ABRotate, LastVariant: entities.VariantA}
		content := &entities.Content{VariantA: msgPtr("a")}
		d := Select(settings, content, rng)
		assert.Equal(t, entities.VariantA, d.Variant)
	})

	t.Run("split is roughly even", func(t *testing.T) {
		settings := &entities.Settings{ABMode: entities.ABSplit}
		const trials = 20000
		b := 0
		for i := 0; i < trials; i++ {
			if Select(settings, fullContent(), rng).Variant == entities.VariantB {
				b++
			}
		}
		assert.InDelta(t, trials/2, b, trials*0.03)
	})
}

func TestSelect_PreservesEntities(t *testing.T) {
	active := domain.Message{
		Text:     "hello world",
		Entities: []domain.Entity{{Type: domain.EntityBold, Offset: 0, Length: 5}},
	}
	d := Select(&entities.Settings{}, &entities.Content{Active: &active}, rand.New(rand.NewSource(1)))

	require.NotNil(t, d.Message)
	assert.Equal(t, active.Entities, d.Message.Entities)
}
