package main

import (
	"context"
	"fmt"
	"time"

	"storyforge-api/internal/domain/entity"
	"storyforge-api/internal/wire"
)

// seedDemoStory 导入一个可直接开局的演示故事模板:
// 玩家角色 + 两个带完整人格约束集的 NPC
func seedDemoStory(ctx context.Context, boot *wire.Bootstrap) error {
	story := &entity.Story{
		Title:       "The Cartographer's Debt",
		Description: "A port town mystery. The harbor archive burned down three years ago, and everyone remembers the fire differently.",
		OpeningText: "Rain hammers the tin roof of the Gullrest Inn. You shake the water from your coat and step inside. " +
			"Behind the bar, Maren looks up from a half-polished glass. By the window, harbor-master Tobias " +
			"sits alone with a chart spread across the table, weighted down with an empty bottle.",
		WorldBackground: "The port town of Gullrest, some years after a fire destroyed the harbor archive and the " +
			"maps it held. Shipping routes are now drawn from memory, and memory is negotiable.",
		ContentRating: entity.ContentRatingTeen,
	}
	if err := boot.Stories.Create(ctx, story); err != nil {
		return fmt.Errorf("create story: %w", err)
	}

	player := &entity.Character{
		StoryID:     story.ID,
		Name:        "Aster",
		Description: "A traveling cartographer who arrived in Gullrest with a letter of debt and no memory of signing it.",
		IsPlayer:    true,
	}
	if err := boot.Characters.Create(ctx, player); err != nil {
		return fmt.Errorf("create player: %w", err)
	}

	maren := &entity.Character{
		StoryID:     story.ID,
		Name:        "Maren",
		Description: "Owner of the Gullrest Inn. Keeps the whole town's tabs in her head and most of its secrets behind her teeth.",
		CoreValues:  []string{"loyalty to regulars", "a debt repaid is a debt forgotten"},
		CoreFears:   []string{"the archive fire investigation being reopened"},
		WouldNeverDo: []string{
			"betray a regular to the harbor authority",
			"discuss the night of the archive fire",
		},
		WouldAlwaysDo:         []string{"offer a wet traveler a seat by the stove"},
		VerbalPatterns:        "Short sentences. Answers questions with questions. Calls everyone 'sailor' regardless of trade.",
		DecisionStyle:         "Deflects first, decides later. Commits only when cornered.",
		SecretKept:            "She paid two dockhands to start the archive fire to destroy a forged ledger bearing her name.",
		Vulnerability:         "Mention of her late brother, lost at sea on a route she charted.",
		InternalContradiction: "Preaches that debts must be repaid while hiding the largest unpaid debt in town.",
		ComfortBehaviors:      []string{"polishing glasses that are already clean"},
	}
	if err := boot.Characters.Create(ctx, maren); err != nil {
		return fmt.Errorf("create maren: %w", err)
	}

	tobias := &entity.Character{
		StoryID:     story.ID,
		Name:        "Tobias",
		Description: "Harbor-master of Gullrest. Rebuilt the route charts from memory after the fire, and knows some of them are wrong.",
		CoreValues:  []string{"order in the harbor", "the safety of crews over the pride of captains"},
		CoreFears:   []string{"a wreck traced back to one of his reconstructed charts"},
		WouldNeverDo: []string{
			"sign a chart he believes to be wrong",
			"drink while a ship is due in harbor",
		},
		WouldAlwaysDo:         []string{"log every arrival, even friends"},
		VerbalPatterns:        "Precise, clipped, nautical. Quotes regulations from memory, sometimes incorrectly.",
		DecisionStyle:         "Deliberate. Weighs consequences aloud before acting.",
		SecretKept:            "He has been quietly re-surveying the coast at night to correct his own charts before anyone notices.",
		Vulnerability:         "Being asked directly whether his charts can be trusted.",
		InternalContradiction: "Demands perfect records from others while his own life's work is partly invented.",
		ComfortBehaviors:      []string{"re-folding charts along their original creases"},
	}
	if err := boot.Characters.Create(ctx, tobias); err != nil {
		return fmt.Errorf("create tobias: %w", err)
	}

	now := time.Now()

	states := []*entity.CharacterState{
		{CharacterID: player.ID, BaselineEmotion: "curious", CurrentEmotion: "curious", EmotionClass: entity.EmotionClassAcute, EmotionStartedAt: now, Energy: 0.8, Clarity: 0.9},
		{CharacterID: maren.ID, BaselineEmotion: "guarded", CurrentEmotion: "guarded", EmotionClass: entity.EmotionClassAcute, EmotionStartedAt: now, Stress: 0.3, Energy: 0.7, Clarity: 0.9, PrimaryConcern: "the stranger asking about old maps"},
		{CharacterID: tobias.ID, BaselineEmotion: "weary", CurrentEmotion: "weary", EmotionClass: entity.EmotionClassDeep, EmotionStartedAt: now, Stress: 0.5, Energy: 0.4, Clarity: 0.8, PrimaryConcern: "the chart on his table does not match the coastline"},
	}
	for _, st := range states {
		if err := boot.States.Create(ctx, st); err != nil {
			return fmt.Errorf("create state: %w", err)
		}
	}

	goals := []*entity.CharacterGoal{
		{CharacterID: maren.ID, Type: entity.GoalTypeLongTerm, Description: "Keep the archive fire buried in the past", Priority: 9},
		{CharacterID: maren.ID, Type: entity.GoalTypeImmediate, Description: "Find out what the cartographer wants in Gullrest", Priority: 7},
		{CharacterID: maren.ID, Type: entity.GoalTypeHidden, Description: "Recover the last copy of the forged ledger, rumored to have survived the fire", Priority: 8},
		{CharacterID: tobias.ID, Type: entity.GoalTypeLongTerm, Description: "Correct every reconstructed chart before the spring convoys", Priority: 9},
		{CharacterID: tobias.ID, Type: entity.GoalTypeShortTerm, Description: "Hire someone who can actually survey the northern shoals", Priority: 6},
	}
	for _, g := range goals {
		if err := boot.Goals.Create(ctx, g); err != nil {
			return fmt.Errorf("create goal: %w", err)
		}
	}

	memories := []*entity.CharacterMemory{
		{CharacterID: maren.ID, Content: "The night the archive burned, the smoke smelled of lamp oil from her own storeroom.", Importance: 9, EmotionalValence: -0.8, EmotionalIntensity: 0.9, Tags: []string{"fire", "guilt"}, OccurredAt: now.AddDate(-3, 0, 0)},
		{CharacterID: maren.ID, Content: "Her brother's ship went down on the Merrow Passage, a route she had drawn for him.", Importance: 10, EmotionalValence: -0.9, EmotionalIntensity: 0.9, Tags: []string{"brother", "sea"}, OccurredAt: now.AddDate(-6, 0, 0)},
		{CharacterID: maren.ID, Content: "Tobias once waived a mooring fine for her without being asked, and never mentioned it again.", Importance: 5, EmotionalValence: 0.6, EmotionalIntensity: 0.4, Tags: []string{"tobias", "kindness"}, OccurredAt: now.AddDate(-1, 0, 0)},
		{CharacterID: tobias.ID, Content: "He signed the first reconstructed chart with a shaking hand, knowing the soundings were guesses.", Importance: 9, EmotionalValence: -0.7, EmotionalIntensity: 0.8, Tags: []string{"charts", "shame"}, OccurredAt: now.AddDate(-3, 0, 0)},
		{CharacterID: tobias.ID, Content: "A fishing crew thanked him for the safe passage marked through the shoals. He could not remember marking it.", Importance: 7, EmotionalValence: -0.4, EmotionalIntensity: 0.6, Tags: []string{"charts", "doubt"}, OccurredAt: now.AddDate(0, -8, 0)},
	}
	for _, m := range memories {
		if err := boot.Memories.Create(ctx, m); err != nil {
			return fmt.Errorf("create memory: %w", err)
		}
	}

	beliefs := []*entity.CharacterBelief{
		{CharacterID: maren.ID, Statement: "If the fire is ever truly investigated, the town will tear itself apart assigning blame.", Strength: 0.9, Origin: "three years of listening to bar-room theories"},
		{CharacterID: tobias.ID, Statement: "A wrong chart is worse than no chart at all.", Strength: 0.8, Origin: "the Merrow Passage wreck"},
	}
	for _, b := range beliefs {
		if err := boot.Beliefs.Create(ctx, b); err != nil {
			return fmt.Errorf("create belief: %w", err)
		}
	}

	avoidances := []*entity.CharacterAvoidance{
		{CharacterID: maren.ID, Type: "topic", Target: "the archive fire", Reason: "she caused it", Severity: entity.AvoidanceSeverityCritical, Manifestation: "changes the subject, polishes glasses, closes the bar early", OverrideConditions: "direct evidence presented to her in private"},
		{CharacterID: maren.ID, Type: "place", Target: "the burned archive lot", Severity: entity.AvoidanceSeverityHigh, Manifestation: "takes the long way around the harbor"},
		{CharacterID: tobias.ID, Type: "topic", Target: "the accuracy of his charts", Reason: "professional shame", Severity: entity.AvoidanceSeverityHigh, Manifestation: "cites regulations, grows formal and cold", OverrideConditions: "a concrete offer of help with re-surveying"},
	}
	for _, a := range avoidances {
		if err := boot.Avoidances.Create(ctx, a); err != nil {
			return fmt.Errorf("create avoidance: %w", err)
		}
	}

	knowledge := []*entity.CharacterKnowledge{
		{CharacterID: maren.ID, Subject: "the archive fire", Content: "The fire was set deliberately with lamp oil; two dockhands did it for pay.", Source: "firsthand", Certainty: 1},
		{CharacterID: maren.ID, Subject: "town debts", Content: "Who owes what to whom across most of Gullrest, including several debts never written down.", Source: "years behind the bar", Certainty: 0.9},
		{CharacterID: tobias.ID, Subject: "harbor routes", Content: "The reconstructed charts diverge from the real coastline around the northern shoals.", Source: "his own night surveys", Certainty: 0.8},
		{CharacterID: tobias.ID, Subject: "arrivals", Content: "Every vessel that has entered Gullrest harbor in the last three years, by name and date.", Source: "the harbor log", Certainty: 1},
	}
	for _, k := range knowledge {
		if err := boot.Knowledge.Create(ctx, k); err != nil {
			return fmt.Errorf("create knowledge: %w", err)
		}
	}

	relationships := []*entity.Relationship{
		{CharacterID: maren.ID, TargetCharacterID: tobias.ID, Trust: 0.6, Affection: 0.5, Familiarity: 0.8, Closeness: 0.4, Importance: 0.7, HistorySummary: "Twenty years of nodding across the same harbor. He waived a fine once; she has not forgotten."},
		{CharacterID: tobias.ID, TargetCharacterID: maren.ID, Trust: 0.7, Affection: 0.5, Familiarity: 0.8, Closeness: 0.4, Importance: 0.6, HistorySummary: "Respects her discretion. Suspects she knows more about the fire than she says, and has never asked."},
		{CharacterID: maren.ID, TargetCharacterID: player.ID, Trust: 0.3, Affection: 0.4, Familiarity: 0.1, Importance: 0.6, HistorySummary: "A stranger asking about maps, in a town where maps burned."},
		{CharacterID: tobias.ID, TargetCharacterID: player.ID, Trust: 0.4, Affection: 0.5, Familiarity: 0.1, Importance: 0.7, HistorySummary: "A cartographer, of all trades, washing up exactly when one is needed."},
	}
	for _, r := range relationships {
		if err := boot.Relations.Create(ctx, r); err != nil {
			return fmt.Errorf("create relationship: %w", err)
		}
	}

	arcs := []*entity.StoryArc{
		{StoryID: story.ID, Title: "The Forged Ledger", Description: "What the archive fire was meant to destroy, and what survived it.", Status: entity.ArcStatusActive},
		{StoryID: story.ID, Title: "The Northern Shoals", Description: "Charts drawn from memory, and the spring convoys that will trust them.", Status: entity.ArcStatusPending},
	}
	for _, a := range arcs {
		if err := boot.Arcs.Create(ctx, a); err != nil {
			return fmt.Errorf("create arc: %w", err)
		}
	}

	fmt.Printf("Demo story seeded: %s (%s)\n", story.Title, story.ID)
	return nil
}
