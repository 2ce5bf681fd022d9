package catalog

import (
	"sort"

	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/model"
)

// Scoring weights.
const (
	scoreEEG        = 40
	scorePPG        = 40
	scoreACC        = 20
	scoreRating     = 10
	scoreUsage      = 5
	scoreAffordable = 5

	ratingBonusAbove = 4.0
	usageBonusAbove  = 10

	// RecommendedScore is the minimum score for a recommendation.
	RecommendedScore = 70
)

// RankedEngine is one entry of a ranking.
type RankedEngine struct {
	Engine      model.EngineDescriptor `json:"engine"`
	Usage       model.EngineUsage      `json:"usage"`
	Score       int                    `json:"score"`
	Affordable  bool                   `json:"affordable"`
	Recommended bool                   `json:"recommended"`
}

// Score computes the compatibility heuristic for one engine.
func Score(desc model.EngineDescriptor, usage model.EngineUsage, required model.DataTypes, budget int) int {
	score := 0
	if required.EEG && desc.SupportedDataTypes.EEG {
		score += scoreEEG
	}
	if required.PPG && desc.SupportedDataTypes.PPG {
		score += scorePPG
	}
	if required.ACC && desc.SupportedDataTypes.ACC {
		score += scoreACC
	}
	if usage.AverageRating > ratingBonusAbove {
		score += scoreRating
	}
	if usage.Count > usageBonusAbove {
		score += scoreUsage
	}
	if desc.CostPerAnalysis <= budget {
		score += scoreAffordable
	}
	return score
}

// Rank scores every active engine. Order: recommended first, then score
// descending, cost ascending and ID ascending.
func (c *Catalog) Rank(required model.DataTypes, budget int) []RankedEngine {
	c.mu.RLock()
	out := make([]RankedEngine, 0, len(c.engines))
	for _, e := range c.engines {
		if !e.desc.Active() {
			continue
		}
		score := Score(e.desc, e.usage, required, budget)
		affordable := e.desc.CostPerAnalysis <= budget
		out = append(out, RankedEngine{
			Engine:      e.desc,
			Usage:       e.usage,
			Score:       score,
			Affordable:  affordable,
			Recommended: score >= RecommendedScore && affordable,
		})
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Recommended != b.Recommended {
			return a.Recommended
		}
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Engine.CostPerAnalysis != b.Engine.CostPerAnalysis {
			return a.Engine.CostPerAnalysis < b.Engine.CostPerAnalysis
		}
		return a.Engine.ID < b.Engine.ID
	})
	return out
}

// AutoSelect picks the cheapest active engine supporting at least one of the
// required data types. Ties go to the lowest ID.
func (c *Catalog) AutoSelect(required model.DataTypes) (model.EngineDescriptor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var best *model.EngineDescriptor
	for _, e := range c.engines {
		d := e.desc
		if !d.Active() || !d.SupportedDataTypes.Intersects(required) {
			continue
		}
		if best == nil ||
			d.CostPerAnalysis < best.CostPerAnalysis ||
			(d.CostPerAnalysis == best.CostPerAnalysis && d.ID < best.ID) {
			best = &d
		}
	}
	if best == nil {
		return model.EngineDescriptor{}, false
	}
	return *best, true
}
