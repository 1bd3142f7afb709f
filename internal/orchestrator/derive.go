package orchestrator

import (
	"math"
	"sort"

	"github.com/agrisight/prediction-service/internal/models"
)

// Integration constants. Dollar figures are coarse planning baselines, not
// market data.
const (
	baseRevenuePerAcre = 850.0
	baseCostPerAcre    = 520.0

	sustainabilityWaterWeight        = 0.25
	sustainabilityEnergyWeight       = 0.20
	sustainabilitySoilWeight         = 0.25
	sustainabilityCarbonWeight       = 0.15
	sustainabilityBiodiversityWeight = 0.15
)

var tierRank = map[string]int{
	"critical": 0,
	"high":     1,
	"medium":   2,
	"low":      3,
}

// deriveIntegrated fills the merged sections of the result from whichever
// domain analyses completed. Overall score averages only the computed
// domains; overall confidence defaults to 0.75 when nothing carried one.
func deriveIntegrated(result *models.ComprehensiveResult, req models.AnalysisRequest) {
	result.Priorities = derivePriorities(result)
	result.Risk = deriveRisk(result)
	result.Sustainability = deriveSustainability(result)
	result.Economics = deriveEconomics(result, req.FarmSizeAcres)
	result.Recommendations = deriveRecommendations(result.Priorities)

	var scoreSum float64
	var scores int
	var confSum float64
	var confs int
	collect := func(score, conf float64) {
		scoreSum += score
		scores++
		confSum += conf
		confs++
	}
	if result.Crop != nil {
		collect(result.Crop.Score, result.Crop.Confidence)
	}
	if result.Soil != nil {
		collect(result.Soil.Score, result.Soil.Confidence)
	}
	if result.Irrigation != nil {
		collect(result.Irrigation.Score, result.Irrigation.Confidence)
	}
	if result.Energy != nil {
		collect(result.Energy.Score, result.Energy.Confidence)
	}
	if len(result.Weather) > 0 {
		confSum += forecastConfidence(result.Weather)
		confs++
	}

	if scores > 0 {
		result.OverallScore = scoreSum / float64(scores)
	}
	if confs > 0 {
		result.OverallConfidence = confSum / float64(confs)
	} else {
		result.OverallConfidence = 0.75
	}
}

// derivePriorities walks a fixed rule list in declaration order and sorts the
// hits by tier, critical first. The sort is stable so same-tier actions keep
// declaration order.
func derivePriorities(result *models.ComprehensiveResult) []models.ActionPriority {
	var out []models.ActionPriority
	add := func(tier, domainName, action string) {
		out = append(out, models.ActionPriority{Tier: tier, Domain: domainName, Action: action})
	}

	for _, alert := range result.Alerts {
		if alert.Severity == models.SeverityCritical {
			add("critical", "alerts", "Prepare for "+string(alert.HazardType)+" conditions immediately")
		}
	}
	if result.Irrigation != nil && result.Irrigation.NeedIndex > 80 {
		add("critical", "irrigation", "Irrigate immediately; severe water deficit")
	}
	for _, alert := range result.Alerts {
		if alert.Severity == models.SeverityHigh {
			add("high", "alerts", "Monitor developing "+string(alert.HazardType)+" risk")
		}
	}
	if result.Soil != nil && result.Soil.ErosionRisk > 60 {
		add("high", "soil", "Apply erosion control before the next heavy rainfall")
	}
	if result.Irrigation != nil && result.Irrigation.NeedIndex > 50 && result.Irrigation.NeedIndex <= 80 {
		add("medium", "irrigation", "Schedule irrigation within the next two days")
	}
	if result.Crop != nil && result.Crop.PlantingAdvice != "" {
		add("medium", "crop", result.Crop.PlantingAdvice)
	}
	if result.Energy != nil && result.Energy.SolarPotential > 70 {
		add("low", "energy", "Favorable window for solar generation")
	}
	if result.Soil != nil && result.Soil.OrganicMatter < 2.5 {
		add("low", "soil", "Consider cover cropping to rebuild organic matter")
	}

	sort.SliceStable(out, func(i, j int) bool {
		return tierRank[out[i].Tier] < tierRank[out[j].Tier]
	})
	return out
}

// deriveRisk maps the worst discovered contribution onto a 5-level scale.
func deriveRisk(result *models.ComprehensiveResult) models.RiskAssessment {
	contributors := make(map[string]float64)

	var worstAlert float64
	for _, alert := range result.Alerts {
		if v := alert.Probability * 100; v > worstAlert {
			worstAlert = v
		}
	}
	if worstAlert > 0 {
		contributors["hazards"] = worstAlert
	}
	if result.Soil != nil {
		contributors["erosion"] = result.Soil.ErosionRisk
	}
	if result.Irrigation != nil {
		contributors["waterStress"] = result.Irrigation.NeedIndex
	}
	if result.Crop != nil {
		contributors["cropStress"] = 100 - result.Crop.Score
	}

	var worst float64
	for _, v := range contributors {
		if v > worst {
			worst = v
		}
	}

	level := "minimal"
	switch {
	case worst >= 80:
		level = "severe"
	case worst >= 60:
		level = "high"
	case worst >= 40:
		level = "moderate"
	case worst >= 20:
		level = "low"
	}

	return models.RiskAssessment{Level: level, Score: worst, Contributors: contributors}
}

// deriveSustainability blends per-concern sub-scores. A missing domain
// contributes a neutral 50 to its sub-score rather than dropping the weight.
func deriveSustainability(result *models.ComprehensiveResult) models.SustainabilityMetrics {
	m := models.SustainabilityMetrics{
		WaterScore:        50,
		EnergyScore:       50,
		SoilScore:         50,
		CarbonScore:       50,
		BiodiversityScore: 50,
	}
	if result.Irrigation != nil {
		m.WaterScore = clampScore(100 - result.Irrigation.NeedIndex)
	}
	if result.Energy != nil {
		m.EnergyScore = clampScore((result.Energy.SolarPotential + result.Energy.WindPotential) / 2)
		m.CarbonScore = clampScore(40 + result.Energy.PredictedSaving*1.5)
	}
	if result.Soil != nil {
		m.SoilScore = clampScore(result.Soil.Score)
	}
	if result.Crop != nil {
		var sum float64
		for _, v := range result.Crop.Suitability {
			sum += v
		}
		if n := len(result.Crop.Suitability); n > 0 {
			m.BiodiversityScore = clampScore(30 + (sum/float64(n))*0.5)
		}
	}
	m.Overall = m.WaterScore*sustainabilityWaterWeight +
		m.EnergyScore*sustainabilityEnergyWeight +
		m.SoilScore*sustainabilitySoilWeight +
		m.CarbonScore*sustainabilityCarbonWeight +
		m.BiodiversityScore*sustainabilityBiodiversityWeight
	return m
}

// deriveEconomics projects revenue from crop suitability and adjusts costs by
// predicted energy savings. Requires the crop analysis; nil without it.
func deriveEconomics(result *models.ComprehensiveResult, farmSizeAcres float64) *models.EconomicForecast {
	if result.Crop == nil {
		return nil
	}
	var sum float64
	for _, v := range result.Crop.Suitability {
		sum += v
	}
	avgSuitability := 0.0
	if n := len(result.Crop.Suitability); n > 0 {
		avgSuitability = sum / float64(n) / 100
	}

	revenue := farmSizeAcres * baseRevenuePerAcre * avgSuitability
	costs := farmSizeAcres * baseCostPerAcre
	if result.Energy != nil {
		costs *= 1 - (result.Energy.PredictedSaving/100)*0.3
	}
	net := revenue - costs

	roi := 0.0
	if costs > 0 {
		roi = net / costs * 100
	}
	riskAdjusted := net * (1 - result.Risk.Score/200)

	return &models.EconomicForecast{
		ProjectedRevenue:   round2(revenue),
		ProjectedCosts:     round2(costs),
		NetIncome:          round2(net),
		ROI:                round2(roi),
		RiskAdjustedReturn: round2(riskAdjusted),
	}
}

func deriveRecommendations(priorities []models.ActionPriority) []models.Recommendation {
	out := make([]models.Recommendation, 0, len(priorities))
	for i, p := range priorities {
		out = append(out, models.Recommendation{
			Rank:    i + 1,
			Domain:  p.Domain,
			Message: p.Action,
		})
	}
	return out
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
