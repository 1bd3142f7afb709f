package models

import "time"

// WeatherObservation is a single recorded measurement for a location.
// Produced by the ingestion collaborator; never mutated after creation.
type WeatherObservation struct {
	Location    string    `json:"location"`
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"`
	Rainfall    float64   `json:"rainfall"`
	Pressure    float64   `json:"pressure"`
	RecordedAt  time.Time `json:"recordedAt"`
}

// WeatherPrediction is one forecast day produced by the ensemble.
// Day runs 1..H with no gaps; Confidence is in [0,1].
type WeatherPrediction struct {
	Day         int       `json:"day"`
	Date        time.Time `json:"date"`
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"`
	Rainfall    float64   `json:"rainfall"`
	Confidence  float64   `json:"confidence"`
	Source      string    `json:"source"`
}

// HazardType identifies a weather hazard category.
type HazardType string

const (
	HazardFlood   HazardType = "FLOOD"
	HazardHeat    HazardType = "HEAT"
	HazardCold    HazardType = "COLD"
	HazardDrought HazardType = "DROUGHT"
)

// Severity is an alert severity tier.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Rank returns the ordinal position of the severity, higher is worse.
// Unknown severities rank below LOW.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// AlertPrediction is one predicted hazard occurrence.
type AlertPrediction struct {
	HazardType         HazardType `json:"hazardType"`
	Severity           Severity   `json:"severity"`
	Probability        float64    `json:"probability"`
	ExpectedTime       time.Time  `json:"expectedTime"`
	DurationHours      float64    `json:"durationHours"`
	RecommendedActions []string   `json:"recommendedActions"`
	Confidence         float64    `json:"confidence"`
}

// ModelPerformanceRecord accumulates call statistics for one named model.
// Records are monotonically updated and never deleted.
type ModelPerformanceRecord struct {
	Model               string    `json:"model"`
	TotalCalls          int64     `json:"totalCalls"`
	SuccessfulCalls     int64     `json:"successfulCalls"`
	AverageResponseTime float64   `json:"averageResponseTimeMs"`
	AverageConfidence   float64   `json:"averageConfidence"`
	LastUpdated         time.Time `json:"lastUpdated"`
}

// CachedPredictionRecord is one persisted prediction row. One row exists per
// (LocationKey, PredictionType); a new run replaces the prior row.
type CachedPredictionRecord struct {
	LocationKey    string    `json:"locationKey"`
	PredictionType string    `json:"predictionType"`
	Payload        []byte    `json:"payload"`
	Confidence     float64   `json:"confidence"`
	GeneratedAt    time.Time `json:"generatedAt"`
	ValidUntil     time.Time `json:"validUntil"`
	ModelVersion   string    `json:"modelVersion"`
}

// Location is a registered analysis target.
type Location struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// TrainingSummary describes the outcome of one model training run.
type TrainingSummary struct {
	Model      string        `json:"model"`
	Samples    int           `json:"samples"`
	Epochs     int           `json:"epochs,omitempty"`
	FinalLoss  float64       `json:"finalLoss,omitempty"`
	Duration   time.Duration `json:"duration"`
	FinishedAt time.Time     `json:"finishedAt"`
}

// AnalysisScope selects which domains a comprehensive analysis covers.
// "full" runs every domain; a single domain name restricts to that domain.
type AnalysisScope string

const (
	ScopeFull       AnalysisScope = "full"
	ScopeCrop       AnalysisScope = "crop"
	ScopeSoil       AnalysisScope = "soil"
	ScopeIrrigation AnalysisScope = "irrigation"
	ScopeEnergy     AnalysisScope = "energy"
)

// AnalysisRequest asks the orchestrator for a comprehensive analysis.
type AnalysisRequest struct {
	Location      string        `json:"location"`
	Scope         AnalysisScope `json:"scope"`
	FarmSizeAcres float64       `json:"farmSizeAcres"`
	HorizonDays   int           `json:"horizonDays"`
}

// CropAnalysis holds the crop predictor's output.
type CropAnalysis struct {
	Suitability    map[string]float64 `json:"suitability"`
	BestCrop       string             `json:"bestCrop"`
	PlantingAdvice string             `json:"plantingAdvice"`
	Score          float64            `json:"score"`
	Confidence     float64            `json:"confidence"`
}

// SoilAnalysis holds the soil predictor's output.
type SoilAnalysis struct {
	Moisture      float64 `json:"moisture"`
	PH            float64 `json:"ph"`
	OrganicMatter float64 `json:"organicMatter"`
	ErosionRisk   float64 `json:"erosionRisk"`
	Score         float64 `json:"score"`
	Confidence    float64 `json:"confidence"`
}

// IrrigationAnalysis holds the irrigation predictor's output.
type IrrigationAnalysis struct {
	NeedIndex       float64   `json:"needIndex"`
	ScheduleHours   float64   `json:"scheduleHours"`
	WaterLitersAcre float64   `json:"waterLitersPerAcre"`
	NextIrrigation  time.Time `json:"nextIrrigation"`
	Score           float64   `json:"score"`
	Confidence      float64   `json:"confidence"`
}

// EnergyAnalysis holds the energy predictor's output.
type EnergyAnalysis struct {
	SolarPotential  float64 `json:"solarPotential"`
	WindPotential   float64 `json:"windPotential"`
	PredictedSaving float64 `json:"predictedSavingPct"`
	Score           float64 `json:"score"`
	Confidence      float64 `json:"confidence"`
}

// ActionPriority is one ranked action derived from the merged analyses.
type ActionPriority struct {
	Tier   string `json:"tier"` // critical, high, medium, low
	Domain string `json:"domain"`
	Action string `json:"action"`
}

// RiskAssessment maps the worst discovered contribution onto a 5-level scale.
type RiskAssessment struct {
	Level        string             `json:"level"` // minimal, low, moderate, high, severe
	Score        float64            `json:"score"`
	Contributors map[string]float64 `json:"contributors"`
}

// SustainabilityMetrics is a weighted blend of per-concern sub-scores.
type SustainabilityMetrics struct {
	WaterScore        float64 `json:"waterScore"`
	EnergyScore       float64 `json:"energyScore"`
	SoilScore         float64 `json:"soilScore"`
	CarbonScore       float64 `json:"carbonScore"`
	BiodiversityScore float64 `json:"biodiversityScore"`
	Overall           float64 `json:"overall"`
}

// EconomicForecast projects revenue, costs and returns for the farm.
type EconomicForecast struct {
	ProjectedRevenue   float64 `json:"projectedRevenue"`
	ProjectedCosts     float64 `json:"projectedCosts"`
	NetIncome          float64 `json:"netIncome"`
	ROI                float64 `json:"roi"`
	RiskAdjustedReturn float64 `json:"riskAdjustedReturn"`
}

// Recommendation is one ranked advisory item.
type Recommendation struct {
	Rank    int    `json:"rank"`
	Domain  string `json:"domain"`
	Message string `json:"message"`
}

// ComprehensiveResult is the typed merge of all domain analyses for one run.
// Domains that failed are absent from their field and carry an entry in
// Errors; the payload is always well-formed even under partial failure.
type ComprehensiveResult struct {
	AnalysisID        string                `json:"analysisId"`
	Location          string                `json:"location"`
	GeneratedAt       time.Time             `json:"generatedAt"`
	Weather           []WeatherPrediction   `json:"weather,omitempty"`
	Alerts            []AlertPrediction     `json:"alerts,omitempty"`
	Crop              *CropAnalysis         `json:"crop,omitempty"`
	Soil              *SoilAnalysis         `json:"soil,omitempty"`
	Irrigation        *IrrigationAnalysis   `json:"irrigation,omitempty"`
	Energy            *EnergyAnalysis       `json:"energy,omitempty"`
	Errors            map[string]string     `json:"errors,omitempty"`
	Priorities        []ActionPriority      `json:"priorities"`
	Risk              RiskAssessment        `json:"risk"`
	Sustainability    SustainabilityMetrics `json:"sustainability"`
	Economics         *EconomicForecast     `json:"economics,omitempty"`
	Recommendations   []Recommendation      `json:"recommendations"`
	OverallScore      float64               `json:"overallScore"`
	OverallConfidence float64               `json:"overallConfidence"`
}
