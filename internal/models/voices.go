package models

import "encoding/json"

// ModuleUnderrepresentedVoices is the analysis log module of perspective analyses.
const ModuleUnderrepresentedVoices = "underrepresented_voices"

// Underrepresented lists the passages and groups an article leaves out or mentions only in passing.
type Underrepresented struct {
	Segments     []string `json:"segments"`
	Demographics []string `json:"demographics"`
}

// VoicesAnalysis is the JSON payload persisted for underrepresented_voices records.
type VoicesAnalysis struct {
	Underrepresented Underrepresented `json:"underrepresented"`
	Recommendations  []string         `json:"recommendations"`
}

// DefaultVoicesAnalysis is returned when neither the live call nor the log can help.
func DefaultVoicesAnalysis() VoicesAnalysis {
	return VoicesAnalysis{
		Underrepresented: Underrepresented{Segments: []string{}, Demographics: []string{}},
		Recommendations: []string{
			"Consider including perspectives from diverse demographic groups",
			"Research how this topic affects underrepresented communities",
		},
	}
}

// Normalize replaces nil lists with empty ones.
func (v VoicesAnalysis) Normalize() VoicesAnalysis {
	if v.Underrepresented.Segments == nil {
		v.Underrepresented.Segments = []string{}
	}
	if v.Underrepresented.Demographics == nil {
		v.Underrepresented.Demographics = []string{}
	}
	if v.Recommendations == nil {
		v.Recommendations = []string{}
	}
	return v
}

// Encode serializes the analysis for the analysis log.
func (v VoicesAnalysis) Encode() (string, error) {
	data, err := json.Marshal(v.Normalize())
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DecodeVoicesAnalysis parses a stored payload.
func DecodeVoicesAnalysis(raw string) (VoicesAnalysis, error) {
	var v VoicesAnalysis
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return VoicesAnalysis{}, err
	}
	return v.Normalize(), nil
}
