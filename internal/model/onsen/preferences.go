package onsen

// WellbeingProfile 用于挑选泉质的身体状况信息。
type WellbeingProfile struct {
	SkinType         string `json:"skinType"`
	MuscleSoreness   string `json:"muscleSoreness"`
	StressLevel      string `json:"stressLevel"`
	WaterTemperature string `json:"waterTemperature"`
	HealthGoals      string `json:"healthGoals"`
}

// AestheticProfile 描述画面与氛围偏好。
type AestheticProfile struct {
	Atmosphere   string `json:"atmosphere"`
	ColorPalette string `json:"colorPalette"`
	TimeOfDay    string `json:"timeOfDay"`
}

// Preferences is the payload MION emits once the interview is confirmed.
type Preferences struct {
	WellbeingProfile WellbeingProfile `json:"wellbeingProfile" jsonschema:"required"`
	AestheticProfile AestheticProfile `json:"aestheticProfile" jsonschema:"required"`
}
