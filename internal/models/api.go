package models

// WeatherReport is the subset of the OpenWeather current-weather payload
// shown by the weather widget.
type WeatherReport struct {
	Name string `json:"name"`
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		Humidity  int     `json:"humidity"`
	} `json:"main"`
	Weather []WeatherCondition `json:"weather"`
}

// WeatherCondition is one entry of the payload's weather array.
type WeatherCondition struct {
	ID          int    `json:"id"`
	Main        string `json:"main"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

// Temperature returns the current temperature in degrees Celsius.
func (w *WeatherReport) Temperature() float64 { return w.Main.Temp }

// Condition returns the first condition code and description.
func (w *WeatherReport) Condition() (int, string) {
	if len(w.Weather) == 0 {
		return 0, ""
	}
	return w.Weather[0].ID, w.Weather[0].Description
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Query          string `json:"query"`
	ConversationID string `json:"conversation_id,omitempty"`
	User           string `json:"user,omitempty"`
}

// ChatResponse is the reply of POST /api/chat. Error is set instead of
// Answer on failure.
type ChatResponse struct {
	Answer         string `json:"answer,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	Error          string `json:"error,omitempty"`
}

// ProfileUpdate is the body of POST /api/user/update-profile. Nil fields are
// not written; Role and Premium fall back to registered/false.
type ProfileUpdate struct {
	UserID         string  `json:"user_id"`
	Name           *string `json:"user_name,omitempty"`
	Email          *string `json:"user_email,omitempty"`
	MunicipalityID *string `json:"user_mun,omitempty"`
	Role           *Role   `json:"user_role,omitempty"`
	Premium        *bool   `json:"user_premium,omitempty"`
}

// ProfileResult is the reply of POST /api/user/update-profile.
type ProfileResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// ExistsResponse is the reply of GET /api/user/:id/exists.
type ExistsResponse struct {
	Exists bool `json:"exists"`
}
