package domain

type TariffPlan struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Description     string `json:"description"`
	SessionsCount   int    `json:"sessions_count"`
	Price           int    `json:"price"`
	PricePerSession int    `json:"price_per_session"`
	Popular         bool   `json:"popular,omitempty"`
}

// The unlimited plan is tracked as 30 sessions for balance purposes.
var tariffPlans = []TariffPlan{
	{ID: "trial", Name: "Trial session", Description: "First visit to the club", SessionsCount: 1, Price: 500, PricePerSession: 500},
	{ID: "single", Name: "Single visit", Description: "One training session", SessionsCount: 1, Price: 800, PricePerSession: 800},
	{ID: "package_8", Name: "8 sessions", Description: "Monthly package", SessionsCount: 8, Price: 5600, PricePerSession: 700, Popular: true},
	{ID: "package_12", Name: "12 sessions", Description: "Best value package", SessionsCount: 12, Price: 7800, PricePerSession: 650},
	{ID: "unlimited", Name: "Unlimited month", Description: "Unlimited training for a month", SessionsCount: 30, Price: 12000, PricePerSession: 400},
}

func TariffPlans() []TariffPlan {
	out := make([]TariffPlan, len(tariffPlans))
	copy(out, tariffPlans)
	return out
}

func FindTariff(id string) (TariffPlan, bool) {
	for _, t := range tariffPlans {
		if t.ID == id {
			return t, true
		}
	}
	return TariffPlan{}, false
}
