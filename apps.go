package main

// App describes one visualization reachable from the directory page.
type App struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// App identifiers, also used as route segments.
const (
	AppPerplexity     = "perplexity-visualization"
	AppRecommendation = "recommendation-optimization"
)

// Apps lists every visualization in display order.
var Apps = []App{
	{
		ID:          AppPerplexity,
		Name:        "Perplexity Visualization",
		Description: "Visualize and explore text perplexity metrics",
	},
	{
		ID:          AppRecommendation,
		Name:        "Recommendation Optimization",
		Description: "Visualize how recommendation systems learn from user preferences",
	},
}

// FindApp looks an app up by id.
func FindApp(id string) (App, bool) {
	for _, a := range Apps {
		if a.ID == id {
			return a, true
		}
	}
	return App{}, false
}
