package blog

import (
	"strings"

	"github.com/kham-river/water-quality-monitor/internal/water"
)

// AllCategories disables category filtering.
const AllCategories = "all"

type Article struct {
	ID       int    `json:"id"`
	Title    string `json:"title"`
	Excerpt  string `json:"excerpt"`
	Source   string `json:"source"`
	Category string `json:"category"`
	Country  string `json:"country"`
	Date     string `json:"date"`
}

var curated = []Article{
	{
		ID:       1,
		Title:    "Singapore's NEWater: Revolutionizing Water Reclamation",
		Excerpt:  "How Singapore transformed wastewater into high-quality drinking water using advanced technology.",
		Source:   "https://www.pub.gov.sg/watersupply/fournationaltaps/newater",
		Category: "Technology",
		Country:  "Singapore",
		Date:     "2024-01-15",
	},
	{
		ID:       2,
		Title:    "Namami Gange: India's Ambitious River Cleanup",
		Excerpt:  "The comprehensive program to clean and rejuvenate the sacred Ganga River.",
		Source:   "https://nmcg.nic.in/",
		Category: "Government Initiative",
		Country:  "India",
		Date:     "2024-01-20",
	},
}

// Articles returns the curated articles in category. Empty or "all" returns
// every article.
func Articles(category string) []Article {
	category = strings.TrimSpace(category)
	out := make([]Article, 0, len(curated))
	for _, a := range curated {
		if category == "" || category == AllCategories || a.Category == category {
			out = append(out, a)
		}
	}
	return out
}

// Solution is the remediation advice for one parameter.
type Solution struct {
	Low     string   `json:"low"`
	High    string   `json:"high"`
	Sources []string `json:"sources"`
}

var solutionSources = map[water.Parameter][]string{
	water.ParamPH:          {"https://www.who.int/water_sanitation_health/dwq/chemicals/ph.pdf"},
	water.ParamTemperature: {"https://www.epa.gov/thermal-pollution"},
	water.ParamEC:          {"https://www.fao.org/3/aq444e/aq444e.pdf"},
	water.ParamTDS:         {"https://www.who.int/water_sanitation_health/dwq/chemicals/tds.pdf"},
	water.ParamTurbidity:   {"https://www.epa.gov/turbidity"},
}

// Solutions builds the remediation advice for every parameter from the
// standards table.
func Solutions(table water.StandardsTable) map[water.Parameter]Solution {
	out := make(map[water.Parameter]Solution, len(water.Parameters))
	for _, p := range water.Parameters {
		s := table.Lookup(p)
		out[p] = Solution{
			Low:     s.Solution(water.StatusLow),
			High:    s.Solution(water.StatusHigh),
			Sources: append([]string(nil), solutionSources[p]...),
		}
	}
	return out
}

// SolutionFor returns the advice for one parameter name, matched through the
// field aliases.
func SolutionFor(table water.StandardsTable, name string) (water.Parameter, Solution, bool) {
	canon, ok := water.CanonicalField(name)
	if !ok || !water.Parameter(canon).Valid() {
		return "", Solution{}, false
	}
	p := water.Parameter(canon)
	return p, Solutions(table)[p], true
}
