package assert

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/treosh/lightci/internal/dotpath"
	"github.com/treosh/lightci/internal/thirdparty"
)

// Budget caps page composition for URLs whose path matches Path. An empty
// Path matches every URL. Patterns anchor at the start of the path, `*`
// matches any run of characters, and a trailing `$` anchors the end.
type Budget struct {
	Path           string           `yaml:"path" json:"path,omitempty"`
	ResourceSizes  []ResourceBudget `yaml:"resourceSizes" json:"resourceSizes,omitempty"`
	ResourceCounts []ResourceBudget `yaml:"resourceCounts" json:"resourceCounts,omitempty"`
	Timings        []TimingBudget   `yaml:"timings" json:"timings,omitempty"`
}

// ResourceBudget caps one resource type: KiB of transfer for sizes,
// request count for counts. Types are the lowercased request types plus
// "total" and "third-party".
type ResourceBudget struct {
	ResourceType string  `yaml:"resourceType" json:"resourceType"`
	Budget       float64 `yaml:"budget" json:"budget"`
}

// TimingBudget caps a metric audit's numeric value in milliseconds.
type TimingBudget struct {
	Metric string  `yaml:"metric" json:"metric"`
	Budget float64 `yaml:"budget" json:"budget"`
}

// Budget values judge the median across runs; a single noisy run should
// not fail a size budget.
func evaluateBudgets(pageURL string, budgets []Budget, docs []map[string]any) []Result {
	var out []Result
	for _, b := range budgets {
		if !matchBudgetPath(b.Path, pageURL) {
			continue
		}

		sizes := make([]map[string]float64, 0, len(docs))
		counts := make([]map[string]float64, 0, len(docs))
		for _, doc := range docs {
			s, c := resourceStats(doc)
			sizes = append(sizes, s)
			counts = append(counts, c)
		}

		for _, rb := range b.ResourceSizes {
			out = append(out, budgetResult(
				pageURL, "budget."+rb.ResourceType+".size", "resourceSizes",
				rb.Budget, valuesFor(sizes, rb.ResourceType),
			))
		}
		for _, rb := range b.ResourceCounts {
			out = append(out, budgetResult(
				pageURL, "budget."+rb.ResourceType+".count", "resourceCounts",
				rb.Budget, valuesFor(counts, rb.ResourceType),
			))
		}
		for _, tb := range b.Timings {
			var values []float64
			for _, doc := range docs {
				if v, ok := dotpath.GetFloat(doc, "audits."+tb.Metric+".numericValue"); ok {
					values = append(values, v)
				}
			}
			out = append(out, budgetResult(pageURL, "budget."+tb.Metric, "timings", tb.Budget, values))
		}
	}
	return out
}

func budgetResult(url, name, property string, budget float64, values []float64) Result {
	res := Result{
		URL:      url,
		Name:     name,
		Level:    LevelError,
		Property: property,
		Expected: budget,
		Operator: "<=",
		Values:   values,
	}
	if len(values) > 0 {
		res.Actual = aggregate(values, AggregateMedian, false)
		res.Passed = res.Actual <= budget
	}
	return res
}

func valuesFor(stats []map[string]float64, resourceType string) []float64 {
	var values []float64
	for _, s := range stats {
		if v, ok := s[strings.ToLower(resourceType)]; ok {
			values = append(values, v)
		} else {
			// A run without a single request of the type still counts as
			// zero usage rather than a missing value.
			values = append(values, 0)
		}
	}
	return values
}

// resourceStats sums transfer KiB and request counts per resource type
// from the network-requests audit details of one decoded report.
func resourceStats(doc map[string]any) (sizes, counts map[string]float64) {
	sizes = map[string]float64{}
	counts = map[string]float64{}
	finalURL, _ := dotpath.GetString(doc, "finalUrl")

	items, ok := dotpath.Get(doc, "audits.network-requests.details.items")
	if !ok {
		return sizes, counts
	}
	list, ok := items.([]any)
	if !ok {
		return sizes, counts
	}
	add := func(key string, kib float64) {
		sizes[key] += kib
		counts[key]++
	}
	for _, raw := range list {
		item, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		kib := 0.0
		if v, ok := dotpath.GetFloat(item, "transferSize"); ok {
			kib = v / 1024
		}
		add("total", kib)
		add(normalizeResourceType(item["resourceType"]), kib)
		if itemURL, ok := item["url"].(string); ok && !thirdparty.IsFirstParty(itemURL, finalURL) {
			add("third-party", kib)
		}
	}
	return sizes, counts
}

func normalizeResourceType(v any) string {
	s, _ := v.(string)
	switch t := strings.ToLower(s); t {
	case "xhr", "fetch", "":
		return "other"
	default:
		return t
	}
}

func matchBudgetPath(pattern, pageURL string) bool {
	if pattern == "" {
		return true
	}
	u, err := url.Parse(pageURL)
	if err != nil {
		return false
	}
	p := u.Path
	if p == "" {
		p = "/"
	}
	return budgetPathRegexp(pattern).MatchString(p)
}

func budgetPathRegexp(pattern string) *regexp.Regexp {
	anchored := strings.HasSuffix(pattern, "$")
	pattern = strings.TrimSuffix(pattern, "$")
	var b strings.Builder
	b.WriteString("^")
	for i, part := range strings.Split(pattern, "*") {
		if i > 0 {
			b.WriteString(".*")
		}
		b.WriteString(regexp.QuoteMeta(part))
	}
	if anchored {
		b.WriteString("$")
	}
	return regexp.MustCompile(b.String())
}
