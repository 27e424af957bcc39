package reconcile

import (
	"sort"
	"strings"
	"unicode"

	"github.com/maastricht-university/transcript-pipeline/models"
)

// LanguageWeights sums, per declared language, the non-whitespace characters
// recognized in each window (at least 1 per window). Windows without a
// concrete language ("" or "auto") do not count.
func LanguageWeights(results []models.RecognitionResult) (map[string]int, int) {
	weights := map[string]int{}
	total := 0
	for _, res := range results {
		lang := strings.TrimSpace(res.Language)
		if lang == "" || lang == "auto" {
			continue
		}
		w := 0
		for _, c := range res.Text {
			if !unicode.IsSpace(c) {
				w++
			}
		}
		if w < 1 {
			w = 1
		}
		weights[lang] += w
		total += w
	}
	return weights, total
}

// DominantLanguage returns the language worth pinning for a second recognition
// pass, if one language clearly dominates and there is enough evidence.
func (r *Reconciler) DominantLanguage(results []models.RecognitionResult) (string, bool) {
	weights, total := LanguageWeights(results)
	return r.dominant(weights, total)
}

func (r *Reconciler) dominant(weights map[string]int, total int) (string, bool) {
	if total < r.cfg.LockInMinWeight {
		return "", false
	}
	langs := make([]string, 0, len(weights))
	for l := range weights {
		langs = append(langs, l)
	}
	sort.Strings(langs)

	best, bestW := "", 0
	for _, l := range langs {
		if weights[l] > bestW {
			best, bestW = l, weights[l]
		}
	}
	if best == "" {
		return "", false
	}
	if float64(bestW)/float64(total) >= r.cfg.LockInShare {
		return best, true
	}
	return "", false
}
