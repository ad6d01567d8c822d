package learning

import (
	"github.com/Alias1177/MatchPredictor/models"
)

// Summarize aggregates a batch of completed matches. Samples without a
// valid result are skipped.
func Summarize(batch []models.LearningSample, highConfidenceProb float64) models.AccuracySummary {
	s := models.AccuracySummary{
		ByClass:  make(map[models.Outcome]models.ClassAccuracy),
		ByLeague: make(map[string]models.ClassAccuracy),
	}

	for _, sample := range batch {
		predicted := sample.Prediction.PredictedWinner
		actual := sample.Outcome.Result
		if !predicted.Valid() || !actual.Valid() {
			continue
		}
		correct := predicted == actual

		s.Total++
		if correct {
			s.Correct++
		}

		class := s.ByClass[predicted]
		class.Add(correct)
		s.ByClass[predicted] = class

		league := s.ByLeague[sample.Prediction.League]
		league.Add(correct)
		s.ByLeague[sample.Prediction.League] = league

		if actual == models.OutcomeDraw && predicted != models.OutcomeDraw {
			s.MissedDraws++
		}

		if sample.Prediction.Probability(predicted) >= highConfidenceProb {
			s.HighConfidence++
			if !correct {
				s.HighConfidenceWrong++
			}
			if predicted == models.OutcomeHome {
				s.HighConfidenceHome++
				if actual == models.OutcomeAway {
					s.FavoriteUpsets++
				}
			}
		}
	}

	if s.Total > 0 {
		s.Accuracy = float64(s.Correct) / float64(s.Total)
	}
	return s
}

func rate(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}
